// Package echo serves a reply endpoint speaking the same JSON contract widgets
// use for apiEndpoint, so a widget can be pointed back at this server.
package echo

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/analysis/keyword"
	"github.com/zhouzirui/supportbot/internal/model/knowledge"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
	"github.com/zhouzirui/supportbot/pkg/utils"
)

// Handler answers RemoteRequest bodies with a RemoteReply.
type Handler struct {
	provider resolver.ResponseProvider
	matcher  *keyword.Matcher
	logger   zerolog.Logger
}

// New 创建回复处理器。provider 为 nil 时仅使用知识库关键词匹配。
func New(provider resolver.ResponseProvider) *Handler {
	return &Handler{
		provider: provider,
		matcher:  keyword.NewMatcher(knowledge.Seed(), knowledge.SeedKeywords(), nil),
		logger:   log.With().Str("component", "handler.echo").Logger(),
	}
}

// RegisterRoutes 注册回复接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/echo", h.handleEcho)
}

func (h *Handler) handleEcho(w http.ResponseWriter, r *http.Request) {
	var payload resolver.RemoteRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	if h.provider != nil {
		reply, err := h.provider.GenerateResponse(r.Context(), payload.Message, payload.Context)
		if err == nil && reply != "" {
			utils.RespondJSON(w, http.StatusOK, resolver.RemoteReply{Response: reply})
			return
		}
		h.logger.Warn().Err(err).Msg("provider failed, answering from knowledge base")
	}

	utils.RespondJSON(w, http.StatusOK, resolver.RemoteReply{Response: h.matcher.Reply(payload.Message)})
}
