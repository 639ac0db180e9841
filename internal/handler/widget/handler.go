package widget

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
	"github.com/zhouzirui/supportbot/internal/render"
	widgetService "github.com/zhouzirui/supportbot/internal/service/widget"
	"github.com/zhouzirui/supportbot/pkg/utils"
)

// Handler 组件实例的HTTP处理器
type Handler struct {
	registry *widgetService.Registry
	events   *render.Broadcaster
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New 创建组件处理器。events 为 nil 时事件流接口返回 503。
func New(registry *widgetService.Registry, events *render.Broadcaster) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.With().Str("component", "handler.widget").Logger(),
	}
}

// RegisterRoutes 注册组件相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/widgets", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)

		r.Route("/{widgetID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)

			r.Post("/open", h.handleOpen)
			r.Post("/close", h.handleClose)
			r.Post("/toggle", h.handleToggle)

			r.Get("/messages", h.handleMessages)
			r.Post("/messages", h.handleSend)
			r.Delete("/messages", h.handleClear)

			r.Patch("/config", h.handleConfig)

			r.Get("/events", h.handleEvents)
			r.Get("/ws", h.handleWebSocket)
		})
	})
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Status string     `json:"status"`
	Reply  string     `json:"reply,omitempty"`
	State  chat.State `json:"state"`
}

type messagesResponse struct {
	Messages    []render.MessageView `json:"messages"`
	Suggestions []string             `json:"suggestions"`
}

// lookup resolves the widget named in the path, writing 404 when unknown.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*widgetService.Widget, bool) {
	id := chi.URLParam(r, "widgetID")
	wg, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, widgetService.ErrWidgetNotFound) {
			utils.RespondError(w, http.StatusNotFound, "widget not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return wg, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"widgets": h.registry.List()})
}

// handleCreate 创建组件实例，请求体为配置覆盖项
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	overrides := map[string]any{}
	if err := utils.DecodeJSON(r, &overrides); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wg := h.registry.Create(r.Context(), h.clientOverrides(overrides, ""))
	h.logger.Info().Str("widget", wg.ID()).Msg("widget created")
	utils.RespondJSON(w, http.StatusCreated, wg.View())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, wg.View())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "widgetID")
	if err := h.registry.Delete(id); err != nil {
		utils.RespondError(w, http.StatusNotFound, "widget not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wg.Open()
	utils.RespondJSON(w, http.StatusOK, wg.State())
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wg.Close()
	utils.RespondJSON(w, http.StatusOK, wg.State())
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wg.Toggle()
	utils.RespondJSON(w, http.StatusOK, wg.State())
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, messagesView(wg))
}

// handleSend 提交用户消息。wait=true 时同步等待回复。
// 正在输入或空消息时请求被丢弃，返回 409。
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload sendRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if !wg.Send(payload.Text) {
			utils.RespondError(w, http.StatusConflict, "message dropped: empty text or a reply is pending")
			return
		}
		utils.RespondJSON(w, http.StatusAccepted, sendResponse{Status: "accepted", State: wg.State()})
		return
	}

	reply, accepted, err := wg.SendAndWait(r.Context(), payload.Text)
	if !accepted {
		utils.RespondError(w, http.StatusConflict, "message dropped: empty text or a reply is pending")
		return
	}
	if err != nil {
		// 客户端已断开，回复仍会写入会话记录
		h.logger.Debug().Err(err).Str("widget", wg.ID()).Msg("stopped waiting for reply")
		utils.RespondJSON(w, http.StatusAccepted, sendResponse{Status: "accepted", State: wg.State()})
		return
	}
	utils.RespondJSON(w, http.StatusOK, sendResponse{Status: "replied", Reply: reply, State: wg.State()})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wg.Clear(r.Context())
	utils.RespondJSON(w, http.StatusOK, messagesView(wg))
}

// handleConfig 合并配置覆盖项并重新初始化组件
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}

	overrides := map[string]any{}
	if err := utils.DecodeJSON(r, &overrides); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, wg.UpdateConfig(r.Context(), h.clientOverrides(overrides, wg.ID())))
}

// clientOverrides removes options clients may not set. The reply endpoint
// and its credentials come from server-side configuration only.
func (h *Handler) clientOverrides(overrides map[string]any, widgetID string) map[string]any {
	clean, dropped := config.StripServerOnly(overrides)
	if len(dropped) > 0 {
		h.logger.Warn().Str("widget", widgetID).Strs("options", dropped).Msg("ignoring server-only options from client")
	}
	return clean
}

func messagesView(wg *widgetService.Widget) messagesResponse {
	msgs := wg.Messages()
	views := make([]render.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, render.NewMessageView(m))
	}
	return messagesResponse{Messages: views, Suggestions: wg.Suggestions()}
}
