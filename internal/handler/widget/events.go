package widget

import (
	"net/http"
	"time"

	"github.com/zhouzirui/supportbot/pkg/utils"
)

// heartbeatInterval keeps idle event streams alive through proxies.
const heartbeatInterval = 15 * time.Second

// SnapshotEvent is the first event on every stream: the full widget view.
const SnapshotEvent = "snapshot"

// handleEvents 以 Server-Sent Events 推送组件渲染事件
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.events.Subscribe(wg.ID())
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With().Str("widget", wg.ID()).Str("transport", "sse").Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	if err := utils.SendSSEEvent(w, flusher, SnapshotEvent, wg.View()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
				logger.Debug().Err(err).Msg("event write failed")
				return
			}
		}
	}
}
