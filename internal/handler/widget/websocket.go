package widget

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/supportbot/internal/render"
	widgetService "github.com/zhouzirui/supportbot/internal/service/widget"
	"github.com/zhouzirui/supportbot/pkg/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// Command 客户端通过WebSocket发送的指令
type Command struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// Reply 服务端发送的非渲染事件消息：快照与错误
type Reply struct {
	Type      string              `json:"type"`
	Widget    *widgetService.View `json:"widget,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// handleWebSocket 双向通道：推送渲染事件，接收 send/open/close/toggle/clear/config 指令
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wg, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("widget", wg.ID()).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := h.logger.With().Str("widget", wg.ID()).Str("transport", "ws").Logger()
	logger.Debug().Msg("connection opened")

	events, unsubscribe := h.events.Subscribe(wg.ID())
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan Reply, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, events, out, logger)
		cancel()
	}()
	defer func() { <-writerDone }()
	defer cancel()

	snapshot(ctx, out, wg)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			logger.Debug().Msg("connection closed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msg := h.dispatch(ctx, wg, cmd); msg != "" {
			enqueue(ctx, out, Reply{Type: "error", Error: msg, Timestamp: time.Now().UnixMilli()})
		}
		if cmd.Type == "snapshot" {
			snapshot(ctx, out, wg)
		}
	}
}

// dispatch runs one command and returns an error message for the client, or "".
func (h *Handler) dispatch(ctx context.Context, wg *widgetService.Widget, cmd Command) string {
	switch cmd.Type {
	case "send":
		if !wg.Send(cmd.Text) {
			return "message dropped: empty text or a reply is pending"
		}
	case "open":
		wg.Open()
	case "close":
		wg.Close()
	case "toggle":
		wg.Toggle()
	case "clear":
		wg.Clear(ctx)
	case "config":
		wg.UpdateConfig(ctx, h.clientOverrides(cmd.Options, wg.ID()))
	case "snapshot":
	default:
		return "unsupported command: " + cmd.Type
	}
	return ""
}

// writeLoop is the connection's only writer.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan render.Event, out <-chan Reply, logger zerolog.Logger) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	write := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(v); err != nil {
			logger.Debug().Err(err).Msg("write failed")
			conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case ev, open := <-events:
			if !open {
				// widget deleted; the removed event has already been written
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "widget removed"),
					time.Now().Add(time.Second))
				conn.Close()
				return
			}
			if !write(ev) {
				return
			}
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func snapshot(ctx context.Context, out chan<- Reply, wg *widgetService.Widget) {
	view := wg.View()
	enqueue(ctx, out, Reply{Type: SnapshotEvent, Widget: &view, Timestamp: time.Now().UnixMilli()})
}

func enqueue(ctx context.Context, out chan<- Reply, msg Reply) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}
