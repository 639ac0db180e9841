// Package render turns widget changes into events for the presentation layer.
package render

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
)

// Event types.
const (
	EventState   = "state"
	EventMessage = "message"
	EventTyping  = "typing"
	EventReset   = "reset"
	EventConfig  = "config"
	EventRemoved = "removed"
)

// Renderer is what the widget core calls into after every state change.
// Implementations must not block.
type Renderer interface {
	RenderState(widgetID string, state chat.State)
	RenderMessage(widgetID string, msg chat.Message)
	RenderTyping(widgetID string, typing bool)
	RenderReset(widgetID string)
	RenderConfig(widgetID string, opts config.Options)
	// RenderRemoved is the last call for widgetID.
	RenderRemoved(widgetID string)
}

// MessageView is a message plus its HTML rendering.
type MessageView struct {
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageView formats msg for display.
func NewMessageView(msg chat.Message) MessageView {
	return MessageView{
		Text:      msg.Text,
		HTML:      FormatMessage(msg.Text),
		IsUser:    msg.IsUser,
		Timestamp: msg.Timestamp,
	}
}

// Event is one update pushed to subscribers.
type Event struct {
	Type      string          `json:"type"`
	WidgetID  string          `json:"widgetId"`
	State     *chat.State     `json:"state,omitempty"`
	Message   *MessageView    `json:"message,omitempty"`
	Typing    *bool           `json:"typing,omitempty"`
	Options   *config.Options `json:"options,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

const subscriberBuffer = 32

// Broadcaster fans events out to per-widget subscribers. A subscriber that
// falls behind loses events rather than stalling the widget.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[string]map[chan Event]struct{}
	nowFunc func() time.Time
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs:    make(map[string]map[chan Event]struct{}),
		nowFunc: time.Now,
	}
}

// Subscribe registers for events of widgetID. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(widgetID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[widgetID] == nil {
		b.subs[widgetID] = make(map[chan Event]struct{})
	}
	b.subs[widgetID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			// RenderRemoved may have closed it already.
			if _, ok := b.subs[widgetID][ch]; !ok {
				return
			}
			delete(b.subs[widgetID], ch)
			if len(b.subs[widgetID]) == 0 {
				delete(b.subs, widgetID)
			}
			close(ch)
		})
	}
}

// Subscribers reports how many subscribers widgetID has.
func (b *Broadcaster) Subscribers(widgetID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[widgetID])
}

func (b *Broadcaster) publish(ev Event) {
	ev.Timestamp = b.nowFunc().UnixMilli()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.WidgetID] {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("component", "render").Str("widget", ev.WidgetID).Str("event", ev.Type).Msg("subscriber lagging, dropping event")
		}
	}
}

func (b *Broadcaster) RenderState(widgetID string, state chat.State) {
	b.publish(Event{Type: EventState, WidgetID: widgetID, State: &state})
}

func (b *Broadcaster) RenderMessage(widgetID string, msg chat.Message) {
	view := NewMessageView(msg)
	b.publish(Event{Type: EventMessage, WidgetID: widgetID, Message: &view})
}

func (b *Broadcaster) RenderTyping(widgetID string, typing bool) {
	b.publish(Event{Type: EventTyping, WidgetID: widgetID, Typing: &typing})
}

func (b *Broadcaster) RenderReset(widgetID string) {
	b.publish(Event{Type: EventReset, WidgetID: widgetID})
}

func (b *Broadcaster) RenderConfig(widgetID string, opts config.Options) {
	b.publish(Event{Type: EventConfig, WidgetID: widgetID, Options: &opts})
}

// RenderRemoved sends a final removed event to every subscriber of widgetID
// and closes their channels.
func (b *Broadcaster) RenderRemoved(widgetID string) {
	ev := Event{Type: EventRemoved, WidgetID: widgetID, Timestamp: b.nowFunc().UnixMilli()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[widgetID] {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
	}
	delete(b.subs, widgetID)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RenderState(string, chat.State)      {}
func (Nop) RenderMessage(string, chat.Message)  {}
func (Nop) RenderTyping(string, bool)           {}
func (Nop) RenderReset(string)                  {}
func (Nop) RenderConfig(string, config.Options) {}
func (Nop) RenderRemoved(string)                {}
