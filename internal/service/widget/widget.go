package widget

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/analysis/keyword"
	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
	"github.com/zhouzirui/supportbot/internal/render"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
	"github.com/zhouzirui/supportbot/internal/service/transcript"
	"github.com/zhouzirui/supportbot/internal/storage"
)

// ApologyReply is appended when resolving a reply fails unexpectedly.
const ApologyReply = "I apologize, but I'm having trouble processing that right now. Please try again."

// autoOpenDelay is how long after construction an autoOpen widget opens.
const autoOpenDelay = 500 * time.Millisecond

// Deps are the capabilities a widget is built with. Nil fields get no-op or
// logging defaults. Rand must be safe for concurrent use if it is shared.
type Deps struct {
	Provider   resolver.ResponseProvider
	Errors     resolver.ErrorSink
	Lifecycle  LifecycleSink
	Renderer   render.Renderer
	Storage    storage.Backend
	HTTPClient *http.Client
	Rand       keyword.Rand
	Clock      resolver.Clock
}

// View is the externally visible state of a widget.
type View struct {
	ID          string         `json:"id"`
	State       chat.State     `json:"state"`
	Suggestions []string       `json:"suggestions"`
	Messages    []chat.Message `json:"messages"`
	Options     config.Options `json:"options"`
}

// Widget is one chat widget instance: session state, transcript and
// response resolution. At most one reply is being resolved at any time.
type Widget struct {
	id   string
	deps Deps

	// transcriptMu serializes appends, resets and transcript swaps.
	// Acquire it before mu.
	transcriptMu sync.Mutex

	mu                sync.Mutex
	opts              config.Options
	session           *chat.Session
	transcript        *transcript.Store
	resolver          *resolver.Resolver
	suggestionsHidden bool
	autoOpen          *time.Timer

	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

// New constructs a widget, restores its transcript and seeds the welcome
// message when the transcript is empty. ctx bounds background work; cancel it
// (or call Shutdown) when the widget is discarded.
func New(ctx context.Context, id string, opts config.Options, deps Deps) *Widget {
	if deps.Renderer == nil {
		deps.Renderer = render.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = resolver.RealClock
	}
	sink := NewLogSink(id)
	if deps.Lifecycle == nil {
		deps.Lifecycle = sink
	}
	if deps.Errors == nil {
		deps.Errors = sink
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &Widget{
		id:      id,
		deps:    deps,
		opts:    opts,
		session: chat.NewSession(opts.ShowBadge),
		ctx:     wctx,
		cancel:  cancel,
		logger:  log.With().Str("component", "widget").Str("widget", id).Logger(),
	}
	w.resolver = w.buildResolver(opts)
	w.transcript = w.buildTranscript(opts)

	w.transcript.LoadInitial(wctx)
	if w.transcript.CountUser() > 0 {
		w.suggestionsHidden = true
	}
	if w.transcript.Len() == 0 {
		w.addMessage(wctx, chat.NewBotMessage(opts.WelcomeMessage, w.now()))
	}

	deps.Renderer.RenderConfig(id, opts)
	deps.Renderer.RenderState(id, w.session.Snapshot())

	if opts.AutoOpen {
		w.scheduleAutoOpen()
	}
	return w
}

// ID returns the widget's identifier.
func (w *Widget) ID() string { return w.id }

func (w *Widget) now() time.Time { return w.deps.Clock.Now().UTC() }

func (w *Widget) buildResolver(opts config.Options) *resolver.Resolver {
	return resolver.New(opts, resolver.Deps{
		Provider:   w.deps.Provider,
		Errors:     w.deps.Errors,
		HTTPClient: w.deps.HTTPClient,
		Rand:       w.deps.Rand,
		Clock:      w.deps.Clock,
	})
}

func (w *Widget) buildTranscript(opts config.Options) *transcript.Store {
	return transcript.NewStore(w.deps.Storage, transcriptSettings(w.id, opts))
}

func transcriptSettings(id string, opts config.Options) transcript.Settings {
	return transcript.Settings{
		Persist:     opts.EnableLocalStorage,
		Key:         StorageKey(opts.StorageKey, id),
		MaxMessages: opts.MaxMessages,
	}
}

// StorageKey namespaces the configured key by widget id so instances sharing
// a backend never overwrite each other.
func StorageKey(base, id string) string {
	if id == "" {
		return base
	}
	return base + ":" + id
}

func (w *Widget) scheduleAutoOpen() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.autoOpen != nil {
		w.autoOpen.Stop()
	}
	w.autoOpen = time.AfterFunc(autoOpenDelay, func() {
		if w.ctx.Err() != nil {
			return
		}
		w.Open()
	})
}

// Open shows the window and hides the unread badge.
func (w *Widget) Open() {
	w.mu.Lock()
	w.session.Open()
	state := w.session.Snapshot()
	w.mu.Unlock()

	w.deps.Renderer.RenderState(w.id, state)
	w.notify("onOpen", w.deps.Lifecycle.OnOpen)
}

// Close hides the window.
func (w *Widget) Close() {
	w.mu.Lock()
	w.session.Close()
	state := w.session.Snapshot()
	w.mu.Unlock()

	w.deps.Renderer.RenderState(w.id, state)
	w.notify("onClose", w.deps.Lifecycle.OnClose)
}

// Toggle opens a closed window and closes an open one. It reports the new
// open state.
func (w *Widget) Toggle() bool {
	w.mu.Lock()
	open := w.session.Toggle()
	state := w.session.Snapshot()
	w.mu.Unlock()

	w.deps.Renderer.RenderState(w.id, state)
	if open {
		w.notify("onOpen", w.deps.Lifecycle.OnOpen)
	} else {
		w.notify("onClose", w.deps.Lifecycle.OnClose)
	}
	return open
}

// Send submits text. It returns false, changing nothing, when text is blank,
// a previous reply is still being resolved or the widget has shut down. Otherwise the user message is
// appended before Send returns and the reply follows asynchronously.
func (w *Widget) Send(text string) bool {
	_, ok := w.send(text)
	return ok
}

// SendAndWait is Send followed by waiting for the reply. ctx only bounds the
// wait; the reply is still appended if ctx ends first.
func (w *Widget) SendAndWait(ctx context.Context, text string) (string, bool, error) {
	replies, ok := w.send(text)
	if !ok {
		return "", false, nil
	}
	select {
	case reply := <-replies:
		return reply, true, nil
	case <-ctx.Done():
		return "", true, ctx.Err()
	}
}

func (w *Widget) send(text string) (<-chan string, bool) {
	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return nil, false
	}
	trimmed, ok := w.session.BeginSend(text)
	if !ok {
		w.mu.Unlock()
		return nil, false
	}
	w.suggestionsHidden = true
	res := w.resolver
	state := w.session.Snapshot()
	w.inflight.Add(1)
	w.mu.Unlock()

	w.addMessage(w.ctx, chat.NewUserMessage(trimmed, w.now()))
	w.deps.Renderer.RenderTyping(w.id, true)
	w.deps.Renderer.RenderState(w.id, state)

	replies := make(chan string, 1)
	go w.respond(res, trimmed, replies)
	return replies, true
}

// respond resolves and appends the reply, then releases the typing flag on
// every exit path.
func (w *Widget) respond(res *resolver.Resolver, text string, replies chan<- string) {
	defer w.inflight.Done()
	defer w.endSend()

	reply := w.resolve(res, text)
	w.addMessage(w.ctx, chat.NewBotMessage(reply, w.now()))
	replies <- reply
}

func (w *Widget) resolve(res *resolver.Resolver, text string) (reply string) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error().Interface("panic", p).Msg("reply resolution panicked")
			reply = ApologyReply
		}
	}()
	return res.Resolve(w.ctx, text, w.store().Messages())
}

func (w *Widget) store() *transcript.Store {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transcript
}

func (w *Widget) endSend() {
	w.mu.Lock()
	w.session.EndSend()
	state := w.session.Snapshot()
	w.mu.Unlock()

	w.deps.Renderer.RenderTyping(w.id, false)
	w.deps.Renderer.RenderState(w.id, state)
}

func (w *Widget) addMessage(ctx context.Context, msg chat.Message) {
	w.transcriptMu.Lock()
	w.store().Append(ctx, msg)
	w.transcriptMu.Unlock()

	w.deps.Renderer.RenderMessage(w.id, msg)
	w.notify("onMessage", func() { w.deps.Lifecycle.OnMessage(msg.Text, msg.IsUser) })
}

// Clear empties the transcript, removes persisted state and re-seeds the
// welcome message.
func (w *Widget) Clear(ctx context.Context) {
	w.transcriptMu.Lock()
	w.mu.Lock()
	store := w.transcript
	welcome := chat.NewBotMessage(w.opts.WelcomeMessage, w.now())
	w.mu.Unlock()

	store.Reset(ctx, welcome)
	w.transcriptMu.Unlock()

	w.deps.Renderer.RenderReset(w.id)
	w.deps.Renderer.RenderMessage(w.id, welcome)
	w.notify("onMessage", func() { w.deps.Lifecycle.OnMessage(welcome.Text, false) })
}

// UpdateConfig merges overrides into the current options and re-initializes
// the widget around the new snapshot. A changed storage key reloads the
// transcript persisted under it, keeping the current messages when nothing
// is stored there.
func (w *Widget) UpdateConfig(ctx context.Context, overrides map[string]any) config.Options {
	w.transcriptMu.Lock()
	defer w.transcriptMu.Unlock()

	w.mu.Lock()
	prev := w.opts
	next := prev.Merge(overrides)
	w.opts = next
	w.resolver = w.buildResolver(next)

	var reloaded *transcript.Store
	if transcriptSettings(w.id, prev) != transcriptSettings(w.id, next) {
		reloaded = w.buildTranscript(next)
	}
	current := w.transcript
	state := w.session.Snapshot()
	w.mu.Unlock()

	if reloaded != nil {
		reloaded.LoadInitial(ctx)
		if reloaded.Len() == 0 {
			for _, msg := range current.Messages() {
				reloaded.Append(ctx, msg)
			}
		}
		w.mu.Lock()
		w.transcript = reloaded
		w.mu.Unlock()
	}

	w.deps.Renderer.RenderConfig(w.id, next)
	w.deps.Renderer.RenderState(w.id, state)

	if next.AutoOpen && !state.Open {
		w.scheduleAutoOpen()
	}
	return next
}

// Options returns the current configuration snapshot.
func (w *Widget) Options() config.Options {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opts
}

// State returns the current session state.
func (w *Widget) State() chat.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.Snapshot()
}

// Messages returns the transcript.
func (w *Widget) Messages() []chat.Message {
	return w.store().Messages()
}

// Suggestions returns the suggestion chips to show; empty once the user has
// sent something or when suggestions are disabled.
func (w *Widget) Suggestions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.suggestionsHidden || !w.opts.ShowSuggestions {
		return []string{}
	}
	return append([]string{}, w.opts.Suggestions...)
}

// View collects everything a presentation layer needs to draw the widget.
func (w *Widget) View() View {
	return View{
		ID:          w.id,
		State:       w.State(),
		Suggestions: w.Suggestions(),
		Messages:    w.Messages(),
		Options:     w.Options(),
	}
}

// Wait blocks until no reply is being resolved.
func (w *Widget) Wait() {
	w.inflight.Wait()
}

// Shutdown stops timers, cuts pending reply delays short and waits for the
// in-flight reply to be appended. Later sends are rejected.
func (w *Widget) Shutdown() {
	w.mu.Lock()
	if w.autoOpen != nil {
		w.autoOpen.Stop()
	}
	w.cancel()
	w.mu.Unlock()

	w.inflight.Wait()
}

// notify runs a host callback, containing panics so they can't take the
// widget down.
func (w *Widget) notify(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error().Interface("panic", p).Str("callback", name).Msg("lifecycle callback panicked")
		}
	}()
	fn()
}
