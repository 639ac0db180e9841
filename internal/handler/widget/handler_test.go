package widget

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
	"github.com/zhouzirui/supportbot/internal/render"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
	widgetService "github.com/zhouzirui/supportbot/internal/service/widget"
	"github.com/zhouzirui/supportbot/internal/storage"
)

type testEnv struct {
	router   *chi.Mux
	registry *widgetService.Registry
	events   *render.Broadcaster
}

func setup(t *testing.T, provider resolver.ResponseProvider) *testEnv {
	t.Helper()
	events := render.NewBroadcaster()
	base := config.Resolve(map[string]any{
		"responseDelay":  0,
		"responseJitter": 0,
		"knowledgeBase":  map[string]any{"default": []any{"X"}},
	})
	registry := widgetService.NewRegistry(context.Background(), base, widgetService.Deps{
		Provider: provider,
		Renderer: events,
		Storage:  storage.NewMemoryBackend(),
	})
	t.Cleanup(registry.Shutdown)

	r := chi.NewRouter()
	New(registry, events).RegisterRoutes(r)
	return &testEnv{router: r, registry: registry, events: events}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func TestCreateWidget(t *testing.T) {
	env := setup(t, nil)

	resp := env.do(t, http.MethodPost, "/widgets", `{"title":"Acme Help","autoOpen":false}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	view := decode[widgetService.View](t, resp)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Acme Help", view.Options.Title)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, view.Options.WelcomeMessage, view.Messages[0].Text)

	list := decode[map[string][]string](t, env.do(t, http.MethodGet, "/widgets", ""))
	assert.Equal(t, []string{view.ID}, list["widgets"])
}

func TestCreateWidgetInvalidBody(t *testing.T) {
	env := setup(t, nil)
	resp := env.do(t, http.MethodPost, "/widgets", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownWidget(t *testing.T) {
	env := setup(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/widgets/nope"},
		{http.MethodPost, "/widgets/nope/open"},
		{http.MethodPost, "/widgets/nope/messages"},
		{http.MethodDelete, "/widgets/nope"},
		{http.MethodGet, "/widgets/nope/events"},
	} {
		resp := env.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, resp.Code, "%s %s", tc.method, tc.path)
	}
}

func TestOpenCloseToggle(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	state := decode[chat.State](t, env.do(t, http.MethodPost, "/widgets/w/open", ""))
	assert.True(t, state.Open)
	assert.False(t, state.BadgeVisible)

	state = decode[chat.State](t, env.do(t, http.MethodPost, "/widgets/w/toggle", ""))
	assert.False(t, state.Open)

	state = decode[chat.State](t, env.do(t, http.MethodPost, "/widgets/w/toggle", ""))
	assert.True(t, state.Open)

	state = decode[chat.State](t, env.do(t, http.MethodPost, "/widgets/w/close", ""))
	assert.False(t, state.Open)
}

func TestSendAndWait(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	resp := env.do(t, http.MethodPost, "/widgets/w/messages?wait=true", `{"text":"zzz no keyword match"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[sendResponse](t, resp)
	assert.Equal(t, "replied", body.Status)
	assert.Equal(t, "X", body.Reply)
	assert.False(t, body.State.Typing)

	msgs := decode[messagesResponse](t, env.do(t, http.MethodGet, "/widgets/w/messages", ""))
	require.Len(t, msgs.Messages, 3)
	assert.True(t, msgs.Messages[1].IsUser)
	assert.Equal(t, "X", msgs.Messages[2].Text)
	assert.Empty(t, msgs.Suggestions)
}

func TestSendAsyncAndConflict(t *testing.T) {
	release := make(chan struct{})
	provider := resolver.ProviderFunc(func(ctx context.Context, text string, _ []chat.Message) (string, error) {
		<-release
		return "done", nil
	})
	env := setup(t, provider)
	wg := env.registry.CreateWithID("w", nil)

	resp := env.do(t, http.MethodPost, "/widgets/w/messages", `{"text":"first"}`)
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.True(t, decode[sendResponse](t, resp).State.Typing)

	resp = env.do(t, http.MethodPost, "/widgets/w/messages", `{"text":"second"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	close(release)
	wg.Wait()
	assert.Len(t, wg.Messages(), 3)
}

func TestSendBlankIsConflict(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	resp := env.do(t, http.MethodPost, "/widgets/w/messages?wait=true", `{"text":"   "}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestMessagesIncludeHTML(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", map[string]any{"welcomeMessage": "See *docs* at https://example.com"})

	msgs := decode[messagesResponse](t, env.do(t, http.MethodGet, "/widgets/w/messages", ""))
	require.Len(t, msgs.Messages, 1)
	assert.Contains(t, msgs.Messages[0].HTML, "<strong>docs</strong>")
	assert.Contains(t, msgs.Messages[0].HTML, `href="https://example.com"`)
}

func TestClear(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)
	env.do(t, http.MethodPost, "/widgets/w/messages?wait=true", `{"text":"hello"}`)

	msgs := decode[messagesResponse](t, env.do(t, http.MethodDelete, "/widgets/w/messages", ""))
	require.Len(t, msgs.Messages, 1)
	assert.False(t, msgs.Messages[0].IsUser)
}

func TestPatchConfig(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	resp := env.do(t, http.MethodPatch, "/widgets/w/config", `{"knowledgeBase":{"default":["Y"]},"position":"sideways"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	opts := decode[config.Options](t, resp)
	assert.Equal(t, config.BottomRight, opts.Position)
	assert.Equal(t, []string{"Y"}, opts.KnowledgeBase["default"])

	body := decode[sendResponse](t, env.do(t, http.MethodPost, "/widgets/w/messages?wait=true", `{"text":"zzz"}`))
	assert.Equal(t, "Y", body.Reply)
}

func TestClientCannotSetRemoteEndpoint(t *testing.T) {
	var hits atomic.Int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"response":"leaked"}`))
	}))
	defer remote.Close()

	env := setup(t, nil)
	body := `{"apiEndpoint":"` + remote.URL + `","apiKey":"k","apiHeaders":{"X-A":"1"}}`

	resp := env.do(t, http.MethodPost, "/widgets", body)
	require.Equal(t, http.StatusCreated, resp.Code)
	view := decode[widgetService.View](t, resp)
	assert.Empty(t, view.Options.APIEndpoint)

	resp = env.do(t, http.MethodPatch, "/widgets/"+view.ID+"/config", body)
	require.Equal(t, http.StatusOK, resp.Code)
	opts := decode[config.Options](t, resp)
	assert.Empty(t, opts.APIEndpoint)
	assert.Empty(t, opts.APIKey)
	assert.Empty(t, opts.APIHeaders)

	reply := decode[sendResponse](t, env.do(t, http.MethodPost, "/widgets/"+view.ID+"/messages?wait=true", `{"text":"zzz"}`))
	assert.Equal(t, "X", reply.Reply)
	assert.Zero(t, hits.Load())
}

func TestDeleteWidget(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/widgets/w", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/widgets/w", "").Code)
}

func TestEventStream(t *testing.T) {
	env := setup(t, nil)
	wg := env.registry.CreateWithID("w", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/widgets/w/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		return ""
	}

	require.Equal(t, SnapshotEvent, next())
	require.Eventually(t, func() bool { return env.events.Subscribers("w") == 1 }, time.Second, 10*time.Millisecond)

	wg.Open()
	assert.Equal(t, render.EventState, next())
}

func TestEventStreamEndsOnDelete(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/widgets/w/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var names []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		lines := bufio.NewScanner(resp.Body)
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "event: ") {
				names = append(names, strings.TrimPrefix(line, "event: "))
			}
		}
	}()

	require.Eventually(t, func() bool { return env.events.Subscribers("w") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, env.registry.Delete("w"))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("event stream stayed open after delete")
	}
	require.NotEmpty(t, names)
	assert.Equal(t, SnapshotEvent, names[0])
	assert.Equal(t, render.EventRemoved, names[len(names)-1])
}

func TestWebSocketClosesOnDelete(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/widgets/w/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Reply
	require.NoError(t, conn.ReadJSON(&first))
	require.Eventually(t, func() bool { return env.events.Subscribers("w") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, env.registry.Delete("w"))

	var last render.Event
	for {
		var ev render.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
			break
		}
		last = ev
	}
	assert.Equal(t, render.EventRemoved, last.Type)
}

func TestWebSocket(t *testing.T) {
	env := setup(t, nil)
	env.registry.CreateWithID("w", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/widgets/w/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Reply
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, SnapshotEvent, first.Type)
	require.NotNil(t, first.Widget)
	assert.Equal(t, "w", first.Widget.ID)

	require.NoError(t, conn.WriteJSON(Command{Type: "send", Text: "zzz"}))

	var reply *render.MessageView
	for reply == nil {
		var ev render.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == render.EventMessage && ev.Message != nil && !ev.Message.IsUser {
			reply = ev.Message
		}
	}
	assert.Equal(t, "X", reply.Text)

	require.NoError(t, conn.WriteJSON(Command{Type: "bogus"}))
	for {
		var msg Reply
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "error" {
			assert.Contains(t, msg.Error, "unsupported command")
			break
		}
	}
}
