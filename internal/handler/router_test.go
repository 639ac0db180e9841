package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/render"
	widgetService "github.com/zhouzirui/supportbot/internal/service/widget"
)

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	events := render.NewBroadcaster()
	registry := widgetService.NewRegistry(context.Background(), config.DefaultOptions(), widgetService.Deps{Renderer: events})
	t.Cleanup(registry.Shutdown)
	return NewRouter(registry, events, opts)
}

func TestRouterHealth(t *testing.T) {
	r := newTestRouter(t, Options{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok","widgets":0}`, resp.Body.String())
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterEchoIsOptional(t *testing.T) {
	body := []byte(`{"message":"what does it cost?"}`)

	off := newTestRouter(t, Options{})
	resp := httptest.NewRecorder()
	off.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/echo", bytes.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	on := newTestRouter(t, Options{Echo: true})
	resp = httptest.NewRecorder()
	on.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/echo", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"response"`)
}

func TestRouterMountsWidgets(t *testing.T) {
	r := newTestRouter(t, Options{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/widgets", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusCreated, resp.Code)
}
