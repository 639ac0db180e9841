package echo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/supportbot/internal/model/chat"
	"github.com/zhouzirui/supportbot/internal/model/knowledge"
	"github.com/zhouzirui/supportbot/internal/service/resolver"
)

func serve(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, resolver.RemoteReply) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var reply resolver.RemoteReply
	if resp.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &reply))
	}
	return resp, reply
}

func TestEchoAnswersFromKnowledgeBase(t *testing.T) {
	resp, reply := serve(t, New(nil), `{"message":"thanks!","context":[]}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, knowledge.ThanksReply, reply.Reply())
}

func TestEchoUsesProvider(t *testing.T) {
	var seen []chat.Message
	provider := resolver.ProviderFunc(func(_ context.Context, text string, history []chat.Message) (string, error) {
		seen = history
		return "llm:" + text, nil
	})

	_, reply := serve(t, New(provider), `{"message":"hi","context":[{"text":"Hello!","isUser":false,"timestamp":"2026-01-02T03:04:05Z"}]}`)

	assert.Equal(t, "llm:hi", reply.Response)
	require.Len(t, seen, 1)
	assert.Equal(t, "Hello!", seen[0].Text)
}

func TestEchoProviderFailureFallsBack(t *testing.T) {
	provider := resolver.ProviderFunc(func(context.Context, string, []chat.Message) (string, error) {
		return "", errors.New("model offline")
	})

	_, reply := serve(t, New(provider), `{"message":"goodbye"}`)
	assert.Equal(t, knowledge.GoodbyeReply, reply.Response)
}

func TestEchoRejectsEmptyMessage(t *testing.T) {
	resp, _ := serve(t, New(nil), `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, _ = serve(t, New(nil), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
