package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	controller "github.com/metroplan-lab/civitas/pkg/controller/http"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/repository/memory"
	"github.com/metroplan-lab/civitas/pkg/service/contextbuilder"
	"github.com/metroplan-lab/civitas/pkg/service/embedding"
	"github.com/metroplan-lab/civitas/pkg/usecase"
)

const testDimension = 32

func newTestServer(t *testing.T) *controller.Server {
	t.Helper()

	registry, err := model.NewUserRegistry([]*model.User{
		{ID: "citizen1", Name: "Bob", Roles: []types.Role{types.RoleCitizen}},
	})
	gt.NoError(t, err).Required()

	uc := usecase.New(memory.New(testDimension), embedding.NewLocal(testDimension),
		usecase.WithUsers(registry),
		usecase.WithResponder(func(ctx context.Context, in *usecase.ChatInput, turn *contextbuilder.TurnContext) (string, error) {
			return "reply to: " + in.Message, nil
		}),
	)
	return controller.New(uc)
}

func postChat(t *testing.T, srv *controller.Server, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	gt.NoError(t, err).Required()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	t.Run("returns response and session", func(t *testing.T) {
		srv := newTestServer(t)
		rec := postChat(t, srv, map[string]any{
			"user_id": "citizen1",
			"message": "what is transit-oriented development?",
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			SessionID string `json:"session_id"`
			RecordID  string `json:"record_id"`
			Response  string `json:"response"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.Response).Equal("reply to: what is transit-oriented development?")
		gt.True(t, resp.SessionID != "")
		gt.True(t, resp.RecordID != "")
	})

	t.Run("explicit session is honored", func(t *testing.T) {
		srv := newTestServer(t)
		sessionID := types.NewSessionID().String()
		rec := postChat(t, srv, map[string]any{
			"user_id":    "citizen1",
			"session_id": sessionID,
			"message":    "continue",
		})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			SessionID string `json:"session_id"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.SessionID).Equal(sessionID)
	})

	t.Run("unknown user is a bad request", func(t *testing.T) {
		srv := newTestServer(t)
		rec := postChat(t, srv, map[string]any{
			"user_id": "stranger",
			"message": "hello",
		})
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		srv := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestSessionEndpoints(t *testing.T) {
	srv := newTestServer(t)

	first := postChat(t, srv, map[string]any{"user_id": "citizen1", "message": "first question"})
	gt.Value(t, first.Code).Equal(http.StatusOK)
	var chat struct {
		SessionID string `json:"session_id"`
	}
	gt.NoError(t, json.Unmarshal(first.Body.Bytes(), &chat)).Required()

	second := postChat(t, srv, map[string]any{"user_id": "citizen1", "message": "second question"})
	gt.Value(t, second.Code).Equal(http.StatusOK)

	t.Run("list sessions", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/citizen1/sessions", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Sessions []struct {
				SessionID    string `json:"session_id"`
				MessageCount int    `json:"message_count"`
				FirstMessage string `json:"first_message"`
			} `json:"sessions"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Sessions).Length(1)
		gt.Value(t, resp.Sessions[0].SessionID).Equal(chat.SessionID)
		gt.Value(t, resp.Sessions[0].MessageCount).Equal(2)
		gt.Value(t, resp.Sessions[0].FirstMessage).Equal("first question")
	})

	t.Run("session history as JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/citizen1/sessions/"+chat.SessionID+"/history", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Messages []struct {
				Query    string `json:"query"`
				Response string `json:"response"`
			} `json:"messages"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Messages).Length(2)
		gt.Value(t, resp.Messages[0].Query).Equal("first question")
	})

	t.Run("session history as text replay", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/citizen1/sessions/"+chat.SessionID+"/history?format=text", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		body := rec.Body.String()
		gt.String(t, body).Contains("[USER] first question")
		gt.String(t, body).Contains("[ASSISTANT] reply to: first question")
		gt.String(t, body).Contains("[USER] second question")
	})

	t.Run("full user history groups by session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/citizen1/history", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		body := rec.Body.String()
		gt.String(t, body).Contains("[SYSTEM] Session: " + chat.SessionID)
		gt.String(t, body).Contains("[USER] first question")
	})

	t.Run("unknown session yields empty history", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/citizen1/sessions/"+types.NewSessionID().String()+"/history", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Messages []any `json:"messages"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.Array(t, resp.Messages).Length(0)
	})
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	postChat(t, srv, map[string]any{"user_id": "citizen1", "message": "anything"})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var stats model.MemoryStats
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats)).Required()
	gt.Value(t, stats.TotalRecords).Equal(1)
	gt.Value(t, stats.UniqueUsers).Equal(1)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	gt.String(t, rec.Body.String()).Contains("ok")
}
