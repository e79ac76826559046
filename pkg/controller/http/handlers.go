package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/usecase"
	"github.com/metroplan-lab/civitas/pkg/utils/errutil"
	"github.com/metroplan-lab/civitas/pkg/utils/safe"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	safe.Write(r.Context(), w, data)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	RecordID  string `json:"record_id"`
	Response  string `json:"response"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(r.Context(), w,
			goerr.Wrap(types.ErrInvalidArgument, "invalid request body", goerr.V("cause", err.Error())),
			http.StatusBadRequest)
		return
	}

	out, err := s.uc.Chat(r.Context(), &usecase.ChatInput{
		UserID:    types.UserID(req.UserID),
		SessionID: types.SessionID(req.SessionID),
		Message:   req.Message,
	})
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	writeJSON(w, r, chatResponse{
		SessionID: out.SessionID.String(),
		RecordID:  out.RecordID.String(),
		Response:  out.Response,
		Degraded:  out.Degraded,
	})
}

type sessionResponse struct {
	SessionID      string    `json:"session_id"`
	MessageCount   int       `json:"message_count"`
	FirstMessage   string    `json:"first_message"`
	LastMessage    string    `json:"last_message"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(chi.URLParam(r, "userID"))

	summaries, err := s.uc.ListSessions(r.Context(), userID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	resp := struct {
		Sessions []sessionResponse `json:"sessions"`
	}{
		Sessions: make([]sessionResponse, len(summaries)),
	}
	for i, sum := range summaries {
		resp.Sessions[i] = sessionResponse{
			SessionID:      sum.SessionID.String(),
			MessageCount:   sum.MessageCount,
			FirstMessage:   sum.FirstMessage,
			LastMessage:    sum.LastMessage,
			FirstTimestamp: sum.FirstTimestamp,
			LastTimestamp:  sum.LastTimestamp,
		}
	}
	writeJSON(w, r, resp)
}

type historyRecord struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// handleSessionHistory replays one session. The default response is JSON;
// ?format=text returns the labeled [USER]/[ASSISTANT] replay for callers
// that do not want structured records.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(chi.URLParam(r, "userID"))
	sessionID := types.SessionID(chi.URLParam(r, "sessionID"))

	records, err := s.uc.SessionHistory(r.Context(), userID, sessionID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		safe.Write(r.Context(), w, []byte(model.RenderHistory(records)))
		return
	}

	resp := struct {
		SessionID string          `json:"session_id"`
		Messages  []historyRecord `json:"messages"`
	}{
		SessionID: sessionID.String(),
		Messages:  make([]historyRecord, len(records)),
	}
	for i, rec := range records {
		resp.Messages[i] = historyRecord{
			Query:     rec.UserQuery,
			Response:  rec.AssistantResponse,
			CreatedAt: rec.CreatedAt,
		}
	}
	writeJSON(w, r, resp)
}

// handleUserHistory returns the user's complete history across sessions as a
// labeled text replay grouped by session.
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID := types.UserID(chi.URLParam(r, "userID"))

	records, err := s.uc.UserHistory(r.Context(), userID)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	safe.Write(r.Context(), w, []byte(model.RenderUserHistory(records)))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.uc.Stats(r.Context())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
		return
	}
	writeJSON(w, r, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]string{"status": "ok"})
}
