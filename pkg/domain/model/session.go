package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// RenderHistory formats records as alternating labeled turns for text-based
// replay:
//
//	[USER] <query>
//	[ASSISTANT] <response>
//
// The input is expected in chronological order.
func RenderHistory(records []*ConversationRecord) string {
	if len(records) == 0 {
		return ""
	}
	parts := make([]string, 0, len(records)*2)
	for _, rec := range records {
		parts = append(parts, "[USER] "+rec.UserQuery)
		parts = append(parts, "[ASSISTANT] "+rec.AssistantResponse)
	}
	return strings.Join(parts, "\n")
}

// RenderUserHistory formats a user's complete history grouped by session,
// each group introduced by a [SYSTEM] line naming the session.
func RenderUserHistory(records []*ConversationRecord) string {
	if len(records) == 0 {
		return ""
	}

	bySession := make(map[types.SessionID][]*ConversationRecord)
	var order []types.SessionID
	for _, rec := range records {
		if _, ok := bySession[rec.SessionID]; !ok {
			order = append(order, rec.SessionID)
		}
		bySession[rec.SessionID] = append(bySession[rec.SessionID], rec)
	}

	var parts []string
	for _, id := range order {
		parts = append(parts, fmt.Sprintf("[SYSTEM] Session: %s", id))
		for _, rec := range bySession[id] {
			parts = append(parts, "[USER] "+rec.UserQuery)
			parts = append(parts, "[ASSISTANT] "+rec.AssistantResponse)
		}
	}
	return strings.Join(parts, "\n")
}

// SessionSummary is the derived per-session aggregate used for session
// listings. It is computed on demand by grouping ConversationRecords by
// (user, session); nothing here is stored independently.
type SessionSummary struct {
	SessionID      types.SessionID
	MessageCount   int
	FirstMessage   string
	LastMessage    string
	FirstTimestamp time.Time
	LastTimestamp  time.Time
}

// SummarizeSessions groups records by session ID and computes the aggregates.
// The input order does not matter; summaries are keyed by earliest/latest
// CreatedAt. Callers sort the result as needed.
func SummarizeSessions(records []*ConversationRecord) []*SessionSummary {
	byID := make(map[types.SessionID]*SessionSummary)

	var order []types.SessionID
	for _, rec := range records {
		s, ok := byID[rec.SessionID]
		if !ok {
			s = &SessionSummary{
				SessionID:      rec.SessionID,
				FirstMessage:   rec.UserQuery,
				LastMessage:    rec.UserQuery,
				FirstTimestamp: rec.CreatedAt,
				LastTimestamp:  rec.CreatedAt,
			}
			byID[rec.SessionID] = s
			order = append(order, rec.SessionID)
		}
		s.MessageCount++
		if rec.CreatedAt.Before(s.FirstTimestamp) {
			s.FirstTimestamp = rec.CreatedAt
			s.FirstMessage = rec.UserQuery
		}
		if !rec.CreatedAt.Before(s.LastTimestamp) {
			s.LastTimestamp = rec.CreatedAt
			s.LastMessage = rec.UserQuery
		}
	}

	result := make([]*SessionSummary, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}
	return result
}
