package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/agent/tool"
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// searchConversationsTool searches the user's past exchanges by semantic
// similarity, across all sessions.
type searchConversationsTool struct {
	repo     interfaces.Repository
	embedder interfaces.Embedder
	userID   types.UserID
}

func (t *searchConversationsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__search_conversations",
		Description: "Search the user's past conversations by semantic similarity for the given query",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Search query text",
				Required:    true,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of results to return (default: 5)",
				Required:    false,
			},
		},
	}
}

func (t *searchConversationsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Update(ctx, fmt.Sprintf("Searching past conversations: %s", query))

	limit := 5
	if v, err := extractInt64(args, "limit"); err == nil && v > 0 {
		limit = int(v)
	}

	embedding, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding for search query",
			goerr.V("query", query),
		)
	}

	results, err := t.repo.Conversation().QuerySimilar(ctx, t.userID, embedding, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search conversations by embedding",
			goerr.V("userID", t.userID),
			goerr.V("limit", limit),
		)
	}

	items := make([]map[string]any, len(results))
	for i, r := range results {
		items[i] = map[string]any{
			"session_id": r.Record.SessionID.String(),
			"query":      r.Record.UserQuery,
			"response":   r.Record.AssistantResponse,
			"similarity": r.Similarity,
			"created_at": r.Record.CreatedAt,
		}
	}
	return map[string]any{"conversations": items, "count": len(items)}, nil
}

// sessionHistoryTool replays one session in chronological order.
type sessionHistoryTool struct {
	repo   interfaces.Repository
	userID types.UserID
}

func (t *sessionHistoryTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__get_session_history",
		Description: "Get the full chronological history of one conversation session",
		Parameters: map[string]*gollem.Parameter{
			"session_id": {
				Type:        gollem.TypeString,
				Description: "The ID of the session to replay",
				Required:    true,
			},
		},
	}
}

func (t *sessionHistoryTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	records, err := t.repo.Conversation().GetSessionHistory(ctx, t.userID, types.SessionID(sessionID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session history",
			goerr.V("sessionID", sessionID),
		)
	}

	items := make([]map[string]any, len(records))
	for i, r := range records {
		items[i] = map[string]any{
			"query":      r.UserQuery,
			"response":   r.AssistantResponse,
			"created_at": r.CreatedAt,
		}
	}
	return map[string]any{"messages": items, "count": len(items)}, nil
}

// listSessionsTool lists the user's sessions, most recent first.
type listSessionsTool struct {
	repo   interfaces.Repository
	userID types.UserID
}

func (t *listSessionsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "memory__list_sessions",
		Description: "List the user's conversation sessions with first and last messages",
		Parameters:  map[string]*gollem.Parameter{},
	}
}

func (t *listSessionsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	summaries, err := t.repo.Conversation().ListSessions(ctx, t.userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions",
			goerr.V("userID", t.userID),
		)
	}

	items := make([]map[string]any, len(summaries))
	for i, s := range summaries {
		items[i] = map[string]any{
			"session_id":    s.SessionID.String(),
			"message_count": s.MessageCount,
			"first_message": s.FirstMessage,
			"last_message":  s.LastMessage,
			"last_at":       s.LastTimestamp,
		}
	}
	return map[string]any{"sessions": items, "count": len(items)}, nil
}

// extractInt64 reads an integer argument that may arrive as several numeric
// types depending on the LLM provider's JSON decoding.
func extractInt64(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument: %s", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("argument %s is not a number", key)
	}
}
