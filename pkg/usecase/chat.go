package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/agent/tool/core"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/contextbuilder"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

//go:embed prompt/chat_system.md
var chatSystemPromptTmpl string

var chatSystemPrompt = template.Must(template.New("chat_system").Parse(chatSystemPromptTmpl))

const (
	// putRetryAttempts is how many times a failed record write is retried
	// before the turn is reported as failed.
	putRetryAttempts = 3

	putRetryBackoff = 200 * time.Millisecond
)

// ChatInput is one user turn.
type ChatInput struct {
	UserID types.UserID
	// SessionID continues an existing session when set. When empty, the
	// user's sticky session is reused or a new one is minted.
	SessionID types.SessionID
	Message   string
}

// ChatOutput is the completed turn.
type ChatOutput struct {
	SessionID types.SessionID
	RecordID  types.RecordID
	Response  string

	// Degraded is set when embedding generation failed. The exchange is
	// stored without a vector and will not appear in similarity search.
	Degraded bool
}

// Chat runs one conversational turn: resolve the session, assemble memory
// context, generate the response, and durably record the exchange.
func (uc *UseCases) Chat(ctx context.Context, in *ChatInput) (*ChatOutput, error) {
	logger := logging.From(ctx)

	if err := in.UserID.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "message must not be empty")
	}

	user := uc.registry.Get(in.UserID)
	if uc.registry != nil && user == nil {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "unknown user",
			goerr.V("userID", in.UserID),
		)
	}

	sessionID := uc.sessions.resolve(in.UserID, in.SessionID)

	turn, err := uc.builder.Build(ctx, in.UserID, sessionID, in.Message)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to assemble turn context")
	}
	if turn.Degraded {
		logger.Warn("similarity retrieval degraded for this turn", "userID", in.UserID)
	}

	response, err := uc.responder(ctx, in, turn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate response")
	}

	rec := &model.ConversationRecord{
		UserID:            in.UserID,
		SessionID:         sessionID,
		UserQuery:         in.Message,
		AssistantResponse: response,
	}

	degraded := turn.Degraded
	embedding, err := uc.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		// The exchange is still recorded; it just stays out of the
		// similarity index.
		logger.Warn("failed to embed exchange, storing unindexed",
			"userID", in.UserID,
			"error", err,
		)
		degraded = true
	} else {
		rec.Embedding = embedding
	}

	stored, err := uc.putWithRetry(ctx, rec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record exchange",
			goerr.V("sessionID", sessionID),
		)
	}

	return &ChatOutput{
		SessionID: sessionID,
		RecordID:  stored.ID,
		Response:  response,
		Degraded:  degraded,
	}, nil
}

// putWithRetry retries transient storage failures with a flat backoff. Other
// failures are returned immediately.
func (uc *UseCases) putWithRetry(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error) {
	var lastErr error
	for attempt := 0; attempt < putRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(putRetryBackoff):
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "context cancelled while retrying record write")
			}
		}

		stored, err := uc.repo.Conversation().Put(ctx, rec)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, types.ErrStorageUnavailable) {
			return nil, err
		}

		logging.From(ctx).Warn("record write failed, retrying",
			"attempt", attempt+1,
			"error", err,
		)
		lastErr = err
	}
	return nil, lastErr
}

// agentResponder is the default Responder. It drives a gollem agent with the
// memory and city data tools permitted for the user's role.
func (uc *UseCases) agentResponder(ctx context.Context, in *ChatInput, turn *contextbuilder.TurnContext) (string, error) {
	if uc.llmClient == nil {
		return "", goerr.New("no LLM client configured")
	}

	user := uc.registry.Get(in.UserID)
	role := types.RoleCitizen
	userName := in.UserID.String()
	if user != nil {
		role = user.PrimaryRole()
		userName = user.Name
	}

	systemPrompt, err := uc.buildSystemPrompt(userName, role, turn)
	if err != nil {
		return "", err
	}

	tools := core.New(uc.repo, uc.embedder, in.UserID, role)
	agent := gollem.New(uc.llmClient,
		gollem.WithSystemPrompt(systemPrompt),
		gollem.WithTools(tools...),
	)

	resp, err := agent.Execute(ctx, gollem.Text(in.Message))
	if err != nil {
		return "", goerr.Wrap(err, "failed to execute chat agent")
	}

	return strings.Join(resp.Texts, "\n"), nil
}

func (uc *UseCases) buildSystemPrompt(userName string, role types.Role, turn *contextbuilder.TurnContext) (string, error) {
	data := struct {
		UserName    string
		Role        string
		MemoryBlock string
		History     string
	}{
		UserName:    userName,
		Role:        string(role),
		MemoryBlock: turn.MemoryBlock(),
		History:     model.RenderHistory(turn.SessionHistory),
	}

	var buf bytes.Buffer
	if err := chatSystemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
