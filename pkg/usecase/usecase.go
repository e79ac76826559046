package usecase

import (
	"context"
	"sync"

	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/contextbuilder"
)

// Responder generates the assistant's reply for one chat turn. The default
// responder drives a gollem agent; tests inject a deterministic one.
type Responder func(ctx context.Context, in *ChatInput, turn *contextbuilder.TurnContext) (string, error)

type UseCases struct {
	repo      interfaces.Repository
	embedder  interfaces.Embedder
	builder   *contextbuilder.Builder
	registry  *model.UserRegistry
	llmClient gollem.LLMClient
	responder Responder

	// sessions tracks the sticky current session per user
	sessions sessionTracker
}

type Option func(*UseCases)

// WithLLM sets the LLM client used by the default responder and agent tools.
func WithLLM(client gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llmClient = client
	}
}

// WithUsers sets the registry of known users and their roles.
func WithUsers(registry *model.UserRegistry) Option {
	return func(uc *UseCases) {
		uc.registry = registry
	}
}

// WithResponder replaces the response generator, mainly for tests.
func WithResponder(r Responder) Option {
	return func(uc *UseCases) {
		uc.responder = r
	}
}

// WithContextBuilder replaces the default context builder, for callers that
// tune top-K or the context budget.
func WithContextBuilder(b *contextbuilder.Builder) Option {
	return func(uc *UseCases) {
		uc.builder = b
	}
}

func New(repo interfaces.Repository, embedder interfaces.Embedder, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		embedder: embedder,
		sessions: sessionTracker{current: make(map[types.UserID]types.SessionID)},
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.builder == nil {
		uc.builder = contextbuilder.New(repo.Conversation(), embedder)
	}
	if uc.responder == nil {
		uc.responder = uc.agentResponder
	}

	return uc
}

// sessionTracker keeps the current session per user so consecutive exchanges
// group under one session until the user starts a new conversation.
type sessionTracker struct {
	mu      sync.Mutex
	current map[types.UserID]types.SessionID
}

// resolve returns the session to use for this turn. An explicit session wins
// and becomes sticky; otherwise the tracked one is reused; otherwise a new
// session is minted.
func (t *sessionTracker) resolve(userID types.UserID, explicit types.SessionID) types.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if explicit != "" {
		t.current[userID] = explicit
		return explicit
	}
	if current, ok := t.current[userID]; ok {
		return current
	}
	minted := types.NewSessionID()
	t.current[userID] = minted
	return minted
}

func (t *sessionTracker) set(userID types.UserID, sessionID types.SessionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[userID] = sessionID
}

func (t *sessionTracker) reset(userID types.UserID) types.SessionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	minted := types.NewSessionID()
	t.current[userID] = minted
	return minted
}
