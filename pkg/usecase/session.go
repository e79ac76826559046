package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// ListSessions returns the user's sessions, most recently active first.
func (uc *UseCases) ListSessions(ctx context.Context, userID types.UserID) ([]*model.SessionSummary, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	return uc.repo.Conversation().ListSessions(ctx, userID)
}

// SessionHistory returns the chronological records of one session. An unknown
// session yields an empty slice, mirroring a brand-new session.
func (uc *UseCases) SessionHistory(ctx context.Context, userID types.UserID, sessionID types.SessionID) ([]*model.ConversationRecord, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "session ID must not be empty")
	}
	return uc.repo.Conversation().GetSessionHistory(ctx, userID, sessionID)
}

// LoadSession makes the given session the user's current one, so following
// chat turns continue it. The replayed history is returned for display.
func (uc *UseCases) LoadSession(ctx context.Context, userID types.UserID, sessionID types.SessionID) ([]*model.ConversationRecord, error) {
	records, err := uc.SessionHistory(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	uc.sessions.set(userID, sessionID)
	return records, nil
}

// NewConversation mints a fresh session for the user and makes it current.
func (uc *UseCases) NewConversation(ctx context.Context, userID types.UserID) (types.SessionID, error) {
	if err := userID.Validate(); err != nil {
		return "", err
	}
	return uc.sessions.reset(userID), nil
}

// UserHistory returns every record of the user across all sessions in
// chronological order.
func (uc *UseCases) UserHistory(ctx context.Context, userID types.UserID) ([]*model.ConversationRecord, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	return uc.repo.Conversation().ListByUser(ctx, userID, nil)
}
