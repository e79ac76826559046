package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// UserID identifies a registered user of the assistant.
// It is an opaque stable string chosen at registration time.
type UserID string

// Validate checks if the UserID is valid
func (u UserID) Validate() error {
	if u == "" {
		return goerr.Wrap(ErrInvalidArgument, "user ID cannot be empty")
	}
	return nil
}

// String returns the string representation of UserID
func (u UserID) String() string {
	return string(u)
}

// SessionID groups conversation records into one logical conversation
type SessionID string

// NewSessionID mints a new UUID v4 SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// Validate checks if the SessionID is valid
func (s SessionID) Validate() error {
	if s == "" {
		return goerr.Wrap(ErrInvalidArgument, "session ID cannot be empty")
	}
	return nil
}

// String returns the string representation of SessionID
func (s SessionID) String() string {
	return string(s)
}

// RecordID is a UUID-based identifier for a ConversationRecord
type RecordID string

// NewRecordID generates a new UUID v4 RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// String returns the string representation of RecordID
func (r RecordID) String() string {
	return string(r)
}
