// Package chat provides models and repository for in-session chat messages,
// including system notices and dice roll results.
package chat

import (
	"errors"
	"time"
)

// Message types.
const (
	TypeText     = "TEXT"
	TypeSystem   = "SYSTEM"
	TypeDiceRoll = "DICE_ROLL"
)

// MaxContentLength is the maximum allowed message length.
const MaxContentLength = 1000

// Common errors for chat operations.
var (
	ErrEmptyContent   = errors.New("message content cannot be empty")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
	ErrInvalidType    = errors.New("invalid message type")
)

// Message represents one chat message within a session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks message content and type before persistence.
func (m *Message) Validate() error {
	if m.Content == "" {
		return ErrEmptyContent
	}
	if len(m.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	switch m.Type {
	case TypeText, TypeSystem, TypeDiceRoll:
		return nil
	default:
		return ErrInvalidType
	}
}

// Page is one window of a session's chat history. Messages are in ascending
// creation order; NextCursor is set when older messages remain.
type Page struct {
	Messages   []*Message `json:"messages"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}
