// Package feed implements the change-feed producer behind the session event
// stream. Each connected client gets its own producer that polls the token
// and chat stores against per-connection watermarks and emits typed deltas.
package feed

import (
	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/token"
)

// Delta types emitted on the event stream.
const (
	DeltaTokens   = "tokens"
	DeltaMessages = "messages"
	DeltaPing     = "ping"
)

// Delta is a single event-stream payload. Exactly one of Tokens or Messages
// is populated for data deltas; ping deltas carry neither.
type Delta struct {
	Type     string          `json:"type"`
	Tokens   []*token.Token  `json:"tokens,omitempty"`
	Messages []*chat.Message `json:"messages,omitempty"`
}
