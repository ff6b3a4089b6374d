package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/token"
)

// Default producer intervals.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPingInterval = 30 * time.Second
)

// EmitFunc delivers a delta to the connected client. Returning an error
// terminates the producer; the connection is assumed dead.
type EmitFunc func(delta Delta) error

// Producer polls the token and chat stores for one client connection and
// emits deltas for anything changed since the connection's watermarks. A
// producer serves exactly one connection and is not reused.
type Producer struct {
	tokens   token.Repository
	messages chat.Repository

	sessionID    string
	pollInterval time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
	metrics      *Metrics

	tokenWatermark   time.Time
	messageWatermark time.Time
}

// Option configures a Producer.
type Option func(*Producer)

// WithPollInterval overrides the poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Producer) {
		p.pollInterval = d
	}
}

// WithPingInterval overrides the keepalive ping interval.
func WithPingInterval(d time.Duration) Option {
	return func(p *Producer) {
		p.pingInterval = d
	}
}

// WithMetrics attaches producer metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Producer) {
		p.metrics = m
	}
}

// NewProducer creates a producer for a single connection to the given
// session. Watermarks start at the current time so clients only receive
// changes made after they connect; the initial state comes from the regular
// read endpoints.
func NewProducer(tokens token.Repository, messages chat.Repository, sessionID string, logger *slog.Logger, opts ...Option) *Producer {
	now := time.Now()
	p := &Producer{
		tokens:           tokens,
		messages:         messages,
		sessionID:        sessionID,
		pollInterval:     DefaultPollInterval,
		pingInterval:     DefaultPingInterval,
		logger:           logger,
		tokenWatermark:   now,
		messageWatermark: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled or emit fails. Store errors on a single
// tick are logged and swallowed; the next tick retries with the same
// watermark. Returns nil on context cancellation.
func (p *Producer) Run(ctx context.Context, emit EmitFunc) error {
	if p.metrics != nil {
		p.metrics.IncConnections()
		defer p.metrics.DecConnections()
	}

	poll := time.NewTicker(p.pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(p.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poll.C:
			if err := p.tick(ctx, emit); err != nil {
				return err
			}

		case <-ping.C:
			if err := emit(Delta{Type: DeltaPing}); err != nil {
				return err
			}
		}
	}
}

// tick runs one poll cycle. Only emit errors propagate; store errors are
// logged so a transient database hiccup does not tear down the stream. The
// watermark moves only after a delta is delivered, so results that fail to
// send are retried on the next tick.
func (p *Producer) tick(ctx context.Context, emit EmitFunc) error {
	tokens, err := p.tokens.UpdatedSince(ctx, p.sessionID, p.tokenWatermark)
	if err != nil {
		p.logger.ErrorContext(ctx, "feed token poll failed",
			slog.String("session_id", p.sessionID),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncPollErrors()
		}
	} else if len(tokens) > 0 {
		if err := emit(Delta{Type: DeltaTokens, Tokens: tokens}); err != nil {
			return err
		}
		p.tokenWatermark = time.Now()
		if p.metrics != nil {
			p.metrics.IncDeltas(DeltaTokens)
		}
	}

	messages, err := p.messages.CreatedSince(ctx, p.sessionID, p.messageWatermark)
	if err != nil {
		p.logger.ErrorContext(ctx, "feed message poll failed",
			slog.String("session_id", p.sessionID),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncPollErrors()
		}
	} else if len(messages) > 0 {
		if err := emit(Delta{Type: DeltaMessages, Messages: messages}); err != nil {
			return err
		}
		p.messageWatermark = time.Now()
		if p.metrics != nil {
			p.metrics.IncDeltas(DeltaMessages)
		}
	}

	return nil
}
