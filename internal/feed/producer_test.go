package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/token"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector accumulates emitted deltas across goroutines.
type collector struct {
	mu     sync.Mutex
	deltas []Delta
}

func (c *collector) emit(d Delta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deltas = append(c.deltas, d)
	return nil
}

func (c *collector) snapshot() []Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Delta, len(c.deltas))
	copy(out, c.deltas)
	return out
}

func (c *collector) waitFor(t *testing.T, deltaType string, timeout time.Duration) Delta {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, d := range c.snapshot() {
			if d.Type == deltaType {
				return d
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %q delta emitted within %v", deltaType, timeout)
	return Delta{}
}

func TestProducerEmitsTokenDelta(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	if err := tokens.Insert(context.Background(), &token.Token{SessionID: "session-1", Name: "Vala"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, c.emit) }()

	d := c.waitFor(t, DeltaTokens, time.Second)
	if len(d.Tokens) != 1 || d.Tokens[0].Name != "Vala" {
		t.Errorf("unexpected token delta: %+v", d)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil on cancellation, got %v", err)
	}
}

func TestProducerEmitsMessageDelta(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	msg := &chat.Message{SessionID: "session-1", UserID: "user-1", Content: "hello", Type: chat.TypeText}
	if err := messages.Insert(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go p.Run(ctx, c.emit)

	d := c.waitFor(t, DeltaMessages, time.Second)
	if len(d.Messages) != 1 || d.Messages[0].Content != "hello" {
		t.Errorf("unexpected message delta: %+v", d)
	}
}

func TestProducerIdleEmitsNothing(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := &collector{}
	if err := p.Run(ctx, c.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.snapshot(); len(got) != 0 {
		t.Errorf("expected no deltas on idle session, got %d", len(got))
	}
}

func TestProducerDoesNotReplayOldState(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	// Data written before the producer starts is initial state, not a delta.
	if err := tokens.Insert(context.Background(), &token.Token{SessionID: "session-1", Name: "Old"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := &collector{}
	if err := p.Run(ctx, c.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.snapshot(); len(got) != 0 {
		t.Errorf("expected no deltas for pre-connection writes, got %d", len(got))
	}
}

func TestProducerPing(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(time.Hour),
		WithPingInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go p.Run(ctx, c.emit)

	d := c.waitFor(t, DeltaPing, time.Second)
	if d.Tokens != nil || d.Messages != nil {
		t.Errorf("expected empty ping payload, got %+v", d)
	}
}

func TestProducerStopsOnEmitError(t *testing.T) {
	tokens := token.NewInMemoryRepository()
	messages := chat.NewInMemoryRepository()

	p := NewProducer(tokens, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	if err := tokens.Insert(context.Background(), &token.Token{SessionID: "session-1", Name: "Vala"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantErr := errors.New("client gone")
	err := p.Run(context.Background(), func(Delta) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Errorf("expected emit error to propagate, got %v", err)
	}
}

// failingTokenRepo errors on every query to exercise the swallow path.
type failingTokenRepo struct {
	token.Repository
}

func (f *failingTokenRepo) UpdatedSince(context.Context, string, time.Time) ([]*token.Token, error) {
	return nil, errors.New("database down")
}

func TestProducerSwallowsStoreErrors(t *testing.T) {
	messages := chat.NewInMemoryRepository()

	p := NewProducer(&failingTokenRepo{}, messages, "session-1", discardLogger(),
		WithPollInterval(5*time.Millisecond))

	// Messages still flow while the token store is failing.
	msg := &chat.Message{SessionID: "session-1", UserID: "user-1", Content: "still here", Type: chat.TypeText}
	if err := messages.Insert(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, c.emit) }()

	c.waitFor(t, DeltaMessages, time.Second)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected store errors to be swallowed, got %v", err)
	}
}
