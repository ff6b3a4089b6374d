package live

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openvtt/gridveil/internal/feed"
)

// State is the connection state of a controller. Owned exclusively by the
// controller; observers read it through State().
type State string

// Connection states.
const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Reconnection parameters. After MaxRetries consecutive failures the
// controller gives up for good; recovery requires a fresh controller.
const (
	MaxRetries       = 10
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// ErrRetriesExhausted is returned by Run after MaxRetries consecutive
// failed connection attempts.
var ErrRetriesExhausted = errors.New("connection retries exhausted")

// Controller maintains one logical live connection to a session event
// stream. It never fetches data itself; it only invalidates the read cache
// when a delta signals staleness.
type Controller struct {
	url       string
	authToken string
	sessionID string
	client    *http.Client
	cache     *Cache
	logger    *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration

	mu       sync.Mutex
	state    State
	failures int

	cancel context.CancelFunc
	done   chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(base, max time.Duration) ControllerOption {
	return func(c *Controller) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// WithHTTPClient overrides the HTTP client used to open the stream.
func WithHTTPClient(client *http.Client) ControllerOption {
	return func(c *Controller) {
		c.client = client
	}
}

// NewController creates a reconnection controller for one session stream.
// url is the full event stream endpoint; authToken is sent as a bearer
// token on every attempt.
func NewController(url, authToken, sessionID string, cache *Cache, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		url:       url,
		authToken: authToken,
		sessionID: sessionID,
		client:    &http.Client{},
		cache:     cache,
		logger:    logger,
		baseDelay: DefaultBaseDelay,
		maxDelay:  DefaultMaxDelay,
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Start runs the controller in a new goroutine. Use Close to tear it down.
func (c *Controller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("live controller stopped",
				slog.String("session_id", c.sessionID),
				slog.String("error", err.Error()))
		}
	}()
}

// Close cancels any pending reconnect timer, closes the transport and waits
// for the run loop to exit. No state transitions occur after Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-c.done
}

// Run drives the connection state machine until ctx is cancelled or retries
// are exhausted. It blocks; most callers use Start/Close instead.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.consume(ctx)
		if err == nil {
			// Clean shutdown via context.
			return ctx.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateDisconnected)

		c.mu.Lock()
		failures := c.failures
		c.mu.Unlock()

		if failures >= MaxRetries {
			c.setState(StateError)
			c.logger.Error("live connection failed permanently",
				slog.String("session_id", c.sessionID),
				slog.Int("attempts", failures+1),
				slog.String("error", err.Error()))
			return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}

		delay := c.backoffDelay(failures)
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()

		c.logger.Warn("live connection lost, scheduling reconnect",
			slog.String("session_id", c.sessionID),
			slog.Duration("delay", delay),
			slog.Int("attempt", failures+1),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		c.setState(StateReconnecting)
	}
}

// backoffDelay computes the reconnect delay for the given consecutive
// failure count: baseDelay * 2^failures, capped at maxDelay.
func (c *Controller) backoffDelay(failures int) time.Duration {
	shift := uint(failures)
	if shift > 30 {
		shift = 30
	}
	delay := c.baseDelay * time.Duration(uint64(1)<<shift)
	if delay > c.maxDelay || delay <= 0 {
		delay = c.maxDelay
	}
	return delay
}

// consume opens the stream and dispatches deltas until the transport
// closes. A nil return means the context ended while reading.
func (c *Controller) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.state = StateConnected
	c.failures = 0
	c.mu.Unlock()

	c.logger.Info("live connection established", slog.String("session_id", c.sessionID))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				c.dispatch(ctx, data.String())
				data.Reset()
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			data.WriteString(payload)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.New("event stream closed by server")
}

// dispatch handles a single decoded frame. Ping frames are inert; data
// frames invalidate the corresponding cache so the next read refetches.
func (c *Controller) dispatch(ctx context.Context, payload string) {
	var delta feed.Delta
	if err := json.Unmarshal([]byte(payload), &delta); err != nil {
		c.logger.Warn("discarding malformed delta",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()))
		return
	}

	switch delta.Type {
	case feed.DeltaTokens:
		if c.cache != nil {
			c.cache.InvalidateTokens(c.sessionID)
		}
	case feed.DeltaMessages:
		if c.cache != nil {
			c.cache.InvalidateMessages(c.sessionID)
		}
	case feed.DeltaPing:
		// Keepalive only.
	default:
		c.logger.DebugContext(ctx, "ignoring unknown delta type",
			slog.String("type", delta.Type))
	}
}
