// Package live implements the client side of the session event stream: a
// read cache for session state, an optimistic overlay for in-flight token
// moves, and a reconnection controller that keeps the stream alive and
// invalidates the cache when deltas arrive.
package live

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/openvtt/gridveil/internal/chat"
	"github.com/openvtt/gridveil/internal/token"
)

const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 1 << 24
	cacheBufferItems = 64
)

// Cache holds client-side read state for sessions. Authoritative token and
// message lists live in a ristretto cache; optimistic token moves sit in a
// pending overlay keyed by token ID until an authoritative read that
// includes the token lands.
type Cache struct {
	store *ristretto.Cache[string, any]

	mu      sync.Mutex
	pending map[string]*token.Token
}

// NewCache creates a session read cache.
func NewCache() (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		store:   store,
		pending: make(map[string]*token.Token),
	}, nil
}

func tokensKey(sessionID string) string   { return "tokens:" + sessionID }
func messagesKey(sessionID string) string { return "messages:" + sessionID }

// SetTokens stores an authoritative token list for a session and clears the
// pending overlay for every token the list confirms.
func (c *Cache) SetTokens(sessionID string, tokens []*token.Token) {
	c.mu.Lock()
	for _, t := range tokens {
		delete(c.pending, t.ID)
	}
	c.mu.Unlock()

	c.store.Set(tokensKey(sessionID), tokens, int64(1+len(tokens)))
	c.store.Wait()
}

// Tokens returns the cached token list for a session with the pending
// overlay applied. The second return is false on a cache miss.
func (c *Cache) Tokens(sessionID string) ([]*token.Token, bool) {
	v, ok := c.store.Get(tokensKey(sessionID))
	if !ok {
		return nil, false
	}
	cached, ok := v.([]*token.Token)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return cached, true
	}

	out := make([]*token.Token, len(cached))
	for i, t := range cached {
		if staged, ok := c.pending[t.ID]; ok {
			out[i] = staged
		} else {
			out[i] = t
		}
	}
	return out, true
}

// StageTokenMove records an optimistic local token state. Reads overlay it
// on top of the cached list until SetTokens confirms the token or
// UnstageToken rolls it back.
func (c *Cache) StageTokenMove(t *token.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[t.ID] = t
}

// UnstageToken drops an optimistic entry without confirmation, used when the
// server rejects the move.
func (c *Cache) UnstageToken(tokenID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, tokenID)
}

// PendingCount reports the number of unconfirmed optimistic entries.
func (c *Cache) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// SetMessages stores an authoritative message list for a session.
func (c *Cache) SetMessages(sessionID string, messages []*chat.Message) {
	c.store.Set(messagesKey(sessionID), messages, int64(1+len(messages)))
	c.store.Wait()
}

// Messages returns the cached message list for a session.
func (c *Cache) Messages(sessionID string) ([]*chat.Message, bool) {
	v, ok := c.store.Get(messagesKey(sessionID))
	if !ok {
		return nil, false
	}
	cached, ok := v.([]*chat.Message)
	return cached, ok
}

// InvalidateTokens drops the cached token list for a session so the next
// read refetches from the store. Pending overlay entries survive
// invalidation; they are cleared only by an authoritative read.
func (c *Cache) InvalidateTokens(sessionID string) {
	c.store.Del(tokensKey(sessionID))
}

// InvalidateMessages drops the cached message list for a session.
func (c *Cache) InvalidateMessages(sessionID string) {
	c.store.Del(messagesKey(sessionID))
}

// Close releases the underlying cache resources.
func (c *Cache) Close() {
	c.store.Close()
}
