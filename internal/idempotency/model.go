// Package idempotency stores replay records for mutating requests that must
// not take effect twice. Dice rolls are the motivating case: a client that
// retries a roll after a network hiccup must get the original result back,
// not a fresh one.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// MaxKeyLength bounds client-chosen keys; anything longer is rejected before
// it reaches storage.
const MaxKeyLength = 64

var (
	// ErrKeyNotFound means no replay record exists for the key.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists means a record was already stored under the key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey means the key is empty.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong means the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length")
)

// Record is one completed request held for replay: the key the client chose,
// the route it hit, and the exact response it received.
type Record struct {
	Key          string    `json:"key"`
	Method       string    `json:"method"`
	Route        string    `json:"route"`
	CreatedAt    time.Time `json:"created_at"`
	ResponseHash string    `json:"response_hash"`
	ResponseBody string    `json:"response_body"`
	StatusCode   int       `json:"status_code"`
}

// ValidateKey rejects empty and oversized keys.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// HashBody returns the hex SHA-256 of a response body, stored alongside the
// body so a corrupted record can be detected before replay.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Repository persists replay records.
type Repository interface {
	// Get returns the record for key, or ErrKeyNotFound.
	Get(key string) (*Record, error)

	// Store saves a record. Returns ErrKeyExists for a duplicate key.
	Store(record *Record) error

	// DeleteOlderThan drops records older than the duration and reports how
	// many were removed. Keeps replay storage bounded.
	DeleteOlderThan(duration time.Duration) (int64, error)
}
