// Package health holds the dependency checkers behind the readiness probe.
// Each checker answers one question: can the API reach this backend right
// now.
package health

import (
	"context"
	"database/sql"
)

// DBChecker probes the Postgres pool that holds sessions, tokens, and fog
// state.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database, dialing a new connection if the pool is
// empty.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
