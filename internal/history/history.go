// Package history persists the local conversation transcript.
package history

import (
	"context"
	"time"

	"github.com/deskhaus/deskchat/internal/domain"
)

// SessionInfo summarizes one recorded conversation.
type SessionInfo struct {
	SessionID    string
	CustomerID   string
	StartedAt    time.Time
	LastActivity time.Time
	TurnCount    int
}

// Repository defines the interface for persisting conversation turns.
type Repository interface {
	// Record appends one turn of a session's transcript.
	Record(ctx context.Context, session domain.Session, turn domain.Turn) error

	// Turns retrieves a session's transcript in sequence order.
	Turns(ctx context.Context, sessionID string) ([]domain.Turn, error)

	// Sessions lists recorded conversations, most recent first.
	Sessions(ctx context.Context) ([]SessionInfo, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
