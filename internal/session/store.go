// Package session provides session storage and per-conversation dispatch for wallroll.
package session

import (
	"context"
	"time"

	"github.com/thebtf/wallroll/pkg/models"
)

const (
	// SessionTimeout is how long an untouched session is kept.
	SessionTimeout = 30 * time.Minute
	// CleanupInterval is how often expired in-memory sessions are swept.
	CleanupInterval = 5 * time.Minute
)

// Store keeps one questionnaire session per conversation key.
// Get returns (nil, nil) when the key has no session.
type Store interface {
	Get(ctx context.Context, key string) (*models.Session, error)
	Put(ctx context.Context, key string, s *models.Session) error
	Clear(ctx context.Context, key string) error
}
