// Package storage defines the persistence interface for sessions and Q&A history.
package storage

import (
	"context"
	"errors"

	"github.com/codelens/codelens/internal/models"
)

var (
	// ErrSessionNotFound is returned when no session exists for an ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRecordNotFound is returned when no history record exists for an ID.
	ErrRecordNotFound = errors.New("history record not found")
)

// Storage defines session and history persistence operations.
type Storage interface {
	// Session operations
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	UpdateSessionStats(ctx context.Context, id string, stats models.IndexStats) error

	// History operations
	SaveQA(ctx context.Context, record *models.QARecord) error
	GetHistory(ctx context.Context, sessionID string) ([]*models.QARecord, error)
	GetQA(ctx context.Context, qaID string) (*models.QARecord, error)
	UpdateTags(ctx context.Context, qaID string, tags []string) error
	DeleteQA(ctx context.Context, qaID string) error
	SearchHistory(ctx context.Context, sessionID, query string) ([]*models.QARecord, error)

	// Stats
	CountSessions(ctx context.Context) (int64, error)
	CountQA(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
