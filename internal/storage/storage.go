// Package storage defines the persistence interface for archived session transcripts.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/findify/internal/models"
)

// ErrNotFound is returned when no transcript exists for a session id.
var ErrNotFound = errors.New("transcript not found")

// Storage archives transcripts of closed sessions. Archived transcripts are
// read back only for inspection; sessions are never restored from them.
type Storage interface {
	SaveTranscript(ctx context.Context, t *models.Transcript) error
	GetTranscript(ctx context.Context, sessionID string) (*models.Transcript, error)
	ListTranscripts(ctx context.Context, offset, limit int) ([]*models.Transcript, error)
	CountTranscripts(ctx context.Context) (int64, error)

	Close() error
}
