package repo

import (
	"context"
	"time"

	"github.com/anotheregi/blastkeun/internal/model"
)

type NewSession struct {
	OwnerID       string
	Name          string
	Mode          model.ModeID
	ContactsCount int
	StartedAt     time.Time
}

// Ledger is the audit trail of blast sessions and their per-contact outcomes.
type Ledger interface {
	CreateSession(ctx context.Context, s NewSession) (int64, error)
	AppendOutcome(ctx context.Context, sessionID int64, ownerID, message string, o model.MessageOutcome) error
	CompleteSession(ctx context.Context, sessionID int64, sent, failed int, status model.SessionStatus) error
	MarkStopped(ctx context.Context, sessionID int64) error

	ListSessions(ctx context.Context, ownerID string, limit, offset int) ([]model.SessionRecord, error)
	ListOutcomes(ctx context.Context, ownerID string, sessionID int64) ([]model.MessageOutcome, error)
	DailyStats(ctx context.Context, ownerID string, day time.Time) (map[model.ModeID]model.ModeStats, error)

	// FailStale marks running sessions started before the cutoff as failed,
	// except those listed in keep. It returns the number of rows changed.
	FailStale(ctx context.Context, before time.Time, keep []int64) (int64, error)
}
