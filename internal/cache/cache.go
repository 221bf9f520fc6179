package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anotheregi/blastkeun/internal/model"
)

// DailyQuota counts messages sent per owner and mode on a calendar day.
type DailyQuota interface {
	Used(ctx context.Context, ownerID string, mode model.ModeID, day time.Time) (int, error)
	Add(ctx context.Context, ownerID string, mode model.ModeID, day time.Time, n int) error
}

func quotaKey(ownerID string, mode model.ModeID, day time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", ownerID, mode, day.Format("2006-01-02"))
}

// MemoryQuota is used when Redis is not configured. Counters of past days
// are dropped lazily on write.
type MemoryQuota struct {
	mu     sync.Mutex
	counts map[string]int
	day    string
}

func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{counts: make(map[string]int)}
}

func (q *MemoryQuota) Used(ctx context.Context, ownerID string, mode model.ModeID, day time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[quotaKey(ownerID, mode, day)], nil
}

func (q *MemoryQuota) Add(ctx context.Context, ownerID string, mode model.ModeID, day time.Time, n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if d := day.Format("2006-01-02"); d > q.day {
		q.counts = make(map[string]int)
		q.day = d
	}
	q.counts[quotaKey(ownerID, mode, day)] += n
	return nil
}
