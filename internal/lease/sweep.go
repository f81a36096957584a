package lease

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweeper periodically clears stale owner columns left behind by
// silently expired leases. Expiry itself stays passive; the sweep only
// reconciles the denormalized owner fields with the lease table, so a
// board read shows an expired claim as unowned without waiting for the
// next claim or release to touch the task.
type Sweeper struct {
	db       *gorm.DB
	interval time.Duration
	cron     *cron.Cron
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(db *gorm.DB, interval time.Duration) (*Sweeper, error) {
	if db == nil {
		return nil, fmt.Errorf("lease: sweeper db is required")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{db: db, interval: interval, cron: cron.New()}, nil
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if n, err := s.SweepOnce(); err != nil {
			log.Printf("lease: sweep: %v", err)
		} else if n > 0 {
			log.Printf("lease: sweep cleared %d stale owner(s)", n)
		}
	}); err != nil {
		return fmt.Errorf("lease: schedule sweep: %w", err)
	}

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// SweepOnce clears owner columns on agent-owned tasks with no active
// lease and returns how many rows it touched. It appends no audit
// entries: the sweep is reconciliation, not task history.
func (s *Sweeper) SweepOnce() (int64, error) {
	active := activeLeaseScope(s.db.Model(&models.AgentLease{}).Select("task_id"), time.Now())

	result := s.db.Model(&models.Task{}).
		Where("owner_type = ?", models.ActorAgent).
		Where("id NOT IN (?)", active).
		Updates(map[string]interface{}{"owner_type": nil, "owner_id": nil})
	if result.Error != nil {
		return 0, fmt.Errorf("lease: sweep stale owners: %w", result.Error)
	}
	return result.RowsAffected, nil
}
