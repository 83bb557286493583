package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/resonance/api/internal/storage"
)

// TaskTypeSweep removes cache files past their retention
const TaskTypeSweep = "cache:sweep"

// QueueMaintenance holds housekeeping tasks
const QueueMaintenance = "maintenance"

// SweepWorker deletes stale uploads, instrumentals and exports
type SweepWorker struct {
	store  *storage.CacheStore
	maxAge time.Duration
	now    func() time.Time
}

// NewSweepWorker creates a new sweep worker
func NewSweepWorker(store *storage.CacheStore, maxAge time.Duration) *SweepWorker {
	return &SweepWorker{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// NewSweepTask builds the periodic sweep task
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweep, nil)
}

// ProcessTask handles sweep task processing
func (w *SweepWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := w.store.Sweep(w.maxAge, w.now())
	if err != nil {
		return fmt.Errorf("cache sweep failed: %w", err)
	}
	if removed > 0 {
		log.Printf("[sweep] removed %d cache file(s) older than %s", removed, w.maxAge)
	}
	return nil
}

// RegisterSweep schedules the sweep task on spec, an asynq cron spec such
// as "@every 30m"
func RegisterSweep(scheduler *asynq.Scheduler, spec string) (string, error) {
	entryID, err := scheduler.Register(spec, NewSweepTask(),
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to schedule cache sweep: %w", err)
	}
	return entryID, nil
}
