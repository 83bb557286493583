package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
)

const jobRetention = 24 * time.Hour

// JobService keeps polling snapshots of running and finished jobs.
// Snapshots live in Redis when a client is configured and in memory
// otherwise.
type JobService struct {
	redis *redis.Client

	mu    sync.Mutex
	local map[string]*model.Job
}

func NewJobService(redisClient *redis.Client) *JobService {
	return &JobService{
		redis: redisClient,
		local: make(map[string]*model.Job),
	}
}

// Sink returns a progress sink that folds a job's events into its snapshot
func (s *JobService) Sink(jobID, jobType string) progress.Sink {
	return progress.SinkFunc(func(_ int, ev progress.Event) {
		job := s.apply(jobID, jobType, ev)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.saveJob(ctx, job); err != nil {
			log.Printf("[jobs] failed to save job %s: %v", jobID, err)
		}
	})
}

func (s *JobService) apply(jobID, jobType string, ev progress.Event) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.local[jobID]
	if !ok {
		job = &model.Job{
			ID:        jobID,
			Type:      jobType,
			Status:    model.JobStatusRunning,
			CreatedAt: time.Now(),
		}
		s.local[jobID] = job
	}

	job.Stage = ev.Stage
	switch ev.Stage {
	case model.StageDone:
		now := time.Now()
		job.Status = model.JobStatusSucceeded
		job.Progress = 100
		job.Message = ""
		job.Result = ev.Result
		job.CompletedAt = &now
	case model.StageError:
		now := time.Now()
		msg := ev.Err
		job.Status = model.JobStatusFailed
		job.Error = &msg
		job.CompletedAt = &now
	default:
		job.Progress = ev.Percent
		job.Message = ev.Message
	}

	snapshot := *job
	if ev.Stage.Terminal() && s.redis != nil {
		delete(s.local, jobID)
	}
	s.pruneLocked(time.Now())
	return &snapshot
}

// pruneLocked drops finished in-memory jobs past retention
func (s *JobService) pruneLocked(now time.Time) {
	for id, job := range s.local {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > jobRetention {
			delete(s.local, id)
		}
	}
}

// GetStatus returns the latest snapshot of a job
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	if job, ok := s.local[jobID]; ok {
		snapshot := *job
		s.mu.Unlock()
		return &snapshot, nil
	}
	s.mu.Unlock()

	if s.redis == nil {
		return nil, model.NewNotFoundError("job not found")
	}
	return s.getJob(ctx, jobID)
}

// Helper methods

func (s *JobService) saveJob(ctx context.Context, job *model.Job) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, jobRetention).Err()
}

func (s *JobService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, model.NewNotFoundError("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}
