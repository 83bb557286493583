package worker

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/storage"
)

// JobFunc is the body of one pipeline job. Its result becomes the fields of
// the done event.
type JobFunc func(ctx context.Context, em *progress.Emitter) (interface{}, error)

// SinkFactory creates an extra sink for every new job
type SinkFactory func(jobID, jobType string) progress.Sink

// JobSpec describes a job to start
type JobSpec struct {
	Type         string
	Stages       []model.JobStage
	StartMessage string
	Run          JobFunc
}

// JobRunner runs pipeline jobs on their own goroutines, detached from the
// request that started them
type JobRunner struct {
	sem       chan struct{}
	timeout   time.Duration
	factories []SinkFactory
	wg        sync.WaitGroup
}

// NewJobRunner creates a runner bounded by cfg.MaxConcurrent
func NewJobRunner(cfg *config.JobsConfig, factories ...SinkFactory) *JobRunner {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 4
	}
	return &JobRunner{
		sem:       make(chan struct{}, max),
		timeout:   cfg.Timeout,
		factories: factories,
	}
}

// Start emits the started event synchronously and runs the job in the
// background. The returned channel yields every event of the job and is
// closed after the terminal one.
func (r *JobRunner) Start(spec JobSpec) (string, <-chan progress.Event) {
	jobID := storage.NewID()
	stream := progress.NewChanSink(32)

	sinks := []progress.Sink{stream}
	for _, f := range r.factories {
		if s := f(jobID, spec.Type); s != nil {
			sinks = append(sinks, s)
		}
	}
	em := progress.NewEmitter(jobID, spec.Stages, sinks...)

	msg := spec.StartMessage
	if msg == "" {
		msg = "Starting…"
	}
	em.Start(msg)
	log.Printf("[job %s] %s started", jobID, spec.Type)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer stream.Close()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		result, err := execute(ctx, spec.Run, em)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				err = fmt.Errorf("job exceeded %s: %w", r.timeout, err)
			}
			em.Fail(err)
			return
		}
		if err := em.Complete(result); err != nil {
			log.Printf("[job %s] complete: %v", jobID, err)
		}
		log.Printf("[job %s] %s finished in %s", jobID, spec.Type, time.Since(start).Round(time.Millisecond))
	}()

	return jobID, stream.Events()
}

// execute runs fn and turns a panic into an error. fn's deferred cleanup
// has run by the time execute returns.
func execute(ctx context.Context, fn JobFunc, em *progress.Emitter) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("[job %s] panic: %v\n%s", em.JobID(), p, debug.Stack())
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, em)
}

// Wait blocks until all started jobs have ended or ctx is done
func (r *JobRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
