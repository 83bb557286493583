package progress

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/resonance/api/internal/model"
)

// ErrJobClosed is returned when an event is emitted after the terminal one
var ErrJobClosed = errors.New("job already terminated")

// Stage orders for the two pipeline families
var (
	MediaStages    = []model.JobStage{model.StageStarted, model.StageSearching, model.StageFetching, model.StageMixing}
	AnalysisStages = []model.JobStage{model.StageStarted, model.StageExtracting, model.StageTranscribing, model.StageAnalyzing, model.StageMatching}
)

// Emitter is the per-job state machine. Stages move strictly forward
// through the configured order (skipping is allowed) and the job ends
// with exactly one done or error event.
type Emitter struct {
	mu      sync.Mutex
	jobID   string
	order   map[model.JobStage]int
	stage   model.JobStage
	percent int
	seq     int
	closed  bool
	sinks   []Sink
}

// NewEmitter creates an emitter in the started state. Nothing is
// published until Start is called.
func NewEmitter(jobID string, stages []model.JobStage, sinks ...Sink) *Emitter {
	order := make(map[model.JobStage]int, len(stages))
	for i, s := range stages {
		order[s] = i
	}
	return &Emitter{
		jobID: jobID,
		order: order,
		stage: model.StageStarted,
		sinks: sinks,
	}
}

// JobID returns the job this emitter reports for
func (e *Emitter) JobID() string {
	return e.jobID
}

// Stage returns the current state
func (e *Emitter) Stage() model.JobStage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// Closed reports whether the terminal event has been emitted
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Start publishes the initial event carrying the job id
func (e *Emitter) Start(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrJobClosed
	}
	if e.seq > 0 {
		return fmt.Errorf("job %s already started", e.jobID)
	}
	e.publishLocked(Event{JobID: e.jobID, Stage: model.StageStarted, Percent: 0, Message: message})
	return nil
}

// Advance moves the job into stage and publishes a progress event.
// Percent never decreases.
func (e *Emitter) Advance(stage model.JobStage, percent int, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrJobClosed
	}

	next, ok := e.order[stage]
	if !ok {
		return fmt.Errorf("stage %q is not part of this job", stage)
	}
	if stage != e.stage && next <= e.order[e.stage] {
		return fmt.Errorf("invalid transition: %s -> %s", e.stage, stage)
	}

	if percent < e.percent {
		percent = e.percent
	}
	if percent > 99 {
		percent = 99
	}
	e.stage = stage
	e.percent = percent
	e.publishLocked(Event{JobID: e.jobID, Stage: stage, Percent: percent, Message: message})
	return nil
}

// Complete publishes the done event with the result's fields flattened in
func (e *Emitter) Complete(result interface{}) error {
	fields, err := resultFields(result)
	if err != nil {
		return e.Fail(fmt.Errorf("encode result: %w", err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrJobClosed
	}
	e.stage = model.StageDone
	e.percent = 100
	e.closed = true
	e.publishLocked(Event{JobID: e.jobID, Stage: model.StageDone, Percent: 100, Result: fields})
	return nil
}

// Fail publishes the error event. The caller-facing message is derived
// from the error's type; the full error is logged.
func (e *Emitter) Fail(err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		log.Printf("[job %s] dropped error after terminal event: %v", e.jobID, err)
		return ErrJobClosed
	}
	log.Printf("[job %s] failed during %s: %v", e.jobID, e.stage, err)
	e.stage = model.StageError
	e.closed = true
	e.publishLocked(Event{JobID: e.jobID, Stage: model.StageError, Percent: e.percent, Err: model.PublicMessage(err)})
	return nil
}

func (e *Emitter) publishLocked(ev Event) {
	e.seq++
	for _, s := range e.sinks {
		s.Publish(e.seq, ev)
	}
}
