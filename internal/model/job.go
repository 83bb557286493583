package model

import "time"

// Job types
const (
	JobTypeInstrumental = "instrumental"
	JobTypeExport       = "export"
	JobTypeAnalyze      = "analyze"
)

// JobStatus is the coarse lifecycle of a job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobStage is one state of the per-job progress machine.
// Stages are ordered; a job only ever moves forward.
type JobStage string

const (
	StageStarted      JobStage = "started"
	StageSearching    JobStage = "searching"
	StageFetching     JobStage = "fetching"
	StageMixing       JobStage = "mixing"
	StageExtracting   JobStage = "extracting"
	StageTranscribing JobStage = "transcribing"
	StageAnalyzing    JobStage = "analyzing"
	StageMatching     JobStage = "matching"
	StageDone         JobStage = "done"
	StageError        JobStage = "error"
)

// Terminal reports whether no further event may follow this stage
func (s JobStage) Terminal() bool {
	return s == StageDone || s == StageError
}

// Job is the status snapshot kept for polling
type Job struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Status      JobStatus              `json:"status"`
	Stage       JobStage               `json:"stage"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       *string                `json:"error,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	CompletedAt *time.Time             `json:"completedAt,omitempty"`
}
