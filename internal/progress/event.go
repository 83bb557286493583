package progress

import (
	"encoding/json"

	"github.com/resonance/api/internal/model"
)

// Event is one entry of a job's ordered progress stream.
// Exactly one of the three wire shapes is produced by MarshalJSON:
// progress, done, or error.
type Event struct {
	JobID   string
	Stage   model.JobStage
	Percent int
	Message string
	Result  map[string]interface{}
	Err     string
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	return e.Stage.Terminal()
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Stage {
	case model.StageError:
		return json.Marshal(map[string]interface{}{"error": e.Err})
	case model.StageDone:
		out := make(map[string]interface{}, len(e.Result)+2)
		for k, v := range e.Result {
			out[k] = v
		}
		out["progress"] = 100
		out["done"] = true
		return json.Marshal(out)
	}

	out := map[string]interface{}{
		"progress": e.Percent,
		"message":  e.Message,
	}
	if e.Stage == model.StageStarted && e.JobID != "" {
		out["job_id"] = e.JobID
	}
	return json.Marshal(out)
}

// resultFields flattens a result struct into the terminal event's fields
func resultFields(result interface{}) (map[string]interface{}, error) {
	if result == nil {
		return map[string]interface{}{}, nil
	}
	if m, ok := result.(map[string]interface{}); ok {
		return m, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
