package progress

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/resonance/api/internal/model"
)

type recorder struct {
	seqs   []int
	events []Event
}

func (r *recorder) Publish(seq int, ev Event) {
	r.seqs = append(r.seqs, seq)
	r.events = append(r.events, ev)
}

func marshal(t *testing.T, ev Event) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return out
}

func TestEmitterForwardOnly(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter("job1", MediaStages, rec)

	if err := em.Start("Starting"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := em.Advance(model.StageFetching, 40, "Downloading"); err != nil {
		t.Fatalf("advance fetching: %v", err)
	}
	if err := em.Advance(model.StageSearching, 50, "back"); err == nil {
		t.Fatal("expected error moving backward to searching")
	}
	if err := em.Advance(model.StageFetching, 45, "same stage"); err != nil {
		t.Fatalf("same stage should be allowed: %v", err)
	}
	if err := em.Advance(model.StageExtracting, 50, "foreign"); err == nil {
		t.Fatal("expected error for a stage outside the job's order")
	}
	if em.Stage() != model.StageFetching {
		t.Errorf("stage = %s, want fetching", em.Stage())
	}
	if len(rec.events) != 3 {
		t.Fatalf("published %d events, want 3", len(rec.events))
	}
	for i, seq := range rec.seqs {
		if seq != i+1 {
			t.Errorf("seq[%d] = %d, want %d", i, seq, i+1)
		}
	}
}

func TestEmitterPercentMonotonic(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter("job1", MediaStages, rec)
	em.Start("Starting")
	em.Advance(model.StageSearching, 30, "a")
	em.Advance(model.StageFetching, 10, "b")
	em.Advance(model.StageMixing, 150, "c")

	want := []int{0, 30, 30, 99}
	for i, ev := range rec.events {
		if ev.Percent != want[i] {
			t.Errorf("event %d percent = %d, want %d", i, ev.Percent, want[i])
		}
	}
}

func TestEmitterSingleTerminalEvent(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter("job1", MediaStages, rec)
	em.Start("Starting")

	if err := em.Complete(model.ExportResult{ExportID: "abc"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := em.Fail(errors.New("late")); !errors.Is(err, ErrJobClosed) {
		t.Errorf("Fail after done = %v, want ErrJobClosed", err)
	}
	if err := em.Advance(model.StageMixing, 90, "late"); !errors.Is(err, ErrJobClosed) {
		t.Errorf("Advance after done = %v, want ErrJobClosed", err)
	}
	if err := em.Complete(nil); !errors.Is(err, ErrJobClosed) {
		t.Errorf("second Complete = %v, want ErrJobClosed", err)
	}

	terminals := 0
	for _, ev := range rec.events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want 1", terminals)
	}
	if !em.Closed() {
		t.Error("emitter should be closed")
	}
}

func TestEmitterStartOnce(t *testing.T) {
	em := NewEmitter("job1", MediaStages)
	if err := em.Start("a"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := em.Start("b"); err == nil {
		t.Error("expected error on second start")
	}
}

func TestEventShapes(t *testing.T) {
	rec := &recorder{}
	em := NewEmitter("job1", MediaStages, rec)
	em.Start("Starting")
	em.Advance(model.StageSearching, 10, "Searching")
	em.Complete(model.FindInstrumentalResult{InstrumentalID: "abc", DurationMs: 1234})

	started := marshal(t, rec.events[0])
	if started["job_id"] != "job1" {
		t.Errorf("started event job_id = %v", started["job_id"])
	}

	progress := marshal(t, rec.events[1])
	if progress["progress"] != float64(10) || progress["message"] != "Searching" {
		t.Errorf("progress event = %v", progress)
	}
	if _, ok := progress["job_id"]; ok {
		t.Error("only the started event carries job_id")
	}

	done := marshal(t, rec.events[2])
	if done["done"] != true || done["progress"] != float64(100) {
		t.Errorf("done event = %v", done)
	}
	if done["instrumental_id"] != "abc" || done["duration_ms"] != float64(1234) {
		t.Errorf("done event missing result fields: %v", done)
	}
}

func TestFailUsesPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found passes through", model.NewNotFoundError("No instrumental found"), "No instrumental found"},
		{"download", model.NewDownloadError("yt-dlp exit 1: secret stderr", nil), "Download failed"},
		{"probe", model.NewProbeError("bad json", nil), "Could not read media"},
		{"mix", model.NewMixError("ffmpeg exit 1", nil), "Export failed"},
		{"unknown", errors.New("boom"), "Processing failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			em := NewEmitter("job1", MediaStages, rec)
			em.Start("Starting")
			em.Fail(tt.err)

			last := marshal(t, rec.events[len(rec.events)-1])
			if len(last) != 1 || last["error"] != tt.want {
				t.Errorf("error event = %v, want {error: %q}", last, tt.want)
			}
		})
	}
}

func TestChanSinkClose(t *testing.T) {
	sink := NewChanSink(0)
	sink.Publish(1, Event{Stage: model.StageStarted})
	sink.Close()
	sink.Close()

	n := 0
	for range sink.Events() {
		n++
	}
	if n != 1 {
		t.Errorf("received %d events, want 1", n)
	}
}
