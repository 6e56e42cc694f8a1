package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// DefaultQueue is the list workers consume when none is configured.
const DefaultQueue = "thinggraph:ingest"

// ResultChannel returns the Pub/Sub channel carrying results for a job.
func ResultChannel(jobID string) string {
	return "results:" + jobID
}

// Item is one record in flight between an importer and a worker.
type Item struct {
	// JobID groups the items of one submission.
	JobID string `json:"job_id"`

	// Index is the position of the record within the job, starting at 0.
	Index int `json:"index"`

	// Total is the number of records in the job.
	Total int `json:"total"`

	// Record is the JSON form of a thing.Thing.
	Record json.RawMessage `json:"record"`

	// TraceID and SpanID carry the submitter's span, hex encoded.
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	// SubmittedAt is the submission time in Unix milliseconds.
	SubmittedAt int64 `json:"submitted_at"`
}

// NewItem encodes t into an Item.
func NewItem(jobID string, index, total int, t thing.Thing) (Item, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return Item{}, thingerr.New(component, "encode", thingerr.CodeInvalidRecord, "failed to encode record").WithCause(err)
	}
	return Item{
		JobID:       jobID,
		Index:       index,
		Total:       total,
		Record:      raw,
		SubmittedAt: time.Now().UnixMilli(),
	}, nil
}

// Thing decodes the record.
func (i Item) Thing() (thing.Thing, error) {
	var t thing.Thing
	if len(i.Record) == 0 {
		return t, thingerr.New(component, "decode", thingerr.CodeInvalidRecord, "item has no record")
	}
	if err := json.Unmarshal(i.Record, &t); err != nil {
		return t, thingerr.New(component, "decode", thingerr.CodeInvalidRecord, "failed to decode record").WithCause(err)
	}
	return t, nil
}

// Validate checks the fields a worker relies on.
func (i Item) Validate() error {
	if i.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if i.Index < 0 {
		return fmt.Errorf("index must be non-negative, got %d", i.Index)
	}
	if i.Total <= 0 {
		return fmt.Errorf("total must be positive, got %d", i.Total)
	}
	if i.Index >= i.Total {
		return fmt.Errorf("index %d out of range for total %d", i.Index, i.Total)
	}
	return nil
}

// Result is the outcome of ingesting one Item.
type Result struct {
	JobID string `json:"job_id"`
	Index int    `json:"index"`

	// ID and Collection locate the stored entity.
	ID         string `json:"id,omitempty"`
	Collection string `json:"collection,omitempty"`

	// Outcome is one of the ingest.Outcome* values.
	Outcome string `json:"outcome"`

	// Error and Code describe a failure. Code is a thingerr code.
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`

	WorkerID    string `json:"worker_id"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at"`
}

// IsSuccess reports whether the record was ingested or skipped without error.
func (r Result) IsSuccess() bool {
	return r.Error == ""
}

// Duration returns the time the worker spent on the item.
func (r Result) Duration() time.Duration {
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}
