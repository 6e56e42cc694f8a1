package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// RecordError is a failure tied to one record of a batch.
type RecordError struct {
	Index int
	Type  string
	ID    string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s %s): %v", e.Index, e.Type, e.ID, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// Summary tallies a batch.
type Summary struct {
	Total     int
	Processed int
	Written   int
	Merged    int
	Unchanged int
	Filtered  int
	Failed    int

	// Canceled is true when the context ended the batch early.
	Canceled bool

	Errors []RecordError
}

// Retryable returns the failures whose cause is transient.
func (s Summary) Retryable() []RecordError {
	var out []RecordError
	for _, e := range s.Errors {
		if thingerr.IsRetryable(e.Err) {
			out = append(out, e)
		}
	}
	return out
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d processed: %d written, %d merged, %d unchanged, %d filtered, %d failed",
		s.Processed, s.Total, s.Written, s.Merged, s.Unchanged, s.Filtered, s.Failed)
	if s.Canceled {
		b.WriteString(" (canceled)")
	}
	return b.String()
}

// Run puts every record in order. A failing record is recorded in the
// summary and the batch moves on; a done context stops the batch before
// the next record.
func (p *Pipeline) Run(ctx context.Context, records []thing.Thing) Summary {
	sum := Summary{Total: len(records)}
	for i, rec := range records {
		if ctx.Err() != nil {
			sum.Canceled = true
			break
		}
		sum.Processed++

		res, err := p.Put(ctx, rec)
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, RecordError{Index: i, Type: rec.Type, ID: res.ID, Err: err})
			p.logger.Warn("record failed",
				"index", i,
				"type", rec.Type,
				"id", res.ID,
				"code", thingerr.Code(err),
				"error", err,
			)
			continue
		}

		switch {
		case res.FilteredBy != "":
			sum.Filtered++
		case res.Skipped:
			sum.Unchanged++
		case res.Created:
			sum.Written++
		default:
			sum.Merged++
		}
	}

	p.logger.Info("batch finished",
		"total", sum.Total,
		"written", sum.Written,
		"merged", sum.Merged,
		"unchanged", sum.Unchanged,
		"filtered", sum.Filtered,
		"failed", sum.Failed,
		"canceled", sum.Canceled,
	)
	return sum
}
