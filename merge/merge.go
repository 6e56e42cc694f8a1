package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zero-day-ai/thinggraph/logging"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "merge"

// MismatchPolicy decides what happens when both versions declare different
// types.
type MismatchPolicy string

const (
	// MismatchMerge merges anyway, keeps the winner's type and logs a warning.
	MismatchMerge MismatchPolicy = "merge"

	// MismatchReject fails with thingerr.CodeMergeConflict.
	MismatchReject MismatchPolicy = "reject"

	// MismatchPreferExisting merges and keeps the stored type.
	MismatchPreferExisting MismatchPolicy = "prefer_existing"

	// MismatchPreferIncoming merges and keeps the incoming type.
	MismatchPreferIncoming MismatchPolicy = "prefer_incoming"
)

// ParsePolicy parses a policy name. The empty string selects MismatchMerge.
func ParsePolicy(s string) (MismatchPolicy, error) {
	switch p := MismatchPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return MismatchMerge, nil
	case MismatchMerge, MismatchReject, MismatchPreferExisting, MismatchPreferIncoming:
		return p, nil
	default:
		return "", thingerr.Newf(component, "parse_policy", thingerr.CodeConfig,
			"unknown type mismatch policy %q", s)
	}
}

// Side identifies one of the two merge inputs.
type Side string

const (
	SideExisting Side = "existing"
	SideIncoming Side = "incoming"
)

// Report describes a merge decision.
type Report struct {
	// Winner is the side whose non-empty fields took precedence.
	Winner Side

	// Filled lists the fields, sorted, that were empty in the winner and
	// taken from the loser.
	Filled []string

	// Changed is false when the result is identical to the stored entity.
	Changed bool

	// TypeMismatch is set when both sides declared different types.
	TypeMismatch bool
}

// Merger merges entities. It holds no mutable state and is safe for
// concurrent use.
type Merger struct {
	policy MismatchPolicy
	logger *logging.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithPolicy sets the type mismatch policy.
func WithPolicy(p MismatchPolicy) Option {
	return func(m *Merger) {
		m.policy = p
	}
}

// WithLogger sets the logger used to report type mismatches.
func WithLogger(l *logging.Logger) Option {
	return func(m *Merger) {
		m.logger = l
	}
}

// New creates a Merger with MismatchMerge and a discarding logger unless
// overridden.
func New(opts ...Option) *Merger {
	m := &Merger{policy: MismatchMerge}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// Policy returns the configured mismatch policy.
func (m *Merger) Policy() MismatchPolicy {
	return m.policy
}

// Merge combines existing (nil when nothing is stored) with incoming. The
// result is always sparse.
func (m *Merger) Merge(existing *thing.Thing, incoming thing.Thing) (thing.Thing, Report, error) {
	in := incoming.Sparse()
	if existing == nil {
		return in, Report{Winner: SideIncoming, Changed: true}, nil
	}
	ex := existing.Sparse()

	winner, loser, side := ex, in, SideExisting
	if newer(in, ex) {
		winner, loser, side = in, ex, SideIncoming
	}

	report := Report{Winner: side}
	typ := winner.Type
	if ex.Type != "" && in.Type != "" && ex.Type != in.Type {
		report.TypeMismatch = true
		switch m.policy {
		case MismatchReject:
			return thing.Thing{}, report, thingerr.Newf(component, "merge", thingerr.CodeMergeConflict,
				"entity %q stored as %q cannot merge incoming %q", ex.ID, ex.Type, in.Type).
				WithDetails(map[string]any{"id": ex.ID, "existing_type": ex.Type, "incoming_type": in.Type})
		case MismatchPreferExisting:
			typ = ex.Type
		case MismatchPreferIncoming:
			typ = in.Type
		default:
			m.logger.Warn("merging entities with different types",
				"id", ex.ID,
				"existing_type", ex.Type,
				"incoming_type", in.Type,
				"kept", winner.Type,
			)
		}
	}

	winnerFields := winner.Fields()
	merged := loser.Fields()
	for k := range merged {
		if _, ok := winnerFields[k]; !ok {
			report.Filled = append(report.Filled, k)
		}
	}
	sort.Strings(report.Filled)
	for k, v := range winnerFields {
		merged[k] = v
	}
	if typ != "" {
		merged[thing.FieldType] = typ
	}

	result, err := thing.FromFields(merged)
	if err != nil {
		return thing.Thing{}, report, err
	}

	report.Changed, err = differs(ex, result)
	if err != nil {
		return thing.Thing{}, report, err
	}
	return result, report, nil
}

// newer reports whether a is strictly more recent than b.
func newer(a, b thing.Thing) bool {
	if a.Date == nil {
		return false
	}
	if b.Date == nil {
		return true
	}
	return a.Date.After(*b.Date)
}

func differs(a, b thing.Thing) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, thingerr.New(component, "merge", thingerr.CodeInvalidRecord,
			"failed to encode stored entity").WithCause(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, thingerr.New(component, "merge", thingerr.CodeInvalidRecord,
			"failed to encode merged entity").WithCause(err)
	}
	return !bytes.Equal(ab, bb), nil
}

// String implements fmt.Stringer for log output.
func (r Report) String() string {
	return fmt.Sprintf("winner=%s filled=%v changed=%t mismatch=%t", r.Winner, r.Filled, r.Changed, r.TypeMismatch)
}
