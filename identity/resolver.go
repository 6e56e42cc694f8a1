package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/sparse"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "identity"

// DefaultIgnoredFields are left out of whole-record hashes. They either
// change between imports of the same record or are already encoded in the
// tag.
var DefaultIgnoredFields = []string{
	thing.FieldID,
	thing.FieldType,
	thing.FieldDate,
	"dateModified",
	"dateImported",
	"importedAt",
	"syncedAt",
	"updatedAt",
}

// Strategy names how a key was obtained.
type Strategy string

const (
	StrategyExplicit    Strategy = "explicit"
	StrategyIdentifying Strategy = "identifying"
	StrategyContent     Strategy = "content"
)

// Resolver derives canonical IDs. It is immutable and safe for concurrent use.
type Resolver struct {
	registry *schema.Registry
	ignored  map[string]struct{}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIgnoredFields replaces DefaultIgnoredFields. "id" and "type" are always
// ignored.
func WithIgnoredFields(fields ...string) Option {
	return func(r *Resolver) {
		r.ignored = map[string]struct{}{
			thing.FieldID:   {},
			thing.FieldType: {},
		}
		for _, f := range fields {
			r.ignored[f] = struct{}{}
		}
	}
}

// New creates a Resolver backed by the given registry.
func New(registry *schema.Registry, opts ...Option) *Resolver {
	r := &Resolver{registry: registry}
	WithIgnoredFields(DefaultIgnoredFields...)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identify returns the canonical ID for t.
func (r *Resolver) Identify(t thing.Thing) (string, error) {
	id, _, err := r.IdentifyWithStrategy(t)
	return id, err
}

// IdentifyWithStrategy is Identify that also reports which strategy produced
// the key.
//
// Returns an error if:
//   - t.Type cannot be resolved (thingerr.CodeSchemaResolution)
//   - no key can be derived (thingerr.CodeIdentity)
func (r *Resolver) IdentifyWithStrategy(t thing.Thing) (string, Strategy, error) {
	res, err := r.registry.Resolve(t.Type)
	if err != nil {
		return "", "", err
	}

	if candidate := strings.TrimSpace(t.ID); candidate != "" {
		key := candidate
		if rest, ok := strings.CutPrefix(candidate, res.Tag+":"); ok {
			key = strings.TrimSpace(rest)
		}
		if key == "" {
			return "", "", thingerr.Newf(component, "identify", thingerr.CodeIdentity,
				"explicit id %q has an empty key", candidate)
		}
		return Canonical(res.Tag, key), StrategyExplicit, nil
	}

	fields := sparse.Compact(t.Fields())

	if len(res.Identify) > 0 && hasAll(fields, res.Identify) {
		canonical, err := identifyingString(res.Tag, res.Identify, fields)
		if err != nil {
			return "", "", thingerr.New(component, "identify", thingerr.CodeIdentity,
				"failed to canonicalize identifying fields").WithCause(err)
		}
		return Canonical(res.Tag, Hash(canonical)), StrategyIdentifying, nil
	}

	for f := range r.ignored {
		delete(fields, f)
	}
	if len(fields) == 0 {
		return "", "", thingerr.Newf(component, "identify", thingerr.CodeIdentity,
			"record of type %q has no identifying content", t.Type)
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", "", thingerr.New(component, "identify", thingerr.CodeIdentity,
			"failed to encode record for hashing").WithCause(err)
	}
	return Canonical(res.Tag, Hash(res.Tag+":"+string(body))), StrategyContent, nil
}

func hasAll(fields map[string]any, names []string) bool {
	for _, n := range names {
		if _, ok := fields[n]; !ok {
			return false
		}
	}
	return true
}

// identifyingString builds tag:f1=v1|f2=v2 over sorted field names.
func identifyingString(tag string, names []string, fields map[string]any) (string, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	pairs := make([]string, 0, len(sorted))
	for _, name := range sorted {
		normalized, err := normalizeValue(fields[name])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", name, err)
		}
		pairs = append(pairs, name+"="+normalized)
	}
	return tag + ":" + strings.Join(pairs, "|"), nil
}

// normalizeValue converts a field value to its canonical string form.
func normalizeValue(val any) (string, error) {
	switch v := val.(type) {
	case nil:
		return "null", nil
	case string:
		return strings.ToLower(strings.TrimSpace(v)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	case float32:
		return fmt.Sprintf("%.6f", v), nil
	case float64:
		return fmt.Sprintf("%.6f", v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal complex value to JSON: %w", err)
		}
		return string(b), nil
	}
}

// Hash returns the 16-character base64url digest of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
