package store

import (
	"context"
	"sort"

	"github.com/zero-day-ai/thinggraph/identity"
	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

// Location is where an entity lives inside a backend.
type Location struct {
	ID         string
	Tag        string
	Key        string
	Collection string
}

// Route resolves the location t must be written to. t.ID must be a
// canonical ID whose tag matches the tag of t.Type, and t.Date must be
// encodable so the entity can be read back.
func Route(reg *schema.Registry, t thing.Thing) (Location, error) {
	if err := thing.CheckDate(t.Date); err != nil {
		return Location{}, err
	}
	res, err := reg.Resolve(t.Type)
	if err != nil {
		return Location{}, err
	}
	tag, key, err := identity.Parse(t.ID)
	if err != nil {
		return Location{}, err
	}
	if tag != res.Tag {
		return Location{}, thingerr.Newf("store", "route", thingerr.CodeIdentity,
			"id %q does not carry tag %q of type %q", t.ID, res.Tag, t.Type)
	}
	return Location{ID: t.ID, Tag: tag, Key: key, Collection: res.Collection}, nil
}

// Candidates lists the locations a canonical ID may be stored at, one per
// collection holding its tag. Unknown tags yield no candidates.
func Candidates(reg *schema.Registry, id string) ([]Location, error) {
	tag, key, err := identity.Parse(id)
	if err != nil {
		return nil, err
	}
	cols := reg.CollectionsForTag(tag)
	out := make([]Location, 0, len(cols))
	for _, c := range cols {
		out = append(out, Location{ID: id, Tag: tag, Key: key, Collection: c})
	}
	return out, nil
}

// Malformed reports a stored entity that cannot be decoded. The error is a
// thingerr.CodeStorage error classed permanent: retrying reads the same bytes.
func Malformed(component, operation string, cause error, details map[string]any) error {
	return thingerr.New(component, operation, thingerr.CodeStorage, "malformed stored entity").
		WithCause(cause).
		WithDetails(details).
		WithClass(thingerr.ErrorClassPermanent)
}

// CheckContext converts a finished context into a storage error.
func CheckContext(ctx context.Context, component, operation string) error {
	return thingerr.Storage(component, operation, ctx.Err())
}

// SortEdges orders edges by relation, then from, then to.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
}
