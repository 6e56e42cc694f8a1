package schema

import (
	"sort"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "schema"

// Node is one type definition in the forest.
type Node struct {
	Name       string   `yaml:"name" json:"name"`
	Parent     string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Tag        string   `yaml:"tag,omitempty" json:"tag,omitempty"`
	Collection string   `yaml:"collection,omitempty" json:"collection,omitempty"`
	Identify   []string `yaml:"identify,omitempty" json:"identify,omitempty"`
}

// Resolution is the inherited view of a node.
type Resolution struct {
	// Tag is the canonical ID prefix.
	Tag string

	// Collection is the storage partition.
	Collection string

	// Identify lists identifying fields, or nil when the chain declares none.
	Identify []string
}

// Registry is an immutable, fully resolved type forest.
type Registry struct {
	nodes    map[string]Node
	resolved map[string]Resolution
	failures map[string]*thingerr.Error
	byTag    map[string][]string
	names    []string
}

// New validates nodes and builds a registry. Duplicate or empty names,
// unknown parents and parent cycles are configuration errors.
func New(nodes ...Node) (*Registry, error) {
	r := &Registry{
		nodes:    make(map[string]Node, len(nodes)),
		resolved: make(map[string]Resolution, len(nodes)),
		failures: make(map[string]*thingerr.Error),
		byTag:    make(map[string][]string),
	}

	for _, n := range nodes {
		if n.Name == "" {
			return nil, thingerr.New(component, "new", thingerr.CodeConfig, "node with empty name")
		}
		if _, dup := r.nodes[n.Name]; dup {
			return nil, thingerr.Newf(component, "new", thingerr.CodeConfig, "duplicate type %q", n.Name)
		}
		if n.Parent == n.Name {
			return nil, thingerr.Newf(component, "new", thingerr.CodeConfig, "type %q is its own parent", n.Name)
		}
		r.nodes[n.Name] = n
		r.names = append(r.names, n.Name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		n := r.nodes[name]
		if n.Parent != "" {
			if _, ok := r.nodes[n.Parent]; !ok {
				return nil, thingerr.Newf(component, "new", thingerr.CodeConfig,
					"type %q has unknown parent %q", n.Name, n.Parent)
			}
		}
	}

	for _, name := range r.names {
		if err := r.checkCycle(name); err != nil {
			return nil, err
		}
	}

	collectionsByTag := make(map[string]map[string]struct{})
	for _, name := range r.names {
		res, err := r.walk(name)
		if err != nil {
			r.failures[name] = err
			continue
		}
		r.resolved[name] = res
		if collectionsByTag[res.Tag] == nil {
			collectionsByTag[res.Tag] = make(map[string]struct{})
		}
		collectionsByTag[res.Tag][res.Collection] = struct{}{}
	}
	for tag, set := range collectionsByTag {
		cols := make([]string, 0, len(set))
		for c := range set {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		r.byTag[tag] = cols
	}

	return r, nil
}

// checkCycle walks the parent chain of name iteratively with a visited set.
func (r *Registry) checkCycle(name string) error {
	visited := map[string]bool{}
	for cur := name; cur != ""; cur = r.nodes[cur].Parent {
		if visited[cur] {
			return thingerr.Newf(component, "new", thingerr.CodeConfig,
				"parent cycle through type %q", cur).
				WithDetails(map[string]any{"start": name})
		}
		visited[cur] = true
	}
	return nil
}

// walk resolves tag, collection and identifying fields independently along
// the chain. Only called after cycle checking.
func (r *Registry) walk(name string) (Resolution, *thingerr.Error) {
	var res Resolution
	for cur := name; cur != ""; cur = r.nodes[cur].Parent {
		n := r.nodes[cur]
		if res.Tag == "" {
			res.Tag = n.Tag
		}
		if res.Collection == "" {
			res.Collection = n.Collection
		}
		if res.Identify == nil && len(n.Identify) > 0 {
			res.Identify = append([]string(nil), n.Identify...)
		}
	}

	switch {
	case res.Tag == "" && res.Collection == "":
		return Resolution{}, thingerr.Newf(component, "resolve", thingerr.CodeSchemaResolution,
			"no tag or collection reachable from type %q", name)
	case res.Tag == "":
		return Resolution{}, thingerr.Newf(component, "resolve", thingerr.CodeSchemaResolution,
			"no tag reachable from type %q", name)
	case res.Collection == "":
		return Resolution{}, thingerr.Newf(component, "resolve", thingerr.CodeSchemaResolution,
			"no collection reachable from type %q", name)
	}
	return res, nil
}

// Resolve returns the memoized resolution for a type name. Unknown names and
// chains that never reach a tag and a collection fail with
// thingerr.CodeSchemaResolution.
func (r *Registry) Resolve(name string) (Resolution, error) {
	if res, ok := r.resolved[name]; ok {
		res.Identify = append([]string(nil), res.Identify...)
		return res, nil
	}
	if err, ok := r.failures[name]; ok {
		// fresh copy so callers may decorate it
		cp := *err
		return Resolution{}, &cp
	}
	return Resolution{}, thingerr.Newf(component, "resolve", thingerr.CodeSchemaResolution,
		"type %q not registered", name).WithDetails(map[string]any{"type": name})
}

// Node returns the declared (not inherited) definition of a type.
func (r *Registry) Node(name string) (Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Lineage returns name followed by its ancestors, nearest first. It returns
// nil for unknown names.
func (r *Registry) Lineage(name string) []string {
	if _, ok := r.nodes[name]; !ok {
		return nil
	}
	var out []string
	for cur := name; cur != ""; cur = r.nodes[cur].Parent {
		out = append(out, cur)
	}
	return out
}

// IsA reports whether ancestor appears in name's lineage (a type is a
// subtype of itself).
func (r *Registry) IsA(name, ancestor string) bool {
	for _, n := range r.Lineage(name) {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return len(r.names)
}

// Collections returns every collection some resolvable type maps to, sorted.
func (r *Registry) Collections() []string {
	set := map[string]struct{}{}
	for _, res := range r.resolved {
		set[res.Collection] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// CollectionsForTag returns the collections holding entities with the given
// tag, sorted. Stores use it to route lookups by canonical ID.
func (r *Registry) CollectionsForTag(tag string) []string {
	return append([]string(nil), r.byTag[tag]...)
}
