// Package thinggraph deduplicates and merges the loosely-typed "Thing"
// records produced by importers into a single canonical entity per
// real-world item.
//
// # Core Concepts
//
//   - Type forest: a schema.Registry mapping every type name to the tag that
//     prefixes its IDs and the collection it is stored in, inherited along
//     parent chains.
//   - Canonical ID: "<tag>:<key>", taken from an explicit id, derived from
//     identifying fields, or hashed from the whole record (package identity).
//   - Merge: newest record wins field by field, older records fill the gaps
//     (package merge).
//   - Stores: memory, file (hackpadfs), Neo4j and Redis backends behind
//     store.Store. The memory and Neo4j backends also implement
//     store.EdgeStore and carry relationships (package relation).
//
// # Getting Started
//
// Open wires everything from a config file:
//
//	cfg, err := config.Load("thinggraph.yaml")
//	if err != nil {
//		return err
//	}
//	p, err := thinggraph.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	res, err := p.Put(ctx, thing.Thing{
//		Type: "BlogPosting",
//		Name: "Hello, world",
//		URL:  "https://example.com/hello",
//	})
//
// Errors are *thingerr.Error values carrying a stable code; storage errors
// are the only transient class.
package thinggraph
