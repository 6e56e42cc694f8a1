// Package schema provides the type forest every imported record is resolved
// against.
//
// # Core Concepts
//
// A Node names a type ("BlogPosting") and optionally declares:
//   - Parent: the type it inherits from
//   - Tag: the short identifier used in canonical IDs ("post")
//   - Collection: the storage partition ("works")
//   - Identify: the fields that identify an instance when no explicit key exists
//
// Tag, Collection and Identify are inherited independently: each is taken
// from the nearest node along the parent chain that defines it, so a node may
// define its own tag while inheriting its collection.
//
// # Resolution
//
// A Registry is built once from a set of nodes and never changes afterwards.
// Construction rejects duplicate names, unknown parents and cycles, then
// resolves every node and memoizes the outcome:
//
//	reg, err := schema.New(
//	    schema.Node{Name: "Thing", Tag: "thing", Collection: "things"},
//	    schema.Node{Name: "CreativeWork", Parent: "Thing", Collection: "works"},
//	    schema.Node{Name: "BlogPosting", Parent: "CreativeWork", Tag: "post"},
//	)
//	res, err := reg.Resolve("BlogPosting")
//	// res.Tag == "post", res.Collection == "works"
//
// A node whose chain never reaches a tag and a collection is accepted at
// construction but fails every Resolve call with a SCHEMA_RESOLUTION error.
//
// The registry is passed explicitly to the components that need it; there is
// no package-level instance. Reads are safe for concurrent use.
//
// # YAML
//
// Registries load from YAML with Load or Parse:
//
//	types:
//	  - name: Thing
//	    tag: thing
//	    collection: things
//	  - name: Bookmark
//	    parent: CreativeWork
//	    tag: bookmark
//	    identify: [url]
//
// Default returns the built-in schema.org-style forest.
package schema
