// Package graphstore persists entities and edges in Neo4j.
//
// Each collection is a node label. A document node carries:
//
//	_key  canonical ID escaped with store.EscapeKey ("post%3Ahello")
//	_id   "<collection>/<_key>"
//	doc   the sparse entity as JSON
//	id, type, date  scalar copies for ad-hoc Cypher
//
// Edges share one relationship type (LINKS unless configured) and carry
// _key, relation, _from and _to. Writes are single MERGE statements, so
// re-setting an entity or re-linking a pair never creates duplicates.
//
//	s, err := graphstore.Open(ctx, graphstore.Config{URI: "neo4j://localhost:7687"}, reg)
//	if err != nil {
//	    return err
//	}
//	defer s.Close(ctx)
//	if err := s.EnsureSchema(ctx); err != nil {
//	    return err
//	}
package graphstore
