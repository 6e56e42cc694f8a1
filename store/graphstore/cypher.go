package graphstore

import (
	"fmt"
	"strings"

	"github.com/zero-day-ai/thinggraph/store"
)

// Property names written on every entity node and edge.
const (
	propKey      = "_key"
	propID       = "_id"
	propDoc      = "doc"
	propThingID  = "id"
	propType     = "type"
	propDate     = "date"
	propRelation = "relation"
	propFrom     = "_from"
	propTo       = "_to"
)

// QuoteIdent backtick-quotes a label or relationship type. Embedded
// backticks are doubled, so collection names never escape the identifier.
//
// Example:
//
//	QuoteIdent("works") // Returns: "`works`"
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// BuildMatchKey generates a MATCH clause for one document by key parameter.
//
// Example:
//
//	BuildMatchKey("works", "n", "key") // Returns: "MATCH (n:`works` {_key: $key})"
func BuildMatchKey(collection, alias, param string) string {
	return fmt.Sprintf("MATCH (%s:%s {%s: $%s})", alias, QuoteIdent(collection), propKey, param)
}

// getQuery reads one document body.
func getQuery(collection string) string {
	return BuildMatchKey(collection, "n", "key") + "\nRETURN n." + propDoc + " AS doc"
}

// setQuery upserts a document, replacing every property.
func setQuery(collection string) string {
	return fmt.Sprintf("MERGE (n:%s {%s: $key})\nSET n = $props", QuoteIdent(collection), propKey)
}

// upsertEdgeQuery merges one edge between two located documents.
func upsertEdgeQuery(fromCollection, toCollection, relType string) string {
	return strings.Join([]string{
		BuildMatchKey(fromCollection, "a", "fromKey"),
		BuildMatchKey(toCollection, "b", "toKey"),
		fmt.Sprintf("MERGE (a)-[r:%s {%s: $key}]->(b)", QuoteIdent(relType), propKey),
		fmt.Sprintf("SET r.%s = $relation, r.%s = $from, r.%s = $to", propRelation, propFrom, propTo),
		"RETURN count(r) AS n",
	}, "\n")
}

func deleteEdgeQuery(relType string) string {
	return fmt.Sprintf("MATCH ()-[r:%s {%s: $key}]->()\nDELETE r", QuoteIdent(relType), propKey)
}

func deleteEdgesQuery(relType string) string {
	return fmt.Sprintf("MATCH ()-[r:%s {%s: $from, %s: $to}]->()\nDELETE r\nRETURN count(r) AS n",
		QuoteIdent(relType), propFrom, propTo)
}

// edgesQuery lists edges touching $id in the given direction.
func edgesQuery(relType string, dir store.Direction) string {
	var where string
	switch dir {
	case store.Inbound:
		where = fmt.Sprintf("r.%s = $id", propTo)
	case store.Both:
		where = fmt.Sprintf("r.%s = $id OR r.%s = $id", propFrom, propTo)
	default:
		where = fmt.Sprintf("r.%s = $id", propFrom)
	}
	return fmt.Sprintf("MATCH ()-[r:%s]->()\nWHERE %s\nRETURN r.%s AS key, r.%s AS source, r.%s AS target, r.%s AS relation\nORDER BY relation, source, target",
		QuoteIdent(relType), where, propKey, propFrom, propTo, propRelation)
}

const pingQuery = "RETURN 1 AS ok"

// constraintQuery makes _key unique within a collection.
func constraintQuery(collection string) string {
	name := "thinggraph_" + store.EscapeKey(collection) + "_key"
	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		QuoteIdent(name), QuoteIdent(collection), propKey)
}

// edgeIndexQuery indexes edge keys.
func edgeIndexQuery(relType string) string {
	name := "thinggraph_" + store.EscapeKey(relType) + "_key"
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR ()-[r:%s]-() ON (r.%s)",
		QuoteIdent(name), QuoteIdent(relType), propKey)
}
