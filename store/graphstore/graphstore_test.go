package graphstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/schema"
	"github.com/zero-day-ai/thinggraph/store"
	"github.com/zero-day-ai/thinggraph/store/storetest"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

type call struct {
	write  bool
	cypher string
	params map[string]any
}

// fakeRunner emulates the statements this package issues against an
// in-memory node and edge table, recording every call.
type fakeRunner struct {
	mu          sync.Mutex
	collections []string
	relType     string
	nodes       map[string]map[string]map[string]any
	rels        map[string]map[string]any
	calls       []call
	fail        error
}

func newFakeRunner(reg *schema.Registry, relType string) *fakeRunner {
	return &fakeRunner{
		collections: reg.Collections(),
		relType:     relType,
		nodes:       make(map[string]map[string]map[string]any),
		rels:        make(map[string]map[string]any),
	}
}

func (f *fakeRunner) Run(ctx context.Context, write bool, cypher string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{write: write, cypher: cypher, params: params})
	if f.fail != nil {
		return nil, f.fail
	}

	for _, c := range f.collections {
		switch cypher {
		case getQuery(c):
			n, ok := f.nodes[c][params["key"].(string)]
			if !ok {
				return nil, nil
			}
			return []map[string]any{{"doc": n[propDoc]}}, nil
		case setQuery(c):
			props := map[string]any{}
			for k, v := range params["props"].(map[string]any) {
				props[k] = v
			}
			if f.nodes[c] == nil {
				f.nodes[c] = make(map[string]map[string]any)
			}
			f.nodes[c][params["key"].(string)] = props
			return nil, nil
		case constraintQuery(c):
			return nil, nil
		}
		for _, c2 := range f.collections {
			if cypher != upsertEdgeQuery(c, c2, f.relType) {
				continue
			}
			_, okA := f.nodes[c][params["fromKey"].(string)]
			_, okB := f.nodes[c2][params["toKey"].(string)]
			if !okA || !okB {
				return []map[string]any{{"n": int64(0)}}, nil
			}
			f.rels[params["key"].(string)] = map[string]any{
				propKey:      params["key"],
				propRelation: params["relation"],
				propFrom:     params["from"],
				propTo:       params["to"],
			}
			return []map[string]any{{"n": int64(1)}}, nil
		}
	}

	switch cypher {
	case pingQuery:
		return []map[string]any{{"ok": int64(1)}}, nil
	case edgeIndexQuery(f.relType):
		return nil, nil
	case deleteEdgeQuery(f.relType):
		delete(f.rels, params["key"].(string))
		return nil, nil
	case deleteEdgesQuery(f.relType):
		n := 0
		for k, r := range f.rels {
			if r[propFrom] == params["from"] && r[propTo] == params["to"] {
				delete(f.rels, k)
				n++
			}
		}
		return []map[string]any{{"n": int64(n)}}, nil
	}
	for _, dir := range []store.Direction{store.Outbound, store.Inbound, store.Both} {
		if cypher != edgesQuery(f.relType, dir) {
			continue
		}
		var rows []map[string]any
		for _, r := range f.rels {
			e := store.Edge{From: r[propFrom].(string), To: r[propTo].(string)}
			if !dir.Matches(e, params["id"].(string)) {
				continue
			}
			rows = append(rows, map[string]any{
				"key":      r[propKey],
				"source":   r[propFrom],
				"target":   r[propTo],
				"relation": r[propRelation],
			})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("fakeRunner: unexpected statement:\n%s", cypher)
}

func open(t *testing.T, reg *schema.Registry) store.Store {
	return New(newFakeRunner(reg, DefaultRelationshipType), reg)
}

func TestStoreContract(t *testing.T) {
	storetest.RunStore(t, open)
}

func TestEdgeContract(t *testing.T) {
	storetest.RunEdges(t, open)
}

func TestSetWritesDocumentProperties(t *testing.T) {
	ctx := context.Background()
	reg := storetest.Registry(t)
	runner := newFakeRunner(reg, DefaultRelationshipType)
	s := New(runner, reg)

	p := storetest.Post("a/b")
	require.NoError(t, s.Set(ctx, p))

	node := runner.nodes["works"]["post%3Aa%2Fb"]
	require.NotNil(t, node)
	assert.Equal(t, "post%3Aa%2Fb", node[propKey])
	assert.Equal(t, "works/post%3Aa%2Fb", node[propID])
	assert.Equal(t, "post:a/b", node[propThingID])
	assert.Equal(t, "BlogPosting", node[propType])
	assert.Equal(t, "2024-03-01T12:30:00Z", node[propDate])
	assert.Contains(t, node[propDoc], `"name":"Hello a/b"`)

	last := runner.calls[len(runner.calls)-1]
	assert.True(t, last.write)
	assert.Equal(t, "MERGE (n:`works` {_key: $key})\nSET n = $props", last.cypher)
}

func TestRelationshipTypeOption(t *testing.T) {
	ctx := context.Background()
	reg := storetest.Registry(t)
	runner := newFakeRunner(reg, "RELATES_TO")
	s := New(runner, reg, WithRelationshipType("RELATES_TO"))

	require.NoError(t, s.Set(ctx, storetest.Post("a")))
	require.NoError(t, s.Set(ctx, storetest.Person("ada")))
	require.NoError(t, s.UpsertEdge(ctx, store.Edge{Key: "k", From: "post:a", To: "person:ada", Relation: "creator"}))

	last := runner.calls[len(runner.calls)-1]
	assert.Contains(t, last.cypher, "MERGE (a)-[r:`RELATES_TO` {_key: $key}]->(b)")
}

func TestEnsureSchema(t *testing.T) {
	reg := storetest.Registry(t)
	runner := newFakeRunner(reg, DefaultRelationshipType)
	s := New(runner, reg)

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.Len(t, runner.calls, len(reg.Collections())+1)
	assert.Equal(t,
		"CREATE CONSTRAINT `thinggraph_people_key` IF NOT EXISTS FOR (n:`people`) REQUIRE n._key IS UNIQUE",
		runner.calls[0].cypher)
	assert.Equal(t,
		"CREATE INDEX `thinggraph_LINKS_key` IF NOT EXISTS FOR ()-[r:`LINKS`]-() ON (r._key)",
		runner.calls[len(runner.calls)-1].cypher)
}

func TestRunnerFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	reg := storetest.Registry(t)
	runner := newFakeRunner(reg, DefaultRelationshipType)
	runner.fail = errors.New("connection reset")
	s := New(runner, reg)

	err := s.Set(ctx, storetest.Post("a"))
	require.Error(t, err)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))
	assert.True(t, thingerr.IsRetryable(err))

	_, err = s.Get(ctx, "post:a")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))

	_, err = s.Edges(ctx, "post:a", store.Both)
	assert.True(t, thingerr.IsCode(err, thingerr.CodeStorage))
}

func TestOpenRequiresURI(t *testing.T) {
	_, err := Open(context.Background(), Config{}, storetest.Registry(t))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"works", "`works`"},
		{"odd`name", "`odd``name`"},
		{"with space", "`with space`"},
	}
	for _, tt := range tests {
		if got := QuoteIdent(tt.in); got != tt.want {
			t.Errorf("QuoteIdent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildMatchKey(t *testing.T) {
	got := BuildMatchKey("works", "n", "key")
	want := "MATCH (n:`works` {_key: $key})"
	if got != want {
		t.Errorf("BuildMatchKey() = %v, want %v", got, want)
	}
}

func TestEdgesQueryDirections(t *testing.T) {
	assert.Contains(t, edgesQuery("LINKS", store.Outbound), "WHERE r._from = $id\n")
	assert.Contains(t, edgesQuery("LINKS", store.Inbound), "WHERE r._to = $id\n")
	assert.Contains(t, edgesQuery("LINKS", store.Both), "WHERE r._from = $id OR r._to = $id\n")
}

func TestNeo4jIntegration(t *testing.T) {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	storetest.RunStore(t, func(t *testing.T, reg *schema.Registry) store.Store {
		s, err := Open(context.Background(), Config{
			URI:      uri,
			User:     os.Getenv("NEO4J_USER"),
			Password: os.Getenv("NEO4J_PASSWORD"),
			Database: os.Getenv("NEO4J_DATABASE"),
		}, reg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		require.NoError(t, s.EnsureSchema(context.Background()))
		return s
	})
}
