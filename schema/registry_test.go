package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

func testForest(t *testing.T) *Registry {
	t.Helper()
	r, err := New(
		Node{Name: "Thing", Tag: "thing", Collection: "things"},
		Node{Name: "CreativeWork", Parent: "Thing", Collection: "works"},
		Node{Name: "Article", Parent: "CreativeWork", Tag: "article"},
		Node{Name: "BlogPosting", Parent: "Article", Tag: "post", Identify: []string{"url"}},
		Node{Name: "LiveBlogPosting", Parent: "BlogPosting"},
		Node{Name: "Orphan"},
		Node{Name: "TagOnly", Tag: "t"},
		Node{Name: "CollectionOnly", Collection: "c"},
		Node{Name: "UnderOrphan", Parent: "Orphan", Tag: "uo"},
	)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := testForest(t)

	tests := []struct {
		name           string
		typ            string
		wantTag        string
		wantCollection string
		wantIdentify   []string
	}{
		{"root defines both", "Thing", "thing", "things", nil},
		{"own collection, inherited tag", "CreativeWork", "thing", "works", nil},
		{"own tag, inherited collection", "Article", "article", "works", nil},
		{"two hops for collection", "BlogPosting", "post", "works", []string{"url"}},
		{"everything inherited", "LiveBlogPosting", "post", "works", []string{"url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, res.Tag)
			assert.Equal(t, tt.wantCollection, res.Collection)
			assert.Equal(t, tt.wantIdentify, res.Identify)
		})
	}
}

func TestResolveFailures(t *testing.T) {
	r := testForest(t)

	for _, typ := range []string{"Orphan", "TagOnly", "CollectionOnly", "UnderOrphan", "Missing"} {
		t.Run(typ, func(t *testing.T) {
			_, err := r.Resolve(typ)
			require.Error(t, err)
			assert.True(t, thingerr.IsCode(err, thingerr.CodeSchemaResolution), "got %v", err)

			// deterministic: same failure every time
			_, again := r.Resolve(typ)
			assert.Equal(t, err.Error(), again.Error())
		})
	}
}

func TestResolveReturnsCopies(t *testing.T) {
	r := testForest(t)
	res, err := r.Resolve("BlogPosting")
	require.NoError(t, err)
	res.Identify[0] = "mutated"

	again, err := r.Resolve("BlogPosting")
	require.NoError(t, err)
	assert.Equal(t, []string{"url"}, again.Identify)
}

func TestNewRejectsBadForests(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
	}{
		{"empty name", []Node{{Name: ""}}},
		{"duplicate", []Node{{Name: "A", Tag: "a", Collection: "a"}, {Name: "A"}}},
		{"self parent", []Node{{Name: "A", Parent: "A"}}},
		{"unknown parent", []Node{{Name: "A", Parent: "Ghost"}}},
		{"two cycle", []Node{{Name: "A", Parent: "B"}, {Name: "B", Parent: "A"}}},
		{"long cycle", []Node{
			{Name: "Root", Tag: "r", Collection: "r"},
			{Name: "A", Parent: "C"},
			{Name: "B", Parent: "A"},
			{Name: "C", Parent: "B"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes...)
			require.Error(t, err)
			assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig), "got %v", err)
		})
	}
}

func TestLineageAndIsA(t *testing.T) {
	r := testForest(t)

	assert.Equal(t, []string{"LiveBlogPosting", "BlogPosting", "Article", "CreativeWork", "Thing"}, r.Lineage("LiveBlogPosting"))
	assert.Nil(t, r.Lineage("Missing"))

	assert.True(t, r.IsA("BlogPosting", "CreativeWork"))
	assert.True(t, r.IsA("BlogPosting", "BlogPosting"))
	assert.False(t, r.IsA("CreativeWork", "BlogPosting"))
	assert.False(t, r.IsA("Missing", "Thing"))
}

func TestCollectionsIndex(t *testing.T) {
	r := testForest(t)

	assert.Equal(t, []string{"things", "works"}, r.Collections())
	assert.Equal(t, []string{"works"}, r.CollectionsForTag("post"))
	assert.Equal(t, []string{"things", "works"}, r.CollectionsForTag("thing"))
	assert.Empty(t, r.CollectionsForTag("nope"))
	assert.Equal(t, 9, r.Len())
	assert.Len(t, r.Names(), 9)

	n, ok := r.Node("Article")
	require.True(t, ok)
	assert.Equal(t, "CreativeWork", n.Parent)
}

func TestDefaultForestResolvesEverything(t *testing.T) {
	r := Default()
	for _, name := range r.Names() {
		res, err := r.Resolve(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, res.Tag, name)
		assert.NotEmpty(t, res.Collection, name)
	}

	res, err := r.Resolve("Photograph")
	require.NoError(t, err)
	assert.Equal(t, "photo", res.Tag)
	assert.Equal(t, "media", res.Collection)

	res, err = r.Resolve("Corporation")
	require.NoError(t, err)
	assert.Equal(t, "org", res.Tag)
	assert.Equal(t, "organizations", res.Collection)
}

func TestParse(t *testing.T) {
	r, err := Parse([]byte(`
types:
  - name: Thing
    tag: thing
    collection: things
  - name: Bookmark
    parent: Thing
    tag: bookmark
    collection: links
    identify: [url]
`))
	require.NoError(t, err)

	res, err := r.Resolve("Bookmark")
	require.NoError(t, err)
	assert.Equal(t, Resolution{Tag: "bookmark", Collection: "links", Identify: []string{"url"}}, res)

	_, err = Parse([]byte("types: ["))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))

	_, err = Parse([]byte("types: []"))
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))

	_, err = Load("/nonexistent/schema.yaml")
	assert.True(t, thingerr.IsCode(err, thingerr.CodeConfig))
}
