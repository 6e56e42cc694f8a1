package sparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompact(t *testing.T) {
	when := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record map[string]any
		want   map[string]any
	}{
		{
			name:   "nil record",
			record: nil,
			want:   map[string]any{},
		},
		{
			name: "drops nil and empty string",
			record: map[string]any{
				"name":        "Post",
				"description": "",
				"url":         nil,
			},
			want: map[string]any{"name": "Post"},
		},
		{
			name: "keeps zero numbers, false and times",
			record: map[string]any{
				"count":     0,
				"published": false,
				"ratio":     0.0,
				"date":      when,
			},
			want: map[string]any{
				"count":     0,
				"published": false,
				"ratio":     0.0,
				"date":      when,
			},
		},
		{
			name: "drops empty collections",
			record: map[string]any{
				"keywords": []any{},
				"tags":     []string{},
				"meta":     map[string]any{},
				"labels":   map[string]string{},
			},
			want: map[string]any{},
		},
		{
			name: "array of only empty elements is dropped",
			record: map[string]any{
				"keywords": []any{"", nil, []any{}, map[string]any{}},
			},
			want: map[string]any{},
		},
		{
			name: "nested maps compacted recursively",
			record: map[string]any{
				"author": map[string]any{
					"name":  "Ada",
					"email": "",
					"links": map[string]any{"home": ""},
				},
			},
			want: map[string]any{
				"author": map[string]any{"name": "Ada"},
			},
		},
		{
			name: "typed containers normalized",
			record: map[string]any{
				"keywords": []string{"go", "", "graphs"},
				"counts":   map[string]int{"views": 3},
			},
			want: map[string]any{
				"keywords": []any{"go", "graphs"},
				"counts":   map[string]any{"views": 3},
			},
		},
		{
			name: "mixed slice keeps populated elements in order",
			record: map[string]any{
				"images": []any{map[string]any{"url": ""}, map[string]any{"url": "a.png"}, "b.png"},
			},
			want: map[string]any{
				"images": []any{map[string]any{"url": "a.png"}, "b.png"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compact(tt.record))
		})
	}
}

func TestCompactDoesNotMutateInput(t *testing.T) {
	record := map[string]any{
		"name":   "",
		"nested": map[string]any{"x": ""},
	}
	_ = Compact(record)
	assert.Len(t, record, 2)
	assert.Equal(t, map[string]any{"x": ""}, record["nested"])
}

func TestCompactIsIdempotent(t *testing.T) {
	record := map[string]any{
		"name":     "x",
		"keywords": []string{"a", ""},
		"nested":   map[string]any{"deep": map[string]any{"v": 1, "w": nil}},
	}
	once := Compact(record)
	assert.Equal(t, once, Compact(once))
}

func TestIsEmpty(t *testing.T) {
	var nilPtr *int
	var nilSlice []int
	var nilMap map[string]string
	one := 1

	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(nilPtr))
	assert.True(t, IsEmpty(nilSlice))
	assert.True(t, IsEmpty(nilMap))
	assert.True(t, IsEmpty([]int{}))
	assert.True(t, IsEmpty([]byte{}))

	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty(" "))
	assert.False(t, IsEmpty(&one))
	assert.False(t, IsEmpty([]int{0}))
	assert.False(t, IsEmpty([]byte("x")))
}
