package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello-world", "hello-world"},
		{"post:hello", "post%3Ahello"},
		{"a/b c", "a%2Fb%20c"},
		{".hidden", "%2Ehidden"},
		{"..", "%2E."},
		{"v1.2", "v1.2"},
		{"100%", "100%25"},
		{"café", "caf%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := EscapeKey(tt.in)
			assert.Equal(t, tt.want, got)

			back, err := UnescapeKey(got)
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestUnescapeKeyErrors(t *testing.T) {
	for _, bad := range []string{"abc%", "abc%4", "%ZZ"} {
		_, err := UnescapeKey(bad)
		assert.Error(t, err, bad)
	}
}
