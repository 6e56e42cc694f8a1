package identity

import (
	"strings"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

// Canonical joins a tag and a key.
func Canonical(tag, key string) string {
	return tag + ":" + key
}

// Parse splits a canonical ID at its first colon. Both segments must be
// non-empty.
func Parse(id string) (tag, key string, err error) {
	tag, key, ok := strings.Cut(id, ":")
	if !ok || tag == "" || key == "" {
		return "", "", thingerr.Newf(component, "parse", thingerr.CodeIdentity,
			"%q is not a canonical tag:key id", id)
	}
	return tag, key, nil
}

// Valid reports whether id parses as a canonical ID.
func Valid(id string) bool {
	_, _, err := Parse(id)
	return err == nil
}
