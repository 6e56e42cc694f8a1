package schema

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/thinggraph/thingerr"
)

//go:embed default.yaml
var defaultForest []byte

// file is the YAML document shape.
type file struct {
	Types []Node `yaml:"types"`
}

// Parse builds a registry from a YAML document.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, thingerr.New(component, "parse", thingerr.CodeConfig, "invalid schema YAML").WithCause(err)
	}
	if len(f.Types) == 0 {
		return nil, thingerr.New(component, "parse", thingerr.CodeConfig, "schema declares no types")
	}
	return New(f.Types...)
}

// Load reads and parses a YAML schema file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, thingerr.New(component, "load", thingerr.CodeConfig,
			fmt.Sprintf("failed to read schema file %s", path)).WithCause(err)
	}
	return Parse(data)
}

// Default returns the built-in forest covering the record shapes produced by
// blog, bookmark, social and media importers.
func Default() *Registry {
	r, err := Parse(defaultForest)
	if err != nil {
		panic(fmt.Sprintf("schema: built-in forest is invalid: %v", err))
	}
	return r
}
