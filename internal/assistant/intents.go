package assistant

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed intents.yaml
var builtinIntents []byte

type Intent struct {
	Tag       string   `yaml:"tag"`
	Keywords  []string `yaml:"keywords"`
	Responses []string `yaml:"responses"`
}

// Catalog holds the intents in priority order plus the generic tips used to
// pad short answers.
type Catalog struct {
	Intents  []Intent `yaml:"intents"`
	Defaults []string `yaml:"defaults"`
}

func ParseCatalog(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("assistant: parse intents: %w", err)
	}
	for i, in := range c.Intents {
		if in.Tag == "" {
			return Catalog{}, fmt.Errorf("assistant: intent %d has no tag", i)
		}
	}
	return c, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() Catalog {
	c, err := ParseCatalog(builtinIntents)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog) Lookup(tag string) (Intent, bool) {
	for _, in := range c.Intents {
		if in.Tag == tag {
			return in, true
		}
	}
	return Intent{}, false
}
