package behavior

import (
	_ "embed"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/symex/internal/se/constraint"
)

//go:embed builtins.yaml
var builtinsYAML []byte

// Registry holds built-in behaviors for library callees whose bodies are not
// available. It is filled before a run and read concurrently afterwards.
type Registry struct {
	entries map[string]*Behavior
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Behavior)}
}

// DefaultRegistry returns the registry of the standard built-ins.
func DefaultRegistry() (*Registry, error) {
	specs, err := ParseSpecs(builtinsYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing built-in behaviors: %w", err)
	}
	r := NewRegistry()
	if err := r.Load(specs); err != nil {
		return nil, err
	}
	return r, nil
}

// Add registers b, replacing any behavior with the same key.
func (r *Registry) Add(b *Behavior) {
	r.entries[b.Key] = b
}

// Lookup returns the built-in behavior of key, or nil.
func (r *Registry) Lookup(key string) *Behavior {
	if r == nil {
		return nil
	}
	return r.entries[key]
}

func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := maps.Keys(r.entries)
	slices.Sort(keys)
	return keys
}

// Load registers every spec.
func (r *Registry) Load(specs []Spec) error {
	for _, s := range specs {
		b, err := s.Behavior()
		if err != nil {
			return err
		}
		r.Add(b)
	}
	return nil
}

// Spec is the configuration form of a behavior.
//
//	- key: "Objects#requireNonNull(1)"
//	  yields:
//	    - params: [[not-null]]
//	      result-param: 0
//	    - params: [[null]]
//	      throws: NullPointerException
type Spec struct {
	Key     string      `yaml:"key"`
	Params  int         `yaml:"params,omitempty"`
	VarArgs bool        `yaml:"varargs,omitempty"`
	Yields  []YieldSpec `yaml:"yields"`
}

type YieldSpec struct {
	// Params lists constraint names per parameter.
	Params      [][]string `yaml:"params,omitempty"`
	Result      []string   `yaml:"result,omitempty"`
	ResultParam *int       `yaml:"result-param,omitempty"`
	Throws      string     `yaml:"throws,omitempty"`
}

// ParseSpecs decodes a YAML list of specs.
func ParseSpecs(data []byte) ([]Spec, error) {
	var specs []Spec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// Behavior converts s. Built-in behaviors are complete.
func (s Spec) Behavior() (*Behavior, error) {
	if s.Key == "" {
		return nil, fmt.Errorf("behavior spec without key")
	}
	n := s.Params
	for _, y := range s.Yields {
		if len(y.Params) > n {
			n = len(y.Params)
		}
	}
	b := &Behavior{Key: s.Key, Params: n, Complete: true, VarArgs: s.VarArgs}
	for i, ys := range s.Yields {
		params := make([]constraint.Set, n)
		for p, names := range ys.Params {
			cs, err := parseSet(names)
			if err != nil {
				return nil, fmt.Errorf("behavior %s, yield %d, param %d: %w", s.Key, i, p, err)
			}
			params[p] = cs
		}
		if ys.Throws != "" {
			b.Yields = append(b.Yields, NewExceptional(params, ys.Throws, nil))
			continue
		}
		result, err := parseSet(ys.Result)
		if err != nil {
			return nil, fmt.Errorf("behavior %s, yield %d, result: %w", s.Key, i, err)
		}
		idx := -1
		if ys.ResultParam != nil {
			idx = *ys.ResultParam
			if idx < 0 || idx >= n {
				return nil, fmt.Errorf("behavior %s, yield %d: result-param %d out of range", s.Key, i, idx)
			}
		}
		b.Yields = append(b.Yields, NewHappyPath(params, result, idx, nil))
	}
	return b, nil
}

func parseSet(names []string) (constraint.Set, error) {
	var cs constraint.Set
	for _, name := range names {
		c, err := constraint.Parse(name)
		if err != nil {
			return constraint.Set{}, err
		}
		if cs.Conflicts(c) {
			return constraint.Set{}, fmt.Errorf("conflicting constraints %s and %s", cs.Get(c.Domain()), c)
		}
		cs = cs.With(c)
	}
	return cs, nil
}
