// Package blueprint derives factories from YAML attribute sets.
//
// Models and hooks stay in code: a blueprint names a registered base factory
// and layers declarative attributes (values, printf-style sequences,
// iterators, sub-factory references by name) on top of it. Any config layer
// that can produce the same document shape can integrate the same way.
package blueprint

import (
	"fmt"
	"io"
	"os"

	"github.com/go-fabrica/fabrica"
	"gopkg.in/yaml.v3"
)

// File is one parsed blueprint document.
type File struct {
	Factories []FactorySpec `yaml:"factories"`
}

// FactorySpec derives one factory. Extends names a factory already in the
// registry; the derived factory is registered under Name.
type FactorySpec struct {
	Name    string     `yaml:"name"`
	Extends string     `yaml:"extends"`
	Attrs   []AttrSpec `yaml:"attrs"`
}

// AttrSpec declares one attribute. Exactly one of Value, Sequence, Iterator,
// or Factory must be set.
type AttrSpec struct {
	Name     string    `yaml:"name"`
	Value    yaml.Node `yaml:"value"`
	Sequence string    `yaml:"sequence"`
	Iterator []any     `yaml:"iterator"`
	Cycle    *bool     `yaml:"cycle"`
	Factory  string    `yaml:"factory"`
}

// Load parses a blueprint document.
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	return &f, nil
}

// LoadFile parses a blueprint document from disk.
func LoadFile(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blueprint: %w", err)
	}
	defer r.Close()
	return Load(r)
}

// Apply derives every factory in document order and registers it. Sub-factory
// references resolve lazily, so a blueprint factory may reference one defined
// later in the same document.
func (f *File) Apply(reg *fabrica.Registry) error {
	for _, spec := range f.Factories {
		if spec.Name == "" {
			return fmt.Errorf("blueprint factory: name is empty")
		}
		var parent *fabrica.Factory
		if spec.Extends != "" {
			base, ok := reg.Lookup(spec.Extends)
			if !ok {
				return fmt.Errorf("blueprint factory %q extends unknown factory %q", spec.Name, spec.Extends)
			}
			parent = base
		}
		attrs := make([]fabrica.Attr, 0, len(spec.Attrs))
		for _, a := range spec.Attrs {
			decl, err := a.declaration(reg)
			if err != nil {
				return fmt.Errorf("blueprint factory %q: %w", spec.Name, err)
			}
			attrs = append(attrs, fabrica.Attr{Name: a.Name, Value: decl})
		}
		fac, err := fabrica.New(fabrica.Definition{
			Name:   spec.Name,
			Parent: parent,
			Attrs:  attrs,
		})
		if err != nil {
			return fmt.Errorf("blueprint factory %q: %w", spec.Name, err)
		}
		if err := reg.Register(spec.Name, fac); err != nil {
			return err
		}
	}
	return nil
}

func (a AttrSpec) declaration(reg *fabrica.Registry) (any, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("attribute name is empty")
	}
	forms := 0
	if !a.Value.IsZero() {
		forms++
	}
	if a.Sequence != "" {
		forms++
	}
	if a.Iterator != nil {
		forms++
	}
	if a.Factory != "" {
		forms++
	}
	if forms != 1 {
		return nil, fmt.Errorf("attribute %q: exactly one of value, sequence, iterator, factory required", a.Name)
	}

	switch {
	case !a.Value.IsZero():
		var v any
		if err := a.Value.Decode(&v); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		return v, nil
	case a.Sequence != "":
		format := a.Sequence
		return fabrica.Sequence(func(n int64) any {
			return fmt.Sprintf(format, n)
		}), nil
	case a.Iterator != nil:
		it := fabrica.Iterator(a.Iterator...)
		if a.Cycle != nil && !*a.Cycle {
			it.Once()
		}
		return it, nil
	default:
		return fabrica.SubFactory(fabrica.Lookup(reg, a.Factory)), nil
	}
}
