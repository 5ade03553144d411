package fabrica

import (
	"context"
	"fmt"
	"strings"
)

// declEntry is one slot of a merged declaration set. Position carries the
// application order of post-generation declarations: inherited first, new
// names appended, overridden names kept in place.
type declEntry struct {
	name         string
	decl         Declaration
	extracted    any
	hasExtracted bool
}

// factoryMeta is the per-factory metadata snapshot, merged down the parent
// chain once at construction and immutable afterwards.
type factoryMeta struct {
	name       string
	model      any
	modelFunc  func() any
	abstract   bool
	exclude    map[string]struct{}
	rename     map[string]string
	inlineArgs []string
	strategy   Strategy

	entries []declEntry
	index   map[string]int
	params  map[string]struct{}
	traits  []TraitSpec

	instantiate     func(ctx context.Context, in Instantiation) (any, error)
	persist         func(ctx context.Context, obj any) error
	initialSequence func() (int64, error)
	tracer          Tracer
}

func toDecl(v any) Declaration {
	if d, ok := v.(Declaration); ok {
		return d
	}
	return staticDecl{value: v}
}

// applyAttr merges one attribute into a declaration set, most-derived
// winning, keeping an overridden name at its original position. A raw value
// shadowing a post-generation declaration does not replace the hook; it
// becomes the hook's declared extraction default.
func applyAttr(entries []declEntry, index map[string]int, a Attr) []declEntry {
	i, ok := index[a.Name]
	if !ok {
		index[a.Name] = len(entries)
		return append(entries, declEntry{name: a.Name, decl: toDecl(a.Value)})
	}
	existing := entries[i]
	if existing.decl.Phase() == PhasePost {
		if d, isDecl := a.Value.(Declaration); isDecl {
			entries[i] = declEntry{name: a.Name, decl: d}
		} else {
			existing.extracted = a.Value
			existing.hasExtracted = true
			entries[i] = existing
		}
		return entries
	}
	entries[i] = declEntry{name: a.Name, decl: toDecl(a.Value)}
	return entries
}

func mergeMeta(def Definition) (*factoryMeta, error) {
	m := &factoryMeta{
		index:  make(map[string]int),
		params: make(map[string]struct{}),
	}

	if p := def.Parent; p != nil {
		pm := p.meta
		m.model = pm.model
		m.modelFunc = pm.modelFunc
		m.strategy = pm.strategy
		m.entries = append(m.entries, pm.entries...)
		for name, i := range pm.index {
			m.index[name] = i
		}
		for name := range pm.params {
			m.params[name] = struct{}{}
		}
		m.traits = append(m.traits, pm.traits...)
		m.exclude = pm.exclude
		m.rename = pm.rename
		m.inlineArgs = pm.inlineArgs
		m.instantiate = pm.instantiate
		m.persist = pm.persist
		m.initialSequence = pm.initialSequence
		m.tracer = pm.tracer
	}

	// Abstractness is a property of the class itself, never inherited.
	m.abstract = def.Abstract

	if def.Model != nil {
		m.model = def.Model
		m.modelFunc = nil
	}
	if def.ModelFunc != nil {
		m.modelFunc = def.ModelFunc
		m.model = nil
	}
	if def.Strategy != StrategyBuild {
		m.strategy = def.Strategy
	}
	if def.Exclude != nil {
		m.exclude = make(map[string]struct{}, len(def.Exclude))
		for _, name := range def.Exclude {
			m.exclude[name] = struct{}{}
		}
	}
	if def.Rename != nil {
		m.rename = def.Rename
	}
	if def.InlineArgs != nil {
		m.inlineArgs = def.InlineArgs
	}
	if def.Instantiate != nil {
		m.instantiate = def.Instantiate
	}
	if def.Persist != nil {
		m.persist = def.Persist
	}
	if def.InitialSequence != nil {
		m.initialSequence = def.InitialSequence
	}
	if def.Tracer != nil {
		m.tracer = def.Tracer
	}

	m.name = def.Name
	if m.name == "" {
		m.name = deriveName(m)
	}

	seen := make(map[string]struct{}, len(def.Attrs)+len(def.Params))
	for _, a := range append(append([]Attr(nil), def.Attrs...), def.Params...) {
		if _, dup := seen[a.Name]; dup {
			return nil, DuplicateAttrError{Factory: m.name, Attr: a.Name}
		}
		seen[a.Name] = struct{}{}
		m.entries = applyAttr(m.entries, m.index, a)
	}
	for _, p := range def.Params {
		m.params[p.Name] = struct{}{}
	}

	for _, t := range def.Traits {
		replaced := false
		for i := range m.traits {
			if m.traits[i].Name == t.Name {
				m.traits[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			m.traits = append(m.traits, t)
		}
	}

	for _, name := range m.inlineArgs {
		if _, ok := m.index[name]; !ok {
			return nil, fmt.Errorf("factory %q: inline arg %q is not declared", m.name, name)
		}
	}
	if len(m.inlineArgs) > 0 && m.instantiate == nil {
		return nil, fmt.Errorf("factory %q: inline args require an Instantiate hook", m.name)
	}
	return m, nil
}

func deriveName(m *factoryMeta) string {
	if m.model != nil {
		name := fmt.Sprintf("%T", m.model)
		name = strings.TrimPrefix(name, "*")
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return name + "Factory"
	}
	if m.abstract {
		return "AbstractFactory"
	}
	return "Factory"
}

// hasModel reports whether any instantiation path exists. Stub generation
// does not need one.
func (m *factoryMeta) hasModel() bool {
	return m.model != nil || m.modelFunc != nil || m.instantiate != nil
}

// modelPrototype resolves the deferred model reference on first use.
func (f *Factory) modelPrototype() any {
	f.modelOnce.Do(func() {
		if f.meta.model != nil {
			f.modelVal = f.meta.model
			return
		}
		if f.meta.modelFunc != nil {
			f.modelVal = f.meta.modelFunc()
		}
	})
	return f.modelVal
}

func cloneEntries(entries []declEntry) []declEntry {
	cloned := make([]declEntry, len(entries))
	copy(cloned, entries)
	return cloned
}
