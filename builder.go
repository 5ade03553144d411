package fabrica

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// stepBuilder drives one generate operation through its stages:
// merge overrides, resolve pre-declarations, instantiate, apply
// post-generation. No stage is revisited; a failure anywhere aborts the
// whole call.
type stepBuilder struct {
	factory   *Factory
	strategy  Strategy
	parent    *Resolver
	overrides Args
	depth     int
	ctx       context.Context
}

// mergedCall is the working declaration set of a single generate call.
type mergedCall struct {
	pre       []declEntry
	post      []declEntry
	overrides map[string]any
	nested    map[string]Args
	forcedSeq *int64
}

func (b *stepBuilder) build(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b.ctx = ctx
	f := b.factory
	m := f.meta

	if m.abstract {
		return nil, AbstractFactoryError{Factory: f.Name()}
	}
	if b.strategy != StrategyStub && !m.hasModel() {
		return nil, AbstractFactoryError{Factory: f.Name()}
	}

	merged, err := b.merge()
	if err != nil {
		return nil, err
	}

	r := newResolver(b, b.parent, merged.pre, merged.overrides, merged.nested)
	if merged.forcedSeq != nil {
		r.forceSequence(*merged.forcedSeq)
	}
	for _, e := range merged.pre {
		if _, err := r.Attr(e.name); err != nil {
			return nil, fmt.Errorf("resolve attribute %q of %s: %w", e.name, f.Name(), err)
		}
	}

	kwargs := make(map[string]any, len(merged.pre))
	order := make([]string, 0, len(merged.pre))
	for _, e := range merged.pre {
		name := e.name
		if _, excluded := m.exclude[name]; excluded {
			continue
		}
		if _, isParam := m.params[name]; isParam {
			continue
		}
		v := r.resolved[name]
		if target, ok := m.rename[name]; ok {
			name = target
		}
		kwargs[name] = v
		order = append(order, name)
	}

	if b.strategy == StrategyStub {
		return &Stub{names: order, attrs: kwargs}, nil
	}

	args := make([]any, 0, len(m.inlineArgs))
	for _, name := range m.inlineArgs {
		if target, ok := m.rename[name]; ok {
			name = target
		}
		args = append(args, kwargs[name])
		delete(kwargs, name)
	}

	obj, err := f.instantiate(ctx, Instantiation{Args: args, Kwargs: kwargs, Strategy: b.strategy})
	if err != nil {
		return nil, err
	}
	if b.strategy == StrategyCreate {
		if err := f.persist(ctx, obj); err != nil {
			return nil, err
		}
	}

	for _, e := range merged.post {
		if err := b.applyPost(ctx, obj, e, merged.nested[e.name]); err != nil {
			return nil, fmt.Errorf("post-generation %q of %s: %w", e.name, f.Name(), err)
		}
	}
	return obj, nil
}

func (b *stepBuilder) merge() (*mergedCall, error) {
	m := b.factory.meta
	entries := cloneEntries(m.entries)
	index := make(map[string]int, len(m.index))
	for name, i := range m.index {
		index[name] = i
	}

	traitNames := make(map[string]struct{}, len(m.traits))
	for _, t := range m.traits {
		traitNames[t.Name] = struct{}{}
		active := false
		if ov, ok := b.overrides[t.Name]; ok {
			active = truthy(ov)
		} else if i, declared := index[t.Name]; declared {
			if s, isStatic := entries[i].decl.(staticDecl); isStatic {
				active = truthy(s.value)
			}
		}
		if active {
			for _, a := range t.Attrs {
				entries = applyAttr(entries, index, a)
			}
		}
	}

	out := &mergedCall{
		overrides: make(map[string]any),
		nested:    make(map[string]Args),
	}
	var extra []string
	for k, v := range b.overrides {
		if k == SequenceKey {
			n, ok := toInt64(v)
			if !ok {
				return nil, OverrideError{
					Factory: b.factory.Name(),
					Attr:    SequenceKey,
					Reason:  fmt.Sprintf("expected an integer, got %T", v),
				}
			}
			out.forcedSeq = &n
			continue
		}
		if _, isTrait := traitNames[k]; isTrait {
			if _, declared := index[k]; !declared {
				// A pure trait toggle; consumed during activation above.
				continue
			}
		}
		head, rest, found := strings.Cut(k, nestedSep)
		if found && rest != "" {
			if _, declared := index[head]; !declared {
				return nil, UnknownAttributeError{Factory: b.factory.Name(), Attr: k}
			}
			if out.nested[head] == nil {
				out.nested[head] = make(Args)
			}
			out.nested[head][rest] = v
			continue
		}
		if i, declared := index[k]; declared {
			if entries[i].decl.Phase() == PhasePost {
				entries[i].extracted = v
				entries[i].hasExtracted = true
			} else {
				out.overrides[k] = v
			}
			continue
		}
		// Unknown plain names pass straight through to the model.
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		entries = applyAttr(entries, index, Attr{Name: k, Value: b.overrides[k]})
	}

	for _, e := range entries {
		if e.decl.Phase() == PhasePost {
			out.post = append(out.post, e)
		} else {
			out.pre = append(out.pre, e)
		}
	}
	return out, nil
}

func (b *stepBuilder) applyPost(ctx context.Context, obj any, e declEntry, routed Args) error {
	switch d := e.decl.(type) {
	case postGenerationDecl:
		return d.hook(ctx, PostContext{
			Obj:      obj,
			Create:   b.strategy == StrategyCreate,
			Strategy: b.strategy,
			Value:    e.extracted,
			Provided: e.hasExtracted,
			Args:     routed,
		})
	case methodCallDecl:
		return b.callMethod(obj, e, d)
	case relatedFactoryDecl:
		if e.hasExtracted {
			// A supplied value stands in for the related object; routed
			// overrides are deliberately ignored.
			return nil
		}
		target, err := d.ref.factoryRef()
		if err != nil {
			return err
		}
		overrides := make(Args, len(d.overrides)+len(routed)+1)
		for _, a := range d.overrides {
			overrides[a.Name] = a.Value
		}
		for k, v := range routed {
			overrides[k] = v
		}
		if d.relatedName != "" {
			overrides[d.relatedName] = obj
		}
		nb := &stepBuilder{
			factory:   target,
			strategy:  b.strategy,
			overrides: overrides,
			depth:     b.depth + 1,
		}
		_, err = nb.build(ctx)
		return err
	default:
		return fmt.Errorf("declaration %s cannot run after instantiation", e.decl.Kind())
	}
}

func (b *stepBuilder) callMethod(obj any, e declEntry, d methodCallDecl) error {
	mv := reflect.ValueOf(obj).MethodByName(d.method)
	if !mv.IsValid() {
		return fmt.Errorf("object %T has no method %q", obj, d.method)
	}

	callArgs := d.defaults
	if e.hasExtracted {
		if len(d.defaults) <= 1 {
			callArgs = []any{e.extracted}
		} else {
			seq, ok := e.extracted.([]any)
			if !ok {
				return OverrideError{
					Factory: b.factory.Name(),
					Attr:    e.name,
					Reason:  "declaration has multiple positional defaults; override must be a []any",
				}
			}
			callArgs = seq
		}
	}

	mt := mv.Type()
	if !mt.IsVariadic() && mt.NumIn() != len(callArgs) {
		return fmt.Errorf("method %q expects %d arguments, got %d", d.method, mt.NumIn(), len(callArgs))
	}
	in := make([]reflect.Value, len(callArgs))
	for i, a := range callArgs {
		var pt reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			pt = mt.In(mt.NumIn() - 1).Elem()
		} else {
			pt = mt.In(i)
		}
		av, err := coerceValue(a, pt)
		if err != nil {
			return fmt.Errorf("method %q argument %d: %w", d.method, i, err)
		}
		in[i] = av
	}
	outs := mv.Call(in)
	if n := len(outs); n > 0 {
		if err, ok := outs[n-1].Interface().(error); ok && err != nil {
			return err
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case uint:
		return int64(t), true
	}
	return 0, false
}
