package fabrica

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Resolver computes and caches attribute values for one generate call. It is
// created and discarded inside the call; never retain one. Each attribute is
// evaluated at most once: the first resolution memoizes the value, and
// re-entering an attribute mid-resolution is reported as
// CyclicAttributeError instead of recursing unboundedly.
type Resolver struct {
	b      *stepBuilder
	parent *Resolver

	// seqOwner points at the resolver that allocates the sequence value;
	// container scopes (Dict/List) share the containing factory's counter.
	seqOwner *Resolver

	entries   []declEntry
	index     map[string]int
	overrides map[string]any
	nested    map[string]Args

	resolved  map[string]any
	resolving map[string]struct{}
	stack     []string

	seqSet    bool
	seqForced bool
	seq       int64
}

func newResolver(b *stepBuilder, parent *Resolver, entries []declEntry, overrides map[string]any, nested map[string]Args) *Resolver {
	r := &Resolver{
		b:         b,
		parent:    parent,
		entries:   entries,
		index:     make(map[string]int, len(entries)),
		overrides: overrides,
		nested:    nested,
		resolved:  make(map[string]any, len(entries)),
		resolving: make(map[string]struct{}),
	}
	for i, e := range entries {
		r.index[e.name] = i
	}
	r.seqOwner = r
	return r
}

// Parent returns the resolver of the immediately enclosing factory, or nil
// at the outermost scope.
func (r *Resolver) Parent() *Resolver { return r.parent }

// Sequence returns the counter value assigned to this generate call,
// allocating it from the lineage counter on first use.
func (r *Resolver) Sequence() (int64, error) {
	o := r.seqOwner
	if o.seqSet {
		return o.seq, nil
	}
	f := o.b.factory
	n, err := f.sequences.Next(f.seqRoot)
	if err != nil {
		return 0, err
	}
	o.seq = n
	o.seqSet = true
	return n, nil
}

func (r *Resolver) forceSequence(n int64) {
	r.seq = n
	r.seqSet = true
	r.seqForced = true
}

// Attr resolves one sibling attribute by name, memoized per call.
func (r *Resolver) Attr(name string) (any, error) {
	if v, ok := r.resolved[name]; ok {
		return v, nil
	}
	i, ok := r.index[name]
	if !ok {
		return nil, UnknownAttributeError{Factory: r.b.factory.Name(), Attr: name}
	}
	if _, busy := r.resolving[name]; busy {
		path := append(append([]string(nil), r.stack...), name)
		return nil, CyclicAttributeError{Factory: r.b.factory.Name(), Path: path}
	}

	r.resolving[name] = struct{}{}
	r.stack = append(r.stack, name)
	if t := r.b.factory.meta.tracer; t != nil {
		t.ResolveStart(r.b.factory.Name(), name, r.b.depth)
	}

	v, err := r.evaluate(name, r.entries[i])

	if t := r.b.factory.meta.tracer; t != nil {
		t.ResolveEnd(r.b.factory.Name(), name, r.b.depth, v, err)
	}
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.resolving, name)

	if err != nil {
		return nil, err
	}
	r.resolved[name] = v
	return v, nil
}

func (r *Resolver) evaluate(name string, e declEntry) (any, error) {
	if ov, ok := r.overrides[name]; ok {
		// A call-time override fully replaces the declaration. It may
		// itself be a declaration, e.g. passing Sequence as an override.
		if d, isDecl := ov.(Declaration); isDecl {
			return r.evaluateDecl(name, d)
		}
		return ov, nil
	}
	return r.evaluateDecl(name, e.decl)
}

func (r *Resolver) evaluateDecl(name string, decl Declaration) (any, error) {
	switch d := decl.(type) {
	case staticDecl:
		return d.value, nil
	case sequenceDecl:
		n, err := r.Sequence()
		if err != nil {
			return nil, err
		}
		return d.fn(n), nil
	case lazyFuncDecl:
		return d.fn()
	case lazyAttrDecl:
		return d.fn(r)
	case *IteratorDecl:
		v, err := d.next()
		if err != nil {
			if _, exhausted := err.(IteratorExhaustedError); exhausted {
				return nil, IteratorExhaustedError{Attr: name}
			}
			return nil, err
		}
		return v, nil
	case selfAttrDecl:
		return r.resolvePath(d)
	case maybeDecl:
		decider, err := r.Attr(d.decider)
		if err != nil {
			return nil, err
		}
		if truthy(decider) {
			return r.evaluateDecl(name, d.yes)
		}
		return r.evaluateDecl(name, d.no)
	case subFactoryDecl:
		return r.buildNested(name, d.ref, d.overrides)
	case dictDecl:
		return r.evaluateDict(name, d.attrs)
	case listDecl:
		return r.evaluateList(name, d.items)
	default:
		return nil, fmt.Errorf("factory %q: declaration %q (%s) cannot resolve before instantiation",
			r.b.factory.Name(), name, decl.Kind())
	}
}

func (r *Resolver) buildNested(name string, ref Referencer, declared []Attr) (any, error) {
	target, err := ref.factoryRef()
	if err != nil {
		return nil, fmt.Errorf("resolve sub-factory for %q: %w", name, err)
	}
	overrides := make(Args, len(declared)+len(r.nested[name]))
	for _, a := range declared {
		overrides[a.Name] = a.Value
	}
	for k, v := range r.nested[name] {
		overrides[k] = v
	}
	nb := &stepBuilder{
		factory:   target,
		strategy:  r.b.strategy,
		parent:    r,
		overrides: overrides,
		depth:     r.b.depth + 1,
	}
	return nb.build(r.b.ctx)
}

// evaluateDict resolves a nested declaration set in a child scope. The child
// shares the containing factory's sequence counter and reaches its
// attributes through "..Name" ascent.
func (r *Resolver) evaluateDict(name string, attrs []Attr) (map[string]any, error) {
	entries := make([]declEntry, 0, len(attrs))
	for _, a := range attrs {
		entries = append(entries, declEntry{name: a.Name, decl: toDecl(a.Value)})
	}
	child := newResolver(r.b, r, entries, routeContainer(r.nested[name]), nestedOf(r.nested[name]))
	child.seqOwner = r.seqOwner
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		v, err := child.Attr(e.name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", name, e.name, err)
		}
		out[e.name] = v
	}
	return out, nil
}

func (r *Resolver) evaluateList(name string, items []any) ([]any, error) {
	entries := make([]declEntry, 0, len(items))
	for i, item := range items {
		entries = append(entries, declEntry{name: strconv.Itoa(i), decl: toDecl(item)})
	}
	child := newResolver(r.b, r, entries, routeContainer(r.nested[name]), nestedOf(r.nested[name]))
	child.seqOwner = r.seqOwner
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		v, err := child.Attr(e.name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s[%s]: %w", name, e.name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// routeContainer splits routed args for a container scope into plain
// overrides, keeping deeper "a__b" routes for nestedOf.
func routeContainer(args Args) map[string]any {
	if len(args) == 0 {
		return nil
	}
	plain := make(map[string]any)
	for k, v := range args {
		if !strings.Contains(k, nestedSep) {
			plain[k] = v
		}
	}
	return plain
}

func nestedOf(args Args) map[string]Args {
	if len(args) == 0 {
		return nil
	}
	nested := make(map[string]Args)
	for k, v := range args {
		head, rest, found := strings.Cut(k, nestedSep)
		if !found || rest == "" {
			continue
		}
		if nested[head] == nil {
			nested[head] = make(Args)
		}
		nested[head][rest] = v
	}
	return nested
}

func (r *Resolver) resolvePath(d selfAttrDecl) (any, error) {
	cur := r
	for i := 0; i < d.ascents; i++ {
		cur = cur.parent
		if cur == nil {
			return nil, InvalidPathError{
				Factory: r.b.factory.Name(),
				Path:    d.path,
				Reason:  "ascends above the outermost factory",
			}
		}
	}
	if len(d.segments) == 0 || d.segments[0] == "" {
		return nil, InvalidPathError{
			Factory: r.b.factory.Name(),
			Path:    d.path,
			Reason:  "empty attribute path",
		}
	}
	v, err := cur.Attr(d.segments[0])
	if err != nil {
		return nil, err
	}
	for _, seg := range d.segments[1:] {
		v, err = lookupField(v, seg)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", d.path, err)
		}
	}
	return v, nil
}

func lookupField(v any, name string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("segment %q: value is nil", name)
	case *Stub:
		out, ok := t.Attr(name)
		if !ok {
			return nil, fmt.Errorf("segment %q: stub has no such attribute", name)
		}
		return out, nil
	case map[string]any:
		out, ok := t[name]
		if !ok {
			return nil, fmt.Errorf("segment %q: map has no such key", name)
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("segment %q: value is nil", name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("segment %q: cannot traverse %T", name, v)
	}
	fv := rv.FieldByName(name)
	if !fv.IsValid() {
		return nil, fmt.Errorf("segment %q: %T has no such field", name, v)
	}
	return fv.Interface(), nil
}
