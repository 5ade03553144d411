package fabrica

import (
	"strings"
	"sync"
)

// Kind tags a Declaration variant.
type Kind uint8

const (
	KindStatic Kind = iota
	KindSequence
	KindLazyFunc
	KindLazyAttr
	KindSelfAttr
	KindIterator
	KindSubFactory
	KindRelatedFactory
	KindPostGeneration
	KindMethodCall
	KindMaybe
	KindDict
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindSequence:
		return "sequence"
	case KindLazyFunc:
		return "lazyfunc"
	case KindLazyAttr:
		return "lazyattr"
	case KindSelfAttr:
		return "selfattr"
	case KindIterator:
		return "iterator"
	case KindSubFactory:
		return "subfactory"
	case KindRelatedFactory:
		return "related"
	case KindPostGeneration:
		return "postgeneration"
	case KindMethodCall:
		return "methodcall"
	case KindMaybe:
		return "maybe"
	case KindDict:
		return "dict"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Phase tells whether a declaration resolves before or after the target
// object is instantiated.
type Phase uint8

const (
	PhasePre Phase = iota
	PhasePost
)

// Declaration is one named attribute rule. Declarations are defined once and
// never mutated; every evaluation produces a fresh value. The Iterator
// variant is the single exception: it carries a shared cursor scoped to the
// declaration instance.
type Declaration interface {
	Kind() Kind
	Phase() Phase
}

type staticDecl struct {
	value any
}

// Static wraps a literal value. Plain attribute values are wrapped
// implicitly; the explicit form exists for Maybe branches and overrides.
func Static(v any) Declaration { return staticDecl{value: v} }

func (staticDecl) Kind() Kind   { return KindStatic }
func (staticDecl) Phase() Phase { return PhasePre }

type sequenceDecl struct {
	fn func(n int64) any
}

// Sequence computes the value from the per-lineage monotonic counter. The
// counter is allocated at most once per generate call and only when some
// declaration actually reads it.
func Sequence(fn func(n int64) any) Declaration { return sequenceDecl{fn: fn} }

func (sequenceDecl) Kind() Kind   { return KindSequence }
func (sequenceDecl) Phase() Phase { return PhasePre }

type lazyFuncDecl struct {
	fn func() (any, error)
}

// LazyFunc defers a zero-argument computation to generate time.
func LazyFunc(fn func() (any, error)) Declaration { return lazyFuncDecl{fn: fn} }

func (lazyFuncDecl) Kind() Kind   { return KindLazyFunc }
func (lazyFuncDecl) Phase() Phase { return PhasePre }

type lazyAttrDecl struct {
	fn func(r *Resolver) (any, error)
}

// LazyAttr computes the value from sibling attributes via r.Attr and from
// the enclosing factory via r.Parent.
func LazyAttr(fn func(r *Resolver) (any, error)) Declaration { return lazyAttrDecl{fn: fn} }

func (lazyAttrDecl) Kind() Kind   { return KindLazyAttr }
func (lazyAttrDecl) Phase() Phase { return PhasePre }

type selfAttrDecl struct {
	path     string
	ascents  int
	segments []string
}

// SelfAttr resolves a dotted path against the current resolver. Leading dots
// beyond the first each ascend one enclosing factory: "Name" and ".Name"
// read a sibling, "..Name" reads the parent factory's attribute. Remaining
// segments traverse the resolved value's fields.
func SelfAttr(path string) Declaration {
	rest := path
	ascents := 0
	for strings.HasPrefix(rest, ".") {
		rest = rest[1:]
		ascents++
	}
	if ascents > 0 {
		ascents--
	}
	return selfAttrDecl{
		path:     path,
		ascents:  ascents,
		segments: strings.Split(rest, "."),
	}
}

func (selfAttrDecl) Kind() Kind   { return KindSelfAttr }
func (selfAttrDecl) Phase() Phase { return PhasePre }

// IteratorDecl cycles through a fixed value list. The cursor is shared by
// every generate call evaluating this declaration instance.
type IteratorDecl struct {
	mu     sync.Mutex
	values []any
	cycle  bool
	getter func(any) any
	cursor int
}

// Iterator declares a stateful iterator over values, cycling by default.
func Iterator(values ...any) *IteratorDecl {
	materialized := make([]any, len(values))
	copy(materialized, values)
	return &IteratorDecl{values: materialized, cycle: true}
}

// Once disables cycling: exhaustion surfaces as IteratorExhaustedError.
func (d *IteratorDecl) Once() *IteratorDecl {
	d.cycle = false
	return d
}

// Getter maps each produced element before it becomes the attribute value.
func (d *IteratorDecl) Getter(fn func(any) any) *IteratorDecl {
	d.getter = fn
	return d
}

// Reset rewinds the shared cursor to the first value.
func (d *IteratorDecl) Reset() {
	d.mu.Lock()
	d.cursor = 0
	d.mu.Unlock()
}

func (d *IteratorDecl) next() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= len(d.values) {
		if !d.cycle || len(d.values) == 0 {
			return nil, IteratorExhaustedError{}
		}
		d.cursor = 0
	}
	v := d.values[d.cursor]
	d.cursor++
	if d.getter != nil {
		v = d.getter(v)
	}
	return v, nil
}

func (*IteratorDecl) Kind() Kind   { return KindIterator }
func (*IteratorDecl) Phase() Phase { return PhasePre }

type subFactoryDecl struct {
	ref       Referencer
	overrides []Attr
}

// SubFactory recursively generates a nested object with the same strategy as
// the enclosing call. Declared overrides lose to call-time "name__attr"
// routed overrides.
func SubFactory(ref Referencer, overrides ...Attr) Declaration {
	return subFactoryDecl{ref: ref, overrides: overrides}
}

func (subFactoryDecl) Kind() Kind   { return KindSubFactory }
func (subFactoryDecl) Phase() Phase { return PhasePre }

type relatedFactoryDecl struct {
	ref         Referencer
	relatedName string
	overrides   []Attr
}

// RelatedFactory generates a companion object after the primary one exists,
// injecting the primary object under relatedName (omitted when empty).
// Supplying a value for this declaration's own name skips generation
// entirely; routed overrides are then ignored.
func RelatedFactory(ref Referencer, relatedName string, overrides ...Attr) Declaration {
	return relatedFactoryDecl{ref: ref, relatedName: relatedName, overrides: overrides}
}

func (relatedFactoryDecl) Kind() Kind   { return KindRelatedFactory }
func (relatedFactoryDecl) Phase() Phase { return PhasePost }

type postGenerationDecl struct {
	hook PostHook
}

// PostGeneration runs a hook against the built object.
func PostGeneration(hook PostHook) Declaration { return postGenerationDecl{hook: hook} }

func (postGenerationDecl) Kind() Kind   { return KindPostGeneration }
func (postGenerationDecl) Phase() Phase { return PhasePost }

type methodCallDecl struct {
	method   string
	defaults []any
}

// MethodCall invokes a method on the built object. With zero or one declared
// default argument, a call-time override for this attribute replaces that
// single slot; with two or more, the override must be a []any unpacked
// positionally.
func MethodCall(method string, defaults ...any) Declaration {
	return methodCallDecl{method: method, defaults: defaults}
}

func (methodCallDecl) Kind() Kind   { return KindMethodCall }
func (methodCallDecl) Phase() Phase { return PhasePost }

type maybeDecl struct {
	decider string
	yes     Declaration
	no      Declaration
}

// Maybe resolves the decider attribute from the same declaration set and
// evaluates exactly one branch.
func Maybe(decider string, yes, no Declaration) Declaration {
	return maybeDecl{decider: decider, yes: yes, no: no}
}

func (maybeDecl) Kind() Kind   { return KindMaybe }
func (maybeDecl) Phase() Phase { return PhasePre }

type dictDecl struct {
	attrs []Attr
}

// Dict evaluates a nested declaration set in its own resolver scope and
// produces a map. Inside the scope "..Name" reaches the containing factory;
// the sequence counter is shared with it.
func Dict(attrs ...Attr) Declaration { return dictDecl{attrs: attrs} }

func (dictDecl) Kind() Kind   { return KindDict }
func (dictDecl) Phase() Phase { return PhasePre }

type listDecl struct {
	items []any
}

// List is the positional form of Dict: each item may be a plain value or a
// Declaration, and the result is a []any in item order.
func List(items ...any) Declaration { return listDecl{items: items} }

func (listDecl) Kind() Kind   { return KindList }
func (listDecl) Phase() Phase { return PhasePre }
