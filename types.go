package fabrica

import (
	"context"
	"fmt"
	"strings"
)

// Strategy selects the terminal action applied to a resolved attribute set.
type Strategy uint8

const (
	// StrategyBuild constructs the target object in memory only.
	StrategyBuild Strategy = iota
	// StrategyCreate constructs the target object and then persists it.
	StrategyCreate
	// StrategyStub skips the target type entirely and returns a *Stub.
	StrategyStub
)

func (s Strategy) String() string {
	switch s {
	case StrategyBuild:
		return "build"
	case StrategyCreate:
		return "create"
	case StrategyStub:
		return "stub"
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// Args holds call-time overrides for one generate call.
//
// A plain key replaces the declaration of the same name. A key containing
// "__" routes the remainder into the named declaration's own context, for
// example "Owner__Name" overrides the Name attribute of the Owner
// sub-factory. The SequenceKey key forces the sequence value for this call
// without advancing the shared counter.
type Args map[string]any

// SequenceKey is the reserved Args key that forces the sequence value for a
// single generate call.
const SequenceKey = "__sequence"

const nestedSep = "__"

// Attr declares one named attribute rule. Value is either a Declaration or a
// plain value (wrapped as Static during merge). Attribute order is
// significant: post-generation declarations run in declaration order.
type Attr struct {
	Name  string
	Value any
}

// TraitSpec is a named bundle of attribute overrides gated by a boolean
// field of the same name, decided at merge time from call-time overrides
// first and the declared value second.
type TraitSpec struct {
	Name  string
	Attrs []Attr
}

// Instantiation carries the fully resolved arguments handed to an
// Instantiate hook. Args holds values extracted by InlineArgs, in order;
// Kwargs holds the remaining attributes after Rename and Exclude.
type Instantiation struct {
	Args     []any
	Kwargs   map[string]any
	Strategy Strategy
}

// PostContext is handed to post-generation hooks after the primary object
// exists. Provided distinguishes an absent call-time extraction from an
// explicit nil override.
type PostContext struct {
	Obj      any
	Create   bool
	Strategy Strategy
	Value    any
	Provided bool
	Args     Args
}

// PostHook is a post-generation callback. Hooks run sequentially in
// declaration order; side effects of earlier hooks are visible to later ones.
type PostHook func(ctx context.Context, p PostContext) error

// Tracer observes attribute resolution. Observational only: returning is the
// sole way to continue, and tracers must not mutate resolved values.
type Tracer interface {
	ResolveStart(factory, attr string, depth int)
	ResolveEnd(factory, attr string, depth int, value any, err error)
}

// Definition describes one factory.
//
// Model is a prototype of the target object; its field values survive as
// defaults for attributes no declaration covers. ModelFunc defers the model
// reference until first use, for mutually recursive factory setups.
// Parent chains declarations from another factory, most-derived winning by
// name. Instantiate and Persist override the construction and persistence
// steps; InitialSequence computes the lazy starting point of this lineage's
// sequence counter.
type Definition struct {
	Name      string
	Model     any
	ModelFunc func() any
	Abstract  bool
	Parent    *Factory

	Attrs  []Attr
	Params []Attr
	Traits []TraitSpec

	Exclude    []string
	Rename     map[string]string
	InlineArgs []string
	Strategy   Strategy

	Instantiate     func(ctx context.Context, in Instantiation) (any, error)
	Persist         func(ctx context.Context, obj any) error
	InitialSequence func() (int64, error)
	Sequences       *SequenceRegistry
	Tracer          Tracer
}

// Stub is the result of the stub strategy: an attribute bag that never
// touches the target type.
type Stub struct {
	names []string
	attrs map[string]any
}

// Attr returns one stub attribute by name.
func (s *Stub) Attr(name string) (any, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

// Names returns attribute names in declaration order.
func (s *Stub) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Attrs returns a copy of all stub attributes.
func (s *Stub) Attrs() map[string]any {
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	return attrs
}

func (s *Stub) String() string {
	var b strings.Builder
	b.WriteString("stub{")
	for i, name := range s.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", name, s.attrs[name])
	}
	b.WriteString("}")
	return b.String()
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
