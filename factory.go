package fabrica

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Factory generates objects from a merged declaration set. Construct with
// New; a Factory is immutable afterwards except for the sequence counter its
// lineage anchors.
type Factory struct {
	def    Definition
	parent *Factory
	meta   *factoryMeta

	seqRoot   *Factory
	sequences *SequenceRegistry

	modelOnce sync.Once
	modelVal  any
}

// New merges the definition with its parent chain and validates it.
func New(def Definition) (*Factory, error) {
	meta, err := mergeMeta(def)
	if err != nil {
		return nil, err
	}
	f := &Factory{
		def:    def,
		parent: def.Parent,
		meta:   meta,
	}
	f.sequences = def.Sequences
	if f.sequences == nil {
		if f.parent != nil {
			f.sequences = f.parent.sequences
		} else {
			f.sequences = defaultSequences
		}
	}
	f.seqRoot = sequenceRoot(f)
	return f, nil
}

// MustNew panics on definition errors; intended for package-level fixtures.
func MustNew(def Definition) *Factory {
	f, err := New(def)
	if err != nil {
		panic(err)
	}
	return f
}

// sequenceRoot finds the oldest non-abstract ancestor, inclusive, that can
// instantiate the model. Every factory sharing that root shares its counter.
func sequenceRoot(f *Factory) *Factory {
	root := f
	for cur := f; cur != nil; cur = cur.parent {
		if cur.meta.abstract {
			continue
		}
		if cur.meta.hasModel() {
			root = cur
		}
	}
	return root
}

// Extend derives a child factory, inheriting declarations, traits, and
// hooks.
func (f *Factory) Extend(def Definition) (*Factory, error) {
	def.Parent = f
	return New(def)
}

// MustExtend panics on definition errors.
func (f *Factory) MustExtend(def Definition) *Factory {
	child, err := f.Extend(def)
	if err != nil {
		panic(err)
	}
	return child
}

// Name returns the factory name, derived from the model type when the
// definition does not set one.
func (f *Factory) Name() string { return f.meta.name }

// Generate runs one generate call with an explicit strategy.
func (f *Factory) Generate(ctx context.Context, strategy Strategy, args Args) (any, error) {
	b := &stepBuilder{factory: f, strategy: strategy, overrides: args}
	return b.build(ctx)
}

// Default runs one generate call with the factory's default strategy.
func (f *Factory) Default(ctx context.Context, args Args) (any, error) {
	return f.Generate(ctx, f.meta.strategy, args)
}

// Build constructs the object in memory without persisting it.
func (f *Factory) Build(ctx context.Context, args Args) (any, error) {
	return f.Generate(ctx, StrategyBuild, args)
}

// Create constructs the object and runs the persistence hook.
func (f *Factory) Create(ctx context.Context, args Args) (any, error) {
	return f.Generate(ctx, StrategyCreate, args)
}

// Stub resolves the attribute set without touching the target type.
func (f *Factory) Stub(ctx context.Context, args Args) (*Stub, error) {
	v, err := f.Generate(ctx, StrategyStub, args)
	if err != nil {
		return nil, err
	}
	return v.(*Stub), nil
}

// MustBuild panics on error; intended for test bodies.
func (f *Factory) MustBuild(ctx context.Context, args Args) any {
	v, err := f.Build(ctx, args)
	if err != nil {
		panic(err)
	}
	return v
}

// MustCreate panics on error; intended for test bodies.
func (f *Factory) MustCreate(ctx context.Context, args Args) any {
	v, err := f.Create(ctx, args)
	if err != nil {
		panic(err)
	}
	return v
}

// GenerateBatch repeats the single-object algorithm n times.
func (f *Factory) GenerateBatch(ctx context.Context, strategy Strategy, n int, args Args) ([]any, error) {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := f.Generate(ctx, strategy, args)
		if err != nil {
			return nil, fmt.Errorf("generate batch item %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// BuildBatch builds n objects.
func (f *Factory) BuildBatch(ctx context.Context, n int, args Args) ([]any, error) {
	return f.GenerateBatch(ctx, StrategyBuild, n, args)
}

// CreateBatch creates n objects.
func (f *Factory) CreateBatch(ctx context.Context, n int, args Args) ([]any, error) {
	return f.GenerateBatch(ctx, StrategyCreate, n, args)
}

// StubBatch stubs n attribute bags.
func (f *Factory) StubBatch(ctx context.Context, n int, args Args) ([]*Stub, error) {
	vs, err := f.GenerateBatch(ctx, StrategyStub, n, args)
	if err != nil {
		return nil, err
	}
	out := make([]*Stub, len(vs))
	for i, v := range vs {
		out[i] = v.(*Stub)
	}
	return out, nil
}

// ResetSequence rewinds the lineage counter so the next generate call
// observes exactly value. Only the sequence root may reset; subclasses get
// SequenceResetError and must use ForceResetSequence to forward.
func (f *Factory) ResetSequence(value int64) error {
	if f.seqRoot != f {
		return SequenceResetError{Factory: f.Name(), Root: f.seqRoot.Name()}
	}
	f.sequences.Reset(f, value)
	return nil
}

// ForceResetSequence forwards a reset to the sequence root.
func (f *Factory) ForceResetSequence(value int64) {
	f.sequences.Reset(f.seqRoot, value)
}

// BuildAs is a typed wrapper around Build.
func BuildAs[T any](ctx context.Context, f *Factory, args Args) (T, error) {
	return generateAs[T](ctx, f, StrategyBuild, args)
}

// CreateAs is a typed wrapper around Create.
func CreateAs[T any](ctx context.Context, f *Factory, args Args) (T, error) {
	return generateAs[T](ctx, f, StrategyCreate, args)
}

func generateAs[T any](ctx context.Context, f *Factory, strategy Strategy, args Args) (T, error) {
	var zero T
	v, err := f.Generate(ctx, strategy, args)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Factory:  f.Name(),
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}
