package fabrica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func phoneFactory(reg *SequenceRegistry) *Factory {
	return MustNew(Definition{
		Model:     &testUser{},
		Sequences: reg,
		Attrs: []Attr{
			{Name: "Phone", Value: Sequence(func(n int64) any {
				return fmt.Sprintf("123-555-%04d", n)
			})},
		},
	})
}

func TestResetSequenceYieldsExactValue(t *testing.T) {
	f := phoneFactory(NewSequenceRegistry())
	ctx := context.Background()

	_, err := f.Build(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, f.ResetSequence(7))
	u, err := BuildAs[*testUser](ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, "123-555-0007", u.Phone, "the next call computes from exactly the reset value")
}

func TestSubclassesShareTheRootCounter(t *testing.T) {
	root := phoneFactory(NewSequenceRegistry())
	child := root.MustExtend(Definition{
		Attrs: []Attr{{Name: "FirstName", Value: "child"}},
	})
	ctx := context.Background()

	a, err := BuildAs[*testUser](ctx, root, nil)
	require.NoError(t, err)
	b, err := BuildAs[*testUser](ctx, child, nil)
	require.NoError(t, err)
	c, err := BuildAs[*testUser](ctx, root, nil)
	require.NoError(t, err)

	assert.Equal(t, "123-555-0000", a.Phone)
	assert.Equal(t, "123-555-0001", b.Phone, "subclass draws from the root counter")
	assert.Equal(t, "123-555-0002", c.Phone)
}

func TestResetOnSubclassRequiresForce(t *testing.T) {
	root := phoneFactory(NewSequenceRegistry())
	child := root.MustExtend(Definition{})
	ctx := context.Background()

	err := child.ResetSequence(10)
	require.Error(t, err)
	var reset SequenceResetError
	require.True(t, errors.As(err, &reset))
	assert.Equal(t, root.Name(), reset.Root)

	child.ForceResetSequence(10)
	u, err := BuildAs[*testUser](ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, "123-555-0010", u.Phone, "forced reset forwards to the root")
}

func TestForcedSequenceOverrideDoesNotAdvance(t *testing.T) {
	f := phoneFactory(NewSequenceRegistry())
	ctx := context.Background()

	u, err := BuildAs[*testUser](ctx, f, Args{SequenceKey: 42})
	require.NoError(t, err)
	assert.Equal(t, "123-555-0042", u.Phone)

	u, err = BuildAs[*testUser](ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, "123-555-0000", u.Phone, "the persistent counter was never touched")
}

func TestLiteralOverrideDoesNotConsumeCounter(t *testing.T) {
	f := phoneFactory(NewSequenceRegistry())
	ctx := context.Background()

	u, err := BuildAs[*testUser](ctx, f, Args{"Phone": "555-000"})
	require.NoError(t, err)
	assert.Equal(t, "555-000", u.Phone)

	u, err = BuildAs[*testUser](ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, "123-555-0000", u.Phone)
}

func TestInitialSequenceEvaluatedLazilyOnce(t *testing.T) {
	var calls atomic.Int32
	f := MustNew(Definition{
		Model:     &testUser{},
		Sequences: NewSequenceRegistry(),
		InitialSequence: func() (int64, error) {
			calls.Add(1)
			return 100, nil
		},
		Attrs: []Attr{
			{Name: "ID", Value: Sequence(func(n int64) any { return n })},
		},
	})
	ctx := context.Background()
	assert.Equal(t, int32(0), calls.Load())

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			u, err := BuildAs[*testUser](ctx, f, nil)
			if err == nil {
				ids[i] = u.ID
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "initial value computed exactly once")
	seen := make(map[int64]struct{}, n)
	for _, id := range ids {
		assert.GreaterOrEqual(t, id, int64(100))
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n, "every call drew a distinct counter value")
}

func TestInjectedRegistryIsolation(t *testing.T) {
	a := phoneFactory(NewSequenceRegistry())
	b := phoneFactory(NewSequenceRegistry())
	ctx := context.Background()

	ua, err := BuildAs[*testUser](ctx, a, nil)
	require.NoError(t, err)
	ub, err := BuildAs[*testUser](ctx, b, nil)
	require.NoError(t, err)
	assert.Equal(t, ua.Phone, ub.Phone, "independent registries do not interfere")
}
