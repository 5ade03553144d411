package fabrica

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Lang      string
	Admin     bool
	Password  string

	saved bool
}

func (u *testUser) Save(context.Context) error {
	u.saved = true
	return nil
}

func (u *testUser) SetPassword(pw string) {
	u.Password = "hashed:" + pw
}

func (u *testUser) Grant(role string, level int) {
	u.Lang = fmt.Sprintf("%s/%d", role, level)
}

type testCompany struct {
	Name  string
	Owner *testUser
}

func newUserFactory(t *testing.T) *Factory {
	t.Helper()
	return MustNew(Definition{
		Model:     &testUser{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "FirstName", Value: "Jack"},
			{Name: "LastName", Value: "Doe"},
			{Name: "Phone", Value: Sequence(func(n int64) any {
				return fmt.Sprintf("123-555-%04d", n)
			})},
			{Name: "Email", Value: LazyAttr(func(r *Resolver) (any, error) {
				first, err := r.Attr("FirstName")
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("%v@example.com", first), nil
			})},
		},
	})
}

func TestSequenceConsecutiveCalls(t *testing.T) {
	f := newUserFactory(t)
	ctx := context.Background()

	first, err := BuildAs[*testUser](ctx, f, nil)
	require.NoError(t, err)
	second, err := BuildAs[*testUser](ctx, f, nil)
	require.NoError(t, err)

	assert.Equal(t, "123-555-0000", first.Phone)
	assert.Equal(t, "123-555-0001", second.Phone)
}

func TestOverridePrecedence(t *testing.T) {
	base := MustNew(Definition{
		Model:     &testUser{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "FirstName", Value: "inherited"},
			{Name: "Lang", Value: "en"},
		},
	})
	child := base.MustExtend(Definition{
		Attrs: []Attr{
			{Name: "FirstName", Value: "declared"},
		},
		Traits: []TraitSpec{
			{Name: "French", Attrs: []Attr{
				{Name: "FirstName", Value: "from-trait"},
				{Name: "Lang", Value: "fr"},
			}},
		},
	})
	ctx := context.Background()

	u, err := BuildAs[*testUser](ctx, child, nil)
	require.NoError(t, err)
	assert.Equal(t, "declared", u.FirstName, "declared value overrides inherited")

	u, err = BuildAs[*testUser](ctx, child, Args{"French": true})
	require.NoError(t, err)
	assert.Equal(t, "from-trait", u.FirstName, "trait overrides declared value")
	assert.Equal(t, "fr", u.Lang)

	u, err = BuildAs[*testUser](ctx, child, Args{"French": true, "FirstName": "call-time"})
	require.NoError(t, err)
	assert.Equal(t, "call-time", u.FirstName, "call-time override beats trait and declaration")
	assert.Equal(t, "fr", u.Lang)
}

func TestSubFactoryNestedOverride(t *testing.T) {
	users := newUserFactory(t)
	companies := MustNew(Definition{
		Model:     &testCompany{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "Name", Value: "Acme"},
			{Name: "Owner", Value: SubFactory(users, Attr{Name: "FirstName", Value: "Jack"})},
		},
	})
	ctx := context.Background()

	c, err := BuildAs[*testCompany](ctx, companies, nil)
	require.NoError(t, err)
	require.NotNil(t, c.Owner)
	assert.Equal(t, "Jack", c.Owner.FirstName)

	c, err = BuildAs[*testCompany](ctx, companies, Args{"Owner__FirstName": "Henry"})
	require.NoError(t, err)
	assert.Equal(t, "Henry", c.Owner.FirstName, "nested override lands on the nested object")
	assert.Equal(t, "Acme", c.Name, "outer object keeps its own arguments")
	assert.Equal(t, "Henry@example.com", c.Owner.Email, "nested lazy attrs observe the override")
}

func TestSubFactoryPropagatesStrategy(t *testing.T) {
	users := newUserFactory(t)
	companies := MustNew(Definition{
		Model:     &testCompany{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "Owner", Value: SubFactory(users)},
		},
	})
	ctx := context.Background()

	c, err := CreateAs[*testCompany](ctx, companies, nil)
	require.NoError(t, err)
	assert.True(t, c.Owner.saved, "create strategy persists nested objects too")

	c, err = BuildAs[*testCompany](ctx, companies, nil)
	require.NoError(t, err)
	assert.False(t, c.Owner.saved)

	stub, err := companies.Stub(ctx, nil)
	require.NoError(t, err)
	owner, ok := stub.Attr("Owner")
	require.True(t, ok)
	_, isStub := owner.(*Stub)
	assert.True(t, isStub, "stub strategy stubs nested factories")
}

func TestCreateUsesPersistHook(t *testing.T) {
	var persisted []any
	f := MustNew(Definition{
		Model:     &testUser{},
		Sequences: NewSequenceRegistry(),
		Attrs:     []Attr{{Name: "FirstName", Value: "p"}},
		Persist: func(_ context.Context, obj any) error {
			persisted = append(persisted, obj)
			return nil
		},
	})
	u, err := CreateAs[*testUser](context.Background(), f, nil)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Same(t, u, persisted[0])
	assert.False(t, u.saved, "persist hook replaces the default save call")
}

func TestCreateDefaultSave(t *testing.T) {
	f := newUserFactory(t)
	u, err := CreateAs[*testUser](context.Background(), f, nil)
	require.NoError(t, err)
	assert.True(t, u.saved)
}

func TestStubWithoutModel(t *testing.T) {
	f := MustNew(Definition{
		Name:      "modelless",
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "A", Value: 1},
			{Name: "B", Value: Sequence(func(n int64) any { return n })},
		},
	})
	ctx := context.Background()

	stub, err := f.Stub(ctx, Args{"C": "extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, stub.Names())
	b, ok := stub.Attr("B")
	require.True(t, ok)
	assert.Equal(t, int64(0), b)

	_, err = f.Build(ctx, nil)
	var abstract AbstractFactoryError
	require.Error(t, err)
	assert.True(t, errors.As(err, &abstract))
}

func TestExplicitAbstractRejectsEveryStrategy(t *testing.T) {
	f := MustNew(Definition{
		Model:     &testUser{},
		Abstract:  true,
		Sequences: NewSequenceRegistry(),
	})
	ctx := context.Background()
	var abstract AbstractFactoryError
	for _, strategy := range []Strategy{StrategyBuild, StrategyCreate, StrategyStub} {
		_, err := f.Generate(ctx, strategy, nil)
		require.Error(t, err, strategy.String())
		assert.True(t, errors.As(err, &abstract))
	}
}

func TestExcludeRenameAndParams(t *testing.T) {
	f := MustNew(Definition{
		Model:     &testUser{},
		Sequences: NewSequenceRegistry(),
		Exclude:   []string{"Scratch"},
		Rename:    map[string]string{"GivenName": "FirstName"},
		Attrs: []Attr{
			{Name: "Scratch", Value: "hidden"},
			{Name: "GivenName", Value: "Maria"},
			{Name: "LastName", Value: LazyAttr(func(r *Resolver) (any, error) {
				scratch, err := r.Attr("Scratch")
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("of-%v", scratch), nil
			})},
		},
		Params: []Attr{
			{Name: "Honorific", Value: "Dr"},
		},
	})
	u, err := BuildAs[*testUser](context.Background(), f, nil)
	require.NoError(t, err)
	assert.Equal(t, "Maria", u.FirstName, "rename maps the declared name onto the model field")
	assert.Equal(t, "of-hidden", u.LastName, "excluded attrs still resolve for siblings")
}

func TestInlineArgsWithInstantiateHook(t *testing.T) {
	type record struct {
		args   []any
		kwargs map[string]any
	}
	var got record
	f := MustNew(Definition{
		Name:       "inline",
		Sequences:  NewSequenceRegistry(),
		InlineArgs: []string{"First", "Second"},
		Attrs: []Attr{
			{Name: "First", Value: 1},
			{Name: "Second", Value: 2},
			{Name: "Rest", Value: "kw"},
		},
		Instantiate: func(_ context.Context, in Instantiation) (any, error) {
			got = record{args: in.Args, kwargs: in.Kwargs}
			return &testUser{}, nil
		},
	})
	_, err := f.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, got.args)
	assert.Equal(t, map[string]any{"Rest": "kw"}, got.kwargs)
}

func TestInlineArgsRequireHook(t *testing.T) {
	_, err := New(Definition{
		Model:      &testUser{},
		InlineArgs: []string{"FirstName"},
		Attrs:      []Attr{{Name: "FirstName", Value: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Instantiate hook")
}

func TestBuildAsTypeMismatch(t *testing.T) {
	f := newUserFactory(t)
	_, err := BuildAs[*testCompany](context.Background(), f, nil)
	require.Error(t, err)
	var mismatch TypeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestBatchHelpers(t *testing.T) {
	f := newUserFactory(t)
	ctx := context.Background()

	users, err := f.BuildBatch(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, users, 3)
	phones := make([]string, 0, 3)
	for _, v := range users {
		phones = append(phones, v.(*testUser).Phone)
	}
	assert.Equal(t, []string{"123-555-0000", "123-555-0001", "123-555-0002"}, phones)

	stubs, err := f.StubBatch(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, stubs, 2)
}

func TestDuplicateAttr(t *testing.T) {
	_, err := New(Definition{
		Model: &testUser{},
		Attrs: []Attr{
			{Name: "FirstName", Value: "a"},
			{Name: "FirstName", Value: "b"},
		},
	})
	require.Error(t, err)
	var dup DuplicateAttrError
	assert.True(t, errors.As(err, &dup))
}

func TestGraphExports(t *testing.T) {
	users := newUserFactory(t)
	companies := MustNew(Definition{
		Model:     &testCompany{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "Name", Value: "Acme"},
			{Name: "Slug", Value: SelfAttr("Name")},
			{Name: "Owner", Value: SubFactory(users)},
		},
	})

	g := companies.Graph()
	require.NotEmpty(t, g.Nodes)
	require.Len(t, g.Edges, 2)
	assert.Equal(t, GraphEdge{From: "Slug", To: "Name"}, g.Edges[0])
	assert.Equal(t, "testUserFactory", g.Edges[1].To)
	assert.Contains(t, g.DOT(), "digraph fabrica")
	assert.Contains(t, g.Mermaid(), "graph TD")
}

func TestDeferredReference(t *testing.T) {
	var users *Factory
	companies := MustNew(Definition{
		Model:     &testCompany{},
		Sequences: NewSequenceRegistry(),
		Attrs: []Attr{
			{Name: "Owner", Value: SubFactory(Deferred(func() *Factory { return users }))},
		},
	})
	users = newUserFactory(t)

	c, err := BuildAs[*testCompany](context.Background(), companies, nil)
	require.NoError(t, err)
	assert.Equal(t, "Jack", c.Owner.FirstName)
}

func TestModelFuncResolvedOnFirstUse(t *testing.T) {
	calls := 0
	f := MustNew(Definition{
		Name:      "lazy-model",
		Sequences: NewSequenceRegistry(),
		ModelFunc: func() any {
			calls++
			return &testUser{}
		},
		Attrs: []Attr{{Name: "FirstName", Value: "x"}},
	})
	assert.Equal(t, 0, calls, "model reference stays unresolved until first build")
	ctx := context.Background()
	_, err := f.Build(ctx, nil)
	require.NoError(t, err)
	_, err = f.Build(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
