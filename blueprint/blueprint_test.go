package blueprint

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-fabrica/fabrica"
)

type user struct {
	Name  string
	Email string
	Lang  string
}

type company struct {
	Name  string
	Owner *user
}

const doc = `
factories:
  - name: employee
    extends: user
    attrs:
      - name: Email
        sequence: "employee%d@example.com"
      - name: Lang
        iterator: [en, fr]
        cycle: false
  - name: startup
    extends: company
    attrs:
      - name: Name
        value: Initech
      - name: Owner
        factory: employee
`

func newRegistry(t *testing.T) *fabrica.Registry {
	t.Helper()
	reg := fabrica.NewRegistry()
	reg.MustRegister("user", fabrica.MustNew(fabrica.Definition{
		Name:      "user",
		Model:     &user{},
		Sequences: fabrica.NewSequenceRegistry(),
		Attrs: []fabrica.Attr{
			{Name: "Name", Value: "Jane"},
		},
	}))
	reg.MustRegister("company", fabrica.MustNew(fabrica.Definition{
		Name:      "company",
		Model:     &company{},
		Sequences: fabrica.NewSequenceRegistry(),
	}))
	return reg
}

func TestApplyDerivesFactories(t *testing.T) {
	reg := newRegistry(t)
	file, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, file.Apply(reg))

	ctx := context.Background()
	startup, ok := reg.Lookup("startup")
	require.True(t, ok)

	c, err := fabrica.BuildAs[*company](ctx, startup, nil)
	require.NoError(t, err)
	assert.Equal(t, "Initech", c.Name)
	require.NotNil(t, c.Owner)
	assert.Equal(t, "Jane", c.Owner.Name, "blueprint factory inherits code-declared attributes")
	assert.Equal(t, "employee0@example.com", c.Owner.Email)
	assert.Equal(t, "en", c.Owner.Lang)

	c, err = fabrica.BuildAs[*company](ctx, startup, fabrica.Args{"Owner__Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Owner.Name)
	assert.Equal(t, "fr", c.Owner.Lang)
}

func TestIteratorExhaustsWithoutCycle(t *testing.T) {
	reg := newRegistry(t)
	file, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, file.Apply(reg))

	employee, ok := reg.Lookup("employee")
	require.True(t, ok)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := employee.Build(ctx, nil)
		require.NoError(t, err)
	}
	_, err = employee.Build(ctx, nil)
	require.Error(t, err)
}

func TestApplyRejectsUnknownBase(t *testing.T) {
	reg := newRegistry(t)
	file, err := Load(strings.NewReader(`
factories:
  - name: orphan
    extends: missing
`))
	require.NoError(t, err)
	err = file.Apply(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown factory")
}

func TestAttrSpecRequiresExactlyOneForm(t *testing.T) {
	reg := newRegistry(t)
	file, err := Load(strings.NewReader(`
factories:
  - name: broken
    extends: user
    attrs:
      - name: Email
        value: fixed
        sequence: "e%d"
`))
	require.NoError(t, err)
	err = file.Apply(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}
