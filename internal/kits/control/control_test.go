package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/kits/sys"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	s := sys.MustNew()
	c, err := New(s.TypeByName("Component"))
	require.NoError(t, err)
	cat, err := kit.NewCatalog(s, c)
	require.NoError(t, err)
	a, err := app.New(cat, app.WithSeed(3))
	require.NoError(t, err)
	return a
}

func add(t *testing.T, a *app.App, typeName, name string) *app.Component {
	t.Helper()
	c, err := a.NewComponentOf(typeName, name)
	require.NoError(t, err)
	_, err = a.Add(a.Root(), c)
	require.NoError(t, err)
	return c
}

func id(t *testing.T, c *app.Component, name string) uint8 {
	t.Helper()
	s, ok := c.Slot(name)
	require.True(t, ok, "slot %s", name)
	return s.ID
}

func TestNewRequiresBase(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestEveryBlockCarriesMeta(t *testing.T) {
	a := newApp(t)
	for _, name := range []string{"ConstBool", "ConstInt", "ConstFloat", "Add2", "Counter", "Switch"} {
		c := add(t, a, KitName+kit.Sep+name, "b")
		s, ok := c.Slot("meta")
		require.True(t, ok, name)
		assert.Equal(t, uint8(0), s.ID, name)
		assert.Equal(t, int32(1), c.Meta(), name)
		require.NoError(t, a.Remove(c))
	}
}

func TestAdd2(t *testing.T) {
	a := newApp(t)
	c := add(t, a, "control::Add2", "sum")
	c.SetFloat(id(t, c, "in1"), 1.5)
	c.SetFloat(id(t, c, "in2"), 2.25)

	c.Execute()

	assert.Equal(t, float32(3.75), c.GetFloat(id(t, c, "out")))
}

func TestCounter(t *testing.T) {
	a := newApp(t)
	c := add(t, a, "control::Counter", "n")
	out := id(t, c, "out")

	c.Execute()
	c.Execute()
	assert.Equal(t, int32(2), c.GetInt(out))

	c.SetInt(id(t, c, "step"), 5)
	c.Execute()
	assert.Equal(t, int32(7), c.GetInt(out))

	c.SetBool(id(t, c, "enabled"), false)
	c.Execute()
	assert.Equal(t, int32(7), c.GetInt(out))

	require.NoError(t, c.Invoke(id(t, c, "reset"), nil))
	assert.Equal(t, int32(0), c.GetInt(out))
}

func TestSwitch(t *testing.T) {
	a := newApp(t)
	c := add(t, a, "control::Switch", "sw")
	c.SetFloat(id(t, c, "in1"), 10)
	c.SetFloat(id(t, c, "in2"), 20)

	c.Execute()
	assert.Equal(t, float32(20), c.GetFloat(id(t, c, "out")))

	c.SetBool(id(t, c, "s"), true)
	c.Execute()
	assert.Equal(t, float32(10), c.GetFloat(id(t, c, "out")))
}

func TestConstantsDriveLinkedBlocks(t *testing.T) {
	a := newApp(t)
	k := add(t, a, "control::ConstInt", "k")
	sum := add(t, a, "control::Add2", "sum")
	k.SetInt(id(t, k, "out"), 4)

	_, err := a.AddLink(k, id(t, k, "out"), sum, id(t, sum, "in1"))
	require.NoError(t, err)

	a.Propagate(sum)
	sum.Execute()

	assert.Equal(t, float32(4), sum.GetFloat(id(t, sum, "out")))
}
