package kit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/slot"
)

func newTestKits(t *testing.T) (*Kit, *Kit) {
	t.Helper()
	comp := &Type{Name: "Component", Abstract: true, Slots: []slot.Def{
		slot.Config("meta", slot.Int, slot.IntValue(1)),
	}}
	folder := &Type{Name: "Folder", Base: comp}
	base, err := New("sys", "1.0", comp, folder)
	require.NoError(t, err)

	add := &Type{Name: "Add2", Base: comp, Slots: []slot.Def{
		slot.Prop("out", slot.Float, nil),
		slot.Prop("in1", slot.Float, nil),
		slot.Prop("in2", slot.Float, nil),
	}}
	ctl, err := New("control", "1.0", add)
	require.NoError(t, err)
	return base, ctl
}

func TestNew_AssignsIDs(t *testing.T) {
	sys, ctl := newTestKits(t)

	assert.Equal(t, uint8(0), sys.TypeByName("Component").ID)
	assert.Equal(t, uint8(1), sys.TypeByName("Folder").ID)

	add := ctl.TypeByName("Add2")
	require.NotNil(t, add)
	slots := add.AllSlots()
	require.Len(t, slots, 4)
	assert.Equal(t, "meta", slots[0].Name)
	for i, s := range slots {
		assert.Equal(t, uint8(i), s.ID)
	}
	assert.Equal(t, "control::Add2", add.QName())
	assert.True(t, add.IsNamed("sys::Component"))
	assert.True(t, add.Is(sys.TypeByName("Component")))
	assert.False(t, add.Is(sys.TypeByName("Folder")))
}

func TestNew_DuplicateSlot(t *testing.T) {
	base := &Type{Name: "Base", Slots: []slot.Def{slot.Prop("x", slot.Int, nil)}}
	sub := &Type{Name: "Sub", Base: base, Slots: []slot.Def{slot.Prop("x", slot.Int, nil)}}
	_, err := New("k", "1", base, sub)
	assert.ErrorContains(t, err, "duplicate slot")
}

func TestNew_DuplicateType(t *testing.T) {
	_, err := New("k", "1", &Type{Name: "A"}, &Type{Name: "A"})
	assert.ErrorContains(t, err, "duplicate type")
}

func TestChecksum_Deterministic(t *testing.T) {
	a, _ := newTestKits(t)
	b, _ := newTestKits(t)
	assert.Equal(t, a.Checksum(), b.Checksum())

	changed, err := New("sys", "1.0",
		&Type{Name: "Component", Slots: []slot.Def{slot.Config("meta", slot.Long, nil)}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Checksum(), changed.Checksum())
}

func TestCatalog(t *testing.T) {
	sys, ctl := newTestKits(t)
	cat, err := NewCatalog(sys, ctl)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), ctl.ID)
	assert.Same(t, ctl, cat.Kit(1))
	assert.Nil(t, cat.Kit(9))
	assert.Same(t, ctl, cat.KitByName("control"))
	assert.Same(t, ctl.TypeByName("Add2"), cat.Type(1, 0))
	assert.Nil(t, cat.Type(1, 7))
	assert.Same(t, ctl.TypeByName("Add2"), cat.TypeByName("control::Add2"))
	assert.Same(t, sys.TypeByName("Folder"), cat.TypeByName("Folder"))
	assert.Nil(t, cat.TypeByName("nope::Folder"))

	assert.Error(t, cat.Register(sys))
}
