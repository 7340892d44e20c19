package app

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
	"github.com/roach88/svm/internal/status"
)

// ID identifies a component within an app. Ids are dense, assigned at
// insertion and never reused within a session.
type ID uint16

// NullID is the "no component" sentinel.
const NullID ID = 0xFFFF

// NameLen is the maximum component name length in bytes.
const NameLen = 8

type compState uint8

const (
	stateDetached compState = iota
	statePending
	stateLive
	stateReleased
)

// Component is one node of the app tree: identity, tree position, link
// list heads, watch flags and slot values. Behavior is supplied by the
// component's type.
type Component struct {
	app   *App
	typ   *kit.Type
	state compState

	id          ID
	name        string
	parent      ID
	firstChild  ID
	nextSibling ID

	linksIn  linkHandle
	linksOut linkHandle

	watchFlags [WatchMax]byte

	values   []slot.Value
	behavior any
}

// ValidateName normalizes name to NFC and checks it against the naming
// rules. The normalized name is returned.
func ValidateName(name string) (string, error) {
	name = norm.NFC.String(name)
	if name == "" {
		return "", status.New(status.InvalidArgs, "name", "component name is empty")
	}
	if len(name) > NameLen {
		return "", status.Errorf(status.NameTooLong, "name", "%q is %d bytes, max %d", name, len(name), NameLen)
	}
	if strings.ContainsAny(name, "/. \t\n") {
		return "", status.Errorf(status.InvalidArgs, "name", "%q contains a reserved character", name)
	}
	return name, nil
}

func newComponent(a *App, t *kit.Type, name string) *Component {
	c := &Component{
		app:         a,
		typ:         t,
		id:          NullID,
		name:        name,
		parent:      NullID,
		firstChild:  NullID,
		nextSibling: NullID,
		linksIn:     noLink,
		linksOut:    noLink,
	}
	slots := t.AllSlots()
	c.values = make([]slot.Value, len(slots))
	for i, s := range slots {
		if s.IsProperty() {
			c.values[i] = s.DefaultValue()
		}
	}
	if t.New != nil {
		c.behavior = t.New()
	}
	return c
}

// ID returns the component's id, stable for its lifetime.
func (c *Component) ID() ID { return c.id }

// Name returns the component's name, unique among its siblings.
func (c *Component) Name() string { return c.name }

// Type returns the component's kit type.
func (c *Component) Type() *kit.Type { return c.typ }

// App returns the app the component was created for.
func (c *Component) App() *App { return c.app }

// Behavior returns the value the type's factory built, or nil.
func (c *Component) Behavior() any { return c.behavior }

// Tree references; NullID when absent.
func (c *Component) ParentID() ID      { return c.parent }
func (c *Component) FirstChildID() ID  { return c.firstChild }
func (c *Component) NextSiblingID() ID { return c.nextSibling }

// IsLive reports whether the component is in the tree.
func (c *Component) IsLive() bool { return c.state == stateLive }

// Slots returns every slot of the component's type, inherited ones first.
func (c *Component) Slots() []slot.Def { return c.typ.AllSlots() }

// Is reports whether the component's type is t or derives from it.
func (c *Component) Is(t *kit.Type) bool { return c.typ.Is(t) }

// Parent returns the parent component, or nil for the root.
func (c *Component) Parent() *Component { return c.app.Lookup(c.parent) }

// Slot looks up a slot of the component's type by name.
func (c *Component) Slot(name string) (slot.Def, bool) { return c.typ.Slot(name) }

func (c *Component) def(id uint8) (slot.Def, error) {
	d, ok := c.typ.SlotByID(id)
	if !ok {
		return d, fmt.Errorf("%s has no slot %d", c, id)
	}
	return d, nil
}

// Get returns the current value of a property, or nil for actions and
// unknown slots.
func (c *Component) Get(id uint8) slot.Value {
	if int(id) >= len(c.values) {
		return nil
	}
	return c.values[id]
}

func (c *Component) getAs(id uint8, k slot.Kind) slot.Value {
	v := c.Get(id)
	if v == nil {
		return slot.Zero(k)
	}
	cv, err := slot.Coerce(v, k)
	if err != nil {
		return slot.Zero(k)
	}
	return cv
}

// Typed getters coerce the value to the requested kind; unknown slots,
// actions and values that cannot be coerced read as zero.
func (c *Component) GetBool(id uint8) bool {
	return bool(c.getAs(id, slot.Bool).(slot.BoolValue))
}

func (c *Component) GetInt(id uint8) int32 {
	return int32(c.getAs(id, slot.Int).(slot.IntValue))
}

func (c *Component) GetLong(id uint8) int64 {
	return int64(c.getAs(id, slot.Long).(slot.LongValue))
}

func (c *Component) GetFloat(id uint8) float32 {
	return float32(c.getAs(id, slot.Float).(slot.FloatValue))
}

func (c *Component) GetDouble(id uint8) float64 {
	return float64(c.getAs(id, slot.Double).(slot.DoubleValue))
}

// GetBuf returns the slot's buffer. The caller must not modify it without
// calling Changed afterwards.
func (c *Component) GetBuf(id uint8) []byte {
	if b, ok := c.Get(id).(slot.BufValue); ok {
		return b
	}
	return nil
}

// Set assigns a property value, coercing it to the slot's kind. A change
// marks the slot's watch event and notifies the behavior while the app is
// running.
func (c *Component) Set(id uint8, v slot.Value) error {
	d, err := c.def(id)
	if err != nil {
		return err
	}
	if !d.IsProperty() {
		return fmt.Errorf("%s.%s is an action", c, d.Name)
	}
	cv, err := slot.Coerce(v, d.Kind)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", c, d.Name, err)
	}
	if b, ok := cv.(slot.BufValue); ok && d.MaxLen > 0 && len(b) > d.MaxLen {
		return fmt.Errorf("set %s.%s: %d bytes exceeds max %d", c, d.Name, len(b), d.MaxLen)
	}
	if slot.Equal(c.values[id], cv) {
		return nil
	}
	c.values[id] = cv
	c.changed(d)
	return nil
}

// Typed setters ignore unknown slots; use Set to observe errors.
func (c *Component) SetBool(id uint8, v bool)      { _ = c.Set(id, slot.BoolValue(v)) }
func (c *Component) SetInt(id uint8, v int32)      { _ = c.Set(id, slot.IntValue(v)) }
func (c *Component) SetLong(id uint8, v int64)     { _ = c.Set(id, slot.LongValue(v)) }
func (c *Component) SetFloat(id uint8, v float32)  { _ = c.Set(id, slot.FloatValue(v)) }
func (c *Component) SetDouble(id uint8, v float64) { _ = c.Set(id, slot.DoubleValue(v)) }
func (c *Component) SetBuf(id uint8, v []byte)     { _ = c.Set(id, slot.BufValue(v)) }

// Changed records an in-place modification of a Buf property.
func (c *Component) Changed(id uint8) {
	if d, err := c.def(id); err == nil {
		c.changed(d)
	}
}

func (c *Component) changed(d slot.Def) {
	if c.state != stateLive || !c.app.running {
		return
	}
	c.app.watches.MarkSlotChanged(c, d)
	if o, ok := c.behavior.(ChangeObserver); ok {
		o.Changed(c, d)
	}
}

// SetToDefault resets a property to its default value.
func (c *Component) SetToDefault(id uint8) {
	d, err := c.def(id)
	if err != nil || !d.IsProperty() {
		return
	}
	if x, ok := c.behavior.(Defaulter); ok && x.SetToDefault(c, d) {
		return
	}
	_ = c.Set(id, d.DefaultValue())
}

// Invoke calls an action. Void actions ignore arg.
func (c *Component) Invoke(id uint8, arg slot.Value) error {
	d, err := c.def(id)
	if err != nil {
		return err
	}
	if !d.IsAction() {
		return fmt.Errorf("%s.%s is not an action", c, d.Name)
	}
	if d.Kind == slot.Void {
		arg = nil
	} else {
		if arg == nil {
			arg = slot.Zero(d.Kind)
		}
		if arg, err = slot.Coerce(arg, d.Kind); err != nil {
			return fmt.Errorf("invoke %s.%s: %w", c, d.Name, err)
		}
	}
	h, ok := c.behavior.(ActionHandler)
	if !ok {
		return fmt.Errorf("%s does not handle action %s", c, d.Name)
	}
	return h.Invoke(c, d, arg)
}

// Meta returns the permission group bitmask stored in the "meta" property.
func (c *Component) Meta() int32 {
	if d, ok := c.typ.Slot("meta"); ok {
		return c.GetInt(d.ID)
	}
	return 0
}

func (c *Component) String() string {
	if c.id == NullID {
		return fmt.Sprintf("%s(%s)", c.name, c.typ.QName())
	}
	return fmt.Sprintf("%s#%d", c.name, c.id)
}
