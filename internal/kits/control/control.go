// Package control is the built-in "control" kit of simple function blocks.
package control

import (
	"fmt"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
)

// KitName is the name of the kit.
const KitName = "control"

// Version is the kit version recorded in saved images.
const Version = "1.0"

// New builds the control kit. base is the component base type every block
// derives from (sys::Component).
func New(base *kit.Type) (*kit.Kit, error) {
	if base == nil {
		return nil, fmt.Errorf("control kit: nil base type")
	}

	constBool := &kit.Type{Name: "ConstBool", Base: base, Slots: []slot.Def{
		slot.Config("out", slot.Bool, nil),
	}}
	constInt := &kit.Type{Name: "ConstInt", Base: base, Slots: []slot.Def{
		slot.Config("out", slot.Int, nil),
	}}
	constFloat := &kit.Type{Name: "ConstFloat", Base: base, Slots: []slot.Def{
		slot.Config("out", slot.Float, nil),
	}}

	add2 := &kit.Type{Name: "Add2", Base: base, Slots: []slot.Def{
		slot.Prop("out", slot.Float, nil),
		slot.Prop("in1", slot.Float, nil),
		slot.Prop("in2", slot.Float, nil),
	}}
	add2.New = func() any {
		return &Add2{
			out: add2.MustSlot("out").ID,
			in1: add2.MustSlot("in1").ID,
			in2: add2.MustSlot("in2").ID,
		}
	}

	counter := &kit.Type{Name: "Counter", Base: base, Slots: []slot.Def{
		slot.Prop("out", slot.Int, nil),
		slot.Config("step", slot.Int, slot.IntValue(1)),
		slot.Prop("enabled", slot.Bool, slot.BoolValue(true)),
		slot.Action("reset", slot.Void),
	}}
	counter.New = func() any {
		return &Counter{
			out:     counter.MustSlot("out").ID,
			step:    counter.MustSlot("step").ID,
			enabled: counter.MustSlot("enabled").ID,
		}
	}

	sw := &kit.Type{Name: "Switch", Base: base, Slots: []slot.Def{
		slot.Prop("out", slot.Float, nil),
		slot.Prop("s", slot.Bool, nil),
		slot.Prop("in1", slot.Float, nil),
		slot.Prop("in2", slot.Float, nil),
	}}
	sw.New = func() any {
		return &Switch{
			out: sw.MustSlot("out").ID,
			sel: sw.MustSlot("s").ID,
			in1: sw.MustSlot("in1").ID,
			in2: sw.MustSlot("in2").ID,
		}
	}

	k, err := kit.New(KitName, Version, constBool, constInt, constFloat, add2, counter, sw)
	if err != nil {
		return nil, fmt.Errorf("control kit: %w", err)
	}
	return k, nil
}

// Add2 sets out to in1 + in2.
type Add2 struct {
	out, in1, in2 uint8
}

func (b *Add2) Execute(c *app.Component) {
	c.SetFloat(b.out, c.GetFloat(b.in1)+c.GetFloat(b.in2))
}

// Counter adds step to out on every cycle while enabled.
type Counter struct {
	out, step, enabled uint8
}

func (b *Counter) Execute(c *app.Component) {
	if !c.GetBool(b.enabled) {
		return
	}
	c.SetInt(b.out, c.GetInt(b.out)+c.GetInt(b.step))
}

func (b *Counter) Invoke(c *app.Component, s slot.Def, arg slot.Value) error {
	if s.Name != "reset" {
		return fmt.Errorf("%s has no action %q", c, s.Name)
	}
	c.SetInt(b.out, 0)
	return nil
}

// Switch passes in1 to out when s is true and in2 otherwise.
type Switch struct {
	out, sel, in1, in2 uint8
}

func (b *Switch) Execute(c *app.Component) {
	if c.GetBool(b.sel) {
		c.SetFloat(b.out, c.GetFloat(b.in1))
	} else {
		c.SetFloat(b.out, c.GetFloat(b.in2))
	}
}
