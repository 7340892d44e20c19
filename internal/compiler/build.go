package compiler

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue/token"
	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
)

// Build creates an application from a description. Every error is
// collected; the returned error combines them (see multierr.Errors) and
// the application is only returned when there are none.
func Build(desc *Description, catalog *kit.Catalog, opts ...app.Option) (*app.App, error) {
	var err error
	for _, v := range Validate(desc) {
		err = multierr.Append(err, v)
	}
	if err != nil {
		return nil, err
	}

	a, err := app.New(catalog, opts...)
	if err != nil {
		return nil, err
	}
	b := &builder{app: a, catalog: catalog}

	root := a.Root()
	if desc.App.Name != "" {
		if err := a.Rename(root, desc.App.Name); err != nil {
			b.fail("/", "name", err.Error(), token.NoPos)
		}
	}
	b.setProps(root, "/", desc.App.Props, token.NoPos)
	for _, spec := range desc.Components {
		b.add(root, "", spec)
	}
	for i, s := range desc.Links {
		b.link(i, s)
	}

	if b.err != nil {
		return nil, b.err
	}
	return a, nil
}

// CompileFile loads and builds the description at path.
func CompileFile(path string, catalog *kit.Catalog, opts ...app.Option) (*app.App, error) {
	desc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(desc, catalog, opts...)
}

// AddComponent creates the component described by spec, with its subtree,
// under parent in a running or stopped app.
func AddComponent(a *app.App, parent *app.Component, spec ComponentSpec) error {
	b := &builder{app: a, catalog: a.Catalog()}
	b.add(parent, strings.TrimSuffix(a.PathString(parent), "/"), spec)
	return b.err
}

type builder struct {
	app     *app.App
	catalog *kit.Catalog
	err     error
}

func (b *builder) fail(path, field, msg string, pos token.Pos) {
	b.err = multierr.Append(b.err, &CompileError{
		Path:    path,
		Field:   field,
		Message: msg,
		Pos:     pos,
	})
}

func (b *builder) add(parent *app.Component, parentPath string, spec ComponentSpec) {
	path := parentPath + "/" + spec.Name
	t := b.catalog.TypeByName(spec.Type)
	if t == nil {
		b.fail(path, "type", fmt.Sprintf("unknown type %q", spec.Type), spec.Pos)
		return
	}
	c, err := b.app.NewComponent(t, spec.Name)
	if err != nil {
		b.fail(path, "type", err.Error(), spec.Pos)
		return
	}
	if _, err := b.app.Add(parent, c); err != nil {
		b.fail(path, "", err.Error(), spec.Pos)
		return
	}
	b.setProps(c, path, spec.Props, spec.Pos)
	for _, child := range spec.Children {
		b.add(c, path, child)
	}
}

func (b *builder) setProps(c *app.Component, path string, props map[string]any, pos token.Pos) {
	for _, name := range slices.Sorted(maps.Keys(props)) {
		d, ok := c.Slot(name)
		if !ok {
			b.fail(path, name, fmt.Sprintf("%s has no slot %q", c.Type().QName(), name), pos)
			continue
		}
		if d.IsAction() {
			b.fail(path, name, "cannot assign an action", pos)
			continue
		}
		v, err := ToValue(props[name], d)
		if err != nil {
			b.fail(path, name, err.Error(), pos)
			continue
		}
		if err := c.Set(d.ID, v); err != nil {
			b.fail(path, name, err.Error(), pos)
		}
	}
}

func (b *builder) link(i int, s string) {
	field := fmt.Sprintf("links[%d]", i)
	from, to, err := ParseLink(s)
	if err != nil {
		b.fail(field, "", err.Error(), token.NoPos)
		return
	}
	fc, fd, err := b.resolve(from)
	if err != nil {
		b.fail(field, "from", err.Error(), token.NoPos)
		return
	}
	tc, td, err := b.resolve(to)
	if err != nil {
		b.fail(field, "to", err.Error(), token.NoPos)
		return
	}
	if _, err := b.app.AddLink(fc, fd.ID, tc, td.ID); err != nil {
		b.fail(field, "", err.Error(), token.NoPos)
	}
}

func (b *builder) resolve(e Endpoint) (*app.Component, slot.Def, error) {
	return Resolve(b.app, e)
}

// Resolve finds the component and slot an endpoint names in a.
func Resolve(a *app.App, e Endpoint) (*app.Component, slot.Def, error) {
	c := a.Root()
	if e.Path != "" {
		for _, name := range strings.Split(e.Path, "/") {
			if c = a.LookupByName(c, name); c == nil {
				return nil, slot.Def{}, fmt.Errorf("no component %q", e.Path)
			}
		}
	}
	d, ok := c.Slot(e.Slot)
	if !ok {
		return nil, slot.Def{}, fmt.Errorf("%s has no slot %q", c.Type().QName(), e.Slot)
	}
	return c, d, nil
}

// ToValue converts a decoded description scalar (bool, integer, float64 or
// string) for a slot of d's kind. Nil yields the slot default.
func ToValue(x any, d slot.Def) (slot.Value, error) {
	switch v := x.(type) {
	case nil:
		return d.DefaultValue(), nil
	case bool:
		return slot.BoolValue(v), nil
	case int:
		return intValue(int64(v), d)
	case int64:
		return intValue(v, d)
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows %s", v, d.Kind)
		}
		return intValue(int64(v), d)
	case float64:
		return slot.DoubleValue(v), nil
	case string:
		if d.Kind != slot.Buf {
			return nil, fmt.Errorf("string value for %s slot", d.Kind)
		}
		return slot.Str(v), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", x, x)
	}
}

func intValue(i int64, d slot.Def) (slot.Value, error) {
	switch d.Kind {
	case slot.Byte, slot.Short, slot.Int:
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows %s", i, d.Kind)
		}
		return slot.IntValue(int32(i)), nil
	}
	return slot.LongValue(i), nil
}

// Describe renders a as a description. Only config properties that differ
// from their defaults are listed.
func Describe(a *app.App) *Description {
	root := a.Root()
	desc := &Description{
		App:        AppSpec{Name: root.Name(), Props: configProps(root)},
		Components: describeChildren(a, root),
	}
	for _, l := range a.Links() {
		from, to := a.Lookup(l.FromComp), a.Lookup(l.ToComp)
		fd, _ := from.Type().SlotByID(l.FromSlot)
		td, _ := to.Type().SlotByID(l.ToSlot)
		desc.Links = append(desc.Links, fmt.Sprintf("%s -> %s",
			Endpoint{Path: strings.TrimPrefix(a.PathString(from), "/"), Slot: fd.Name},
			Endpoint{Path: strings.TrimPrefix(a.PathString(to), "/"), Slot: td.Name}))
	}
	return desc
}

func describeChildren(a *app.App, parent *app.Component) []ComponentSpec {
	var specs []ComponentSpec
	for _, c := range a.Children(parent) {
		specs = append(specs, ComponentSpec{
			Name:     c.Name(),
			Type:     c.Type().QName(),
			Props:    configProps(c),
			Children: describeChildren(a, c),
		})
	}
	return specs
}

func configProps(c *app.Component) map[string]any {
	var props map[string]any
	for _, d := range c.Slots() {
		if !d.IsConfig() || !d.IsProperty() {
			continue
		}
		v := c.Get(d.ID)
		if slot.Equal(v, d.DefaultValue()) {
			continue
		}
		if props == nil {
			props = make(map[string]any)
		}
		props[d.Name] = scalar(v)
	}
	return props
}

func scalar(v slot.Value) any {
	switch x := v.(type) {
	case slot.BoolValue:
		return bool(x)
	case slot.IntValue:
		return int(x)
	case slot.LongValue:
		return int64(x)
	case slot.FloatValue:
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(x), 'g', -1, 32), 64)
		return f
	case slot.DoubleValue:
		return float64(x)
	case slot.BufValue:
		return string(x)
	}
	return nil
}
