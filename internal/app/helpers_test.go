package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
)

// recorder collects callback names in delivery order.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type tracer struct {
	rec *recorder
}

func (p *tracer) Loaded(c *Component) { p.rec.add("loaded %s", c.Name()) }
func (p *tracer) Start(c *Component)  { p.rec.add("start %s", c.Name()) }
func (p *tracer) Stop(c *Component)   { p.rec.add("stop %s", c.Name()) }
func (p *tracer) ChildEvent(c *Component, e Event, child *Component) {
	if child == nil {
		p.rec.add("child %s %s", c.Name(), e)
		return
	}
	p.rec.add("child %s %s %s", c.Name(), e, child.Name())
}
func (p *tracer) ParentEvent(c *Component, e Event, parent *Component) {
	p.rec.add("parent %s %s %s", c.Name(), e, parent.Name())
}
func (p *tracer) LinkEvent(c *Component, e Event, l Link) {
	p.rec.add("link %s %s %s", c.Name(), e, l)
}
func (p *tracer) Invoke(c *Component, s slot.Def, arg slot.Value) error {
	p.rec.add("invoke %s.%s %v", c.Name(), s.Name, arg)
	return nil
}

type service struct {
	tracer
	more      int
	hibernate bool
}

func (s *service) Work(c *Component) bool {
	if s.more > 0 {
		s.more--
		return true
	}
	return false
}
func (s *service) CanHibernate(c *Component) bool { return s.hibernate }
func (s *service) OnHibernate(c *Component)       {}
func (s *service) OnUnhibernate(c *Component)     {}

type fixture struct {
	app *App
	rec *recorder

	node *kit.Type
	svc  *kit.Type

	out, in, fire, flag, text, short uint8
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rec: &recorder{}}

	base := &kit.Type{Name: "Component", Abstract: true, Slots: []slot.Def{
		slot.Config("meta", slot.Int, slot.IntValue(1)),
	}}
	root := &kit.Type{Name: "App", Base: base}
	sys, err := kit.New("sys", "1.0", base, root)
	require.NoError(t, err)

	short := slot.Prop("short", slot.Buf, nil)
	short.MaxLen = 2
	f.node = &kit.Type{Name: "Node", Base: base, Slots: []slot.Def{
		slot.Prop("out", slot.Int, nil),
		slot.Prop("in", slot.Int, slot.IntValue(-1)),
		slot.Action("fire", slot.Int),
		slot.Config("flag", slot.Bool, nil),
		slot.Prop("text", slot.Buf, nil),
		short,
	}, New: func() any { return &tracer{rec: f.rec} }}
	f.svc = &kit.Type{Name: "Svc", Base: base, New: func() any {
		return &service{tracer: tracer{rec: f.rec}}
	}}
	tk, err := kit.New("test", "1.0", f.node, f.svc)
	require.NoError(t, err)

	cat, err := kit.NewCatalog(sys, tk)
	require.NoError(t, err)
	f.app, err = New(cat, WithSeed(7))
	require.NoError(t, err)

	f.out = f.node.MustSlot("out").ID
	f.in = f.node.MustSlot("in").ID
	f.fire = f.node.MustSlot("fire").ID
	f.flag = f.node.MustSlot("flag").ID
	f.text = f.node.MustSlot("text").ID
	f.short = f.node.MustSlot("short").ID
	return f
}

func (f *fixture) add(t *testing.T, parent *Component, name string) *Component {
	t.Helper()
	c, err := f.app.NewComponent(f.node, name)
	require.NoError(t, err)
	_, err = f.app.Add(parent, c)
	require.NoError(t, err)
	return c
}

func childNames(a *App, parent *Component) []string {
	var names []string
	for _, c := range a.Children(parent) {
		names = append(names, c.Name())
	}
	return names
}
