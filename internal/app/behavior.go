package app

import "github.com/roach88/svm/internal/slot"

// Event is the kind of a tree or link event delivered to observers.
type Event uint8

const (
	Removed   Event = 0
	Added     Event = 1
	Reordered Event = 2
)

func (e Event) String() string {
	switch e {
	case Removed:
		return "removed"
	case Added:
		return "added"
	case Reordered:
		return "reordered"
	}
	return "unknown"
}

// Component behavior is an arbitrary value created by the type's factory.
// The runtime discovers what a behavior can do by asserting the capability
// interfaces below; a behavior implements only the callbacks it needs.
//
// Lifecycle, tree and link callbacks are only delivered while the app is
// running.

// Executor runs once per scan cycle, after the component's incoming links
// have been propagated.
type Executor interface {
	Execute(c *Component)
}

// ChildGate decides whether a component's children execute this cycle.
type ChildGate interface {
	AllowChildExecute(c *Component) bool
}

// Loader is called when a component is loaded into a running app, before Start.
type Loader interface {
	Loaded(c *Component)
}

// Starter is called after every component has been loaded.
type Starter interface {
	Start(c *Component)
}

// Stopper is called when a component leaves a running app.
type Stopper interface {
	Stop(c *Component)
}

// ChildObserver is notified on the parent when a child is added or
// removed, and once with a nil child after the children are reordered.
type ChildObserver interface {
	ChildEvent(c *Component, e Event, child *Component)
}

// ParentObserver is notified on a child when it is parented or unparented.
type ParentObserver interface {
	ParentEvent(c *Component, e Event, parent *Component)
}

// LinkObserver is notified on both endpoints when a link is added or removed.
type LinkObserver interface {
	LinkEvent(c *Component, e Event, l Link)
}

// ChangeObserver is notified after a property value changes while running.
type ChangeObserver interface {
	Changed(c *Component, s slot.Def)
}

// Defaulter overrides how a property is reset when its input link is
// removed. Returning false falls back to the declared default.
type Defaulter interface {
	SetToDefault(c *Component, s slot.Def) bool
}

// ActionHandler implements a component's actions.
type ActionHandler interface {
	Invoke(c *Component, s slot.Def, arg slot.Value) error
}

// Service is a component that performs background work between scan cycles.
type Service interface {
	// Work performs a bounded unit of work and reports whether more is pending.
	Work(c *Component) bool
	CanHibernate(c *Component) bool
	OnHibernate(c *Component)
	OnUnhibernate(c *Component)
}

// Execute runs the component's execute step, if it has one.
func (c *Component) Execute() {
	if x, ok := c.behavior.(Executor); ok {
		x.Execute(c)
	}
}

// AllowChildExecute reports whether the component's children should
// execute this cycle. Components without a gate always allow it.
func (c *Component) AllowChildExecute() bool {
	if g, ok := c.behavior.(ChildGate); ok {
		return g.AllowChildExecute(c)
	}
	return true
}

// Loaded delivers the loaded callback.
func (c *Component) Loaded() {
	if l, ok := c.behavior.(Loader); ok {
		l.Loaded(c)
	}
}

// Start delivers the start callback.
func (c *Component) Start() {
	if s, ok := c.behavior.(Starter); ok {
		s.Start(c)
	}
}

// Stop delivers the stop callback.
func (c *Component) Stop() {
	if s, ok := c.behavior.(Stopper); ok {
		s.Stop(c)
	}
}

func (c *Component) childEvent(e Event, child *Component) {
	if o, ok := c.behavior.(ChildObserver); ok {
		o.ChildEvent(c, e, child)
	}
}

func (c *Component) parentEvent(e Event, parent *Component) {
	if o, ok := c.behavior.(ParentObserver); ok {
		o.ParentEvent(c, e, parent)
	}
}

func (c *Component) linkEvent(e Event, l Link) {
	if o, ok := c.behavior.(LinkObserver); ok {
		o.LinkEvent(c, e, l)
	}
}
