// Package app is the application aggregate: the component tree, the link
// graph between component slots, the watch registry and the service chain.
//
// Components live in an arena indexed by ID. Tree and link "pointers" are
// ids and link handles, never Go pointers between records, so released
// records cannot be reached through stale references.
//
// Key constraints:
//   - Id 0 is the root; ids are assigned monotonically and never reused
//   - Each input slot is driven by at most one link
//   - Add and Remove requested during a tree walk are queued and applied by
//     FlushPending, in request order
//   - Callbacks on behaviors are delivered only while the app is running
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"go.uber.org/multierr"

	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/status"
)

// RootTypeName is the type installed at id 0 unless overridden.
const RootTypeName = "sys::App"

// App owns the components, links, watches and services of one application.
// It is not safe for concurrent use.
type App struct {
	catalog  *kit.Catalog
	rootType *kit.Type
	logger   *slog.Logger
	rng      *rand.Rand

	comps    []*Component
	count    int
	services []ID

	links     []linkRec
	freeLinks []linkHandle

	watches WatchRegistry

	running bool
	walking bool
	pending []mutation

	ctl Controller
}

// Controller receives app level requests raised by components, such as
// the root's save and quit actions. The scheduler installs itself here.
type Controller interface {
	Save() error
	Quit()
	Restart()
	Reboot()
	Hibernate()
}

// SetController installs the controller for app level requests.
func (a *App) SetController(ctl Controller) { a.ctl = ctl }

// Controller returns the installed controller, or nil.
func (a *App) Controller() Controller { return a.ctl }

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSeed seeds the random source used for watch generations.
func WithSeed(seed uint64) Option {
	return func(a *App) { a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithRootType overrides the root component type.
func WithRootType(t *kit.Type) Option {
	return func(a *App) { a.rootType = t }
}

// New creates an app over catalog and installs the root component.
func New(catalog *kit.Catalog, opts ...Option) (*App, error) {
	a := &App{catalog: catalog}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if a.rootType == nil {
		a.rootType = catalog.TypeByName(RootTypeName)
	}
	if a.rootType == nil {
		return nil, status.Errorf(status.CannotInitApp, "app", "catalog has no %s type", RootTypeName)
	}
	a.watches.init(a)
	if err := a.Init(16); err != nil {
		return nil, err
	}
	return a, nil
}

// Init resets the app to a lone root component and reserves room for
// capacityHint components.
func (a *App) Init(capacityHint int) error {
	if capacityHint < 1 {
		capacityHint = 1
	}
	if capacityHint > int(NullID) {
		return status.Errorf(status.CannotMalloc, "init", "capacity %d exceeds id space", capacityHint)
	}
	a.comps = make([]*Component, 0, capacityHint)
	a.links = nil
	a.freeLinks = nil
	a.services = nil
	a.pending = nil
	a.running = false
	a.walking = false

	root := newComponent(a, a.rootType, "app")
	root.id = 0
	root.state = stateLive
	a.comps = append(a.comps, root)
	a.count = 1
	a.registerService(root)
	return nil
}

// Catalog returns the kit catalog the app was built against.
func (a *App) Catalog() *kit.Catalog { return a.catalog }

// Logger returns the app's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Root returns the root component.
func (a *App) Root() *Component { return a.comps[0] }

// Len returns the number of live components.
func (a *App) Len() int { return a.count }

// MaxID returns the highest id assigned so far.
func (a *App) MaxID() ID { return ID(len(a.comps) - 1) }

// IsRunning reports whether lifecycle callbacks are being delivered.
func (a *App) IsRunning() bool { return a.running }

// SetRunning switches callback delivery on or off.
func (a *App) SetRunning(running bool) { a.running = running }

// Watches returns the watch registry.
func (a *App) Watches() *WatchRegistry { return &a.watches }

// NewComponent creates a detached component of type t.
func (a *App) NewComponent(t *kit.Type, name string) (*Component, error) {
	if t == nil {
		return nil, status.New(status.InvalidTypeID, "new", "nil type")
	}
	if t.Abstract {
		return nil, status.Errorf(status.InvalidTypeID, "new", "%s is abstract", t.QName())
	}
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	return newComponent(a, t, name), nil
}

// NewComponentOf is NewComponent with a qualified type name.
func (a *App) NewComponentOf(typeName, name string) (*Component, error) {
	t := a.catalog.TypeByName(typeName)
	if t == nil {
		return nil, status.Errorf(status.InvalidTypeID, "new", "unknown type %q", typeName)
	}
	return a.NewComponent(t, name)
}

// Lookup returns the live component with the given id, or nil.
func (a *App) Lookup(id ID) *Component {
	if int(id) >= len(a.comps) {
		return nil
	}
	return a.comps[id]
}

// LookupByName returns the child of parent named name, or nil.
func (a *App) LookupByName(parent *Component, name string) *Component {
	if parent == nil {
		return nil
	}
	for kid := a.Lookup(parent.firstChild); kid != nil; kid = a.Lookup(kid.nextSibling) {
		if kid.name == name {
			return kid
		}
	}
	return nil
}

// Children returns parent's children in sibling order.
func (a *App) Children(parent *Component) []*Component {
	var kids []*Component
	for kid := a.Lookup(parent.firstChild); kid != nil; kid = a.Lookup(kid.nextSibling) {
		kids = append(kids, kid)
	}
	return kids
}

// Path returns the components from the root down to c, or nil when c is
// not reachable from the root.
func (a *App) Path(c *Component) []*Component {
	if c == nil || c.state != stateLive {
		return nil
	}
	var path []*Component
	for x := c; ; {
		path = append(path, x)
		if x.id == 0 {
			break
		}
		if len(path) > a.count {
			return nil
		}
		x = a.Lookup(x.parent)
		if x == nil {
			return nil
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathString renders the path of c as "/a/b".
func (a *App) PathString(c *Component) string {
	path := a.Path(c)
	if len(path) <= 1 {
		return "/"
	}
	s := ""
	for _, x := range path[1:] {
		s += "/" + x.name
	}
	return s
}

// Walk visits every live component depth first, parents before children,
// siblings in order. Returning ErrSkipChildren from fn skips the subtree.
func (a *App) Walk(fn func(c *Component) error) error {
	return a.walk(a.Root(), fn)
}

// ErrSkipChildren tells Walk not to descend into the current component.
var ErrSkipChildren = errors.New("skip children")

func (a *App) walk(c *Component, fn func(c *Component) error) error {
	if err := fn(c); err != nil {
		if errors.Is(err, ErrSkipChildren) {
			return nil
		}
		return err
	}
	for kid := a.Lookup(c.firstChild); kid != nil; kid = a.Lookup(kid.nextSibling) {
		if err := a.walk(kid, fn); err != nil {
			return err
		}
	}
	return nil
}

// Add inserts c as the last child of parent and returns its new id.
// While a tree walk is active the insertion is queued and applied by
// FlushPending; the returned id is already reserved.
func (a *App) Add(parent, c *Component) (ID, error) {
	if parent == nil || (parent.state != stateLive && parent.state != statePending) || parent.app != a {
		return NullID, status.New(status.InvalidArgs, "add", "parent is not in this app")
	}
	if c == nil || c.state != stateDetached || c.app != a {
		return NullID, status.New(status.InvalidArgs, "add", "component is not a detached component of this app")
	}
	if !a.walking && parent.state != stateLive {
		return NullID, status.New(status.InvalidArgs, "add", "parent is not in this app")
	}
	if len(a.comps) >= int(NullID) {
		return NullID, status.New(status.CannotMalloc, "add", "component ids exhausted")
	}
	id := ID(len(a.comps))
	a.comps = append(a.comps, nil)
	c.id = id

	if a.walking {
		c.state = statePending
		c.parent = parent.id
		a.pending = append(a.pending, mutation{op: opAdd, comp: c})
		return id, nil
	}
	a.attach(parent, c)
	return id, nil
}

func (a *App) attach(parent, c *Component) {
	c.parent = parent.id
	c.nextSibling = NullID
	c.state = stateLive
	a.comps[c.id] = c
	a.count++

	if parent.firstChild == NullID {
		parent.firstChild = c.id
	} else {
		last := a.Lookup(parent.firstChild)
		for last.nextSibling != NullID {
			last = a.Lookup(last.nextSibling)
		}
		last.nextSibling = c.id
	}
	a.registerService(c)

	a.logger.Debug("component added", "id", c.id, "name", c.name, "type", c.typ.QName(), "parent", parent.id)
	if a.running {
		parent.childEvent(Added, c)
		c.parentEvent(Added, parent)
		c.Loaded()
		c.Start()
	}
	a.watches.MarkTreeChanged(parent)
}

// Remove removes c and its whole subtree, detaching every link that
// touches a removed component. While a tree walk is active the removal is
// queued and applied by FlushPending.
func (a *App) Remove(c *Component) error {
	if c == nil || c.app != a {
		return status.New(status.InvalidArgs, "remove", "component not found")
	}
	if c.state == statePending && a.walking {
		a.pending = append(a.pending, mutation{op: opRemove, comp: c})
		return nil
	}
	if c.state != stateLive || a.Lookup(c.id) != c {
		return status.Errorf(status.InvalidArgs, "remove", "%s not found", c)
	}
	if c.id == 0 {
		return status.New(status.InvalidArgs, "remove", "cannot remove the root")
	}
	if a.walking {
		a.pending = append(a.pending, mutation{op: opRemove, comp: c})
		return nil
	}
	a.remove(c)
	return nil
}

func (a *App) remove(c *Component) {
	for kid := a.Lookup(c.firstChild); kid != nil; {
		next := a.Lookup(kid.nextSibling)
		a.remove(kid)
		kid = next
	}

	parent := a.Lookup(c.parent)
	if parent.firstChild == c.id {
		parent.firstChild = c.nextSibling
	} else {
		prev := a.Lookup(parent.firstChild)
		for prev != nil && prev.nextSibling != c.id {
			prev = a.Lookup(prev.nextSibling)
		}
		if prev != nil {
			prev.nextSibling = c.nextSibling
		}
	}

	for h := c.linksOut; h != noLink; {
		next := a.links[h].nextOut
		a.removeLink(h)
		h = next
	}
	for h := c.linksIn; h != noLink; {
		next := a.links[h].nextIn
		a.removeLink(h)
		h = next
	}

	if a.running {
		c.Stop()
		parent.childEvent(Removed, c)
		c.parentEvent(Removed, parent)
	}
	a.unregisterService(c)
	a.comps[c.id] = nil
	a.count--
	c.state = stateReleased
	c.nextSibling = NullID
	a.logger.Debug("component removed", "id", c.id, "name", c.name)
	a.watches.MarkTreeChanged(parent)
}

// Rename changes the name of a live component.
func (a *App) Rename(c *Component, name string) error {
	if c == nil || c.app != a || c.state != stateLive {
		return status.New(status.InvalidArgs, "rename", "component not found")
	}
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	if name == c.name {
		return nil
	}
	c.name = name
	a.watches.MarkTreeChanged(c)
	return nil
}

// Reorder rearranges parent's children into the order given by ids, which
// must be a permutation of the current children.
func (a *App) Reorder(parent *Component, ids []ID) error {
	if parent == nil || parent.state != stateLive {
		return status.New(status.InvalidArgs, "reorder", "parent not found")
	}
	kids := a.Children(parent)
	if len(kids) != len(ids) {
		return status.Errorf(status.InvalidArgs, "reorder", "%d ids for %d children", len(ids), len(kids))
	}
	seen := make(map[ID]bool, len(ids))
	for _, id := range ids {
		kid := a.Lookup(id)
		if kid == nil || kid.parent != parent.id || seen[id] {
			return status.Errorf(status.InvalidArgs, "reorder", "%d is not a child of %s", id, parent)
		}
		seen[id] = true
	}
	parent.firstChild = NullID
	for i := len(ids) - 1; i >= 0; i-- {
		kid := a.Lookup(ids[i])
		kid.nextSibling = parent.firstChild
		parent.firstChild = kid.id
	}
	if a.running {
		parent.childEvent(Reordered, nil)
	}
	a.watches.MarkTreeChanged(parent)
	return nil
}

// FirstChildOfType returns the first child of parent whose type is or
// inherits typeName.
func (a *App) FirstChildOfType(parent *Component, typeName string) *Component {
	if parent == nil {
		return nil
	}
	for kid := a.Lookup(parent.firstChild); kid != nil; kid = a.Lookup(kid.nextSibling) {
		if kid.typ.IsNamed(typeName) {
			return kid
		}
	}
	return nil
}

// NextSiblingOfType returns the next sibling of c whose type is or
// inherits typeName.
func (a *App) NextSiblingOfType(c *Component, typeName string) *Component {
	if c == nil {
		return nil
	}
	for x := a.Lookup(c.nextSibling); x != nil; x = a.Lookup(x.nextSibling) {
		if x.typ.IsNamed(typeName) {
			return x
		}
	}
	return nil
}

type mutationOp uint8

const (
	opAdd mutationOp = iota
	opRemove
)

type mutation struct {
	op   mutationOp
	comp *Component
}

// BeginWalk marks the start of a tree walk; structural mutations are
// queued until FlushPending.
func (a *App) BeginWalk() { a.walking = true }

// EndWalk ends the tree walk and applies queued mutations.
func (a *App) EndWalk() error {
	a.walking = false
	return a.FlushPending()
}

// FlushPending applies queued Add and Remove requests in request order.
// A request whose target no longer exists fails without affecting the
// others; all failures are returned together.
func (a *App) FlushPending() error {
	var errs error
	for len(a.pending) > 0 {
		m := a.pending[0]
		a.pending = a.pending[1:]
		switch m.op {
		case opAdd:
			c := m.comp
			if c.state != statePending {
				continue
			}
			parent := a.Lookup(c.parent)
			if parent == nil {
				c.state = stateReleased
				errs = multierr.Append(errs, status.Errorf(status.CannotInsert, "add", "%s: parent %d no longer exists", c, c.parent))
				continue
			}
			a.attach(parent, c)
		case opRemove:
			c := m.comp
			switch c.state {
			case statePending:
				// never attached
				c.state = stateReleased
			case stateLive:
				a.remove(c)
			default:
				errs = multierr.Append(errs, status.Errorf(status.InvalidArgs, "remove", "%s not found", c))
			}
		}
	}
	a.pending = nil
	return errs
}

// Pending returns the number of queued structural mutations.
func (a *App) Pending() int { return len(a.pending) }

// Restore places a decoded component at a fixed id with explicit tree
// references, without callbacks. It is used by loaders; call Validate once
// every component has been restored. For id 0, c must be the root.
func (a *App) Restore(c *Component, id, parent, firstChild, nextSibling ID) error {
	if c == nil || c.app != a {
		return status.New(status.CannotInsert, "restore", "foreign component")
	}
	if id == NullID {
		return status.New(status.CannotInsert, "restore", "null id")
	}
	if id == 0 {
		if c != a.Root() {
			return status.New(status.CannotInsert, "restore", "id 0 is reserved for the root")
		}
	} else {
		if c.state != stateDetached {
			return status.Errorf(status.CannotInsert, "restore", "%s already inserted", c)
		}
		for int(id) >= len(a.comps) {
			a.comps = append(a.comps, nil)
		}
		if a.comps[id] != nil {
			return status.Errorf(status.CannotInsert, "restore", "duplicate id %d", id)
		}
		c.id = id
		c.state = stateLive
		a.comps[id] = c
		a.count++
		a.registerService(c)
	}
	c.parent = parent
	c.firstChild = firstChild
	c.nextSibling = nextSibling
	return nil
}

// Reserve grows the id space so that MaxID is at least max.
func (a *App) Reserve(max ID) {
	for len(a.comps) <= int(max) && len(a.comps) < int(NullID) {
		a.comps = append(a.comps, nil)
	}
}

// Validate checks that the tree is well formed: every child list only
// holds live components that name their parent, has no cycles, and every
// component is reachable from the root exactly once.
func (a *App) Validate() error {
	if a.Root().parent != NullID {
		return status.New(status.CannotInsert, "validate", "root has a parent")
	}
	seen := make(map[ID]bool, a.count)
	var visit func(c *Component) error
	visit = func(c *Component) error {
		if seen[c.id] {
			return status.Errorf(status.CannotInsert, "validate", "component %d reached twice", c.id)
		}
		seen[c.id] = true
		for id := c.firstChild; id != NullID; {
			kid := a.Lookup(id)
			if kid == nil {
				return status.Errorf(status.CannotInsert, "validate", "%s references missing child %d", c, id)
			}
			if kid.parent != c.id {
				return status.Errorf(status.CannotInsert, "validate", "%s is listed under %d but names parent %d", kid, c.id, kid.parent)
			}
			if err := visit(kid); err != nil {
				return err
			}
			id = kid.nextSibling
		}
		return nil
	}
	if err := visit(a.Root()); err != nil {
		return err
	}
	if len(seen) != a.count {
		return status.Errorf(status.CannotInsert, "validate", "%d of %d components unreachable from the root", a.count-len(seen), a.count)
	}
	return nil
}

func (a *App) String() string {
	return fmt.Sprintf("app %s (%d components)", a.Root().name, a.count)
}
