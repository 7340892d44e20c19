package app

import "github.com/roach88/svm/internal/slot"

// WatchMax is the number of watch channels.
const WatchMax = 4

// Watch event bits, accumulated per component and channel in the low
// nibble of the watch flag byte.
const (
	EventTree    uint8 = 0x01
	EventConfig        = slot.EventConfig
	EventRuntime       = slot.EventRuntime
	EventLinks   uint8 = 0x08
	EventAll     uint8 = 0x0F
)

// Subscription bits live in the high nibble.
const (
	SubTree    = EventTree << 4
	SubConfig  = EventConfig << 4
	SubRuntime = EventRuntime << 4
	SubLinks   = EventLinks << 4
	SubAll     = EventAll << 4
)

// ToEventBit maps 't', 'c', 'r', 'l' and '*' to event bits; anything else
// maps to zero.
func ToEventBit(what byte) uint8 {
	switch what {
	case 't':
		return EventTree
	case 'c':
		return EventConfig
	case 'r':
		return EventRuntime
	case 'l':
		return EventLinks
	case '*':
		return EventAll
	}
	return 0
}

// ToSubBit is ToEventBit shifted into the subscription nibble.
func ToSubBit(what byte) uint8 { return ToEventBit(what) << 4 }

// FromSubBit maps a single subscription bit back to its letter, or '!'.
func FromSubBit(bit uint8) byte {
	switch bit {
	case SubTree:
		return 't'
	case SubConfig:
		return 'c'
	case SubRuntime:
		return 'r'
	case SubLinks:
		return 'l'
	}
	return '!'
}

// Watch is a handle on one channel of the registry. Its id combines a
// generation, re-rolled on every open, with the channel index. A handle
// kept after Close stays closed even when the channel is reopened.
type Watch struct {
	reg   *WatchRegistry
	index uint8
	gen   uint32
}

// ID returns the externally visible id, generation<<8 | index.
func (w *Watch) ID() int32 { return int32(w.gen<<8) | int32(w.index) }

// Index returns the channel index.
func (w *Watch) Index() int { return int(w.index) }

// Closed reports whether the watch has been closed.
func (w *Watch) Closed() bool { return w.reg.pool[w.index] != w }

// Subscribe adds a subscription for what ('t', 'c', 'r', 'l' or '*') on c.
func (w *Watch) Subscribe(c *Component, what byte) {
	if !w.Closed() {
		c.watchFlags[w.index] |= ToSubBit(what)
	}
}

// Unsubscribe clears every subscription and pending event on c.
func (w *Watch) Unsubscribe(c *Component) {
	if !w.Closed() {
		c.watchFlags[w.index] = 0
	}
}

// Subscriptions returns the event bits c is subscribed to on this channel.
func (w *Watch) Subscriptions(c *Component) uint8 {
	if w.Closed() {
		return 0
	}
	return c.watchFlags[w.index] >> 4
}

// Poll returns the pending event bits for c and clears them.
func (w *Watch) Poll(c *Component) uint8 {
	if w.Closed() {
		return 0
	}
	ev := c.watchFlags[w.index] & EventAll
	c.watchFlags[w.index] &^= EventAll
	return ev
}

// Changes returns the live components with pending events they are
// subscribed to, in id order.
func (w *Watch) Changes() []*Component {
	if w.Closed() {
		return nil
	}
	var out []*Component
	for _, c := range w.reg.app.comps {
		if c == nil {
			continue
		}
		f := c.watchFlags[w.index]
		if f&EventAll&(f>>4) != 0 {
			out = append(out, c)
		}
	}
	return out
}

// WatchRegistry allocates watch channels and accumulates change events.
type WatchRegistry struct {
	app  *App
	pool [WatchMax]*Watch
	gens [WatchMax]uint32
}

func (r *WatchRegistry) init(a *App) {
	r.app = a
	r.pool = [WatchMax]*Watch{}
}

// Open allocates a closed channel, or returns false if all are open. The
// channel starts with no subscriptions or pending events.
func (r *WatchRegistry) Open() (*Watch, bool) {
	for i := range r.pool {
		if r.pool[i] != nil {
			continue
		}
		r.gens[i] = r.nextGen(r.gens[i])
		w := &Watch{reg: r, index: uint8(i), gen: r.gens[i]}
		r.pool[i] = w
		for _, c := range r.app.comps {
			if c != nil {
				c.watchFlags[i] = 0
			}
		}
		return w, true
	}
	return nil, false
}

func (r *WatchRegistry) nextGen(prev uint32) uint32 {
	for {
		g := r.app.rng.Uint32N(1 << 23)
		if g != prev {
			return g
		}
	}
}

// Close releases w so a later Open may reuse its channel. It reports
// false when w is already closed, including a stale handle whose channel
// has since been reopened.
func (r *WatchRegistry) Close(w *Watch) bool {
	if w == nil || w.reg != r || w.Closed() {
		return false
	}
	r.pool[w.index] = nil
	return true
}

// Lookup resolves an external watch id to an open watch.
func (r *WatchRegistry) Lookup(id int32) (*Watch, bool) {
	i := int(id & 0xFF)
	if i >= WatchMax {
		return nil, false
	}
	w := r.pool[i]
	if w == nil || w.ID() != id {
		return nil, false
	}
	return w, true
}

func orFlags(c *Component, bit uint8) {
	for i := range c.watchFlags {
		c.watchFlags[i] |= bit
	}
}

// MarkTreeChanged records a tree event on c for every channel.
func (r *WatchRegistry) MarkTreeChanged(c *Component) { orFlags(c, EventTree) }

// MarkLinksChanged records a links event on c for every channel.
func (r *WatchRegistry) MarkLinksChanged(c *Component) { orFlags(c, EventLinks) }

// MarkSlotChanged records a config or runtime event on c for every channel.
func (r *WatchRegistry) MarkSlotChanged(c *Component, s slot.Def) { orFlags(c, s.WatchEvent()) }
