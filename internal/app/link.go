package app

import (
	"errors"
	"fmt"

	"github.com/roach88/svm/internal/slot"
)

var (
	// ErrNoEndpoint means a link endpoint component or slot does not exist.
	ErrNoEndpoint = errors.New("link endpoint not found")
	// ErrLinkExists means an identical link is already present.
	ErrLinkExists = errors.New("link already exists")
	// ErrInputDriven means the target input already has an incoming link.
	ErrInputDriven = errors.New("input already linked")
	// ErrKindMismatch means the slot kinds cannot be coerced into each other.
	ErrKindMismatch = errors.New("incompatible slot kinds")
	// ErrNoLink means the link to remove does not exist.
	ErrNoLink = errors.New("link not found")
)

// Link is a directed edge from a source slot to a target slot.
type Link struct {
	FromComp ID
	FromSlot uint8
	ToComp   ID
	ToSlot   uint8
}

func (l Link) String() string {
	return fmt.Sprintf("%d.%d -> %d.%d", l.FromComp, l.FromSlot, l.ToComp, l.ToSlot)
}

type linkHandle int32

const noLink linkHandle = -1

type linkRec struct {
	Link
	nextIn  linkHandle
	nextOut linkHandle
	live    bool

	// last value delivered to an action target
	last slot.Value
}

// LookupLink finds a live link by its endpoints.
func (a *App) LookupLink(fromComp ID, fromSlot uint8, toComp ID, toSlot uint8) (Link, bool) {
	h := a.lookupLink(fromComp, fromSlot, toComp, toSlot)
	if h == noLink {
		return Link{}, false
	}
	return a.links[h].Link, true
}

func (a *App) lookupLink(fromComp ID, fromSlot uint8, toComp ID, toSlot uint8) linkHandle {
	to := a.Lookup(toComp)
	if to == nil {
		return noLink
	}
	for h := to.linksIn; h != noLink; h = a.links[h].nextIn {
		x := &a.links[h]
		if x.ToSlot == toSlot && x.FromComp == fromComp && x.FromSlot == fromSlot {
			return h
		}
	}
	return noLink
}

// AddLink links fromSlot of from to toSlot of to. The source must be a
// property; the target may be a property or an action. An input accepts
// at most one link.
func (a *App) AddLink(from *Component, fromSlot uint8, to *Component, toSlot uint8) (Link, error) {
	if from == nil || to == nil || a.Lookup(from.id) != from || a.Lookup(to.id) != to {
		return Link{}, ErrNoEndpoint
	}
	fd, ok := from.typ.SlotByID(fromSlot)
	if !ok || !fd.IsProperty() {
		return Link{}, fmt.Errorf("%w: %s slot %d", ErrNoEndpoint, from, fromSlot)
	}
	td, ok := to.typ.SlotByID(toSlot)
	if !ok {
		return Link{}, fmt.Errorf("%w: %s slot %d", ErrNoEndpoint, to, toSlot)
	}
	if !linkable(fd.Kind, td) {
		return Link{}, fmt.Errorf("%w: %s to %s", ErrKindMismatch, fd.Kind, td.Kind)
	}
	if a.lookupLink(from.id, fromSlot, to.id, toSlot) != noLink {
		return Link{}, ErrLinkExists
	}
	for h := to.linksIn; h != noLink; h = a.links[h].nextIn {
		if a.links[h].ToSlot == toSlot {
			return Link{}, fmt.Errorf("%w: %s.%s", ErrInputDriven, to, td.Name)
		}
	}

	l := Link{FromComp: from.id, FromSlot: fromSlot, ToComp: to.id, ToSlot: toSlot}
	a.insertLink(l)
	if a.running {
		to.linkEvent(Added, l)
		from.linkEvent(Added, l)
	}
	a.watches.MarkLinksChanged(from)
	a.watches.MarkLinksChanged(to)
	return l, nil
}

func linkable(from slot.Kind, to slot.Def) bool {
	if to.IsAction() && to.Kind == slot.Void {
		return true
	}
	return (from == slot.Buf) == (to.Kind == slot.Buf)
}

func (a *App) insertLink(l Link) linkHandle {
	var h linkHandle
	if n := len(a.freeLinks); n > 0 {
		h = a.freeLinks[n-1]
		a.freeLinks = a.freeLinks[:n-1]
	} else {
		h = linkHandle(len(a.links))
		a.links = append(a.links, linkRec{})
	}
	from, to := a.Lookup(l.FromComp), a.Lookup(l.ToComp)
	a.links[h] = linkRec{Link: l, nextIn: to.linksIn, nextOut: noLink, live: true}
	to.linksIn = h
	if from != to {
		a.links[h].nextOut = from.linksOut
		from.linksOut = h
	}
	return h
}

// RemoveLink detaches a link from both endpoints and resets the target
// property to its default.
func (a *App) RemoveLink(l Link) error {
	h := a.lookupLink(l.FromComp, l.FromSlot, l.ToComp, l.ToSlot)
	if h == noLink {
		return fmt.Errorf("%w: %s", ErrNoLink, l)
	}
	a.removeLink(h)
	return nil
}

func (a *App) removeLink(h linkHandle) {
	rec := a.links[h]
	from := a.Lookup(rec.FromComp)
	to := a.Lookup(rec.ToComp)

	if from != nil && from != to {
		if from.linksOut == h {
			from.linksOut = rec.nextOut
		} else {
			for x := from.linksOut; x != noLink; x = a.links[x].nextOut {
				if a.links[x].nextOut == h {
					a.links[x].nextOut = rec.nextOut
					break
				}
			}
		}
	}
	if to != nil {
		if to.linksIn == h {
			to.linksIn = rec.nextIn
		} else {
			for x := to.linksIn; x != noLink; x = a.links[x].nextIn {
				if a.links[x].nextIn == h {
					a.links[x].nextIn = rec.nextIn
					break
				}
			}
		}
		to.SetToDefault(rec.ToSlot)
	}

	if a.running {
		if from != nil {
			from.linkEvent(Removed, rec.Link)
		}
		if to != nil {
			to.linkEvent(Removed, rec.Link)
		}
	}
	if from != nil {
		a.watches.MarkLinksChanged(from)
	}
	if to != nil {
		a.watches.MarkLinksChanged(to)
	}
	a.links[h] = linkRec{nextIn: noLink, nextOut: noLink}
	a.freeLinks = append(a.freeLinks, h)
}

// LinksTo returns the links driving c's inputs, most recent first.
func (a *App) LinksTo(c *Component) []Link {
	var out []Link
	for h := c.linksIn; h != noLink; h = a.links[h].nextIn {
		out = append(out, a.links[h].Link)
	}
	return out
}

// LinksFrom returns the links sourced at c, most recent first. Links from
// c to itself are only listed by LinksTo.
func (a *App) LinksFrom(c *Component) []Link {
	var out []Link
	for h := c.linksOut; h != noLink; h = a.links[h].nextOut {
		out = append(out, a.links[h].Link)
	}
	return out
}

// Links returns every live link grouped by target id ascending, each group
// in insertion order. Re-adding links in this order rebuilds identical
// incoming lists.
func (a *App) Links() []Link {
	var out []Link
	for _, c := range a.comps {
		if c == nil {
			continue
		}
		in := a.LinksTo(c)
		for i := len(in) - 1; i >= 0; i-- {
			out = append(out, in[i])
		}
	}
	return out
}

// Propagate copies the source value of every link into c. Property targets
// are set with coercion to their kind; action targets are invoked when the
// source value differs from the one last delivered.
func (a *App) Propagate(c *Component) {
	for h := c.linksIn; h != noLink; h = a.links[h].nextIn {
		rec := &a.links[h]
		from := a.Lookup(rec.FromComp)
		if from == nil {
			continue
		}
		v := from.Get(rec.FromSlot)
		if v == nil {
			continue
		}
		td, ok := c.typ.SlotByID(rec.ToSlot)
		if !ok {
			continue
		}
		if td.IsAction() {
			if rec.last != nil && slot.Equal(rec.last, v) {
				continue
			}
			rec.last = slot.Clone(v)
			if err := c.Invoke(rec.ToSlot, v); err != nil {
				a.logger.Debug("link action failed", "link", rec.Link.String(), "error", err)
			}
			continue
		}
		if err := c.Set(rec.ToSlot, v); err != nil {
			a.logger.Debug("link value not applied", "link", rec.Link.String(), "error", err)
		}
	}
}
