// Package kit holds the catalog of component types available to an app.
//
// A Kit is a named, versioned group of Types. Type and slot ids are dense
// and assigned in declaration order, so they are stable for a given kit
// definition and can be persisted. Kit.Checksum summarises the slot layout
// of every type so a saved app can detect that it was written against a
// different kit definition.
package kit

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/roach88/svm/internal/slot"
)

// Sep separates kit and type names in qualified type names.
const Sep = "::"

// Factory creates the behavior for a new component of a type. The returned
// value is type-asserted against the capability interfaces of package app.
type Factory func() any

// Type is a component type. Slots lists the type's own slots; the full slot
// table, inherited slots first, is available from AllSlots once the type
// belongs to a kit.
type Type struct {
	ID       uint8
	Name     string
	Base     *Type
	Abstract bool
	Slots    []slot.Def
	New      Factory

	kit   *Kit
	all   []slot.Def
	ready bool
}

// Kit returns the kit the type was declared in.
func (t *Type) Kit() *Kit { return t.kit }

// QName returns the qualified name "kit::Type".
func (t *Type) QName() string {
	if t.kit == nil {
		return t.Name
	}
	return t.kit.Name + Sep + t.Name
}

// AllSlots returns the full slot table indexed by slot id.
func (t *Type) AllSlots() []slot.Def { return t.all }

// Slot looks up a slot by name.
func (t *Type) Slot(name string) (slot.Def, bool) {
	for _, s := range t.all {
		if s.Name == name {
			return s, true
		}
	}
	return slot.Def{}, false
}

// MustSlot looks up a slot by name and panics if it does not exist. It is
// meant for kit definitions resolving their own slot ids.
func (t *Type) MustSlot(name string) slot.Def {
	s, ok := t.Slot(name)
	if !ok {
		panic(fmt.Sprintf("kit: %s has no slot %q", t.QName(), name))
	}
	return s
}

// SlotByID returns the slot with the given id.
func (t *Type) SlotByID(id uint8) (slot.Def, bool) {
	if int(id) >= len(t.all) {
		return slot.Def{}, false
	}
	return t.all[id], true
}

// Is reports whether t is base or inherits from it.
func (t *Type) Is(base *Type) bool {
	for x := t; x != nil; x = x.Base {
		if x == base {
			return true
		}
	}
	return false
}

// IsNamed is Is by qualified or local name.
func (t *Type) IsNamed(name string) bool {
	for x := t; x != nil; x = x.Base {
		if x.QName() == name || x.Name == name {
			return true
		}
	}
	return false
}

func (t *Type) resolve(seen map[*Type]bool) error {
	if t.ready {
		return nil
	}
	if seen[t] {
		return fmt.Errorf("type %s: inheritance cycle", t.QName())
	}
	seen[t] = true

	var all []slot.Def
	if t.Base != nil {
		if err := t.Base.resolve(seen); err != nil {
			return err
		}
		all = append(all, t.Base.all...)
	}
	for _, s := range t.Slots {
		for _, prev := range all {
			if prev.Name == s.Name {
				return fmt.Errorf("type %s: duplicate slot %q", t.QName(), s.Name)
			}
		}
		if len(all) > 0xFF {
			return fmt.Errorf("type %s: too many slots", t.QName())
		}
		s.ID = uint8(len(all))
		all = append(all, s)
	}
	t.all = all
	t.ready = true
	return nil
}

// Kit is a versioned group of types.
type Kit struct {
	ID      uint8
	Name    string
	Version string
	Types   []*Type

	checksum uint32
}

// New builds a kit, assigning type and slot ids in declaration order.
// Base types may belong to other kits as long as those kits were built first.
func New(name, version string, types ...*Type) (*Kit, error) {
	if name == "" {
		return nil, errors.New("kit name is empty")
	}
	if strings.Contains(name, Sep) {
		return nil, fmt.Errorf("kit name %q contains %q", name, Sep)
	}
	if len(types) > 0xFF {
		return nil, fmt.Errorf("kit %s: too many types", name)
	}

	k := &Kit{Name: name, Version: version, Types: types}
	names := make(map[string]bool, len(types))
	for i, t := range types {
		if names[t.Name] {
			return nil, fmt.Errorf("kit %s: duplicate type %q", name, t.Name)
		}
		names[t.Name] = true
		t.ID = uint8(i)
		t.kit = k
	}
	for _, t := range types {
		if err := t.resolve(map[*Type]bool{}); err != nil {
			return nil, err
		}
	}
	k.checksum = k.computeChecksum()
	return k, nil
}

// Type returns the type with the given id, or nil.
func (k *Kit) Type(id uint8) *Type {
	if int(id) >= len(k.Types) {
		return nil
	}
	return k.Types[id]
}

// TypeByName returns the type with the given local name, or nil.
func (k *Kit) TypeByName(name string) *Type {
	for _, t := range k.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Checksum is a CRC-32 over the canonical signature of every type and slot.
func (k *Kit) Checksum() uint32 { return k.checksum }

func (k *Kit) computeChecksum() uint32 {
	h := crc32.NewIEEE()
	for _, t := range k.Types {
		base := ""
		if t.Base != nil {
			base = t.Base.QName()
		}
		fmt.Fprintf(h, "%d %s %s\n", t.ID, t.Name, base)
		for _, s := range t.all {
			fmt.Fprintf(h, " %s\n", s.Sig())
		}
	}
	return h.Sum32()
}

func (k *Kit) String() string {
	return fmt.Sprintf("%s %s (0x%08x)", k.Name, k.Version, k.checksum)
}
