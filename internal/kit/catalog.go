package kit

import (
	"fmt"
	"strings"
)

// Catalog registers the kits installed in a runtime. Kit ids are assigned
// in registration order.
type Catalog struct {
	kits   []*Kit
	byName map[string]*Kit
}

// NewCatalog returns a catalog holding kits, registered in order.
func NewCatalog(kits ...*Kit) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Kit)}
	for _, k := range kits {
		if err := c.Register(k); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a kit and assigns its id.
func (c *Catalog) Register(k *Kit) error {
	if _, ok := c.byName[k.Name]; ok {
		return fmt.Errorf("kit %q already registered", k.Name)
	}
	if len(c.kits) > 0xFF {
		return fmt.Errorf("register kit %q: catalog full", k.Name)
	}
	k.ID = uint8(len(c.kits))
	c.kits = append(c.kits, k)
	c.byName[k.Name] = k
	return nil
}

// MustRegister is Register for built-in kits.
func (c *Catalog) MustRegister(k *Kit) {
	if err := c.Register(k); err != nil {
		panic(err)
	}
}

// Kit returns the kit with the given id, or nil.
func (c *Catalog) Kit(id uint8) *Kit {
	if int(id) >= len(c.kits) {
		return nil
	}
	return c.kits[id]
}

// KitByName returns the kit with the given name, or nil.
func (c *Catalog) KitByName(name string) *Kit {
	return c.byName[name]
}

// Kits returns the registered kits ordered by id.
func (c *Catalog) Kits() []*Kit {
	return append([]*Kit(nil), c.kits...)
}

// Type returns the type for a kit/type id pair, or nil.
func (c *Catalog) Type(kitID, typeID uint8) *Type {
	k := c.Kit(kitID)
	if k == nil {
		return nil
	}
	return k.Type(typeID)
}

// TypeByName resolves a qualified "kit::Type" name. An unqualified name
// matches the first kit declaring a type of that name.
func (c *Catalog) TypeByName(name string) *Type {
	if kitName, typeName, ok := strings.Cut(name, Sep); ok {
		k := c.byName[kitName]
		if k == nil {
			return nil
		}
		return k.TypeByName(typeName)
	}
	for _, k := range c.kits {
		if t := k.TypeByName(name); t != nil {
			return t
		}
	}
	return nil
}
