// Package kits assembles the built-in kits into a catalog.
package kits

import (
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/kits/control"
	"github.com/roach88/svm/internal/kits/sys"
)

// Catalog returns a catalog holding the sys kit (id 0) and the control kit
// (id 1).
func Catalog(opts ...sys.Option) (*kit.Catalog, error) {
	s, err := sys.New(opts...)
	if err != nil {
		return nil, err
	}
	c, err := control.New(s.TypeByName("Component"))
	if err != nil {
		return nil, err
	}
	return kit.NewCatalog(s, c)
}

// MustCatalog is Catalog for tests and tools that cannot continue without
// the built-in kits.
func MustCatalog(opts ...sys.Option) *kit.Catalog {
	c, err := Catalog(opts...)
	if err != nil {
		panic(err)
	}
	return c
}
