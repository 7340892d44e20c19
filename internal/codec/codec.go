// Package codec reads and writes the binary app image (.sab).
//
// Layout, big endian:
//
//	u4  magic 0x73617070 "sapp"
//	u4  version 3
//	schema
//	  u1  kit count
//	  kit[count] { str name, u4 checksum }
//	u2  maxId
//	component[] {
//	  u2  id
//	  u1  kit index into the schema
//	  u1  type id
//	  str name
//	  u2  parent, u2 firstChild, u2 nextSibling
//	  val config properties in slot order
//	  u1  ';'
//	}
//	u2  0xffff
//	link[] { u2 fromComp, u1 fromSlot, u2 toComp, u1 toSlot }
//	u2  0xffff
//	u1  '.'
//
// Strings are null terminated. Every load failure is a *status.Error with a
// code naming what was wrong with the image.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
	"github.com/roach88/svm/internal/status"
	"github.com/roach88/svm/internal/stream"
)

const (
	Magic   uint32 = 0x73617070
	Version int32  = 3

	endOfList uint16 = 0xFFFF
	compEnd   byte   = ';'
	appEnd    byte   = '.'

	// kitNameMax bounds kit names in the schema, terminator included.
	kitNameMax = 64
)

// SchemaPolicy decides whether an image's kit schema is compatible with
// the runtime catalog.
type SchemaPolicy int

const (
	// Subset accepts an image whose kits are all installed with the same
	// checksum. The runtime may have more kits.
	Subset SchemaPolicy = iota
	// Exact additionally requires the runtime to have no other kits.
	Exact
	// NameOnly accepts any image whose kits are installed, ignoring
	// checksums.
	NameOnly
)

func (p SchemaPolicy) String() string {
	switch p {
	case Subset:
		return "subset"
	case Exact:
		return "exact"
	case NameOnly:
		return "name-only"
	}
	return fmt.Sprintf("SchemaPolicy(%d)", int(p))
}

// ParseSchemaPolicy parses the String form of a policy.
func ParseSchemaPolicy(s string) (SchemaPolicy, error) {
	for _, p := range []SchemaPolicy{Subset, Exact, NameOnly} {
		if p.String() == s {
			return p, nil
		}
	}
	return Subset, fmt.Errorf("unknown schema policy %q", s)
}

type loadOptions struct {
	policy  SchemaPolicy
	appOpts []app.Option
}

// Option configures LoadApp.
type Option func(*loadOptions)

// WithSchemaPolicy sets the schema compatibility policy. The default is Subset.
func WithSchemaPolicy(p SchemaPolicy) Option {
	return func(o *loadOptions) { o.policy = p }
}

// WithAppOptions passes options to the app constructed by LoadApp.
func WithAppOptions(opts ...app.Option) Option {
	return func(o *loadOptions) { o.appOpts = append(o.appOpts, opts...) }
}

// SaveApp writes a as an image. The schema lists every kit of the app's
// catalog, so a component's kit index is its catalog kit id.
func SaveApp(w io.Writer, a *app.App) error {
	out := stream.NewOutStream(w)
	out.WriteU4(Magic)
	out.WriteI4(Version)

	kits := a.Catalog().Kits()
	if len(kits) > 0xFF {
		return status.Errorf(status.InvalidSchema, "save", "%d kits do not fit the schema", len(kits))
	}
	out.Write(byte(len(kits)))
	for _, k := range kits {
		out.WriteStr(k.Name)
		out.WriteU4(k.Checksum())
	}

	out.WriteI2(int(a.MaxID()))
	for id := app.ID(0); id <= a.MaxID(); id++ {
		c := a.Lookup(id)
		if c == nil {
			continue
		}
		if err := saveComp(out, c); err != nil {
			return err
		}
	}
	out.WriteI2(int(endOfList))

	for _, l := range a.Links() {
		out.WriteI2(int(l.FromComp))
		out.Write(l.FromSlot)
		out.WriteI2(int(l.ToComp))
		out.Write(l.ToSlot)
	}
	out.WriteI2(int(endOfList))
	out.Write(appEnd)

	if err := out.Flush(); err != nil {
		return fmt.Errorf("save app: %w", err)
	}
	return nil
}

func saveComp(out *stream.OutStream, c *app.Component) error {
	t := c.Type()
	out.WriteI2(int(c.ID()))
	out.Write(t.Kit().ID)
	out.Write(t.ID)
	out.WriteStr(c.Name())
	out.WriteI2(int(c.ParentID()))
	out.WriteI2(int(c.FirstChildID()))
	out.WriteI2(int(c.NextSiblingID()))
	for _, s := range c.Slots() {
		if !s.IsProperty() || !s.IsConfig() {
			continue
		}
		if err := slot.Encode(out, s.Kind, c.Get(s.ID)); err != nil {
			return fmt.Errorf("save %s.%s: %w", c, s.Name, err)
		}
	}
	out.Write(compEnd)
	return nil
}

// Encode is SaveApp into a byte slice.
func Encode(a *app.App) ([]byte, error) {
	var buf bytes.Buffer
	if err := SaveApp(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// record is one decoded component before it is placed in the app.
type record struct {
	id                              app.ID
	typ                             *kit.Type
	name                            string
	parent, firstChild, nextSibling app.ID
	values                          []propValue
}

type propValue struct {
	slot  uint8
	value slot.Value
}

// LoadApp reads an image written by SaveApp and rebuilds the app against
// catalog. Component ids, tree order, config properties and links are
// restored exactly. The loaded app is not running.
func LoadApp(r io.Reader, catalog *kit.Catalog, opts ...Option) (*app.App, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	in := stream.NewInStream(r)

	magic, err := in.ReadU4()
	if err != nil {
		return nil, eof("magic", err)
	}
	if magic != Magic {
		return nil, status.Errorf(status.InvalidMagic, "load", "bad magic 0x%08x", magic)
	}
	version, err := in.ReadS4()
	if err != nil {
		return nil, eof("version", err)
	}
	if version != Version {
		return nil, status.Errorf(status.InvalidVersion, "load", "version %d, want %d", version, Version)
	}

	kitMap, err := loadSchema(in, catalog, o.policy)
	if err != nil {
		return nil, err
	}

	maxID, err := in.ReadU2()
	if err != nil {
		return nil, eof("maxId", err)
	}
	if app.ID(maxID) == app.NullID {
		return nil, status.New(status.CannotInsert, "load", "maxId is the null id")
	}

	var recs []record
	for {
		id, err := in.ReadU2()
		if err != nil {
			return nil, eof("component id", err)
		}
		if id == endOfList {
			break
		}
		rec, err := loadComp(in, app.ID(id), kitMap)
		if err != nil {
			return nil, err
		}
		if rec.id == 0 && len(recs) > 0 {
			return nil, status.New(status.CannotInsert, "load", "duplicate root component")
		}
		if rec.id > app.ID(maxID) {
			return nil, status.Errorf(status.CannotInsert, "load", "component id %d exceeds maxId %d", rec.id, maxID)
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 || recs[0].id != 0 {
		return nil, status.New(status.CannotInsert, "load", "image does not start with the root component")
	}

	a, err := app.New(catalog, append(o.appOpts, app.WithRootType(recs[0].typ))...)
	if err != nil {
		return nil, err
	}
	a.Reserve(app.ID(maxID))
	for _, rec := range recs {
		if err := place(a, rec); err != nil {
			return nil, err
		}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	for {
		from, err := in.ReadU2()
		if err != nil {
			return nil, eof("link", err)
		}
		if from == endOfList {
			break
		}
		if err := loadLink(in, a, app.ID(from)); err != nil {
			return nil, err
		}
	}

	end := in.Read()
	if end < 0 {
		return nil, status.New(status.UnexpectedEOF, "load", "missing app end marker")
	}
	if byte(end) != appEnd {
		return nil, status.Errorf(status.InvalidAppEndMarker, "load", "app end marker 0x%02x", end)
	}
	return a, nil
}

// Decode is LoadApp from a byte slice.
func Decode(data []byte, catalog *kit.Catalog, opts ...Option) (*app.App, error) {
	return LoadApp(bytes.NewReader(data), catalog, opts...)
}

// loadSchema checks the image's kits against catalog and returns the
// catalog kit for every schema index.
func loadSchema(in *stream.InStream, catalog *kit.Catalog, policy SchemaPolicy) ([]*kit.Kit, error) {
	n, err := in.ReadU1()
	if err != nil {
		return nil, eof("schema", err)
	}
	kits := make([]*kit.Kit, n)
	for i := range kits {
		name, err := in.ReadStr(kitNameMax)
		if err != nil {
			if errors.Is(err, stream.ErrStrTooLong) {
				return nil, status.Wrap(status.InvalidSchema, "load", err)
			}
			return nil, eof("schema", err)
		}
		sum, err := in.ReadU4()
		if err != nil {
			return nil, eof("schema", err)
		}
		k := catalog.KitByName(name)
		if k == nil {
			return nil, status.Errorf(status.InvalidSchema, "load", "kit %q is not installed", name)
		}
		if policy != NameOnly && k.Checksum() != sum {
			return nil, status.Errorf(status.InvalidSchema, "load", "kit %q checksum 0x%08x, installed 0x%08x", name, sum, k.Checksum())
		}
		kits[i] = k
	}
	if policy == Exact && len(kits) != len(catalog.Kits()) {
		return nil, status.Errorf(status.InvalidSchema, "load", "image has %d kits, runtime has %d", len(kits), len(catalog.Kits()))
	}
	return kits, nil
}

func loadComp(in *stream.InStream, id app.ID, kitMap []*kit.Kit) (record, error) {
	rec := record{id: id}
	kitIdx := in.Read()
	if kitIdx < 0 {
		return rec, status.New(status.UnexpectedEOF, "load", "truncated component")
	}
	if kitIdx >= len(kitMap) {
		return rec, status.Errorf(status.InvalidKitID, "load", "component %d: kit index %d", id, kitIdx)
	}
	typeID := in.Read()
	if typeID < 0 {
		return rec, status.New(status.UnexpectedEOF, "load", "truncated component")
	}
	k := kitMap[kitIdx]
	rec.typ = k.Type(uint8(typeID))
	if rec.typ == nil {
		return rec, status.Errorf(status.InvalidTypeID, "load", "component %d: %s has no type %d", id, k.Name, typeID)
	}

	name, err := in.ReadStr(app.NameLen + 1)
	if err != nil {
		if errors.Is(err, stream.ErrStrTooLong) {
			return rec, status.Errorf(status.NameTooLong, "load", "component %d: name %q", id, name)
		}
		return rec, eof("component name", err)
	}
	rec.name = name

	refs := make([]app.ID, 3)
	for i := range refs {
		v, err := in.ReadU2()
		if err != nil {
			return rec, eof("component tree", err)
		}
		refs[i] = app.ID(v)
	}
	rec.parent, rec.firstChild, rec.nextSibling = refs[0], refs[1], refs[2]

	for _, s := range rec.typ.AllSlots() {
		if !s.IsProperty() || !s.IsConfig() {
			continue
		}
		v, err := slot.Decode(in, s.Kind)
		if err != nil {
			return rec, eof("component "+s.Name, err)
		}
		rec.values = append(rec.values, propValue{slot: s.ID, value: v})
	}

	end := in.Read()
	if end < 0 {
		return rec, status.New(status.UnexpectedEOF, "load", "missing component end marker")
	}
	if byte(end) != compEnd {
		return rec, status.Errorf(status.InvalidCompEndMarker, "load", "component %d: end marker 0x%02x", id, end)
	}
	return rec, nil
}

func place(a *app.App, rec record) error {
	var c *app.Component
	if rec.id == 0 {
		c = a.Root()
		if err := a.Rename(c, rec.name); err != nil {
			return err
		}
	} else {
		var err error
		if c, err = a.NewComponent(rec.typ, rec.name); err != nil {
			return err
		}
	}
	for _, pv := range rec.values {
		if err := c.Set(pv.slot, pv.value); err != nil {
			return status.Wrap(status.CannotInsert, "load", err)
		}
	}
	return a.Restore(c, rec.id, rec.parent, rec.firstChild, rec.nextSibling)
}

func loadLink(in *stream.InStream, a *app.App, from app.ID) error {
	fromSlot, err := in.ReadU1()
	if err != nil {
		return eof("link", err)
	}
	to, err := in.ReadU2()
	if err != nil {
		return eof("link", err)
	}
	toSlot, err := in.ReadU1()
	if err != nil {
		return eof("link", err)
	}
	if _, err := a.AddLink(a.Lookup(from), fromSlot, a.Lookup(app.ID(to)), toSlot); err != nil {
		return status.Wrap(status.CannotLoadLink, "load", err)
	}
	return nil
}

func eof(what string, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return status.Errorf(status.UnexpectedEOF, "load", "truncated %s", what)
	}
	return status.Wrap(status.UnexpectedEOF, "load", fmt.Errorf("%s: %w", what, err))
}
