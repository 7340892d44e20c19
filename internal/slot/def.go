package slot

import "fmt"

// Slot flags.
const (
	FlagAction   uint8 = 0x01
	FlagConfig   uint8 = 0x02
	FlagAsStr    uint8 = 0x04
	FlagOperator uint8 = 0x08
)

// Watch event bits raised when a property changes. They mirror the
// component watch event bits and are kept here so slot definitions can
// answer WatchEvent without importing the app package.
const (
	EventConfig  uint8 = 0x02
	EventRuntime uint8 = 0x04
)

// Def describes one slot of a component type. Slot ids are dense per type
// and assigned in declaration order, inherited slots first.
type Def struct {
	ID      uint8
	Name    string
	Kind    Kind
	Flags   uint8
	Default Value

	// MaxLen bounds Buf properties; zero means unbounded.
	MaxLen int
}

// Prop declares a runtime property.
func Prop(name string, kind Kind, def Value) Def {
	return Def{Name: name, Kind: kind, Default: def}
}

// Config declares a config property.
func Config(name string, kind Kind, def Value) Def {
	return Def{Name: name, Kind: kind, Flags: FlagConfig, Default: def}
}

// Action declares an action; kind is the argument kind or Void.
func Action(name string, arg Kind) Def {
	return Def{Name: name, Kind: arg, Flags: FlagAction}
}

// WithFlags returns a copy of d with extra flags set.
func (d Def) WithFlags(flags uint8) Def {
	d.Flags |= flags
	return d
}

// IsProperty reports whether the slot is a property.
func (d Def) IsProperty() bool { return d.Flags&FlagAction == 0 }

// IsAction reports whether the slot is an action.
func (d Def) IsAction() bool { return d.Flags&FlagAction != 0 }

// IsConfig reports whether the slot is a persistent config property.
func (d Def) IsConfig() bool { return d.Flags&FlagConfig != 0 }

// IsAsStr reports whether a Buf property is treated as a string.
func (d Def) IsAsStr() bool { return d.Flags&FlagAsStr != 0 }

// IsOperator reports whether the slot is operator level rather than admin level.
func (d Def) IsOperator() bool { return d.Flags&FlagOperator != 0 }

// MatchProp reports whether the slot is a property matching filter:
//
//	'*' or 0  any property
//	'c'       config properties
//	'r'       runtime properties
//	'C'       operator level config properties
//	'R'       operator level runtime properties
func (d Def) MatchProp(filter byte) bool {
	if !d.IsProperty() {
		return false
	}
	switch filter {
	case 0, '*':
		return true
	case 'c':
		return d.IsConfig()
	case 'r':
		return !d.IsConfig()
	case 'C':
		return d.IsConfig() && d.IsOperator()
	case 'R':
		return !d.IsConfig() && d.IsOperator()
	}
	return false
}

// WatchEvent returns the watch event bit a change to this slot raises.
func (d Def) WatchEvent() uint8 {
	if d.IsConfig() {
		return EventConfig
	}
	return EventRuntime
}

// DefaultValue returns the declared default or the zero value of the kind.
func (d Def) DefaultValue() Value {
	if d.Default != nil {
		return Clone(d.Default)
	}
	return Zero(d.Kind)
}

func (d Def) String() string {
	kind := "prop"
	if d.IsAction() {
		kind = "action"
	} else if d.IsConfig() {
		kind = "config"
	}
	return fmt.Sprintf("%s %s %s", kind, d.Kind, d.Name)
}

// Sig is the canonical signature used for kit checksums.
func (d Def) Sig() string {
	return fmt.Sprintf("%s:%d:%d", d.Name, d.Kind, d.Flags)
}
