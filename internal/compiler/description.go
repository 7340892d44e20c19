package compiler

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

// Description is an application written as data. It is the source form
// accepted by Build and produced by Describe.
//
//	app:
//	  name: plant
//	  scanPeriod: 20
//	components:
//	  - name: n
//	    type: control::Counter
//	    props: {step: 3}
//	links:
//	  - n.out -> sum.in1
type Description struct {
	App        AppSpec         `yaml:"app" json:"app"`
	Components []ComponentSpec `yaml:"components,omitempty" json:"components,omitempty"`
	Links      []string        `yaml:"links,omitempty" json:"links,omitempty"`
}

// AppSpec names the root component. Every other key is a root property
// such as scanPeriod or appName.
type AppSpec struct {
	Name  string         `yaml:"name,omitempty" json:"name,omitempty"`
	Props map[string]any `yaml:",inline" json:"props,omitempty"`
}

// ComponentSpec describes one component and its subtree.
type ComponentSpec struct {
	Name     string          `yaml:"name" json:"name"`
	Type     string          `yaml:"type" json:"type"`
	Props    map[string]any  `yaml:"props,omitempty" json:"props,omitempty"`
	Children []ComponentSpec `yaml:"children,omitempty" json:"children,omitempty"`

	// Pos is the source position for CUE input.
	Pos token.Pos `yaml:"-" json:"-"`
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Path    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	where := e.Field
	if e.Path != "" {
		where = e.Path + ": " + e.Field
		if e.Field == "" {
			where = e.Path
		}
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// LoadFile reads a description, choosing the decoder by extension.
func LoadFile(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".cue":
		return DecodeCUE(data, path)
	case ".yaml", ".yml":
		return DecodeYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%s: unsupported description format %q", path, filepath.Ext(path))
	}
}

// DecodeYAML decodes a YAML description. Unknown keys are rejected.
func DecodeYAML(r io.Reader) (*Description, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var desc Description
	if err := dec.Decode(&desc); err != nil {
		if err == io.EOF {
			return &desc, nil
		}
		return nil, fmt.Errorf("decode description: %w", err)
	}
	return &desc, nil
}

// DecodeCUE compiles CUE source and extracts a description from it.
// The source must be concrete.
func DecodeCUE(src []byte, filename string) (*Description, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileDescription(v)
}

// CompileDescription parses a CUE value into a Description.
func CompileDescription(v cue.Value) (*Description, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	desc := &Description{}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		switch label := iter.Label(); label {
		case "app":
			if err := parseAppSpec(iter.Value(), &desc.App); err != nil {
				return nil, err
			}
		case "components":
			desc.Components, err = parseComponents(iter.Value())
			if err != nil {
				return nil, err
			}
		case "links":
			desc.Links, err = parseStrings(iter.Value())
			if err != nil {
				return nil, err
			}
		default:
			return nil, &CompileError{
				Field:   label,
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return desc, nil
}

func parseAppSpec(v cue.Value, spec *AppSpec) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Label()
		if label == "name" {
			if spec.Name, err = iter.Value().String(); err != nil {
				return formatCUEError(err)
			}
			continue
		}
		x, err := parseScalar(iter.Value(), "app."+label)
		if err != nil {
			return err
		}
		if spec.Props == nil {
			spec.Props = make(map[string]any)
		}
		spec.Props[label] = x
	}
	return nil
}

func parseComponents(v cue.Value) ([]ComponentSpec, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []ComponentSpec
	for list.Next() {
		spec, err := parseComponent(list.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseComponent(v cue.Value) (ComponentSpec, error) {
	spec := ComponentSpec{Pos: v.Pos()}
	iter, err := v.Fields()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for iter.Next() {
		switch label := iter.Label(); label {
		case "name":
			spec.Name, err = iter.Value().String()
		case "type":
			spec.Type, err = iter.Value().String()
		case "props":
			spec.Props, err = parseProps(iter.Value())
		case "children":
			spec.Children, err = parseComponents(iter.Value())
		default:
			return spec, &CompileError{
				Field:   label,
				Message: "unknown component field",
				Pos:     iter.Value().Pos(),
			}
		}
		if err != nil {
			if _, ok := err.(*CompileError); ok {
				return spec, err
			}
			return spec, formatCUEError(err)
		}
	}
	return spec, nil
}

func parseProps(v cue.Value) (map[string]any, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	props := make(map[string]any)
	for iter.Next() {
		x, err := parseScalar(iter.Value(), iter.Label())
		if err != nil {
			return nil, err
		}
		props[iter.Label()] = x
	}
	return props, nil
}

func parseStrings(v cue.Value) ([]string, error) {
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseScalar converts a concrete CUE scalar to the Go value a YAML
// decoder would produce for it.
func parseScalar(v cue.Value, field string) (any, error) {
	var (
		x   any
		err error
	)
	switch v.Kind() {
	case cue.BoolKind:
		x, err = v.Bool()
	case cue.IntKind:
		x, err = v.Int64()
	case cue.FloatKind:
		x, err = v.Float64()
	case cue.StringKind:
		x, err = v.String()
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
	if err != nil {
		return nil, formatCUEError(err)
	}
	return x, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
