package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/svm/internal/app"
)

// Validation error codes (E100-E199)
const (
	// Component errors (E100-E109)
	ErrComponentNameInvalid = "E100" // empty, too long, or reserved character
	ErrComponentNoType      = "E101" // type is required
	ErrDuplicateName        = "E102" // duplicate sibling name

	// Link errors (E110-E119)
	ErrInvalidLinkSyntax = "E110" // not "from.slot -> to.slot"
	ErrDuplicateLink     = "E111" // same link listed twice
	ErrInputLinkedTwice  = "E112" // input driven by two links
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"` // source line, when known
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Endpoint is one end of a link: a slash separated component path relative
// to the root and a slot name. An empty path is the root itself.
type Endpoint struct {
	Path string
	Slot string
}

func (e Endpoint) String() string { return e.Path + "." + e.Slot }

// ParseLink parses "a/b.out -> c.in".
func ParseLink(s string) (from, to Endpoint, err error) {
	l, r, ok := strings.Cut(s, "->")
	if !ok {
		return from, to, fmt.Errorf("link %q: missing \"->\"", s)
	}
	if from, err = ParseEndpoint(l); err != nil {
		return from, to, fmt.Errorf("link %q: %w", s, err)
	}
	if to, err = ParseEndpoint(r); err != nil {
		return from, to, fmt.Errorf("link %q: %w", s, err)
	}
	return from, to, nil
}

// ParseEndpoint parses "a/b.slot".
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '.')
	if i < 0 || i == len(s)-1 {
		return Endpoint{}, fmt.Errorf("endpoint %q has no slot", s)
	}
	return Endpoint{Path: strings.Trim(s[:i], "/"), Slot: s[i+1:]}, nil
}

// Validate checks a description for errors that need no kit catalog.
// Returns all errors found (does not fail-fast).
func Validate(desc *Description) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateComponents(desc.Components, "components")...)

	seen := make(map[string]bool)
	inputs := make(map[string]int)
	for i, s := range desc.Links {
		field := fmt.Sprintf("links[%d]", i)
		from, to, err := ParseLink(s)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
				Code:    ErrInvalidLinkSyntax,
			})
			continue
		}
		key := from.String() + "->" + to.String()
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate link %s -> %s", from, to),
				Code:    ErrDuplicateLink,
			})
			continue
		}
		seen[key] = true
		if j, ok := inputs[to.String()]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("input %s already linked by links[%d]", to, j),
				Code:    ErrInputLinkedTwice,
			})
			continue
		}
		inputs[to.String()] = i
	}
	return errs
}

func validateComponents(specs []ComponentSpec, prefix string) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	for i, spec := range specs {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		name, err := app.ValidateName(spec.Name)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: err.Error(),
				Code:    ErrComponentNameInvalid,
			})
		} else if names[name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate name: %q", name),
				Code:    ErrDuplicateName,
			})
		}
		names[name] = true

		if strings.TrimSpace(spec.Type) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: "type is required",
				Code:    ErrComponentNoType,
			})
		}
		errs = append(errs, validateComponents(spec.Children, field+".children")...)
	}
	return errs
}
