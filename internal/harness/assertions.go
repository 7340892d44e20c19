package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/slot"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// AssertionContext provides the final app for value and exists assertions.
type AssertionContext struct {
	App *app.App
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertValue, AssertExists:
			if actx == nil || actx.App == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an app", i, assertion.Type)
			} else if assertion.Type == AssertValue {
				err = assertValue(actx.App, result.Trace, assertion)
			} else {
				err = assertExists(actx.App, result.Trace, assertion)
			}
		case AssertResult:
			err = assertResult(result, assertion)
		case AssertCycles:
			err = assertCount(AssertCycles, int64(result.Cycles), result.Trace, assertion)
		case AssertImages:
			err = assertCount(AssertImages, int64(result.Images), result.Trace, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertValue compares a slot value after coercing the expected value to
// the slot's kind.
func assertValue(a *app.App, trace []string, assertion Assertion) error {
	ep, err := compiler.ParseEndpoint(assertion.Slot)
	if err != nil {
		return err
	}
	c, d, err := compiler.Resolve(a, ep)
	if err != nil {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %v", assertion.Slot, assertion.Equals),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if d.IsAction() {
		return fmt.Errorf("value assertion on action %s", assertion.Slot)
	}

	want, err := compiler.ToValue(assertion.Equals, d)
	if err == nil {
		want, err = slot.Coerce(want, d.Kind)
	}
	if err != nil {
		return fmt.Errorf("value assertion on %s: %w", assertion.Slot, err)
	}

	got := c.Get(d.ID)
	if !slot.Equal(got, want) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %s", assertion.Slot, want),
			Actual:   fmt.Sprintf("%s = %s", assertion.Slot, got),
			Trace:    trace,
		}
	}
	return nil
}

// assertExists checks that a component path exists, or with equals false
// that it does not.
func assertExists(a *app.App, trace []string, assertion Assertion) error {
	want := true
	if assertion.Equals != nil {
		b, ok := assertion.Equals.(bool)
		if !ok {
			return fmt.Errorf("exists assertion on %s: equals must be a bool", assertion.Path)
		}
		want = b
	}
	got := lookupPath(a, assertion.Path) != nil
	if got != want {
		return &AssertionError{
			Type:     AssertExists,
			Expected: fmt.Sprintf("%s exists: %t", assertion.Path, want),
			Actual:   fmt.Sprintf("%s exists: %t", assertion.Path, got),
			Trace:    trace,
		}
	}
	return nil
}

func assertResult(result *Result, assertion Assertion) error {
	want := fmt.Sprint(assertion.Equals)
	if got := result.Last.Kind.String(); got != want {
		return &AssertionError{
			Type:     AssertResult,
			Expected: want,
			Actual:   result.Last.String(),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCount(kind string, got int64, trace []string, assertion Assertion) error {
	want, err := toInt(assertion.Equals)
	if err != nil {
		return fmt.Errorf("%s assertion: %w", kind, err)
	}
	if got != want {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s = %d", kind, want),
			Actual:   fmt.Sprintf("%s = %d", kind, got),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceContains checks for a trace line equal to the expected line.
func assertTraceContains(trace []string, assertion Assertion) error {
	for _, line := range trace {
		if line == assertion.Line {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("trace line %q", assertion.Line),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func toInt(x any) (int64, error) {
	switch v := x.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("expected an integer, got %v (%T)", x, x)
}
