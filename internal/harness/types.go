package harness

import (
	"fmt"

	"github.com/roach88/svm/internal/status"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall test success.
	// True if every step applied and every assertion held.
	Pass bool `json:"pass"`

	// Trace holds one line per observable event: platform notifications,
	// applied steps, per-cycle watch values and loop results.
	Trace []string `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Last is the result of the final loop invocation.
	Last status.Result `json:"-"`

	// Cycles is the number of scan cycles run.
	Cycles uint64 `json:"cycles"`

	// Images is the number of images saved while running.
	Images int `json:"images"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) tracef(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}
