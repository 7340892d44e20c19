package status

import "fmt"

// ResultKind distinguishes how a scan loop invocation ended.
type ResultKind int

const (
	// Stopped means the loop was stopped or quit cleanly.
	Stopped ResultKind = iota
	// Hibernated means every service allowed hibernation; the host resumes later.
	Hibernated
	// Yielded means the platform requires the loop to return every cycle.
	Yielded
	// Restarting means a restart was requested; the host must re-initialize.
	Restarting
	// Failed means a terminal or transient error ended the loop.
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case Stopped:
		return "stopped"
	case Hibernated:
		return "hibernated"
	case Yielded:
		return "yielded"
	case Restarting:
		return "restarting"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// Result is returned by the scheduler instead of overloading error codes
// with control flow. Err is set only when Kind is Failed.
type Result struct {
	Kind ResultKind

	// Remaining is the time left until the next deadline when the loop
	// yielded, so the host can schedule the next resume.
	Remaining int64

	Err error
}

// Resumable reports whether the host should call resume to continue.
func (r Result) Resumable() bool {
	return r.Kind == Hibernated || r.Kind == Yielded
}

// Code maps the result onto the numeric status convention.
func (r Result) Code() Code {
	switch r.Kind {
	case Stopped:
		return OK
	case Hibernated:
		return Hibernate
	case Yielded:
		return Yield
	case Restarting:
		return Restart
	default:
		return CodeOf(r.Err)
	}
}

// ExitCode is the process exit status for the result.
func (r Result) ExitCode() int {
	return int(r.Code())
}

// Fail wraps err into a Failed result.
func Fail(err error) Result {
	return Result{Kind: Failed, Err: err}
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Kind, r.Err)
	}
	return r.Kind.String()
}
