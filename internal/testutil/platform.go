package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Platform is a scriptable scheduler platform that records every call.
//
// The zero value never yields, never hibernates and does no free-time work.
type Platform struct {
	mu sync.Mutex

	InitErr      error
	MustYield    bool
	Hibernatable bool

	// FreeTimeWork is how many WorkDuringFreeTime calls report work.
	FreeTimeWork int

	// OnYield, if set, runs on every Yield call.
	OnYield func(remaining time.Duration)

	calls []string
}

func (p *Platform) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded calls in order.
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Platform) Init(args []string) error {
	p.record("init %v", args)
	return p.InitErr
}

func (p *Platform) Notify(key, val string) { p.record("notify %s=%s", key, val) }

func (p *Platform) YieldRequired() bool { return p.MustYield }

func (p *Platform) Yield(remaining time.Duration) {
	p.record("yield %s", remaining)
	if p.OnYield != nil {
		p.OnYield(remaining)
	}
}

func (p *Platform) WorkDuringFreeTime(remaining time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FreeTimeWork > 0 {
		p.FreeTimeWork--
		return true
	}
	return false
}

func (p *Platform) HibernateAllowed() bool { return p.Hibernatable }

func (p *Platform) Restart() { p.record("restart") }

func (p *Platform) Reboot() { p.record("reboot") }
