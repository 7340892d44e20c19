package engine

import (
	"log/slog"
	"time"
)

// Platform is the host environment the scheduler runs on.
type Platform interface {
	// Init prepares the platform; an error aborts startup.
	Init(args []string) error

	// Notify reports lifecycle changes such as "app" = "running".
	Notify(key, val string)

	// YieldRequired reports whether the loop must return to the host at
	// the end of every cycle instead of sleeping.
	YieldRequired() bool

	// Yield tells the platform the loop is returning with remaining time
	// left until the next deadline.
	Yield(remaining time.Duration)

	// WorkDuringFreeTime lets the platform use slack in the cycle. It
	// reports whether it did any work.
	WorkDuringFreeTime(remaining time.Duration) bool

	// HibernateAllowed reports whether the platform allows the loop to
	// hibernate when every service is idle.
	HibernateAllowed() bool

	Restart()
	Reboot()
}

// HostPlatform is the platform for an ordinary host process: it never
// yields or hibernates and logs lifecycle notifications.
type HostPlatform struct {
	Logger *slog.Logger
}

func (p *HostPlatform) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *HostPlatform) Init(args []string) error { return nil }

func (p *HostPlatform) Notify(key, val string) {
	p.logger().Debug("platform notify", "key", key, "val", val)
}

func (p *HostPlatform) YieldRequired() bool                             { return false }
func (p *HostPlatform) Yield(time.Duration)                             {}
func (p *HostPlatform) WorkDuringFreeTime(remaining time.Duration) bool { return false }
func (p *HostPlatform) HibernateAllowed() bool                          { return false }

func (p *HostPlatform) Restart() {
	p.logger().Info("platform restart requested")
}

func (p *HostPlatform) Reboot() {
	p.logger().Info("platform reboot requested")
}
