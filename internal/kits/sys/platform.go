package sys

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/slot"
)

// MemRefreshCycles is the number of scan cycles between memAvailable
// refreshes. Reading the heap statistics stops the world.
const MemRefreshCycles = 100

// Host is what a PlatformService delegates to. It has the same method set
// as the scheduler's platform, so any scheduler platform can be plugged in.
type Host interface {
	Init(args []string) error
	Notify(key, val string)
	YieldRequired() bool
	Yield(remaining time.Duration)
	WorkDuringFreeTime(remaining time.Duration) bool
	HibernateAllowed() bool
	Restart()
	Reboot()
}

// PlatformService is the service through which the scheduler reaches the
// host. Without a Host it behaves like a plain host process: no yields, no
// hibernation, and restart and reboot are only logged.
//
// It reports the Go runtime's identity in platformId and platformVer and
// the heap headroom in memAvailable, refreshed on start and then every
// MemRefreshCycles cycles.
type PlatformService struct {
	Host Host

	comp *app.Component

	platformID   uint8
	platformVer  uint8
	memAvailable uint8

	cycles int
}

func (p *PlatformService) logger() *slog.Logger {
	if p.comp != nil {
		return p.comp.App().Logger()
	}
	return slog.Default()
}

// Start records the platform identity and the current heap headroom.
func (p *PlatformService) Start(c *app.Component) {
	p.comp = c
	p.cycles = 0
	c.SetBuf(p.platformID, []byte(runtime.GOOS+"-"+runtime.GOARCH))
	c.SetBuf(p.platformVer, []byte(runtime.Version()))
	p.refresh(c)
}

// Execute refreshes memAvailable every MemRefreshCycles cycles.
func (p *PlatformService) Execute(c *app.Component) {
	p.cycles++
	if p.cycles >= MemRefreshCycles {
		p.cycles = 0
		p.refresh(c)
	}
}

func (p *PlatformService) refresh(c *app.Component) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.SetLong(p.memAvailable, int64(ms.HeapSys-ms.HeapInuse))
}

// Invoke handles the restart and reboot actions.
func (p *PlatformService) Invoke(c *app.Component, s slot.Def, arg slot.Value) error {
	switch s.Name {
	case "restart":
		p.Restart()
	case "reboot":
		p.Reboot()
	default:
		return fmt.Errorf("%s has no action %q", c, s.Name)
	}
	return nil
}

// Work reports no background work; the host does its own in free time.
func (p *PlatformService) Work(c *app.Component) bool { return false }

// CanHibernate lets the app hibernate only when the host does.
func (p *PlatformService) CanHibernate(c *app.Component) bool { return p.HibernateAllowed() }

func (p *PlatformService) OnHibernate(c *app.Component)   {}
func (p *PlatformService) OnUnhibernate(c *app.Component) {}

// Init initializes the host, if any.
func (p *PlatformService) Init(args []string) error {
	if p.Host != nil {
		return p.Host.Init(args)
	}
	return nil
}

// Notify forwards a lifecycle change to the host or logs it.
func (p *PlatformService) Notify(key, val string) {
	if p.Host != nil {
		p.Host.Notify(key, val)
		return
	}
	p.logger().Debug("platform notify", "key", key, "val", val)
}

// YieldRequired reports whether the host needs the loop back every cycle.
func (p *PlatformService) YieldRequired() bool {
	return p.Host != nil && p.Host.YieldRequired()
}

// Yield hands the remaining cycle time to the host.
func (p *PlatformService) Yield(remaining time.Duration) {
	if p.Host != nil {
		p.Host.Yield(remaining)
	}
}

// WorkDuringFreeTime lets the host use the slack before the deadline.
func (p *PlatformService) WorkDuringFreeTime(remaining time.Duration) bool {
	return p.Host != nil && p.Host.WorkDuringFreeTime(remaining)
}

// HibernateAllowed is false without a host.
func (p *PlatformService) HibernateAllowed() bool {
	return p.Host != nil && p.Host.HibernateAllowed()
}

// Restart asks the host to restart the process.
func (p *PlatformService) Restart() {
	if p.Host != nil {
		p.Host.Restart()
		return
	}
	p.logger().Info("platform restart requested")
}

// Reboot asks the host to reboot the device.
func (p *PlatformService) Reboot() {
	if p.Host != nil {
		p.Host.Reboot()
		return
	}
	p.logger().Info("platform reboot requested")
}
