package sys

import (
	"errors"
	"fmt"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/slot"
)

// ErrNoController is returned by the root actions when no scheduler is
// attached to the app.
var ErrNoController = errors.New("app has no controller")

// App is the behavior of the root component. Its actions are forwarded to
// the app's controller.
type App struct{}

// Invoke runs save, quit, restart, reboot or hibernate on the controller.
func (*App) Invoke(c *app.Component, s slot.Def, arg slot.Value) error {
	ctl := c.App().Controller()
	if ctl == nil {
		return fmt.Errorf("%s: %w", s.Name, ErrNoController)
	}
	switch s.Name {
	case "save":
		return ctl.Save()
	case "quit":
		ctl.Quit()
	case "restart":
		ctl.Restart()
	case "reboot":
		ctl.Reboot()
	case "hibernate":
		ctl.Hibernate()
	default:
		return fmt.Errorf("%s has no action %q", c, s.Name)
	}
	return nil
}

// RateFolder runs its children only every appCyclesToSkip+1 cycles.
type RateFolder struct {
	skip      uint8
	execCount int32
}

// Loaded arms the skip counter from appCyclesToSkip.
func (f *RateFolder) Loaded(c *app.Component) {
	f.execCount = c.GetInt(f.skip)
}

// AllowChildExecute is true once every appCyclesToSkip+1 calls.
func (f *RateFolder) AllowChildExecute(c *app.Component) bool {
	if f.execCount <= 0 {
		f.execCount = c.GetInt(f.skip)
		return true
	}
	f.execCount--
	return false
}
