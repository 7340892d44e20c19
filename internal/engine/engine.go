package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/status"
)

// PlatformServiceType is the service type looked up when no platform is
// configured explicitly.
const PlatformServiceType = "sys::PlatformService"

// Saver persists the app when a component asks for it (save or quit).
type Saver interface {
	SaveApp(ctx context.Context, a *app.App) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, a *app.App) error

func (f SaverFunc) SaveApp(ctx context.Context, a *app.App) error { return f(ctx, a) }

// Stats are the scheduler's timing counters. Times are clock readings.
type Stats struct {
	Cycles        uint64
	Overruns      uint64
	LastStartExec time.Duration
	NewStartExec  time.Duration
	LastStartWork time.Duration
	LastEndWork   time.Duration
}

// Scheduler is the scan loop for one app.
//
// Thread-safety model:
//   - Start, Run, Resume and Shutdown must be called from one goroutine
//   - Stop, Hibernate, Quit and Restart are meant to be called from
//     component or service code running inside the loop
type Scheduler struct {
	app      *app.App
	cfg      Config
	clock    Clock
	platform Platform
	saver    Saver
	logger   *slog.Logger

	started   bool
	running   bool
	hibernate bool
	runStatus status.Code

	steadyAt time.Duration
	atSteady bool

	stats Stats
	ctx   context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig replaces the timing configuration.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithClock sets the clock. The default is a SystemClock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPlatform sets the platform instead of looking up a platform service
// in the app.
func WithPlatform(p Platform) Option {
	return func(s *Scheduler) { s.platform = p }
}

// WithSaver sets where the app is saved on save and quit requests.
func WithSaver(sv Saver) Option {
	return func(s *Scheduler) { s.saver = sv }
}

// WithLogger sets the logger. The default is the app's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler for a. The timing configuration defaults to the
// app's root properties (see ConfigFromApp).
func New(a *app.App, opts ...Option) *Scheduler {
	s := &Scheduler{
		app: a,
		cfg: ConfigFromApp(a),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewSystemClock()
	}
	if s.logger == nil {
		s.logger = a.Logger()
	}
	s.logger = s.logger.With("app", a.Root().Name())
	a.SetController(s)
	return s
}

// App returns the scheduled app.
func (s *Scheduler) App() *app.App { return s.app }

// Config returns the timing configuration in effect.
func (s *Scheduler) Config() Config { return s.cfg }

// Platform returns the resolved platform, or nil before Start.
func (s *Scheduler) Platform() Platform { return s.platform }

// Stats returns a snapshot of the timing counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// IsRunning reports whether the loop is (or was last) running.
func (s *Scheduler) IsRunning() bool { return s.running }

// Start resolves and initializes the platform, then delivers Loaded and
// Start to every component in tree order. Errors are fatal status errors.
func (s *Scheduler) Start(ctx context.Context, args []string) error {
	if err := s.cfg.Validate(); err != nil {
		return status.Wrap(status.InvalidArgs, "start", err)
	}
	if s.platform == nil {
		p, err := s.lookupPlatform()
		if err != nil {
			return err
		}
		s.platform = p
	}
	if err := s.platform.Init(args); err != nil {
		var se *status.Error
		if errors.As(err, &se) {
			return err
		}
		return status.Wrap(status.CannotInitApp, "platform init", err)
	}
	s.logger.Info("starting", "components", s.app.Len(), "scanPeriod", s.cfg.ScanPeriod)
	s.platform.Notify("app", "starting")

	s.ctx = ctx
	comps := s.treeOrder()
	for _, c := range comps {
		c.Loaded()
	}
	for _, c := range comps {
		c.Start()
	}
	s.app.SetRunning(true)
	s.started = true
	return nil
}

func (s *Scheduler) lookupPlatform() (Platform, error) {
	c := s.app.LookupService(PlatformServiceType)
	if c == nil {
		return nil, status.New(status.NoPlatformService, "start", "no "+PlatformServiceType+" in app")
	}
	p, ok := c.Behavior().(Platform)
	if !ok {
		return nil, status.Errorf(status.BadPlatformService, "start", "%s does not implement a platform", c)
	}
	return p, nil
}

func (s *Scheduler) treeOrder() []*app.Component {
	var out []*app.Component
	_ = s.app.Walk(func(c *app.Component) error {
		out = append(out, c)
		return nil
	})
	return out
}

// Run starts the steady state timer and enters the scan loop.
func (s *Scheduler) Run(ctx context.Context) status.Result {
	if !s.started {
		return status.Fail(status.New(status.CannotInitApp, "run", "scheduler not started"))
	}
	s.logger.Info("running")
	s.platform.Notify("app", "running")
	s.steadyAt = s.clock.Now() + s.cfg.TimeToSteadyState
	return s.Resume(ctx)
}

// Resume runs scan cycles until the loop stops, hibernates, yields or is
// cancelled through ctx. After a hibernate it first restores the services.
func (s *Scheduler) Resume(ctx context.Context) status.Result {
	if !s.started {
		return status.Fail(status.New(status.CannotInitApp, "resume", "scheduler not started"))
	}
	s.ctx = ctx
	if s.runStatus == status.Hibernate {
		if s.cfg.HibernationResetsSteadyState {
			s.atSteady = false
			s.steadyAt = s.clock.Now() + s.cfg.TimeToSteadyState
		}
		for _, c := range s.app.Services() {
			if svc, ok := app.ServiceOf(c); ok {
				svc.OnUnhibernate(c)
			}
		}
		s.logger.Info("unhibernating")
	}

	s.running = true
	s.hibernate = false
	s.runStatus = status.OK
	deadline := s.clock.Now()
	s.stats.LastEndWork = deadline

	for s.running {
		if ctx.Err() != nil {
			s.running = false
			break
		}
		s.stats.Cycles++
		s.stats.LastStartExec = s.stats.NewStartExec
		s.stats.NewStartExec = s.clock.Now()
		deadline += s.cfg.ScanPeriod

		s.executeCycle()

		s.stats.LastStartWork = s.clock.Now()
		remaining := s.work(deadline)
		s.stats.LastEndWork = s.clock.Now()
		if s.stats.LastEndWork > deadline {
			s.stats.Overruns++
		}
		if !s.running {
			break
		}

		if s.hibernate {
			for _, c := range s.app.Services() {
				if svc, ok := app.ServiceOf(c); ok {
					svc.OnHibernate(c)
				}
			}
			s.runStatus = status.Hibernate
			s.logger.Info("hibernating", "cycle", s.stats.Cycles)
			return status.Result{Kind: status.Hibernated}
		}
		if s.platform.YieldRequired() {
			remaining = deadline - s.clock.Now()
			s.platform.Yield(remaining)
			s.runStatus = status.Yield
			s.logger.Debug("yielding", "cycle", s.stats.Cycles, "remaining", remaining)
			return status.Result{Kind: status.Yielded, Remaining: int64(remaining)}
		}
		if remaining > 0 {
			if err := s.clock.Sleep(ctx, remaining); err != nil {
				s.running = false
			}
		}
	}
	return s.result()
}

func (s *Scheduler) result() status.Result {
	if s.runStatus == status.Restart {
		return status.Result{Kind: status.Restarting}
	}
	return status.Result{Kind: status.Stopped}
}

// executeCycle walks the tree once. Structural changes requested during
// the walk are applied after it.
func (s *Scheduler) executeCycle() {
	s.app.BeginWalk()
	s.executeTree(s.app.Root())
	if err := s.app.EndWalk(); err != nil {
		s.logger.Warn("deferred tree change failed", "cycle", s.stats.Cycles, "error", err)
	}
}

func (s *Scheduler) executeTree(c *app.Component) {
	if c.FirstChildID() != app.NullID && c.AllowChildExecute() {
		for kid := s.app.Lookup(c.FirstChildID()); kid != nil; kid = s.app.Lookup(kid.NextSiblingID()) {
			s.executeTree(kid)
		}
	}
	s.app.Propagate(c)
	c.Execute()
}

// work polls every service until none reports more work or the guard time
// is reached, and returns the time left until deadline.
func (s *Scheduler) work(deadline time.Duration) time.Duration {
	var remaining time.Duration
	more := true
	// a refusal in any pass of this cycle holds for the rest of it
	canHibernate := s.platform.HibernateAllowed()
	for more && s.running {
		more = false
		for _, c := range s.app.Services() {
			svc, ok := app.ServiceOf(c)
			if !ok {
				continue
			}
			if svc.Work(c) {
				more = true
			}
			if !svc.CanHibernate(c) {
				canHibernate = false
			}
		}
		if canHibernate {
			s.hibernate = true
		}
		remaining = deadline - s.clock.Now()
		if remaining < s.cfg.GuardTime {
			break
		}
		if s.platform.WorkDuringFreeTime(remaining) {
			more = true
		}
	}
	return remaining
}

// IsSteadyState reports whether the app has been running for at least
// TimeToSteadyState. Once true it stays true until a hibernate exit resets
// it (if so configured).
func (s *Scheduler) IsSteadyState() bool {
	if !s.atSteady {
		s.atSteady = s.running && s.clock.Now() > s.steadyAt
	}
	return s.atSteady
}

// Stop ends the loop after the current step. It is not preemptive.
func (s *Scheduler) Stop() {
	s.running = false
}

// Hibernate forces the loop to hibernate at the end of the current cycle.
func (s *Scheduler) Hibernate() {
	s.hibernate = true
}

// Save persists the app with the configured saver.
func (s *Scheduler) Save() error {
	if s.saver == nil {
		return errors.New("no saver configured")
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.saver.SaveApp(ctx, s.app); err != nil {
		s.logger.Error("save failed", "error", err)
		return fmt.Errorf("save app: %w", err)
	}
	s.logger.Info("saved")
	return nil
}

// Quit saves the app, if a saver is configured, and stops the loop.
func (s *Scheduler) Quit() {
	if s.saver != nil {
		_ = s.Save()
	}
	s.running = false
}

// Restart asks the platform to restart and stops the loop with a
// Restarting result.
func (s *Scheduler) Restart() {
	if s.platform != nil {
		s.platform.Restart()
	}
	s.running = false
	s.runStatus = status.Restart
}

// Reboot asks the platform to reboot the host.
func (s *Scheduler) Reboot() {
	if s.platform != nil {
		s.platform.Reboot()
	}
}

// Shutdown finishes a loop invocation. Unless the loop yielded or
// hibernated, it stops every component (children before parents), tells
// the platform, and switches the app out of running mode. The result is
// returned unchanged.
func (s *Scheduler) Shutdown(res status.Result) status.Result {
	if res.Resumable() || !s.started {
		return res
	}
	s.logger.Info("stopping", "result", res.String(), "cycles", s.stats.Cycles)
	s.platform.Notify("app", "stopping")
	comps := s.treeOrder()
	for i := len(comps) - 1; i >= 0; i-- {
		comps[i].Stop()
	}
	s.app.SetRunning(false)
	s.running = false
	s.started = false
	return res
}

// Exec runs the full lifecycle, Start, Run and Shutdown, and returns the
// final result.
func (s *Scheduler) Exec(ctx context.Context, args []string) status.Result {
	if err := s.Start(ctx, args); err != nil {
		s.logger.Error("start failed", "error", err)
		return status.Fail(err)
	}
	return s.Shutdown(s.Run(ctx))
}
