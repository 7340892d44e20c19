package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/compiler"
	"github.com/roach88/svm/internal/engine"
	"github.com/roach88/svm/internal/kits"
	"github.com/roach88/svm/internal/slot"
	"github.com/roach88/svm/internal/status"
	"github.com/roach88/svm/internal/store"
	"github.com/roach88/svm/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs an app on a manual clock with a platform that yields after every
// cycle, so each loop invocation is exactly one scan cycle.
type Harness struct {
	scenario *Scenario
	app      *app.App
	sched    *engine.Scheduler
	store    *store.Store
	clock    *testutil.ManualClock
	result   *Result
	logger   *slog.Logger

	// last cycle whose steps were applied
	applied uint64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory image store, so save and
// quit requests are observable through the images assertion.
//
// Execution flow:
// 1. Build the app from the scenario's description
// 2. Start the scheduler and run one cycle per loop invocation
// 3. Apply each step in the work phase of its cycle
// 4. Record watched values after every cycle
// 5. Shut down and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	a, err := buildApp(scenario, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build app: %w", err)
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequenceIDs("")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		app:      a,
		store:    st,
		clock:    testutil.NewManualClock(),
		result:   NewResult(),
		logger:   logger,
	}
	h.sched = engine.New(a,
		engine.WithClock(h.clock),
		engine.WithPlatform(&platform{h: h}),
		engine.WithSaver(st),
		engine.WithLogger(logger),
	)

	ctx := context.Background()
	if err := h.sched.Start(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to start app: %w", err)
	}

	res := h.sched.Run(ctx)
	for {
		h.snapshot()
		if res.Kind == status.Hibernated {
			h.result.tracef("hibernated %d", h.sched.Stats().Cycles)
		}
		if !res.Resumable() || h.sched.Stats().Cycles >= uint64(scenario.Cycles) {
			break
		}
		res = h.sched.Resume(ctx)
	}

	final := res
	if final.Resumable() {
		final = status.Result{Kind: status.Stopped}
	}
	h.sched.Shutdown(final)
	h.result.tracef("result %s", res)

	h.result.Last = res
	h.result.Cycles = h.sched.Stats().Cycles
	images, err := st.ListImages(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	h.result.Images = len(images)

	actx := &AssertionContext{App: a}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func buildApp(s *Scenario, logger *slog.Logger) (*app.App, error) {
	catalog, err := kits.Catalog()
	if err != nil {
		return nil, err
	}
	opts := []app.Option{app.WithSeed(1), app.WithLogger(logger)}
	if s.Inline != nil {
		return compiler.Build(s.Inline, catalog, opts...)
	}
	return compiler.CompileFile(s.App, catalog, opts...)
}

// snapshot records the watched values after a cycle.
func (h *Harness) snapshot() {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %d", h.sched.Stats().Cycles)
	for _, w := range h.scenario.Watch {
		ep, _ := compiler.ParseEndpoint(w)
		c, d, err := compiler.Resolve(h.app, ep)
		if err != nil {
			fmt.Fprintf(&b, " %s=<none>", ep)
			continue
		}
		fmt.Fprintf(&b, " %s=%s", ep, c.Get(d.ID))
	}
	h.result.Trace = append(h.result.Trace, b.String())
}

// applySteps runs the steps scheduled for the current cycle once.
func (h *Harness) applySteps() {
	cycle := h.sched.Stats().Cycles
	if cycle == h.applied {
		return
	}
	h.applied = cycle

	for i, step := range h.scenario.Steps {
		if uint64(step.At) != cycle {
			continue
		}
		desc, err := h.apply(step)
		if err != nil {
			h.result.tracef("at %d: %s failed", step.At, desc)
			h.result.AddError(fmt.Sprintf("steps[%d]: %s: %v", i, desc, err))
			continue
		}
		h.result.tracef("at %d: %s", step.At, desc)
		h.logger.Info("step applied", "step", i, "cycle", cycle, "op", step.Op())
	}
}

// apply performs one step and returns its trace description.
func (h *Harness) apply(step Step) (string, error) {
	switch step.Op() {
	case "set":
		desc := "set " + step.Set
		c, d, err := h.resolve(step.Set)
		if err != nil {
			return desc, err
		}
		if d.IsAction() {
			return desc, fmt.Errorf("%s is an action", step.Set)
		}
		v, err := compiler.ToValue(step.Value, d)
		if err != nil {
			return desc, err
		}
		if err := c.Set(d.ID, v); err != nil {
			return desc, err
		}
		return fmt.Sprintf("%s=%s", desc, c.Get(d.ID)), nil

	case "invoke":
		desc := "invoke " + step.Invoke
		c, d, err := h.resolve(step.Invoke)
		if err != nil {
			return desc, err
		}
		var arg slot.Value
		if step.Value != nil {
			if arg, err = compiler.ToValue(step.Value, d); err != nil {
				return desc, err
			}
		}
		return desc, c.Invoke(d.ID, arg)

	case "add":
		desc := fmt.Sprintf("add %s %s", strings.Trim(step.Parent+"/"+step.Add.Name, "/"), step.Add.Type)
		parent := lookupPath(h.app, step.Parent)
		if parent == nil {
			return desc, fmt.Errorf("no component %q", step.Parent)
		}
		return desc, compiler.AddComponent(h.app, parent, *step.Add)

	case "remove":
		desc := "remove " + step.Remove
		c := lookupPath(h.app, step.Remove)
		if c == nil {
			return desc, fmt.Errorf("no component %q", step.Remove)
		}
		return desc, h.app.Remove(c)

	case "link":
		desc := "link " + step.Link
		from, to, err := compiler.ParseLink(step.Link)
		if err != nil {
			return desc, err
		}
		fc, fd, err := compiler.Resolve(h.app, from)
		if err != nil {
			return desc, err
		}
		tc, td, err := compiler.Resolve(h.app, to)
		if err != nil {
			return desc, err
		}
		_, err = h.app.AddLink(fc, fd.ID, tc, td.ID)
		return desc, err

	case "unlink":
		desc := "unlink " + step.Unlink
		from, to, err := compiler.ParseLink(step.Unlink)
		if err != nil {
			return desc, err
		}
		fc, fd, err := compiler.Resolve(h.app, from)
		if err != nil {
			return desc, err
		}
		tc, td, err := compiler.Resolve(h.app, to)
		if err != nil {
			return desc, err
		}
		l, ok := h.app.LookupLink(fc.ID(), fd.ID, tc.ID(), td.ID)
		if !ok {
			return desc, fmt.Errorf("no link %s -> %s", from, to)
		}
		return desc, h.app.RemoveLink(l)
	}
	return "", fmt.Errorf("step has no operation")
}

func (h *Harness) resolve(s string) (*app.Component, slot.Def, error) {
	ep, err := compiler.ParseEndpoint(s)
	if err != nil {
		return nil, slot.Def{}, err
	}
	return compiler.Resolve(h.app, ep)
}

// lookupPath finds a component by its slash separated path from the root.
func lookupPath(a *app.App, path string) *app.Component {
	c := a.Root()
	path = strings.Trim(path, "/")
	if path == "" {
		return c
	}
	for _, name := range strings.Split(path, "/") {
		if c = a.LookupByName(c, name); c == nil {
			return nil
		}
	}
	return c
}

// platform yields after every cycle and applies scenario steps in the
// cycle's free time. It never allows idle hibernation, so the loop only
// hibernates when a step asks for it.
type platform struct {
	h *Harness
}

func (p *platform) Init(args []string) error { return nil }

func (p *platform) Notify(key, val string) { p.h.result.tracef("notify %s=%s", key, val) }

func (p *platform) YieldRequired() bool { return true }

func (p *platform) Yield(remaining time.Duration) { p.h.clock.Advance(remaining) }

func (p *platform) WorkDuringFreeTime(remaining time.Duration) bool {
	p.h.applySteps()
	return false
}

func (p *platform) HibernateAllowed() bool { return false }

func (p *platform) Restart() { p.h.result.tracef("platform restart") }

func (p *platform) Reboot() { p.h.result.tracef("platform reboot") }
