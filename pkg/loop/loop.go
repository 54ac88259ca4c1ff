package loop

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/actuator"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/publish"
	"github.com/sunrudder/sunrudder/pkg/state"
	"github.com/sunrudder/sunrudder/pkg/types"
)

type decider interface {
	Decide(ctx context.Context, state types.SystemState, settings types.Settings) types.Decision
}

type settingsSource interface {
	Snapshot() types.Settings
}

type executor interface {
	ExecuteDecision(ctx context.Context, decision types.Decision) actuator.Result
}

// TickObserver is told about every completed tick.
type TickObserver interface {
	ObserveTick(surplus float64, d time.Duration)
}

// Tick is the outcome of one control cycle.
type Tick struct {
	ID       string            `json:"id"`
	Time     time.Time         `json:"time"`
	State    types.SystemState `json:"state"`
	Decision types.Decision    `json:"decision"`
	Result   actuator.Result   `json:"result"`
	DryRun   bool              `json:"dryRun"`
}

// Loop reads the state, decides and actuates on a fixed delay. Timer ticks
// and manual triggers never overlap.
type Loop struct {
	provider  state.Provider
	decider   decider
	settings  settingsSource
	executor  executor
	publisher publish.Publisher
	observer  TickObserver

	interval     time.Duration
	initialDelay time.Duration
	dryRun       bool

	mu    sync.Mutex
	ticks atomic.Uint64
	now   func() time.Time
}

// Options configures a Loop.
type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	DryRun       bool
}

// New creates a Loop. publisher and observer may be nil.
func New(
	provider state.Provider,
	d decider,
	settings settingsSource,
	e executor,
	publisher publish.Publisher,
	observer TickObserver,
	opts Options,
) *Loop {
	if publisher == nil {
		publisher = publish.Noop{}
	}
	return &Loop{
		provider:     provider,
		decider:      d,
		settings:     settings,
		executor:     e,
		publisher:    publisher,
		observer:     observer,
		interval:     opts.Interval,
		initialDelay: opts.InitialDelay,
		dryRun:       opts.DryRun,
		now:          time.Now,
	}
}

// Configured creates a Loop with its timing taken from flags.
func Configured(
	provider state.Provider,
	d decider,
	settings settingsSource,
	e executor,
	publisher publish.Publisher,
	observer TickObserver,
) *Loop {
	l := New(provider, d, settings, e, publisher, observer, Options{})

	interval := lflag.Duration("control-interval", 30*time.Second, "Delay between the end of one control cycle and the start of the next")
	initialDelay := lflag.Duration("control-initial-delay", 5*time.Second, "Delay before the first control cycle")
	dryRun := lflag.Bool("dry-run", false, "Compute and publish decisions without actuating devices")

	lflag.Do(func() {
		if *interval <= 0 {
			panic("control-interval must be positive")
		}
		l.interval = *interval
		l.initialDelay = *initialDelay
		l.dryRun = *dryRun
	})

	return l
}

// Run runs a tick after the initial delay and then interval after each tick
// finishes, until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "starting control loop",
		slog.Duration("interval", l.interval),
		slog.Duration("initialDelay", l.initialDelay),
		slog.Bool("dryRun", l.dryRun),
	)

	timer := time.NewTimer(l.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "stopping control loop")
			return nil
		case <-timer.C:
			l.RunOnce(ctx)
			timer.Reset(l.interval)
		}
	}
}

// RunOnce runs a single control cycle. Concurrent callers are serialized.
func (l *Loop) RunOnce(ctx context.Context) Tick {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now()
	tick := Tick{
		ID:     strconv.FormatUint(l.ticks.Add(1), 10),
		Time:   start,
		DryRun: l.dryRun,
	}
	ctx = log.WithAttrs(ctx, slog.String("tick", tick.ID))

	tick.State = l.provider.GetCurrentState(ctx)
	tick.Decision = l.decider.Decide(ctx, tick.State, l.settings.Snapshot())

	log.Ctx(ctx).InfoContext(ctx, "decision",
		slog.String("mode", tick.Decision.Mode.String()),
		slog.Float64("surplus", tick.Decision.AvailableSurplus),
		slog.Int("actions", len(tick.Decision.Actions)),
		slog.String("explanation", tick.Decision.Explanation),
	)

	if l.dryRun {
		log.Ctx(ctx).DebugContext(ctx, "dry run, skipping actuation")
	} else {
		tick.Result = l.executor.ExecuteDecision(ctx, tick.Decision)
	}

	err := l.publisher.Publish(ctx, publish.Event{
		Timestamp: start,
		State:     tick.State,
		Decision:  tick.Decision,
		DryRun:    l.dryRun,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to publish decision", slog.Any("error", err))
	}

	if l.observer != nil {
		l.observer.ObserveTick(tick.Decision.AvailableSurplus, l.now().Sub(start))
	}
	return tick
}

// Manual is the outcome of a single operator command.
type Manual struct {
	Action types.DeviceAction `json:"action"`
	Result actuator.Result    `json:"result"`
	DryRun bool               `json:"dryRun"`
}

// Actuate runs one operator command through the executor. It shares the
// tick mutex so it never interleaves with a control cycle.
func (l *Loop) Actuate(ctx context.Context, action types.DeviceAction) Manual {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := Manual{
		Action: action,
		DryRun: l.dryRun,
	}
	if l.dryRun {
		log.Ctx(ctx).InfoContext(ctx, "dry run, skipping manual action",
			slog.String("device", string(action.Device)),
			slog.String("action", string(action.Action)),
		)
		return m
	}
	m.Result = l.executor.ExecuteDecision(ctx, types.Decision{
		Actions:     []types.DeviceAction{action},
		Mode:        types.ModeManual,
		Explanation: "Manual control",
	})
	return m
}

// DryRun computes the decision for the current state without actuating or
// publishing it.
func (l *Loop) DryRun(ctx context.Context) (types.SystemState, types.Decision) {
	s := l.provider.GetCurrentState(ctx)
	return s, l.decider.Decide(ctx, s, l.settings.Snapshot())
}

// State returns the current system state.
func (l *Loop) State(ctx context.Context) types.SystemState {
	return l.provider.GetCurrentState(ctx)
}
