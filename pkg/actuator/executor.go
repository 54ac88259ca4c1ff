package actuator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Result summarizes one ExecuteDecision call.
type Result struct {
	Executed    int `json:"executed"`
	Unsupported int `json:"unsupported"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
}

// Observer is told the outcome of every action.
type Observer interface {
	ObserveAction(action types.DeviceAction, err error)
}

// Executor runs every action of a decision against an Actuator. A failing
// action never stops the remaining ones.
type Executor struct {
	actuator Actuator
	observer Observer
}

// NewExecutor creates a new Executor. observer may be nil.
func NewExecutor(a Actuator, observer Observer) *Executor {
	return &Executor{
		actuator: a,
		observer: observer,
	}
}

// ExecuteDecision runs the actions of decision in order.
func (e *Executor) ExecuteDecision(ctx context.Context, decision types.Decision) Result {
	log.Ctx(ctx).InfoContext(ctx, "executing decision",
		slog.String("mode", decision.Mode.String()),
		slog.String("explanation", decision.Explanation),
		slog.Int("actions", len(decision.Actions)),
	)

	var res Result
	for _, action := range decision.Actions {
		if action.Action == types.ActionNoChange {
			res.Skipped++
			continue
		}
		log.Ctx(ctx).InfoContext(ctx, "action",
			slog.String("action", string(action.Action)),
			slog.String("device", string(action.Device)),
			slog.String("reason", action.Reason),
		)

		err := e.execute(ctx, action)
		switch {
		case err == nil:
			res.Executed++
		case errors.Is(err, ErrUnsupported):
			res.Unsupported++
			log.Ctx(ctx).WarnContext(ctx, "unsupported device action", slog.String("device", string(action.Device)), slog.String("action", string(action.Action)), slog.Any("error", err))
		default:
			res.Failed++
			log.Ctx(ctx).ErrorContext(ctx, "failed to execute device action", slog.String("device", string(action.Device)), slog.String("action", string(action.Action)), slog.Any("error", err))
		}
		if e.observer != nil {
			e.observer.ObserveAction(action, err)
		}
	}
	return res
}

// execute turns a panicking actuator into an error.
func (e *Executor) execute(ctx context.Context, action types.DeviceAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "actuator panicked", slog.Any("panic", r))
			err = errPanicked
		}
	}()
	return e.actuator.Execute(ctx, action)
}

var errPanicked = errors.New("actuator panicked")
