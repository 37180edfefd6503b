package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// State is a step of a run.
type State uint8

const (
	Idle State = iota
	BuildingUnit
	Precompiling
	Compiling
	Executing
	DecodingResult
	Done
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	BuildingUnit:   "building-unit",
	Precompiling:   "precompiling",
	Compiling:      "compiling",
	Executing:      "executing",
	DecodingResult: "decoding-result",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Tracker follows a run through its states and logs each transition.
// A run starts Idle and ends Done or Failed.
type Tracker struct {
	ID     string
	state  State
	start  time.Time
	logger *slog.Logger
}

// NewTracker returns an Idle Tracker with a fresh run id.
func NewTracker(logger *slog.Logger, backend string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Tracker{
		ID:     id,
		start:  time.Now(),
		logger: logger.With(slog.String("run", id), slog.String("backend", backend)),
	}
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Logger returns the logger carrying the run attributes.
func (t *Tracker) Logger() *slog.Logger { return t.logger }

// Enter moves to the state.
func (t *Tracker) Enter(ctx context.Context, s State) {
	t.logger.LogAttrs(ctx, slog.LevelDebug, "run state",
		slog.String("from", t.state.String()), slog.String("to", s.String()))
	t.state = s
}

// Done marks the run successful.
func (t *Tracker) Done(ctx context.Context) {
	t.Enter(ctx, Done)
	t.logger.LogAttrs(ctx, slog.LevelDebug, "run finished", slog.Duration("elapsed", time.Since(t.start)))
}

// Fail marks the run failed and returns err.
func (t *Tracker) Fail(ctx context.Context, err error) error {
	t.logger.LogAttrs(ctx, slog.LevelDebug, "run failed",
		slog.String("state", t.state.String()), slog.Any("error", err))
	t.state = Failed
	return err
}
