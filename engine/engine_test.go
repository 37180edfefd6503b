package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/shiroyk/runjs/script"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

func TestTracker(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	tracker := NewTracker(logger, "embedded")
	assert.Equal(t, Idle, tracker.State())
	assert.NotEmpty(t, tracker.ID)

	tracker.Enter(ctx, Executing)
	assert.Equal(t, Executing, tracker.State())

	err := errors.New("boom")
	assert.Equal(t, err, tracker.Fail(ctx, err))
	assert.Equal(t, Failed, tracker.State())

	out := buf.String()
	assert.Contains(t, out, "to=executing")
	assert.Contains(t, out, "state=executing")
	assert.Contains(t, out, "run="+tracker.ID)
	assert.Contains(t, out, "backend=embedded")
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "decoding-result", DecodingResult.String())
	assert.Equal(t, "unknown", State(100).String())
	assert.Equal(t, "compile", CompileOnly.String())
}

func TestCompiledNames(t *testing.T) {
	t.Parallel()
	unit := &script.Unit{
		Libraries: []script.Source{{Name: "a.js"}, {Name: "b.js"}},
		Main:      script.Source{Name: script.MainName},
	}
	assert.Equal(t, []any{"a.js", "b.js", "main.js"}, CompiledNames(unit))
}
