// Package node implements the external process backend. Each run writes
// the unit to a temporary directory and executes it with the node binary.
package node

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shiroyk/runjs/engine"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/script"
	"golang.org/x/exp/slog"
)

// Name the backend name
const Name = "node"

const (
	// DefaultCommand the default node executable
	DefaultCommand = "node"
	mainFile       = "main.js"
)

// DefaultArgs the default node arguments placed before the script path
var DefaultArgs = []string{"--no-warnings"}

//go:embed include.js
var bootstrap string

// Options the node backend configuration
type Options struct {
	Logger *slog.Logger `yaml:"-"`
	// Command is the node executable, looked up in PATH.
	Command string `yaml:"command"`
	// Args are passed to node before the script path.
	Args []string `yaml:"args"`
	// TempDir is where run directories are created, the system default
	// when empty.
	TempDir string `yaml:"temp-dir"`
}

// Backend runs units in a node subprocess.
type Backend struct {
	opt    Options
	logger *slog.Logger
}

// New returns the node backend.
func New(opt Options) *Backend {
	if opt.Command == "" {
		opt.Command = DefaultCommand
	}
	if opt.Args == nil {
		opt.Args = DefaultArgs
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{opt: opt, logger: logger}
}

// Name returns "node".
func (b *Backend) Name() string { return Name }

// Capabilities node executes files and cannot precompile.
func (b *Backend) Capabilities() engine.Capabilities {
	return engine.Capabilities{}
}

// Execute runs the unit. The run directory is removed on every path.
func (b *Backend) Execute(ctx context.Context, unit *script.Unit, mode engine.Mode) (ret any, err error) {
	tracker := engine.NewTracker(b.logger, Name)
	if mode != engine.Execute {
		return nil, tracker.Fail(ctx, errs.New(errs.ArgumentError, "%s backend cannot %s", Name, mode))
	}

	tracker.Enter(ctx, engine.BuildingUnit)
	dir, err := os.MkdirTemp(b.opt.TempDir, "runjs-")
	if err != nil {
		return nil, tracker.Fail(ctx, errs.Wrap(errs.ResourceError, err, "create run directory"))
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			tracker.Logger().Warn("remove run directory", "dir", dir, "error", rmErr)
		}
	}()

	mainPath, err := b.write(dir, unit)
	if err != nil {
		return nil, tracker.Fail(ctx, err)
	}

	tracker.Enter(ctx, engine.Executing)
	args := append(append([]string(nil), b.opt.Args...), mainPath)
	cmd := exec.CommandContext(ctx, b.opt.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, tracker.Fail(ctx, &errs.Error{Kind: errs.RuntimeFailure, Message: "execution interrupted", Err: ctxErr})
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, tracker.Fail(ctx, errs.Wrap(errs.ResourceError, err, "start %s", b.opt.Command))
		}
	}
	if err != nil || stderr.Len() > 0 {
		b.logOutput(ctx, tracker.Logger(), stdout.Bytes())
		return nil, tracker.Fail(ctx, failure(stderr.String(), err))
	}

	tracker.Enter(ctx, engine.DecodingResult)
	output, envelope, err := split(stdout.Bytes())
	b.logOutput(ctx, tracker.Logger(), output)
	if err == nil {
		ret, err = envelope.decode()
	}
	if err != nil {
		return nil, tracker.Fail(ctx, err)
	}
	tracker.Done(ctx)
	return ret, nil
}

// write writes the inline libraries and the rendered unit into dir and
// returns the path of the entry script.
func (b *Backend) write(dir string, unit *script.Unit) (string, error) {
	u := *unit
	u.Shim = bootstrap
	u.Libraries = append([]script.Source(nil), unit.Libraries...)
	for i, lib := range u.Libraries {
		if lib.Path != "" {
			f, err := os.Open(lib.Path)
			if err != nil {
				return "", errs.Wrap(errs.ResourceError, err, "read library %s", lib.Name)
			}
			_ = f.Close()
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("lib%03d-%s", i, fileName(lib.Name)))
		if err := os.WriteFile(path, []byte(lib.Code), 0o600); err != nil {
			return "", errs.Wrap(errs.ResourceError, err, "write library %s", lib.Name)
		}
		u.Libraries[i].Path = path
	}

	path := filepath.Join(dir, mainFile)
	if err := os.WriteFile(path, []byte(Render(&u)), 0o600); err != nil {
		return "", errs.Wrap(errs.ResourceError, err, "write %s", mainFile)
	}
	return path, nil
}

// logOutput forwards console output of the script to the logger.
func (b *Backend) logOutput(ctx context.Context, logger *slog.Logger, output []byte) {
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			logger.LogAttrs(ctx, slog.LevelInfo, line, slog.String("source", "js"))
		}
	}
}

// fileName keeps the characters of a library name that are safe in a file name.
func fileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, filepath.Base(name))
	if !strings.HasSuffix(name, ".js") {
		name += ".js"
	}
	return name
}
