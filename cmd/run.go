package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shiroyk/runjs"
	"github.com/shiroyk/runjs/errs"
	"github.com/shiroyk/runjs/value"
	"github.com/spf13/cobra"
)

// runFlags the flags of the run command
type runFlags struct {
	backend    string
	eval       string
	libs       []string
	function   string
	args       []string
	globals    []string
	precompile bool
	compile    bool
	print      bool
	selector   string
	output     string
	timeout    time.Duration
}

var runArgs runFlags

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "run a script, optionally calling one of its functions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFrom(cmd.Context())
		if err != nil {
			return err
		}
		return run(cmd.Context(), a, runArgs, args, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func run(ctx context.Context, a *app, f runFlags, args []string, stdin io.Reader, stdout io.Writer) error {
	code, err := mainCode(f, args, stdin)
	if err != nil {
		return err
	}

	globals := new(value.Object)
	for _, g := range f.globals {
		name, v, err := parseGlobal(g)
		if err != nil {
			return err
		}
		globals.Set(name, v)
	}
	call := runjs.Call{
		Function:       f.function,
		PrecompileOnly: f.precompile,
		CompileOnly:    f.compile,
	}
	if len(f.args) > 0 {
		callArgs := make([]any, len(f.args))
		for i, arg := range f.args {
			if callArgs[i], err = parseArg(arg); err != nil {
				return err
			}
		}
		call.Args = callArgs
	}

	session, err := a.session(f.backend, runjs.Options{
		Main:         code,
		LibraryPaths: f.libs,
		Globals:      globals,
	})
	if err != nil {
		return err
	}

	if f.print {
		text, err := session.Render(call)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, text)
		return err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	result, err := session.Run(ctx, call)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Stack != "" {
			a.logger.Debug("script stack", "stack", e.Stack)
		}
		return err
	}
	if f.selector != "" {
		if result, err = value.Select(result, f.selector); err != nil {
			return err
		}
	}
	return outputJSON(stdout, f.output, result)
}

// mainCode returns the --eval code, or the file named by the argument,
// "-" reading stdin.
func mainCode(f runFlags, args []string, stdin io.Reader) (string, error) {
	switch {
	case f.eval != "" && len(args) > 0:
		return "", errs.New(errs.ArgumentError, "--eval and a script file are exclusive")
	case f.eval != "":
		return f.eval, nil
	case len(args) == 0:
		return "", nil
	case args[0] == "-":
		bytes, err := io.ReadAll(stdin)
		if err != nil {
			return "", errs.Wrap(errs.ResourceError, err, "read stdin")
		}
		return string(bytes), nil
	default:
		bytes, err := os.ReadFile(args[0])
		if err != nil {
			return "", errs.Wrap(errs.ResourceError, err, "read %s", args[0])
		}
		return string(bytes), nil
	}
}

func outputJSON(stdout io.Writer, output string, data any) error {
	bytes, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}

	if output == "" {
		_, err = fmt.Fprintln(stdout, string(bytes))
		return err
	}

	if filepath.Ext(output) == "" {
		output += ".json"
	}
	return os.WriteFile(output, bytes, 0o600)
}

func init() {
	flags := runCmd.Flags()
	flags.StringVarP(&runArgs.backend, "backend", "b", "", "backend name, the configured backend by default")
	flags.StringVarP(&runArgs.eval, "eval", "e", "", "main code")
	flags.StringArrayVarP(&runArgs.libs, "lib", "l", nil, "library file, run before the main code in order")
	flags.StringVarP(&runArgs.function, "func", "f", "", "function to call after the main code")
	flags.StringArrayVarP(&runArgs.args, "arg", "a", nil, "function argument [type:]value, json by default")
	flags.StringArrayVarP(&runArgs.globals, "global", "g", nil, "global variable name[:type]=value, json by default")
	flags.BoolVar(&runArgs.precompile, "precompile", false, "stop after precompilation")
	flags.BoolVar(&runArgs.compile, "compile", false, "stop after compilation")
	flags.BoolVar(&runArgs.print, "print", false, "print the assembled script and exit")
	flags.StringVar(&runArgs.selector, "select", "", "JSONPath applied to the result")
	flags.StringVarP(&runArgs.output, "output", "o", "", "write to file instead of stdout")
	flags.DurationVarP(&runArgs.timeout, "timeout", "t", 0, "run timeout")
	rootCmd.AddCommand(runCmd)
}
