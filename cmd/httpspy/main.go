package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/pflag"

	apperrors "github.com/shhac/httpspy/internal/errors"
)

const usage = `Usage: httpspy [global flags] <command> [flags]

Commands:
  list    list captured exchanges
  get     print one exchange as JSON
  clear   remove captured exchanges
  wait    wait for a matching exchange (exit 1 on failure)
  serve   run the inspection HTTP API

Global flags:
`

func main() {
	if err := runApp(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, apperrors.Classify(err).Format())
		}
		os.Exit(1)
	}
}

// runApp is the main application entry point with panic recovery.
func runApp(args []string, stdout, stderr io.Writer) (err error) {
	// Create a temporary logger for bootstrap errors
	tempLogger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			tempLogger.Error("panic recovered",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var g globals
	fs := pflag.NewFlagSet("httpspy", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	g.bind(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return pflag.ErrHelp
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		fs.Usage()
		return apperrors.ValidationError{Field: "command", Message: fmt.Sprintf("unknown command %q", rest[0])}
	}
	return cmd(&env{globals: g, stdout: stdout, stderr: stderr}, rest[1:])
}
