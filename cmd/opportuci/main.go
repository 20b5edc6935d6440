package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-opportuci/internal/config"
	"github.com/jrsteele09/go-opportuci/internal/logging"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logger := logging.New(c.GetLogLevel(), c.GetEnv(), nil)

	if len(args) == 0 {
		usage(stdout, c.GetAppName())
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stdout, "unknown command %q\n\n", args[0])
		usage(stdout, c.GetAppName())
		return errUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: c, logger: logger, out: stdout}
	if cmd.needsClient {
		closeApp, err := a.connect()
		if err != nil {
			return err
		}
		defer closeApp()
	}
	return cmd.run(ctx, a, args[1:])
}

func usage(w io.Writer, appname string) {
	displayAppname(w, appname)
	fmt.Fprintf(w, "Usage: opportuci <command> [flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
