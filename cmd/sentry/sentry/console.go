package sentry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/pkok/behavior-engine/pkg/engine"
	"github.com/seekerror/logw"
	"os"
	"strings"
)

// ReadStdinLines reads stdin lines into a chan. Async.
func ReadStdinLines(ctx context.Context) <-chan string {
	ret := make(chan string, 1)
	go func() {
		defer close(ret)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			logw.Debugf(ctx, "<< %v", scanner.Text())
			ret <- scanner.Text()
		}
	}()
	return ret
}

// WriteStdoutLines writes lines from the given chan to stdout.
func WriteStdoutLines(ctx context.Context, out <-chan string) {
	for line := range out {
		logw.Debugf(ctx, ">> %v", line)
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
}

// RunConsole drives the engine interactively: raise/clear events, query
// and execute decisions. Intended for poking at rule sets without the
// simulation loop. Returns when stdin closes or on "quit".
func RunConsole(ctx context.Context, eng *engine.Engine[Event], w *World) {
	in := ReadStdinLines(ctx)
	out := make(chan string, 1)
	go WriteStdoutLines(ctx, out)
	defer close(out)

	out <- "sentry console: raise|clear <event>, best, exec, active, events, step, quit"
	for line := range in {
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "raise", "clear":
			if len(args) != 2 {
				out <- fmt.Sprintf("usage: %v <event>", args[0])
				continue
			}
			ev, ok := parseEvent(args[1])
			if !ok {
				out <- fmt.Sprintf("unknown event: %v", args[1])
				continue
			}
			if args[0] == "raise" {
				eng.Raise(ctx, ev)
			} else {
				eng.ClearEvent(ctx, ev)
			}

		case "best":
			d, err := eng.BestDecision(ctx)
			if err != nil {
				out <- fmt.Sprintf("error: %v", err)
				continue
			}
			out <- fmt.Sprintf("best: %v", d)

		case "exec":
			if err := eng.ExecuteBestDecision(ctx); err != nil {
				if errors.Is(err, engine.ErrNoDecisionActivated) || errors.Is(err, engine.ErrEmptyActiveSet) {
					out <- fmt.Sprintf("no decision: %v", err)
					continue
				}
				out <- fmt.Sprintf("error: %v", err)
			}

		case "active":
			for _, d := range eng.ActiveDecisions(ctx) {
				out <- fmt.Sprintf("  %v", d)
			}

		case "events":
			out <- fmt.Sprintf("%v", eng.ActiveEvents(ctx))

		case "step":
			w.Step()
			out <- fmt.Sprintf("battery=%.1f intruder=%.1f coverage=%.2f", w.battery, w.intruder, w.covered)

		case "quit":
			return

		default:
			out <- fmt.Sprintf("unknown command: %v", args[0])
		}
	}
}

func parseEvent(s string) (Event, bool) {
	for _, ev := range []Event{Tick, IntruderSeen, LowBattery} {
		if s == ev.String() {
			return ev, true
		}
	}
	return 0, false
}
