// sentry is a demonstration host for the decision engine: a simulated
// patrol robot that picks one behavior per tick from its active rules.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/pkok/behavior-engine/cmd/sentry/sentry"
	"github.com/pkok/behavior-engine/pkg/engine"
	"github.com/pkok/behavior-engine/pkg/engine/webview"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
	"github.com/seekerror/stdlib/pkg/util/contextx"
	"net/http"
	"os"
	"time"
)

var version = build.NewVersion(0, 1, 0)

var (
	ticks   = flag.Int("ticks", 200, "Number of control-loop ticks to run (zero if no limit)")
	period  = flag.Duration("period", 100*time.Millisecond, "Control-loop tick period")
	seed    = flag.Uint64("seed", 1, "Random seed for the simulated sensors")
	addr    = flag.String("addr", "", "HTTP address for the activation-graph debug view (disabled if empty)")
	console = flag.Bool("console", false, "Drive the engine interactively from stdin instead of the simulation loop")
)

func init() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: sentry [options]

sentry simulates a patrol robot whose behaviors -- patrol, chase,
recharge, idle -- compete through a utility-based decision engine. Each
tick the engine scores the candidates gated by the current events and
executes the winner.
Options:
`)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctx := context.Background()

	logw.Infof(ctx, "sentry %v decision-engine demo (seed=%v)", version, *seed)

	w := sentry.NewWorld(*seed)

	var opts []engine.Option[sentry.Event]
	var view *webview.View
	if *addr != "" {
		view = webview.New()
		opts = append(opts, engine.WithGraph[sentry.Event](view))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/graph", view)
			if err := http.ListenAndServe(*addr, mux); err != nil {
				logw.Errorf(ctx, "Debug view server failed: %v", err)
			}
		}()
		logw.Infof(ctx, "Activation graph on ws://%v/graph", *addr)
	}

	eng := engine.New[sentry.Event](ctx, opts...)
	if err := sentry.Register(ctx, eng, w); err != nil {
		logw.Exitf(ctx, "Failed to register rules: %v", err)
	}
	if view != nil {
		defer view.Close()
	}

	if *console {
		sentry.RunConsole(ctx, eng, w)
		return
	}

	limit := lang.Optional[int]{}
	if *ticks > 0 {
		limit = lang.Some(*ticks)
	}

	for n := 0; !contextx.IsCancelled(ctx); n++ {
		if lim, ok := limit.V(); ok && n >= lim {
			break
		}

		w.Step()
		sentry.Gate(ctx, eng, w)

		if err := eng.ExecuteBestDecision(ctx); err != nil {
			if errors.Is(err, engine.ErrNoDecisionActivated) || errors.Is(err, engine.ErrEmptyActiveSet) {
				logw.Debugf(ctx, "Tick %v: nothing to do", n)
			} else {
				logw.Exitf(ctx, "Tick %v failed: %v", n, err)
			}
		}

		time.Sleep(*period)
	}

	logw.Infof(ctx, "Done")
}
