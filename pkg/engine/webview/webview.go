// Package webview streams activation-graph snapshots to a browser debug
// view over a websocket. It implements engine.Graph; the engine stays
// oblivious to how the host visualizes the data.
package webview

import (
	"context"
	"errors"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/util/contextx"
	"github.com/seekerror/stdlib/pkg/util/iox"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"net/http"
	"sync"
	"time"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = time.Second

	// The rate at which snapshots are sent to the client, so as not to
	// overburden it. Snapshots are idempotent; dropping stale ones is
	// safe.
	pubResolution  = 100 * time.Millisecond
	pingResolution = 200 * time.Millisecond
	// Number of pings to tolerate losing before concluding the peer is
	// gone.
	pongWait = 4 * pingResolution
)

// ErrPongDeadlineExceeded indicates a client that stopped answering pings.
var ErrPongDeadlineExceeded = errors.New("webview: pong deadline exceeded")

var upgrader = websocket.Upgrader{}

// Candidate is one entry of the activation graph, in window order.
type Candidate struct {
	Name string `json:"name"`
	// Score is the latest composite score, or -1 if the candidate was
	// past the pruning cutoff.
	Score float64 `json:"score"`
}

// Snapshot is the activation graph after one selection pass.
type Snapshot struct {
	Tick       int         `json:"tick"`
	Candidates []Candidate `json:"candidates"`
}

// View is an engine.Graph that republishes selection snapshots to a web
// client as JSON. Snapshots are dropped when no client is connected or
// when they arrive faster than the publish rate, so the host control loop
// never blocks on a slow browser. Serves a single client at a time.
type View struct {
	updates chan Snapshot
	quit    iox.AsyncCloser
	busy    atomic.Bool

	names []string
	tick  int
	mu    sync.Mutex
}

// New returns an unconnected view. Attach it with engine.WithGraph and
// serve it over HTTP.
func New() *View {
	return &View{
		updates: make(chan Snapshot, 1),
		quit:    iox.NewAsyncCloser(),
	}
}

// Reset implements engine.Graph.
func (v *View) Reset(names []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.names = append([]string(nil), names...)
}

// Publish implements engine.Graph. The snapshot replaces any undelivered
// predecessor.
func (v *View) Publish(scores []float64) {
	v.mu.Lock()
	v.tick++
	snap := Snapshot{Tick: v.tick, Candidates: make([]Candidate, 0, len(scores))}
	for i, s := range scores {
		if i < len(v.names) {
			snap.Candidates = append(snap.Candidates, Candidate{Name: v.names[i], Score: s})
		}
	}
	v.mu.Unlock()

	select {
	case <-v.updates:
	default:
	}
	select {
	case v.updates <- snap:
	default:
	}
}

// Close detaches any connected client. Idempotent.
func (v *View) Close() {
	v.quit.Close()
}

// ServeHTTP upgrades the request to a websocket and publishes snapshots
// until the client disconnects or the view is closed.
func (v *View) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !v.busy.CAS(false, true) {
		http.Error(w, "debug view already attached", http.StatusConflict)
		return
	}
	defer v.busy.Store(false)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer ws.Close()

	logw.Infof(ctx, "Debug view attached: %v", r.RemoteAddr)
	if err := v.sync(r, ws); err != nil {
		logw.Debugf(ctx, "Debug view detached: %v", err)
	}
}

// sync runs the per-connection routines: client reads, liveness pings and
// snapshot publishing.
func (v *View) sync(r *http.Request, ws *websocket.Conn) error {
	ctx, cancel := contextx.WithQuitCancel(r.Context(), v.quit.Closed())
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)

	// Reads block without a deadline; closing the connection on teardown
	// unblocks them so Wait cannot hang.
	go func() {
		<-gctx.Done()
		_ = ws.Close()
	}()

	group.Go(func() error {
		return readMessages(ws)
	})
	group.Go(func() error {
		return pingPong(gctx, ws)
	})
	group.Go(func() error {
		return v.publish(gctx, ws)
	})
	return group.Wait()
}

// publish forwards snapshots to the client at the publish rate. WriteJSON
// may run concurrently with the control writes in pingPong; gorilla
// permits concurrent control messages.
func (v *View) publish(ctx context.Context, ws *websocket.Conn) error {
	var lastSync time.Time

	for snap := range channerics.OrDone(ctx.Done(), v.updates) {
		if time.Since(lastSync) < pubResolution {
			continue
		}
		lastSync = time.Now()

		if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := ws.WriteJSON(snap); err != nil {
			return err
		}
	}
	return nil
}

// pingPong runs the liveness check. It requires readMessages to run so
// the pong handler is invoked.
func pingPong(ctx context.Context, ws *websocket.Conn) error {
	pong := make(chan struct{}, 1)
	ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

// readMessages drains client messages. Errors from websocket reads are
// permanent and tear down the connection group.
func readMessages(ws *websocket.Conn) error {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return err
		}
	}
}
