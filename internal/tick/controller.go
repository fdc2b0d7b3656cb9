// Package tick drives the simulator one tick at a time. The controller treats the
// backend as a pure function from tick to snapshot: every step is a fresh request
// that the backend recomputes from program start.
package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"supersim/internal/errors"
	"supersim/internal/isa"
	"supersim/internal/metrics"
	"supersim/internal/snapshot"
)

// Simulator returns the CPU state after running cfg up to tick.
type Simulator interface {
	Simulate(ctx context.Context, tick int64, cfg isa.SimulationConfig) (*snapshot.Snapshot, error)
}

// State is the controller state.
type State int

const (
	Idle State = iota
	Requesting
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "requesting":
		*s = Requesting
	case "ready":
		*s = Ready
	case "failed":
		*s = Failed
	default:
		return fmt.Errorf("unknown controller state %q", string(b))
	}
	return nil
}

// Status describes one committed transition.
type Status struct {
	State State `json:"state"`
	// Tick is the requested tick while Requesting or Failed, and the tick of the
	// displayed snapshot when Ready.
	Tick       int64  `json:"tick"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`

	// Snapshot is the snapshot committed with a Ready transition.
	Snapshot *snapshot.Snapshot `json:"-"`
	// Err is the error committed with a Failed transition.
	Err error `json:"-"`
}

// Newer reports whether st belongs to a later request than prev. Transitions of
// one request arrive in order; transitions of concurrent requests may not, so a
// subscriber that keeps state compares generations before applying st.
func (st Status) Newer(prev Status) bool {
	return st.Generation > prev.Generation
}

// Controller owns the displayed snapshot.
type Controller struct {
	sim    Simulator
	logger *slog.Logger

	mu    sync.Mutex
	state State
	tick  int64
	gen   uint64
	err   error
	cfg   isa.SimulationConfig

	snap atomic.Pointer[snapshot.Snapshot]

	subMu   sync.RWMutex
	subs    map[int]func(Status)
	nextSub int
}

// NewController creates an Idle controller that simulates cfg.
func NewController(sim Simulator, cfg isa.SimulationConfig, logger *slog.Logger) *Controller {
	return &Controller{
		sim:    sim,
		logger: logger,
		cfg:    cfg,
		subs:   make(map[int]func(Status)),
	}
}

// SetConfig replaces the configuration sent with later requests. The displayed
// snapshot is kept until the next request completes.
func (c *Controller) SetConfig(cfg isa.SimulationConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Config returns the configuration sent with requests.
func (c *Controller) Config() isa.SimulationConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Snapshot returns the displayed snapshot, or NO_SNAPSHOT.
func (c *Controller) Snapshot() (*snapshot.Snapshot, error) {
	if s := c.snap.Load(); s != nil {
		return s, nil
	}
	return nil, errors.Newf(errors.NoSnapshot, "no snapshot is loaded")
}

// CurrentTick is the tick of the displayed snapshot, or 0 without one.
func (c *Controller) CurrentTick() int64 {
	if s := c.snap.Load(); s != nil {
		return s.Tick()
	}
	return 0
}

// Err returns the error of the last failed request, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Status returns the latest committed state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{State: c.state, Tick: c.tick, Generation: c.gen}
	if c.state == Ready {
		st.Snapshot = c.snap.Load()
	}
	if c.err != nil {
		st.Err = c.err
		st.Error = c.err.Error()
		st.ErrorCode = string(errors.CodeOf(c.err))
	}
	return st
}

// Request moves to Requesting(t) and asks the backend for tick t. Any integer is
// accepted; the backend decides what a tick outside the program means.
//
// A response arriving after a newer request was issued is discarded and reported
// as STALE_RESPONSE. On failure the displayed snapshot is dropped.
func (c *Controller) Request(ctx context.Context, t int64) (*snapshot.Snapshot, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	cfg := c.cfg
	c.state = Requesting
	c.tick = t
	c.err = nil
	started := c.statusLocked()
	c.mu.Unlock()
	c.publish(started)

	if c.logger != nil {
		c.logger.Debug("Requesting tick", "tick", t, "generation", gen)
	}

	snap, err := c.sim.Simulate(ctx, t, cfg)

	c.mu.Lock()
	if gen != c.gen {
		latest := c.gen
		c.mu.Unlock()
		metrics.StaleResponses.Inc()
		if c.logger != nil {
			c.logger.Debug("Discarding stale response", "tick", t, "generation", gen, "latest", latest)
		}
		return nil, errors.Newf(errors.StaleResponse, "response for tick %d superseded by a newer request", t).
			WithDetails(map[string]uint64{"generation": gen, "latest": latest})
	}

	if err != nil {
		c.state = Failed
		c.err = err
		c.snap.Store(nil)
		done := c.statusLocked()
		c.mu.Unlock()

		metrics.SnapshotObjects.Set(0)
		c.publish(done)
		if c.logger != nil {
			c.logger.Warn("Tick request failed", "tick", t, "error", err.Error())
		}
		return nil, err
	}

	c.state = Ready
	c.tick = snap.Tick()
	c.snap.Store(snap)
	done := c.statusLocked()
	c.mu.Unlock()

	metrics.CurrentTick.Set(float64(snap.Tick()))
	metrics.SnapshotObjects.Set(float64(snap.Len()))
	c.publish(done)
	return snap, nil
}

// StepForward requests the tick after the displayed one.
func (c *Controller) StepForward(ctx context.Context) (*snapshot.Snapshot, error) {
	return c.Request(ctx, c.CurrentTick()+1)
}

// StepBackward requests the tick before the displayed one. At tick 0 it requests
// tick 0 again rather than -1; callers wanting a negative tick use Request.
func (c *Controller) StepBackward(ctx context.Context) (*snapshot.Snapshot, error) {
	t := c.CurrentTick() - 1
	if t < 0 {
		t = 0
	}
	return c.Request(ctx, t)
}

// Reload restarts the simulation at tick 0.
func (c *Controller) Reload(ctx context.Context) (*snapshot.Snapshot, error) {
	return c.Request(ctx, 0)
}

// Subscribe registers fn for every committed transition and returns a function
// that removes it. fn runs on the requesting goroutine and must not block.
//
// Each request delivers its transitions in order, but deliveries from concurrent
// requests may interleave. A Ready or Failed status carries the snapshot or error
// it was committed with; fn must use those rather than read the controller back.
func (c *Controller) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish(st Status) {
	metrics.TickTransitions.WithLabelValues(st.State.String()).Inc()

	c.subMu.RLock()
	fns := make([]func(Status), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range fns {
		fn(st)
	}
}
