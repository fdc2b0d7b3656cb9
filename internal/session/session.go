package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"supersim/internal/instrdesc"
	"supersim/internal/snapshot"
	"supersim/internal/tick"
	"supersim/internal/views"
)

// Session wires the controller, the selectors and the instruction descriptions
// together and owns the application state. It is created once at start-up and
// passed to whatever needs it.
type Session struct {
	Controller   *tick.Controller
	Selectors    *views.Selectors
	Instructions *instrdesc.Service

	logger *slog.Logger

	mu    sync.RWMutex
	state State
	// last is the newest Ready or Failed transition reduced into state.
	last tick.Status

	unsubscribe func()
}

// New creates a Session. Committed controller transitions are reduced into the
// session state.
func New(ctrl *tick.Controller, sel *views.Selectors, instr *instrdesc.Service, logger *slog.Logger) *Session {
	s := &Session{
		Controller:   ctrl,
		Selectors:    sel,
		Instructions: instr,
		logger:       logger,
		state:        State{Code: ctrl.Config().Code},
	}
	s.unsubscribe = ctrl.Subscribe(s.onTransition)
	return s
}

// onTransition reduces a finished request into the state. A transition older
// than the last one applied belongs to a superseded request and is dropped.
func (s *Session) onTransition(st tick.Status) {
	var a Action
	switch st.State {
	case tick.Ready:
		if st.Snapshot == nil {
			return
		}
		a = SimulationFulfilled{Snapshot: st.Snapshot}
	case tick.Failed:
		a = SimulationRejected{Err: st.Err}
	default:
		return
	}

	s.mu.Lock()
	if s.last.Generation != 0 && !st.Newer(s.last) {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Debug("Dropping superseded transition", "generation", st.Generation, "applied", s.last.Generation)
		}
		return
	}
	s.last = st
	s.state = Reduce(s.state, a)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("Session action", "action", a.actionName(), "tick", st.Tick)
	}
}

// Close detaches the session from the controller.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Dispatch applies an action and returns the new state.
func (s *Session) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	st := s.state
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("Session action", "action", a.actionName(), "tick", st.Tick())
	}
	return st
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the displayed snapshot, or nil.
func (s *Session) Snapshot() *snapshot.Snapshot {
	return s.State().Snapshot
}

// SetCode stores the program and sends it with every later request.
func (s *Session) SetCode(code string) {
	s.Dispatch(SetCode{Code: code})
	s.Controller.SetConfig(s.Controller.Config().WithCode(code))
}

// Start loads the instruction descriptions and simulates tick 0 concurrently.
// Neither failure stops the other; both are returned.
func (s *Session) Start(ctx context.Context) (instrErr, simErr error) {
	var g errgroup.Group

	g.Go(func() error {
		if instrErr = s.Instructions.Load(ctx); instrErr != nil && s.logger != nil {
			s.logger.Warn("Instruction descriptions not loaded", "error", instrErr.Error())
		}
		return nil
	})
	g.Go(func() error {
		if _, simErr = s.Controller.Reload(ctx); simErr != nil && s.logger != nil {
			s.logger.Warn("Initial simulation failed", "error", simErr.Error())
		}
		return nil
	})

	_ = g.Wait()
	return instrErr, simErr
}
