// Package instrdesc holds the instruction descriptions the simulator publishes,
// loaded once at start-up and shared by reference with every consumer.
package instrdesc

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"supersim/internal/errors"
)

// Argument describes one operand of an instruction.
type Argument struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	WriteBack    bool   `json:"writeBack,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// Description is the metadata of one instruction.
type Description struct {
	Name            string     `json:"name"`
	InstructionType string     `json:"instructionType,omitempty"`
	InterpretableAs string     `json:"interpretableAs,omitempty"`
	Arguments       []Argument `json:"arguments,omitempty"`
}

// Fetcher retrieves the full description table.
type Fetcher interface {
	InstructionDescriptions(ctx context.Context) (map[string]Description, error)
}

// State is the load state of a Service.
type State int

const (
	NotLoaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// Service is the instruction description lookup. Lookups before a successful
// Load fail with NOT_LOADED.
type Service struct {
	fetcher Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu       sync.RWMutex
	state    State
	models   map[string]Description
	err      error
	loadedAt time.Time
}

// NewService creates a Service in the NotLoaded state.
func NewService(fetcher Fetcher, logger *slog.Logger) *Service {
	return &Service{fetcher: fetcher, logger: logger}
}

// Load fetches the table unless it is already loaded. Concurrent callers share
// one request.
func (s *Service) Load(ctx context.Context) error {
	if s.State() == Loaded {
		return nil
	}
	return s.fetch(ctx)
}

// Reload fetches the table again. The previous table stays in use until the new
// one arrives; a failed reload keeps it.
func (s *Service) Reload(ctx context.Context) error {
	return s.fetch(ctx)
}

func (s *Service) fetch(ctx context.Context) error {
	_, err, _ := s.group.Do("load", func() (interface{}, error) {
		s.mu.Lock()
		if s.state != Loaded {
			s.state = Loading
		}
		s.mu.Unlock()

		models, err := s.fetcher.InstructionDescriptions(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			if s.state != Loaded {
				s.state = Failed
			}
			s.err = err
			if s.logger != nil {
				s.logger.Warn("Instruction descriptions unavailable", "error", err.Error())
			}
			return nil, err
		}
		if models == nil {
			models = map[string]Description{}
		}
		s.models = models
		s.state = Loaded
		s.err = nil
		s.loadedAt = time.Now()
		if s.logger != nil {
			s.logger.Debug("Instruction descriptions loaded", "count", len(models))
		}
		return nil, nil
	})
	return err
}

// State returns the current load state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error of the last failed load.
func (s *Service) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Service) table() (map[string]Description, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Loaded && s.models == nil {
		if s.err != nil {
			return nil, errors.New(errors.NotLoaded, "instruction descriptions failed to load", s.err)
		}
		return nil, errors.Newf(errors.NotLoaded, "instruction descriptions are %s", s.state)
	}
	return s.models, nil
}

// Lookup returns the description of one instruction.
func (s *Service) Lookup(name string) (Description, bool, error) {
	models, err := s.table()
	if err != nil {
		return Description{}, false, err
	}
	d, ok := models[name]
	return d, ok, nil
}

// Names returns every known instruction name, sorted.
func (s *Service) Names() ([]string, error) {
	models, err := s.table()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Status summarizes the service for health output.
type Status struct {
	State    string    `json:"state"`
	Count    int       `json:"count"`
	LoadedAt time.Time `json:"loadedAt,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Status returns a snapshot of the load state.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{State: s.state.String(), Count: len(s.models), LoadedAt: s.loadedAt}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}
