package slogutil

import (
	"io"
	"log/slog"
	"sync"

	"supersim/internal/config"
	"supersim/internal/paths"
)

// Subsystems with their own level override in the logging section.
const (
	SubsystemAPI    = "api"
	SubsystemClient = "client"
)

// Factory builds loggers for the subsystems from the logging configuration.
// Precedence for the level: CLI override, subsystem setting, global setting.
type Factory struct {
	cfg config.LoggingConfig
	out io.Writer

	mu       sync.Mutex
	override *slog.Level
	file     io.WriteCloser
	loki     *LokiSink
}

// NewFactory creates a factory writing to out unless a log file is configured.
func NewFactory(cfg config.LoggingConfig, out io.Writer) *Factory {
	return &Factory{cfg: cfg, out: out}
}

// OverrideLevel forces every logger to the given level, e.g. from -v flags.
func (f *Factory) OverrideLevel(level slog.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = &level
}

// Logger returns a logger tagged with component=subsystem.
func (f *Factory) Logger(subsystem string) (*slog.Logger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	level := f.levelLocked(subsystem)
	w, err := f.writerLocked()
	if err != nil {
		return nil, err
	}
	handler := newHandler(w, level, f.cfg.Format)

	if f.cfg.Remote.Enabled {
		sink, err := f.lokiLocked()
		if err != nil {
			return nil, err
		}
		remoteLevel := level
		if f.cfg.Remote.Level != "" {
			remoteLevel = LevelFromString(f.cfg.Remote.Level)
		}
		handler = NewTeeHandler(handler, sink.Handler(remoteLevel))
	}

	return slog.New(handler).With("component", subsystem), nil
}

func (f *Factory) levelLocked(subsystem string) slog.Level {
	if f.override != nil {
		return *f.override
	}
	var sub string
	switch subsystem {
	case SubsystemAPI:
		sub = f.cfg.API
	case SubsystemClient:
		sub = f.cfg.Client
	}
	if sub != "" {
		return LevelFromString(sub)
	}
	if f.cfg.Level != "" {
		return LevelFromString(f.cfg.Level)
	}
	return slog.LevelInfo
}

func (f *Factory) writerLocked() (io.Writer, error) {
	if f.cfg.File == "" {
		return f.out, nil
	}
	if f.file == nil {
		rf, err := OpenRotatingFile(paths.Expand(f.cfg.File), ParseSize(f.cfg.MaxSize), f.cfg.MaxBackups)
		if err != nil {
			return nil, err
		}
		f.file = rf
	}
	return f.file, nil
}

func (f *Factory) lokiLocked() (*LokiSink, error) {
	if f.loki == nil {
		sink, err := NewLokiSink(f.cfg.Remote, map[string]string{"service": "supersim"})
		if err != nil {
			return nil, err
		}
		sink.Start()
		f.loki = sink
	}
	return f.loki, nil
}

// Close flushes remote logs and closes the log file.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	if f.loki != nil {
		firstErr = f.loki.Close()
		f.loki = nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.file = nil
	}
	return firstErr
}
