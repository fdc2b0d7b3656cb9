package slogutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"supersim/internal/config"
)

const lokiPushPath = "/loki/api/v1/push"

// LokiSink batches log lines and pushes them to a Grafana Loki endpoint, one
// stream per level.
type LokiSink struct {
	endpoint string
	labels   map[string]string
	batch    int
	interval time.Duration
	client   *http.Client

	mu      sync.Mutex
	pending []lokiLine
	sends   sync.WaitGroup

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type lokiLine struct {
	at    time.Time
	level string
	text  string
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// NewLokiSink creates a sink from the remote logging section. baseLabels are
// overridden by configured labels; "host" defaults to the hostname.
func NewLokiSink(cfg config.RemoteLogConfig, baseLabels map[string]string) (*LokiSink, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("loki endpoint is required")
	}

	labels := map[string]string{}
	for k, v := range baseLabels {
		labels[k] = v
	}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	if _, ok := labels["host"]; !ok {
		if host, err := os.Hostname(); err == nil {
			labels["host"] = host
		}
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	interval := 5 * time.Second
	if cfg.FlushInterval != "" {
		d, err := time.ParseDuration(cfg.FlushInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid flush interval %q: %w", cfg.FlushInterval, err)
		}
		if d > 0 {
			interval = d
		}
	}

	return &LokiSink{
		endpoint: cfg.Endpoint + lokiPushPath,
		labels:   labels,
		batch:    batch,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the periodic flush until Close.
func (s *LokiSink) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Flush()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the flush loop, pushes what is left and waits for in-flight pushes.
func (s *LokiSink) Close() error {
	s.once.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
	s.Flush()
	s.sends.Wait()
	return nil
}

// Flush pushes the pending lines asynchronously.
func (s *LokiSink) Flush() {
	s.mu.Lock()
	req, ok := s.takeLocked()
	s.mu.Unlock()
	if ok {
		s.push(req)
	}
}

func (s *LokiSink) add(l lokiLine) {
	s.mu.Lock()
	s.pending = append(s.pending, l)
	var (
		req lokiPush
		ok  bool
	)
	if len(s.pending) >= s.batch {
		req, ok = s.takeLocked()
	}
	s.mu.Unlock()
	if ok {
		s.push(req)
	}
}

func (s *LokiSink) takeLocked() (lokiPush, bool) {
	if len(s.pending) == 0 {
		return lokiPush{}, false
	}
	byLevel := map[string][][2]string{}
	for _, l := range s.pending {
		byLevel[l.level] = append(byLevel[l.level], [2]string{strconv.FormatInt(l.at.UnixNano(), 10), l.text})
	}
	s.pending = s.pending[:0]

	levels := make([]string, 0, len(byLevel))
	for lvl := range byLevel {
		levels = append(levels, lvl)
	}
	sort.Strings(levels)

	var req lokiPush
	for _, lvl := range levels {
		stream := make(map[string]string, len(s.labels)+1)
		for k, v := range s.labels {
			stream[k] = v
		}
		stream["level"] = lvl
		req.Streams = append(req.Streams, lokiStream{Stream: stream, Values: byLevel[lvl]})
	}
	return req, true
}

// push is best effort: a failing log shipper must not feed back into logging.
func (s *LokiSink) push(req lokiPush) {
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		body, err := json.Marshal(req)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
		defer cancel()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(httpReq)
		if err != nil {
			return
		}
		_ = resp.Body.Close()
	}()
}

// Handler returns a slog.Handler feeding the sink at the given level.
func (s *LokiSink) Handler(level slog.Level) slog.Handler {
	return &lokiHandler{sink: s, level: level}
}

type lokiHandler struct {
	sink   *LokiSink
	level  slog.Level
	prefix string
	attrs  []slog.Attr
}

func (h *lokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *lokiHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString("msg=")
	buf.WriteString(strconv.Quote(r.Message))
	write := func(a slog.Attr) {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteByte('=')
		if a.Value.Kind() == slog.KindString {
			buf.WriteString(strconv.Quote(a.Value.String()))
		} else {
			buf.WriteString(formatValue(a.Value))
		}
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, flat := range flatten(h.prefix, a) {
			write(flat)
		}
		return true
	})

	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	h.sink.add(lokiLine{at: at, level: levelString(r.Level), text: buf.String()})
	return nil
}

func (h *lokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), flattenAll(h.prefix, attrs)...)
	return &next
}

func (h *lokiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func flattenAll(prefix string, attrs []slog.Attr) []slog.Attr {
	var out []slog.Attr
	for _, a := range attrs {
		out = append(out, flatten(prefix, a)...)
	}
	return out
}
