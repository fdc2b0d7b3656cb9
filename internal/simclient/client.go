// Package simclient is the HTTP client for the simulator backend. Every call is a
// single POST with a JSON body; nothing is retried.
package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"supersim/internal/errors"
	"supersim/internal/metrics"
)

const (
	// DefaultTimeout bounds one round trip. Long simulations can take a while.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps a response body (64 MiB).
	DefaultMaxBodySize int64 = 64 << 20

	userAgent = "supersim-client/1.0"
)

// Endpoint names, appended to the base URL.
const (
	EndpointSimulate               = "simulate"
	EndpointParseAsm               = "parseAsm"
	EndpointCompile                = "compile"
	EndpointInstructionDescription = "instructionDescription"
)

var tracer = otel.Tracer("supersim.simclient")

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxBodySize int64

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one simulator backend.
type Client struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	maxBody int64
	logger  *slog.Logger
}

// New creates a client for the backend at opts.BaseURL.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.Newf(errors.InvalidConfig, "backend URL is required")
	}
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf(errors.InvalidConfig, "invalid backend URL %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	c := &Client{
		base:    u,
		client:  httpClient,
		maxBody: maxBody,
		logger:  logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the backend URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpointURL(endpoint string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + endpoint
	return u.String()
}

// post sends body to endpoint and returns the raw response body of a 2xx reply.
func (c *Client) post(ctx context.Context, endpoint string, body interface{}) (data []byte, err error) {
	ctx, span := tracer.Start(ctx, "simclient."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("backend.url", c.base.String())),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.BackendRequests.WithLabelValues(endpoint, outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(errors.BackendUnavailable, "request pacing aborted", err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to marshal request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.logger != nil {
		c.logger.Debug("Calling simulator", "endpoint", endpoint, "bytes", len(payload))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.BackendUnavailable, fmt.Sprintf("%s request failed", endpoint), err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	// Read one byte past the limit to detect truncation
	data, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.New(errors.BackendUnavailable, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseErrorResponse(endpoint, resp.StatusCode, data)
	}
	if int64(len(data)) > c.maxBody {
		return nil, errors.Newf(errors.MalformedSnapshot, "%s response exceeds %d bytes", endpoint, c.maxBody)
	}
	return data, nil
}

// ServerError is the body the simulator sends with a 400 reply.
type ServerError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// RejectionDetails is attached to BACKEND_REJECTED errors.
type RejectionDetails struct {
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
}

// parseErrorResponse maps a non-2xx reply. Only 400 carries a validated error body;
// every other status is a transport failure.
func (c *Client) parseErrorResponse(endpoint string, statusCode int, body []byte) error {
	if statusCode != http.StatusBadRequest {
		return errors.Newf(errors.BackendUnavailable, "%s: network response was not ok: %d", endpoint, statusCode)
	}

	var se ServerError
	if err := json.Unmarshal(body, &se); err != nil || se.Message == "" {
		se.Message = strings.TrimSpace(string(body))
		if se.Message == "" {
			se.Message = http.StatusText(statusCode)
		}
	}
	if c.logger != nil {
		c.logger.Warn("Simulator rejected request", "endpoint", endpoint, "kind", se.Kind, "message", se.Message)
	}
	return errors.Newf(errors.BackendRejected, "server error: %s", se.Message).WithDetails(RejectionDetails{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Message:    se.Message,
		Kind:       se.Kind,
	})
}

// Rejection returns the backend message of a BACKEND_REJECTED error.
func Rejection(err error) (RejectionDetails, bool) {
	var e *errors.Error
	if !errors.As(err, &e) || e.Code != errors.BackendRejected {
		return RejectionDetails{}, false
	}
	d, ok := e.Details.(RejectionDetails)
	return d, ok
}

func outcome(err error) string {
	switch errors.CodeOf(err) {
	case "":
		if err == nil {
			return "ok"
		}
		return "error"
	case errors.BackendRejected:
		return "rejected"
	case errors.BackendUnavailable:
		return "unavailable"
	case errors.MalformedSnapshot, errors.UnresolvedReference:
		return "malformed"
	default:
		return "error"
	}
}
