package simclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersim/internal/errors"
	"supersim/internal/isa"
	"supersim/internal/slogutil"
	"supersim/internal/testutil"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL + "/api/sim/"}, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	return c
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "localhost:8000", "://bad"} {
		_, err := New(Options{BaseURL: raw}, nil)
		assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err), "url %q", raw)
	}
}

func TestClient_Simulate(t *testing.T) {
	fixture := testutil.LoadFixture(t, "basic")

	var got SimulateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/sim/simulate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"state":%s,"executedSteps":3}`, fixture.Data)
	})

	cfg := isa.DefaultSimulationConfig().WithCode("addi x1, x0, 5")
	res, err := c.Run(context.Background(), 3, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.Tick)
	assert.Equal(t, "addi x1, x0, 5", got.Config.Code)
	assert.Equal(t, 256, got.Config.CpuConfig.RobSize)

	assert.Equal(t, int64(3), res.ExecutedSteps)
	assert.Equal(t, int64(3), res.Snapshot.Tick())
	assert.Equal(t, 27, res.Snapshot.Len())
}

func TestClient_TickRoundTrip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SimulateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = fmt.Fprintf(w, `{"state":{"tick":%d,"reorderBufferState":{"@id":1,"bufferSize":%d,"reorderQueue":[]}},"executedSteps":%d}`,
			req.Tick, req.Config.CpuConfig.RobSize, req.Tick)
	})

	cfg := isa.DefaultSimulationConfig()
	ctx := context.Background()

	first, err := c.Simulate(ctx, 0, cfg)
	require.NoError(t, err)
	five, err := c.Simulate(ctx, 5, cfg)
	require.NoError(t, err)
	again, err := c.Simulate(ctx, 0, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(5), five.Tick())
	assert.NotSame(t, first, again)

	a, err := first.Marshal()
	require.NoError(t, err)
	b, err := again.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errors.ErrorCode
	}{
		{"validated rejection", http.StatusBadRequest, `{"message":"robSize out of range","kind":"config"}`, errors.BackendRejected},
		{"rejection without json", http.StatusBadRequest, `bad request`, errors.BackendRejected},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, errors.BackendUnavailable},
		{"not found", http.StatusNotFound, ``, errors.BackendUnavailable},
		{"null state", http.StatusOK, `{"state":null,"executedSteps":0}`, errors.BackendRejected},
		{"missing state", http.StatusOK, `{"executedSteps":0}`, errors.MalformedSnapshot},
		{"not json", http.StatusOK, `<html>`, errors.MalformedSnapshot},
		{"state not an object", http.StatusOK, `{"state":[1,2]}`, errors.MalformedSnapshot},
		{"dangling reference", http.StatusOK, `{"state":{"tick":1,"cache":{"@ref":9}}}`, errors.UnresolvedReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Simulate(context.Background(), 1, isa.DefaultSimulationConfig())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err), err.Error())
		})
	}
}

func TestClient_RejectionDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"robSize out of range","kind":"config"}`)
	})

	_, err := c.Simulate(context.Background(), 1, isa.DefaultSimulationConfig())
	d, ok := Rejection(err)
	require.True(t, ok)
	assert.Equal(t, "robSize out of range", d.Message)
	assert.Equal(t, "config", d.Kind)
	assert.Equal(t, EndpointSimulate, d.Endpoint)
	assert.Equal(t, http.StatusBadRequest, d.StatusCode)
	assert.Contains(t, err.Error(), "robSize out of range")

	_, ok = Rejection(errors.Newf(errors.BackendUnavailable, "down"))
	assert.False(t, ok)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: url, Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = c.Simulate(context.Background(), 0, isa.DefaultSimulationConfig())
	assert.Equal(t, errors.BackendUnavailable, errors.CodeOf(err))
}

func TestClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"state":{"tick":1,"padding":"0123456789012345678901234567890123456789"}}`)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, MaxBodySize: 32}, nil)
	require.NoError(t, err)

	_, err = c.Simulate(context.Background(), 1, isa.DefaultSimulationConfig())
	assert.Equal(t, errors.MalformedSnapshot, errors.CodeOf(err))
}

func TestClient_RequestPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"state":{"tick":0}}`)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, RequestsPerSecond: 0.01, Burst: 1}, nil)
	require.NoError(t, err)

	_, err = c.Simulate(context.Background(), 0, isa.DefaultSimulationConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Simulate(ctx, 0, isa.DefaultSimulationConfig())
	assert.Equal(t, errors.BackendUnavailable, errors.CodeOf(err))
}

func TestClient_ParseAsm(t *testing.T) {
	var got ParseAsmRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sim/parseAsm", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":false,"errors":[
			{"message":"Unknown instruction","kind":"error","locations":[{"caret":{"line":2,"display-column":1},"finish":{"line":2,"display-column":3}}]}
		]}`)
	})

	resp, err := c.ParseAsm(context.Background(), "add x1\nmul x2", nil)
	require.NoError(t, err)

	assert.Equal(t, "add x1\nmul x2", got.Code)
	assert.NotNil(t, got.MemoryLocations)
	assert.False(t, resp.Success)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Unknown instruction", resp.Errors[0].Message)
	require.Len(t, resp.Errors[0].Locations, 1)
	assert.Equal(t, 2, resp.Errors[0].Locations[0].Caret.Line)
	require.NotNil(t, resp.Errors[0].Locations[0].Finish)
	assert.Equal(t, 3, resp.Errors[0].Locations[0].Finish.Column)
}

func TestClient_Compile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req CompileRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"-O2"}, req.OptimizeFlags)
		_, _ = io.WriteString(w, `{"success":true,"program":"main:\n  ret","asmToC":[1,2],"compilerErrors":[]}`)
	})

	resp, err := c.Compile(context.Background(), "int main() { return 0; }", []string{"-O2"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "main:\n  ret", resp.Program)
	assert.Equal(t, []int{1, 2}, resp.AsmToC)
	assert.Empty(t, resp.CompilerErrors)
}

func TestClient_InstructionDescriptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sim/instructionDescription", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":{
			"add":{"@id":1,"@type":"InstructionFunctionModel","name":"add","instructionType":"kArithmetic",
				"arguments":{"@id":2,"@items":[{"name":"rd","type":"kInt","writeBack":true},{"name":"rs1","type":"kInt"}]}},
			"sub":{"@id":3,"name":"sub","instructionType":"kArithmetic","arguments":{"@ref":2}}
		}}`)
	})

	models, err := c.InstructionDescriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "kArithmetic", models["add"].InstructionType)
	require.Len(t, models["sub"].Arguments, 2)
	assert.Equal(t, "rd", models["sub"].Arguments[0].Name)
	assert.True(t, models["sub"].Arguments[0].WriteBack)
}
