package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersim/internal/archive"
	"supersim/internal/diagnostics"
	"supersim/internal/errors"
	"supersim/internal/instrdesc"
	"supersim/internal/isa"
	"supersim/internal/resolve"
	"supersim/internal/session"
	"supersim/internal/simclient"
	"supersim/internal/slogutil"
	"supersim/internal/snapshot"
	"supersim/internal/storage"
	"supersim/internal/testutil"
	"supersim/internal/tick"
	"supersim/internal/views"
)

// fakeSim answers every tick with the basic fixture unless told to fail.
type fakeSim struct {
	mu   sync.Mutex
	data []byte
	err   error
	cfgs  []isa.SimulationConfig
	ticks []int64
}

func (f *fakeSim) Simulate(ctx context.Context, t int64, cfg isa.SimulationConfig) (*snapshot.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgs = append(f.cfgs, cfg)
	f.ticks = append(f.ticks, t)
	if f.err != nil {
		return nil, f.err
	}
	return snapshot.DecodeBytes(f.data)
}

func (f *fakeSim) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSim) lastTick() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks[len(f.ticks)-1]
}

func (f *fakeSim) lastConfig() isa.SimulationConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgs[len(f.cfgs)-1]
}

type fakeFetcher struct{}

func (fakeFetcher) InstructionDescriptions(ctx context.Context) (map[string]instrdesc.Description, error) {
	return map[string]instrdesc.Description{
		"add":  {Name: "add", InstructionType: "kArithmetic"},
		"addi": {Name: "addi", InstructionType: "kArithmetic"},
	}, nil
}

type fakeDiagnoser struct {
	parse   *simclient.ParseAsmResponse
	compile *simclient.CompileResponse
	err     error
}

func (f *fakeDiagnoser) ParseAsm(ctx context.Context, code string, memory []isa.MemoryLocation) (*simclient.ParseAsmResponse, error) {
	return f.parse, f.err
}

func (f *fakeDiagnoser) Compile(ctx context.Context, code string, flags []string) (*simclient.CompileResponse, error) {
	return f.compile, f.err
}

type testEnv struct {
	srv  *Server
	sim  *fakeSim
	sess *session.Session
	db   *storage.DB
	diag *fakeDiagnoser
}

func newTestEnv(t *testing.T, withStores bool) *testEnv {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	fixture := testutil.LoadFixture(t, "basic")

	sim := &fakeSim{data: fixture.Data}
	ctrl := tick.NewController(sim, isa.DefaultSimulationConfig(), logger)
	sel := views.NewSelectors(resolve.DefaultOptions())
	instr := instrdesc.NewService(fakeFetcher{}, logger)
	sess := session.New(ctrl, sel, instr, logger)
	t.Cleanup(sess.Close)

	env := &testEnv{sim: sim, sess: sess, diag: &fakeDiagnoser{}}
	opts := Options{Addr: "127.0.0.1:0", Session: sess, Diagnoser: env.diag, Logger: logger}
	if withStores {
		db, err := storage.Open(storage.MemoryPath, logger)
		require.NoError(t, err)
		require.NoError(t, db.SeedDefaultPreset())
		t.Cleanup(func() { _ = db.Close() })

		store, err := archive.Open(t.TempDir(), logger)
		require.NoError(t, err)

		env.db = db
		opts.DB = db
		opts.Archives = store
	}
	env.srv = NewServer(opts)
	t.Cleanup(env.srv.hub.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) reload(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/tick/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Code
}

func TestHealthAndRoot(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeJSON(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "supersim API", decodeJSON(t, rec)["name"])

	rec = env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	instrErr, simErr := env.sess.Start(context.Background())
	require.NoError(t, instrErr)
	require.NoError(t, simErr)

	rec = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ready", decodeJSON(t, rec)["status"])
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, true)
	env.reload(t)

	rec := env.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)

	controller := body["controller"].(map[string]interface{})
	assert.Equal(t, "ready", controller["state"])
	assert.Equal(t, float64(3), controller["tick"])
	assert.Equal(t, true, body["session"].(map[string]interface{})["hasSnapshot"])
	assert.Equal(t, storage.MemoryPath, body["storage"].(map[string]interface{})["database"])
}

func TestViews_NoSnapshot(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/views/registers", "/views/program", "/views/cache", "/views/issue/alu"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, path)
		assert.Equal(t, string(errors.NoSnapshot), errorCode(t, rec), path)
	}
}

func TestViews(t *testing.T) {
	env := newTestEnv(t, false)
	env.reload(t)

	rec := env.do(t, http.MethodGet, "/views/registers", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	keys := decodeJSON(t, rec)["keys"].([]interface{})
	assert.Contains(t, keys, "a0")

	rec = env.do(t, http.MethodGet, "/views/registers/a0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x1", decodeJSON(t, rec)["name"])

	rec = env.do(t, http.MethodGet, "/views/registers/t0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/views/issue/alu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeJSON(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/views/issue/vector", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.UnknownUnit), errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/views/issue/ls", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errors.BlockMissing), errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/views/units/alu", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/views/rob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decodeJSON(t, rec)["capacity"])

	for _, path := range []string{"/views/program", "/views/cache", "/views/fetch", "/views/decode"} {
		rec = env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec = env.do(t, http.MethodGet, "/views/objects/31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x1", decodeJSON(t, rec)["name"])
	assert.NotContains(t, rec.Body.String(), `"@ref"`)

	rec = env.do(t, http.MethodGet, "/views/objects/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/views/objects/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.InvalidRequest), errorCode(t, rec))
}

func TestTick(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/tick", map[string]int64{"tick": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TickResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Tick)
	assert.Equal(t, tick.Ready, resp.Status.State)
	assert.Positive(t, resp.Objects)

	rec = env.do(t, http.MethodPost, "/tick/forward", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, "/tick/backward", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/tick/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeJSON(t, rec)["state"])

	rec = env.do(t, http.MethodGet, "/tick", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTick_BadRequest(t *testing.T) {
	env := newTestEnv(t, false)

	for name, body := range map[string]string{
		"missing tick":  `{}`,
		"unknown field": `{"tick": 1, "speed": 2}`,
		"not json":      `tick=1`,
	} {
		rec := env.do(t, http.MethodPost, "/tick", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, string(errors.InvalidRequest), errorCode(t, rec), name)
	}
}

func TestTick_NegativeTickForwarded(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/tick", map[string]int64{"tick": -1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(-1), env.sim.lastTick())
}

func TestTick_BackendFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.reload(t)

	env.sim.fail(errors.Newf(errors.BackendRejected, "invalid cpu configuration"))
	rec := env.do(t, http.MethodPost, "/tick/forward", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	st := env.sess.Controller.Status()
	assert.Equal(t, tick.Failed, st.State)
	assert.Equal(t, string(errors.BackendRejected), st.ErrorCode)
	assert.Nil(t, env.sess.Snapshot())

	env.sim.fail(errors.Newf(errors.BackendUnavailable, "connection refused"))
	rec = env.do(t, http.MethodPost, "/tick/reload", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTickHistory(t *testing.T) {
	env := newTestEnv(t, true)
	require.NoError(t, env.db.RecordTick(0, 1, "requesting", ""))
	require.NoError(t, env.db.RecordTick(3, 1, "ready", ""))

	rec := env.do(t, http.MethodGet, "/tick/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, float64(1), body["count"])
	first := body["records"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "ready", first["state"])
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPut, "/session/code", SetCodeRequest{Code: "addi x1, x0, 7", Simulate: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "addi x1, x0, 7", env.sim.lastConfig().Code)
	assert.Equal(t, true, decodeJSON(t, rec)["hasSnapshot"])

	rec = env.do(t, http.MethodPost, "/session/highlight", map[string]int64{"id": 21})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(21), decodeJSON(t, rec)["highlightedSimCode"])

	rec = env.do(t, http.MethodPost, "/session/highlight", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// only the highlighted instruction clears the highlight
	rec = env.do(t, http.MethodPost, "/session/unhighlight", map[string]int64{"id": 20})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(21), decodeJSON(t, rec)["highlightedSimCode"])

	rec = env.do(t, http.MethodPost, "/session/unhighlight", map[string]int64{"id": 21})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeJSON(t, rec), "highlightedSimCode")

	rec = env.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(len("addi x1, x0, 7")), decodeJSON(t, rec)["codeLength"])
}

func TestDiagnostics(t *testing.T) {
	env := newTestEnv(t, false)
	finish := diagnostics.Position{Line: 2, Column: 3}
	env.diag.parse = &simclient.ParseAsmResponse{
		Success: false,
		Errors: []diagnostics.Item{{
			Message:   "unknown instruction",
			Kind:      "error",
			Locations: []diagnostics.Span{{Caret: diagnostics.Position{Line: 2, Column: 1}, Finish: &finish}},
		}},
	}

	rec := env.do(t, http.MethodPost, "/diagnostics/parse", ParseRequest{Code: "nop\nfoo x1\n"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var parsed ParseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	require.Len(t, parsed.Diagnostics, 1)
	assert.Equal(t, 4, parsed.Diagnostics[0].From)
	assert.Equal(t, 7, parsed.Diagnostics[0].To)
	assert.Equal(t, diagnostics.SeverityError, parsed.Diagnostics[0].Severity)

	env.diag.parse.Errors[0].Locations = nil
	rec = env.do(t, http.MethodPost, "/diagnostics/parse", ParseRequest{Code: "foo"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errors.MissingSpanLocation), errorCode(t, rec))

	env.diag.compile = &simclient.CompileResponse{Success: true, Program: "addi x1, x0, 1", AsmToC: []int{1}}
	rec = env.do(t, http.MethodPost, "/diagnostics/compile", CompileRequest{Code: "int main() { return 1; }"})
	require.Equal(t, http.StatusOK, rec.Code)
	var compiled CompileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &compiled))
	assert.True(t, compiled.Success)
	assert.Equal(t, []int{1}, compiled.AsmToC)
	assert.Empty(t, compiled.Diagnostics)

	env.diag.err = errors.Newf(errors.BackendUnavailable, "down")
	rec = env.do(t, http.MethodPost, "/diagnostics/compile", CompileRequest{Code: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/isa/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeJSON(t, rec)["count"])

	cfg := isa.DefaultCpuConfig()
	cfg.RobSize = 64
	rec = env.do(t, http.MethodPost, "/isa/presets", SavePresetRequest{Name: "wide", Config: cfg})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/isa/presets/wide", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p storage.Preset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 64, p.Config.RobSize)
	assert.Equal(t, "wide", p.Config.Name)

	bad := isa.DefaultCpuConfig()
	bad.RobSize = 0
	rec = env.do(t, http.MethodPost, "/isa/presets", SavePresetRequest{Name: "broken", Config: bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.InvalidConfig), errorCode(t, rec))

	rec = env.do(t, http.MethodDelete, "/isa/presets/wide", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/isa/presets/wide", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.PresetNotFound), errorCode(t, rec))
}

func TestPutConfig(t *testing.T) {
	env := newTestEnv(t, true)

	cfg := isa.DefaultCpuConfig()
	cfg.Name = "inline"
	cfg.FetchWidth = 4
	rec := env.do(t, http.MethodPut, "/isa/config", ConfigRequest{Config: &cfg, Reload: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, env.sim.lastConfig().CpuConfig.FetchWidth)

	rec = env.do(t, http.MethodPut, "/isa/config", ConfigRequest{Preset: "Default"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Default", env.sess.Controller.Config().CpuConfig.Name)

	rec = env.do(t, http.MethodGet, "/isa/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Default", decodeJSON(t, rec)["name"])

	rec = env.do(t, http.MethodPut, "/isa/config", ConfigRequest{Preset: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/isa/config", ConfigRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := isa.DefaultCpuConfig()
	bad.CacheReplacement = "MRU"
	rec = env.do(t, http.MethodPut, "/isa/config", ConfigRequest{Config: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.InvalidConfig), errorCode(t, rec))
	assert.Equal(t, "Default", env.sess.Controller.Config().CpuConfig.Name)
}

func TestInstructions(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/instructions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(errors.NotLoaded), errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/instructions/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/instructions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"add", "addi"}, decodeJSON(t, rec)["instructions"])

	rec = env.do(t, http.MethodGet, "/instructions/addi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kArithmetic", decodeJSON(t, rec)["instructionType"])

	rec = env.do(t, http.MethodGet, "/instructions/mul", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/instructions/hover", HoverRequest{Text: "addi x1, x0, 1", Pos: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var h instrdesc.Hover
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "addi", h.Word)
	assert.Equal(t, 0, h.From)
	assert.Equal(t, 4, h.To)

	rec = env.do(t, http.MethodPost, "/instructions/hover", HoverRequest{Text: "   ", Pos: 1})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestArchives(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/archives", SaveArchiveRequest{Label: "before"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.reload(t)
	rec = env.do(t, http.MethodPost, "/archives", SaveArchiveRequest{Label: "after reload"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var meta archive.Meta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, int64(3), meta.Tick)

	rec = env.do(t, http.MethodGet, "/archives", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeJSON(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/archives/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "after reload", decodeJSON(t, rec)["label"])

	rec = env.do(t, http.MethodGet, "/archives/"+meta.ID+"/views/registers?arg=a0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "x1", decodeJSON(t, rec)["name"])

	rec = env.do(t, http.MethodGet, "/archives/"+meta.ID+"/views/issue?arg=alu", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/archives/"+meta.ID+"/views/pipeline", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/archives/"+meta.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/archives/"+meta.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/archives/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWithoutStores(t *testing.T) {
	env := newTestEnv(t, false)

	for _, path := range []string{"/isa/presets", "/tick/history", "/archives"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Equal(t, string(errors.NotConfigured), errorCode(t, rec), path)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodOptions, "/tick", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.reload(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "supersim_tick_transitions_total")
}

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.UnresolvedReference, http.StatusBadGateway},
		{errors.MalformedSnapshot, http.StatusBadGateway},
		{errors.UnknownUnit, http.StatusBadRequest},
		{errors.BackendUnavailable, http.StatusServiceUnavailable},
		{errors.BackendRejected, http.StatusUnprocessableEntity},
		{errors.StaleResponse, http.StatusConflict},
		{errors.PresetNotFound, http.StatusNotFound},
		{errors.InternalError, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapErrorToStatus(tt.code), string(tt.code))
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t, false)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello StreamMessage
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, tick.Idle, hello.Status.State)

	resp, err := http.Post(ts.URL+"/tick/reload", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var states []tick.State
	for len(states) < 2 {
		var msg StreamMessage
		require.NoError(t, ws.ReadJSON(&msg))
		assert.Equal(t, "status", msg.Type)
		states = append(states, msg.Status.State)
	}
	assert.Equal(t, []tick.State{tick.Requesting, tick.Ready}, states)

	env.srv.hub.Close()
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)
}

func TestStreamHub_DropsSupersededTransitions(t *testing.T) {
	env := newTestEnv(t, false)
	hub := env.srv.hub
	client, ok := hub.add()
	require.True(t, ok)

	hub.broadcast(tick.Status{State: tick.Requesting, Tick: 2, Generation: 2})
	hub.broadcast(tick.Status{State: tick.Failed, Tick: 1, Generation: 1, Error: "boom"})
	hub.broadcast(tick.Status{State: tick.Ready, Tick: 2, Generation: 2})

	var got []tick.Status
	for len(client.send) > 0 {
		msg := <-client.send
		got = append(got, msg.Status)
	}
	require.Len(t, got, 2)
	assert.Equal(t, tick.Requesting, got[0].State)
	assert.Equal(t, tick.Ready, got[1].State)
	assert.Equal(t, uint64(2), got[1].Generation)
}
