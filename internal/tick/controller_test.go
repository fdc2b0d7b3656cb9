package tick

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersim/internal/errors"
	"supersim/internal/isa"
	"supersim/internal/slogutil"
	"supersim/internal/snapshot"
)

// fakeSim computes a deterministic state from the tick and the program.
type fakeSim struct {
	mu       sync.Mutex
	requests []int64
	fail     map[int64]error
	gates    map[int64]chan struct{}
	started  map[int64]chan struct{}
}

func newFakeSim() *fakeSim {
	return &fakeSim{
		fail:    map[int64]error{},
		gates:   map[int64]chan struct{}{},
		started: map[int64]chan struct{}{},
	}
}

func (f *fakeSim) Simulate(ctx context.Context, tick int64, cfg isa.SimulationConfig) (*snapshot.Snapshot, error) {
	f.mu.Lock()
	f.requests = append(f.requests, tick)
	gate := f.gates[tick]
	started := f.started[tick]
	err := f.fail[tick]
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	doc := fmt.Sprintf(`{"tick":%d,"reorderBufferState":{"@id":1,"bufferSize":%d,"code":%q}}`,
		tick, cfg.CpuConfig.RobSize, cfg.Code)
	return snapshot.DecodeBytes([]byte(doc))
}

func newController(sim Simulator) *Controller {
	cfg := isa.DefaultSimulationConfig().WithCode("addi x1, x0, 1")
	return NewController(sim, cfg, slogutil.NewDiscardLogger())
}

func TestController_InitialState(t *testing.T) {
	c := newController(newFakeSim())

	assert.Equal(t, Idle, c.Status().State)
	assert.Equal(t, int64(0), c.CurrentTick())
	_, err := c.Snapshot()
	assert.Equal(t, errors.NoSnapshot, errors.CodeOf(err))
}

func TestController_RequestReady(t *testing.T) {
	c := newController(newFakeSim())

	snap, err := c.Request(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Tick())

	st := c.Status()
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, int64(5), st.Tick)
	assert.Equal(t, uint64(1), st.Generation)

	got, err := c.Snapshot()
	require.NoError(t, err)
	assert.Same(t, snap, got)
}

func TestController_Steps(t *testing.T) {
	sim := newFakeSim()
	c := newController(sim)
	ctx := context.Background()

	_, err := c.StepBackward(ctx)
	require.NoError(t, err)
	_, err = c.StepForward(ctx)
	require.NoError(t, err)
	_, err = c.StepForward(ctx)
	require.NoError(t, err)
	_, err = c.StepBackward(ctx)
	require.NoError(t, err)
	_, err = c.Reload(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1, 2, 1, 0}, sim.requests)
	assert.Equal(t, int64(0), c.CurrentTick())
}

func TestController_TickRoundTrip(t *testing.T) {
	c := newController(newFakeSim())
	ctx := context.Background()

	first, err := c.Request(ctx, 0)
	require.NoError(t, err)
	_, err = c.Request(ctx, 5)
	require.NoError(t, err)
	again, err := c.Request(ctx, 0)
	require.NoError(t, err)

	assert.NotSame(t, first, again)
	a, err := first.Marshal()
	require.NoError(t, err)
	b, err := again.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestController_FailureDiscardsSnapshot(t *testing.T) {
	sim := newFakeSim()
	sim.fail[3] = errors.Newf(errors.BackendUnavailable, "network response was not ok: 502")
	c := newController(sim)
	ctx := context.Background()

	_, err := c.Request(ctx, 2)
	require.NoError(t, err)

	_, err = c.Request(ctx, 3)
	assert.Equal(t, errors.BackendUnavailable, errors.CodeOf(err))

	st := c.Status()
	assert.Equal(t, Failed, st.State)
	assert.Equal(t, int64(3), st.Tick)
	assert.Equal(t, string(errors.BackendUnavailable), st.ErrorCode)

	_, err = c.Snapshot()
	assert.Equal(t, errors.NoSnapshot, errors.CodeOf(err))
	assert.Equal(t, int64(0), c.CurrentTick())

	// no automatic retry
	assert.Equal(t, []int64{2, 3}, sim.requests)
}

func TestController_StaleResponseDiscarded(t *testing.T) {
	sim := newFakeSim()
	sim.gates[5] = make(chan struct{})
	sim.started[5] = make(chan struct{})
	c := newController(sim)
	ctx := context.Background()

	slowErr := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, 5)
		slowErr <- err
	}()
	<-sim.started[5]

	fast, err := c.Request(ctx, 1)
	require.NoError(t, err)

	close(sim.gates[5])
	err = <-slowErr
	assert.Equal(t, errors.StaleResponse, errors.CodeOf(err))

	shown, err := c.Snapshot()
	require.NoError(t, err)
	assert.Same(t, fast, shown)
	assert.Equal(t, Ready, c.Status().State)
	assert.Equal(t, int64(1), c.Status().Tick)
	assert.Equal(t, uint64(2), c.Status().Generation)
}

func TestController_StaleFailureKeepsSnapshot(t *testing.T) {
	sim := newFakeSim()
	sim.gates[4] = make(chan struct{})
	sim.started[4] = make(chan struct{})
	sim.fail[4] = errors.Newf(errors.BackendUnavailable, "timeout")
	c := newController(sim)
	ctx := context.Background()

	slowErr := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, 4)
		slowErr <- err
	}()
	<-sim.started[4]

	_, err := c.Request(ctx, 2)
	require.NoError(t, err)
	close(sim.gates[4])

	assert.Equal(t, errors.StaleResponse, errors.CodeOf(<-slowErr))
	_, err = c.Snapshot()
	assert.NoError(t, err)
}

func TestController_SetConfig(t *testing.T) {
	c := newController(newFakeSim())
	cfg := c.Config()
	cfg.CpuConfig.RobSize = 16
	cfg.Code = "nop"
	c.SetConfig(cfg)

	snap, err := c.Request(context.Background(), 0)
	require.NoError(t, err)
	rob, ok := snap.Block(snapshot.BlockReorderBuffer)
	require.True(t, ok)
	size, _ := rob.(*snapshot.Object).Int("bufferSize")
	assert.Equal(t, int64(16), size)
}

func TestController_Subscribe(t *testing.T) {
	c := newController(newFakeSim())

	var mu sync.Mutex
	var seen []State
	unsubscribe := c.Subscribe(func(st Status) {
		mu.Lock()
		seen = append(seen, st.State)
		mu.Unlock()
	})

	_, err := c.Request(context.Background(), 1)
	require.NoError(t, err)
	unsubscribe()
	_, err = c.Request(context.Background(), 2)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Requesting, Ready}, seen)
}

func TestController_StatusCarriesCommittedResult(t *testing.T) {
	sim := newFakeSim()
	sim.fail[1] = errors.Newf(errors.BackendRejected, "boom")
	c := newController(sim)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []Status
	defer c.Subscribe(func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})()

	_, err := c.Request(ctx, 1)
	require.Error(t, err)
	snap, err := c.Request(ctx, 2)
	require.NoError(t, err)
	assert.NoError(t, c.Err())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)

	failed := seen[1]
	assert.Equal(t, Failed, failed.State)
	assert.Nil(t, failed.Snapshot)
	assert.Equal(t, errors.BackendRejected, errors.CodeOf(failed.Err))
	assert.Contains(t, failed.Err.Error(), "boom")

	ready := seen[3]
	assert.Equal(t, Ready, ready.State)
	assert.Same(t, snap, ready.Snapshot)
	assert.NoError(t, ready.Err)
	assert.True(t, ready.Newer(failed))
	assert.False(t, failed.Newer(ready))
}

func TestState_MarshalText(t *testing.T) {
	b, err := Failed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(b))
	assert.Equal(t, "idle", Idle.String())

	var st State
	require.NoError(t, st.UnmarshalText([]byte("ready")))
	assert.Equal(t, Ready, st)
	assert.Error(t, st.UnmarshalText([]byte("paused")))
}
