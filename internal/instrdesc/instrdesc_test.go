package instrdesc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "supersim/internal/errors"
	"supersim/internal/slogutil"
)

type fakeFetcher struct {
	calls  atomic.Int32
	delay  time.Duration
	err    error
	models map[string]Description
}

func (f *fakeFetcher) InstructionDescriptions(ctx context.Context) (map[string]Description, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.models, nil
}

func newFetcher() *fakeFetcher {
	return &fakeFetcher{models: map[string]Description{
		"add":  {Name: "add", InstructionType: "kArithmetic", InterpretableAs: "\\rd = \\rs1 + \\rs2;"},
		"addi": {Name: "addi", InstructionType: "kArithmetic", InterpretableAs: "\\rd = \\rs1 + \\imm;"},
	}}
}

func TestService_NotLoaded(t *testing.T) {
	svc := NewService(newFetcher(), slogutil.NewDiscardLogger())

	assert.Equal(t, NotLoaded, svc.State())
	_, _, err := svc.Lookup("add")
	assert.Equal(t, ierrors.NotLoaded, ierrors.CodeOf(err))

	_, err = svc.Names()
	assert.Equal(t, ierrors.NotLoaded, ierrors.CodeOf(err))
}

func TestService_Load(t *testing.T) {
	f := newFetcher()
	svc := NewService(f, slogutil.NewDiscardLogger())

	require.NoError(t, svc.Load(context.Background()))
	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, int32(1), f.calls.Load(), "second Load must not refetch")
	assert.Equal(t, Loaded, svc.State())

	d, ok, err := svc.Lookup("addi")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kArithmetic", d.InstructionType)

	_, ok, err = svc.Lookup("fmadd")
	require.NoError(t, err)
	assert.False(t, ok)

	names, err := svc.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "addi"}, names)
	assert.Equal(t, 2, svc.Status().Count)
}

func TestService_ConcurrentLoadSharesRequest(t *testing.T) {
	f := newFetcher()
	f.delay = 50 * time.Millisecond
	svc := NewService(f, slogutil.NewDiscardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Load(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestService_Failed(t *testing.T) {
	f := newFetcher()
	f.err = errors.New("connection refused")
	svc := NewService(f, slogutil.NewDiscardLogger())

	err := svc.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, svc.State())
	assert.Equal(t, "failed", svc.Status().State)

	_, _, err = svc.Lookup("add")
	assert.Equal(t, ierrors.NotLoaded, ierrors.CodeOf(err))
	assert.ErrorContains(t, err, "connection refused")

	// recovers on the next attempt
	f.err = nil
	require.NoError(t, svc.Load(context.Background()))
	assert.Equal(t, Loaded, svc.State())
}

func TestService_FailedReloadKeepsTable(t *testing.T) {
	f := newFetcher()
	svc := NewService(f, slogutil.NewDiscardLogger())
	require.NoError(t, svc.Load(context.Background()))

	f.err = errors.New("timeout")
	assert.Error(t, svc.Reload(context.Background()))
	assert.Equal(t, Loaded, svc.State())

	_, ok, err := svc.Lookup("add")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWordAt(t *testing.T) {
	text := "loop: addi x1, x1, 1\n  add x2, x1, x1"

	tests := []struct {
		name     string
		pos      int
		side     int
		wantWord string
		wantFrom int
		wantOK   bool
	}{
		{"inside word", 7, 0, "addi", 6, true},
		{"word start side after", 6, 1, "addi", 6, true},
		{"word start side before", 6, -1, "", 0, false},
		{"word end side before", 10, -1, "addi", 6, true},
		{"word end side after", 10, 1, "", 0, false},
		{"label", 2, 0, "loop", 0, true},
		{"second line", 24, 0, "add", 23, true},
		{"on separator", 14, 0, "", 0, false},
		{"out of range", 100, 0, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, from, _, ok := WordAt(text, tt.pos, tt.side)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantWord, word)
			if ok {
				assert.Equal(t, tt.wantFrom, from)
			}
		})
	}
}

func TestService_Hover(t *testing.T) {
	svc := NewService(newFetcher(), slogutil.NewDiscardLogger())

	_, err := svc.Hover("addi x1", 1, 0)
	assert.Equal(t, ierrors.NotLoaded, ierrors.CodeOf(err))

	require.NoError(t, svc.Load(context.Background()))

	h, err := svc.Hover("  addi x1, x0, 5", 3, 0)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "addi", h.Word)
	assert.Equal(t, 2, h.From)
	assert.Equal(t, 6, h.To)

	h, err = svc.Hover("  addi x1, x0, 5", 8, 0)
	require.NoError(t, err)
	assert.Nil(t, h, "x1 is not an instruction")
}
