package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supersim/internal/errors"
	"supersim/internal/isa"
	"supersim/internal/slogutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, db.Close())
	})
	return db
}

func TestDatabaseInitialization(t *testing.T) {
	logger := slogutil.NewDiscardLogger()
	dbPath := filepath.Join(t.TempDir(), "state", "supersim.db")

	db, err := Open(dbPath, logger)
	require.NoError(t, err)
	assert.FileExists(t, dbPath)

	version, err := db.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
	require.NoError(t, db.Close())

	// Reopening runs migrations against the existing file.
	db, err = Open(dbPath, logger)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, dbPath, db.Path())
}

func TestPresets(t *testing.T) {
	db := setupTestDB(t)

	cfg := isa.DefaultCpuConfig()
	cfg.RobSize = 32

	saved, err := db.SavePreset("small-rob", "Tiny reorder buffer", cfg)
	require.NoError(t, err)
	assert.Equal(t, 32, saved.Config.RobSize)
	assert.Equal(t, "small-rob", saved.Config.Name, "config takes the preset name")
	assert.False(t, saved.CreatedAt.IsZero())

	// Saving again replaces the configuration.
	cfg.RobSize = 64
	_, err = db.SavePreset("small-rob", "Less tiny", cfg)
	require.NoError(t, err)
	got, err := db.GetPreset("small-rob")
	require.NoError(t, err)
	assert.Equal(t, 64, got.Config.RobSize)
	assert.Equal(t, "Less tiny", got.Description)

	require.NoError(t, db.SeedDefaultPreset())
	require.NoError(t, db.SeedDefaultPreset(), "seeding twice")

	presets, err := db.ListPresets()
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, "Default", presets[0].Name)
	assert.Equal(t, "small-rob", presets[1].Name)

	require.NoError(t, db.DeletePreset("small-rob"))
	_, err = db.GetPreset("small-rob")
	assert.True(t, errors.Is(err, errors.PresetNotFound), "get after delete: %v", err)
	err = db.DeletePreset("small-rob")
	assert.True(t, errors.Is(err, errors.PresetNotFound), "delete twice: %v", err)
}

func TestSavePreset_Invalid(t *testing.T) {
	db := setupTestDB(t)

	cfg := isa.DefaultCpuConfig()
	cfg.RobSize = 0
	_, err := db.SavePreset("broken", "", cfg)
	assert.True(t, errors.Is(err, errors.InvalidConfig), "invalid config: %v", err)
	_, err = db.SavePreset("  ", "", isa.DefaultCpuConfig())
	assert.True(t, errors.Is(err, errors.InvalidConfig), "blank name: %v", err)

	presets, err := db.ListPresets()
	require.NoError(t, err)
	assert.Empty(t, presets)
}

func TestTickHistory(t *testing.T) {
	db := setupTestDB(t)

	records := []struct {
		tick  int64
		gen   uint64
		state string
		code  string
	}{
		{0, 1, "Requesting", ""},
		{0, 1, "Ready", ""},
		{1, 2, "Requesting", ""},
		{1, 2, "Ready", ""},
		{2, 3, "Requesting", ""},
		{1, 3, "Failed", "BACKEND_UNAVAILABLE"},
	}
	for _, r := range records {
		require.NoError(t, db.RecordTick(r.tick, r.gen, r.state, r.code))
	}

	recent, err := db.RecentTicks(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Failed", recent[0].State)
	assert.Equal(t, "BACKEND_UNAVAILABLE", recent[0].ErrorCode)
	assert.Equal(t, uint64(3), recent[0].Generation)
	assert.Equal(t, "Requesting", recent[1].State)
	assert.Equal(t, int64(2), recent[1].Tick)

	aggs, err := db.TickAggregates(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Contains(t, aggs, "Requesting")
	assert.Equal(t, int64(3), aggs["Requesting"].Count)
	assert.Equal(t, int64(2), aggs["Requesting"].LastTick)
	require.Contains(t, aggs, "Ready")
	assert.Equal(t, int64(2), aggs["Ready"].Count)

	future, err := db.TickAggregates(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, future)

	deleted, err := db.CleanupTickHistory(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(len(records)), deleted)
}

func TestWithTx_Rollback(t *testing.T) {
	db := setupTestDB(t)

	wantErr := errors.Newf(errors.InternalError, "abort")
	err := db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO tick_history (tick, generation, state, recorded_at) VALUES (1, 1, 'Ready', 'x')`); err != nil {
			return err
		}
		return wantErr
	})
	assert.Same(t, wantErr, err)

	recent, err := db.RecentTicks(10)
	require.NoError(t, err)
	assert.Empty(t, recent, "rolled back insert is visible")
}
