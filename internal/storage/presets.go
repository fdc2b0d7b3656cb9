package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"supersim/internal/errors"
	"supersim/internal/isa"
)

// Preset is a named, stored CPU configuration.
type Preset struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Config      isa.CpuConfig `json:"config"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// SavePreset validates cfg and stores it under name, replacing an existing preset.
func (db *DB) SavePreset(name, description string, cfg isa.CpuConfig) (*Preset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Newf(errors.InvalidConfig, "preset name is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Name = name

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preset: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = db.Exec(`
		INSERT INTO isa_presets (name, description, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, name, description, string(data), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to save preset: %w", err)
	}

	db.logger.Debug("Preset saved", "name", name)
	return db.GetPreset(name)
}

// GetPreset loads one preset, or fails with PRESET_NOT_FOUND.
func (db *DB) GetPreset(name string) (*Preset, error) {
	row := db.QueryRow(`
		SELECT name, description, config, created_at, updated_at
		FROM isa_presets WHERE name = ?
	`, name)

	p, err := scanPreset(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.PresetNotFound, "no preset named %q", name)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPresets returns every preset ordered by name.
func (db *DB) ListPresets() ([]*Preset, error) {
	rows, err := db.Query(`
		SELECT name, description, config, created_at, updated_at
		FROM isa_presets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	presets := []*Preset{}
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

// DeletePreset removes a preset.
func (db *DB) DeletePreset(name string) error {
	res, err := db.Exec(`DELETE FROM isa_presets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.PresetNotFound, "no preset named %q", name)
	}
	return nil
}

// SeedDefaultPreset stores the stock configuration if no preset of that name exists.
func (db *DB) SeedDefaultPreset() error {
	def := isa.DefaultCpuConfig()
	if _, err := db.GetPreset(def.Name); err == nil {
		return nil
	} else if !errors.Is(err, errors.PresetNotFound) {
		return err
	}
	_, err := db.SavePreset(def.Name, "Stock configuration", def)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPreset(s rowScanner) (*Preset, error) {
	var (
		p                Preset
		config           string
		created, updated string
	)
	if err := s.Scan(&p.Name, &p.Description, &config, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return nil, errors.New(errors.InvalidConfig, fmt.Sprintf("stored preset %q is corrupt", p.Name), err)
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &p, nil
}
