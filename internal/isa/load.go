package isa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported configuration format %q", s)
}

// FormatFromPath derives the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// LoadCpuConfig reads a CPU configuration file. Keys missing from the file keep
// their default values; a unit list in the file replaces the default units
// entirely. The result is validated.
func LoadCpuConfig(path string) (CpuConfig, error) {
	cfg := DefaultCpuConfig()
	units := cfg.FUnits
	cfg.FUnits = nil
	if err := decodeFile(path, &cfg); err != nil {
		return CpuConfig{}, err
	}
	if cfg.FUnits == nil {
		cfg.FUnits = units
	}
	if err := cfg.Validate(); err != nil {
		return CpuConfig{}, err
	}
	return cfg, nil
}

// LoadSimulationConfig reads a complete simulation configuration file.
func LoadSimulationConfig(path string) (SimulationConfig, error) {
	cfg := DefaultSimulationConfig()
	units := cfg.CpuConfig.FUnits
	cfg.CpuConfig.FUnits = nil
	if err := decodeFile(path, &cfg); err != nil {
		return SimulationConfig{}, err
	}
	if cfg.CpuConfig.FUnits == nil {
		cfg.CpuConfig.FUnits = units
	}
	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, err
	}
	return cfg, nil
}

func decodeFile(path string, v interface{}) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := Decode(data, format, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Decode parses data in the given format into v. Unknown keys are rejected.
func Decode(data []byte, format Format, v interface{}) error {
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	case FormatTOML:
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(v)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown key %q", undecoded[0].String())
		}
		return nil
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(v)
	}
	return fmt.Errorf("unsupported configuration format %q", format)
}

// Encode renders v in the given format.
func Encode(v interface{}, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatTOML:
		return gotoml.Marshal(v)
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported configuration format %q", format)
}

// SaveFile writes v to path in the format implied by its extension.
func SaveFile(path string, v interface{}) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(v, format)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
