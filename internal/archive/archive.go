// Package archive stores snapshots as zstd-compressed files so views can be
// inspected without the simulator.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"supersim/internal/errors"
	"supersim/internal/snapshot"
)

// Extension is the file extension of an archived snapshot.
const Extension = ".snap.zst"

// Meta describes an archived snapshot.
type Meta struct {
	ID      string    `json:"id"`
	Label   string    `json:"label,omitempty"`
	Tick    int64     `json:"tick"`
	Objects int       `json:"objects"`
	SavedAt time.Time `json:"savedAt"`
}

// Entry is an archived snapshot with its metadata.
type Entry struct {
	Meta     Meta
	Snapshot *snapshot.Snapshot
}

type envelope struct {
	Meta
	State json.RawMessage `json:"state"`
}

// NewMeta creates metadata for snap with a fresh identifier.
func NewMeta(snap *snapshot.Snapshot, label string) Meta {
	return Meta{
		ID:      uuid.New().String(),
		Label:   label,
		Tick:    snap.Tick(),
		Objects: snap.Len(),
		SavedAt: time.Now().UTC(),
	}
}

// Write compresses snap with its metadata into w.
func Write(w io.Writer, meta Meta, snap *snapshot.Snapshot) error {
	state, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	data, err := json.Marshal(envelope{Meta: meta, State: state})
	if err != nil {
		return fmt.Errorf("failed to encode archive: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("failed to compress archive: %w", err)
	}
	return enc.Close()
}

// Read decompresses an archive written by Write.
func Read(r io.Reader) (*Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot decompress archive", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.New(errors.MalformedSnapshot, "cannot decode archive", err)
	}
	if len(env.State) == 0 {
		return nil, errors.Newf(errors.MalformedSnapshot, "archive %s has no state", env.ID)
	}
	snap, err := snapshot.Decode(bytes.NewReader(env.State))
	if err != nil {
		return nil, err
	}
	return &Entry{Meta: env.Meta, Snapshot: snap}, nil
}

// Store keeps archives in one directory, one file per snapshot.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Open creates the directory if needed.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", errors.Newf(errors.ObjectNotFound, "invalid archive id %q", id)
	}
	return filepath.Join(s.dir, id+Extension), nil
}

// Save archives snap and returns its metadata.
func (s *Store) Save(snap *snapshot.Snapshot, label string) (Meta, error) {
	meta := NewMeta(snap, label)
	path, err := s.path(meta.ID)
	if err != nil {
		return Meta{}, err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to create archive: %w", err)
	}
	if err := Write(f, meta, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return Meta{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return Meta{}, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Meta{}, fmt.Errorf("failed to store archive: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("Snapshot archived", "id", meta.ID, "tick", meta.Tick, "path", path)
	}
	return meta, nil
}

// Load reads one archive.
func (s *Store) Load(id string) (*Entry, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ObjectNotFound, "no archive %s", id)
		}
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// List returns the metadata of every archive, newest first. Unreadable files are
// skipped.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	metas := []Meta{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		entry, err := s.Load(strings.TrimSuffix(e.Name(), Extension))
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("Skipping unreadable archive", "file", e.Name(), "error", err.Error())
			}
			continue
		}
		metas = append(metas, entry.Meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].SavedAt.After(metas[j].SavedAt) })
	return metas, nil
}

// Delete removes one archive.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ObjectNotFound, "no archive %s", id)
		}
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}
