// Package testutil provides CPU state fixtures and golden-file helpers for tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// FixtureContext holds information about a loaded CPU state fixture.
type FixtureContext struct {
	// Name is the fixture file name without extension (e.g., "basic")
	Name string

	// Path is the absolute path to the fixture document
	Path string

	// Data is the raw json-io document
	Data []byte

	// ExpectedDir is the path to the expected/ directory holding golden files
	ExpectedDir string
}

// LoadFixture loads testdata/fixtures/cpu/<name>.json, failing the test on error.
func LoadFixture(t *testing.T, name string) *FixtureContext {
	t.Helper()

	root := getFixturesRoot(t)
	path := filepath.Join(root, name+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Fixture not found: %s: %v", path, err)
	}

	return &FixtureContext{
		Name:        name,
		Path:        path,
		Data:        data,
		ExpectedDir: filepath.Join(root, "expected"),
	}
}

// ExpectedPath returns the path to a golden file for this fixture.
// The name should not include the .json extension.
func (f *FixtureContext) ExpectedPath(name string) string {
	return filepath.Join(f.ExpectedDir, f.Name+"_"+name+".json")
}

// getFixturesRoot returns the absolute path to testdata/fixtures/cpu.
func getFixturesRoot(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}

	// Navigate from internal/testutil to project root
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	fixturesRoot := filepath.Join(projectRoot, "testdata", "fixtures", "cpu")

	if _, err := os.Stat(fixturesRoot); os.IsNotExist(err) {
		t.Fatalf("Fixtures root not found: %s", fixturesRoot)
	}

	return fixturesRoot
}

// AvailableFixtures returns the names of every CPU state fixture, sorted.
func AvailableFixtures(t *testing.T) []string {
	t.Helper()

	root := getFixturesRoot(t)
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("Failed to read fixtures directory: %v", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}

// ForEachFixture runs fn once per available fixture as a subtest.
func ForEachFixture(t *testing.T, fn func(t *testing.T, fixture *FixtureContext)) {
	t.Helper()

	names := AvailableFixtures(t)
	if len(names) == 0 {
		t.Skip("No fixtures available")
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			fn(t, LoadFixture(t, name))
		})
	}
}
