package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root from a map of relative path to content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// readTree returns the relative paths of all regular files under root.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	found := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		found[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return found
}

func newTestSeeder(t *testing.T, excludes []string) *Seeder {
	t.Helper()
	s, err := NewSeeder(Options{
		Excludes: excludes,
		OwnerUID: -1,
		OwnerGID: -1,
	})
	require.NoError(t, err)
	return s
}

func TestSeedCopiesTree(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"app.py":           "print('hi')",
		"static/index.css": "body {}",
		"data/seed.json":   "[]",
	})

	s := newTestSeeder(t, nil)
	res, err := s.Seed(context.Background(), dst, src, PolicyOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Copied)
	assert.False(t, res.Skipped)

	assert.Equal(t, map[string]string{
		"app.py":           "print('hi')",
		"static/index.css": "body {}",
		"data/seed.json":   "[]",
	}, readTree(t, dst))
}

func TestSeedAppliesExcludes(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"app.py":                  "x",
		".git/config":             "secret",
		".env":                    "OPENAI_API_KEY=abc",
		"node_modules/pkg/x.js":   "y",
		"__pycache__/app.pyc":     "z",
		"nested/.git/HEAD":        "ref",
		"deploy/sandboxctl.yaml":  "cfg",
	})

	s := newTestSeeder(t, []string{
		"**/.git",
		"**/node_modules",
		"**/__pycache__",
		".env",
		"deploy",
	})

	res, err := s.Seed(context.Background(), dst, src, PolicyOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copied)

	assert.Equal(t, map[string]string{"app.py": "x"}, readTree(t, dst))
}

func TestSeedOverwritePolicy(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"config.yaml": "new"})
	writeTree(t, dst, map[string]string{"config.yaml": "old", "state.db": "kept"})

	s := newTestSeeder(t, nil)
	_, err := s.Seed(context.Background(), dst, src, PolicyOverwrite)
	require.NoError(t, err)

	got := readTree(t, dst)
	assert.Equal(t, "new", got["config.yaml"], "overwrite policy replaces existing files")
	assert.Equal(t, "kept", got["state.db"], "files absent from the source are untouched")
}

func TestSeedIfEmptySkipsNonEmpty(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"shared.db": "fresh"})
	writeTree(t, dst, map[string]string{"shared.db": "accumulated state"})

	s := newTestSeeder(t, nil)
	res, err := s.Seed(context.Background(), dst, src, PolicyIfEmpty)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, res.Copied)

	assert.Equal(t, map[string]string{"shared.db": "accumulated state"}, readTree(t, dst))
}

// TestSeedIfEmptyIdempotent checks that seeding the same destination twice
// leaves its contents identical after the second call.
func TestSeedIfEmptyIdempotent(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"shared.db": "v1", "conf/app.yaml": "a"})

	s := newTestSeeder(t, nil)

	first, err := s.Seed(context.Background(), dst, src, PolicyIfEmpty)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Copied)
	afterFirst := readTree(t, dst)

	// Mutate the source; a second seed must not propagate the change.
	writeTree(t, src, map[string]string{"shared.db": "v2"})

	second, err := s.Seed(context.Background(), dst, src, PolicyIfEmpty)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, afterFirst, readTree(t, dst))
}

func TestSeedIfEmptyIgnoresRegistryEntries(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"shared.db": "fresh"})

	// A registry file created by a concurrent provisioner does not count
	// against emptiness.
	writeTree(t, dst, map[string]string{"tenants.json": "[]"})

	s, err := NewSeeder(Options{
		OwnerUID:        -1,
		OwnerGID:        -1,
		EmptinessIgnore: []string{"tenants.json", "tenants.lock"},
	})
	require.NoError(t, err)

	res, err := s.Seed(context.Background(), dst, src, PolicyIfEmpty)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "fresh", readTree(t, dst)["shared.db"])
}

func TestSeedMissingSourceFails(t *testing.T) {
	t.Parallel()

	s := newTestSeeder(t, nil)
	_, err := s.Seed(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "absent"), PolicyOverwrite)
	require.Error(t, err)
}

func TestSeedPreservesSymlinks(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"real.txt": "content"})
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	s := newTestSeeder(t, nil)
	res, err := s.Seed(context.Background(), dst, src, PolicyOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied)

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}

func TestSeedCancelledContext(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSeeder(t, nil)
	_, err := s.Seed(ctx, dst, src, PolicyOverwrite)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSeederRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewSeeder(Options{Excludes: []string{"["}, OwnerUID: -1, OwnerGID: -1})
	require.Error(t, err)
}
