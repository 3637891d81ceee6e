// Package seed copies host directory trees into volumes. Two policies
// exist: always-overwrite for per-tenant private volumes, and seed-if-empty
// for the shared volume, which makes repeat provisioning a no-op against
// state accumulated by earlier tenants.
package seed

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/moby/patternmatcher"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// Policy selects the seeding behavior for a destination.
type Policy int

const (
	// PolicyOverwrite copies the source tree on every invocation,
	// overwriting files already present in the destination.
	PolicyOverwrite Policy = iota

	// PolicyIfEmpty copies only when the destination holds no entries
	// (apart from the configured ignore names). The emptiness check and
	// the copy are not atomic with respect to concurrent seeders.
	PolicyIfEmpty
)

func (p Policy) String() string {
	switch p {
	case PolicyOverwrite:
		return "overwrite"
	case PolicyIfEmpty:
		return "if-empty"
	default:
		return "unknown"
	}
}

// Options configures a Seeder.
type Options struct {
	// Excludes are dockerignore-style patterns, matched against paths
	// relative to the source root. The provisioning tool's own files must
	// be listed here so it never copies itself into the sandbox.
	Excludes []string

	// OwnerUID and OwnerGID are the in-container application identity
	// applied to every copied entry. Negative values disable chown.
	OwnerUID int
	OwnerGID int

	// EmptinessIgnore lists destination entry names that do not count
	// against PolicyIfEmpty, such as the registry file and its lock.
	EmptinessIgnore []string
}

// Seeder copies directory trees with pattern-based exclusion and ownership
// normalization.
type Seeder struct {
	opts    Options
	matcher *patternmatcher.PatternMatcher
}

// NewSeeder compiles the exclude patterns. Invalid patterns are rejected up
// front so a bad config fails before any volume is touched.
func NewSeeder(opts Options) (*Seeder, error) {
	m, err := patternmatcher.New(opts.Excludes)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude patterns: %w", err)
	}
	// Pattern regexps compile lazily; probe once so a bad config fails
	// here instead of mid-copy.
	if _, err := m.MatchesOrParentMatches("probe"); err != nil {
		return nil, fmt.Errorf("invalid exclude patterns: %w", err)
	}
	return &Seeder{opts: opts, matcher: m}, nil
}

// Result reports what a Seed call did.
type Result struct {
	// Copied is the number of files and symlinks written.
	Copied int

	// Skipped is true when PolicyIfEmpty found a non-empty destination
	// and left it untouched.
	Skipped bool
}

// Seed copies sourceDir into destDir under the given policy. Both
// directories must exist; destDir is typically a volume mountpoint on the
// runtime host. A failed copy leaves the destination partially populated;
// callers treat that as fatal and do not clean up.
func (s *Seeder) Seed(ctx context.Context, destDir, sourceDir string, policy Policy) (Result, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return Result{}, fmt.Errorf("seed source %s: %w", sourceDir, err)
	}

	if policy == PolicyIfEmpty {
		empty, err := s.destEmpty(destDir)
		if err != nil {
			return Result{}, err
		}
		if !empty {
			logger.Debug("destination not empty, skipping seed",
				logger.KeyPath, destDir,
				logger.KeyPolicy, policy.String())
			return Result{Skipped: true}, nil
		}
	}

	copied, err := s.copyTree(ctx, destDir, sourceDir)
	if err != nil {
		return Result{}, err
	}

	logger.Info("volume seeded",
		logger.KeySource, sourceDir,
		logger.KeyPath, destDir,
		logger.KeyPolicy, policy.String(),
		logger.KeyCount, copied)
	return Result{Copied: copied}, nil
}

// destEmpty reports whether the destination holds no entries besides the
// configured ignore names.
func (s *Seeder) destEmpty(destDir string) (bool, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return false, fmt.Errorf("failed to read seed destination %s: %w", destDir, err)
	}

	for _, entry := range entries {
		ignored := false
		for _, name := range s.opts.EmptinessIgnore {
			if entry.Name() == name {
				ignored = true
				break
			}
		}
		if !ignored {
			return false, nil
		}
	}
	return true, nil
}

// copyTree walks the source and replicates files, directories, and symlinks
// into the destination, applying exclude patterns and ownership.
func (s *Seeder) copyTree(ctx context.Context, destDir, sourceDir string) (int, error) {
	copied := 0

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		excluded, err := s.matcher.MatchesOrParentMatches(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("failed to match %s against exclude patterns: %w", rel, err)
		}
		if excluded {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		target := filepath.Join(destDir, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return err
			}
			return s.chown(target)

		case d.Type()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			// Overwrite policy may find an old link in place.
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := os.Symlink(linkTarget, target); err != nil {
				return err
			}
			copied++
			return s.chown(target)

		default:
			if err := copyFile(target, path, d); err != nil {
				return err
			}
			copied++
			return s.chown(target)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to seed %s from %s: %w", destDir, sourceDir, err)
	}

	return copied, nil
}

// chown normalizes ownership of a copied entry to the configured
// in-container identity.
func (s *Seeder) chown(path string) error {
	if s.opts.OwnerUID < 0 || s.opts.OwnerGID < 0 || runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Lchown(path, s.opts.OwnerUID, s.opts.OwnerGID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, s.opts.OwnerUID, s.opts.OwnerGID, err)
	}
	return nil
}

// copyFile copies one regular file, preserving its permission bits.
func copyFile(target, source string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy %s: %w", source, err)
	}
	return dst.Close()
}
