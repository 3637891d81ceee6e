package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// ErrLockTimeout is returned when the lock cannot be acquired within the
// configured retry budget. The registry is guaranteed unmodified.
var ErrLockTimeout = errors.New("registry lock acquisition timed out")

// LockConfig controls lock acquisition behavior.
type LockConfig struct {
	// RetryInterval is the fixed sleep between acquisition attempts.
	RetryInterval time.Duration

	// MaxRetries is the number of acquisition attempts before giving up
	// with ErrLockTimeout.
	MaxRetries int

	// StaleAfter is the age beyond which a held lock is considered
	// abandoned by a crashed holder and may be broken. Zero disables
	// staleness detection.
	StaleAfter time.Duration
}

// DefaultLockConfig returns the standard lock settings: up to 50 attempts at
// 200ms intervals (10s worst case) and a 1 minute staleness threshold.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		RetryInterval: 200 * time.Millisecond,
		MaxRetries:    50,
		StaleAfter:    time.Minute,
	}
}

// lockOwner is written inside the lock directory so other processes can
// attribute a held lock and judge its age if the mtime is unavailable.
type lockOwner struct {
	PID      int       `json:"pid"`
	Acquired time.Time `json:"acquired"`
}

// dirLock is an advisory mutual-exclusion token realized as an
// atomically-created directory. os.Mkdir is atomic on POSIX filesystems:
// exactly one of any number of concurrent callers succeeds.
type dirLock struct {
	path string
	cfg  LockConfig
}

// acquire attempts to create the lock directory in a bounded retry loop.
// It returns ErrLockTimeout once the retry budget is exhausted. A lock older
// than cfg.StaleAfter is treated as abandoned and broken before retrying.
func (l *dirLock) acquire(ctx context.Context) error {
	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		err := os.Mkdir(l.path, 0o755)
		if err == nil {
			l.writeOwner()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock directory %s: %w", l.path, err)
		}

		if l.breakIfStale() {
			continue
		}

		if attempt == l.cfg.MaxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
	return fmt.Errorf("%w after %d attempts (lock held at %s)", ErrLockTimeout, l.cfg.MaxRetries, l.path)
}

// release removes the lock directory. Failure to release is logged rather
// than returned: the caller's operation already completed, and a leftover
// lock is eventually broken by staleness detection.
func (l *dirLock) release() {
	if err := os.RemoveAll(l.path); err != nil {
		logger.Error("failed to release registry lock", logger.KeyPath, l.path, logger.KeyError, err)
	}
}

// writeOwner records pid and acquisition time inside the lock directory.
// Best effort: staleness falls back to the directory mtime.
func (l *dirLock) writeOwner() {
	owner := lockOwner{PID: os.Getpid(), Acquired: time.Now().UTC()}
	data, err := json.Marshal(owner)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(l.path, "owner"), data, 0o644); err != nil {
		logger.Debug("failed to write lock owner file", logger.KeyPath, l.path, logger.KeyError, err)
	}
}

// breakIfStale removes the lock if its holder appears to have crashed,
// judged by the acquisition timestamp (or directory mtime) being older than
// the staleness threshold. Returns true if the lock was broken.
//
// Breaking goes through an atomic rename: the lock directory is first moved
// aside to a per-breaker claim path, so of any number of concurrent breakers
// exactly one succeeds and the rest fail the rename and go back to retrying
// Mkdir. The claim is re-checked before removal, so a lock that was broken
// and re-acquired by a live holder between the staleness check and the
// rename is put back rather than deleted.
func (l *dirLock) breakIfStale() bool {
	if l.cfg.StaleAfter <= 0 {
		return false
	}

	acquired, ok := ownerAcquiredAt(l.path)
	if !ok {
		return false
	}
	if time.Since(acquired) < l.cfg.StaleAfter {
		return false
	}

	claim := fmt.Sprintf("%s.breaking-%d-%d", l.path, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(l.path, claim); err != nil {
		// Another breaker claimed it first, or the holder released.
		return false
	}
	return l.breakClaim(claim)
}

// breakClaim decides the fate of a claimed lock directory: still stale means
// remove it and report the lock broken; fresh means a live holder acquired
// it after the staleness check, so restore it untouched.
func (l *dirLock) breakClaim(claim string) bool {
	acquired, ok := ownerAcquiredAt(claim)
	if ok && time.Since(acquired) < l.cfg.StaleAfter {
		if err := os.Rename(claim, l.path); err != nil {
			logger.Error("failed to restore live registry lock", logger.KeyPath, l.path, logger.KeyError, err)
			_ = os.RemoveAll(claim)
		}
		return false
	}

	logger.Warn("breaking stale registry lock",
		logger.KeyPath, l.path,
		"held_since", acquired.Format(time.RFC3339))

	if err := os.RemoveAll(claim); err != nil {
		logger.Debug("failed to break stale lock", logger.KeyPath, claim, logger.KeyError, err)
		return false
	}
	return true
}

// ownerAcquiredAt reads the acquisition time from the owner file inside the
// given lock directory, falling back to the directory's mtime.
func ownerAcquiredAt(dir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "owner"))
	if err == nil {
		var owner lockOwner
		if jsonErr := json.Unmarshal(data, &owner); jsonErr == nil && !owner.Acquired.IsZero() {
			return owner.Acquired, true
		}
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}
