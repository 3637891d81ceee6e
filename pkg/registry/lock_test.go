package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOwnerFile(t *testing.T, lockPath string, acquired time.Time) {
	t.Helper()
	data, err := json.Marshal(lockOwner{PID: 999999, Acquired: acquired})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(lockPath, "owner"), data, 0o644))
}

func TestBreakClaimRestoresFreshLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockDirName)
	l := &dirLock{path: lockPath, cfg: LockConfig{StaleAfter: time.Minute}}

	// A live holder owns the lock. A breaker that judged the lock stale
	// from an earlier read has just moved it aside.
	require.NoError(t, os.Mkdir(lockPath, 0o755))
	writeOwnerFile(t, lockPath, time.Now().UTC())
	claim := lockPath + ".breaking-1-1"
	require.NoError(t, os.Rename(lockPath, claim))

	assert.False(t, l.breakClaim(claim))

	// The holder's lock is back in place, owner file intact.
	_, err := os.Stat(filepath.Join(lockPath, "owner"))
	require.NoError(t, err)
	_, err = os.Stat(claim)
	assert.True(t, os.IsNotExist(err))
}

func TestBreakClaimRemovesStaleLock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockDirName)
	l := &dirLock{path: lockPath, cfg: LockConfig{StaleAfter: time.Minute}}

	claim := lockPath + ".breaking-1-1"
	require.NoError(t, os.Mkdir(claim, 0o755))
	writeOwnerFile(t, claim, time.Now().UTC().Add(-time.Hour))

	assert.True(t, l.breakClaim(claim))

	_, err := os.Stat(claim)
	assert.True(t, os.IsNotExist(err))
}

func TestFreshLockSurvivesLateBreaker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockDirName)
	cfg := LockConfig{RetryInterval: time.Millisecond, MaxRetries: 5, StaleAfter: time.Minute}

	// An abandoned lock, old enough that any acquirer will break it.
	require.NoError(t, os.Mkdir(lockPath, 0o755))
	writeOwnerFile(t, lockPath, time.Now().UTC().Add(-time.Hour))

	holder := &dirLock{path: lockPath, cfg: cfg}
	require.NoError(t, holder.acquire(context.Background()))

	// A second process that also saw the abandoned lock now runs its break
	// attempt. The lock it finds is the holder's fresh one and must survive.
	late := &dirLock{path: lockPath, cfg: cfg}
	assert.False(t, late.breakIfStale())

	acquired, ok := ownerAcquiredAt(lockPath)
	require.True(t, ok)
	assert.Less(t, time.Since(acquired), time.Minute)
}

func TestConcurrentBreakersSingleWinner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, LockDirName)
	require.NoError(t, os.Mkdir(lockPath, 0o755))
	writeOwnerFile(t, lockPath, time.Now().UTC().Add(-time.Hour))

	const breakers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < breakers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := &dirLock{path: lockPath, cfg: LockConfig{StaleAfter: time.Minute}}
			if l.breakIfStale() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	// No lock directory and no leftover claim directories.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
