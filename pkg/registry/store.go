// Package registry implements the shared tenant registry: an append-only
// log of tenant records persisted as a single JSON file inside the shared
// volume, mutated only under an advisory directory lock.
//
// Short-lived provisioning processes race on this file, so every mutation
// follows the same discipline: acquire the lock with a bounded retry loop,
// read the full file, rewrite it through a temp file plus atomic rename, and
// release the lock on every exit path. Readers never observe a partially
// written file.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

const (
	// FileName is the registry file inside the shared volume.
	FileName = "tenants.json"

	// LockDirName is the lock directory next to the registry file.
	LockDirName = "tenants.lock"
)

// Store is a registry bound to one directory, normally the mountpoint of
// the shared volume. Multiple Stores in independent processes may point at
// the same directory; the lock serializes them.
type Store struct {
	dir  string
	lock *dirLock
}

// NewStore creates a store rooted at dir. The directory must exist; the
// registry file is created on first append.
func NewStore(dir string, cfg LockConfig) *Store {
	return &Store{
		dir: dir,
		lock: &dirLock{
			path: filepath.Join(dir, LockDirName),
			cfg:  cfg,
		},
	}
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Append adds a record to the registry under the lock.
//
// No deduplication by container name is performed: the registry is an
// append-only log, and repeated registration of the same name produces
// multiple records. Exceeding the lock retry budget returns ErrLockTimeout
// with the registry unmodified.
func (s *Store) Append(ctx context.Context, record tenant.Record) error {
	if err := s.lock.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.release()

	records, err := s.read()
	if err != nil {
		return err
	}

	records = append(records, record)

	if err := s.writeAtomic(records); err != nil {
		return err
	}

	logger.Debug("registry record appended",
		logger.KeyTenant, record.ContainerName,
		logger.KeyCount, len(records),
		logger.KeyPath, s.Path())
	return nil
}

// List returns all records in insertion order, which is provisioning order.
// The read happens under the lock so a concurrent append's rename cannot be
// missed halfway through.
func (s *Store) List(ctx context.Context) ([]tenant.Record, error) {
	if err := s.lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.lock.release()

	return s.read()
}

// Find returns the records for one container name, oldest first. Duplicate
// names are possible; callers interested in "the" record usually want the
// newest one.
func (s *Store) Find(ctx context.Context, containerName string) ([]tenant.Record, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var matches []tenant.Record
	for _, r := range all {
		if r.ContainerName == containerName {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// read loads the registry file. A missing file is an empty registry.
func (s *Store) read() ([]tenant.Record, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry file %s: %w", s.Path(), err)
	}

	var records []tenant.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("registry file %s is corrupt: %w", s.Path(), err)
	}
	return records, nil
}

// writeAtomic writes the full record list to a temp file in the same
// directory and renames it over the registry file. Rename within one
// filesystem is atomic, so readers see either the old or the new content.
func (s *Store) writeAtomic(records []tenant.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp registry file: %w", err)
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace registry file: %w", err)
	}
	return nil
}
