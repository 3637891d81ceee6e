package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// Volume is a named volume on the runtime host. Mountpoint is the host path
// backing the volume; the seeder writes directly into it.
type Volume struct {
	Name       string
	Mountpoint string
	Existed    bool
}

// EnsureVolume returns the named volume, creating it if absent. An existing
// volume is returned as-is; recreation is a separate, explicitly confirmed
// operation.
func (c *Client) EnsureVolume(ctx context.Context, name string, labels map[string]string) (Volume, error) {
	existing, err := c.api.VolumeInspect(ctx, name)
	if err == nil {
		logger.Debug("volume exists", logger.KeyVolume, name, logger.KeyMountpoint, existing.Mountpoint)
		return Volume{Name: existing.Name, Mountpoint: existing.Mountpoint, Existed: true}, nil
	}
	if !client.IsErrNotFound(err) {
		return Volume{}, fmt.Errorf("failed to inspect volume %s: %w", name, err)
	}

	created, err := c.api.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: managedLabels(labels),
	})
	if err != nil {
		return Volume{}, fmt.Errorf("failed to create volume %s: %w", name, err)
	}

	logger.Info("volume created", logger.KeyVolume, name, logger.KeyMountpoint, created.Mountpoint)
	return Volume{Name: created.Name, Mountpoint: created.Mountpoint}, nil
}

// InspectVolume returns the named volume without creating it. A missing
// volume yields a not-found error from the daemon, detectable with
// client.IsErrNotFound.
func (c *Client) InspectVolume(ctx context.Context, name string) (Volume, error) {
	existing, err := c.api.VolumeInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Volume{}, err
		}
		return Volume{}, fmt.Errorf("failed to inspect volume %s: %w", name, err)
	}
	return Volume{Name: existing.Name, Mountpoint: existing.Mountpoint, Existed: true}, nil
}

// VolumeExists reports whether the named volume is present.
func (c *Client) VolumeExists(ctx context.Context, name string) (bool, error) {
	_, err := c.api.VolumeInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to inspect volume %s: %w", name, err)
}

// RecreateVolume force-removes the named volume and creates it fresh.
// Containers still using the volume must be removed first.
func (c *Client) RecreateVolume(ctx context.Context, name string, labels map[string]string) (Volume, error) {
	if err := c.api.VolumeRemove(ctx, name, true); err != nil && !client.IsErrNotFound(err) {
		return Volume{}, fmt.Errorf("failed to remove volume %s: %w", name, err)
	}

	created, err := c.api.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: managedLabels(labels),
	})
	if err != nil {
		return Volume{}, fmt.Errorf("failed to recreate volume %s: %w", name, err)
	}

	logger.Info("volume recreated", logger.KeyVolume, name, logger.KeyMountpoint, created.Mountpoint)
	return Volume{Name: created.Name, Mountpoint: created.Mountpoint}, nil
}
