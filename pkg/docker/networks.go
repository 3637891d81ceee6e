package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// Network is the shared bridge network connecting all tenant containers.
type Network struct {
	ID      string
	Name    string
	Existed bool
}

// EnsureNetwork returns the named network, creating a bridge network if
// absent. The shared network is a host-wide singleton created once and
// reused by every subsequent provisioning run.
func (c *Client) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (Network, error) {
	networks, err := c.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return Network{}, fmt.Errorf("failed to list networks: %w", err)
	}

	// The name filter matches substrings; require an exact match.
	for _, n := range networks {
		if n.Name == name {
			logger.Debug("network exists", logger.KeyNetwork, name)
			return Network{ID: n.ID, Name: name, Existed: true}, nil
		}
	}

	created, err := c.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: network.NetworkBridge,
		Labels: managedLabels(labels),
	})
	if err != nil {
		return Network{}, fmt.Errorf("failed to create network %s: %w", name, err)
	}

	logger.Info("network created", logger.KeyNetwork, name)
	return Network{ID: created.ID, Name: name}, nil
}
