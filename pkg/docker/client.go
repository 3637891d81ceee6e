// Package docker wraps the Docker Engine API for the provisioning
// subsystem: idempotent volume and network allocation, per-tenant image
// builds, and container lifecycle operations. It operates against a single
// runtime host; there is no multi-node scheduling.
package docker

import (
	"fmt"

	"github.com/docker/docker/client"
)

// ManagedLabel marks every resource created by sandboxctl so operators can
// tell provisioned resources apart from hand-made ones.
const ManagedLabel = "io.sandboxkit.managed"

// Tenant metadata labels attached to containers and volumes.
const (
	LabelTenant  = "io.sandboxkit.tenant"
	LabelUserTag = "io.sandboxkit.user-tag"
	LabelCreated = "io.sandboxkit.created"
	LabelHash    = "io.sandboxkit.user-hash"
)

// Client wraps the Docker Engine API client.
type Client struct {
	api client.APIClient
}

// NewClient connects to the runtime using the standard environment
// (DOCKER_HOST and friends) with API version negotiation. A non-empty host
// overrides the environment.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to container runtime: %w", err)
	}
	return &Client{api: api}, nil
}

// NewClientWithAPI wraps an existing API client. Used by tests.
func NewClientWithAPI(api client.APIClient) *Client {
	return &Client{api: api}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// managedLabels returns the base label set for a resource, merged with any
// extra labels.
func managedLabels(extra map[string]string) map[string]string {
	labels := map[string]string{ManagedLabel: "true"}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}
