package provision

import "github.com/sandboxkit/sandboxctl/pkg/tenant"

// Status is the overall outcome of a provisioning run.
type Status string

const (
	// StatusSuccess means the tenant is registered, running, and verified.
	StatusSuccess Status = "success"

	// StatusWarning means the tenant is registered and started but some
	// non-fatal step degraded, typically liveness verification.
	StatusWarning Status = "warning"

	// StatusFailure means provisioning aborted. Resources created before
	// the failing step are retained.
	StatusFailure Status = "failure"
)

// Result is the structured outcome reported to the operator.
type Result struct {
	Status Status        `json:"status"`
	Record tenant.Record `json:"record"`

	AccessURL   string `json:"access_url"`
	ContainerID string `json:"container_id,omitempty"`
	Image       string `json:"image,omitempty"`

	PrivateVolume string `json:"private_volume"`
	SharedVolume  string `json:"shared_volume"`
	Network       string `json:"network"`

	Verified bool     `json:"verified"`
	Warnings []string `json:"warnings,omitempty"`

	// LogTail holds the container's first output lines, captured during
	// verification as a startup health hint for the operator.
	LogTail string `json:"log_tail,omitempty"`
}
