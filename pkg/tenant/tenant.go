// Package tenant defines the tenant record model shared by the registry,
// the lifecycle manager, and the CLI, together with name validation and
// naming conventions for per-tenant resources.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxNameLength bounds container names. The name doubles as the container's
// hostname, and a DNS label tops out at 63 characters (RFC 1035); derived
// identifiers (volume names, image refs, URL segments) also stay within
// their own limits at this bound.
const MaxNameLength = 63

// PrivateVolumeSuffix is appended to the container name to derive the
// tenant's private volume name.
const PrivateVolumeSuffix = "_private"

// nameRE is the allowed charset for container names. Names are used as
// registry keys, volume name prefixes, and path segments, so the charset is
// deliberately strict.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError reports a rejected tenant name. Validation happens before
// any side effect, so a ValidationError always means nothing was touched.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tenant name %q: %s", e.Name, e.Reason)
}

// ValidateName checks a container name against the allowed charset
// [A-Za-z0-9_-]+. The empty string is rejected.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Name: name, Reason: "name is empty"}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Name: name, Reason: fmt.Sprintf("name exceeds %d characters", MaxNameLength)}
	}
	if !nameRE.MatchString(name) {
		return &ValidationError{Name: name, Reason: "only letters, digits, underscore and hyphen are allowed"}
	}
	return nil
}

// Record is one entry in the shared registry. Records are appended once per
// successful provisioning call and never updated or deleted by this
// subsystem.
type Record struct {
	// ContainerName is the tenant's container name, the intended unique key.
	ContainerName string `json:"container_name"`

	// UserTag is a free-text label supplied by the operator.
	UserTag string `json:"user_tag"`

	// Created is the provisioning timestamp in UTC.
	Created time.Time `json:"created"`

	// UserHash is an opaque tenant identifier. It is not a security token.
	UserHash string `json:"user_hash,omitempty"`
}

// NewRecord builds a record for a validated container name. The user hash is
// a fresh opaque identifier; callers that re-provision an existing tenant get
// a new hash.
func NewRecord(containerName, userTag string) Record {
	return Record{
		ContainerName: containerName,
		UserTag:       userTag,
		Created:       time.Now().UTC(),
		UserHash:      strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// PrivateVolumeName derives the tenant's private volume name.
func PrivateVolumeName(containerName string) string {
	return containerName + PrivateVolumeSuffix
}

// AccessURL composes the tenant's access URL. The convention is fixed to a
// path segment keyed by the opaque hash: scheme://base/t/<user_hash>.
// Tenants provisioned before hashes were recorded fall back to the name.
func AccessURL(scheme, baseDomain string, r Record) string {
	key := r.UserHash
	if key == "" {
		key = r.ContainerName
	}
	return fmt.Sprintf("%s://%s/t/%s", scheme, baseDomain, key)
}
