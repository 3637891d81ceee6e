// Package provision sequences the end-to-end tenant provisioning
// operation: validate, allocate shared and private resources, seed
// volumes, register the tenant, render its runtime configuration, and
// drive the container lifecycle.
//
// Each step's failure aborts all subsequent steps. There is no
// compensating rollback: resources created before the failing step are
// deliberately left in place for the operator to inspect or reuse.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/docker"
	"github.com/sandboxkit/sandboxctl/pkg/lifecycle"
	"github.com/sandboxkit/sandboxctl/pkg/metrics"
	"github.com/sandboxkit/sandboxctl/pkg/registry"
	"github.com/sandboxkit/sandboxctl/pkg/render"
	"github.com/sandboxkit/sandboxctl/pkg/seed"
	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

// MetadataFileName is the tenant metadata file written into the private
// volume after a successful start.
const MetadataFileName = "tenant.json"

// Runtime is the container runtime surface the orchestrator needs.
// *docker.Client implements it.
type Runtime interface {
	lifecycle.Runtime

	EnsureVolume(ctx context.Context, name string, labels map[string]string) (docker.Volume, error)
	VolumeExists(ctx context.Context, name string) (bool, error)
	RecreateVolume(ctx context.Context, name string, labels map[string]string) (docker.Volume, error)
	EnsureNetwork(ctx context.Context, name string, labels map[string]string) (docker.Network, error)
}

// Settings collects everything the orchestrator needs beyond the runtime.
type Settings struct {
	NetworkName      string
	SharedVolumeName string

	// PrivateSeedDir is copied into the private volume on every run.
	// SharedSeedDir is copied into the shared volume only when empty.
	PrivateSeedDir string
	SharedSeedDir  string

	Lock      registry.LockConfig
	Lifecycle lifecycle.Config

	// TemplatePath is the runtime configuration template. Empty skips
	// rendering. RuntimeConfigName is the rendered file's name inside
	// the private volume.
	TemplatePath      string
	RuntimeConfigName string

	// PrivateMount and SharedMount are the in-container mount targets.
	PrivateMount string
	SharedMount  string

	// Scheme and BaseDomain compose the tenant access URL.
	Scheme     string
	BaseDomain string

	// ContainerPort is published on an ephemeral host port; 0 disables.
	ContainerPort int
}

// Provisioner is the single entry point for tenant provisioning.
type Provisioner struct {
	rt       Runtime
	seeder   *seed.Seeder
	settings Settings
	confirm  lifecycle.ConfirmFunc
	recorder *metrics.Recorder
}

// New builds a Provisioner. confirm decides conflict recreation; recorder
// may be nil to disable metrics.
func New(rt Runtime, seeder *seed.Seeder, settings Settings, confirm lifecycle.ConfirmFunc, recorder *metrics.Recorder) *Provisioner {
	return &Provisioner{
		rt:       rt,
		seeder:   seeder,
		settings: settings,
		confirm:  confirm,
		recorder: recorder,
	}
}

// Provision turns (containerName, userTag) into a running, registered,
// isolated sandbox. The returned Result is non-nil whenever provisioning
// progressed past validation, even on failure, so the CLI can report
// partial state.
func (p *Provisioner) Provision(ctx context.Context, containerName, userTag string) (*Result, error) {
	// Step 1: validate before any side effect.
	if err := tenant.ValidateName(containerName); err != nil {
		p.observe(StatusFailure)
		return nil, err
	}

	result := &Result{
		Status:        StatusFailure,
		PrivateVolume: tenant.PrivateVolumeName(containerName),
		SharedVolume:  p.settings.SharedVolumeName,
		Network:       p.settings.NetworkName,
	}

	// Resolve the container name conflict before touching anything, so a
	// declined recreation leaves registry and volumes unchanged.
	consent, err := p.preflightConflict(ctx, containerName)
	if err != nil {
		p.observe(StatusFailure)
		return result, err
	}

	// Step 2: shared network, shared volume, private volume.
	sharedVol, privateVol, err := p.allocate(ctx, containerName, userTag)
	if err != nil {
		p.observe(StatusFailure)
		return result, err
	}

	// Step 3: seed private (always) and shared (once).
	if err := p.seedVolumes(ctx, privateVol, sharedVol); err != nil {
		p.observe(StatusFailure)
		return result, err
	}

	// Step 4: register the tenant.
	record := tenant.NewRecord(containerName, userTag)
	if err := p.register(ctx, sharedVol, record); err != nil {
		p.observe(StatusFailure)
		return result, err
	}
	result.Record = record
	result.AccessURL = tenant.AccessURL(p.settings.Scheme, p.settings.BaseDomain, record)

	// Step 5: render the per-tenant runtime configuration.
	if err := p.renderConfig(privateVol, record, result.AccessURL); err != nil {
		p.observe(StatusFailure)
		return result, err
	}

	// Step 6: build, start, verify.
	outcome, err := p.runLifecycle(ctx, containerName, record, consent)
	if outcome != nil {
		result.ContainerID = outcome.ContainerID
		result.Image = outcome.Image
		result.Verified = outcome.Verified
		result.LogTail = outcome.LogTail
		result.Warnings = append(result.Warnings, outcome.Warnings...)
	}
	if err != nil {
		p.observe(StatusFailure)
		return result, err
	}

	// Post-start labeling: persist tenant metadata into the private
	// volume. Failures are logged, never fatal.
	p.writeMetadata(privateVol, record, result)

	result.Status = StatusSuccess
	if len(result.Warnings) > 0 {
		result.Status = StatusWarning
	}
	p.observe(result.Status)

	logger.Info("tenant provisioned",
		logger.KeyTenant, containerName,
		logger.KeyUserTag, userTag,
		logger.KeyContainer, result.ContainerID,
		"status", string(result.Status))
	return result, nil
}

// preflightConflict checks for an existing container with the target name
// and obtains recreation consent before any side effect. The returned
// consent is replayed to the lifecycle manager so the operator is asked at
// most once.
func (p *Provisioner) preflightConflict(ctx context.Context, name string) (bool, error) {
	existing, err := p.rt.ContainerByName(ctx, name)
	if err != nil {
		return false, &AllocationError{Resource: "container", Name: name, Err: err}
	}
	if existing == nil {
		return false, nil
	}

	label := fmt.Sprintf("Container %q already exists (state %s). Remove and recreate it", name, existing.State)
	ok, err := p.confirm(label)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: container %q", lifecycle.ErrConflictDeclined, name)
	}
	return true, nil
}

// allocate ensures the shared network, the shared volume, and the tenant's
// private volume. An existing private volume is recreated only on
// confirmation; a declined recreation reuses it as-is.
func (p *Provisioner) allocate(ctx context.Context, containerName, userTag string) (shared, private docker.Volume, err error) {
	done := p.timer("allocate")
	defer done()

	if _, err := p.rt.EnsureNetwork(ctx, p.settings.NetworkName, nil); err != nil {
		return shared, private, &AllocationError{Resource: "network", Name: p.settings.NetworkName, Err: err}
	}

	shared, err = p.rt.EnsureVolume(ctx, p.settings.SharedVolumeName, nil)
	if err != nil {
		return shared, private, &AllocationError{Resource: "volume", Name: p.settings.SharedVolumeName, Err: err}
	}

	privateName := tenant.PrivateVolumeName(containerName)
	labels := map[string]string{
		docker.LabelTenant:  containerName,
		docker.LabelUserTag: userTag,
	}

	exists, err := p.rt.VolumeExists(ctx, privateName)
	if err != nil {
		return shared, private, &AllocationError{Resource: "volume", Name: privateName, Err: err}
	}

	recreate := false
	if exists {
		recreate, err = p.confirm(fmt.Sprintf("Private volume %q already exists. Recreate it (existing data is lost)", privateName))
		if err != nil {
			return shared, private, err
		}
	}

	if recreate {
		private, err = p.rt.RecreateVolume(ctx, privateName, labels)
	} else {
		private, err = p.rt.EnsureVolume(ctx, privateName, labels)
	}
	if err != nil {
		return shared, private, &AllocationError{Resource: "volume", Name: privateName, Err: err}
	}
	return shared, private, nil
}

// seedVolumes populates the private volume (always) and the shared volume
// (only when empty, preserving state accumulated by prior tenants).
func (p *Provisioner) seedVolumes(ctx context.Context, private, shared docker.Volume) error {
	done := p.timer("seed")
	defer done()

	if _, err := p.seeder.Seed(ctx, private.Mountpoint, p.settings.PrivateSeedDir, seed.PolicyOverwrite); err != nil {
		return &SeedError{Volume: private.Name, Err: err}
	}

	if p.settings.SharedSeedDir != "" {
		if _, err := p.seeder.Seed(ctx, shared.Mountpoint, p.settings.SharedSeedDir, seed.PolicyIfEmpty); err != nil {
			return &SeedError{Volume: shared.Name, Err: err}
		}
	}
	return nil
}

// register appends the tenant record to the shared registry under the lock.
func (p *Provisioner) register(ctx context.Context, shared docker.Volume, record tenant.Record) error {
	done := p.timer("register")
	defer done()

	store := registry.NewStore(shared.Mountpoint, p.settings.Lock)
	return store.Append(ctx, record)
}

// renderConfig writes the tenant's runtime configuration into the private
// volume.
func (p *Provisioner) renderConfig(private docker.Volume, record tenant.Record, accessURL string) error {
	if p.settings.TemplatePath == "" {
		return nil
	}

	out := filepath.Join(private.Mountpoint, p.settings.RuntimeConfigName)
	data := render.NewData(record, accessURL)
	if err := render.RenderFile(p.settings.TemplatePath, out, data); err != nil {
		return err
	}

	logger.Debug("runtime config rendered", logger.KeyTenant, record.ContainerName, logger.KeyPath, out)
	return nil
}

// runLifecycle drives build, start, and verification.
func (p *Provisioner) runLifecycle(ctx context.Context, containerName string, record tenant.Record, consent bool) (*lifecycle.Outcome, error) {
	done := p.timer("lifecycle")
	defer done()

	// Consent granted during preflight is replayed; a container that
	// appeared in between is covered by the same answer.
	confirm := p.confirm
	if consent {
		confirm = func(string) (bool, error) { return true, nil }
	}

	manager := lifecycle.NewManager(p.rt, p.settings.Lifecycle, confirm)

	spec := docker.ContainerSpec{
		Name:     containerName,
		Hostname: containerName,
		Network:  p.settings.NetworkName,
		Labels: map[string]string{
			docker.LabelTenant:  record.ContainerName,
			docker.LabelUserTag: record.UserTag,
			docker.LabelCreated: record.Created.Format(time.RFC3339),
			docker.LabelHash:    record.UserHash,
		},
		Env: []string{
			"TENANT_NAME=" + record.ContainerName,
			"TENANT_TAG=" + record.UserTag,
			"TENANT_HASH=" + record.UserHash,
		},
		Mounts: []docker.VolumeMount{
			{Volume: tenant.PrivateVolumeName(containerName), Target: p.settings.PrivateMount},
			{Volume: p.settings.SharedVolumeName, Target: p.settings.SharedMount},
		},
		ExposedPort: p.settings.ContainerPort,
	}

	return manager.Run(ctx, spec)
}

// writeMetadata persists the tenant record and access summary into the
// private volume. Failures become warnings, not errors.
func (p *Provisioner) writeMetadata(private docker.Volume, record tenant.Record, result *Result) {
	meta := struct {
		tenant.Record
		AccessURL   string `json:"access_url"`
		ContainerID string `json:"container_id"`
	}{Record: record, AccessURL: result.AccessURL, ContainerID: result.ContainerID}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(private.Mountpoint, MetadataFileName), append(data, '\n'), 0o644)
	}
	if err != nil {
		result.Warnings = append(result.Warnings, "failed to write tenant metadata: "+err.Error())
		logger.Warn("failed to write tenant metadata",
			logger.KeyTenant, record.ContainerName,
			logger.KeyError, err)
	}
}

func (p *Provisioner) observe(status Status) {
	if p.recorder != nil {
		p.recorder.ObserveOutcome(string(status))
	}
}

func (p *Provisioner) timer(step string) func() {
	if p.recorder == nil {
		return func() {}
	}
	return p.recorder.Timer(step)
}
