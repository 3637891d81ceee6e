// Package lifecycle drives a tenant's container through its state machine:
// Absent -> Building -> Starting -> Running, with a terminal Failed state
// reachable from Building or Starting. It also resolves name conflicts with
// containers left over from earlier provisioning runs.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/docker"
)

// State is a tenant container's position in the provisioning state machine.
type State string

const (
	StateAbsent   State = "absent"
	StateBuilding State = "building"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

// ErrConflictDeclined is returned when a container with the target name
// already exists and the operator declined to remove it. Nothing is changed.
var ErrConflictDeclined = errors.New("existing container kept, provisioning declined")

// BuildError is a fatal image build failure. The tenant is left in Failed
// with whatever resources were already created.
type BuildError struct {
	Image string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed for image %s: %v", e.Image, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// StartError is a fatal container create/start failure.
type StartError struct {
	Container string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start failed for container %s: %v", e.Container, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Runtime is the container runtime surface the lifecycle manager needs.
// *docker.Client implements it; tests substitute a fake.
type Runtime interface {
	ContainerByName(ctx context.Context, name string) (*docker.ContainerInfo, error)
	RemoveContainer(ctx context.Context, id string, force bool) error
	BuildImage(ctx context.Context, contextDir, dockerfile, ref string, excludes []string, buildArgs map[string]*string) error
	CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	ContainerRunning(ctx context.Context, id string) (bool, error)
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
}

// ConfirmFunc asks for operator consent to a destructive action. The CLI
// wires an interactive prompt; pipelines get the configured default.
type ConfirmFunc func(label string) (bool, error)

// Config holds lifecycle settings.
type Config struct {
	// BuildContext is the directory built into the tenant image. Empty
	// skips the build step and runs BaseImage directly.
	BuildContext string

	// Dockerfile is the Dockerfile path relative to BuildContext.
	Dockerfile string

	// ImagePrefix names per-tenant images: <ImagePrefix>/<container_name>.
	ImagePrefix string

	// BaseImage is the image used when no build context is configured.
	BaseImage string

	// BuildExcludes are tar exclude patterns for the build context.
	BuildExcludes []string

	// VerifyDelay is the fixed sleep before each liveness check.
	VerifyDelay time.Duration

	// VerifyAttempts is the number of sleep-then-check rounds.
	VerifyAttempts int

	// LogTail is the number of log lines captured after start.
	LogTail int
}

// Manager drives tenant containers through the state machine.
type Manager struct {
	rt      Runtime
	cfg     Config
	confirm ConfirmFunc
}

// NewManager builds a Manager. confirm must not be nil.
func NewManager(rt Runtime, cfg Config, confirm ConfirmFunc) *Manager {
	return &Manager{rt: rt, cfg: cfg, confirm: confirm}
}

// Outcome reports where a Run ended up.
type Outcome struct {
	State       State
	ContainerID string
	Image       string

	// Verified is true when the post-start liveness check saw the
	// container running. An unverified tenant is reported as a warning,
	// not a failure.
	Verified bool

	// LogTail holds the last lines of container output, for the access
	// summary. Best effort; empty when logs could not be fetched.
	LogTail string

	Warnings []string
}

// Run takes the named tenant container from its current state to Running.
// On build or start failure the returned Outcome has State Failed and the
// error is a *BuildError or *StartError; partial resources are retained.
func (m *Manager) Run(ctx context.Context, spec docker.ContainerSpec) (*Outcome, error) {
	outcome := &Outcome{State: StateAbsent}

	if err := m.resolveConflict(ctx, spec.Name); err != nil {
		return outcome, err
	}

	// Building
	outcome.State = StateBuilding
	image, err := m.buildImage(ctx, spec.Name)
	if err != nil {
		outcome.State = StateFailed
		return outcome, err
	}
	outcome.Image = image
	spec.Image = image

	// Starting
	outcome.State = StateStarting
	id, err := m.rt.CreateContainer(ctx, spec)
	if err != nil {
		outcome.State = StateFailed
		return outcome, &StartError{Container: spec.Name, Err: err}
	}
	outcome.ContainerID = id

	if err := m.rt.StartContainer(ctx, id); err != nil {
		outcome.State = StateFailed
		return outcome, &StartError{Container: spec.Name, Err: err}
	}
	outcome.State = StateRunning

	logger.Info("container started",
		logger.KeyTenant, spec.Name,
		logger.KeyContainer, id,
		logger.KeyImage, image)

	m.verify(ctx, spec.Name, outcome)
	return outcome, nil
}

// resolveConflict removes an existing container with the target name after
// confirmation. A declined confirmation leaves everything untouched.
func (m *Manager) resolveConflict(ctx context.Context, name string) error {
	existing, err := m.rt.ContainerByName(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	label := fmt.Sprintf("Container %q already exists (state %s). Remove and recreate it", name, existing.State)
	ok, err := m.confirm(label)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: container %q", ErrConflictDeclined, name)
	}

	logger.Warn("removing existing container",
		logger.KeyTenant, name,
		logger.KeyContainer, existing.ID,
		logger.KeyState, existing.State)
	return m.rt.RemoveContainer(ctx, existing.ID, true)
}

// buildImage builds the per-tenant image, or returns the configured base
// image when no build context is set.
func (m *Manager) buildImage(ctx context.Context, name string) (string, error) {
	if m.cfg.BuildContext == "" {
		return m.cfg.BaseImage, nil
	}

	ref := fmt.Sprintf("%s/%s", m.cfg.ImagePrefix, name)
	logger.Info("building tenant image",
		logger.KeyTenant, name,
		logger.KeyImage, ref,
		logger.KeyPath, m.cfg.BuildContext)

	err := m.rt.BuildImage(ctx, m.cfg.BuildContext, m.cfg.Dockerfile, ref, m.cfg.BuildExcludes, nil)
	if err != nil {
		return "", &BuildError{Image: ref, Err: err}
	}
	return ref, nil
}

// verify polls for liveness with a fixed sleep-then-check, then captures a
// log tail. Verification failure is a warning on the outcome, never an
// error: the container was started, and flapping on startup is for the
// operator to judge.
func (m *Manager) verify(ctx context.Context, name string, outcome *Outcome) {
	for attempt := 1; attempt <= m.cfg.VerifyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			outcome.Warnings = append(outcome.Warnings, "verification aborted: "+ctx.Err().Error())
			return
		case <-time.After(m.cfg.VerifyDelay):
		}

		running, err := m.rt.ContainerRunning(ctx, outcome.ContainerID)
		if err != nil {
			logger.Warn("liveness check failed",
				logger.KeyTenant, name,
				logger.KeyAttempt, attempt,
				logger.KeyError, err)
			continue
		}
		if running {
			outcome.Verified = true
			break
		}
	}

	if !outcome.Verified {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("container %s did not verify as running after %d checks", name, m.cfg.VerifyAttempts))
		logger.Warn("container not verified",
			logger.KeyTenant, name,
			logger.KeyContainer, outcome.ContainerID)
	}

	if m.cfg.LogTail > 0 {
		tail, err := m.rt.ContainerLogs(ctx, outcome.ContainerID, m.cfg.LogTail)
		if err != nil {
			logger.Debug("failed to capture log tail", logger.KeyTenant, name, logger.KeyError, err)
			return
		}
		outcome.LogTail = tail
	}
}
