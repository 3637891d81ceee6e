// Package fakeruntime provides an in-memory container runtime for tests.
// Volumes are backed by real temp directories so seeding and registry code
// run unmodified against it.
package fakeruntime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sandboxkit/sandboxctl/pkg/docker"
)

// Container is a fake container's state.
type Container struct {
	ID      string
	Spec    docker.ContainerSpec
	State   string
	Started bool
}

// Fake is an in-memory runtime. Error fields, when set, are returned by the
// corresponding operation to simulate runtime failures.
type Fake struct {
	mu sync.Mutex

	// BaseDir hosts fake volume mountpoints. Required.
	BaseDir string

	Volumes    map[string]string // name -> mountpoint
	Networks   map[string]string // name -> id
	Containers map[string]*Container
	Built      []string

	// ChecksUntilRunning delays liveness: the container reports running
	// only after this many ContainerRunning calls. Zero means immediately.
	ChecksUntilRunning int
	runningChecks      int

	// LogOutput is returned by ContainerLogs.
	LogOutput string

	EnsureVolumeErr   error
	RecreateVolumeErr error
	EnsureNetworkErr  error
	BuildErr          error
	CreateErr         error
	StartErr          error
	RemoveErr         error
	LogsErr           error

	nextID int
}

// New creates a Fake rooted at baseDir.
func New(baseDir string) *Fake {
	return &Fake{
		BaseDir:    baseDir,
		Volumes:    map[string]string{},
		Networks:   map[string]string{},
		Containers: map[string]*Container{},
	}
}

func (f *Fake) EnsureVolume(ctx context.Context, name string, labels map[string]string) (docker.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EnsureVolumeErr != nil {
		return docker.Volume{}, f.EnsureVolumeErr
	}

	if mp, ok := f.Volumes[name]; ok {
		return docker.Volume{Name: name, Mountpoint: mp, Existed: true}, nil
	}

	mp := filepath.Join(f.BaseDir, "volumes", name)
	if err := os.MkdirAll(mp, 0o755); err != nil {
		return docker.Volume{}, err
	}
	f.Volumes[name] = mp
	return docker.Volume{Name: name, Mountpoint: mp}, nil
}

func (f *Fake) VolumeExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Volumes[name]
	return ok, nil
}

func (f *Fake) RecreateVolume(ctx context.Context, name string, labels map[string]string) (docker.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RecreateVolumeErr != nil {
		return docker.Volume{}, f.RecreateVolumeErr
	}

	mp := filepath.Join(f.BaseDir, "volumes", name)
	if err := os.RemoveAll(mp); err != nil {
		return docker.Volume{}, err
	}
	if err := os.MkdirAll(mp, 0o755); err != nil {
		return docker.Volume{}, err
	}
	f.Volumes[name] = mp
	return docker.Volume{Name: name, Mountpoint: mp}, nil
}

func (f *Fake) EnsureNetwork(ctx context.Context, name string, labels map[string]string) (docker.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.EnsureNetworkErr != nil {
		return docker.Network{}, f.EnsureNetworkErr
	}

	if id, ok := f.Networks[name]; ok {
		return docker.Network{ID: id, Name: name, Existed: true}, nil
	}
	id := fmt.Sprintf("net-%s", name)
	f.Networks[name] = id
	return docker.Network{ID: id, Name: name}, nil
}

func (f *Fake) ContainerByName(ctx context.Context, name string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.Containers[name]
	if !ok {
		return nil, nil
	}
	return &docker.ContainerInfo{
		ID:      c.ID,
		Name:    name,
		Image:   c.Spec.Image,
		State:   c.State,
		Running: c.State == "running",
	}, nil
}

func (f *Fake) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	for name, c := range f.Containers {
		if c.ID == id {
			delete(f.Containers, name)
		}
	}
	return nil
}

func (f *Fake) BuildImage(ctx context.Context, contextDir, dockerfile, ref string, excludes []string, buildArgs map[string]*string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.BuildErr != nil {
		return f.BuildErr
	}
	f.Built = append(f.Built, ref)
	return nil
}

func (f *Fake) CreateContainer(ctx context.Context, spec docker.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if _, exists := f.Containers[spec.Name]; exists {
		return "", fmt.Errorf("container name %q already in use", spec.Name)
	}

	f.nextID++
	c := &Container{
		ID:    fmt.Sprintf("ctr-%04d", f.nextID),
		Spec:  spec,
		State: "created",
	}
	f.Containers[spec.Name] = c
	return c.ID, nil
}

func (f *Fake) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StartErr != nil {
		return f.StartErr
	}
	for _, c := range f.Containers {
		if c.ID == id {
			c.State = "running"
			c.Started = true
			return nil
		}
	}
	return fmt.Errorf("no such container: %s", id)
}

func (f *Fake) ContainerRunning(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runningChecks++
	if f.runningChecks <= f.ChecksUntilRunning {
		return false, nil
	}
	for _, c := range f.Containers {
		if c.ID == id {
			return c.State == "running", nil
		}
	}
	return false, fmt.Errorf("no such container: %s", id)
}

func (f *Fake) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LogsErr != nil {
		return "", f.LogsErr
	}
	return f.LogOutput, nil
}

// Container returns the fake container with the given name, or nil.
func (f *Fake) Container(name string) *Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Containers[name]
}

// AddContainer seeds an existing container, for conflict tests.
func (f *Fake) AddContainer(name, state string) *Container {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	c := &Container{
		ID:    fmt.Sprintf("ctr-%04d", f.nextID),
		Spec:  docker.ContainerSpec{Name: name},
		State: state,
	}
	f.Containers[name] = c
	return c
}
