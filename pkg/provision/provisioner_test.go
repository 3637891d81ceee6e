package provision

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkit/sandboxctl/internal/testutil/fakeruntime"
	"github.com/sandboxkit/sandboxctl/pkg/lifecycle"
	"github.com/sandboxkit/sandboxctl/pkg/registry"
	"github.com/sandboxkit/sandboxctl/pkg/seed"
	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

type fixture struct {
	rt          *fakeruntime.Fake
	provisioner *Provisioner
	settings    Settings
	confirmed   []string
	answer      bool
}

// newFixture builds a provisioner wired to a fake runtime and real seed
// directories under a temp root.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	privateSeed := filepath.Join(root, "seed-private")
	sharedSeed := filepath.Join(root, "seed-shared")
	require.NoError(t, os.MkdirAll(privateSeed, 0o755))
	require.NoError(t, os.MkdirAll(sharedSeed, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(privateSeed, "app.py"), []byte("app"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(privateSeed, ".env"), []byte("SECRET=1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sharedSeed, "shared.db"), []byte("seed"), 0o644))

	templatePath := filepath.Join(root, "runtime.tmpl")
	require.NoError(t, os.WriteFile(templatePath,
		[]byte("tenant: {{.ContainerName}}\nvolume: {{.PrivateVolume}}\nurl: {{.AccessURL}}\n"), 0o644))

	seeder, err := seed.NewSeeder(seed.Options{
		Excludes:        []string{".env"},
		OwnerUID:        -1,
		OwnerGID:        -1,
		EmptinessIgnore: []string{registry.FileName, registry.LockDirName},
	})
	require.NoError(t, err)

	f := &fixture{
		rt:     fakeruntime.New(root),
		answer: true,
	}

	f.settings = Settings{
		NetworkName:      "sandbox-net",
		SharedVolumeName: "sandbox-shared",
		PrivateSeedDir:   privateSeed,
		SharedSeedDir:    sharedSeed,
		Lock: registry.LockConfig{
			RetryInterval: 5 * time.Millisecond,
			MaxRetries:    20,
			StaleAfter:    time.Minute,
		},
		Lifecycle: lifecycle.Config{
			BuildContext:   filepath.Join(root, "seed-private"),
			ImagePrefix:    "sandbox",
			VerifyDelay:    time.Millisecond,
			VerifyAttempts: 2,
			LogTail:        20,
		},
		TemplatePath:      templatePath,
		RuntimeConfigName: "runtime.yaml",
		PrivateMount:      "/app/data",
		SharedMount:       "/app/shared",
		Scheme:            "https",
		BaseDomain:        "sandbox.example.com",
	}

	confirm := func(label string) (bool, error) {
		f.confirmed = append(f.confirmed, label)
		return f.answer, nil
	}
	f.provisioner = New(f.rt, seeder, f.settings, confirm, nil)
	return f
}

func (f *fixture) registryRecords(t *testing.T) []tenant.Record {
	t.Helper()
	mp, ok := f.rt.Volumes["sandbox-shared"]
	if !ok {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(mp, registry.FileName))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var records []tenant.Record
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestProvisionEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "alice", result.Record.ContainerName)
	assert.Equal(t, "dev", result.Record.UserTag)
	assert.True(t, result.Verified)
	assert.Equal(t, "https://sandbox.example.com/t/"+result.Record.UserHash, result.AccessURL)

	// Exactly one registry record.
	records := f.registryRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].ContainerName)

	// Private volume seeded, excludes applied.
	privMP := f.rt.Volumes["alice_private"]
	require.NotEmpty(t, privMP)
	_, err = os.Stat(filepath.Join(privMP, "app.py"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(privMP, ".env"))
	assert.True(t, os.IsNotExist(err), "env files must not be copied into the sandbox")

	// Runtime config rendered into the private volume.
	rendered, err := os.ReadFile(filepath.Join(privMP, "runtime.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(rendered), "tenant: alice")
	assert.Contains(t, string(rendered), "volume: alice_private")

	// Tenant metadata written post-start.
	meta, err := os.ReadFile(filepath.Join(privMP, MetadataFileName))
	require.NoError(t, err)
	assert.Contains(t, string(meta), result.Record.UserHash)

	// Shared volume seeded.
	sharedMP := f.rt.Volumes["sandbox-shared"]
	data, err := os.ReadFile(filepath.Join(sharedMP, "shared.db"))
	require.NoError(t, err)
	assert.Equal(t, "seed", string(data))

	// Container running on the shared network with both mounts.
	c := f.rt.Container("alice")
	require.NotNil(t, c)
	assert.True(t, c.Started)
	assert.Equal(t, "sandbox-net", c.Spec.Network)
	require.Len(t, c.Spec.Mounts, 2)
	assert.Equal(t, "alice_private", c.Spec.Mounts[0].Volume)
	assert.Equal(t, "/app/data", c.Spec.Mounts[0].Target)
	assert.Equal(t, "sandbox-shared", c.Spec.Mounts[1].Volume)

	// Labels carry the tenant metadata.
	assert.Equal(t, "alice", c.Spec.Labels["io.sandboxkit.tenant"])
	assert.Equal(t, "dev", c.Spec.Labels["io.sandboxkit.user-tag"])
	assert.Equal(t, result.Record.UserHash, c.Spec.Labels["io.sandboxkit.user-hash"])
}

func TestProvisionRejectsInvalidName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, name := range []string{"", "bad name", "x/y", "../up", "dot.name"} {
		result, err := f.provisioner.Provision(context.Background(), name, "dev")
		require.Error(t, err, "name %q must be rejected", name)

		var verr *tenant.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Nil(t, result)
	}

	// No side effects at all.
	assert.Empty(t, f.rt.Volumes)
	assert.Empty(t, f.rt.Networks)
	assert.Empty(t, f.rt.Containers)
	assert.Empty(t, f.confirmed)
}

func TestProvisionSharedVolumeSeededOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)

	// Mutate shared state as a running tenant would.
	sharedMP := f.rt.Volumes["sandbox-shared"]
	require.NoError(t, os.WriteFile(filepath.Join(sharedMP, "shared.db"), []byte("tenant state"), 0o644))

	_, err = f.provisioner.Provision(context.Background(), "bob", "qa")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(sharedMP, "shared.db"))
	require.NoError(t, err)
	assert.Equal(t, "tenant state", string(data), "second provisioning must not reseed the shared volume")

	records := f.registryRecords(t)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].ContainerName)
	assert.Equal(t, "bob", records[1].ContainerName)
}

func TestProvisionConflictDeclinedChangesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)

	recordsBefore := f.registryRecords(t)
	containerBefore := f.rt.Container("alice")

	// Second run against the same name, with confirmation declined.
	f.answer = false
	result, err := f.provisioner.Provision(context.Background(), "alice", "dev2")
	require.ErrorIs(t, err, lifecycle.ErrConflictDeclined)
	assert.Equal(t, StatusFailure, result.Status)

	// Registry, container, and volumes are untouched.
	assert.Equal(t, recordsBefore, f.registryRecords(t))
	c := f.rt.Container("alice")
	require.NotNil(t, c)
	assert.Equal(t, containerBefore.ID, c.ID)
	assert.Equal(t, "running", c.State)
}

func TestProvisionReprovisionWithConsent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)

	second, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.NotEqual(t, first.ContainerID, second.ContainerID)

	// Append-log semantics: reprovisioning appends a second record.
	assert.Len(t, f.registryRecords(t), 2)
}

func TestProvisionAllocationFailureAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rt.EnsureNetworkErr = errors.New("daemon unreachable")

	result, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.Error(t, err)

	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "network", aerr.Resource)
	assert.Equal(t, StatusFailure, result.Status)

	// Nothing further happened.
	assert.Empty(t, f.registryRecords(t))
	assert.Nil(t, f.rt.Container("alice"))
}

func TestProvisionSeedFailureRetainsVolumes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.settings.PrivateSeedDir))

	result, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.Error(t, err)

	var serr *SeedError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "alice_private", serr.Volume)
	assert.Equal(t, StatusFailure, result.Status)

	// The allocated volumes are retained; no rollback.
	assert.Contains(t, f.rt.Volumes, "alice_private")
	assert.Contains(t, f.rt.Volumes, "sandbox-shared")
	assert.Empty(t, f.registryRecords(t))
}

func TestProvisionBuildFailureKeepsRegistryRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rt.BuildErr = errors.New("syntax error in Dockerfile")

	result, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.Error(t, err)

	var berr *lifecycle.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, StatusFailure, result.Status)

	// Registration happened before the build step and is not rolled back.
	assert.Len(t, f.registryRecords(t), 1)
	assert.Nil(t, f.rt.Container("alice"))
}

func TestProvisionVerificationWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.rt.ChecksUntilRunning = 100

	result, err := f.provisioner.Provision(context.Background(), "alice", "dev")
	require.NoError(t, err)

	assert.Equal(t, StatusWarning, result.Status)
	assert.False(t, result.Verified)
	assert.NotEmpty(t, result.Warnings)
}
