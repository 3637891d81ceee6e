package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkit/sandboxctl/pkg/registry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "sandbox-net", cfg.Network.Name)
	assert.Equal(t, "sandbox-shared", cfg.Shared.Volume)
	assert.Equal(t, 200*time.Millisecond, cfg.Lock.RetryInterval)
	assert.Equal(t, 50, cfg.Lock.MaxRetries)
	assert.True(t, cfg.Provision.AutoRecreate)
	assert.NotEmpty(t, cfg.Seed.Excludes)
}

func TestLoadParsesDurationsAndFillsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logging:
  level: debug
seed:
  private_dir: /srv/seeds/app
lock:
  retry_interval: 50ms
  max_retries: 10
  stale_after: 5m
container:
  verify_delay: 500ms
access:
  base_domain: tenants.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Explicit values survive, including normalization.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.RetryInterval)
	assert.Equal(t, 10, cfg.Lock.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Lock.StaleAfter)
	assert.Equal(t, 500*time.Millisecond, cfg.Container.VerifyDelay)
	assert.Equal(t, "tenants.example.com", cfg.Access.BaseDomain)

	// Untouched sections fall back to defaults.
	assert.Equal(t, "sandbox-net", cfg.Network.Name)
	assert.Equal(t, "Dockerfile", cfg.Build.Dockerfile)
	assert.Equal(t, 3, cfg.Container.VerifyAttempts)
	assert.Equal(t, "runtime.yaml", cfg.Template.OutputName)
	assert.True(t, cfg.Provision.AutoRecreate)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("SANDBOXCTL_LOGGING_LEVEL", "ERROR")

	path := writeConfig(t, `
logging:
  level: info
seed:
  private_dir: /srv/seeds/app
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bad log level": `
logging:
  level: verbose
seed:
  private_dir: /srv/seeds/app
`,
		"bad scheme": `
seed:
  private_dir: /srv/seeds/app
access:
  scheme: ftp
  base_domain: example.com
`,
		"bad port": `
seed:
  private_dir: /srv/seeds/app
container:
  port: 99999
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadMissingPrivateSeedDirFails(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, "logging:\n  level: info\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed.private_dir")
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	cfg.Seed.PrivateDir = "/srv/seeds/app"
	cfg.Access.BaseDomain = "tenants.example.com"
	cfg.Lock.StaleAfter = 2 * time.Minute

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Seed.PrivateDir, loaded.Seed.PrivateDir)
	assert.Equal(t, cfg.Access.BaseDomain, loaded.Access.BaseDomain)
	assert.Equal(t, cfg.Lock.StaleAfter, loaded.Lock.StaleAfter)
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandboxctl init")
}

func TestSeedOptionsProtectRegistryFiles(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()
	opts := cfg.SeedOptions()

	assert.Contains(t, opts.EmptinessIgnore, registry.FileName)
	assert.Contains(t, opts.EmptinessIgnore, registry.LockDirName)
	assert.Equal(t, -1, opts.OwnerUID)
	assert.Equal(t, -1, opts.OwnerGID)
}

func TestConfigPathNaming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "access.base_domain", configPath("Config.Access.BaseDomain"))
	assert.Equal(t, "metrics.pushgateway_url", configPath("Config.Metrics.PushgatewayURL"))
	assert.Equal(t, "lock.retry_interval", configPath("Config.Lock.RetryInterval"))
}
