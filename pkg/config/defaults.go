package config

import (
	"strings"
	"time"
)

// DefaultSeedExcludes are the patterns never copied into volumes when the
// configuration does not override them. They cover VCS metadata, dependency
// caches, and local environment files.
func DefaultSeedExcludes() []string {
	return []string{
		"**/.git",
		"**/.hg",
		"**/.svn",
		"**/node_modules",
		"**/__pycache__",
		"**/*.pyc",
		"**/.venv",
		"**/.DS_Store",
		".env",
		".env.*",
	}
}

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values (0, "", nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyNetworkDefaults(&cfg.Network)
	applySharedDefaults(&cfg.Shared)
	applySeedDefaults(&cfg.Seed)
	applyLockDefaults(&cfg.Lock)
	applyBuildDefaults(&cfg.Build)
	applyContainerDefaults(&cfg.Container)
	applyTemplateDefaults(&cfg.Template)
	applyAccessDefaults(&cfg.Access)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.Name == "" {
		cfg.Name = "sandbox-net"
	}
}

func applySharedDefaults(cfg *SharedConfig) {
	if cfg.Volume == "" {
		cfg.Volume = "sandbox-shared"
	}
	if cfg.Mount == "" {
		cfg.Mount = "/srv/shared"
	}
}

func applySeedDefaults(cfg *SeedConfig) {
	if len(cfg.Excludes) == 0 {
		cfg.Excludes = DefaultSeedExcludes()
	}
}

func applyLockDefaults(cfg *LockConfig) {
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 50
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = time.Minute
	}
}

func applyBuildDefaults(cfg *BuildConfig) {
	if cfg.Dockerfile == "" {
		cfg.Dockerfile = "Dockerfile"
	}
	if cfg.ImagePrefix == "" {
		cfg.ImagePrefix = "sandbox"
	}
}

func applyContainerDefaults(cfg *ContainerConfig) {
	if cfg.PrivateMount == "" {
		cfg.PrivateMount = "/srv/data"
	}
	if cfg.VerifyDelay == 0 {
		cfg.VerifyDelay = 2 * time.Second
	}
	if cfg.VerifyAttempts == 0 {
		cfg.VerifyAttempts = 3
	}
	if cfg.LogTail == 0 {
		cfg.LogTail = 40
	}
}

func applyTemplateDefaults(cfg *TemplateConfig) {
	if cfg.OutputName == "" {
		cfg.OutputName = "runtime.yaml"
	}
}

func applyAccessDefaults(cfg *AccessConfig) {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.BaseDomain == "" {
		cfg.BaseDomain = "sandbox.localhost"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Job == "" {
		cfg.Job = "sandboxctl"
	}
}

// GetDefaultConfig returns a configuration populated entirely with
// defaults. The seed private directory defaults to "./seed" relative to
// the working directory.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Seed: SeedConfig{
			PrivateDir: "./seed",
		},
		Provision: ProvisionConfig{
			AutoRecreate: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
