package config

import (
	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/lifecycle"
	"github.com/sandboxkit/sandboxctl/pkg/provision"
	"github.com/sandboxkit/sandboxctl/pkg/registry"
	"github.com/sandboxkit/sandboxctl/pkg/seed"
)

// LoggerConfig maps the logging section onto the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// SeedOptions maps the seed section onto seeder options. The registry file
// and its lock never count toward shared-volume emptiness.
func (c *Config) SeedOptions() seed.Options {
	uid, gid := c.Seed.OwnerUID, c.Seed.OwnerGID
	if uid <= 0 {
		uid = -1
	}
	if gid <= 0 {
		gid = -1
	}
	return seed.Options{
		Excludes:        c.Seed.Excludes,
		OwnerUID:        uid,
		OwnerGID:        gid,
		EmptinessIgnore: []string{registry.FileName, registry.LockDirName},
	}
}

// LockConfig maps the lock section onto the registry lock.
func (c *Config) LockConfig() registry.LockConfig {
	return registry.LockConfig{
		RetryInterval: c.Lock.RetryInterval,
		MaxRetries:    c.Lock.MaxRetries,
		StaleAfter:    c.Lock.StaleAfter,
	}
}

// LifecycleConfig maps the build and container sections onto the lifecycle
// manager.
func (c *Config) LifecycleConfig() lifecycle.Config {
	return lifecycle.Config{
		BuildContext:   c.Build.ContextDir,
		Dockerfile:     c.Build.Dockerfile,
		ImagePrefix:    c.Build.ImagePrefix,
		BaseImage:      c.Build.BaseImage,
		BuildExcludes:  c.Build.Excludes,
		VerifyDelay:    c.Container.VerifyDelay,
		VerifyAttempts: c.Container.VerifyAttempts,
		LogTail:        c.Container.LogTail,
	}
}

// ProvisionSettings assembles the orchestrator settings from the relevant
// sections.
func (c *Config) ProvisionSettings() provision.Settings {
	return provision.Settings{
		NetworkName:       c.Network.Name,
		SharedVolumeName:  c.Shared.Volume,
		PrivateSeedDir:    c.Seed.PrivateDir,
		SharedSeedDir:     c.Seed.SharedDir,
		Lock:              c.LockConfig(),
		Lifecycle:         c.LifecycleConfig(),
		TemplatePath:      c.Template.Path,
		RuntimeConfigName: c.Template.OutputName,
		PrivateMount:      c.Container.PrivateMount,
		SharedMount:       c.Shared.Mount,
		Scheme:            c.Access.Scheme,
		BaseDomain:        c.Access.BaseDomain,
		ContainerPort:     c.Container.Port,
	}
}
