package commands

import (
	"fmt"

	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/config"
	"github.com/sandboxkit/sandboxctl/pkg/docker"
)

// loadConfig loads the configuration honoring the global --config and
// --log-level flags, and initializes the structured logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// newDockerClient connects to the configured container runtime.
func newDockerClient(cfg *config.Config) (*docker.Client, error) {
	cli, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	return cli, nil
}
