// Package config loads, defaults, validates, and persists the sandboxctl
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config captures the static configuration of the provisioning tool:
//   - Logging behavior
//   - Docker daemon endpoint
//   - Shared infrastructure names (network, shared volume)
//   - Seed sources and copy policy knobs
//   - Registry lock tuning
//   - Image build and container lifecycle settings
//   - Tenant access URL composition
//   - Optional Prometheus Pushgateway metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SANDBOXCTL_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Docker configures the connection to the container daemon
	Docker DockerConfig `mapstructure:"docker" yaml:"docker"`

	// Network is the shared bridge network all sandboxes join
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// Shared configures the volume shared across all tenants
	Shared SharedConfig `mapstructure:"shared" yaml:"shared"`

	// Seed configures the data sources copied into volumes
	Seed SeedConfig `mapstructure:"seed" yaml:"seed"`

	// Lock tunes the registry file lock
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`

	// Build configures the per-tenant image build
	Build BuildConfig `mapstructure:"build" yaml:"build"`

	// Container configures the sandbox container itself
	Container ContainerConfig `mapstructure:"container" yaml:"container"`

	// Template configures per-tenant runtime configuration rendering
	Template TemplateConfig `mapstructure:"template" yaml:"template"`

	// Access composes the tenant access URL
	Access AccessConfig `mapstructure:"access" yaml:"access"`

	// Provision controls orchestrator behavior
	Provision ProvisionConfig `mapstructure:"provision" yaml:"provision"`

	// Metrics configures the optional Pushgateway export
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// DockerConfig configures the connection to the container daemon.
type DockerConfig struct {
	// Host overrides the daemon endpoint. Empty uses DOCKER_HOST or the
	// platform default socket.
	Host string `mapstructure:"host" yaml:"host,omitempty"`
}

// NetworkConfig names the shared bridge network.
type NetworkConfig struct {
	// Name of the bridge network every sandbox container joins
	// Default: "sandbox-net"
	Name string `mapstructure:"name" validate:"required" yaml:"name"`
}

// SharedConfig configures the cross-tenant shared volume.
type SharedConfig struct {
	// Volume is the name of the shared Docker volume. It holds the tenant
	// registry and any shared seed data.
	// Default: "sandbox-shared"
	Volume string `mapstructure:"volume" validate:"required" yaml:"volume"`

	// Mount is the in-container mount target for the shared volume
	// Default: "/srv/shared"
	Mount string `mapstructure:"mount" validate:"required" yaml:"mount"`
}

// SeedConfig configures the data sources copied into volumes.
type SeedConfig struct {
	// PrivateDir is copied into the tenant's private volume on every run
	PrivateDir string `mapstructure:"private_dir" validate:"required" yaml:"private_dir"`

	// SharedDir is copied into the shared volume only when it is empty.
	// Empty disables shared seeding.
	SharedDir string `mapstructure:"shared_dir" yaml:"shared_dir,omitempty"`

	// Excludes are glob patterns never copied into volumes
	// Default: VCS metadata, dependency caches, and local env files
	Excludes []string `mapstructure:"excludes" yaml:"excludes,omitempty"`

	// OwnerUID and OwnerGID are applied to every copied file.
	// Zero or negative leaves ownership untouched.
	OwnerUID int `mapstructure:"owner_uid" yaml:"owner_uid,omitempty"`
	OwnerGID int `mapstructure:"owner_gid" yaml:"owner_gid,omitempty"`
}

// LockConfig tunes the registry file lock.
type LockConfig struct {
	// RetryInterval is the pause between lock acquisition attempts
	// Default: 200ms
	RetryInterval time.Duration `mapstructure:"retry_interval" validate:"required,gt=0" yaml:"retry_interval"`

	// MaxRetries is the number of acquisition attempts before timing out
	// Default: 50
	MaxRetries int `mapstructure:"max_retries" validate:"required,gt=0" yaml:"max_retries"`

	// StaleAfter is the age past which a leftover lock is broken.
	// Zero disables staleness breaking.
	// Default: 1m
	StaleAfter time.Duration `mapstructure:"stale_after" validate:"gte=0" yaml:"stale_after"`
}

// BuildConfig configures the per-tenant image build.
type BuildConfig struct {
	// ContextDir is the image build context. Empty skips the build and
	// runs BaseImage directly.
	ContextDir string `mapstructure:"context_dir" yaml:"context_dir,omitempty"`

	// Dockerfile is the Dockerfile path relative to ContextDir
	// Default: "Dockerfile"
	Dockerfile string `mapstructure:"dockerfile" yaml:"dockerfile,omitempty"`

	// ImagePrefix prefixes the per-tenant image reference
	// Default: "sandbox"
	ImagePrefix string `mapstructure:"image_prefix" yaml:"image_prefix,omitempty"`

	// BaseImage is the image used when no build context is configured
	BaseImage string `mapstructure:"base_image" yaml:"base_image,omitempty"`

	// Excludes are patterns dropped from the build context tarball
	Excludes []string `mapstructure:"excludes" yaml:"excludes,omitempty"`
}

// ContainerConfig configures the sandbox container.
type ContainerConfig struct {
	// PrivateMount is the in-container mount target for the private volume
	// Default: "/srv/data"
	PrivateMount string `mapstructure:"private_mount" validate:"required" yaml:"private_mount"`

	// Port is the container port published on an ephemeral host port.
	// 0 disables publishing.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`

	// VerifyDelay is the pause before each liveness check after start
	// Default: 2s
	VerifyDelay time.Duration `mapstructure:"verify_delay" validate:"required,gt=0" yaml:"verify_delay"`

	// VerifyAttempts is the number of liveness checks before reporting
	// the container unverified
	// Default: 3
	VerifyAttempts int `mapstructure:"verify_attempts" validate:"required,gt=0" yaml:"verify_attempts"`

	// LogTail is how many log lines to capture when verification fails
	// Default: 40
	LogTail int `mapstructure:"log_tail" validate:"gte=0" yaml:"log_tail"`
}

// TemplateConfig configures per-tenant runtime configuration rendering.
type TemplateConfig struct {
	// Path is the runtime configuration template. Empty skips rendering.
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// OutputName is the rendered file's name inside the private volume
	// Default: "runtime.yaml"
	OutputName string `mapstructure:"output_name" yaml:"output_name,omitempty"`
}

// AccessConfig composes the tenant access URL.
type AccessConfig struct {
	// Scheme of the access URL
	// Default: "https"
	Scheme string `mapstructure:"scheme" validate:"required,oneof=http https" yaml:"scheme"`

	// BaseDomain of the access URL, e.g. "sandbox.example.com"
	BaseDomain string `mapstructure:"base_domain" validate:"required,hostname" yaml:"base_domain"`
}

// ProvisionConfig controls orchestrator behavior.
type ProvisionConfig struct {
	// AutoRecreate is the answer assumed for conflict confirmations when
	// stdin is not a terminal. The --yes flag forces it to true.
	// Default: true
	AutoRecreate bool `mapstructure:"auto_recreate" yaml:"auto_recreate"`
}

// MetricsConfig configures the optional Pushgateway export.
// When PushgatewayURL is empty, no metrics are pushed.
type MetricsConfig struct {
	// PushgatewayURL is the Prometheus Pushgateway base URL
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url" yaml:"pushgateway_url,omitempty"`

	// Job is the Pushgateway job label
	// Default: "sandboxctl"
	Job string `mapstructure:"job" yaml:"job,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SANDBOXCTL_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// No config file: run on defaults alone.
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages. It checks that
// the config file exists and points the user at 'sandboxctl init' if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  sandboxctl init\n\n"+
				"Or specify a custom config file:\n"+
				"  sandboxctl <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  sandboxctl init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the SANDBOXCTL_ prefix with
// underscores, e.g. SANDBOXCTL_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SANDBOXCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans cannot be defaulted after unmarshal; the zero value is
	// indistinguishable from an explicit false.
	v.SetDefault("provision.auto_recreate", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path. Uses
// XDG_CONFIG_HOME if set, otherwise ~/.config, or the current directory if
// home cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sandboxctl")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "sandboxctl")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
