package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandboxkit/sandboxctl/internal/cli/output"
	"github.com/sandboxkit/sandboxctl/internal/cli/prompt"
	"github.com/sandboxkit/sandboxctl/internal/logger"
	"github.com/sandboxkit/sandboxctl/pkg/lifecycle"
	"github.com/sandboxkit/sandboxctl/pkg/metrics"
	"github.com/sandboxkit/sandboxctl/pkg/provision"
	"github.com/sandboxkit/sandboxctl/pkg/seed"
)

var provisionOutput string

var provisionCmd = &cobra.Command{
	Use:   "provision <container-name> <user-tag>",
	Short: "Provision an isolated sandbox for a tenant",
	Long: `Provision a complete sandbox for a tenant: a private volume seeded
from the configured source directory, access to the shared volume, a
registry entry, a per-tenant image, and a running container on the shared
bridge network.

The container name must consist of letters, digits, hyphens, and
underscores only. The user tag is free-form metadata recorded alongside
the tenant.

Examples:
  # Provision a sandbox for alice
  sandboxctl provision alice dev

  # Re-provision without prompting
  sandboxctl provision alice dev --yes

  # Machine-readable result
  sandboxctl provision alice dev --output json`,
	Args: cobra.ExactArgs(2),
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVarP(&provisionOutput, "output", "o", "table", "Output format: table or json")
}

func runProvision(cmd *cobra.Command, args []string) error {
	containerName, userTag := args[0], args[1]

	format, err := output.ParseFormat(provisionOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newDockerClient(cfg)
	if err != nil {
		return err
	}
	defer cli.Close()

	seeder, err := seed.NewSeeder(cfg.SeedOptions())
	if err != nil {
		return fmt.Errorf("invalid seed configuration: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.PushgatewayURL != "" {
		recorder = metrics.NewRecorder()
	}

	confirm := func(label string) (bool, error) {
		return prompt.ConfirmWithForce(label, assumeYes, cfg.Provision.AutoRecreate)
	}

	provisioner := provision.New(cli, seeder, cfg.ProvisionSettings(), confirm, recorder)
	result, err := provisioner.Provision(ctx, containerName, userTag)

	if recorder != nil {
		if pushErr := recorder.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, containerName); pushErr != nil {
			logger.Warn("failed to push metrics", logger.KeyError, pushErr)
		}
	}

	if err != nil {
		if errors.Is(err, lifecycle.ErrConflictDeclined) {
			return fmt.Errorf("aborted: %w", err)
		}
		printFailureContext(result)
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), result)
	}

	printAccessSummary(cmd, result)
	return nil
}

// printAccessSummary prints the human-readable result of a successful run.
func printAccessSummary(cmd *cobra.Command, result *provision.Result) {
	out := cmd.OutOrStdout()

	switch result.Status {
	case provision.StatusWarning:
		fmt.Fprintf(out, "Sandbox %s provisioned with warnings\n\n", result.Record.ContainerName)
	default:
		fmt.Fprintf(out, "Sandbox %s provisioned\n\n", result.Record.ContainerName)
	}

	pairs := [][2]string{
		{"Tenant", result.Record.ContainerName},
		{"Tag", result.Record.UserTag},
		{"Access URL", result.AccessURL},
		{"Container", shortID(result.ContainerID)},
		{"Private volume", result.PrivateVolume},
		{"Network", result.Network},
	}
	if result.Image != "" {
		pairs = append(pairs, [2]string{"Image", result.Image})
	}
	output.KeyValues(out, pairs)

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "\nWarning: %s\n", w)
	}
	if !result.Verified && result.LogTail != "" {
		fmt.Fprintf(out, "\nRecent container output:\n%s\n", indent(result.LogTail))
	}
}

// printFailureContext surfaces captured container output on lifecycle
// failures so the user does not have to run docker logs by hand.
func printFailureContext(result *provision.Result) {
	if result == nil || result.LogTail == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "Recent container output:\n%s\n", indent(result.LogTail))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
