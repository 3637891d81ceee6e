package commands

import (
	"fmt"
	"time"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/sandboxkit/sandboxctl/internal/cli/output"
	"github.com/sandboxkit/sandboxctl/pkg/registry"
	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tenants",
	Long: `List every tenant recorded in the registry on the shared volume.

Re-provisioned tenants appear once per provisioning run; the registry is an
append-only log.

Examples:
  # Table output
  sandboxctl list

  # JSON output
  sandboxctl list --output json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format: table or json")
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cli, err := newDockerClient(cfg)
	if err != nil {
		return err
	}
	defer cli.Close()

	shared, err := cli.InspectVolume(cmd.Context(), cfg.Shared.Volume)
	if err != nil {
		if client.IsErrNotFound(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No tenants registered yet.")
			return nil
		}
		return err
	}

	store := registry.NewStore(shared.Mountpoint, cfg.LockConfig())
	records, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tenants registered yet.")
		return nil
	}

	tbl := output.NewTable("name", "tag", "created", "access url")
	for _, r := range records {
		tbl.AddRow(
			r.ContainerName,
			r.UserTag,
			r.Created.Local().Format(time.RFC3339),
			tenant.AccessURL(cfg.Access.Scheme, cfg.Access.BaseDomain, r),
		)
	}
	tbl.Render(cmd.OutOrStdout())
	return nil
}
