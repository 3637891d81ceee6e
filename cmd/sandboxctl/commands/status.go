package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandboxkit/sandboxctl/internal/cli/output"
	"github.com/sandboxkit/sandboxctl/pkg/config"
	"github.com/sandboxkit/sandboxctl/pkg/docker"
	"github.com/sandboxkit/sandboxctl/pkg/registry"
	"github.com/sandboxkit/sandboxctl/pkg/tenant"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status [container-name]",
	Short: "Show the state of managed sandbox containers",
	Long: `Show containers managed by sandboxctl together with their current
state and tenant metadata.

With a container name, show that tenant's container state and access URL.
Without arguments, list every managed container.

Examples:
  # All managed containers
  sandboxctl status

  # One tenant
  sandboxctl status alice

  # JSON output
  sandboxctl status --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table or json")
}

// containerStatus is the JSON shape of one managed container.
type containerStatus struct {
	Name      string `json:"name"`
	UserTag   string `json:"user_tag,omitempty"`
	State     string `json:"state"`
	Image     string `json:"image"`
	ID        string `json:"id"`
	Created   string `json:"created,omitempty"`
	AccessURL string `json:"access_url,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
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

	if len(args) == 1 {
		return tenantStatus(cmd, cfg, cli, args[0], format)
	}
	return allStatus(cmd, cli, format)
}

// tenantStatus shows one tenant's container state and access URL.
func tenantStatus(cmd *cobra.Command, cfg *config.Config, cli *docker.Client, name string, format output.Format) error {
	if err := tenant.ValidateName(name); err != nil {
		return err
	}

	info, err := cli.ContainerByName(cmd.Context(), name)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("no container named %q found", name)
	}

	s := containerStatus{
		Name:  info.Name,
		State: info.State,
		Image: info.Image,
		ID:    shortID(info.ID),
	}

	// The access URL needs the user hash from the registry; the newest
	// record wins when the tenant was re-provisioned.
	if record, ok := latestRecord(cmd, cfg, cli, name); ok {
		s.UserTag = record.UserTag
		s.Created = record.Created.Format(time.RFC3339)
		s.AccessURL = tenant.AccessURL(cfg.Access.Scheme, cfg.Access.BaseDomain, record)
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), s)
	}

	pairs := [][2]string{
		{"Tenant", s.Name},
		{"State", s.State},
		{"Image", s.Image},
		{"Container", s.ID},
	}
	if s.UserTag != "" {
		pairs = append(pairs, [2]string{"Tag", s.UserTag})
	}
	if s.AccessURL != "" {
		pairs = append(pairs, [2]string{"Access URL", s.AccessURL})
	}
	output.KeyValues(cmd.OutOrStdout(), pairs)
	return nil
}

// latestRecord fetches the newest registry record for the tenant. Best
// effort: a missing shared volume or registry simply yields no record.
func latestRecord(cmd *cobra.Command, cfg *config.Config, cli *docker.Client, name string) (tenant.Record, bool) {
	shared, err := cli.InspectVolume(cmd.Context(), cfg.Shared.Volume)
	if err != nil {
		return tenant.Record{}, false
	}

	store := registry.NewStore(shared.Mountpoint, cfg.LockConfig())
	records, err := store.Find(cmd.Context(), name)
	if err != nil || len(records) == 0 {
		return tenant.Record{}, false
	}
	return records[len(records)-1], true
}

// allStatus lists every managed container.
func allStatus(cmd *cobra.Command, cli *docker.Client, format output.Format) error {
	infos, labels, err := cli.ManagedContainers(cmd.Context())
	if err != nil {
		return err
	}

	statuses := make([]containerStatus, 0, len(infos))
	for _, info := range infos {
		s := containerStatus{
			Name:  info.Name,
			State: info.State,
			Image: info.Image,
			ID:    shortID(info.ID),
		}
		if l := labels[info.Name]; l != nil {
			s.UserTag = l[docker.LabelUserTag]
			s.Created = l[docker.LabelCreated]
		}
		statuses = append(statuses, s)
	}

	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No managed containers found.")
		return nil
	}

	tbl := output.NewTable("name", "tag", "state", "image", "id")
	for _, s := range statuses {
		tbl.AddRow(s.Name, s.UserTag, s.State, s.Image, s.ID)
	}
	tbl.Render(cmd.OutOrStdout())
	return nil
}
