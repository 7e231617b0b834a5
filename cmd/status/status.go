package status

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
)

// Command creates the command that prints the running agent's state.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the state of the running agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.ClientFromSettings(settings)
			defer client.Close()

			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("agent unreachable at %s: %w", settings.Agent.Listen, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}
