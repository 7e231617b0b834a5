package agent

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	pushagent "github.com/tabladeV/manager.tabla-sub002/internal/agent"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
)

// Command creates the command that runs the push agent until interrupted.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the push agent",
		Long: `Run the push agent: follow the dashboard session, keep the device token
registered for the active restaurant, show incoming notifications and serve
the control API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.Agent.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return pushagent.Run(ctx, settings, build)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Control API listen address (overrides agent.listen)")

	return cmd
}
