package inbox

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
)

// Command creates the inbox command group, served by the running agent.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List notifications and mark them read",
	}

	cmd.AddCommand(listCommand(settings), readCommand(settings))

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of notifications for the active restaurant",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.ClientFromSettings(settings)
			defer client.Close()

			page, err := client.Inbox(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}
			return printPage(cmd.OutOrStdout(), page)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (default: inbox.pagesize)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of notifications to skip")

	return cmd
}

func readCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid notification id %q", args[0])
			}

			client := api.ClientFromSettings(settings)
			defer client.Close()

			if err := client.MarkRead(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to mark notification %d read: %w", id, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "notification %d marked read\n", id)
			return err
		},
	}
}

func printPage(w io.Writer, page *backend.NotificationPage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREAD\tCREATED\tTITLE")
	for _, n := range page.Results {
		read := "no"
		if n.IsRead {
			read = "yes"
		}
		created := "-"
		if !n.CreatedAt.IsZero() {
			created = n.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.ID, read, created, n.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d\n", len(page.Results), page.Count)
	return err
}
