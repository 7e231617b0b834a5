package session

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tabladeV/manager.tabla-sub002/internal/api"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
)

// Command creates the session command group. Every subcommand reports a
// dashboard session change to the running agent.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Report dashboard session changes to the running agent",
	}

	cmd.AddCommand(loginCommand(settings), logoutCommand(settings), restaurantCommand(settings))

	return cmd
}

func loginCommand(settings *conf.Settings) *cobra.Command {
	var req api.LoginRequest

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and select the active restaurant",
		Example: `  tabla-push session login --access-token=eyJhbGciOi... --restaurant=12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.ClientFromSettings(settings)
			defer client.Close()

			resp, err := client.Login(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			return printSession(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&req.AccessToken, "access-token", "", "Dashboard access token")
	cmd.Flags().StringVar(&req.RefreshToken, "refresh-token", "", "Dashboard refresh token")
	cmd.Flags().StringVar(&req.RestaurantID, "restaurant", "", "Restaurant to receive notifications for")
	_ = cmd.MarkFlagRequired("access-token")

	return cmd
}

func logoutCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out; the device stops receiving notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.ClientFromSettings(settings)
			defer client.Close()

			resp, err := client.Logout(cmd.Context())
			if err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			return printSession(cmd.OutOrStdout(), resp)
		},
	}
}

func restaurantCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "restaurant <id>",
		Short: "Switch the active restaurant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.ClientFromSettings(settings)
			defer client.Close()

			resp, err := client.SwitchRestaurant(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("restaurant switch failed: %w", err)
			}
			return printSession(cmd.OutOrStdout(), resp)
		},
	}
}

func printSession(w io.Writer, resp *api.SessionResponse) error {
	if !resp.IsLoggedIn {
		_, err := fmt.Fprintln(w, "logged out")
		return err
	}
	restaurant := resp.RestaurantID
	if restaurant == "" {
		restaurant = "(none)"
	}
	_, err := fmt.Fprintf(w, "logged in, restaurant %s\n", restaurant)
	return err
}
