package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// checkCmd verifies that the configured credentials work.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configured credentials against the backend",
	Long: `Resolve the authenticated user and count their assigned tickets.

Exits non-zero when the backend rejects the credentials or is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		service, ctx, cancel, err := newService(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		user, err := service.GetCurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve current user: %w", err)
		}

		tickets, err := service.GetIssuesAssignedTo(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch assigned tickets: %w", err)
		}

		active := 0
		for _, t := range tickets {
			if t.Status.Active() {
				active++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Provider: %s\n", service.ProviderName())
		fmt.Fprintf(out, "User:     %s (%s)\n", user.Name, user.ID)
		fmt.Fprintf(out, "Assigned: %d tickets, %d active\n", len(tickets), active)
		return nil
	},
}
