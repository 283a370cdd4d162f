package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// teamsCmd lists the teams of the configured workspace, which is where
// create_ticket takes its team_id from.
var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List the teams of the configured workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, ctx, cancel, err := newService(cmd)
		if err != nil {
			return err
		}
		defer cancel()

		workspace, err := service.GetWorkspace(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch workspace: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Workspace: %s\n\n", workspace.Name)
		if len(workspace.Teams) == 0 {
			fmt.Fprintln(out, "No teams visible to these credentials.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tID")
		for _, team := range workspace.Teams {
			fmt.Fprintf(w, "%s\t%s\t%s\n", team.Key, team.Name, team.ID)
		}
		return w.Flush()
	},
}
