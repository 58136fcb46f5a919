package roles

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List admins",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle(cmd.Context())
		if err != nil {
			return err
		}
		defer bundle.Close()

		admins, err := bundle.Roles.ListAdmins(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list admins: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tROLE\tUPDATED_AT")
		for _, a := range admins {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Email, a.Role, a.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent role changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		bundle, err := openBundle(cmd.Context())
		if err != nil {
			return err
		}
		defer bundle.Close()

		changes, err := bundle.Changes.ListRecent(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list changes: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED_AT\tACTOR\tEMAIL\tROLE")
		for _, c := range changes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.CreatedAt.Format(time.RFC3339), c.Actor, c.Email, c.Role)
		}
		return w.Flush()
	},
}
