package roles

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ZargorNET/sponsormanager/cmd/cmdutil"
)

var (
	actor        string
	historyLimit int
)

// RolesCmd is the parent command for offline role administration
var RolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Manage admin roles",
	Long: `Commands for managing roles directly in the database. Use "roles grant"
to bootstrap the first admin before anyone can sign in to the settings page.`,
}

func init() {
	RolesCmd.PersistentFlags().StringVar(&actor, "actor", "cli", "Actor recorded in the change log")
	RolesCmd.AddCommand(listCmd)
	RolesCmd.AddCommand(grantCmd)
	RolesCmd.AddCommand(revokeCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of changes to show")
	RolesCmd.AddCommand(historyCmd)
}

func openBundle(ctx context.Context) (*cmdutil.RoleBundle, error) {
	cfg, err := cmdutil.ConfigFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return cmdutil.OpenRoleBundle(ctx, cfg)
}
