package roles

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZargorNET/sponsormanager/internal/repository"
)

var grantCmd = &cobra.Command{
	Use:   "grant [email...]",
	Short: "Grant ADMIN to one or more emails",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateAdmins(cmd.Context(), func(current []string) []string {
			return append(current, args...)
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [email...]",
	Short: "Demote one or more admins to USER",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drop := make(map[string]struct{}, len(args))
		for _, email := range args {
			drop[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
		}
		return updateAdmins(cmd.Context(), func(current []string) []string {
			return slices.DeleteFunc(current, func(email string) bool {
				_, ok := drop[email]
				return ok
			})
		})
	},
}

// updateAdmins applies edit to the current admin set through ReplaceAdmins
// so CLI changes land in the change log like changes made over HTTP.
func updateAdmins(ctx context.Context, edit func(current []string) []string) error {
	bundle, err := openBundle(ctx)
	if err != nil {
		return err
	}
	defer bundle.Close()

	records, err := bundle.Roles.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}
	current := make([]string, 0, len(records))
	for _, r := range records {
		current = append(current, r.Email)
	}

	diff, err := bundle.Roles.ReplaceAdmins(ctx, actor, edit(current))
	if err != nil {
		return fmt.Errorf("failed to update admins: %w", err)
	}
	printDiff(diff)
	return nil
}

func printDiff(diff repository.AdminDiff) {
	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		fmt.Println("No changes")
		return
	}
	for _, email := range diff.Added {
		fmt.Printf("granted ADMIN to %s\n", email)
	}
	for _, email := range diff.Removed {
		fmt.Printf("demoted %s to USER\n", email)
	}
}
