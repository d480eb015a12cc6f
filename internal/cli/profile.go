package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	profileCmd.AddCommand(profileRefreshCmd, profilePruneCmd)
	rootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Maintain friend-facing profile views",
}

var profileRefreshCmd = &cobra.Command{
	Use:   "refresh <uid>...",
	Short: "Rebuild the friend profile of one or more users",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProfileRefresh,
}

var profilePruneCmd = &cobra.Command{
	Use:   "prune <uid>...",
	Short: "Trim a user's walk summaries down to the configured cap",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProfilePrune,
}

func runProfileRefresh(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	for _, uid := range args {
		if err := d.Friends.RefreshProfile(cmd.Context(), uid); err != nil {
			return fmt.Errorf("%s: %w", uid, err)
		}
		fmt.Printf("Refreshed %s\n", uid)
	}
	return nil
}

func runProfilePrune(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	for _, uid := range args {
		n, err := d.Friends.EnforceWalkSummaryLimit(cmd.Context(), uid)
		if err != nil {
			return fmt.Errorf("%s: %w", uid, err)
		}
		fmt.Printf("%s: pruned %d summaries\n", uid, n)
	}
	return nil
}
