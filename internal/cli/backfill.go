package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	backfillNamesCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report what would change without writing")
	backfillCmd.AddCommand(backfillProfilesCmd, backfillNamesCmd)
	rootCmd.AddCommand(backfillCmd)
}

var backfillDryRun bool

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild derived documents from source collections",
}

var backfillProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Rebuild every friend profile and walk summary",
	Args:  cobra.NoArgs,
	RunE:  runBackfillProfiles,
}

var backfillNamesCmd = &cobra.Command{
	Use:   "display-name-lower",
	Short: "Populate displayNameLower on user documents",
	Args:  cobra.NoArgs,
	RunE:  runBackfillNames,
}

func runBackfillProfiles(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	rep, err := d.Backfill.Profiles(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Profiles:        %d (%d errors)\n", rep.Profiles, rep.ProfileErrors)
	fmt.Printf("Walks:           %d (%d errors)\n", rep.Walks, rep.SummaryErrors)
	fmt.Printf("Users touched:   %d\n", rep.UsersTouched)
	fmt.Printf("Summaries pruned: %d\n", rep.Pruned)
	return nil
}

func runBackfillNames(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	rep, err := d.Backfill.DisplayNameLower(cmd.Context(), backfillDryRun)
	if err != nil {
		return err
	}
	verb := "Updated"
	if backfillDryRun {
		verb = "Would update"
	}
	fmt.Printf("Processed %d users. %s %d, skipped %d.\n", rep.Processed, verb, rep.Updated, rep.Skipped)
	return nil
}
