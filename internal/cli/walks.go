package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	walksCmd.AddCommand(walksSweepCmd)
	rootCmd.AddCommand(walksCmd)
}

var walksCmd = &cobra.Command{
	Use:   "walks",
	Short: "Walk lifecycle maintenance",
}

var walksSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Auto-complete active walks that overran their planned duration",
	Args:  cobra.NoArgs,
	RunE:  runWalksSweep,
}

func runWalksSweep(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	n, err := d.Walks.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Auto-completed %d walks.\n", n)
	return nil
}
