package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nemshi trigger and callable server",
	Long: `Start the HTTP server that receives document-change triggers and the
redeemWalkInvite callable, and runs the walk auto-complete sweep.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	// Override config from flags
	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}

	return d.Serve(cmd.Context())
}
