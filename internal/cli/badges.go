package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yalla-nemshi/nemshi/internal/app/engagement"
	"github.com/yalla-nemshi/nemshi/internal/daemon"
	"github.com/yalla-nemshi/nemshi/internal/domain"
)

func init() {
	badgesCmd.AddCommand(badgesListCmd, badgesShowCmd, badgesReevaluateCmd)
	rootCmd.AddCommand(badgesCmd)
}

var badgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "Inspect the badge catalog and user badges",
}

var badgesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the configured badge catalog",
	Args:    cobra.NoArgs,
	RunE:    runBadgesList,
}

var badgesShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show a user's stats and badge progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runBadgesShow,
}

var badgesReevaluateCmd = &cobra.Command{
	Use:   "reevaluate <uid>",
	Short: "Re-run badge evaluation against a user's current stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runBadgesReevaluate,
}

func runBadgesList(cmd *cobra.Command, args []string) error {
	// The catalog needs no store, so skip wiring the daemon.
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	catalog, err := engagement.LoadCatalogFile(cfg.Badges.CatalogFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMETRIC\tTARGET")
	for _, def := range catalog.Definitions() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.ID, def.Title, def.Metric, formatNumber(def.Target))
	}
	return w.Flush()
}

func runBadgesShow(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	uid := args[0]
	stats, err := d.Stats.Get(cmd.Context(), uid)
	if err != nil {
		return err
	}
	fmt.Printf("Walks: %d  Minutes: %d  Km: %s\n\n",
		stats.TotalWalksCompleted, stats.TotalDurationSeconds/60, formatNumber(stats.TotalDistanceKm))

	docs, err := d.Store.Query(cmd.Context(), domain.Query{Collection: domain.BadgesCollection(uid)})
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No badges evaluated yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BADGE\tPROGRESS\tTARGET\tEARNED")
	for _, doc := range docs {
		st := domain.DecodeBadgeState(doc.ID, doc.Data)
		earned := "-"
		if st.Achieved && st.EarnedAt != nil {
			earned = st.EarnedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.BadgeID, formatNumber(st.Progress), formatNumber(st.Target), earned)
	}
	return w.Flush()
}

func runBadgesReevaluate(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	eval, err := d.Recorder.Reevaluate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Updated %d badges, %d newly earned.\n", len(eval.Updated), len(eval.NewlyEarned))
	for _, def := range eval.NewlyEarned {
		fmt.Printf("  + %s (%s)\n", def.Title, def.ID)
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
