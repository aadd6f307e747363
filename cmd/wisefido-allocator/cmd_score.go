package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Print the patient queue ranked by priority score",
	Args:  cobra.NoArgs,
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, cleanup, err := loadOffline(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	queue, err := a.Queue(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tNAME\tTRIAGE\tSCORE\tRISK\tRESOURCES")
	for i, p := range queue {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f\t%s\t%s\n",
			i+1, p.ID, p.Name, p.Triage, p.Score, p.RiskLevel, strings.Join(p.Resources, ","))
	}
	return tw.Flush()
}
