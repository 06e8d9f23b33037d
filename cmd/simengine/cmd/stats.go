package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and engine statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.cleanup()

			stats := eng.svc.Stats()
			dedupStats, err := eng.svc.DedupStats(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"engine": stats,
					"dedup":  dedupStats,
				})
			}

			fmt.Printf("papers:            %d\n", stats.Index.Count)
			fmt.Printf("dimension:         %d\n", stats.Index.Dimension)
			fmt.Printf("strategy:          %s\n", stats.Index.Strategy)
			fmt.Printf("supports removal:  %v\n", stats.Index.SupportsRemoval)
			fmt.Printf("approximate:       %v\n", stats.Index.IsApproximate)
			fmt.Printf("corrupted:         %v\n", stats.Index.Corrupted)
			fmt.Printf("ledger papers:     %d\n", dedupStats.TotalPapers)
			fmt.Printf("ledger sources:    %d\n", dedupStats.UniqueSources)
			fmt.Printf("filter size:       %.1f KB\n", dedupStats.FilterSizeKB)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
