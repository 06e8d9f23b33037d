package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xplagiax/simengine/internal/similarity"
)

func newSearchCmd() *cobra.Command {
	var (
		theme     string
		language  string
		threshold float64
		srcFilter []string
		noIndex   bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search [text]...",
		Short: "Run a similarity search over one or more text fragments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.cleanup()

			useIndex := !noIndex
			resp, err := eng.svc.SimilaritySearch(cmd.Context(), similarity.SimilarityRequest{
				Theme:     theme,
				Language:  language,
				Fragments: fragmentsFromArgs(args),
				Threshold: threshold,
				UseIndex:  &useIndex,
				Sources:   srcFilter,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Printf("%d matches (%d unique texts, threshold %.2f)\n",
				resp.Count, resp.ProcessedTexts, resp.ThresholdUsed)
			for _, m := range resp.Results {
				fmt.Printf("  %5.1f%%  [%-9s]  %-40.40s  %s\n",
					m.MatchPct, m.Band, m.Paper.Title, m.Paper.Source)
			}
			if resp.DeadlineExceeded {
				fmt.Println("warning: deadline exceeded, results are partial")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "general", "Search theme")
	cmd.Flags().StringVar(&language, "language", "en", "Fragment language code")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity threshold (0 = configured default)")
	cmd.Flags().StringSliceVar(&srcFilter, "sources", nil, "Restrict to these sources")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Skip the local vector index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
