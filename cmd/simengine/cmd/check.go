package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xplagiax/simengine/internal/fragment"
	"github.com/xplagiax/simengine/internal/similarity"
	"github.com/xplagiax/simengine/pkg/types"
)

func newCheckCmd() *cobra.Command {
	var (
		theme     string
		language  string
		threshold float64
		chunkMode string
		minWords  int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Run a plagiarism check over a text file (or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args)
			if err != nil {
				return err
			}

			eng, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.cleanup()

			resp, err := eng.svc.PlagiarismCheck(cmd.Context(), similarity.CheckRequest{
				SimilarityRequest: similarity.SimilarityRequest{
					Theme:     theme,
					Language:  language,
					Fragments: []types.Fragment{{Page: "1", Paragraph: "1", Text: text}},
					Threshold: threshold,
				},
				ChunkMode:     fragment.Mode(chunkMode),
				MinChunkWords: minWords,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			verdict := "no plagiarism detected"
			if resp.PlagiarismDetected {
				verdict = "PLAGIARISM DETECTED"
			}
			fmt.Printf("%s (%d chunks, %d matches, mode %s)\n",
				verdict, resp.ChunksAnalyzed, resp.TotalMatches, resp.ChunkModeUsed)
			for _, band := range types.Bands() {
				if n := resp.Summary[band]; n > 0 {
					fmt.Printf("  %-9s %d\n", band, n)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "general", "Search theme")
	cmd.Flags().StringVar(&language, "language", "en", "Text language code")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity threshold (0 = configured default)")
	cmd.Flags().StringVar(&chunkMode, "chunk-mode", "", "Chunking mode: sentences or sliding (default: auto)")
	cmd.Flags().IntVar(&minWords, "min-chunk-words", 0, "Minimum words per sentence chunk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}
