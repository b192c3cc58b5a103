package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reportmate/internal/domain"
	"reportmate/internal/service"
)

var (
	queryFiles []string
	queryLimit int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the indexed sources",
	Long: `Indexes the given files and prints the chunks most similar to the query,
ranked by cosine similarity.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVarP(&queryFiles, "file", "f", nil, "source document or glob (repeatable)")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "maximum number of results")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, cleanup, err := openApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sess, err := buildSession(ctx, a, queryFiles)
	if err != nil {
		return err
	}
	defer a.Engine.Release(ctx, sess)
	hits, err := service.Search(ctx, sess, args[0], queryLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if queryJSON {
		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printHits(cmd, hits)
	return nil
}

func printHits(cmd *cobra.Command, hits []domain.RetrievalHit) {
	if len(hits) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, h := range hits {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, h.Label(), h.Score)
		cmd.Printf("      %s\n\n", snippet(h.Chunk.Text, 200))
	}
}

func snippet(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
