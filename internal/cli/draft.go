package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reportmate/internal/citation"
	"reportmate/internal/draft"
)

var (
	draftFlags  queryFlags
	draftExpand int
	draftOut    string
	draftResume string
	draftTitle  string
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Generate a cited thesis draft",
	Long: `Indexes the given files, retrieves per-section evidence and asks the
generator for an outline, a draft and a source map. Each --expand pass
lengthens the draft while keeping earlier evidence. The footnoted markdown
is printed; --out saves the draft JSON for later export or expansion.`,
	Args: cobra.NoArgs,
	RunE: runDraft,
}

func init() {
	draftFlags.register(draftCmd)
	draftCmd.Flags().IntVar(&draftExpand, "expand", 0, "number of expansion passes")
	draftCmd.Flags().StringVarP(&draftOut, "out", "o", "", "write the draft JSON to this path")
	draftCmd.Flags().StringVar(&draftResume, "resume", "", "expand a draft JSON saved by an earlier run")
	draftCmd.Flags().StringVar(&draftTitle, "title", citation.DefaultTitle, "markdown title")
	rootCmd.AddCommand(draftCmd)
}

func runDraft(cmd *cobra.Command, _ []string) error {
	a, cleanup, err := openApp()
	if err != nil {
		return err
	}
	defer cleanup()

	var current *draft.Draft
	if draftResume != "" {
		if current, err = readDraft(draftResume); err != nil {
			return err
		}
		if draftExpand == 0 {
			draftExpand = 1
		}
	}

	drafter, err := a.Drafter()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	sess, err := buildSession(ctx, a, draftFlags.files)
	if err != nil {
		return err
	}
	defer a.Engine.Release(ctx, sess)

	if current == nil {
		current, _, err = drafter.Draft(ctx, sess, draftFlags.query(), nil)
		if err != nil {
			return err
		}
	}
	for i := 0; i < draftExpand; i++ {
		current, _, err = drafter.Draft(ctx, sess, draftFlags.query(), current)
		if err != nil {
			return fmt.Errorf("expansion pass %d: %w", i+1, err)
		}
	}

	if draftOut != "" {
		data, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(draftOut, data, 0o644); err != nil {
			return fmt.Errorf("write draft: %w", err)
		}
	}
	if missing := current.MissingEvidence(); len(missing) > 0 {
		cmd.PrintErrf("%d cited tags have no evidence summary\n", len(missing))
	}
	cmd.Println(citation.Footnoted(draftTitle, current.Body.List(), current.Evidence))
	return nil
}

func readDraft(path string) (*draft.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	return draft.Parse(data, nil)
}
