package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reportmate/internal/domain"
	"reportmate/internal/service"
)

var (
	contextFlags queryFlags
	contextTopK  int
	contextJSON  bool
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the per-section retrieval context",
	Long: `Indexes the given files and prints the context that would be handed to the
generator: one labeled block per thesis section, or the first pages when
retrieval finds nothing.`,
	Args: cobra.NoArgs,
	RunE: runContext,
}

func init() {
	contextFlags.register(contextCmd)
	contextCmd.Flags().IntVarP(&contextTopK, "top-k", "k", 0, "hits per section (default from config)")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "output sections and hits as JSON")
	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, _ []string) error {
	a, cleanup, err := openApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sess, err := buildSession(ctx, a, contextFlags.files)
	if err != nil {
		return err
	}
	defer a.Engine.Release(ctx, sess)
	k := contextTopK
	if k <= 0 {
		k = a.Config.Retrieval.TopK
	}
	asm, err := a.Assembler.Assemble(ctx, sess, contextFlags.query(), domain.DefaultSections(), k)
	if err != nil {
		return fmt.Errorf("assemble context: %w", err)
	}
	if asm.Reason != "" {
		cmd.PrintErrf("retrieval fallback: %s\n", asm.Reason)
	}
	if contextJSON {
		return printAssemblyJSON(cmd, asm)
	}
	cmd.Println(asm.Context)
	return nil
}

func printAssemblyJSON(cmd *cobra.Command, asm service.Assembly) error {
	type section struct {
		Name string                `json:"name"`
		Hits []domain.RetrievalHit `json:"hits"`
	}
	out := struct {
		Context  string    `json:"context"`
		Degraded bool      `json:"degraded"`
		Reason   string    `json:"reason,omitempty"`
		Sections []section `json:"sections"`
	}{Context: asm.Context, Degraded: asm.Degraded, Reason: asm.Reason, Sections: []section{}}
	for _, sc := range asm.Sections {
		out.Sections = append(out.Sections, section{Name: sc.Section.Name, Hits: sc.Hits})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
