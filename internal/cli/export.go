package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reportmate/internal/citation"
	"reportmate/internal/domain"
)

var (
	exportFormat string
	exportOut    string
	exportTitle  string
)

var exportCmd = &cobra.Command{
	Use:   "export [draft.json]",
	Short: "Export citations from a saved draft",
	Long: `Reads a draft saved with "draft --out" and writes its citations as
footnoted markdown, a CSV reference table or a JSON reference export.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "markdown", "markdown, csv (table) or json")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default stdout)")
	exportCmd.Flags().StringVar(&exportTitle, "title", citation.DefaultTitle, "markdown title")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	d, err := readDraft(args[0])
	if err != nil {
		return err
	}
	sections := d.Body.List()

	var buf bytes.Buffer
	switch exportFormat {
	case "markdown", "md":
		buf.WriteString(citation.Footnoted(exportTitle, sections, d.Evidence))
		buf.WriteString("\n")
	case "csv", "table":
		err = citation.WriteCSV(&buf, citation.Table(sections, d.Evidence))
	case "json":
		err = citation.WriteJSON(&buf, citation.Structured(sections, d.Evidence))
	default:
		return fmt.Errorf("%w: export format %q", domain.ErrUnsupportedType, exportFormat)
	}
	if err != nil {
		return err
	}

	if exportOut == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	return os.WriteFile(exportOut, buf.Bytes(), 0o644)
}
