package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"reportmate/internal/tui"
)

var tuiFiles []string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse retrieval results interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := openApp()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		sess, err := buildSession(ctx, a, tuiFiles)
		if err != nil {
			return err
		}
		defer a.Engine.Release(ctx, sess)
		port := tui.SessionPort{Session: sess, Assembler: a.Assembler, TopK: a.Config.Retrieval.TopK}
		m := tui.New(ctx, port, sess.Summary, a.Config.Retrieval.TopK)
		_, err = tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
		return err
	},
}

func init() {
	tuiCmd.Flags().StringSliceVarP(&tuiFiles, "file", "f", nil, "source document or glob (repeatable)")
	rootCmd.AddCommand(tuiCmd)
}
