// Package cli is the reportmate command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reportmate/internal/app"
	"reportmate/internal/config"
	"reportmate/internal/domain"
	"reportmate/internal/logger"
	"reportmate/internal/service"
)

var version = "dev"

var (
	cfgPath string
	verbose bool
)

// appOptions are passed to every App the commands build.
var appOptions []app.Option

var rootCmd = &cobra.Command{
	Use:   "reportmate",
	Short: "Evidence-grounded thesis drafting over your own PDFs",
	Long: `reportmate indexes uploaded PDFs, retrieves per-section evidence and drafts
a thesis with [REF:file,pN] citations that can be exported as footnotes,
a reference table or JSON.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml, then ~/.config/reportmate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// openApp loads the configuration and builds an App. The returned cleanup
// closes it and flushes the logger.
func openApp() (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Mode, verbose)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, log, appOptions...)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			log.Warn("close app", "error", err)
		}
		log.Sync()
	}, nil
}

// buildSession reads files and indexes them into a fresh session.
func buildSession(ctx context.Context, a *app.App, files []string) (service.RetrievalSession, error) {
	if len(files) == 0 {
		return service.RetrievalSession{}, fmt.Errorf("%w: at least one --file is required", domain.ErrInvalidInput)
	}
	docs, err := app.ReadDocuments(files)
	if err != nil {
		return service.RetrievalSession{}, err
	}
	sess, err := a.Engine.Rebuild(ctx, service.RetrievalSession{}, docs)
	if err != nil {
		return service.RetrievalSession{}, fmt.Errorf("build index: %w", err)
	}
	a.Log.Info("index ready", "session", sess.ID, "documents", len(docs), "chunks", len(sess.Chunks))
	return sess, nil
}

type queryFlags struct {
	files      []string
	topic      string
	purpose    string
	hypothesis string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.files, "file", "f", nil, "source document or glob (repeatable)")
	cmd.Flags().StringVar(&f.topic, "topic", "", "research topic")
	cmd.Flags().StringVar(&f.purpose, "purpose", "", "research purpose")
	cmd.Flags().StringVar(&f.hypothesis, "hypothesis", "", "research hypothesis")
}

func (f *queryFlags) query() service.Query {
	return service.Query{Topic: f.topic, Purpose: f.purpose, Hypothesis: f.hypothesis}
}
