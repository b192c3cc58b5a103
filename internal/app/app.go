// Package app assembles the pipeline components named in an AppConfig.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"reportmate/internal/chunker"
	"reportmate/internal/config"
	"reportmate/internal/domain"
	"reportmate/internal/embedding"
	"reportmate/internal/embedding/ollama"
	"reportmate/internal/embedding/openai"
	"reportmate/internal/embedding/tfidf"
	"reportmate/internal/extractor"
	"reportmate/internal/generator"
	openaigen "reportmate/internal/generator/openai"
	"reportmate/internal/logger"
	"reportmate/internal/service"
	"reportmate/internal/snapshot"
	"reportmate/internal/summarizer"
	"reportmate/internal/vectorstore"
	"reportmate/internal/vectorstore/memory"
	"reportmate/internal/vectorstore/qdrant"
)

// App owns the long-lived components of one process.
type App struct {
	Config    *config.AppConfig
	Log       *logger.Logger
	Engine    *service.Engine
	Assembler *service.Assembler

	snapshots *snapshot.Store

	genOnce sync.Once
	gen     generator.Generator
	genErr  error
}

// Option configures an App.
type Option func(*App)

// WithGenerator replaces the configured generator.
func WithGenerator(g generator.Generator) Option {
	return func(a *App) { a.genOnce.Do(func() { a.gen = g }) }
}

// New validates cfg and builds every component except the generator, which
// is created on first use so that retrieval works without a chat API key.
func New(cfg *config.AppConfig, log *logger.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	client := embedding.NewClient(provider,
		embedding.WithBatchSize(cfg.Embedder.BatchSize),
		embedding.WithRateLimit(cfg.Embedder.RequestsPerSecond),
		embedding.WithLogger(log),
	)

	splitter, err := newSplitter(cfg)
	if err != nil {
		return nil, err
	}
	newIndex, err := newIndexFactory(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Log:       log,
		Assembler: service.NewAssembler(cfg.Retrieval.UseRAG, cfg.Extractor.FallbackMaxChars, log),
	}
	engineOpts := []service.EngineOption{service.WithLogger(log)}
	switch cfg.Summarizer.Type {
	case "frequency", "":
		engineOpts = append(engineOpts, service.WithSummarizer(summarizer.NewFrequencySummarizer(), cfg.Summarizer.MaxSentences))
	case "none":
	default:
		return nil, fmt.Errorf("%w: summarizer %q", domain.ErrUnsupportedType, cfg.Summarizer.Type)
	}
	if cfg.Snapshot.Enabled {
		store, err := snapshot.Open(cfg.Snapshot.Dir)
		if err != nil {
			return nil, fmt.Errorf("open snapshots: %w", err)
		}
		a.snapshots = store
		engineOpts = append(engineOpts, service.WithSnapshots(store))
	}
	a.Engine = service.NewEngine(extractor.New(log), splitter, client, newIndex, cfg.Extractor.MaxPages, engineOpts...)

	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Drafter returns a drafter over the configured generator.
func (a *App) Drafter() (*service.Drafter, error) {
	a.genOnce.Do(func() { a.gen, a.genErr = newGenerator(a.Config) })
	if a.genErr != nil {
		return nil, a.genErr
	}
	opts := service.DraftOptions{
		TopK:             a.Config.Retrieval.TopK,
		BaseParagraphs:   a.Config.Generator.BaseParagraphs,
		ExpandParagraphs: a.Config.Generator.ExpandParagraphs,
		MinChars:         a.Config.Generator.MinCharsPerParagraph,
	}
	return service.NewDrafter(a.gen, a.Assembler, opts, a.Log), nil
}

func (a *App) Close() error {
	if a.snapshots != nil {
		return a.snapshots.Close()
	}
	return nil
}

func newProvider(cfg *config.AppConfig) (embedding.Provider, error) {
	switch cfg.Embedder.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			o = &config.OpenAIEmbedderConfig{}
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "ollama":
		o := cfg.Embedder.Ollama
		if o == nil {
			o = &config.OllamaEmbedderConfig{}
		}
		return ollama.NewClient(ollama.Config{
			BaseURL: o.BaseURL,
			Model:   o.Model,
			Timeout: time.Duration(o.TimeoutSecs) * time.Second,
		}), nil
	}
	return nil, fmt.Errorf("%w: embedder %q", domain.ErrUnsupportedType, cfg.Embedder.Type)
}

func newSplitter(cfg *config.AppConfig) (domain.Splitter, error) {
	switch cfg.Chunker.Type {
	case "char":
		return chunker.NewCharChunker(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	}
	return nil, fmt.Errorf("%w: chunker %q", domain.ErrUnsupportedType, cfg.Chunker.Type)
}

func newIndexFactory(cfg *config.AppConfig, log *logger.Logger) (func() vectorstore.Index, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return func() vectorstore.Index { return memory.NewIndex() }, nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		qcfg := qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}
		return func() vectorstore.Index { return qdrant.NewIndex(qcfg, log) }, nil
	}
	return nil, fmt.Errorf("%w: vector store %q", domain.ErrUnsupportedType, cfg.VectorStore.Type)
}

func newGenerator(cfg *config.AppConfig) (generator.Generator, error) {
	switch cfg.Generator.Type {
	case "openai":
		g := cfg.Generator.OpenAI
		if g == nil {
			g = &config.OpenAIGeneratorConfig{APIKeyEnv: "OPENAI_API_KEY"}
		}
		key := os.Getenv(g.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfig, g.APIKeyEnv)
		}
		return openaigen.New(openaigen.Config{
			APIKey:  key,
			BaseURL: g.BaseURL,
			Model:   g.Model,
			Timeout: time.Duration(g.TimeoutSecs) * time.Second,
		})
	}
	return nil, fmt.Errorf("%w: generator %q", domain.ErrUnsupportedType, cfg.Generator.Type)
}

// ReadDocuments loads files named by paths or glob patterns. Documents are
// named by base name, which must be unique within one session.
func ReadDocuments(paths []string) ([]domain.SourceDocument, error) {
	var files []string
	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidInput, p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no files match %q", domain.ErrInvalidInput, p)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	seen := make(map[string]string, len(files))
	docs := make([]domain.SourceDocument, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f)
		if prev, ok := seen[name]; ok {
			if prev == f {
				continue
			}
			return nil, fmt.Errorf("%w: duplicate document name %q (%s, %s)", domain.ErrInvalidInput, name, prev, f)
		}
		seen[name] = f
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		docs = append(docs, domain.SourceDocument{Name: name, Content: data})
	}
	return docs, nil
}
