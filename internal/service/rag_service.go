package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"reportmate/internal/chunker"
	"reportmate/internal/domain"
	"reportmate/internal/embedding"
	"reportmate/internal/extractor"
	"reportmate/internal/logger"
	"reportmate/internal/metrics"
	"reportmate/internal/snapshot"
	"reportmate/internal/vectorstore"
)

// RetrievalSession is the immutable result of a build: the index and the
// material it was built from. Callers hold it and pass it back to Rebuild.
type RetrievalSession struct {
	ID          string
	Fingerprint string
	Index       vectorstore.Index
	Embedder    *embedding.Client
	Pages       []domain.Page
	Chunks      []domain.Chunk
	Summary     string
	BuiltAt     time.Time
}

// Ready reports whether the session's index can answer searches.
func (s RetrievalSession) Ready() bool {
	return s.Index != nil && s.Embedder != nil && s.Index.Ready()
}

// Status returns nil for a ready session and ErrIndexNotReady otherwise.
func (s RetrievalSession) Status() error {
	if s.Ready() {
		return nil
	}
	if s.Fingerprint == "" {
		return fmt.Errorf("%w: session never built", domain.ErrIndexNotReady)
	}
	return fmt.Errorf("%w: session %s released", domain.ErrIndexNotReady, s.ID)
}

// Engine turns source documents into a RetrievalSession.
type Engine struct {
	extractor        domain.Extractor
	splitter         domain.Splitter
	embedder         *embedding.Client
	newIndex         func() vectorstore.Index
	summarizer       domain.Summarizer
	summarySentences int
	snapshots        *snapshot.Store
	maxPages         int
	log              *logger.Logger

	group   singleflight.Group
	buildMu sync.Mutex

	// mu guards flights and refs. refs counts the sessions holding each
	// built index; an index is dropped when its last holder releases it.
	mu      sync.Mutex
	flights map[string]*flight
	refs    map[vectorstore.Index]int
}

// flight tracks the callers waiting on one shared build.
type flight struct {
	waiters int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSummarizer enables a corpus summary on every build.
func WithSummarizer(s domain.Summarizer, maxSentences int) EngineOption {
	return func(e *Engine) {
		e.summarizer = s
		e.summarySentences = maxSentences
	}
}

// WithSnapshots reuses and stores builds in a snapshot store.
func WithSnapshots(s *snapshot.Store) EngineOption {
	return func(e *Engine) { e.snapshots = s }
}

func WithLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// NewEngine wires the pipeline stages. newIndex is called once per build so
// that a failed build never touches the index of an earlier session.
func NewEngine(ex domain.Extractor, sp domain.Splitter, em *embedding.Client, newIndex func() vectorstore.Index, maxPages int, opts ...EngineOption) *Engine {
	e := &Engine{
		extractor: ex,
		splitter:  sp,
		embedder:  em,
		newIndex:  newIndex,
		maxPages:  maxPages,
		log:       logger.Nop(),
		flights:   make(map[string]*flight),
		refs:      make(map[vectorstore.Index]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fingerprint returns the fingerprint docs would be built under.
func (e *Engine) Fingerprint(docs []domain.SourceDocument) string {
	return Fingerprint(docs, e.maxPages, e.splitter, e.embedder.Model())
}

// Rebuild returns prev unchanged when it is ready and its fingerprint
// matches docs; otherwise it builds a new session. Only one build runs at a
// time; concurrent callers with the same fingerprint share its result.
//
// The shared build is detached from any one caller: a caller whose ctx ends
// stops waiting and gets ctx.Err(), while the build goes on for the others.
// On success the index of prev is released.
func (e *Engine) Rebuild(ctx context.Context, prev RetrievalSession, docs []domain.SourceDocument) (RetrievalSession, error) {
	fp := e.Fingerprint(docs)
	if prev.Ready() && prev.Fingerprint == fp {
		metrics.IndexBuilds.WithLabelValues("reused").Inc()
		e.log.Debug("index up to date", "fingerprint", fp)
		return prev, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	e.mu.Lock()
	f, ok := e.flights[fp]
	if !ok {
		f = &flight{}
		e.flights[fp] = f
	}
	f.waiters++
	ch := e.group.DoChan(fp, func() (any, error) {
		e.buildMu.Lock()
		defer e.buildMu.Unlock()
		sess, err := e.build(buildCtx, fp, docs)

		e.mu.Lock()
		delete(e.flights, fp)
		e.group.Forget(fp)
		e.mu.Unlock()
		return sess, err
	})
	e.mu.Unlock()

	select {
	case r := <-ch:
		next, err := e.settle(f, r, true)
		if err != nil {
			metrics.IndexBuilds.WithLabelValues("failed").Inc()
			return prev, err
		}
		if prev.Index != nil && prev.Index != next.Index {
			e.Release(ctx, prev)
		}
		next.ID = prev.ID
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		return next, nil
	case <-ctx.Done():
		go func() { _, _ = e.settle(f, <-ch, false) }()
		e.log.Debug("stopped waiting for build", "fingerprint", fp, "error", ctx.Err())
		return prev, ctx.Err()
	}
}

// settle accounts for one caller receiving a build result. A kept result
// takes a reference on its index; when the last caller of a flight has
// abandoned it and nobody kept the index, the index is dropped.
func (e *Engine) settle(f *flight, r singleflight.Result, keep bool) (RetrievalSession, error) {
	if r.Err != nil {
		e.mu.Lock()
		f.waiters--
		e.mu.Unlock()
		return RetrievalSession{}, r.Err
	}
	sess := r.Val.(RetrievalSession)

	e.mu.Lock()
	f.waiters--
	orphan := false
	if keep {
		e.refs[sess.Index]++
	} else if f.waiters == 0 && e.refs[sess.Index] == 0 {
		orphan = true
	}
	e.mu.Unlock()

	if orphan {
		e.dropIndex(context.Background(), sess)
	}
	return sess, nil
}

// Acquire takes another reference to the session's index, keeping it alive
// until a matching Release. It reports false when the index is no longer
// held by any session.
func (e *Engine) Acquire(sess RetrievalSession) bool {
	if sess.Index == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.refs[sess.Index]
	if !ok {
		return false
	}
	e.refs[sess.Index] = n + 1
	return true
}

// Release gives up one reference to the session's index and drops the
// index once no session holds it. Unknown or already released indexes are
// left alone.
func (e *Engine) Release(ctx context.Context, sess RetrievalSession) {
	if sess.Index == nil {
		return
	}
	e.mu.Lock()
	n, ok := e.refs[sess.Index]
	if ok {
		n--
		if n > 0 {
			e.refs[sess.Index] = n
		} else {
			delete(e.refs, sess.Index)
		}
	}
	e.mu.Unlock()

	if ok && n == 0 {
		e.dropIndex(context.WithoutCancel(ctx), sess)
	}
}

// Forget releases the session and evicts its stored snapshot, so the next
// build of the same documents starts from scratch.
func (e *Engine) Forget(ctx context.Context, sess RetrievalSession) error {
	e.Release(ctx, sess)
	if e.snapshots == nil || sess.Fingerprint == "" {
		return nil
	}
	if err := e.snapshots.Delete(ctx, sess.Fingerprint); err != nil {
		return fmt.Errorf("evict snapshot: %w", err)
	}
	return nil
}

func (e *Engine) dropIndex(ctx context.Context, sess RetrievalSession) {
	if err := sess.Index.Drop(ctx); err != nil {
		e.log.Warn("index drop failed", "fingerprint", sess.Fingerprint, "error", err)
		return
	}
	e.log.Debug("index dropped", "fingerprint", sess.Fingerprint)
}

func (e *Engine) build(ctx context.Context, fp string, docs []domain.SourceDocument) (RetrievalSession, error) {
	if sess, ok := e.restore(ctx, fp); ok {
		return sess, nil
	}

	pages, err := extractor.ExtractAll(ctx, e.extractor, docs, e.maxPages, e.log)
	if err != nil {
		return RetrievalSession{}, err
	}
	chunks := chunker.ChunkPages(pages, e.splitter)
	if len(chunks) == 0 {
		names := make([]string, len(docs))
		for i, d := range docs {
			names[i] = d.Name
		}
		return RetrievalSession{}, &domain.NoExtractableTextError{Documents: names}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	client, err := e.embedder.Fit(texts)
	if err != nil {
		return RetrievalSession{}, err
	}
	vectors, err := client.Embed(ctx, texts)
	if err != nil {
		var be *domain.EmbeddingBackendError
		if errors.As(err, &be) {
			if first := be.Batch * client.BatchSize(); first < len(chunks) {
				be.Document = chunks[first].Document
			}
		}
		return RetrievalSession{}, err
	}

	idx := e.newIndex()
	if err := idx.Build(ctx, chunks, vectors); err != nil {
		return RetrievalSession{}, err
	}

	sess := RetrievalSession{
		Fingerprint: fp,
		Index:       idx,
		Embedder:    client,
		Pages:       pages,
		Chunks:      chunks,
		Summary:     e.summarize(pages),
		BuiltAt:     time.Now(),
	}
	e.store(ctx, sess, vectors)

	metrics.IndexBuilds.WithLabelValues("built").Inc()
	metrics.IndexedChunks.Set(float64(len(chunks)))
	e.log.Info("index built", "documents", len(docs), "pages", len(pages), "chunks", len(chunks), "fingerprint", fp)
	return sess, nil
}

// restore loads a stored build for fp. Providers that learn from the corpus
// are re-fitted on the stored chunk texts, which needs no embedding calls.
func (e *Engine) restore(ctx context.Context, fp string) (RetrievalSession, bool) {
	if e.snapshots == nil {
		return RetrievalSession{}, false
	}
	snap, err := e.snapshots.Load(ctx, fp)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("snapshot load failed", "fingerprint", fp, "error", err)
		}
		return RetrievalSession{}, false
	}
	texts := make([]string, len(snap.Chunks))
	for i, c := range snap.Chunks {
		texts[i] = c.Text
	}
	client, err := e.embedder.Fit(texts)
	if err != nil {
		e.log.Warn("snapshot refit failed", "fingerprint", fp, "error", err)
		return RetrievalSession{}, false
	}
	idx := e.newIndex()
	if err := idx.Build(ctx, snap.Chunks, snap.Vectors); err != nil {
		e.log.Warn("snapshot index build failed", "fingerprint", fp, "error", err)
		return RetrievalSession{}, false
	}
	metrics.IndexBuilds.WithLabelValues("snapshot").Inc()
	metrics.IndexedChunks.Set(float64(len(snap.Chunks)))
	e.log.Info("index restored from snapshot", "chunks", len(snap.Chunks), "fingerprint", fp)
	return RetrievalSession{
		Fingerprint: fp,
		Index:       idx,
		Embedder:    client,
		Pages:       snap.Pages,
		Chunks:      snap.Chunks,
		Summary:     snap.Summary,
		BuiltAt:     snap.CreatedAt,
	}, true
}

func (e *Engine) store(ctx context.Context, sess RetrievalSession, vectors [][]float64) {
	if e.snapshots == nil {
		return
	}
	err := e.snapshots.Save(ctx, &snapshot.Snapshot{
		Fingerprint: sess.Fingerprint,
		Model:       sess.Embedder.Model(),
		Summary:     sess.Summary,
		Pages:       sess.Pages,
		Chunks:      sess.Chunks,
		Vectors:     vectors,
		CreatedAt:   sess.BuiltAt,
	})
	if err != nil {
		e.log.Warn("snapshot save failed", "fingerprint", sess.Fingerprint, "error", err)
	}
}

func (e *Engine) summarize(pages []domain.Page) string {
	if e.summarizer == nil {
		return ""
	}
	var all strings.Builder
	for _, p := range pages {
		all.WriteString("\n")
		all.WriteString(p.Text)
	}
	summary, err := e.summarizer.Summarize(all.String(), e.summarySentences)
	if err != nil {
		e.log.Warn("summary failed", "error", err)
		return ""
	}
	return summary
}

// Search embeds query with the session's embedder and returns the top k hits.
// A session that is not ready yields no hits.
func Search(ctx context.Context, sess RetrievalSession, query string, k int) ([]domain.RetrievalHit, error) {
	if !sess.Ready() {
		return nil, nil
	}
	vec, err := sess.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return sess.Index.Search(ctx, vec, k)
}
