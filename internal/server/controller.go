package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"reportmate/internal/app"
	"reportmate/internal/citation"
	"reportmate/internal/domain"
	"reportmate/internal/service"
)

// controller handles the HTTP API on top of an App.
type controller struct {
	app      *app.App
	sessions *sessionStore
}

func newController(a *app.App) *controller {
	return &controller{app: a, sessions: newSessionStore()}
}

// createSession builds a session from the uploaded files[] parts.
func (c *controller) createSession(ctx *gin.Context) {
	docs, err := readUploads(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	sess, err := c.app.Engine.Rebuild(ctx.Request.Context(), service.RetrievalSession{}, docs)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sessions.put(sess, docs)
	ctx.JSON(http.StatusCreated, newSessionResponse(sess, docs))
}

// updateSession rebuilds a session over a new upload set. An unchanged set
// returns the existing index. Updates and deletion of one session run one
// at a time.
func (c *controller) updateSession(ctx *gin.Context) {
	id := ctx.Param("id")
	entry, err := c.sessions.get(id)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	docs, err := readUploads(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	entry.update.Lock()
	defer entry.update.Unlock()
	entry, release, err := c.sessions.hold(ctx.Request.Context(), id, c.app.Engine)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer release()

	sess, err := c.app.Engine.Rebuild(ctx.Request.Context(), entry.sess, docs)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sessions.put(sess, docs)
	ctx.JSON(http.StatusOK, newSessionResponse(sess, docs))
}

func (c *controller) getSession(ctx *gin.Context) {
	entry, err := c.sessions.get(ctx.Param("id"))
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newSessionResponse(entry.sess, entry.docs))
}

// deleteSession forgets a session, dropping its index and stored snapshot.
func (c *controller) deleteSession(ctx *gin.Context) {
	id := ctx.Param("id")
	entry, err := c.sessions.get(id)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	entry.update.Lock()
	defer entry.update.Unlock()
	entry, err = c.sessions.delete(id)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if err := c.app.Engine.Forget(ctx.Request.Context(), entry.sess); err != nil {
		c.app.Log.Warn("forget session failed", "session", entry.sess.ID, "error", err)
	}
	ctx.Status(http.StatusNoContent)
}

func (c *controller) releaseAll(ctx context.Context) {
	for _, e := range c.sessions.drain() {
		c.app.Engine.Release(ctx, e.sess)
	}
}

func (c *controller) search(ctx *gin.Context) {
	var req searchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	entry, release, err := c.sessions.hold(ctx.Request.Context(), ctx.Param("id"), c.app.Engine)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer release()
	k := req.TopK
	if k <= 0 {
		k = c.app.Config.Retrieval.TopK
	}
	hits, err := service.Search(ctx.Request.Context(), entry.sess, req.Query, k)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"hits": newHits(hits)})
}

func (c *controller) assembleContext(ctx *gin.Context) {
	var req queryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	entry, release, err := c.sessions.hold(ctx.Request.Context(), ctx.Param("id"), c.app.Engine)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer release()
	k := req.TopK
	if k <= 0 {
		k = c.app.Config.Retrieval.TopK
	}
	asm, err := c.app.Assembler.Assemble(ctx.Request.Context(), entry.sess, req.query(), domain.DefaultSections(), k)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newContextResponse(asm))
}

// draft generates a draft, or expands the session's last draft when
// expand is set.
func (c *controller) draft(ctx *gin.Context) {
	var req draftRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	entry, release, err := c.sessions.hold(ctx.Request.Context(), ctx.Param("id"), c.app.Engine)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer release()
	if req.Expand && entry.draft == nil {
		c.fail(ctx, fmt.Errorf("%w: session %s has no draft to expand", domain.ErrInvalidInput, entry.sess.ID))
		return
	}
	drafter, err := c.app.Drafter()
	if err != nil {
		c.fail(ctx, err)
		return
	}
	prev := entry.draft
	if !req.Expand {
		prev = nil
	}
	out, asm, err := drafter.Draft(ctx.Request.Context(), entry.sess, req.query(), prev)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sessions.setDraft(entry.sess.ID, out)
	ctx.JSON(http.StatusOK, gin.H{
		"draft":            out,
		"used_refs":        out.UsedTags(),
		"missing_evidence": out.MissingEvidence(),
		"degraded_context": asm.Degraded,
	})
}

// citationTable returns the reference rows as JSON, or as CSV with ?format=csv.
func (c *controller) citationTable(ctx *gin.Context) {
	req, ok := bindCitations(ctx)
	if !ok {
		return
	}
	rows := citation.Table(req.Sections, req.SourceMap)
	if ctx.Query("format") == "csv" {
		var buf bytes.Buffer
		if err := citation.WriteCSV(&buf, rows); err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.Header("Content-Disposition", `attachment; filename="reference_table.csv"`)
		ctx.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (c *controller) citationJSON(ctx *gin.Context) {
	req, ok := bindCitations(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, citation.Structured(req.Sections, req.SourceMap))
}

func (c *controller) citationMarkdown(ctx *gin.Context) {
	req, ok := bindCitations(ctx)
	if !ok {
		return
	}
	ctx.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(citation.Footnoted(req.Title, req.Sections, req.SourceMap)))
}

func (c *controller) citationRender(ctx *gin.Context) {
	req, ok := bindCitations(ctx)
	if !ok {
		return
	}
	type rendered struct {
		Name     string             `json:"name"`
		Segments []citation.Segment `json:"segments"`
	}
	out := make([]rendered, len(req.Sections))
	for i, s := range req.Sections {
		out[i] = rendered{Name: s.Name, Segments: citation.Segments(s.Text, req.SourceMap)}
	}
	ctx.JSON(http.StatusOK, gin.H{"sections": out})
}

func bindCitations(ctx *gin.Context) (citationRequest, bool) {
	var req citationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func (c *controller) fail(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.app.Log.Error("request failed", "path", ctx.FullPath(), "status", status, "error", err)
	} else {
		c.app.Log.Debug("request rejected", "path", ctx.FullPath(), "status", status, "error", err)
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoExtractableText), errors.Is(err, domain.ErrUnsupportedType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbeddingBackend), errors.Is(err, domain.ErrGeneratorOutput):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func readUploads(ctx *gin.Context) ([]domain.SourceDocument, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: multipart form: %v", domain.ErrInvalidInput, err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", domain.ErrInvalidInput)
	}
	seen := make(map[string]bool, len(files))
	docs := make([]domain.SourceDocument, 0, len(files))
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate document name %q", domain.ErrInvalidInput, name)
		}
		seen[name] = true
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", name, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", name, err)
		}
		docs = append(docs, domain.SourceDocument{Name: name, Content: data})
	}
	return docs, nil
}
