package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportmate/internal/app"
	"reportmate/internal/config"
	"reportmate/internal/domain"
	"reportmate/internal/draft"
	"reportmate/internal/service"
	"reportmate/internal/snapshot"
)

type scriptedGenerator struct{ outputs []string }

func (g *scriptedGenerator) ModelName() string { return "scripted" }

func (g *scriptedGenerator) Generate(context.Context, draft.Prompt) ([]byte, error) {
	out := g.outputs[0]
	g.outputs = g.outputs[1:]
	return []byte(out), nil
}

func newTestServer(t *testing.T, gen *scriptedGenerator) *Server {
	t.Helper()
	return newConfiguredServer(t, config.Default(), gen)
}

func newConfiguredServer(t *testing.T, cfg *config.AppConfig, gen *scriptedGenerator) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var opts []app.Option
	if gen != nil {
		opts = append(opts, app.WithGenerator(gen))
	}
	a, err := app.New(cfg, nil, opts...)
	require.NoError(t, err)
	srv, err := New(a)
	require.NoError(t, err)
	return srv
}

func upload(t *testing.T, method, path string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, srv *Server) sessionResponse {
	t.Helper()
	rec := serve(srv, upload(t, http.MethodPost, "/api/v1/sessions", map[string]string{
		"methods.txt": "Survey sampling uses a stratified design. Regression measures the effect.",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	createSession(t, srv)
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reportmate_index_builds_total")
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := createSession(t, srv)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.Ready)
	assert.Empty(t, sess.Status)
	assert.Equal(t, []string{"methods.txt"}, sess.Documents)
	assert.Equal(t, 1, sess.Chunks)

	rec := serve(srv, jsonRequest(t, "/api/v1/sessions/"+sess.ID+"/search", gin.H{"query": "stratified sampling", "top_k": 3}))
	require.Equal(t, http.StatusOK, rec.Code)
	var hits struct {
		Hits []hitResponse `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits.Hits, 1)
	assert.Equal(t, "[SOURCE: methods.txt, PAGE: 1]", hits.Hits[0].Label)

	rec = serve(srv, upload(t, http.MethodPut, "/api/v1/sessions/"+sess.ID, map[string]string{
		"methods.txt": "Survey sampling uses a stratified design. Regression measures the effect.",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, sess.ID, updated.ID)
	assert.Equal(t, sess.BuiltAt, updated.BuiltAt)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSession_Errors(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := serve(srv, upload(t, http.MethodPost, "/api/v1/sessions", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, upload(t, http.MethodPost, "/api/v1/sessions", map[string]string{"blank.txt": "   \n  "}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no extractable text")
}

func TestContext(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := createSession(t, srv)

	rec := serve(srv, jsonRequest(t, "/api/v1/sessions/"+sess.ID+"/context", gin.H{"topic": "survey design"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var out contextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Degraded)
	assert.Contains(t, out.Context, "=== SECTION CONTEXT: 서론 ===")
	assert.NotEmpty(t, out.Sections)

	rec = serve(srv, jsonRequest(t, "/api/v1/sessions/missing/context", gin.H{}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftAndExpand(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{
		`{"interactive_draft":{"서론":"a [REF:methods.txt,p1]"},"source_map":{"[REF:methods.txt,p1]":"design"}}`,
		`{"interactive_draft":{"서론":"a [REF:methods.txt,p1] more"}}`,
	}}
	srv := newTestServer(t, gen)
	sess := createSession(t, srv)
	path := "/api/v1/sessions/" + sess.ID + "/draft"

	rec := serve(srv, jsonRequest(t, path, gin.H{"topic": "t", "expand": true}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(srv, jsonRequest(t, path, gin.H{"topic": "t"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(srv, jsonRequest(t, path, gin.H{"topic": "t", "expand": true}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Draft draft.Draft `json:"draft"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Draft.ExpansionLevel)
	assert.Equal(t, "design", out.Draft.Evidence["[REF:methods.txt,p1]"])
	assert.True(t, strings.HasSuffix(out.Draft.Body.Introduction, "more"))
}

func TestCitations(t *testing.T) {
	srv := newTestServer(t, nil)
	body := gin.H{
		"sections": []gin.H{
			{"name": "서론", "text": "x [REF:a.pdf,p2] y [REF:b.pdf,p1] z [REF:a.pdf,p2]"},
		},
		"source_map": gin.H{"[REF:a.pdf,p2]": "A2"},
	}

	rec := serve(srv, jsonRequest(t, "/api/v1/citations/table?format=csv", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\ufeffref_tag,file,page,evidence_summary\n\"[REF:a.pdf,p2]\",a.pdf,2,A2\n\"[REF:b.pdf,p1]\",b.pdf,1,\n", rec.Body.String())

	rec = serve(srv, jsonRequest(t, "/api/v1/citations/json", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"used_refs":["[REF:a.pdf,p2]","[REF:b.pdf,p1]"],"source_map_used":{"[REF:a.pdf,p2]":"A2","[REF:b.pdf,p1]":""}}`, rec.Body.String())

	rec = serve(srv, jsonRequest(t, "/api/v1/citations/markdown", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "x [^1] y [^2] z [^1]")

	rec = serve(srv, jsonRequest(t, "/api/v1/citations/render", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"evidence":"A2"`)

	rec = serve(srv, jsonRequest(t, "/api/v1/citations/json", gin.H{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := serve(srv, httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDeleteSessionEvictsSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Snapshot = config.SnapshotConfig{Enabled: true, Dir: dir}
	srv := newConfiguredServer(t, cfg, nil)
	defer srv.app.Close()
	sess := createSession(t, srv)

	store, err := snapshot.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Load(context.Background(), sess.Fingerprint)
	require.NoError(t, err)

	rec := serve(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = store.Load(context.Background(), sess.Fingerprint)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// slowQdrant tracks live collections and delays point upserts so that
// overlapping builds really overlap.
type slowQdrant struct {
	mu   sync.Mutex
	live map[string]bool
}

func (q *slowQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	if len(parts) == 2 && parts[1] == "points" {
		time.Sleep(50 * time.Millisecond)
	}
	q.mu.Lock()
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodPut:
			q.live[parts[0]] = true
		case http.MethodDelete:
			delete(q.live, parts[0])
		}
	}
	q.mu.Unlock()
	_, _ = w.Write([]byte(`{"result":true}`))
}

func (q *slowQdrant) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live)
}

func TestConcurrentUpdatesDropReplacedCollections(t *testing.T) {
	fake := &slowQdrant{live: map[string]bool{}}
	qs := httptest.NewServer(fake)
	defer qs.Close()

	cfg := config.Default()
	cfg.VectorStore = config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: qs.URL, Collection: "t"}}
	srv := newConfiguredServer(t, cfg, nil)
	defer srv.app.Close()
	sess := createSession(t, srv)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i, text := range []string{
		"Interviews follow a semi-structured protocol.",
		"Panel data tracks the same students over three years.",
	} {
		req := upload(t, http.MethodPut, "/api/v1/sessions/"+sess.ID, map[string]string{"methods.txt": text})
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = serve(srv, req).Code
		}()
	}
	wg.Wait()
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)
	assert.Equal(t, 1, fake.count(), "only the current build keeps a collection")

	rec := serve(srv, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+sess.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, fake.count())
}

func TestHeldSessionSurvivesUpdate(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := createSession(t, srv)

	entry, release, err := srv.ctrl.sessions.hold(context.Background(), sess.ID, srv.app.Engine)
	require.NoError(t, err)

	rec := serve(srv, upload(t, http.MethodPut, "/api/v1/sessions/"+sess.ID, map[string]string{
		"interviews.txt": "Interviews follow a semi-structured protocol.",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	hits, err := service.Search(context.Background(), entry.sess, "stratified sampling", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "methods.txt", hits[0].Chunk.Document)

	release()
	assert.False(t, entry.sess.Ready(), "replaced index dropped with its last reference")
}
