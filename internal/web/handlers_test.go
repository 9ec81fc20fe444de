package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/whispr/internal/ai"
	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/ops"
)

type stubBackend struct{}

func (stubBackend) ListModels(context.Context) ([]ai.ModelInfo, error) {
	return []ai.ModelInfo{{Name: "llama3"}}, nil
}

func (stubBackend) Generate(context.Context, ai.GenerateRequest) (string, error) {
	return "**Cleaned** text", nil
}

func setupTest(t *testing.T) *Handlers {
	t.Helper()

	cfg := config.DefaultConfig()
	welcome := false
	cfg.WelcomeItems = &welcome

	engine, err := ops.Open(context.Background(), ops.Options{
		BaseDir: t.TempDir(),
		Config:  cfg,
		Backend: stubBackend{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	templateSub, err := fs.Sub(templateFS, "templates")
	require.NoError(t, err)

	return &Handlers{
		engine:   engine,
		renderer: NewRenderer(templateSub, "test", nil),
	}
}

// seedItem adds content to history and returns its ID.
func seedItem(t *testing.T, h *Handlers, content string) string {
	t.Helper()
	v, err := h.engine.HistoryAdd(context.Background(), ops.HistoryAddInput{Content: content})
	require.NoError(t, err)
	return v.ID
}

// serve routes a request through the full mux, security headers included.
func serve(h *Handlers, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.routes(mux)
	rec := httptest.NewRecorder()
	securityHeaders(mux).ServeHTTP(rec, req)
	return rec
}

func TestHandleHistory_Default(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "meeting notes")

	rec := serve(h, httptest.NewRequest("GET", "/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "meeting notes")
	assert.Contains(t, body, "<title>History")
}

func TestHandleHistory_MasksCards(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "4111 1111 1111 1111")

	rec := serve(h, httptest.NewRequest("GET", "/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "4111 1111 1111 1111")
	assert.Contains(t, rec.Body.String(), "1111")
}

func TestHandleHistory_Empty(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No items yet.")
}

func TestHandleHistory_Search(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "deploy checklist")
	seedItem(t, h, "lunch order")

	rec := serve(h, httptest.NewRequest("GET", "/history?q=DEPLOY", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "deploy checklist")
	assert.NotContains(t, body, "lunch order")
}

func TestHandleHistory_SearchNoResults(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "lunch order")

	rec := serve(h, httptest.NewRequest("GET", "/history?q=zzz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No items match")
}

func TestHandleHistory_HtmxReturnsContentOnly(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "fragment me")

	req := httptest.NewRequest("GET", "/history", nil)
	req.Header.Set("HX-Request", "true")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "fragment me")
}

func TestHandleHistory_HtmxTargetResults_ReturnsFragment(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "only results")

	req := httptest.NewRequest("GET", "/history?q=only", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "results")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "only results")
	assert.NotContains(t, body, "<h1>History</h1>")
}

func TestHandleHistory_InvalidLimitFallsBack(t *testing.T) {
	h := setupTest(t)
	seedItem(t, h, "still listed")

	rec := serve(h, httptest.NewRequest("GET", "/history?limit=abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "still listed")
}

func TestRoot_RedirectsToHistory(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/history", rec.Header().Get("Location"))
}

func TestSecurityHeaders(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/history", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")
}

func TestHandleDetail_Found(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "detail body")

	rec := serve(h, httptest.NewRequest("GET", "/history/"+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "detail body")
	assert.Contains(t, body, `value="clean"`)
	assert.Contains(t, body, `value="rewrite"`)
}

func TestHandleDetail_CardHidesRewriteAndFullNumber(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "4111 1111 1111 1111")

	rec := serve(h, httptest.NewRequest("GET", "/history/"+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "4111 1111 1111 1111")
	assert.NotContains(t, body, `value="rewrite"`)
	assert.Contains(t, body, `value="summarize"`)
}

func TestHandleDetail_NotFound(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/history/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error 404")
}

func TestHandleDetail_EmptyID(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("GET", "/history/", nil)
	rec := httptest.NewRecorder()
	h.HandleDetail(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAction_RendersMarkdownResult(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()
	id := seedItem(t, h, "messy   text")
	_, err := h.engine.Discover(ctx)
	require.NoError(t, err)

	form := url.Values{"action": {"clean"}, "wait": {"true"}}
	req := httptest.NewRequest("POST", "/history/"+id+"/ai", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(h, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/history/"+id, rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest("GET", "/history/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<strong>Cleaned</strong> text")
}

func TestHandleAction_UnknownAction(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "text")

	form := url.Values{"action": {"dance"}}
	req := httptest.NewRequest("POST", "/history/"+id+"/ai", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestHandleClearAI(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()
	id := seedItem(t, h, "messy   text")
	_, err := h.engine.Discover(ctx)
	require.NoError(t, err)
	_, err = h.engine.PerformAction(ctx, ops.PerformActionInput{ItemID: id, Action: "clean", Wait: true})
	require.NoError(t, err)

	rec := serve(h, httptest.NewRequest("GET", "/history/"+id, nil))
	require.Contains(t, rec.Body.String(), "Clear result")

	rec = serve(h, httptest.NewRequest("POST", "/history/"+id+"/ai/clear", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/history/"+id, rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest("GET", "/history/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<strong>Cleaned</strong>")
}

func TestHandlePause_Toggles(t *testing.T) {
	h := setupTest(t)

	form := url.Values{"paused": {"true"}}
	req := httptest.NewRequest("POST", "/settings/pause", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"paused":true}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest("GET", "/history", nil))
	assert.Contains(t, rec.Body.String(), "Resume")

	req = httptest.NewRequest("POST", "/settings/pause", strings.NewReader("paused=false"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, h.engine.History().Paused())
}

func TestHandleCapacity(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("POST", "/settings/capacity", strings.NewReader("capacity=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, float64(config.MinHistoryCapacity), out["capacity"])

	req = httptest.NewRequest("POST", "/settings/capacity", strings.NewReader("capacity=lots"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSelectFolder(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()
	f, err := h.engine.FolderCreate(ctx, "Work")
	require.NoError(t, err)

	rec := serve(h, httptest.NewRequest("POST", "/folders/"+f.ID+"/select", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	list, err := h.engine.FolderList(ctx)
	require.NoError(t, err)
	require.Len(t, list.Folders, 1)
	assert.True(t, list.Folders[0].Selected)

	req := httptest.NewRequest("POST", "/folders/missing/select", nil)
	req.Header.Set("Accept", "application/json")
	rec = serve(h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePin_JSONRequest(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "pin me")

	req := httptest.NewRequest("POST", "/history/"+id+"/pin", nil)
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["is_pinned"])
}

func TestHandleDelete_HtmxRequest(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "delete me")

	req := httptest.NewRequest("DELETE", "/history/"+id, nil)
	req.Header.Set("HX-Request", "true")
	rec := serve(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/history", rec.Header().Get("HX-Redirect"))
}

func TestHandleDelete_FormFallbackRedirects(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "delete me")

	rec := serve(h, httptest.NewRequest("POST", "/history/"+id+"/delete", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/history", rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest("GET", "/history/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDelete_NotFound_JSON(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("DELETE", "/history/nonexistent", nil)
	req.Header.Set("Accept", "text/html, application/json")
	rec := serve(h, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	errObj := payload["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestFolders_CreateAddAndView(t *testing.T) {
	h := setupTest(t)
	id := seedItem(t, h, "keep this snippet")

	form := url.Values{"name": {"Snippets"}}
	req := httptest.NewRequest("POST", "/folders", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var folder map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &folder))
	folderID := folder["id"].(string)

	form = url.Values{"folder_id": {folderID}}
	req = httptest.NewRequest("POST", "/history/"+id+"/folder", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/folders/"+folderID, rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest("GET", "/folders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Snippets")
	assert.Contains(t, rec.Body.String(), "1 items")

	rec = serve(h, httptest.NewRequest("GET", "/folders/"+folderID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keep this snippet")

	rec = serve(h, httptest.NewRequest("GET", "/folders/"+folderID+"?q=nothing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No items match")
}

func TestFolders_CreateRequiresName(t *testing.T) {
	h := setupTest(t)

	req := httptest.NewRequest("POST", "/folders", strings.NewReader("name="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rec := serve(h, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="error-message"`)
}

func TestFolder_NotFound(t *testing.T) {
	h := setupTest(t)

	rec := serve(h, httptest.NewRequest("GET", "/folders/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=abc", 20},
		{"limit=-1", -1},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/history?"+tt.query, nil)
		assert.Equal(t, tt.want, parseIntParam(req, "limit", 20), tt.query)
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n b\t c", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}

func TestRenderMarkdown(t *testing.T) {
	assert.Contains(t, string(renderMarkdown("# Title")), "<h1>Title</h1>")
	assert.NotContains(t, string(renderMarkdown("<script>alert(1)</script>")), "<script>")
}

func TestNewServer_BindsLoopback(t *testing.T) {
	h := setupTest(t)

	srv, err := NewServer(h.engine, "test", 8765, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8765", srv.Addr)
}
