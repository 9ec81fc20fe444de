package web

import (
	"net/http"
	"strconv"

	"github.com/hpungsan/whispr/internal/ai"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	engine   *ops.Engine
	renderer *Renderer
}

// HandleHistory handles GET /history: the history list, filtered by q and tag.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	tag := r.URL.Query().Get("tag")

	result, err := h.engine.HistoryList(r.Context(), ops.HistoryListInput{
		Query:  query,
		Tag:    tag,
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := HistoryPageData{
		PageData: PageData{
			Title:   "History",
			Version: h.renderer.version,
			Nav:     "history",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Query:      query,
		Tag:        tag,
		Tags:       h.engine.TagList(r.Context()).Tags,
		Capacity:   result.Capacity,
		Paused:     result.Paused,
	}

	// If htmx targets #results, render only the results fragment
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "history", "history-results", data)
		return
	}
	h.renderer.renderPage(w, r, "history", data)
}

// HandleDetail handles GET /history/{id}: one item with its AI result.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("item ID is required"))
		return
	}

	view, err := h.engine.HistoryGet(r.Context(), id, true)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data := DetailPageData{
		PageData: PageData{
			Title:   "Item",
			Version: h.renderer.version,
			Nav:     "history",
		},
		Item: *view,
	}
	if view.AIResult != nil {
		data.RenderedAI = renderMarkdown(*view.AIResult)
	}

	cfg := h.engine.Config()
	for _, action := range ai.Actions {
		if cfg.ActionEnabled(action) {
			data.Actions = append(data.Actions, action)
		}
	}
	if assessed, err := h.engine.Assess(view.FullContent); err == nil {
		data.RewriteDenied = !assessed.RewriteAllowed
	}
	if folders, err := h.engine.FolderList(r.Context()); err == nil {
		data.Folders = folders.Folders
	}

	// The unmasked content is never sent to the browser.
	data.Item.FullContent = ""

	h.renderer.renderPage(w, r, "detail", data)
}

// HandlePin handles POST /history/{id}/pin: toggles the pin.
func (h *Handlers) HandlePin(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.HistoryPin(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/history", result)
}

// HandleDelete handles DELETE /history/{id} and its form fallback.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.HistoryRemove(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/history", result)
}

// HandleAction handles POST /history/{id}/ai: dispatches an AI action.
// The result appears on the detail page once the request completes.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	id := r.PathValue("id")
	result, err := h.engine.PerformAction(r.Context(), ops.PerformActionInput{
		ItemID: id,
		Action: r.FormValue("action"),
		Wait:   parseBoolValue(r.FormValue("wait")),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/history/"+id, result)
}

// HandleClearAI handles POST /history/{id}/ai/clear.
func (h *Handlers) HandleClearAI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.engine.HistoryClearAI(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/history/"+id, result)
}

// HandlePause handles POST /settings/pause: paused=true stops observation,
// anything else resumes it.
func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	result := h.engine.SetPaused(r.Context(), parseBoolValue(r.FormValue("paused")))
	h.respond(w, r, "/history", result)
}

// HandleCapacity handles POST /settings/capacity.
func (h *Handlers) HandleCapacity(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	n, err := strconv.Atoi(r.FormValue("capacity"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("capacity must be a number"))
		return
	}
	result, err := h.engine.SetCapacity(r.Context(), n)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/history", result)
}

// HandleAddToFolder handles POST /history/{id}/folder: snapshots the item into a folder.
func (h *Handlers) HandleAddToFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	folderID := r.FormValue("folder_id")
	result, err := h.engine.FolderAddItem(r.Context(), ops.FolderItemInput{
		FolderID: folderID,
		ItemID:   r.PathValue("id"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/folders/"+folderID, result)
}

// HandleFolders handles GET /folders.
func (h *Handlers) HandleFolders(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.FolderList(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "folders", FoldersPageData{
		PageData: PageData{
			Title:   "Folders",
			Version: h.renderer.version,
			Nav:     "folders",
		},
		Folders: result.Folders,
	})
}

// HandleCreateFolder handles POST /folders.
func (h *Handlers) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	result, err := h.engine.FolderCreate(r.Context(), r.FormValue("name"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/folders", result)
}

// HandleSelectFolder handles POST /folders/{id}/select.
func (h *Handlers) HandleSelectFolder(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.FolderSelect(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/folders", result)
}

// HandleFolder handles GET /folders/{id}: a folder's items, filtered by q.
func (h *Handlers) HandleFolder(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	result, err := h.engine.FolderItems(r.Context(), ops.FolderItemsInput{
		FolderID: r.PathValue("id"),
		Query:    query,
		Limit:    parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:   parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "folder", FolderPageData{
		PageData: PageData{
			Title:   result.Folder.Name,
			Version: h.renderer.version,
			Nav:     "folders",
		},
		Folder:     result.Folder,
		Items:      result.Items,
		Pagination: result.Pagination,
		Query:      query,
	})
}

// respond finishes a mutating request: HX-Redirect for htmx, the result for
// JSON clients, a redirect otherwise.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, redirect string, result any) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", redirect)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseBoolValue(s string) bool {
	return s == "true" || s == "1"
}
