package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine *ops.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(engine *ops.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// Request types for each tool

// ListRequest represents the arguments for history_list and history_search.
type ListRequest struct {
	Query  string `json:"query,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// IDRequest represents the arguments for tools addressing a single item or folder.
type IDRequest struct {
	ID string `json:"id"`
}

// TagRequest represents the arguments for history_tag and history_untag.
type TagRequest struct {
	ID  string `json:"id"`
	Tag string `json:"tag"`
}

// FolderCreateRequest represents the arguments for folder_create.
type FolderCreateRequest struct {
	Name string `json:"name"`
}

// FolderRenameRequest represents the arguments for folder_rename.
type FolderRenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FolderItemRequest represents the arguments for folder_add_item and folder_remove_item.
type FolderItemRequest struct {
	FolderID string `json:"folder_id"`
	ItemID   string `json:"item_id"`
}

// FolderItemsRequest represents the arguments for folder_items and folder_search.
type FolderItemsRequest struct {
	FolderID string `json:"folder_id"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// TagRenameRequest represents the arguments for tag_rename.
type TagRenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MapRequest represents the arguments for ai_map.
type MapRequest struct {
	Capability string `json:"capability"`
	Model      string `json:"model,omitempty"`
}

// ProcessRequest represents the arguments for ai_process.
type ProcessRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// AssessRequest represents the arguments for ai_assess.
type AssessRequest struct {
	Text string `json:"text"`
}

// Handler implementations

// HandleHistoryList handles history_list and history_search.
func (h *Handlers) HandleHistoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.engine.HistoryList(ctx, ops.HistoryListInput{
		Query:  input.Query,
		Tag:    input.Tag,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistorySearch handles history_search, which requires a query.
func (h *Handlers) HandleHistorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return errorResult(errors.NewInvalidRequest("query is required")), nil
	}
	return h.HandleHistoryList(ctx, req)
}

// HandleHistoryPin handles the history_pin tool call.
func (h *Handlers) HandleHistoryPin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.HistoryPin(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryRemove handles the history_remove tool call.
func (h *Handlers) HandleHistoryRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.HistoryRemove(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryClear handles the history_clear tool call.
func (h *Handlers) HandleHistoryClear(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.engine.HistoryClear(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryTag handles the history_tag tool call.
func (h *Handlers) HandleHistoryTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TagRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.HistoryTag(ctx, ops.TagInput{ID: input.ID, Tag: input.Tag})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryUntag handles the history_untag tool call.
func (h *Handlers) HandleHistoryUntag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TagRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.HistoryUntag(ctx, ops.TagInput{ID: input.ID, Tag: input.Tag})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleHistoryCopy handles the history_copy tool call.
func (h *Handlers) HandleHistoryCopy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.HistoryCopy(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderList handles the folder_list tool call.
func (h *Handlers) HandleFolderList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.engine.FolderList(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderCreate handles the folder_create tool call.
func (h *Handlers) HandleFolderCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderCreate(ctx, input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderRename handles the folder_rename tool call.
func (h *Handlers) HandleFolderRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderRenameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderRename(ctx, ops.FolderRenameInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderDelete handles the folder_delete tool call.
func (h *Handlers) HandleFolderDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderDelete(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderAddItem handles the folder_add_item tool call.
func (h *Handlers) HandleFolderAddItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderItemRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderAddItem(ctx, ops.FolderItemInput{FolderID: input.FolderID, ItemID: input.ItemID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderRemoveItem handles the folder_remove_item tool call.
func (h *Handlers) HandleFolderRemoveItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderItemRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderRemoveItem(ctx, ops.FolderItemInput{FolderID: input.FolderID, ItemID: input.ItemID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderItems handles folder_items and folder_search.
func (h *Handlers) HandleFolderItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderItemsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.FolderItems(ctx, ops.FolderItemsInput{
		FolderID: input.FolderID,
		Query:    input.Query,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFolderSearch handles folder_search, which requires a query.
func (h *Handlers) HandleFolderSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FolderItemsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return errorResult(errors.NewInvalidRequest("query is required")), nil
	}
	return h.HandleFolderItems(ctx, req)
}

// HandleTagList handles the tag_list tool call.
func (h *Handlers) HandleTagList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.engine.TagList(ctx))
}

// HandleTagRename handles the tag_rename tool call.
func (h *Handlers) HandleTagRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TagRenameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.TagRename(ctx, ops.TagRenameInput{From: input.From, To: input.To})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIModels handles the ai_models tool call.
func (h *Handlers) HandleAIModels(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.engine.Models(ctx))
}

// HandleAIDiscover handles the ai_discover tool call.
func (h *Handlers) HandleAIDiscover(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.engine.Discover(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIMap handles the ai_map tool call.
func (h *Handlers) HandleAIMap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MapRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.MapCapability(ctx, ops.MapInput{Capability: input.Capability, Model: input.Model})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIProcess handles the ai_process tool call.
// The call blocks until the result is attached to the item.
func (h *Handlers) HandleAIProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProcessRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.PerformAction(ctx, ops.PerformActionInput{
		ItemID: input.ID,
		Action: input.Action,
		Wait:   true,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIAdvanced handles the ai_advanced tool call.
func (h *Handlers) HandleAIAdvanced(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.ProcessAdvanced(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIAssess handles the ai_assess tool call.
func (h *Handlers) HandleAIAssess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AssessRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	result, err := h.engine.Assess(input.Text)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult creates an MCP error result with structured error info.
// Wrapped WhisprErrors keep their code; the wrapper text is prefixed to the message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var wErr *errors.WhisprError
	if stderrors.As(err, &wErr) {
		msg := wErr.Message
		if prefix := strings.TrimSuffix(err.Error(), wErr.Error()); prefix != err.Error() && prefix != "" {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    wErr.Code,
			"message": msg,
			"status":  wErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if wErr.Code != errors.ErrInternal && wErr.Details != nil {
			errorObj["details"] = wErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result with JSON data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
