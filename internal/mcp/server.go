package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"history", "folder", "tag", "ai"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"history_list":       {historyListToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryList }},
	"history_search":     {historySearchToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistorySearch }},
	"history_pin":        {historyPinToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryPin }},
	"history_remove":     {historyRemoveToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryRemove }},
	"history_clear":      {historyClearToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryClear }},
	"history_tag":        {historyTagToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryTag }},
	"history_untag":      {historyUntagToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryUntag }},
	"history_copy":       {historyCopyToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistoryCopy }},
	"folder_list":        {folderListToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderList }},
	"folder_create":      {folderCreateToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderCreate }},
	"folder_rename":      {folderRenameToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderRename }},
	"folder_delete":      {folderDeleteToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderDelete }},
	"folder_add_item":    {folderAddItemToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderAddItem }},
	"folder_remove_item": {folderRemoveItemToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderRemoveItem }},
	"folder_items":       {folderItemsToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderItems }},
	"folder_search":      {folderSearchToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleFolderSearch }},
	"tag_list":           {tagListToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleTagList }},
	"tag_rename":         {tagRenameToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleTagRename }},
	"ai_models":          {aiModelsToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIModels }},
	"ai_discover":        {aiDiscoverToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIDiscover }},
	"ai_map":             {aiMapToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIMap }},
	"ai_process":         {aiProcessToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIProcess }},
	"ai_advanced":        {aiAdvancedToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIAdvanced }},
	"ai_assess":          {aiAssessToolDef, func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIAssess }},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "folder_create" → "folder").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server backed by a live engine.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration. AI tools are skipped when AI is disabled.
func NewServer(engine *ops.Engine, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"whispr",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(engine)

	disabledTypes := cfg.DisabledTypes
	if cfg.AIDisabled {
		disabledTypes = append(append([]string(nil), disabledTypes...), "ai")
	}

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(disabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(engine *ops.Engine, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(engine, cfg, version))
}
