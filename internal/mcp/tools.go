package mcp

import "github.com/mark3labs/mcp-go/mcp"

var (
	historyListToolDef = mcp.NewTool("history_list",
		mcp.WithDescription("List clipboard history, pinned items first, newest first. Card numbers are masked."),
		mcp.WithString("tag", mcp.Description("Only items carrying this tag")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	)
	historySearchToolDef = mcp.NewTool("history_search",
		mcp.WithDescription("Search history by case-insensitive substring of content, source app or tag."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	)
	historyPinToolDef = mcp.NewTool("history_pin",
		mcp.WithDescription("Toggle an item's pin. At most max_pinned items can be pinned."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	)
	historyRemoveToolDef = mcp.NewTool("history_remove",
		mcp.WithDescription("Remove one item from history."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	)
	historyClearToolDef = mcp.NewTool("history_clear",
		mcp.WithDescription("Remove every history item, including pinned ones."),
	)
	historyTagToolDef = mcp.NewTool("history_tag",
		mcp.WithDescription("Add a tag to an item. The tag is added to the vocabulary."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag (trimmed and lowercased)")),
	)
	historyUntagToolDef = mcp.NewTool("history_untag",
		mcp.WithDescription("Remove a tag from an item."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag")),
	)
	historyCopyToolDef = mcp.NewTool("history_copy",
		mcp.WithDescription("Copy an item's full content to the system clipboard."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	)

	folderListToolDef = mcp.NewTool("folder_list",
		mcp.WithDescription("List folders, most recently updated first."),
	)
	folderCreateToolDef = mcp.NewTool("folder_create",
		mcp.WithDescription("Create an empty encrypted folder."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Folder name")),
	)
	folderRenameToolDef = mcp.NewTool("folder_rename",
		mcp.WithDescription("Rename a folder."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Folder id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
	)
	folderDeleteToolDef = mcp.NewTool("folder_delete",
		mcp.WithDescription("Delete a folder and its encrypted contents."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Folder id")),
	)
	folderAddItemToolDef = mcp.NewTool("folder_add_item",
		mcp.WithDescription("Copy a history item into a folder as an independent snapshot."),
		mcp.WithString("folder_id", mcp.Required(), mcp.Description("Folder id")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("History item id")),
	)
	folderRemoveItemToolDef = mcp.NewTool("folder_remove_item",
		mcp.WithDescription("Remove an item from a folder."),
		mcp.WithString("folder_id", mcp.Required(), mcp.Description("Folder id")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item id")),
	)
	folderItemsToolDef = mcp.NewTool("folder_items",
		mcp.WithDescription("List a folder's items. An unreadable folder lists as empty."),
		mcp.WithString("folder_id", mcp.Required(), mcp.Description("Folder id")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	)
	folderSearchToolDef = mcp.NewTool("folder_search",
		mcp.WithDescription("Search a folder's items with the same matching as history_search."),
		mcp.WithString("folder_id", mcp.Required(), mcp.Description("Folder id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
		mcp.WithNumber("offset", mcp.Description("Items to skip")),
	)

	tagListToolDef = mcp.NewTool("tag_list",
		mcp.WithDescription("List the tag vocabulary."),
	)
	tagRenameToolDef = mcp.NewTool("tag_rename",
		mcp.WithDescription("Rename a tag in the vocabulary and on every history item."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Existing tag")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New tag")),
	)

	aiModelsToolDef = mcp.NewTool("ai_models",
		mcp.WithDescription("Show discovered models, the capability mapping and connectivity."),
	)
	aiDiscoverToolDef = mcp.NewTool("ai_discover",
		mcp.WithDescription("Query the local inference server for installed models."),
	)
	aiMapToolDef = mcp.NewTool("ai_map",
		mcp.WithDescription("Assign a model to a capability. Omit model to clear the assignment."),
		mcp.WithString("capability", mcp.Required(), mcp.Description("classification, suggestion, ranking, grouping, rewrite, clean, summarize or translate")),
		mcp.WithString("model", mcp.Description("Discovered model name")),
	)
	aiProcessToolDef = mcp.NewTool("ai_process",
		mcp.WithDescription("Run an AI action on a history item and wait for the result."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("action", mcp.Required(), mcp.Description("clean, summarize, rewrite, translate or explain")),
	)
	aiAdvancedToolDef = mcp.NewTool("ai_advanced",
		mcp.WithDescription("Compute capability routing and risk for a history item and attach it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	)
	aiAssessToolDef = mcp.NewTool("ai_assess",
		mcp.WithDescription("Classify text and report whether it looks sensitive."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to assess")),
	)
)
