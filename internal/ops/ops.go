// Package ops implements the consumer-facing operations shared by the CLI,
// the MCP server and the web UI.
package ops

import (
	"strings"

	"github.com/hpungsan/whispr/internal/classify"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ItemView is an item as shown to consumers. Card numbers are masked in
// Content; FullContent is filled only when explicitly requested.
type ItemView struct {
	ID           string                   `json:"id"`
	Content      string                   `json:"content"`
	FullContent  string                   `json:"full_content,omitempty"`
	Type         item.ContentType         `json:"type"`
	CreatedAt    int64                    `json:"created_at"`
	SourceApp    string                   `json:"source_app,omitempty"`
	FilePath     string                   `json:"file_path,omitempty"`
	IsPinned     bool                     `json:"is_pinned"`
	Tags         []string                 `json:"tags"`
	AIResult     *string                  `json:"ai_result,omitempty"`
	AIAdvanced   *item.AIProcessingResult `json:"ai_advanced,omitempty"`
	IsProcessing bool                     `json:"is_processing"`
}

// NewItemView builds a view of it. Unmasked content is included only when
// reveal is set.
func NewItemView(it *item.Item, reveal bool) ItemView {
	v := ItemView{
		ID:           it.ID,
		Content:      classify.Display(it),
		Type:         it.Type,
		CreatedAt:    it.CreatedAt.Unix(),
		SourceApp:    it.SourceApp,
		FilePath:     it.FilePath,
		IsPinned:     it.IsPinned,
		Tags:         it.Tags,
		AIResult:     it.AIResult,
		AIAdvanced:   it.AIAdvanced,
		IsProcessing: it.IsProcessing,
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if reveal {
		v.FullContent = it.Content
	}
	return v
}

func viewItems(items []*item.Item) []ItemView {
	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = NewItemView(it, false)
	}
	return out
}

// paginate applies limit defaults and bounds and slices items.
func paginate(items []*item.Item, limit, offset int) ([]*item.Item, Pagination) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset = max(offset, 0)

	total := len(items)
	start := min(offset, total)
	end := min(start+limit, total)
	return items[start:end], Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
		Total:   total,
	}
}

// requireID trims id and rejects an empty one.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest(field + " is required")
	}
	return id, nil
}
