package ops

import (
	"context"
	"strconv"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// HistoryListInput contains parameters for HistoryList.
type HistoryListInput struct {
	Query  string // optional; same matching as search
	Tag    string // optional; only items carrying the tag
	Limit  int    // default: 20, max: 100
	Offset int
}

// HistoryListOutput contains the result of HistoryList.
type HistoryListOutput struct {
	Items      []ItemView `json:"items"`
	Pagination Pagination `json:"pagination"`
	Capacity   int        `json:"capacity"`
	Paused     bool       `json:"paused"`
}

// HistoryList returns history in display order: pinned first, newest first.
func (e *Engine) HistoryList(ctx context.Context, input HistoryListInput) (*HistoryListOutput, error) {
	items := e.history.Search(input.Query)
	if tag := item.NormalizeTag(input.Tag); tag != "" {
		n := 0
		for _, it := range items {
			if it.HasTag(tag) {
				items[n] = it
				n++
			}
		}
		items = items[:n]
	}
	page, p := paginate(items, input.Limit, input.Offset)
	return &HistoryListOutput{
		Items:      viewItems(page),
		Pagination: p,
		Capacity:   e.history.Capacity(),
		Paused:     e.history.Paused(),
	}, nil
}

// HistoryGet returns one item. Reveal includes unmasked card content.
func (e *Engine) HistoryGet(ctx context.Context, id string, reveal bool) (*ItemView, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	it, err := e.history.Get(id)
	if err != nil {
		return nil, err
	}
	v := NewItemView(it, reveal)
	return &v, nil
}

// HistoryAddInput contains parameters for HistoryAdd.
type HistoryAddInput struct {
	Content   string
	SourceApp string
}

// HistoryAdd records text as if it had been copied. Whitespace-only text
// is rejected.
func (e *Engine) HistoryAdd(ctx context.Context, input HistoryAddInput) (*ItemView, error) {
	it, ok := e.history.Insert(input.Content, input.SourceApp)
	if !ok {
		return nil, errors.NewInvalidRequest("content is empty")
	}
	v := NewItemView(it, false)
	return &v, nil
}

// PinOutput contains the result of HistoryPin.
type PinOutput struct {
	ID       string `json:"id"`
	IsPinned bool   `json:"is_pinned"`
}

// HistoryPin toggles an item's pin. Pinning past the limit fails with PIN_LIMIT.
func (e *Engine) HistoryPin(ctx context.Context, id string) (*PinOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	it, err := e.history.TogglePin(id)
	if err != nil {
		return nil, err
	}
	return &PinOutput{ID: it.ID, IsPinned: it.IsPinned}, nil
}

// RemoveOutput contains the result of a removal.
type RemoveOutput struct {
	Removed bool   `json:"removed"`
	ID      string `json:"id"`
}

// HistoryRemove deletes one item.
func (e *Engine) HistoryRemove(ctx context.Context, id string) (*RemoveOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if err := e.history.Remove(id); err != nil {
		return nil, err
	}
	return &RemoveOutput{Removed: true, ID: id}, nil
}

// ClearOutput contains the result of HistoryClear.
type ClearOutput struct {
	Cleared int `json:"cleared"`
}

// HistoryClear removes every item, pinned ones included.
func (e *Engine) HistoryClear(ctx context.Context) (*ClearOutput, error) {
	return &ClearOutput{Cleared: e.history.ClearAll()}, nil
}

// TagInput addresses a tag on an item.
type TagInput struct {
	ID  string
	Tag string
}

// HistoryTag adds a tag to an item and to the vocabulary.
func (e *Engine) HistoryTag(ctx context.Context, input TagInput) (*ItemView, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	it, err := e.history.AddTag(ctx, id, input.Tag)
	if err != nil {
		return nil, err
	}
	v := NewItemView(it, false)
	return &v, nil
}

// HistoryUntag removes a tag from an item. The vocabulary is unchanged.
func (e *Engine) HistoryUntag(ctx context.Context, input TagInput) (*ItemView, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	it, err := e.history.RemoveTag(id, input.Tag)
	if err != nil {
		return nil, err
	}
	v := NewItemView(it, false)
	return &v, nil
}

// CopyOutput contains the result of HistoryCopy.
type CopyOutput struct {
	Copied bool   `json:"copied"`
	ID     string `json:"id"`
}

// HistoryCopy puts an item's full content on the system clipboard and
// refreshes it to the head of its band. The returned id is the refreshed
// item's.
func (e *Engine) HistoryCopy(ctx context.Context, id string) (*CopyOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if e.clipboard == nil {
		return nil, errors.NewInvalidRequest("no clipboard is available")
	}
	it, err := e.history.Get(id)
	if err != nil {
		return nil, err
	}
	if err := e.clipboard.Write(it.Content); err != nil {
		return nil, errors.NewInternal(err)
	}
	refreshed, ok := e.history.Insert(it.Content, it.SourceApp)
	if !ok {
		return &CopyOutput{Copied: true, ID: id}, nil
	}
	return &CopyOutput{Copied: true, ID: refreshed.ID}, nil
}

// HistoryClearAI drops an item's AI result and assessment.
func (e *Engine) HistoryClearAI(ctx context.Context, id string) (*ItemView, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	it, err := e.history.ClearAIResult(id)
	if err != nil {
		return nil, err
	}
	v := NewItemView(it, false)
	return &v, nil
}

// CapacityOutput reports the history size limit.
type CapacityOutput struct {
	Capacity int `json:"capacity"`
	Len      int `json:"len"`
}

// SetCapacity persists a user-chosen history size (clamped to 10..500) and
// applies it, evicting immediately when shrinking.
func (e *Engine) SetCapacity(ctx context.Context, n int) (*CapacityOutput, error) {
	if n < 1 {
		return nil, errors.NewInvalidRequest("capacity must be positive")
	}
	n = config.ClampCapacity(n)
	if err := db.PutSetting(ctx, e.db, db.KeyHistoryCapacity, strconv.Itoa(n)); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := e.history.SetCapacity(n); err != nil {
		return nil, err
	}
	return &CapacityOutput{Capacity: n, Len: e.history.Len()}, nil
}

// PauseOutput reports whether observation is paused.
type PauseOutput struct {
	Paused bool `json:"paused"`
}

// SetPaused pauses or resumes clipboard observation.
func (e *Engine) SetPaused(ctx context.Context, paused bool) *PauseOutput {
	if paused {
		e.history.Pause()
	} else {
		e.history.Resume()
	}
	return &PauseOutput{Paused: e.history.Paused()}
}
