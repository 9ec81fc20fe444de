package ops

import (
	"context"

	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// TagListOutput contains the tag vocabulary.
type TagListOutput struct {
	Tags []string `json:"tags"`
}

// TagList returns the sorted vocabulary.
func (e *Engine) TagList(ctx context.Context) *TagListOutput {
	list := e.tags.List()
	if list == nil {
		list = []string{}
	}
	return &TagListOutput{Tags: list}
}

// TagChangeOutput reports a vocabulary edit.
type TagChangeOutput struct {
	Tag     string   `json:"tag"`
	Changed bool     `json:"changed"`
	Tags    []string `json:"tags"`
}

// TagAdd adds a tag to the vocabulary without attaching it to any item.
func (e *Engine) TagAdd(ctx context.Context, tag string) (*TagChangeOutput, error) {
	norm, added, err := e.tags.Add(ctx, tag)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if norm == "" {
		return nil, errors.NewInvalidRequest("tag is empty")
	}
	return &TagChangeOutput{Tag: norm, Changed: added, Tags: e.TagList(ctx).Tags}, nil
}

// TagRemove drops a tag from the vocabulary. Items keep their copies.
func (e *Engine) TagRemove(ctx context.Context, tag string) (*TagChangeOutput, error) {
	removed, err := e.tags.Remove(ctx, tag)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &TagChangeOutput{Tag: item.NormalizeTag(tag), Changed: removed, Tags: e.TagList(ctx).Tags}, nil
}

// TagRenameInput contains parameters for TagRename.
type TagRenameInput struct {
	From string
	To   string
}

// TagRename renames a vocabulary tag and every history item carrying it.
// Folder snapshots keep the old name.
func (e *Engine) TagRename(ctx context.Context, input TagRenameInput) (*TagChangeOutput, error) {
	renamed, err := e.tags.Rename(ctx, input.From, input.To)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &TagChangeOutput{Tag: item.NormalizeTag(input.To), Changed: renamed, Tags: e.TagList(ctx).Tags}, nil
}
