package item

import (
	"sort"
	"strings"
)

// NormalizeContent trims surrounding whitespace from raw clipboard text.
func NormalizeContent(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeTag trims and lowercases a tag.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AddTag inserts a normalized tag, keeping the slice sorted and unique.
// Returns the new slice and whether it changed.
func AddTag(tags []string, tag string) ([]string, bool) {
	i := sort.SearchStrings(tags, tag)
	if i < len(tags) && tags[i] == tag {
		return tags, false
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags[:i]...)
	out = append(out, tag)
	out = append(out, tags[i:]...)
	return out, true
}

// RemoveTag drops a normalized tag. Returns the new slice and whether it changed.
func RemoveTag(tags []string, tag string) ([]string, bool) {
	for i, t := range tags {
		if t == tag {
			out := make([]string, 0, len(tags)-1)
			out = append(out, tags[:i]...)
			return append(out, tags[i+1:]...), true
		}
	}
	return tags, false
}

// Matches reports whether the item matches a search query: a case-insensitive
// substring of the content, the source app, or any tag. An empty query
// matches everything.
func Matches(it *Item, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(it.Content), q) {
		return true
	}
	if it.SourceApp != "" && strings.Contains(strings.ToLower(it.SourceApp), q) {
		return true
	}
	for _, t := range it.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// Filter returns the items matching query, preserving order.
func Filter(items []*Item, query string) []*Item {
	out := make([]*Item, 0, len(items))
	for _, it := range items {
		if Matches(it, query) {
			out = append(out, it)
		}
	}
	return out
}
