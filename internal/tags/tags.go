// Package tags holds the global tag vocabulary shared by history and folders.
package tags

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/item"
)

// Store persists the vocabulary.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, tags []string) error
}

// SQLStore keeps the vocabulary as a JSON list in the settings table.
type SQLStore struct {
	DB *sql.DB
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context) ([]string, error) {
	var tags []string
	if _, err := db.GetJSONSetting(ctx, s.DB, db.KeyTagVocabulary, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, tags []string) error {
	return db.PutJSONSetting(ctx, s.DB, db.KeyTagVocabulary, tags)
}

// RenameFunc is called after a successful rename with normalized tags.
type RenameFunc func(oldTag, newTag string)

// Registry is a deduplicated, sorted vocabulary of normalized tags.
// It is safe for concurrent use.
type Registry struct {
	// persistMu orders mutations with their saves so the store never ends
	// up holding an older vocabulary than memory.
	persistMu sync.Mutex

	mu       sync.RWMutex
	tags     []string
	store    Store
	onRename []RenameFunc
	logger   *zap.Logger
}

// NewRegistry creates a registry backed by store. A nil store keeps the
// vocabulary in memory only.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// Load replaces the in-memory vocabulary with the persisted one.
// Stored entries are re-normalized so a hand-edited store cannot break ordering.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	stored, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	var tags []string
	for _, t := range stored {
		if t = item.NormalizeTag(t); t != "" {
			tags, _ = item.AddTag(tags, t)
		}
	}

	r.mu.Lock()
	r.tags = tags
	r.mu.Unlock()
	return nil
}

// OnRename registers fn to run after every rename, outside the registry lock.
func (r *Registry) OnRename(fn RenameFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRename = append(r.onRename, fn)
}

// List returns a copy of the sorted vocabulary.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tags...)
}

// Contains reports whether tag (after normalization) is registered.
func (r *Registry) Contains(tag string) bool {
	tag = item.NormalizeTag(tag)
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.SearchStrings(r.tags, tag)
	return i < len(r.tags) && r.tags[i] == tag
}

// Add normalizes and registers tag. It returns the normalized form and
// whether the vocabulary changed. Empty tags are ignored.
func (r *Registry) Add(ctx context.Context, tag string) (string, bool, error) {
	norm := item.NormalizeTag(tag)
	if norm == "" {
		return "", false, nil
	}

	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	next, added := item.AddTag(r.tags, norm)
	if !added {
		r.mu.Unlock()
		return norm, false, nil
	}
	r.tags = next
	snapshot := append([]string(nil), next...)
	r.mu.Unlock()

	return norm, true, r.persist(ctx, snapshot)
}

// Remove drops tag from the vocabulary. Items keep their copies of it.
func (r *Registry) Remove(ctx context.Context, tag string) (bool, error) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	next, removed := item.RemoveTag(r.tags, item.NormalizeTag(tag))
	if !removed {
		r.mu.Unlock()
		return false, nil
	}
	r.tags = next
	snapshot := append([]string(nil), next...)
	r.mu.Unlock()

	return true, r.persist(ctx, snapshot)
}

// Rename replaces oldTag with newTag and notifies rename listeners.
// It is a no-op when newTag normalizes to empty or oldTag is not registered.
// Renaming onto an existing tag merges the two.
func (r *Registry) Rename(ctx context.Context, oldTag, newTag string) (bool, error) {
	oldNorm := item.NormalizeTag(oldTag)
	newNorm := item.NormalizeTag(newTag)
	if newNorm == "" {
		return false, nil
	}

	r.persistMu.Lock()
	r.mu.Lock()
	next, removed := item.RemoveTag(r.tags, oldNorm)
	if !removed {
		r.mu.Unlock()
		r.persistMu.Unlock()
		return false, nil
	}
	next, _ = item.AddTag(next, newNorm)
	r.tags = next
	snapshot := append([]string(nil), next...)
	listeners := append([]RenameFunc(nil), r.onRename...)
	r.mu.Unlock()

	err := r.persist(ctx, snapshot)
	r.persistMu.Unlock()

	if oldNorm != newNorm {
		for _, fn := range listeners {
			fn(oldNorm, newNorm)
		}
	}
	return true, err
}

func (r *Registry) persist(ctx context.Context, tags []string) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, tags); err != nil {
		r.logger.Warn("failed to persist tag vocabulary", zap.Error(err))
		return err
	}
	return nil
}
