// Package history owns the live, capacity-bounded, pin-aware list of
// clipboard items.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/classify"
	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// WelcomeItems are seeded on start, oldest first.
var WelcomeItems = []string{
	"Welcome to Whispr! Copy any text to see it here.",
	"Hover over items to see local AI actions like Clean or Summarize.",
}

// TagRegistrar registers tags in the global vocabulary. *tags.Registry
// satisfies it.
type TagRegistrar interface {
	Add(ctx context.Context, tag string) (string, bool, error)
}

// Options configures a Store.
type Options struct {
	Capacity  int
	MaxPinned int
	Tags      TagRegistrar
	Logger    *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the history collection. Every mutation runs under one mutex so
// the dedup/insert/sort/evict sequence is never observed half-done.
type Store struct {
	mu        sync.Mutex
	items     []*item.Item
	capacity  int
	maxPinned int
	paused    bool
	version   uint64

	// inflight maps item id to the token of its outstanding AI request.
	inflight map[string]uint64

	tags   TagRegistrar
	logger *zap.Logger
	now    func() time.Time

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an empty store. Zero limits fall back to config defaults.
func New(opts Options) *Store {
	def := config.DefaultConfig()
	if opts.Capacity <= 0 {
		opts.Capacity = def.HistoryCapacity
	}
	if opts.MaxPinned <= 0 {
		opts.MaxPinned = def.MaxPinned
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		capacity:  opts.Capacity,
		maxPinned: opts.MaxPinned,
		tags:      opts.Tags,
		logger:    opts.Logger,
		now:       opts.Now,
		inflight:  make(map[string]uint64),
		subs:      make(map[int]func(Event)),
	}
}

// SeedWelcome inserts the welcome items.
func (s *Store) SeedWelcome() {
	for _, text := range WelcomeItems {
		s.Insert(text, "")
	}
}

// Insert records raw clipboard text. Empty text is dropped without error.
// Identical content replaces the earlier entry, keeping its pin.
func (s *Store) Insert(raw, sourceApp string) (*item.Item, bool) {
	content := item.NormalizeContent(raw)
	if content == "" {
		return nil, false
	}
	return s.insert(&item.Item{
		Content:   content,
		Type:      classify.Classify(content),
		SourceApp: sourceApp,
	})
}

// Observe is Insert for watcher-originated text; it does nothing while paused.
func (s *Store) Observe(raw, sourceApp string) (*item.Item, bool) {
	if s.Paused() {
		return nil, false
	}
	return s.Insert(raw, sourceApp)
}

// ObserveImage is InsertImage for watcher-originated images.
func (s *Store) ObserveImage(data []byte, filePath, sourceApp string) (*item.Item, bool) {
	if s.Paused() {
		return nil, false
	}
	return s.InsertImage(data, filePath, sourceApp)
}

// InsertImage records an image payload. The content label is the file path
// when known, otherwise a digest of the bytes, so the same image dedups.
func (s *Store) InsertImage(data []byte, filePath, sourceApp string) (*item.Item, bool) {
	if len(data) == 0 {
		return nil, false
	}
	content := item.NormalizeContent(filePath)
	if content == "" {
		sum := sha256.Sum256(data)
		content = "Image " + hex.EncodeToString(sum[:6])
	}
	return s.insert(&item.Item{
		Content:   content,
		Type:      item.TypeImage,
		ImageData: append([]byte(nil), data...),
		FilePath:  filePath,
		SourceApp: sourceApp,
	})
}

func (s *Store) insert(it *item.Item) (*item.Item, bool) {
	s.mu.Lock()

	var events []Event
	for i, existing := range s.items {
		if existing.Content == it.Content {
			it.IsPinned = existing.IsPinned
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.inflight, existing.ID)
			events = append(events, Event{Kind: EventRemoved, ItemID: existing.ID})
			break
		}
	}

	it.ID = item.NewID()
	it.CreatedAt = s.now()
	it.Version = s.bump()
	s.items = append([]*item.Item{it}, s.items...)
	s.sortLocked()
	events = append(events, Event{Kind: EventInserted, ItemID: it.ID})
	events = append(events, s.evictLocked()...)

	out := it.Clone()
	s.mu.Unlock()

	s.emit(events...)
	return out, true
}

// evictLocked drops the lowest-priority unpinned items until the store fits.
// Pinned items are never evicted, so a store whose pins alone exceed the
// capacity stays over it.
func (s *Store) evictLocked() []Event {
	var events []Event
	for len(s.items) > s.capacity {
		idx := -1
		for i := len(s.items) - 1; i >= 0; i-- {
			if !s.items[i].IsPinned {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		evicted := s.items[idx]
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		delete(s.inflight, evicted.ID)
		s.logger.Debug("evicted history item", zap.String("id", evicted.ID))
		events = append(events, Event{Kind: EventEvicted, ItemID: evicted.ID})
	}
	return events
}

// sortLocked orders by (pinned desc, createdAt desc). The sort is stable so
// items with equal keys keep their relative order.
func (s *Store) sortLocked() {
	sort.SliceStable(s.items, func(i, j int) bool {
		a, b := s.items[i], s.items[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *Store) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store) indexLocked(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// TogglePin flips the pin of an item. Pinning beyond the limit fails with
// PIN_LIMIT and changes nothing.
func (s *Store) TogglePin(id string) (*item.Item, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, errors.NewNotFound("item", id)
	}
	it := s.items[i]
	if !it.IsPinned && s.pinnedLocked() >= s.maxPinned {
		s.mu.Unlock()
		return nil, errors.NewPinLimit(s.maxPinned)
	}
	it.IsPinned = !it.IsPinned
	it.Version = s.bump()
	s.sortLocked()
	out := it.Clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, ItemID: id})
	return out, nil
}

func (s *Store) pinnedLocked() int {
	n := 0
	for _, it := range s.items {
		if it.IsPinned {
			n++
		}
	}
	return n
}

// Remove deletes an item.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return errors.NewNotFound("item", id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.inflight, id)
	s.bump()
	s.mu.Unlock()

	s.emit(Event{Kind: EventRemoved, ItemID: id})
	return nil
}

// ClearAll empties the history, pinned items included. Returns how many
// items were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	n := len(s.items)
	s.items = nil
	clear(s.inflight)
	s.bump()
	s.mu.Unlock()

	s.emit(Event{Kind: EventCleared})
	return n
}

// AddTag normalizes tag, registers it globally and attaches it to the item.
func (s *Store) AddTag(ctx context.Context, id, tag string) (*item.Item, error) {
	norm := item.NormalizeTag(tag)
	if norm == "" {
		return nil, errors.NewInvalidRequest("tag is required")
	}
	if s.tags != nil {
		// A failed save leaves the tag registered in memory; the item still gets it.
		if _, _, err := s.tags.Add(ctx, norm); err != nil {
			s.logger.Warn("tag registration not persisted", zap.String("tag", norm), zap.Error(err))
		}
	}
	return s.update(id, func(it *item.Item) bool {
		var changed bool
		it.Tags, changed = item.AddTag(it.Tags, norm)
		return changed
	})
}

// RemoveTag detaches tag from the item. The vocabulary is untouched.
func (s *Store) RemoveTag(id, tag string) (*item.Item, error) {
	norm := item.NormalizeTag(tag)
	return s.update(id, func(it *item.Item) bool {
		var changed bool
		it.Tags, changed = item.RemoveTag(it.Tags, norm)
		return changed
	})
}

// RenameTag replaces oldTag with newTag on every item carrying it.
// Returns the number of items changed.
func (s *Store) RenameTag(oldTag, newTag string) int {
	oldNorm, newNorm := item.NormalizeTag(oldTag), item.NormalizeTag(newTag)
	if oldNorm == "" || newNorm == "" || oldNorm == newNorm {
		return 0
	}

	s.mu.Lock()
	var events []Event
	for _, it := range s.items {
		tags, removed := item.RemoveTag(it.Tags, oldNorm)
		if !removed {
			continue
		}
		it.Tags, _ = item.AddTag(tags, newNorm)
		it.Version = s.bump()
		events = append(events, Event{Kind: EventUpdated, ItemID: it.ID})
	}
	s.mu.Unlock()

	s.emit(events...)
	return len(events)
}

// ClearAIResult drops the item's AI result and assessment.
func (s *Store) ClearAIResult(id string) (*item.Item, error) {
	return s.update(id, func(it *item.Item) bool {
		changed := it.AIResult != nil || it.AIAdvanced != nil
		it.AIResult = nil
		it.AIAdvanced = nil
		return changed
	})
}

// AttachAdvanced stores an assessment computed synchronously from a
// snapshot of the item.
func (s *Store) AttachAdvanced(id string, res *item.AIProcessingResult) (*item.Item, error) {
	if res == nil {
		return nil, errors.NewInvalidRequest("result is required")
	}
	return s.update(id, func(it *item.Item) bool {
		it.AIAdvanced = res.Clone()
		return true
	})
}

// update applies fn to the item under the lock. fn reports whether it
// changed anything; unchanged items keep their version.
func (s *Store) update(id string, fn func(*item.Item) bool) (*item.Item, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, errors.NewNotFound("item", id)
	}
	it := s.items[i]
	changed := fn(it)
	if changed {
		it.Version = s.bump()
	}
	out := it.Clone()
	s.mu.Unlock()

	if changed {
		s.emit(Event{Kind: EventUpdated, ItemID: id})
	}
	return out, nil
}

// BeginProcessing marks the item busy and returns a snapshot plus a token
// identifying this dispatch. It fails with ALREADY_PROCESSING while another
// request for the item is outstanding.
func (s *Store) BeginProcessing(id string) (*item.Item, uint64, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, 0, errors.NewNotFound("item", id)
	}
	it := s.items[i]
	if it.IsProcessing {
		s.mu.Unlock()
		return nil, 0, errors.NewAlreadyProcessing(id)
	}
	it.IsProcessing = true
	it.Version = s.bump()
	token := it.Version
	s.inflight[id] = token
	out := it.Clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, ItemID: id})
	return out, token, nil
}

// Completion is the outcome of an AI request. Both fields nil just clears
// the busy flag.
type Completion struct {
	Result   *string
	Advanced *item.AIProcessingResult
}

// FinishProcessing writes a completion back. Late completions, for items
// removed, cleared or re-dispatched since token was issued, are discarded and
// reported as false.
func (s *Store) FinishProcessing(id string, token uint64, c Completion) bool {
	s.mu.Lock()
	if s.inflight[id] != token {
		s.mu.Unlock()
		return false
	}
	delete(s.inflight, id)
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	it := s.items[i]
	it.IsProcessing = false
	if c.Result != nil {
		r := *c.Result
		it.AIResult = &r
	}
	if c.Advanced != nil {
		it.AIAdvanced = c.Advanced.Clone()
	}
	it.Version = s.bump()
	s.mu.Unlock()

	s.emit(Event{Kind: EventUpdated, ItemID: id})
	return true
}

// Get returns a snapshot of one item.
func (s *Store) Get(id string) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, errors.NewNotFound("item", id)
	}
	return s.items[i].Clone(), nil
}

// Items returns a snapshot of the ordered history.
func (s *Store) Items() []*item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*item.Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out
}

// Search returns items matching query in current order. An empty query
// returns everything.
func (s *Store) Search(query string) []*item.Item {
	return item.Filter(s.Items(), query)
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Capacity returns the current capacity bound.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// SetCapacity changes the capacity bound and evicts immediately if needed.
func (s *Store) SetCapacity(n int) error {
	if n < 1 {
		return errors.NewInvalidRequest("capacity must be positive")
	}
	s.mu.Lock()
	s.capacity = n
	events := s.evictLocked()
	s.mu.Unlock()

	s.emit(events...)
	return nil
}

// SetMaxPinned changes the pin limit. Items pinned beyond a lowered limit
// stay pinned; new pins are refused until the count drops.
func (s *Store) SetMaxPinned(n int) {
	s.mu.Lock()
	s.maxPinned = n
	s.mu.Unlock()
}

// MaxPinned returns the pin limit.
func (s *Store) MaxPinned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPinned
}

// Pause stops Observe from inserting; explicit Insert calls still work.
func (s *Store) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.emit(Event{Kind: EventPaused})
}

// Resume re-enables Observe.
func (s *Store) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.emit(Event{Kind: EventResumed})
}

// Paused reports whether observation is paused.
func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
