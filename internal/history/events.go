package history

// EventKind names a history change.
type EventKind string

const (
	EventInserted EventKind = "inserted"
	EventUpdated  EventKind = "updated"
	EventRemoved  EventKind = "removed"
	EventEvicted  EventKind = "evicted"
	EventCleared  EventKind = "cleared"
	EventPaused   EventKind = "paused"
	EventResumed  EventKind = "resumed"
)

// Event is emitted after a change is applied. ItemID is empty for
// store-wide events.
type Event struct {
	Kind   EventKind `json:"kind"`
	ItemID string    `json:"item_id,omitempty"`
}

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. fn runs synchronously on the mutating goroutine after the
// store lock is released; it must not block.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}
