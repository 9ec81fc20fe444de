package tags

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/whispr/internal/db"
)

type failingStore struct{}

func (failingStore) Load(context.Context) ([]string, error) { return nil, errors.New("boom") }
func (failingStore) Save(context.Context, []string) error   { return errors.New("boom") }

// gatedStore blocks the first Save until release is closed and remembers the
// last vocabulary saved.
type gatedStore struct {
	mu      sync.Mutex
	calls   int
	saved   []string
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Load(context.Context) ([]string, error) { return nil, nil }

func (s *gatedStore) Save(_ context.Context, tags []string) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	s.saved = append([]string(nil), tags...)
	s.mu.Unlock()
	return nil
}

func newSQLRegistry(t *testing.T) (*Registry, *SQLStore) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	store := &SQLStore{DB: database}
	return NewRegistry(store, nil), store
}

func TestAdd_NormalizesAndSorts(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	for _, tag := range []string{"  Work ", "alpha", "WORK", "", "   "} {
		_, _, err := r.Add(ctx, tag)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "work"}, r.List())
	assert.True(t, r.Contains("Work"))
	assert.False(t, r.Contains("beta"))
}

func TestAdd_ReportsChange(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	norm, added, err := r.Add(ctx, "Urgent")
	require.NoError(t, err)
	assert.Equal(t, "urgent", norm)
	assert.True(t, added)

	_, added, err = r.Add(ctx, "urgent")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestRemove(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	_, _, _ = r.Add(ctx, "a")
	_, _, _ = r.Add(ctx, "b")

	removed, err := r.Remove(ctx, "A")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"b"}, r.List())

	removed, err = r.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRename_PropagatesToListeners(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	_, _, _ = r.Add(ctx, "todo")
	_, _, _ = r.Add(ctx, "misc")

	var calls [][2]string
	r.OnRename(func(oldTag, newTag string) {
		calls = append(calls, [2]string{oldTag, newTag})
	})

	ok, err := r.Rename(ctx, "TODO", "  Later ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"later", "misc"}, r.List())
	assert.Equal(t, [][2]string{{"todo", "later"}}, calls)
}

func TestRename_IgnoredCases(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	_, _, _ = r.Add(ctx, "todo")

	called := false
	r.OnRename(func(string, string) { called = true })

	ok, err := r.Rename(ctx, "todo", "   ")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Rename(ctx, "absent", "new")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.False(t, called)
	assert.Equal(t, []string{"todo"}, r.List())
}

func TestRename_MergesIntoExisting(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()
	_, _, _ = r.Add(ctx, "a")
	_, _, _ = r.Add(ctx, "b")

	ok, err := r.Rename(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, r.List())
}

func TestSQLStore_RoundTrip(t *testing.T) {
	r, store := newSQLRegistry(t)
	ctx := context.Background()

	_, _, err := r.Add(ctx, "beta")
	require.NoError(t, err)
	_, _, err = r.Add(ctx, "alpha")
	require.NoError(t, err)

	reloaded := NewRegistry(store, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, []string{"alpha", "beta"}, reloaded.List())
}

func TestLoad_RenormalizesStoredTags(t *testing.T) {
	_, store := newSQLRegistry(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []string{"Zed", " alpha", "zed", ""}))

	r := NewRegistry(store, nil)
	require.NoError(t, r.Load(ctx))
	assert.Equal(t, []string{"alpha", "zed"}, r.List())
}

func TestPersistFailure_KeepsMemoryState(t *testing.T) {
	r := NewRegistry(failingStore{}, nil)
	ctx := context.Background()

	_, added, err := r.Add(ctx, "x")
	assert.Error(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"x"}, r.List())
	assert.Error(t, r.Load(ctx))
}

func TestConcurrentAdds_LastSaveMatchesMemory(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, err := r.Add(ctx, "alpha")
		assert.NoError(t, err)
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		_, _, err := r.Add(ctx, "beta")
		assert.NoError(t, err)
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, []string{"alpha", "beta"}, r.List())
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"alpha", "beta"}, store.saved)
}
