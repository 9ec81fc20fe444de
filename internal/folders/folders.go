// Package folders stores named, user-curated collections of item snapshots.
// Each folder's items are sealed as one vault blob keyed by the folder id;
// the membership index lives beside it in plain metadata.
package folders

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
	"github.com/hpungsan/whispr/internal/vault"
)

// Sealer encrypts folder payloads. *vault.Vault satisfies it.
type Sealer interface {
	Encrypt(payload []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
	Available() error
}

// Options configures a Store.
type Options struct {
	DB     *sql.DB
	Vault  Sealer
	Config *config.Config
	// BaseDir holds the exports directory used for default export paths.
	BaseDir string
	Logger  *zap.Logger
	Now     func() time.Time
}

// Store manages folders. Read-modify-write of one folder's payload is
// serialized per folder id; different folders never wait on each other.
type Store struct {
	db      *sql.DB
	vault   Sealer
	cfg     *config.Config
	baseDir string
	logger  *zap.Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*folderLock
}

// folderLock is a per-folder mutex; refs counts holders and waiters so the
// entry can be dropped once nobody uses it.
type folderLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a folder store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	return &Store{
		db:      opts.DB,
		vault:   opts.Vault,
		cfg:     opts.Config,
		baseDir: opts.BaseDir,
		logger:  opts.Logger,
		now:     opts.Now,
		locks:   make(map[string]*folderLock),
	}
}

func (s *Store) lock(folderID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[folderID]
	if !ok {
		l = &folderLock{}
		s.locks[folderID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, folderID)
		}
		s.locksMu.Unlock()
	}
}

// EncryptionAvailable returns an ENCRYPTION_UNAVAILABLE error when the key
// store cannot supply a key. This is the whole-feature failure, as opposed
// to one folder's blob being unreadable.
func (s *Store) EncryptionAvailable() error {
	if err := s.vault.Available(); err != nil {
		return errors.NewEncryptionUnavailable(err)
	}
	return nil
}

// CreateFolder creates an empty folder.
func (s *Store) CreateFolder(ctx context.Context, name string) (*item.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("folder name is required")
	}
	now := s.now()
	f := &item.Folder{
		ID:        item.NewID(),
		Name:      name,
		ItemIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.InsertFolder(ctx, s.db, f); err != nil {
		return nil, err
	}
	return f, nil
}

// RenameFolder changes a folder's name.
func (s *Store) RenameFolder(ctx context.Context, folderID, name string) (*item.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequest("folder name is required")
	}
	defer s.lock(folderID)()

	f, err := db.GetFolder(ctx, s.db, folderID)
	if err != nil {
		return nil, err
	}
	f.Name = name
	f.UpdatedAt = s.now()
	if err := db.UpdateFolder(ctx, s.db, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFolder removes the folder and its payload, and clears the selection
// if it pointed at this folder.
func (s *Store) DeleteFolder(ctx context.Context, folderID string) error {
	defer s.lock(folderID)()

	if err := db.DeleteFolder(ctx, s.db, folderID); err != nil {
		return err
	}
	selected, err := s.Selected(ctx)
	if err != nil {
		return err
	}
	if selected == folderID {
		return db.DeleteSetting(ctx, s.db, db.KeySelectedFolder)
	}
	return nil
}

// GetFolder returns folder metadata.
func (s *Store) GetFolder(ctx context.Context, folderID string) (*item.Folder, error) {
	return db.GetFolder(ctx, s.db, folderID)
}

// ListFolders returns every folder, most recently updated first.
func (s *Store) ListFolders(ctx context.Context) ([]*item.Folder, error) {
	return db.ListFolders(ctx, s.db)
}

// AddItem snapshots it into the folder. Adding an id that is already a
// member is a no-op; an item whose content matches an existing member
// replaces that member. Returns whether the folder changed.
func (s *Store) AddItem(ctx context.Context, folderID string, it *item.Item) (*item.Folder, bool, error) {
	if it == nil || it.ID == "" {
		return nil, false, errors.NewInvalidRequest("item is required")
	}
	defer s.lock(folderID)()

	f, err := db.GetFolder(ctx, s.db, folderID)
	if err != nil {
		return nil, false, err
	}
	if f.Contains(it.ID) {
		return f, false, nil
	}

	items := s.readItems(ctx, f)
	items, changed := appendSnapshot(items, it)
	if !changed {
		return f, false, nil
	}
	if err := s.writeItems(ctx, f, items); err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// appendSnapshot adds a detached copy of it unless the id is present. A
// member with identical content is replaced.
func appendSnapshot(items []*item.Item, it *item.Item) ([]*item.Item, bool) {
	out := make([]*item.Item, 0, len(items)+1)
	for _, existing := range items {
		if existing.ID == it.ID {
			return items, false
		}
		if existing.Content == it.Content {
			continue
		}
		out = append(out, existing)
	}
	snap := it.Clone()
	snap.IsProcessing = false
	return append(out, snap), true
}

// RemoveItem drops an item from both the payload and the membership index.
// Returns whether anything was removed.
func (s *Store) RemoveItem(ctx context.Context, folderID, itemID string) (bool, error) {
	defer s.lock(folderID)()

	f, err := db.GetFolder(ctx, s.db, folderID)
	if err != nil {
		return false, err
	}
	items := s.readItems(ctx, f)
	kept := items[:0]
	for _, it := range items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) && !f.Contains(itemID) {
		return false, nil
	}
	if err := s.writeItems(ctx, f, kept); err != nil {
		return false, err
	}
	return true, nil
}

// ListItems returns the folder's items. An unreadable payload yields an
// empty list, not an error.
func (s *Store) ListItems(ctx context.Context, folderID string) ([]*item.Item, error) {
	defer s.lock(folderID)()

	f, err := db.GetFolder(ctx, s.db, folderID)
	if err != nil {
		return nil, err
	}
	return s.readItems(ctx, f), nil
}

// Search filters the folder's items with the same rules as history search.
func (s *Store) Search(ctx context.Context, folderID, query string) ([]*item.Item, error) {
	items, err := s.ListItems(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return item.Filter(items, query), nil
}

// Select makes folderID the active folder. An empty id clears the selection.
func (s *Store) Select(ctx context.Context, folderID string) error {
	if folderID == "" {
		return db.DeleteSetting(ctx, s.db, db.KeySelectedFolder)
	}
	if _, err := db.GetFolder(ctx, s.db, folderID); err != nil {
		return err
	}
	return db.PutSetting(ctx, s.db, db.KeySelectedFolder, folderID)
}

// Selected returns the active folder id, or "" when none is selected.
func (s *Store) Selected(ctx context.Context) (string, error) {
	id, _, err := db.GetSetting(ctx, s.db, db.KeySelectedFolder)
	return id, err
}

// Health describes whether one folder's payload can be opened.
type Health struct {
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`
	Items    int    `json:"items"`
	Readable bool   `json:"readable"`
	Error    string `json:"error,omitempty"`
}

// Check opens every folder payload and reports which are readable. It
// returns ENCRYPTION_UNAVAILABLE instead when no key can be obtained at all.
func (s *Store) Check(ctx context.Context) ([]Health, error) {
	if err := s.EncryptionAvailable(); err != nil {
		return nil, err
	}
	folders, err := s.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Health, 0, len(folders))
	for _, f := range folders {
		h := Health{FolderID: f.ID, Name: f.Name, Readable: true}
		items, err := s.loadItems(ctx, f.ID)
		if err != nil {
			h.Readable = false
			h.Error = err.Error()
		}
		h.Items = len(items)
		out = append(out, h)
	}
	return out, nil
}

// readItems loads and decrypts a payload, degrading to an empty list.
func (s *Store) readItems(ctx context.Context, f *item.Folder) []*item.Item {
	items, err := s.loadItems(ctx, f.ID)
	if err != nil {
		s.logger.Warn("folder payload unreadable, treating as empty",
			zap.String("folder_id", f.ID),
			zap.Error(err))
		return []*item.Item{}
	}
	return items
}

func (s *Store) loadItems(ctx context.Context, folderID string) ([]*item.Item, error) {
	blob, ok, err := db.GetPayload(ctx, s.db, folderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*item.Item{}, nil
	}
	plain, err := s.vault.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	var items []*item.Item
	if err := json.Unmarshal(plain, &items); err != nil {
		return nil, fmt.Errorf("decode folder payload: %w", err)
	}
	if items == nil {
		items = []*item.Item{}
	}
	return items, nil
}

// writeItems seals items and stores them with a membership index rebuilt
// from the same list.
func (s *Store) writeItems(ctx context.Context, f *item.Folder, items []*item.Item) error {
	plain, err := json.Marshal(items)
	if err != nil {
		return errors.NewInternal(err)
	}
	blob, err := s.vault.Encrypt(plain)
	if err != nil {
		return mapVaultError(err)
	}

	f.ItemIDs = make([]string, len(items))
	for i, it := range items {
		f.ItemIDs[i] = it.ID
	}
	f.UpdatedAt = s.now()
	return db.SaveFolderWithPayload(ctx, s.db, f, blob)
}

func mapVaultError(err error) error {
	switch {
	case stderrors.Is(err, vault.ErrKeyUnavailable):
		return errors.NewEncryptionUnavailable(err)
	case stderrors.Is(err, vault.ErrSealFailed):
		return errors.NewWithCode(errors.ErrSealFailed, 500, err.Error())
	case stderrors.Is(err, vault.ErrMalformedBlob):
		return errors.NewWithCode(errors.ErrMalformedBlob, 422, err.Error())
	case stderrors.Is(err, vault.ErrAuthenticationFailed):
		return errors.NewWithCode(errors.ErrAuthenticationFailed, 422, err.Error())
	default:
		return errors.NewInternal(err)
	}
}
