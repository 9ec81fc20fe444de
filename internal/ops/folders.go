package ops

import (
	"context"

	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/folders"
	"github.com/hpungsan/whispr/internal/item"
)

// FolderView is folder metadata as shown to consumers.
type FolderView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
	Selected  bool   `json:"selected"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func newFolderView(f *item.Folder, selected string) FolderView {
	return FolderView{
		ID:        f.ID,
		Name:      f.Name,
		ItemCount: len(f.ItemIDs),
		Selected:  f.ID == selected,
		CreatedAt: f.CreatedAt.Unix(),
		UpdatedAt: f.UpdatedAt.Unix(),
	}
}

// FolderListOutput contains the result of FolderList.
type FolderListOutput struct {
	Folders []FolderView `json:"folders"`
	Sort    string       `json:"sort"`
}

// FolderList returns every folder, most recently updated first.
func (e *Engine) FolderList(ctx context.Context) (*FolderListOutput, error) {
	list, err := e.folders.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := e.folders.Selected(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FolderView, len(list))
	for i, f := range list {
		out[i] = newFolderView(f, selected)
	}
	return &FolderListOutput{Folders: out, Sort: "updated_at_desc"}, nil
}

// FolderCreate creates an empty folder.
func (e *Engine) FolderCreate(ctx context.Context, name string) (*FolderView, error) {
	f, err := e.folders.CreateFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	v := newFolderView(f, "")
	return &v, nil
}

// FolderRenameInput contains parameters for FolderRename.
type FolderRenameInput struct {
	ID   string
	Name string
}

// FolderRename changes a folder's display name.
func (e *Engine) FolderRename(ctx context.Context, input FolderRenameInput) (*FolderView, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	f, err := e.folders.RenameFolder(ctx, id, input.Name)
	if err != nil {
		return nil, err
	}
	selected, _ := e.folders.Selected(ctx)
	v := newFolderView(f, selected)
	return &v, nil
}

// FolderDelete removes a folder and its sealed payload.
func (e *Engine) FolderDelete(ctx context.Context, id string) (*RemoveOutput, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	if err := e.folders.DeleteFolder(ctx, id); err != nil {
		return nil, err
	}
	return &RemoveOutput{Removed: true, ID: id}, nil
}

// FolderItemInput addresses an item in a folder.
type FolderItemInput struct {
	FolderID string
	ItemID   string
}

// FolderAddOutput contains the result of FolderAddItem.
type FolderAddOutput struct {
	Folder FolderView `json:"folder"`
	Added  bool       `json:"added"`
}

// FolderAddItem copies a history item into a folder as an independent
// snapshot. Adding an item that is already a member changes nothing.
func (e *Engine) FolderAddItem(ctx context.Context, input FolderItemInput) (*FolderAddOutput, error) {
	folderID, err := requireID("folder_id", input.FolderID)
	if err != nil {
		return nil, err
	}
	itemID, err := requireID("item_id", input.ItemID)
	if err != nil {
		return nil, err
	}
	it, err := e.history.Get(itemID)
	if err != nil {
		return nil, err
	}
	f, added, err := e.folders.AddItem(ctx, folderID, it)
	if err != nil {
		return nil, err
	}
	selected, _ := e.folders.Selected(ctx)
	return &FolderAddOutput{Folder: newFolderView(f, selected), Added: added}, nil
}

// FolderRemoveItem drops an item from a folder.
func (e *Engine) FolderRemoveItem(ctx context.Context, input FolderItemInput) (*RemoveOutput, error) {
	folderID, err := requireID("folder_id", input.FolderID)
	if err != nil {
		return nil, err
	}
	itemID, err := requireID("item_id", input.ItemID)
	if err != nil {
		return nil, err
	}
	removed, err := e.folders.RemoveItem(ctx, folderID, itemID)
	if err != nil {
		return nil, err
	}
	return &RemoveOutput{Removed: removed, ID: itemID}, nil
}

// FolderItemsInput contains parameters for FolderItems.
type FolderItemsInput struct {
	FolderID string
	Query    string
	Limit    int
	Offset   int
}

// FolderItemsOutput contains the result of FolderItems.
type FolderItemsOutput struct {
	Folder     FolderView `json:"folder"`
	Items      []ItemView `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// FolderItems lists (or searches) a folder's items. An unreadable payload
// yields an empty list rather than an error.
func (e *Engine) FolderItems(ctx context.Context, input FolderItemsInput) (*FolderItemsOutput, error) {
	folderID, err := requireID("folder_id", input.FolderID)
	if err != nil {
		return nil, err
	}
	f, err := e.folders.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	items, err := e.folders.Search(ctx, folderID, input.Query)
	if err != nil {
		return nil, err
	}
	page, p := paginate(items, input.Limit, input.Offset)
	selected, _ := e.folders.Selected(ctx)
	return &FolderItemsOutput{
		Folder:     newFolderView(f, selected),
		Items:      viewItems(page),
		Pagination: p,
	}, nil
}

// FolderSelect makes a folder the active selection. An empty id deselects.
func (e *Engine) FolderSelect(ctx context.Context, id string) (*FolderListOutput, error) {
	if err := e.folders.Select(ctx, id); err != nil {
		return nil, err
	}
	return e.FolderList(ctx)
}

// FolderExportInput contains parameters for FolderExport.
type FolderExportInput struct {
	FolderID string
	Path     string // optional; defaults to the exports directory
}

// FolderExport writes a folder's decrypted items as JSONL.
func (e *Engine) FolderExport(ctx context.Context, input FolderExportInput) (*folders.ExportResult, error) {
	folderID, err := requireID("folder_id", input.FolderID)
	if err != nil {
		return nil, err
	}
	return e.folders.Export(ctx, folderID, input.Path)
}

// FolderImportInput contains parameters for FolderImport.
type FolderImportInput struct {
	Path string
	Name string // optional
}

// FolderImport creates a folder from an export file.
func (e *Engine) FolderImport(ctx context.Context, input FolderImportInput) (*folders.ImportResult, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	return e.folders.Import(ctx, input.Path, input.Name)
}

// VaultStatus reports whether folder encryption works.
type VaultStatus struct {
	Available bool             `json:"available"`
	KeySource string           `json:"key_source"`
	Error     string           `json:"error,omitempty"`
	Folders   []folders.Health `json:"folders,omitempty"`
}

// EncryptionAvailable returns ENCRYPTION_UNAVAILABLE when no vault key can
// be obtained, as opposed to one folder being unreadable.
func (e *Engine) EncryptionAvailable() error {
	return e.folders.EncryptionAvailable()
}

// VaultCheck reports key availability and the readability of every folder.
func (e *Engine) VaultCheck(ctx context.Context) (*VaultStatus, error) {
	st := &VaultStatus{Available: true, KeySource: e.keySource}
	health, err := e.folders.Check(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrEncryptionUnavailable) {
			st.Available = false
			st.Error = err.Error()
			return st, nil
		}
		return nil, err
	}
	st.Folders = health
	return st, nil
}
