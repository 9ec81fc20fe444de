package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// Settings keys used by the engine.
const (
	KeyTagVocabulary     = "tags.vocabulary"
	KeyCapabilityMapping = "ai.capability_mapping"
	KeyHistoryCapacity   = "history.capacity"
	KeySelectedFolder    = "folders.selected"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetSetting returns the stored value for key. ok is false when absent.
func GetSetting(ctx context.Context, q Querier, key string) (value string, ok bool, err error) {
	err = q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// PutSetting upserts a setting.
func PutSetting(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSetting removes a setting. Deleting an absent key is not an error.
func DeleteSetting(ctx context.Context, q Querier, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetJSONSetting decodes a JSON setting into dst. ok is false when absent.
func GetJSONSetting(ctx context.Context, q Querier, key string, dst any) (bool, error) {
	raw, ok, err := GetSetting(ctx, q, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// PutJSONSetting encodes v as JSON and stores it under key.
func PutJSONSetting(ctx context.Context, q Querier, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternal(err)
	}
	return PutSetting(ctx, q, key, string(data))
}

// InsertFolder stores a new folder record.
func InsertFolder(ctx context.Context, q Querier, f *item.Folder) error {
	idsJSON, err := marshalIDs(f.ItemIDs)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO folders (id, name, item_ids_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.Name, idsJSON, f.CreatedAt.UnixMilli(), f.UpdatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict("folder already exists: " + f.ID)
		}
		return errors.NewInternal(err)
	}
	return nil
}

// UpdateFolder rewrites name, membership and updated_at of an existing folder.
func UpdateFolder(ctx context.Context, q Querier, f *item.Folder) error {
	idsJSON, err := marshalIDs(f.ItemIDs)
	if err != nil {
		return err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE folders SET name = ?, item_ids_json = ?, updated_at = ?
		WHERE id = ?
	`, f.Name, idsJSON, f.UpdatedAt.UnixMilli(), f.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(result, "folder", f.ID)
}

// GetFolder retrieves a folder by id.
func GetFolder(ctx context.Context, q Querier, id string) (*item.Folder, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, item_ids_json, created_at, updated_at
		FROM folders WHERE id = ?
	`, id)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("folder", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return f, nil
}

// ListFolders returns every folder, most recently updated first.
func ListFolders(ctx context.Context, q Querier) ([]*item.Folder, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, item_ids_json, created_at, updated_at
		FROM folders
		ORDER BY updated_at DESC, id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var folders []*item.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return folders, nil
}

// DeleteFolder removes the folder record and its payload blob in one transaction.
func DeleteFolder(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if err := DeletePayload(ctx, tx, id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := requireRow(result, "folder", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPayload returns the encrypted payload of a folder. ok is false when the
// folder has never stored one.
func GetPayload(ctx context.Context, q Querier, folderID string) (blob []byte, ok bool, err error) {
	err = q.QueryRowContext(ctx, `SELECT blob FROM folder_payloads WHERE folder_id = ?`, folderID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInternal(err)
	}
	return blob, true, nil
}

// PutPayload upserts the encrypted payload of a folder.
func PutPayload(ctx context.Context, q Querier, folderID string, blob []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO folder_payloads (folder_id, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at
	`, folderID, blob, time.Now().UnixMilli())
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeletePayload removes a folder payload. Missing payloads are ignored.
func DeletePayload(ctx context.Context, q Querier, folderID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM folder_payloads WHERE folder_id = ?`, folderID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// SaveFolderWithPayload writes membership and payload in one transaction so
// the two never disagree after a crash.
func SaveFolderWithPayload(ctx context.Context, db *sql.DB, f *item.Folder, blob []byte) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if err := UpdateFolder(ctx, tx, f); err != nil {
		return err
	}
	if err := PutPayload(ctx, tx, f.ID, blob); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*item.Folder, error) {
	var (
		f         item.Folder
		idsJSON   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&f.ID, &f.Name, &idsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &f.ItemIDs); err != nil {
		return nil, err
	}
	f.CreatedAt = time.UnixMilli(createdAt)
	f.UpdatedAt = time.UnixMilli(updatedAt)
	return &f, nil
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return string(data), nil
}
