package folders

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/whispr/internal/db"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
)

// ExportHeader is the first line of a folder export file.
type ExportHeader struct {
	WhisprExport  bool   `json:"_whispr_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	Folder        string `json:"folder"`
}

const exportSchemaVersion = "1.0"

// ExportResult describes a finished export.
type ExportResult struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes the folder's decrypted items as JSONL. The file is plaintext
// and created 0600. An empty path picks exports/<name>-<timestamp>.jsonl.
func (s *Store) Export(ctx context.Context, folderID, path string) (*ExportResult, error) {
	defer s.lock(folderID)()

	f, err := db.GetFolder(ctx, s.db, folderID)
	if err != nil {
		return nil, err
	}
	// Exporting a corrupt folder as empty would look like success.
	items, err := s.loadItems(ctx, folderID)
	if err != nil {
		return nil, mapVaultError(err)
	}

	now := s.now()
	if path == "" {
		stamp := now.Format("2006-01-02T150405")
		path = filepath.Join(ExportsDir(s.baseDir), fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(f.Name), stamp))
	}
	if err := ValidatePath(path, PathCheckWrite, s.cfg, s.baseDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file, then rename, so a failed export leaves any
	// existing file intact.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	header := ExportHeader{
		WhisprExport:  true,
		SchemaVersion: exportSchemaVersion,
		ExportedAt:    now.Unix(),
		Folder:        f.Name,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	if err := w.Flush(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportResult{Path: path, Count: len(items), ExportedAt: now.Unix()}, nil
}

// ImportError reports one rejected line of an import file.
type ImportError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportResult describes a finished import.
type ImportResult struct {
	Folder   *item.Folder  `json:"folder"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Import reads an export file into a new folder. The folder is named name,
// else the name recorded in the header, else the file stem. Malformed lines
// are reported and skipped; duplicate ids and contents are skipped.
func (s *Store) Import(ctx context.Context, path, name string) (*ImportResult, error) {
	if err := ValidatePath(path, PathCheckRead, s.cfg, s.baseDir); err != nil {
		return nil, err
	}
	if err := s.EncryptionAvailable(); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(path)
	if err != nil {
		var wErr *errors.WhisprError
		if stderrors.As(err, &wErr) {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	header, records, lineErrors := parseExportFile(file)

	if name = strings.TrimSpace(name); name == "" && header != nil {
		name = strings.TrimSpace(header.Folder)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	f, err := s.CreateFolder(ctx, name)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: lineErrors}
	items := []*item.Item{}
	seenID := map[string]bool{}
	seenContent := map[string]bool{}
	for _, rec := range records {
		if seenID[rec.ID] || seenContent[rec.Content] {
			res.Skipped++
			continue
		}
		seenID[rec.ID] = true
		seenContent[rec.Content] = true
		rec.IsProcessing = false
		items = append(items, rec)
		res.Imported++
	}
	res.Skipped += len(lineErrors)

	unlock := s.lock(f.ID)
	err = s.writeItems(ctx, f, items)
	unlock()
	if err != nil {
		// Do not leave an empty shell behind.
		_ = db.DeleteFolder(ctx, s.db, f.ID)
		return nil, err
	}
	res.Folder = f
	return res, nil
}

func parseExportFile(file *os.File) (*ExportHeader, []*item.Item, []ImportError) {
	var (
		header  *ExportHeader
		records []*item.Item
		errs    []ImportError
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var probe struct {
			WhisprExport bool `json:"_whispr_export"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			errs = append(errs, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if probe.WhisprExport {
			var h ExportHeader
			if err := json.Unmarshal(line, &h); err == nil && header == nil {
				header = &h
			}
			continue
		}

		var it item.Item
		if err := json.Unmarshal(line, &it); err != nil {
			errs = append(errs, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid item: %v", err)})
			continue
		}
		it.Content = item.NormalizeContent(it.Content)
		switch {
		case it.ID == "":
			errs = append(errs, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: "missing id field"})
			continue
		case it.Content == "":
			errs = append(errs, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: "empty content"})
			continue
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = time.Now()
		}
		records = append(records, &it)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, ImportError{Line: lineNum, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return header, records, errs
}
