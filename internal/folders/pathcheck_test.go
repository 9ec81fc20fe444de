package folders

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	base := t.TempDir()

	for _, path := range []string{
		"../backup.jsonl",
		"../../etc/backup.jsonl",
		"/tmp/../etc/backup.jsonl",
		filepath.Join(ExportsDir(base), "..", "x.jsonl"),
	} {
		err := ValidatePath(path, PathCheckWrite, cfg, base)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("ValidatePath(%q) = %v, want INVALID_REQUEST", path, err)
		}
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	base := t.TempDir()

	for _, path := range []string{"/tmp/backup", "/tmp/backup.json", "/tmp/backup.txt"} {
		err := ValidatePath(path, PathCheckWrite, cfg, base)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("ValidatePath(%q) = %v, want INVALID_REQUEST", path, err)
		}
	}
}

func TestValidatePath_ExportsDirAllowed(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(ExportsDir(base), "work.jsonl")

	if err := ValidatePath(path, PathCheckWrite, config.DefaultConfig(), base); err != nil {
		t.Fatalf("ValidatePath() error = %v", err)
	}
}

func TestValidatePath_DirectoryRestriction(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "x.jsonl")

	err := ValidatePath(outside, PathCheckWrite, config.DefaultConfig(), base)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("ValidatePath() = %v, want INVALID_REQUEST", err)
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(ExportsDir(base), "sub", "x.jsonl")

	err := ValidatePath(nested, PathCheckWrite, config.DefaultConfig(), base)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("ValidatePath() = %v, want INVALID_REQUEST", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	base := t.TempDir()
	extra := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{extra, "relative/ignored"}

	if err := ValidatePath(filepath.Join(extra, "x.jsonl"), PathCheckWrite, cfg, base); err != nil {
		t.Fatalf("ValidatePath() error = %v", err)
	}
}

func TestValidatePath_AllowUnsafePaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	if err := ValidatePath(filepath.Join(t.TempDir(), "x.jsonl"), PathCheckWrite, cfg, base); err != nil {
		t.Fatalf("ValidatePath() error = %v", err)
	}
}

func TestValidatePath_FileNotFound_ReadMode(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(ExportsDir(base), "missing.jsonl")

	err := ValidatePath(path, PathCheckRead, config.DefaultConfig(), base)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Fatalf("ValidatePath() = %v, want FILE_NOT_FOUND", err)
	}
}

func TestValidatePath_SymlinkRejected_EvenWithUnsafePaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	base := t.TempDir()
	dir := ExportsDir(base)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), "target.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	for _, unsafe := range []bool{false, true} {
		cfg.AllowUnsafePaths = unsafe
		for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
			if err := ValidatePath(link, mode, cfg, base); !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("unsafe=%v mode=%v: ValidatePath() = %v, want INVALID_REQUEST", unsafe, mode, err)
			}
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a/b/c.jsonl", false},
		{"a/../c.jsonl", true},
		{"..", true},
		{"a..b.jsonl", false},
	}
	for _, tt := range tests {
		if got := containsTraversal(tt.path); got != tt.want {
			t.Errorf("containsTraversal(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Work Stuff", "work-stuff"},
		{"../../etc/passwd", "etc-passwd"},
		{"a/b\\c", "a-b-c"},
		{"tab\there", "tabhere"},
		{"///", "folder"},
		{"", "folder"},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
