package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/logging"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	data := []byte(`{"hello": "world"}`)

	if err := atomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("atomicWriteFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("got %q, want %q", got, data)
	}

	// Verify permissions
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0644 {
		t.Errorf("permissions = %o, want 0644", perm)
	}
}

func TestAtomicWriteFile_Overwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	if err := atomicWriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := atomicWriteFile(path, []byte("new"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestAtomicWriteFile_NoTempFileOnFailure(t *testing.T) {
	parent := t.TempDir()
	path := filepath.Join(parent, "nodir", "test.json")
	if err := atomicWriteFile(path, []byte("data"), 0644); err == nil {
		t.Fatal("expected error writing to non-existent directory")
	}

	entries, _ := os.ReadDir(parent)
	if len(entries) != 0 {
		t.Errorf("unexpected files left behind: %v", entries)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"0f8fad5b-d9cb-469f-a165-70867728950e", false},
		{"session token", false},
		{"with.dots", false},
		{"unicode-名前", false},
		{"", true},
		{"..", true},
		{".hidden", true},
		{"foo/../bar", true},
		{"../escape", true},
		{"path/sep", true},
		{"back\\slash", true},
		{string([]byte{0}), true},
		{"has\x00null", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateKey(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateKey(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidKey) {
				t.Errorf("validateKey(%q) error %v is not ErrInvalidKey", tt.name, err)
			}
		})
	}
}

func TestCollection_PathTraversal(t *testing.T) {
	c := NewCollection[map[string]string](t.TempDir(), "Requests", logging.NewNopLogger())

	malicious := []string{
		"../../etc/passwd",
		"../escape",
		"foo/bar",
		"back\\slash",
	}

	for _, key := range malicious {
		if err := c.Store(key, map[string]string{"a": "b"}); err == nil {
			t.Errorf("Store(%q) should have failed", key)
		}
		if _, _, err := c.Retrieve(key); err == nil {
			t.Errorf("Retrieve(%q) should have failed", key)
		}
		if err := c.Remove(key); err == nil {
			t.Errorf("Remove(%q) should have failed", key)
		}
	}
}
