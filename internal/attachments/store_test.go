package attachments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestLocalPutGet(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir)
	ctx := context.Background()

	data := []byte("report body")
	ref, err := s.Put(ctx, "reports/act.pdf", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(ref, "_act.pdf") {
		t.Errorf("expected ref to end with _act.pdf, got %q", ref)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	// Verify file path layout
	if _, err := os.Stat(filepath.Join(dir, ref)); err != nil {
		t.Errorf("expected file at %s: %v", filepath.Join(dir, ref), err)
	}
}

func TestLocalGetNotFound(t *testing.T) {
	s := NewLocal(t.TempDir())

	_, err := s.Get(context.Background(), "0123_missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "0123_missing.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	s := NewLocal(t.TempDir())

	for _, ref := range []string{"", "../etc/passwd", "a/b"} {
		if _, err := s.Get(context.Background(), ref); err == nil || errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q): expected invalid ref error, got %v", ref, err)
		}
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		in      string
		base    string
		wantErr bool
	}{
		{"photo.jpg", "photo.jpg", false},
		{"/tmp/upload/photo.jpg", "photo.jpg", false},
		{`C:\Users\me\scan.png`, "scan.png", false},
		{"", "", true},
		{"..", "", true},
	}
	for _, tt := range tests {
		got, err := ObjectName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ObjectName(%q): unexpected error state %v", tt.in, err)
			continue
		}
		if tt.wantErr {
			continue
		}
		prefix, base, ok := strings.Cut(got, "_")
		if !ok || len(prefix) != 32 {
			t.Errorf("ObjectName(%q): expected 32-char hex prefix, got %q", tt.in, got)
		}
		if base != tt.base {
			t.Errorf("ObjectName(%q): expected base %q, got %q", tt.in, tt.base, base)
		}
		if BaseName(got) != tt.base {
			t.Errorf("BaseName(%q): expected %q, got %q", got, tt.base, BaseName(got))
		}
	}
}

func TestObjectNameIsUnique(t *testing.T) {
	a, _ := ObjectName("same.txt")
	b, _ := ObjectName("same.txt")
	if a == b {
		t.Errorf("expected distinct names, got %q twice", a)
	}
}

func TestSaveAllPreservesOrder(t *testing.T) {
	s := NewLocal(t.TempDir())
	files := []File{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
		{Name: "c.txt", Data: []byte("c")},
		{Name: "d.txt", Data: []byte("d")},
		{Name: "e.txt", Data: []byte("e")},
	}

	refs, err := SaveAll(context.Background(), s, files)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if len(refs) != len(files) {
		t.Fatalf("expected %d refs, got %d", len(files), len(refs))
	}
	for i, ref := range refs {
		if BaseName(ref) != files[i].Name {
			t.Errorf("ref %d: expected base %s, got %s", i, files[i].Name, BaseName(ref))
		}
		got, err := s.Get(context.Background(), ref)
		if err != nil {
			t.Fatalf("Get(%s): %v", ref, err)
		}
		if string(got) != string(files[i].Data) {
			t.Errorf("ref %d: expected %q, got %q", i, files[i].Data, got)
		}
	}
}

// failingStore stores everything except names listed in fail.
type failingStore struct {
	mu      sync.Mutex
	fail    map[string]bool
	stored  map[string]bool
	deleted []string
}

func (f *failingStore) Put(_ context.Context, name string, _ []byte) (string, error) {
	if f.fail[name] {
		return "", fmt.Errorf("boom")
	}
	ref, err := ObjectName(name)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.stored[ref] = true
	f.mu.Unlock()
	return ref, nil
}

func (f *failingStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (f *failingStore) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	delete(f.stored, ref)
	return nil
}

func TestSaveAllCleansUpOnFailure(t *testing.T) {
	s := &failingStore{fail: map[string]bool{"bad.txt": true}, stored: map[string]bool{}}
	files := []File{{Name: "ok.txt"}, {Name: "bad.txt"}, {Name: "ok2.txt"}}

	if _, err := SaveAll(context.Background(), s, files); err == nil {
		t.Fatal("expected error")
	}
	if len(s.stored) != 0 {
		t.Errorf("expected stored files to be removed, %d remain", len(s.stored))
	}
}

func TestSaveAllEmpty(t *testing.T) {
	refs, err := SaveAll(context.Background(), NewLocal(t.TempDir()), nil)
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}
