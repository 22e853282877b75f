package upload

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sorvx/Sorvx-main-ai/internal/log"
)

const testLimit = 1024

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), testLimit, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	return s
}

func TestValidate(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name        string
		fileName    string
		contentType string
		size        int64
		wantErrs    []error
	}{
		{"valid jpeg", "photo.jpg", "image/jpeg", 100, nil},
		{"valid pdf", "doc.pdf", "application/pdf", testLimit, nil},
		{"too large", "big.png", "image/png", testLimit + 1, []error{ErrFileTooLarge}},
		{"bad type", "script.sh", "text/x-shellscript", 10, []error{ErrUnsupportedType}},
		{"empty name", "", "image/png", 10, []error{ErrInvalidName}},
		{"large and wrong type", "x.exe", "application/octet-stream", testLimit * 2,
			[]error{ErrFileTooLarge, ErrUnsupportedType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.fileName, tt.contentType, tt.size)
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			for _, want := range tt.wantErrs {
				if !errors.Is(err, want) {
					t.Errorf("Validate() = %v, missing %v", err, want)
				}
			}
		})
	}
}

func TestSaveAndOpen(t *testing.T) {
	s := newStore(t)

	name, err := s.Save("photo.jpg", "image/jpeg", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if !strings.HasSuffix(name, "-photo.jpg") {
		t.Errorf("stored name = %q, want unique prefix + client name", name)
	}

	r, err := s.Open(name)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestSave_SameNameDoesNotCollide(t *testing.T) {
	s := newStore(t)

	first, err := s.Save("photo.jpg", "image/jpeg", 5, strings.NewReader("alice"))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	second, err := s.Save("photo.jpg", "image/jpeg", 3, strings.NewReader("bob"))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if first == second {
		t.Fatalf("both uploads stored as %q", first)
	}

	r, err := s.Open(first)
	if err != nil {
		t.Fatalf("Open(first) = %v", err)
	}
	defer r.Close()
	if data, _ := io.ReadAll(r); string(data) != "alice" {
		t.Errorf("first upload content = %q, overwritten by second", data)
	}
}

func TestSave_PathTraversalFlattened(t *testing.T) {
	s := newStore(t)

	name, err := s.Save("../../etc/passwd.png", "image/png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if !strings.HasSuffix(name, "-passwd.png") || strings.Contains(name, "/") {
		t.Errorf("stored name = %q, want flattened base", name)
	}
}

func TestSave_ReaderExceedsDeclaredSize(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, testLimit, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	oversized := strings.NewReader(strings.Repeat("a", testLimit+10))
	if _, err := s.Save("big.png", "image/png", 10, oversized); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Save() = %v, want ErrFileTooLarge", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}

func TestOpen_NotFound(t *testing.T) {
	s := newStore(t)

	if _, err := s.Open("missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() = %v, want ErrNotFound", err)
	}
	if _, err := s.Open(".."); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(..) = %v, want ErrNotFound", err)
	}
}
