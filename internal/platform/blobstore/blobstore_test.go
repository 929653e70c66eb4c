package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		contentType string
		size        int64
		want        error
	}{
		{"ok photo", "foto.jpg", "image/jpeg", 1024, nil},
		{"missing name", "", "image/jpeg", 1024, ErrMissingFileName},
		{"too large", "foto.jpg", "image/jpeg", 2048, ErrFileTooLarge},
		{"bad type", "script.sh", "text/x-shellscript", 10, ErrInvalidContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.contentType, tt.size, 1024, PhotoContentTypes)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateUpload_DefaultMax(t *testing.T) {
	if err := ValidateUpload("a.pdf", "application/pdf", DefaultMaxFileSize+1, 0, DocumentContentTypes); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected default limit to apply, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("doctores", "A1", "foto", "Mi Foto.JPG")
	b := ObjectKey("doctores", "A1", "foto", "Mi Foto.JPG")
	if !strings.HasPrefix(a, "doctores/A1/foto/") || !strings.HasSuffix(a, ".jpg") {
		t.Errorf("unexpected key %q", a)
	}
	if a == b {
		t.Error("expected unique keys")
	}
}

func TestMemoryStore_PutAndDelete(t *testing.T) {
	s := NewMemoryStore("medicos")
	ctx := context.Background()

	url, err := s.Put(ctx, "doctores/A1/cv.pdf", "application/pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "memory://medicos/doctores/A1/cv.pdf" {
		t.Errorf("unexpected url %q", url)
	}

	r, ok := s.Get(url)
	if !ok {
		t.Fatal("expected object to be stored")
	}
	data, _ := io.ReadAll(r)
	if string(data) != "%PDF-1.4" {
		t.Errorf("unexpected content %q", data)
	}

	if err := s.DeleteByURL(ctx, url); err != nil {
		t.Fatalf("DeleteByURL: %v", err)
	}
	if err := s.DeleteByURL(ctx, url); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore("")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Put(ctx, ObjectKey("doctores", "x.png"), "image/png", strings.NewReader("png"))
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("expected 20 objects, got %d", s.Len())
	}
}

func TestNew_Backends(t *testing.T) {
	if _, err := New(Config{Backend: "memory"}); err != nil {
		t.Errorf("memory backend: %v", err)
	}
	if _, err := New(Config{Backend: "http"}); err == nil {
		t.Error("expected http backend without url to fail")
	}
	if _, err := New(Config{Backend: "ftp"}); err == nil {
		t.Error("expected unknown backend to fail")
	}
}
