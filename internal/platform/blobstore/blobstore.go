// Package blobstore stores doctor photos and documents in an object bucket.
// It defines the ObjectStore interface, an in-memory implementation for
// development and tests, and an HTTP bucket client.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// DefaultMaxFileSize is used when no UPLOAD_MAX_SIZE is configured (10 MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// PhotoContentTypes are accepted for profile photos.
var PhotoContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// DocumentContentTypes are accepted for attached documents.
var DocumentContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// ObjectStore is the object storage collaborator: it accepts bytes under a
// key and hands back a retrievable URL, and deletes by that URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader) (string, error)
	DeleteByURL(ctx context.Context, url string) error
}

// Config selects and configures the bucket backend. It is built once from
// the environment and passed to New.
type Config struct {
	Backend   string // "memory" or "http"
	BaseURL   string
	Bucket    string
	APIKey    string
	PublicURL string
	MaxSize   int64
}

// New returns the backend named by cfg.Backend.
func New(cfg Config) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.Bucket), nil
	case "http":
		return NewHTTPBucketStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ValidateUpload checks a file before it is sent to the store.
func ValidateUpload(fileName, contentType string, size, maxSize int64, allowed map[string]bool) error {
	if fileName == "" {
		return ErrMissingFileName
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if size > maxSize {
		return ErrFileTooLarge
	}
	if !allowed[contentType] {
		return ErrInvalidContentType
	}
	return nil
}

// ObjectKey builds a collision-free key such as "doctores/A123/foto/<uuid>.jpg".
func ObjectKey(parts ...string) string {
	name := parts[len(parts)-1]
	ext := strings.ToLower(path.Ext(name))
	segs := append([]string{}, parts[:len(parts)-1]...)
	segs = append(segs, uuid.NewString()+ext)
	return path.Join(segs...)
}

// MemoryStore is a thread-safe, in-memory ObjectStore.
type MemoryStore struct {
	mu      sync.RWMutex
	prefix  string
	objects map[string][]byte // URL -> content
}

func NewMemoryStore(bucket string) *MemoryStore {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStore{
		prefix:  "memory://" + bucket + "/",
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(_ context.Context, key, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	url := s.prefix + key

	s.mu.Lock()
	s.objects[url] = data
	s.mu.Unlock()
	return url, nil
}

func (s *MemoryStore) DeleteByURL(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[url]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, url)
	return nil
}

// Get returns the stored bytes for url.
func (s *MemoryStore) Get(url string) (io.Reader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[url]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(data), true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
