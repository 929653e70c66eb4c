package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBucketServer(t *testing.T, status int) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization")+" "+string(body))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPBucketStore_Put(t *testing.T) {
	srv, calls := newBucketServer(t, http.StatusOK)
	store, err := NewHTTPBucketStore(Config{
		BaseURL:   srv.URL,
		Bucket:    "medicos",
		APIKey:    "k3y",
		PublicURL: "https://cdn.example.mx",
	})
	if err != nil {
		t.Fatalf("NewHTTPBucketStore: %v", err)
	}

	url, err := store.Put(context.Background(), "doctores/A1/foto.jpg", "image/jpeg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.mx/medicos/doctores/A1/foto.jpg" {
		t.Errorf("unexpected url %q", url)
	}
	if len(*calls) != 1 || (*calls)[0] != "POST /object/medicos/doctores/A1/foto.jpg Bearer k3y jpeg" {
		t.Errorf("unexpected calls: %v", *calls)
	}
}

func TestHTTPBucketStore_PutFailureIsSingleAttempt(t *testing.T) {
	srv, calls := newBucketServer(t, http.StatusInternalServerError)
	store, _ := NewHTTPBucketStore(Config{BaseURL: srv.URL, Bucket: "medicos"})

	if _, err := store.Put(context.Background(), "k.pdf", "application/pdf", strings.NewReader("x")); err == nil {
		t.Fatal("expected upload error")
	}
	if len(*calls) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(*calls))
	}
}

func TestHTTPBucketStore_DeleteByURL(t *testing.T) {
	srv, calls := newBucketServer(t, http.StatusOK)
	store, _ := NewHTTPBucketStore(Config{BaseURL: srv.URL, Bucket: "medicos", PublicURL: "https://cdn.example.mx"})

	if err := store.DeleteByURL(context.Background(), "https://cdn.example.mx/medicos/doctores/A1/cv.pdf"); err != nil {
		t.Fatalf("DeleteByURL: %v", err)
	}
	if !strings.HasPrefix((*calls)[0], "DELETE /object/medicos/doctores/A1/cv.pdf") {
		t.Errorf("unexpected call %q", (*calls)[0])
	}
}

func TestHTTPBucketStore_DeleteForeignURL(t *testing.T) {
	srv, calls := newBucketServer(t, http.StatusOK)
	store, _ := NewHTTPBucketStore(Config{BaseURL: srv.URL, Bucket: "medicos", PublicURL: "https://cdn.example.mx"})

	err := store.DeleteByURL(context.Background(), "https://elsewhere.example/x.pdf")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if len(*calls) != 0 {
		t.Error("expected no request for a foreign url")
	}
}

func TestHTTPBucketStore_DeleteNotFound(t *testing.T) {
	srv, _ := newBucketServer(t, http.StatusNotFound)
	store, _ := NewHTTPBucketStore(Config{BaseURL: srv.URL, Bucket: "medicos", PublicURL: "https://cdn.example.mx"})

	err := store.DeleteByURL(context.Background(), "https://cdn.example.mx/medicos/gone.pdf")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}
