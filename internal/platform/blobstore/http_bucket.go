package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPBucketStore talks to a bucket REST API of the form
//
//	POST   {BaseURL}/object/{bucket}/{key}
//	DELETE {BaseURL}/object/{bucket}/{key}
//
// and serves objects from {PublicURL}/{bucket}/{key}. Each call is a single
// attempt; a failed upload aborts the request that triggered it.
type HTTPBucketStore struct {
	client    *resty.Client
	bucket    string
	publicURL string
}

func NewHTTPBucketStore(cfg Config) (*HTTPBucketStore, error) {
	if cfg.BaseURL == "" || cfg.Bucket == "" {
		return nil, errors.New("storage url and bucket are required for the http backend")
	}
	public := cfg.PublicURL
	if public == "" {
		public = strings.TrimRight(cfg.BaseURL, "/") + "/object/public"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(0)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &HTTPBucketStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(public, "/"),
	}, nil
}

func (s *HTTPBucketStore) Put(ctx context.Context, key, contentType string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		Post(s.objectPath(key))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: bucket returned status %d", key, resp.StatusCode())
	}

	return s.publicURL + "/" + s.bucket + "/" + key, nil
}

func (s *HTTPBucketStore) DeleteByURL(ctx context.Context, url string) error {
	key, ok := s.keyFromURL(url)
	if !ok {
		return fmt.Errorf("url %q does not belong to bucket %s: %w", url, s.bucket, ErrObjectNotFound)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Delete(s.objectPath(key))
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrObjectNotFound
	case resp.IsError():
		return fmt.Errorf("delete %s: bucket returned status %d", key, resp.StatusCode())
	}
	return nil
}

func (s *HTTPBucketStore) objectPath(key string) string {
	return "/object/" + s.bucket + "/" + key
}

func (s *HTTPBucketStore) keyFromURL(url string) (string, bool) {
	prefix := s.publicURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}
