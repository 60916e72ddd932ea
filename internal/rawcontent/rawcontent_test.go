package rawcontent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("raw content must be fetched without credentials")
		}
		switch r.URL.Path {
		case "/acme/site/raw/abc/README.md":
			w.Write([]byte("<!-- team:botsters -->"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client())

	body, err := fetcher.Fetch(context.Background(), server.URL+"/acme/site/raw/abc/README.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<!-- team:botsters -->" {
		t.Errorf("unexpected body %q", body)
	}

	_, err = fetcher.Fetch(context.Background(), server.URL+"/missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher(nil).Fetch(ctx, server.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFetchRejectsOversizedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/exact":
			w.Write(make([]byte, maxContentSize))
		default:
			w.Write(make([]byte, maxContentSize+1))
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client())

	body, err := fetcher.Fetch(context.Background(), server.URL+"/exact")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) != maxContentSize {
		t.Errorf("got %d bytes, want %d", len(body), maxContentSize)
	}

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/oversized"); err == nil || !strings.Contains(err.Error(), "larger than") {
		t.Errorf("expected size error, got %v", err)
	}
}
