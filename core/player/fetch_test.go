package player

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcherResolvesRelativeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stems/song/vocals.wav" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	body, err := f.Fetch(context.Background(), "/api/stems/song/vocals.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Fatalf("body = %q, want payload", b)
	}
}

func TestHTTPFetcherAcceptsAbsoluteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("direct"))
	}))
	defer srv.Close()

	// Base points somewhere that would 404; the absolute URL wins.
	f := NewHTTPFetcher("http://127.0.0.1:1")
	body, err := f.Fetch(context.Background(), srv.URL+"/anything")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	b, _ := io.ReadAll(body)
	if string(b) != "direct" {
		t.Fatalf("body = %q, want direct", b)
	}
}

func TestHTTPFetcherRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	if _, err := f.Fetch(context.Background(), "/missing.wav"); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
