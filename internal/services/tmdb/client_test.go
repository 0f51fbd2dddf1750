package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupPrefersExactTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "key" || q.Get("query") != "Heat" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("primary_release_year") != "1995" {
			t.Errorf("expected year filter, got %q", q.Get("primary_release_year"))
		}
		_ = json.NewEncoder(w).Encode(Response{Results: []Result{
			{ID: 1, Title: "Heat Wave", Popularity: 90},
			{ID: 2, Title: "Heat", ReleaseDate: "1995-12-15", Popularity: 40, Overview: "A heist."},
		}})
	}))
	defer server.Close()

	client, err := New("key", server.URL, "en-US")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	match, err := client.Lookup(context.Background(), "Heat", 1995)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match.ID != 2 || match.Year() != 1995 {
		t.Fatalf("unexpected match %+v", match)
	}
}

func TestLookupRetriesWithoutYear(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("primary_release_year") != "" {
			_ = json.NewEncoder(w).Encode(Response{})
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Results: []Result{{ID: 7, Title: "Alien"}}})
	}))
	defer server.Close()

	client, _ := New("key", server.URL, "")
	match, err := client.Lookup(context.Background(), "Alien", 2001)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if match.ID != 7 || calls != 2 {
		t.Fatalf("unexpected match %+v after %d calls", match, calls)
	}
}

func TestLookupNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{})
	}))
	defer server.Close()

	client, _ := New("key", server.URL, "")
	if _, err := client.Lookup(context.Background(), "Nothing", 0); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(" ", "https://api.themoviedb.org/3", ""); err == nil {
		t.Fatal("expected missing key error")
	}
}
