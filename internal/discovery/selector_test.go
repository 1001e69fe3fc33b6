package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNext_RoundRobin(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"url":"http://chat-0"},{"url":"http://chat-1"},{"url":"http://chat-2"}]`))
	}))
	defer ts.Close()

	s := NewSelector(ts.URL)
	ctx := context.Background()

	want := []string{"http://chat-0", "http://chat-1", "http://chat-2", "http://chat-0"}
	for i, w := range want {
		got, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if got != w {
			t.Errorf("pick %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestNext_SingleFetchWithinInterval(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[{"url":"http://chat-0"}]`))
	}))
	defer ts.Close()

	s := NewSelector(ts.URL)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.Next(ctx); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected a single discovery fetch, got %d", n)
	}
}

func TestNext_EmptyList(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	s := NewSelector(ts.URL)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNext_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	s := NewSelector(ts.URL)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNext_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listening anymore

	s := NewSelector(ts.URL)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNext_FallsBackToCachedList(t *testing.T) {
	var fail atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"url":"http://chat-0"}]`))
	}))
	defer ts.Close()

	s := NewSelector(ts.URL)
	ctx := context.Background()
	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	// Force the next call to refresh and fail; the cached list serves.
	fail.Store(true)
	s.mu.Lock()
	s.lastRefresh = s.lastRefresh.Add(-2 * refreshInterval)
	s.mu.Unlock()

	got, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("expected cached fallback, got error: %v", err)
	}
	if got != "http://chat-0" {
		t.Errorf("expected cached url, got %s", got)
	}
}
