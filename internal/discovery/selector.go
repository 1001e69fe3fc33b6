// Package discovery selects a downstream chat server for each new pair.
// The list of servers comes from the discovery endpoint and is cached;
// picks rotate round-robin so load spreads evenly.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// ErrUnavailable is returned when no chat server URL can be obtained:
// the discovery source is unreachable, responds badly, or yields an
// empty list. Every error out of the selector wraps it.
var ErrUnavailable = errors.New("discovery: chat servers unavailable")

// refreshInterval bounds how stale the cached server list may get.
const refreshInterval = 60 * time.Second

// ServerInfo is one entry in the discovery endpoint's JSON response.
type ServerInfo struct {
	URL string `json:"url"`
}

// Selector caches the chat server list and hands out URLs round-robin.
// Safe for concurrent use; concurrent Next calls never return the same
// index twice in a row.
type Selector struct {
	client       *http.Client
	discoveryURL string

	mu          sync.Mutex
	urls        []string
	lastRefresh time.Time
	index       int
}

// NewSelector creates a selector polling the given discovery endpoint.
func NewSelector(discoveryURL string) *Selector {
	return &Selector{
		client:       &http.Client{Timeout: 5 * time.Second},
		discoveryURL: discoveryURL,
	}
}

// Next returns the next chat server URL, refreshing the cached list
// first when it is empty or older than the refresh interval. A failed
// refresh falls back to the cached list when one exists.
func (s *Selector) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.urls) == 0 || time.Since(s.lastRefresh) > refreshInterval {
		if err := s.refreshLocked(ctx); err != nil {
			if len(s.urls) == 0 {
				return "", err
			}
			log.Printf("[discovery] refresh failed, serving cached list: %v", err)
		}
	}
	if len(s.urls) == 0 {
		return "", ErrUnavailable
	}

	url := s.urls[s.index%len(s.urls)]
	s.index++
	return url, nil
}

func (s *Selector) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.discoveryURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetch servers: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var servers []ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	urls := make([]string, 0, len(servers))
	for _, srv := range servers {
		if srv.URL != "" {
			urls = append(urls, srv.URL)
		}
	}

	s.urls = urls
	s.lastRefresh = time.Now()
	if len(urls) == 0 {
		return ErrUnavailable
	}
	log.Printf("[discovery] refreshed %d chat servers", len(urls))
	return nil
}
