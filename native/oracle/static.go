package oracle

import (
	"strings"
	"sync"
)

// StaticSource is a concurrency-safe in-memory quote store. Operators push
// decoded quotes into it (for example through an admin endpoint) and the
// engine reads the latest observation per feed. It doubles as the mock oracle
// for tests.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStaticSource constructs an empty quote store.
func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

// SetQuote records the latest quote for the feed, replacing any previous
// observation.
func (s *StaticSource) SetQuote(feedID string, q Quote) {
	trimmed := strings.TrimSpace(feedID)
	if trimmed == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[trimmed] = q
}

// Latest implements the Source interface.
func (s *StaticSource) Latest(feedID string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[strings.TrimSpace(feedID)]
	if !ok {
		return Quote{}, ErrUnknownFeed
	}
	return q, nil
}
