package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/convoke/convoke/core"
)

// InMemorySemanticStore is a naive core.SemanticStore backed by substring
// matching. Hits score by matched-query coverage; ties break by insertion
// order. Suitable only for tests and demos; production deployments supply a
// real vector store behind the same interface.
type InMemorySemanticStore struct {
	mu      sync.RWMutex
	records []core.SemanticRecord
}

var _ core.SemanticStore = (*InMemorySemanticStore)(nil)

// NewInMemorySemanticStore constructs an empty store.
func NewInMemorySemanticStore() *InMemorySemanticStore {
	return &InMemorySemanticStore{}
}

// Insert appends a record and returns its generated id.
func (s *InMemorySemanticStore) Insert(_ context.Context, text string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("mem_%d", len(s.records))
	s.records = append(s.records, core.SemanticRecord{ID: id, Text: text, Metadata: metadata})
	return id, nil
}

// Search returns up to k records containing any whitespace-separated query
// term, filtered by exact metadata match.
func (s *InMemorySemanticStore) Search(_ context.Context, query string, k int, filter map[string]any) ([]core.SemanticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	var hits []core.SemanticRecord
	for _, rec := range s.records {
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		score := matchScore(strings.ToLower(rec.Text), terms)
		if score == 0 {
			continue
		}
		rec.Score = score
		hits = append(hits, rec)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func matchScore(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 1.0
	}
	matched := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func matchesFilter(metadata, filter map[string]any) bool {
	for k, want := range filter {
		if got, ok := metadata[k]; !ok || got != want {
			return false
		}
	}
	return true
}
