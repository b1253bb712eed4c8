package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// InMemoryStore keeps the archive in process memory. Default for
// deployments without Postgres, and the fixture store for tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	cases map[string]Case
	clock Clock
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryStore creates an empty in-memory archive.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		cases: make(map[string]Case),
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func caseKey(c Case) string {
	return c.RegistryNumber + "|" + c.DateDeclared
}

func (s *InMemoryStore) Upsert(_ context.Context, c Case) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := caseKey(c)
	existing, ok := s.cases[key]
	if !ok {
		c.CreatedAt = s.clock()
		s.cases[key] = c
		return true, nil
	}

	// Refresh mutable fields, keeping older values when the new pull is
	// missing them.
	if c.CompanyName != "" {
		existing.CompanyName = c.CompanyName
	}
	if c.Court != "" {
		existing.Court = c.Court
	}
	if c.LawyerName != "" {
		existing.LawyerName = c.LawyerName
	}
	if c.LawyerFirm != "" {
		existing.LawyerFirm = c.LawyerFirm
	}
	s.cases[key] = existing
	return false, nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Case, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, c)
	}
	sortCases(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ByLawyer(_ context.Context, name string) ([]Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	var out []Case
	for _, c := range s.cases {
		if strings.ToLower(c.LawyerName) == needle {
			out = append(out, c)
		}
	}
	sortCases(out)
	return out, nil
}

// Close is a no-op for the in-memory archive.
func (s *InMemoryStore) Close() error {
	return nil
}

func sortCases(cases []Case) {
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].DateDeclared != cases[j].DateDeclared {
			return cases[i].DateDeclared > cases[j].DateDeclared
		}
		return cases[i].RegistryNumber < cases[j].RegistryNumber
	})
}
