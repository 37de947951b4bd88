package workflow

import (
	"context"
	"strings"
	"sync"
)

// Storage is the persistence port the Manager depends on. Implementations
// exist for PostgreSQL (Repository) and memory (MemoryStorage); the Manager
// has no knowledge of the backing technology.
type Storage interface {
	Save(ctx context.Context, wf *Workflow) error
	// Load returns nil, nil when the workflow does not exist.
	Load(ctx context.Context, id string) (*Workflow, error)
	LoadAll(ctx context.Context) ([]*Workflow, error)
	Delete(ctx context.Context, id string) (bool, error)
	// Search matches the query case-insensitively against name, description
	// and tags.
	Search(ctx context.Context, query string) ([]*Workflow, error)
}

// MemoryStorage keeps workflows in a mutex-guarded map. Used as the default
// backend when no database is configured, and in tests.
type MemoryStorage struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{workflows: make(map[string]*Workflow)}
}

func (s *MemoryStorage) Save(_ context.Context, wf *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

func (s *MemoryStorage) Load(_ context.Context, id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	copied := *wf
	return &copied, nil
}

func (s *MemoryStorage) LoadAll(_ context.Context) ([]*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		copied := *wf
		out = append(out, &copied)
	}
	return out, nil
}

func (s *MemoryStorage) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workflows[id]
	delete(s.workflows, id)
	return ok, nil
}

func (s *MemoryStorage) Search(ctx context.Context, query string) ([]*Workflow, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []*Workflow
	for _, wf := range all {
		if workflowMatches(wf, q) {
			out = append(out, wf)
		}
	}
	return out, nil
}

func workflowMatches(wf *Workflow, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(wf.Name), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(wf.Description), lowerQuery) {
		return true
	}
	for _, tag := range wf.Tags {
		if strings.Contains(strings.ToLower(tag), lowerQuery) {
			return true
		}
	}
	return false
}
