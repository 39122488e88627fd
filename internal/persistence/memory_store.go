package persistence

import (
	"sort"
	"sync"

	"github.com/dataproduct/journeys/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe DefinitionStore backed by maps.
type InMemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string][]byte
	versions map[string][]string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:     make(map[string]map[string][]byte),
		versions: make(map[string][]string),
	}
}

// Ensure InMemoryStore implements DefinitionStore.
var _ DefinitionStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveDefinition(doc api.Document) error {
	doc.Version = versionOrDefault(doc.Version)
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byVersion := s.docs[doc.Name]
	if byVersion == nil {
		byVersion = make(map[string][]byte)
		s.docs[doc.Name] = byVersion
	}
	byVersion[doc.Version] = data

	// Move the version to the end so that it becomes the latest.
	vs := s.versions[doc.Name]
	out := vs[:0:0]
	for _, v := range vs {
		if v != doc.Version {
			out = append(out, v)
		}
	}
	s.versions[doc.Name] = append(out, doc.Version)
	return nil
}

func (s *InMemoryStore) GetDefinition(name, version string) (api.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[name][versionOrDefault(version)]
	if !ok {
		return api.Document{}, ErrDefinitionNotFound
	}
	return DecodeDocument(data)
}

func (s *InMemoryStore) GetLatestDefinition(name string) (api.Document, error) {
	s.mu.RLock()
	vs := s.versions[name]
	s.mu.RUnlock()

	if len(vs) == 0 {
		return api.Document{}, ErrDefinitionNotFound
	}
	return s.GetDefinition(name, vs[len(vs)-1])
}

func (s *InMemoryStore) ListDefinitionVersions(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.versions[name]...), nil
}

func (s *InMemoryStore) ListDefinitionNames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.docs))
	for n := range s.docs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}
