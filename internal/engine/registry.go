package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dataproduct/journeys/pkg/api"
)

type journeyRegistry struct {
	mu     sync.RWMutex
	byName map[string]map[string]*api.Definition
	// latest holds the most recently registered version per journey.
	latest map[string]string
}

func newJourneyRegistry() *journeyRegistry {
	return &journeyRegistry{
		byName: make(map[string]map[string]*api.Definition),
		latest: make(map[string]string),
	}
}

func (r *journeyRegistry) Register(def *api.Definition) error {
	if def.Version == "" {
		def.Version = api.DefaultVersion
	}
	if def.Fingerprint == "" {
		def.Fingerprint = api.ComputeFingerprint(def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.byName[def.Name]
	if versions == nil {
		versions = make(map[string]*api.Definition)
		r.byName[def.Name] = versions
	}

	if _, exists := versions[def.Version]; exists {
		return fmt.Errorf("%w: %q version %q", api.ErrJourneyAlreadyDefined, def.Name, def.Version)
	}

	versions[def.Version] = def
	r.latest[def.Name] = def.Version
	return nil
}

func (r *journeyRegistry) Get(name, version string) (*api.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.byName[name]
	if versions == nil {
		return nil, fmt.Errorf("%w: %q", api.ErrJourneyNotFound, name)
	}

	def, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q version %q", api.ErrJourneyNotFound, name, version)
	}

	return def, nil
}

func (r *journeyRegistry) Latest(name string) (*api.Definition, error) {
	r.mu.RLock()
	version, ok := r.latest[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrJourneyNotFound, name)
	}
	return r.Get(name, version)
}

func (r *journeyRegistry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.byName[name]
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *journeyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
