package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tablesentry-io/tablesentry/internal/catalog"
)

// MemoryConfigStore is an in-memory configuration store for tests and local
// development. Safe for concurrent use.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]catalog.ValidationConfig
}

// NewMemoryConfigStore creates an empty in-memory configuration store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{
		configs: make(map[string]catalog.ValidationConfig),
	}
}

// ListConfigs returns all stored configurations matching the filter, ordered
// by config id.
func (s *MemoryConfigStore) ListConfigs(
	_ context.Context,
	filter catalog.ConfigFilter,
) ([]catalog.ValidationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configs []catalog.ValidationConfig

	for _, cfg := range s.configs {
		if filter.Matches(&cfg) {
			configs = append(configs, cfg)
		}
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].ID < configs[j].ID
	})

	return configs, nil
}

// GetConfig returns the configuration with the given id, or ErrConfigNotFound.
func (s *MemoryConfigStore) GetConfig(_ context.Context, id string) (*catalog.ValidationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, id)
	}

	return &cfg, nil
}

// InsertConfig stores a new configuration after validation.
func (s *MemoryConfigStore) InsertConfig(_ context.Context, cfg *catalog.ValidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[cfg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrConfigAlreadyExists, cfg.ID)
	}

	s.configs[cfg.ID] = *cfg

	return nil
}

// UpdateConfig replaces an existing configuration after validation.
func (s *MemoryConfigStore) UpdateConfig(_ context.Context, cfg *catalog.ValidationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.configs[cfg.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, cfg.ID)
	}

	s.configs[cfg.ID] = *cfg

	return nil
}
