package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryJobRegistry is an in-process job registry for tests and local
// development. Safe for concurrent use.
type MemoryJobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

// NewMemoryJobRegistry creates an empty in-memory registry.
func NewMemoryJobRegistry() *MemoryJobRegistry {
	return &MemoryJobRegistry{jobs: make(map[string]JobRecord)}
}

// ListJobs returns all jobs whose name carries the prefix, ordered by name.
func (r *MemoryJobRegistry) ListJobs(_ context.Context, namePrefix string) ([]JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []JobRecord

	for name, record := range r.jobs {
		if strings.HasPrefix(name, namePrefix) {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})

	return records, nil
}

// CreateJob registers a new job.
func (r *MemoryJobRegistry) CreateJob(_ context.Context, record JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[record.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, record.Name)
	}

	r.jobs[record.Name] = record

	return nil
}

// UpdateJob replaces an existing job.
func (r *MemoryJobRegistry) UpdateJob(_ context.Context, record JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[record.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, record.Name)
	}

	r.jobs[record.Name] = record

	return nil
}

// DeleteJob removes a job by name.
func (r *MemoryJobRegistry) DeleteJob(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	delete(r.jobs, name)

	return nil
}
