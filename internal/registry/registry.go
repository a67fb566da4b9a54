// Package registry holds the declarative set of matchable resources.
//
// The registry owns ResourceDescriptor lifecycle exclusively. Readers operate
// on an immutable snapshot swapped atomically on reload, so concurrent match
// queries never observe a partially-updated resource set.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"go.uber.org/zap"
)

// Errors for registry operations.
var (
	// ErrNotFound is returned when a resource ID is not registered.
	ErrNotFound = errors.New("resource not found")
)

// snapshot is an immutable view of the resource set.
type snapshot struct {
	byID    map[string]ResourceDescriptor
	ordered []string // resource IDs in declaration order
}

// Registry manages resource descriptors with atomic snapshot semantics.
type Registry struct {
	current atomic.Pointer[snapshot]
	logger  *zap.Logger

	// reloadMu serializes writers (Reload, SetEnabled). Readers are lock-free.
	reloadMu sync.Mutex
}

// New builds a registry from validated configuration.
//
// Configuration validation has already rejected resources whose type lacks a
// weight profile; New only converts descriptors and installs the first
// snapshot.
func New(cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	r := &Registry{logger: logger}
	snap, err := buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	r.current.Store(snap)
	return r, nil
}

// List returns resource descriptors in declaration order. With enabledOnly,
// disabled resources are filtered out.
func (r *Registry) List(enabledOnly bool) []ResourceDescriptor {
	snap := r.current.Load()
	out := make([]ResourceDescriptor, 0, len(snap.ordered))
	for _, id := range snap.ordered {
		desc := snap.byID[id]
		if enabledOnly && !desc.Enabled {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// Get returns the descriptor for a resource ID, or ErrNotFound.
func (r *Registry) Get(id string) (ResourceDescriptor, error) {
	snap := r.current.Load()
	desc, ok := snap.byID[id]
	if !ok {
		return ResourceDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return desc, nil
}

// BySourceTable returns the descriptors backed by a source table.
func (r *Registry) BySourceTable(table string) []ResourceDescriptor {
	snap := r.current.Load()
	var out []ResourceDescriptor
	for _, id := range snap.ordered {
		if desc := snap.byID[id]; desc.SourceTable == table {
			out = append(out, desc)
		}
	}
	return out
}

// Reload replaces the resource set from a validated configuration. The swap
// is atomic: concurrent readers see either the old or the new snapshot. On
// error the previous snapshot stays in place.
func (r *Registry) Reload(cfg *config.Config) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	snap, err := buildSnapshot(cfg)
	if err != nil {
		return err
	}
	r.current.Store(snap)
	r.logger.Info("registry reloaded", zap.Int("resources", len(snap.ordered)))
	return nil
}

// SetEnabled flips a resource's enablement via copy-on-write. Disabling takes
// effect on the next match query; vectors are kept, so re-enabling needs no
// vectorization pass.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	old := r.current.Load()
	desc, ok := old.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if desc.Enabled == enabled {
		return nil
	}

	byID := make(map[string]ResourceDescriptor, len(old.byID))
	for k, v := range old.byID {
		byID[k] = v
	}
	desc.Enabled = enabled
	byID[id] = desc

	r.current.Store(&snapshot{byID: byID, ordered: old.ordered})
	r.logger.Info("resource enablement changed",
		zap.String("resource_id", id),
		zap.Bool("enabled", enabled))
	return nil
}

// buildSnapshot converts resource configuration into an immutable snapshot.
func buildSnapshot(cfg *config.Config) (*snapshot, error) {
	byID := make(map[string]ResourceDescriptor, len(cfg.Resources))
	ordered := make([]string, 0, len(cfg.Resources))

	for _, rc := range cfg.Resources {
		desc := FromConfig(rc)
		if _, dup := byID[desc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", config.ErrInvalidConfig, desc.ID)
		}
		byID[desc.ID] = desc
		ordered = append(ordered, desc.ID)
	}

	return &snapshot{byID: byID, ordered: ordered}, nil
}

// FromConfig converts a declared resource into a descriptor. The resource ID
// is the source table name, which is stable across reloads.
func FromConfig(rc config.ResourceConfig) ResourceDescriptor {
	fields := make([]string, len(rc.Fields))
	copy(fields, rc.Fields)
	return ResourceDescriptor{
		ID:          rc.Table,
		Type:        ResourceType(rc.Type),
		SourceTable: rc.Table,
		Fields:      fields,
		Tool:        rc.Tool,
		Description: rc.Description,
		Enabled:     rc.Enabled,
	}
}
