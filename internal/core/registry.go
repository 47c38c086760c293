package core

import (
	"fmt"
	"sync"

	"github.com/JonMunkholm/eddb-ingest/internal/dump"
	"github.com/JonMunkholm/eddb-ingest/internal/record"
	"github.com/JonMunkholm/eddb-ingest/internal/store"
)

var (
	registry   = make(map[Kind]ResourceDefinition)
	registryMu sync.RWMutex
)

// ResourceDefinition contains everything needed to ingest one kind.
type ResourceDefinition struct {
	Kind   Kind
	File   string      // Dump file name, relative to the source base URL
	Format dump.Format // Encoding of the dump
	Table  string      // Storage table

	// LowerFields are case-folded on commit.
	LowerFields []string

	// RefColumns are external-id references to other kinds.
	RefColumns []string
}

// Collection returns the storage description for this kind.
func (d ResourceDefinition) Collection() store.Collection {
	return store.Collection{
		Kind:       string(d.Kind),
		Table:      d.Table,
		Normalizer: record.Normalizer{LowerFields: d.LowerFields},
		RefColumns: d.RefColumns,
	}
}

// Register adds a resource definition to the registry.
// Panics on an unknown kind or a duplicate registration.
func Register(def ResourceDefinition) {
	if _, err := ParseKind(string(def.Kind)); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("resource already registered: %s", def.Kind))
	}
	registry[def.Kind] = def
}

// Get returns the definition for kind.
func Get(kind Kind) (ResourceDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// All returns the registered definitions in BulkOrder.
func All() []ResourceDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ResourceDefinition, 0, len(registry))
	for _, k := range BulkOrder {
		if def, ok := registry[k]; ok {
			result = append(result, def)
		}
	}
	return result
}

// Collections returns the storage description of every registered kind.
func Collections() []store.Collection {
	defs := All()
	cols := make([]store.Collection, len(defs))
	for i, def := range defs {
		cols[i] = def.Collection()
	}
	return cols
}

// ResourceCount returns the number of registered kinds.
func ResourceCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}
