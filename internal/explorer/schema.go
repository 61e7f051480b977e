package explorer

import (
	"context"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// SchemaRegistry holds the backend schema. The relationship matrix is the
// only source for which entity types may link to which.
type SchemaRegistry struct {
	api    domain.GraphAPI
	notify *Notifier
	log    *zap.Logger

	mu      sync.RWMutex
	schema  *domain.Schema
	loading int
	err     string
}

func NewSchemaRegistry(api domain.GraphAPI, notify *Notifier, log *zap.Logger) *SchemaRegistry {
	return &SchemaRegistry{api: api, notify: notify, log: orNop(log)}
}

// Refresh replaces the schema on success and keeps the old one on failure.
func (r *SchemaRegistry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.loading++
	r.err = ""
	r.mu.Unlock()

	schema, err := r.api.Schema(ctx)

	r.mu.Lock()
	r.loading--
	if err != nil {
		r.err = domain.Message(err)
		r.mu.Unlock()
		r.log.Warn("fetch schema failed", zap.Error(err))
		return &domain.FetchError{Op: "fetch schema", Err: err}
	}
	r.schema = &schema
	r.mu.Unlock()

	r.log.Debug("schema refreshed",
		zap.Int("entity_types", len(schema.Entities)),
		zap.Int("matrix_rows", len(schema.RelationshipMatrix)))
	r.notify.publish(Event{Kind: SchemaChanged})
	return nil
}

// Loaded reports whether a schema has been fetched successfully.
func (r *SchemaRegistry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schema != nil
}

// Schema returns the current schema, if any.
func (r *SchemaRegistry) Schema() (domain.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		return domain.Schema{}, false
	}
	return *r.schema, true
}

// ValidTargetTypes lists each toEntityType reachable from fromType once, in
// matrix order.
func (r *SchemaRegistry) ValidTargetTypes(fromType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		return []string{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rule := range r.schema.RelationshipMatrix {
		if rule.FromEntityType != fromType {
			continue
		}
		if _, ok := seen[rule.ToEntityType]; ok {
			continue
		}
		seen[rule.ToEntityType] = struct{}{}
		out = append(out, rule.ToEntityType)
	}
	return out
}

// ValidRelationships returns every matrix row for the (fromType, toType) pair.
func (r *SchemaRegistry) ValidRelationships(fromType, toType string) []domain.RelationshipRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		return []domain.RelationshipRule{}
	}
	out := make([]domain.RelationshipRule, 0)
	for _, rule := range r.schema.RelationshipMatrix {
		if rule.FromEntityType == fromType && rule.ToEntityType == toType {
			out = append(out, rule)
		}
	}
	return out
}

func (r *SchemaRegistry) IsValidRelationship(fromType, toType string) bool {
	return len(r.ValidRelationships(fromType, toType)) > 0
}

// CreatableTypes lists every type that originates at least one matrix row.
func (r *SchemaRegistry) CreatableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		return []string{}
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rule := range r.schema.RelationshipMatrix {
		if _, ok := seen[rule.FromEntityType]; ok {
			continue
		}
		seen[rule.FromEntityType] = struct{}{}
		out = append(out, rule.FromEntityType)
	}
	return out
}

// EntitySchema looks up the declared schema of one entity type.
func (r *SchemaRegistry) EntitySchema(entityType string) (domain.EntitySchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		return domain.EntitySchema{}, false
	}
	for _, es := range r.schema.Entities {
		if es.Type == entityType {
			return es, true
		}
	}
	return domain.EntitySchema{}, false
}

// DisplayTypes orders the schema's entity types: priority types present in
// the schema first, then the remaining schema types in first-seen order.
// Without a schema the priority list is returned as is.
func (r *SchemaRegistry) DisplayTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schema == nil {
		out := make([]string, len(domain.EntityTypePriority))
		copy(out, domain.EntityTypePriority)
		return out
	}
	declared := make([]string, 0, len(r.schema.Entities))
	for _, es := range r.schema.Entities {
		declared = append(declared, es.Type)
	}
	return orderTypes(declared, domain.EntityTypePriority)
}

func orderTypes(declared, priority []string) []string {
	present := make(map[string]struct{}, len(declared))
	for _, t := range declared {
		present[t] = struct{}{}
	}
	inPriority := make(map[string]struct{}, len(priority))
	out := make([]string, 0, len(declared))
	for _, t := range priority {
		inPriority[t] = struct{}{}
		if _, ok := present[t]; ok {
			out = append(out, t)
		}
	}
	seen := make(map[string]struct{})
	for _, t := range declared {
		if _, ok := inPriority[t]; ok {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func (r *SchemaRegistry) IsLoading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading > 0
}

func (r *SchemaRegistry) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *SchemaRegistry) ClearError() {
	r.mu.Lock()
	r.err = ""
	r.mu.Unlock()
}
