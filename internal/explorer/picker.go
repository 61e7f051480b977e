package explorer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// PickerGroup is one entity type section of the attach picker.
type PickerGroup struct {
	Type        string `json:"type"`
	SearchQuery string `json:"searchQuery"`
	IsCollapsed bool   `json:"isCollapsed"`
}

// Picker holds the entities a user attaches to an entity being created,
// grouped by the target types the schema allows for that entity type.
type Picker struct {
	schema *SchemaRegistry
	store  *EntityStore
	notify *Notifier
	log    *zap.Logger

	mu         sync.RWMutex
	entityType string
	order      []string
	groups     map[string]*PickerGroup
	attached   []domain.Entity
	loading    bool
	err        string
}

func NewPicker(schema *SchemaRegistry, store *EntityStore, notify *Notifier, log *zap.Logger) *Picker {
	return &Picker{
		schema: schema,
		store:  store,
		notify: notify,
		log:    orNop(log),
		groups: make(map[string]*PickerGroup),
	}
}

// Reset switches the picker to entityType, dropping attachments and
// rebuilding the groups from the current schema.
func (p *Picker) Reset(entityType string) {
	p.mu.Lock()
	p.entityType = entityType
	p.attached = nil
	p.initGroupsLocked()
	p.mu.Unlock()
	p.notify.publish(Event{Kind: PickerChanged})
}

// Load refreshes the schema, rebuilds the groups, then refreshes entities.
func (p *Picker) Load(ctx context.Context) error {
	p.mu.Lock()
	p.loading = true
	p.err = ""
	p.mu.Unlock()

	schemaErr := p.schema.Refresh(ctx)

	p.mu.Lock()
	p.initGroupsLocked()
	p.mu.Unlock()

	entitiesErr := p.store.Refresh(ctx)

	err := errors.Join(schemaErr, entitiesErr)
	p.mu.Lock()
	p.loading = false
	if err != nil {
		p.err = domain.Message(err)
	}
	p.mu.Unlock()
	p.notify.publish(Event{Kind: PickerChanged})
	return err
}

func (p *Picker) initGroupsLocked() {
	valid := p.schema.ValidTargetTypes(p.entityType)
	p.order = valid
	p.groups = make(map[string]*PickerGroup, len(valid))
	for _, t := range valid {
		p.groups[t] = &PickerGroup{Type: t, IsCollapsed: true}
	}
}

func (p *Picker) EntityType() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entityType
}

func (p *Picker) Groups() []PickerGroup {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PickerGroup, 0, len(p.order))
	for _, t := range p.order {
		out = append(out, *p.groups[t])
	}
	return out
}

// SetSearchQuery filters one group. Unknown groups are ignored.
func (p *Picker) SetSearchQuery(entityType, query string) bool {
	p.mu.Lock()
	g, ok := p.groups[entityType]
	if ok {
		g.SearchQuery = query
	}
	p.mu.Unlock()
	if ok {
		p.notify.publish(Event{Kind: PickerChanged})
	}
	return ok
}

func (p *Picker) SearchQuery(entityType string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if g, ok := p.groups[entityType]; ok {
		return g.SearchQuery
	}
	return ""
}

func (p *Picker) ToggleGroupCollapse(entityType string) {
	p.mu.Lock()
	g, ok := p.groups[entityType]
	if ok {
		g.IsCollapsed = !g.IsCollapsed
	}
	p.mu.Unlock()
	if ok {
		p.notify.publish(Event{Kind: PickerChanged})
	}
}

// Attach adds entity once; attaching an already attached id is a no-op.
func (p *Picker) Attach(entity domain.Entity) {
	p.mu.Lock()
	for _, e := range p.attached {
		if e.ID == entity.ID {
			p.mu.Unlock()
			return
		}
	}
	p.attached = append(p.attached, entity)
	p.mu.Unlock()
	p.notify.publish(Event{Kind: PickerChanged})
}

func (p *Picker) Detach(id uint) {
	p.mu.Lock()
	idx := -1
	for i, e := range p.attached {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		p.attached = append(p.attached[:idx], p.attached[idx+1:]...)
	}
	p.mu.Unlock()
	if idx >= 0 {
		p.notify.publish(Event{Kind: PickerChanged})
	}
}

func (p *Picker) Attached() []domain.Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Entity, len(p.attached))
	copy(out, p.attached)
	return out
}

// Available lists, per valid target type, the store's entities that are not
// attached yet and match the group's search query.
func (p *Picker) Available() map[string][]domain.Entity {
	entities := p.store.List()

	p.mu.RLock()
	defer p.mu.RUnlock()
	attachedIDs := make(map[uint]struct{}, len(p.attached))
	for _, e := range p.attached {
		attachedIDs[e.ID] = struct{}{}
	}
	out := make(map[string][]domain.Entity, len(p.order))
	for _, t := range p.order {
		query := strings.ToLower(p.groups[t].SearchQuery)
		list := make([]domain.Entity, 0)
		for _, e := range entities {
			if e.Type != t {
				continue
			}
			if _, ok := attachedIDs[e.ID]; ok {
				continue
			}
			if !matchesQuery(e, query) {
				continue
			}
			list = append(list, e)
		}
		out[t] = list
	}
	return out
}

// AttachedByType groups the attachments by valid type, omitting empty groups.
func (p *Picker) AttachedByType() map[string][]domain.Entity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]domain.Entity)
	for _, t := range p.order {
		for _, e := range p.attached {
			if e.Type == t {
				out[t] = append(out[t], e)
			}
		}
	}
	return out
}

func (p *Picker) IsLoading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

func (p *Picker) Err() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func matchesQuery(e domain.Entity, lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Name), lowerQuery) {
		return true
	}
	return e.Description != nil && strings.Contains(strings.ToLower(*e.Description), lowerQuery)
}
