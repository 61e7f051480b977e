package explorer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
)

// Browser is the listing view state: one tab per entity type, each with
// its own search query.
type Browser struct {
	schema *SchemaRegistry
	store  *EntityStore
	notify *Notifier

	mu        sync.RWMutex
	activeTab string
	queries   map[string]string
}

func NewBrowser(schema *SchemaRegistry, store *EntityStore, notify *Notifier) *Browser {
	return &Browser{
		schema:    schema,
		store:     store,
		notify:    notify,
		activeTab: domain.IngredientType,
		queries:   make(map[string]string),
	}
}

// Load refreshes entities and schema, then seeds a search query per type.
func (b *Browser) Load(ctx context.Context) error {
	err := errors.Join(b.store.Refresh(ctx), b.schema.Refresh(ctx))
	b.InitSearchQueries()
	return err
}

func (b *Browser) DisplayTypes() []string {
	return b.schema.DisplayTypes()
}

// InitSearchQueries adds an empty query for every display type that has none.
func (b *Browser) InitSearchQueries() {
	types := b.DisplayTypes()
	b.mu.Lock()
	for _, t := range types {
		if _, ok := b.queries[t]; !ok {
			b.queries[t] = ""
		}
	}
	b.mu.Unlock()
}

// EntitiesByType groups the store by display type, filtered by each type's
// search query (case-insensitive, on name or description).
func (b *Browser) EntitiesByType() map[string][]domain.Entity {
	types := b.DisplayTypes()
	entities := b.store.List()

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]domain.Entity, len(types))
	for _, t := range types {
		query := strings.ToLower(b.queries[t])
		list := make([]domain.Entity, 0)
		for _, e := range entities {
			if e.Type == t && matchesQuery(e, query) {
				list = append(list, e)
			}
		}
		out[t] = list
	}
	return out
}

func (b *Browser) CurrentEntities() []domain.Entity {
	tab := b.ActiveTab()
	if list, ok := b.EntitiesByType()[tab]; ok {
		return list
	}
	return []domain.Entity{}
}

func (b *Browser) ActiveTab() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeTab
}

func (b *Browser) SetActiveTab(tab string) {
	b.mu.Lock()
	b.activeTab = tab
	b.mu.Unlock()
	b.notify.publish(Event{Kind: BrowseChanged})
}

func (b *Browser) SetSearchQuery(entityType, query string) {
	b.mu.Lock()
	b.queries[entityType] = query
	b.mu.Unlock()
	b.notify.publish(Event{Kind: BrowseChanged})
}

func (b *Browser) SearchQuery(entityType string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queries[entityType]
}

// ShowListing implements domain.Navigator: the listing is shown with
// activeType selected, or with the current tab kept when it is empty.
func (b *Browser) ShowListing(activeType string) {
	if activeType == "" {
		b.notify.publish(Event{Kind: BrowseChanged})
		return
	}
	b.SetActiveTab(activeType)
}
