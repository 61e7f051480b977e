package explorer

import (
	"context"
	"sort"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// NodeView is a read-only snapshot of one expansion node.
type NodeView struct {
	Entity                 domain.Entity   `json:"entity"`
	IsExpanded             bool            `json:"isExpanded"`
	IsLoadingRelationships bool            `json:"isLoadingRelationships"`
	Relationships          []domain.Entity `json:"relationships"`
	ExpandedRelationships  []uint          `json:"expandedRelationships"`
	TopLevel               bool            `json:"topLevel"`
}

type expansionNode struct {
	entity        domain.Entity
	expanded      bool
	loading       bool
	relationships []domain.Entity
	children      map[uint]struct{}
	// topLevel nodes were opened with ToggleExpand and are never evicted
	// by a nested collapse.
	topLevel bool
}

func newExpansionNode(entity domain.Entity, topLevel bool) *expansionNode {
	return &expansionNode{
		entity:        entity,
		expanded:      true,
		loading:       true,
		relationships: []domain.Entity{},
		children:      make(map[uint]struct{}),
		topLevel:      topLevel,
	}
}

func (n *expansionNode) view() NodeView {
	rels := make([]domain.Entity, len(n.relationships))
	copy(rels, n.relationships)
	ids := make([]uint, 0, len(n.children))
	for id := range n.children {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return NodeView{
		Entity:                 n.entity,
		IsExpanded:             n.expanded,
		IsLoadingRelationships: n.loading,
		Relationships:          rels,
		ExpandedRelationships:  ids,
		TopLevel:               n.topLevel,
	}
}

// ExpansionTree caches each expanded entity's related entities, keyed by
// entity id.
//
// Top-level nodes persist across collapse and expand without refetching.
// Nested nodes are destroyed when their parent collapses them, and so is
// every id pointing at them from any node's expanded set.
type ExpansionTree struct {
	api    domain.GraphAPI
	notify *Notifier
	log    *zap.Logger

	mu    sync.RWMutex
	nodes map[uint]*expansionNode
	err   string
}

func NewExpansionTree(api domain.GraphAPI, notify *Notifier, log *zap.Logger) *ExpansionTree {
	return &ExpansionTree{
		api:    api,
		notify: notify,
		log:    orNop(log),
		nodes:  make(map[uint]*expansionNode),
	}
}

// ToggleExpand opens a top-level node, fetching its relationships the first
// time, or flips an existing node between expanded and collapsed.
func (t *ExpansionTree) ToggleExpand(ctx context.Context, entity domain.Entity) error {
	t.mu.Lock()
	if n, ok := t.nodes[entity.ID]; ok {
		n.expanded = !n.expanded
		n.topLevel = true
		expanded := n.expanded
		t.mu.Unlock()
		t.log.Debug("toggle cached node", zap.Uint("entity_id", entity.ID), zap.Bool("expanded", expanded))
		t.notify.publish(Event{Kind: NodeChanged, EntityID: entity.ID})
		return nil
	}
	n := newExpansionNode(entity, true)
	t.nodes[entity.ID] = n
	t.mu.Unlock()
	t.notify.publish(Event{Kind: NodeChanged, EntityID: entity.ID})

	return t.load(ctx, entity.ID, n)
}

// ToggleNestedExpand expands or collapses related one level below parentID.
// Collapsing evicts related's node. Expanding always creates a fresh node
// and fetches again. A missing parent or a self reference makes this a no-op.
func (t *ExpansionTree) ToggleNestedExpand(ctx context.Context, parentID uint, related domain.Entity) error {
	if related.ID == parentID {
		return nil
	}
	t.mu.Lock()
	parent, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return nil
	}

	if _, open := parent.children[related.ID]; open {
		delete(parent.children, related.ID)
		evicted := t.evictLocked(related.ID)
		t.mu.Unlock()
		t.log.Debug("nested collapse",
			zap.Uint("parent_id", parentID),
			zap.Uint("entity_id", related.ID),
			zap.Int("evicted", len(evicted)))
		t.notify.publish(Event{Kind: NodeChanged, EntityID: parentID})
		for _, id := range evicted {
			t.notify.publish(Event{Kind: NodeEvicted, EntityID: id})
		}
		return nil
	}

	parent.children[related.ID] = struct{}{}
	prev := t.nodes[related.ID]
	n := newExpansionNode(related, prev != nil && prev.topLevel)
	t.nodes[related.ID] = n
	var released []uint
	if prev != nil {
		released = t.releaseChildrenLocked(prev)
	}
	t.mu.Unlock()

	t.notify.publish(Event{Kind: NodeChanged, EntityID: parentID})
	for _, id := range released {
		t.notify.publish(Event{Kind: NodeEvicted, EntityID: id})
	}
	t.notify.publish(Event{Kind: NodeChanged, EntityID: related.ID})

	return t.load(ctx, related.ID, n)
}

// load fetches the relationships for n. The result is written only if n is
// still the node stored under id; a node that was evicted or replaced while
// the request was in flight drops it.
func (t *ExpansionTree) load(ctx context.Context, id uint, n *expansionNode) error {
	rels, err := t.api.RelatedEntities(ctx, id)

	t.mu.Lock()
	if t.nodes[id] != n {
		t.mu.Unlock()
		t.log.Debug("dropping stale relationship fetch", zap.Uint("entity_id", id))
		if err != nil {
			return &domain.FetchError{Op: "fetch related entities", Err: err}
		}
		return nil
	}
	n.loading = false
	if err != nil {
		n.relationships = []domain.Entity{}
		t.err = domain.Message(err)
	} else {
		if rels == nil {
			rels = []domain.Entity{}
		}
		n.relationships = rels
	}
	t.mu.Unlock()

	t.notify.publish(Event{Kind: NodeChanged, EntityID: id})
	if err != nil {
		t.log.Warn("fetch related entities failed", zap.Uint("entity_id", id), zap.Error(err))
		return &domain.FetchError{Op: "fetch related entities", Err: err}
	}
	return nil
}

// evictLocked removes the node for id unless it is top-level, detaches id
// from every expanded set, and releases the node's own nested children.
// It returns every evicted id.
func (t *ExpansionTree) evictLocked(id uint) []uint {
	n, ok := t.nodes[id]
	if !ok || n.topLevel {
		return nil
	}
	delete(t.nodes, id)
	for _, other := range t.nodes {
		delete(other.children, id)
	}
	return append([]uint{id}, t.releaseChildrenLocked(n)...)
}

// releaseChildrenLocked evicts the children of a node that left the tree
// when nothing else still has them expanded.
func (t *ExpansionTree) releaseChildrenLocked(gone *expansionNode) []uint {
	var out []uint
	for childID := range gone.children {
		if t.referencedLocked(childID) {
			continue
		}
		out = append(out, t.evictLocked(childID)...)
	}
	return out
}

func (t *ExpansionTree) referencedLocked(id uint) bool {
	for _, n := range t.nodes {
		if _, ok := n.children[id]; ok {
			return true
		}
	}
	return false
}

// setRelationships replaces the cached list of an existing node.
func (t *ExpansionTree) setRelationships(id uint, rels []domain.Entity) bool {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if ok {
		if rels == nil {
			rels = []domain.Entity{}
		}
		n.relationships = rels
		n.loading = false
	}
	t.mu.Unlock()
	if ok {
		t.notify.publish(Event{Kind: NodeChanged, EntityID: id})
	}
	return ok
}

// removeRelationship drops toID from fromID's cached list and collapses a
// nested expansion of toID under fromID.
func (t *ExpansionTree) removeRelationship(fromID, toID uint) bool {
	t.mu.Lock()
	n, ok := t.nodes[fromID]
	var evicted []uint
	if ok {
		kept := make([]domain.Entity, 0, len(n.relationships))
		for _, e := range n.relationships {
			if e.ID != toID {
				kept = append(kept, e)
			}
		}
		n.relationships = kept
		if _, open := n.children[toID]; open {
			delete(n.children, toID)
			evicted = t.evictLocked(toID)
		}
	}
	t.mu.Unlock()
	if ok {
		t.notify.publish(Event{Kind: NodeChanged, EntityID: fromID})
		for _, id := range evicted {
			t.notify.publish(Event{Kind: NodeEvicted, EntityID: id})
		}
	}
	return ok
}

func (t *ExpansionTree) IsExpanded(id uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return ok && n.expanded
}

func (t *ExpansionTree) IsNestedExpanded(parentID, childID uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[parentID]
	if !ok {
		return false
	}
	_, open := n.children[childID]
	return open
}

func (t *ExpansionTree) RelationshipsOf(id uint) []domain.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return []domain.Entity{}
	}
	out := make([]domain.Entity, len(n.relationships))
	copy(out, n.relationships)
	return out
}

func (t *ExpansionTree) IsLoading(id uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return ok && n.loading
}

// Has reports whether a node exists for id.
func (t *ExpansionTree) Has(id uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.nodes[id]
	return ok
}

func (t *ExpansionTree) Node(id uint) (NodeView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return n.view(), true
}

// Nodes snapshots every node ordered by entity id.
func (t *ExpansionTree) Nodes() []NodeView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]NodeView, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity.ID < out[j].Entity.ID })
	return out
}

func (t *ExpansionTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// ClearAll drops every node.
func (t *ExpansionTree) ClearAll() {
	t.mu.Lock()
	t.nodes = make(map[uint]*expansionNode)
	t.mu.Unlock()
	t.notify.publish(Event{Kind: TreeCleared})
}

func (t *ExpansionTree) Err() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *ExpansionTree) ClearError() {
	t.mu.Lock()
	t.err = ""
	t.mu.Unlock()
}
