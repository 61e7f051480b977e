package explorer

import (
	"context"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// RelationshipMutator creates and deletes edges and keeps the expansion
// tree's cached related lists in step with the backend.
type RelationshipMutator struct {
	api    domain.GraphAPI
	tree   *ExpansionTree
	notify *Notifier
	log    *zap.Logger

	mu       sync.RWMutex
	inFlight int
	err      string
}

func NewRelationshipMutator(api domain.GraphAPI, tree *ExpansionTree, notify *Notifier, log *zap.Logger) *RelationshipMutator {
	return &RelationshipMutator{api: api, tree: tree, notify: notify, log: orNop(log)}
}

// Create adds the edge fromID -> toID, then refetches fromID's related list
// into its expansion node when one exists. A failed add is returned as a
// MutationError; a failed refetch only sets Err since the edge exists.
func (m *RelationshipMutator) Create(ctx context.Context, fromID, toID uint) error {
	m.begin()
	defer m.end()

	if err := m.api.CreateRelationship(ctx, fromID, toID); err != nil {
		m.setErr(err)
		m.log.Warn("create relationship failed", zap.Uint("from", fromID), zap.Uint("to", toID), zap.Error(err))
		return &domain.MutationError{Op: "create relationship", Err: err}
	}
	m.log.Debug("relationship created", zap.Uint("from", fromID), zap.Uint("to", toID))

	if m.tree != nil && m.tree.Has(fromID) {
		rels, err := m.api.RelatedEntities(ctx, fromID)
		if err != nil {
			m.setErr(err)
			m.log.Warn("refetch related entities failed", zap.Uint("entity_id", fromID), zap.Error(err))
		} else {
			m.tree.setRelationships(fromID, rels)
		}
	}
	m.notify.publish(Event{Kind: RelationshipsChanged, EntityID: fromID})
	return nil
}

// Delete removes the edge fromID -> toID and, once the backend confirmed,
// drops toID from fromID's cached related list without refetching.
func (m *RelationshipMutator) Delete(ctx context.Context, fromID, toID uint) error {
	m.begin()
	defer m.end()

	if err := m.api.DeleteRelationship(ctx, fromID, toID); err != nil {
		m.setErr(err)
		m.log.Warn("delete relationship failed", zap.Uint("from", fromID), zap.Uint("to", toID), zap.Error(err))
		return &domain.MutationError{Op: "delete relationship", Err: err}
	}
	if m.tree != nil {
		m.tree.removeRelationship(fromID, toID)
	}
	m.log.Debug("relationship deleted", zap.Uint("from", fromID), zap.Uint("to", toID))
	m.notify.publish(Event{Kind: RelationshipsChanged, EntityID: fromID})
	return nil
}

func (m *RelationshipMutator) begin() {
	m.mu.Lock()
	m.inFlight++
	m.err = ""
	m.mu.Unlock()
}

func (m *RelationshipMutator) end() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *RelationshipMutator) setErr(err error) {
	m.mu.Lock()
	m.err = domain.Message(err)
	m.mu.Unlock()
}

func (m *RelationshipMutator) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inFlight > 0
}

func (m *RelationshipMutator) Err() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *RelationshipMutator) ClearError() {
	m.mu.Lock()
	m.err = ""
	m.mu.Unlock()
}
