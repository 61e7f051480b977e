package explorer

import (
	"context"
	"sync"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// EntityStore holds the full entity collection as last fetched.
type EntityStore struct {
	api    domain.GraphAPI
	notify *Notifier
	log    *zap.Logger

	mu       sync.RWMutex
	entities []domain.Entity
	loading  int
	err      string
}

func NewEntityStore(api domain.GraphAPI, notify *Notifier, log *zap.Logger) *EntityStore {
	return &EntityStore{api: api, notify: notify, log: orNop(log)}
}

// Refresh replaces the collection with the backend's. On failure the
// previous collection is kept and Err reports the message. Concurrent
// refreshes are not coalesced: the last response to arrive wins.
func (s *EntityStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.loading++
	s.err = ""
	s.mu.Unlock()

	list, err := s.api.ListEntities(ctx)

	s.mu.Lock()
	s.loading--
	if err != nil {
		s.err = domain.Message(err)
		s.mu.Unlock()
		s.log.Warn("fetch entities failed", zap.Error(err))
		return &domain.FetchError{Op: "fetch entities", Err: err}
	}
	if list == nil {
		list = []domain.Entity{}
	}
	s.entities = list
	s.mu.Unlock()

	s.log.Debug("entities refreshed", zap.Int("count", len(list)))
	s.notify.publish(Event{Kind: EntitiesChanged})
	return nil
}

// List returns a copy of the current collection in the order received.
func (s *EntityStore) List() []domain.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// Get looks an entity up by id in the current collection.
func (s *EntityStore) Get(id uint) (domain.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Entity{}, false
}

func (s *EntityStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

func (s *EntityStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *EntityStore) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
