package explorer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stejskal/web-predator/internal/domain"
)

var errBackendDown = errors.New("backend down")

// fakeAPI is an in-memory GraphAPI with call counters, per-call failures
// and gates that hold a call until the test releases it.
type fakeAPI struct {
	mu       sync.Mutex
	entities []domain.Entity
	nextID   uint
	schema   domain.Schema
	related  map[uint][]domain.Entity
	similar  []domain.SimilarIngredient

	calls        map[string]int
	relatedCalls map[uint]int
	created      []domain.CreateEntityRequest
	edges        [][2]uint
	deleted      [][2]uint

	errs        map[string]error
	edgeErrs    map[uint]error
	edgeGates   map[uint]chan struct{}
	relatedGate map[uint]chan struct{}
	edgeStarted chan uint
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:       100,
		related:      make(map[uint][]domain.Entity),
		calls:        make(map[string]int),
		relatedCalls: make(map[uint]int),
		errs:         make(map[string]error),
		edgeErrs:     make(map[uint]error),
		edgeGates:    make(map[uint]chan struct{}),
		relatedGate:  make(map[uint]chan struct{}),
	}
}

func (f *fakeAPI) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) relatedCount(id uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.relatedCalls[id]
}

func (f *fakeAPI) setErr(op string, err error) {
	f.mu.Lock()
	f.errs[op] = err
	f.mu.Unlock()
}

func (f *fakeAPI) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	if err := f.record("ListEntities"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Entity, len(f.entities))
	copy(out, f.entities)
	return out, nil
}

func (f *fakeAPI) GetEntity(ctx context.Context, id uint) (domain.Entity, error) {
	if err := f.record("GetEntity"); err != nil {
		return domain.Entity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Entity{}, domain.ErrNotFound
}

func (f *fakeAPI) SearchEntities(ctx context.Context, params domain.SearchParams) ([]domain.Entity, error) {
	if err := f.record("SearchEntities"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeAPI) CreateEntity(ctx context.Context, req domain.CreateEntityRequest) (domain.Entity, error) {
	if err := f.record("CreateEntity"); err != nil {
		return domain.Entity{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e := domain.Entity{
		ID:          f.nextID,
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Properties:  req.Properties,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.created = append(f.created, req)
	f.entities = append(f.entities, e)
	return e, nil
}

func (f *fakeAPI) UpdateEntity(ctx context.Context, id uint, req domain.UpdateEntityRequest) (domain.Entity, error) {
	if err := f.record("UpdateEntity"); err != nil {
		return domain.Entity{}, err
	}
	return domain.Entity{ID: id}, nil
}

func (f *fakeAPI) DeleteEntity(ctx context.Context, id uint) error {
	return f.record("DeleteEntity")
}

func (f *fakeAPI) RelatedEntities(ctx context.Context, id uint) ([]domain.Entity, error) {
	f.mu.Lock()
	f.relatedCalls[id]++
	gate := f.relatedGate[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := f.record("RelatedEntities"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Entity, len(f.related[id]))
	copy(out, f.related[id])
	return out, nil
}

func (f *fakeAPI) CreateRelationship(ctx context.Context, fromID, toID uint) error {
	f.mu.Lock()
	gate := f.edgeGates[toID]
	started := f.edgeStarted
	f.mu.Unlock()
	if started != nil {
		started <- toID
	}
	if gate != nil {
		<-gate
	}
	if err := f.record("CreateRelationship"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.edgeErrs[toID]; err != nil {
		return err
	}
	f.edges = append(f.edges, [2]uint{fromID, toID})
	return nil
}

func (f *fakeAPI) DeleteRelationship(ctx context.Context, fromID, toID uint) error {
	if err := f.record("DeleteRelationship"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, [2]uint{fromID, toID})
	return nil
}

func (f *fakeAPI) Schema(ctx context.Context) (domain.Schema, error) {
	if err := f.record("Schema"); err != nil {
		return domain.Schema{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schema, nil
}

func (f *fakeAPI) FindSimilarIngredients(ctx context.Context, req domain.FindSimilarIngredientsRequest) ([]domain.SimilarIngredient, error) {
	if err := f.record("FindSimilarIngredients"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SimilarIngredient, len(f.similar))
	copy(out, f.similar)
	return out, nil
}

func entity(id uint, name, typ string) domain.Entity {
	return domain.Entity{ID: id, Name: name, Type: typ}
}

func rule(from, to, name string) domain.RelationshipRule {
	return domain.RelationshipRule{FromEntityType: from, ToEntityType: to, RelationshipName: name}
}

func foodSchema() domain.Schema {
	return domain.Schema{
		Entities: []domain.EntitySchema{
			{Type: "Source"},
			{Type: "Recipe"},
			{Type: "Ingredient"},
			{Type: "Cuisine"},
			{Type: "Technique"},
		},
		RelationshipMatrix: []domain.RelationshipRule{
			rule("Recipe", "Ingredient", "uses"),
			rule("Recipe", "Cuisine", "belongs_to"),
			rule("Recipe", "Ingredient", "garnished_with"),
			rule("Recipe", "Cuisine", "inspired_by"),
			rule("Ingredient", "Cuisine", "typical_of"),
			rule("Meal", "Recipe", "includes"),
		},
	}
}
