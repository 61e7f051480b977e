package domain

import "context"

// GraphAPI is the backend capability the explorer core consumes.
type GraphAPI interface {
	ListEntities(ctx context.Context) ([]Entity, error)
	GetEntity(ctx context.Context, id uint) (Entity, error)
	SearchEntities(ctx context.Context, params SearchParams) ([]Entity, error)
	CreateEntity(ctx context.Context, req CreateEntityRequest) (Entity, error)
	UpdateEntity(ctx context.Context, id uint, req UpdateEntityRequest) (Entity, error)
	DeleteEntity(ctx context.Context, id uint) error
	RelatedEntities(ctx context.Context, id uint) ([]Entity, error)
	CreateRelationship(ctx context.Context, fromID, toID uint) error
	DeleteRelationship(ctx context.Context, fromID, toID uint) error
	Schema(ctx context.Context) (Schema, error)
	FindSimilarIngredients(ctx context.Context, req FindSimilarIngredientsRequest) ([]SimilarIngredient, error)
}

// Navigator receives the "go to the listing view" signal. An empty
// activeType means no filter is preselected.
type Navigator interface {
	ShowListing(activeType string)
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func(activeType string)

func (f NavigatorFunc) ShowListing(activeType string) { f(activeType) }

// GraphRepository is the storage port of the reference backend.
type GraphRepository interface {
	ListEntities(ctx context.Context, params SearchParams) ([]Entity, error)
	GetEntity(ctx context.Context, id uint) (Entity, error)
	CreateEntity(ctx context.Context, value Entity) (Entity, error)
	UpdateEntity(ctx context.Context, id uint, req UpdateEntityRequest) (Entity, error)
	DeleteEntity(ctx context.Context, id uint) error
	RelatedEntities(ctx context.Context, id uint) ([]Entity, error)
	CreateEdge(ctx context.Context, fromID, toID uint) (Edge, error)
	DeleteEdge(ctx context.Context, fromID, toID uint) error
	EdgeExists(ctx context.Context, fromID, toID uint) (bool, error)
	LoadSchema(ctx context.Context) (Schema, error)
}
