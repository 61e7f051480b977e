package domain

import "time"

// IngredientType is the only entity type guarded by the similarity check.
const IngredientType = "Ingredient"

// EntityTypePriority is the preferred display order for entity types.
// Types declared by the schema but missing here are shown after these.
var EntityTypePriority = []string{
	"MealPlan",
	"Meal",
	"Recipe",
	"Ingredient",
	"Cuisine",
	"StoreLocation",
	"ShoppingList",
	"Source",
}

type Entity struct {
	ID                   uint           `json:"id"`
	Name                 string         `json:"name"`
	Type                 string         `json:"type"`
	Description          *string        `json:"description,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	Properties           map[string]any `json:"properties"`
	RelatedEntitiesCount int            `json:"relatedEntitiesCount"`
}

// DescriptionText returns the description or "" when unset.
func (e Entity) DescriptionText() string {
	if e.Description == nil {
		return ""
	}
	return *e.Description
}

type CreateEntityRequest struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description *string        `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type UpdateEntityRequest struct {
	Name        *string        `json:"name,omitempty"`
	Type        *string        `json:"type,omitempty"`
	Description *string        `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type SearchParams struct {
	Name         string `json:"name,omitempty"`
	Type         string `json:"type,omitempty"`
	NameFragment string `json:"nameFragment,omitempty"`
}

type PropertySchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Description string   `json:"description"`
	EnumValues  []string `json:"enumValues,omitempty"`
}

type EntitySchema struct {
	Type        string           `json:"type"`
	Label       string           `json:"label"`
	Description string           `json:"description"`
	Properties  []PropertySchema `json:"properties"`
}

type RelationshipSchema struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	IsDirectional bool   `json:"isDirectional"`
}

// RelationshipRule is one row of the relationship matrix. The same
// (from, to) pair may appear under several relationship names.
type RelationshipRule struct {
	FromEntityType          string `json:"fromEntityType"`
	ToEntityType            string `json:"toEntityType"`
	RelationshipName        string `json:"relationshipName"`
	RelationshipDescription string `json:"relationshipDescription"`
}

type Schema struct {
	Entities           []EntitySchema       `json:"entities"`
	Relationships      []RelationshipSchema `json:"relationships"`
	RelationshipMatrix []RelationshipRule   `json:"relationshipMatrix"`
	Enums              map[string][]string  `json:"enums"`
}

type StoreLocation struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Ingredient struct {
	ID                  uint            `json:"id"`
	Name                string          `json:"name"`
	Description         *string         `json:"description,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	PurchaseFrequency   *string         `json:"purchaseFrequency,omitempty"`
	StoreLocationsCount int             `json:"storeLocationsCount"`
	StoreLocations      []StoreLocation `json:"storeLocations"`
}

// SimilarIngredient is a duplicate candidate with a similarity in [0,1].
type SimilarIngredient struct {
	Ingredient Ingredient `json:"ingredient"`
	Similarity float64    `json:"similarity"`
}

type FindSimilarIngredientsRequest struct {
	IngredientName string `json:"ingredientName"`
	TopK           int    `json:"topK,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Edge is a directed relationship between two entities as stored by the backend.
type Edge struct {
	FromEntityID uint      `json:"fromEntityId"`
	ToEntityID   uint      `json:"toEntityId"`
	CreatedAt    time.Time `json:"createdAt"`
}
