package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSimilarTopK = 5
	MaxSimilarTopK     = 50
	minNameLength      = 2
	storeLookupLimit   = 4
)

// GraphService is the reference backend: validation and schema rules in
// front of a GraphRepository.
type GraphService struct {
	repo domain.GraphRepository
	log  *zap.Logger
}

var _ domain.GraphAPI = (*GraphService)(nil)

func NewGraphService(repo domain.GraphRepository, log *zap.Logger) *GraphService {
	if log == nil {
		log = zap.NewNop()
	}
	return &GraphService{repo: repo, log: log}
}

func (s *GraphService) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	return s.repo.ListEntities(ctx, domain.SearchParams{})
}

func (s *GraphService) GetEntity(ctx context.Context, id uint) (domain.Entity, error) {
	if id == 0 {
		return domain.Entity{}, &domain.ValidationError{Field: "id", Message: "entity id is required"}
	}
	return s.repo.GetEntity(ctx, id)
}

func (s *GraphService) SearchEntities(ctx context.Context, params domain.SearchParams) ([]domain.Entity, error) {
	return s.repo.ListEntities(ctx, params)
}

func (s *GraphService) CreateEntity(ctx context.Context, req domain.CreateEntityRequest) (domain.Entity, error) {
	name := strings.TrimSpace(req.Name)
	if err := validateName(name); err != nil {
		return domain.Entity{}, err
	}
	typ := strings.TrimSpace(req.Type)
	if typ == "" {
		return domain.Entity{}, &domain.ValidationError{Field: "type", Message: "Entity type is required"}
	}

	schema, err := s.repo.LoadSchema(ctx)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := validateProperties(schema, typ, req.Properties, true); err != nil {
		return domain.Entity{}, err
	}

	created, err := s.repo.CreateEntity(ctx, domain.Entity{
		Name:        name,
		Type:        typ,
		Description: trimmedOrNil(req.Description),
		Properties:  req.Properties,
	})
	if err != nil {
		return domain.Entity{}, err
	}
	s.log.Info("entity created", zap.Uint("id", created.ID), zap.String("type", created.Type), zap.String("name", created.Name))
	return created, nil
}

func (s *GraphService) UpdateEntity(ctx context.Context, id uint, req domain.UpdateEntityRequest) (domain.Entity, error) {
	current, err := s.repo.GetEntity(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := validateName(name); err != nil {
			return domain.Entity{}, err
		}
		req.Name = &name
	}
	typ := current.Type
	if req.Type != nil {
		typ = strings.TrimSpace(*req.Type)
		if typ == "" {
			return domain.Entity{}, &domain.ValidationError{Field: "type", Message: "Entity type is required"}
		}
		req.Type = &typ
	}
	if req.Properties != nil || req.Type != nil {
		schema, err := s.repo.LoadSchema(ctx)
		if err != nil {
			return domain.Entity{}, err
		}
		props := req.Properties
		if props == nil {
			props = current.Properties
		}
		if err := validateProperties(schema, typ, props, req.Properties != nil); err != nil {
			return domain.Entity{}, err
		}
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		req.Description = &desc
	}
	return s.repo.UpdateEntity(ctx, id, req)
}

func (s *GraphService) DeleteEntity(ctx context.Context, id uint) error {
	if err := s.repo.DeleteEntity(ctx, id); err != nil {
		return err
	}
	s.log.Info("entity deleted", zap.Uint("id", id))
	return nil
}

func (s *GraphService) RelatedEntities(ctx context.Context, id uint) ([]domain.Entity, error) {
	return s.repo.RelatedEntities(ctx, id)
}

// CreateRelationship links fromID to toID when the schema matrix allows
// the pair of types.
func (s *GraphService) CreateRelationship(ctx context.Context, fromID, toID uint) error {
	if fromID == toID {
		return &domain.ValidationError{Field: "toId", Message: "an entity cannot be related to itself"}
	}
	from, err := s.repo.GetEntity(ctx, fromID)
	if err != nil {
		return fmt.Errorf("source entity %d: %w", fromID, err)
	}
	to, err := s.repo.GetEntity(ctx, toID)
	if err != nil {
		return fmt.Errorf("target entity %d: %w", toID, err)
	}

	schema, err := s.repo.LoadSchema(ctx)
	if err != nil {
		return err
	}
	if !allowed(schema, from.Type, to.Type) {
		return fmt.Errorf("%w: %s cannot be linked to %s", domain.ErrSchemaViolation, from.Type, to.Type)
	}

	exists, err := s.repo.EdgeExists(ctx, fromID, toID)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicateEdge
	}
	if _, err := s.repo.CreateEdge(ctx, fromID, toID); err != nil {
		return err
	}
	s.log.Info("relationship created", zap.Uint("from", fromID), zap.Uint("to", toID))
	return nil
}

func (s *GraphService) DeleteRelationship(ctx context.Context, fromID, toID uint) error {
	if err := s.repo.DeleteEdge(ctx, fromID, toID); err != nil {
		return err
	}
	s.log.Info("relationship deleted", zap.Uint("from", fromID), zap.Uint("to", toID))
	return nil
}

func (s *GraphService) Schema(ctx context.Context) (domain.Schema, error) {
	return s.repo.LoadSchema(ctx)
}

// FindSimilarIngredients ranks existing ingredients by name similarity,
// best first, dropping anything under MinSimilarity.
func (s *GraphService) FindSimilarIngredients(ctx context.Context, req domain.FindSimilarIngredientsRequest) ([]domain.SimilarIngredient, error) {
	name := strings.TrimSpace(req.IngredientName)
	if name == "" {
		return nil, &domain.ValidationError{Field: "ingredientName", Message: "ingredientName is required"}
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultSimilarTopK
	}
	if topK > MaxSimilarTopK {
		topK = MaxSimilarTopK
	}

	ingredients, err := s.repo.ListEntities(ctx, domain.SearchParams{Type: domain.IngredientType})
	if err != nil {
		return nil, err
	}

	type scored struct {
		entity domain.Entity
		score  float64
	}
	ranked := make([]scored, 0)
	for _, e := range ingredients {
		score := Similarity(name, e.Name)
		if score < MinSimilarity {
			continue
		}
		ranked = append(ranked, scored{entity: e, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entity.ID < ranked[j].entity.ID
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]domain.SimilarIngredient, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(storeLookupLimit)
	for i, r := range ranked {
		i, r := i, r
		g.Go(func() error {
			ing, err := s.ingredient(gctx, r.entity)
			if err != nil {
				return err
			}
			out[i] = domain.SimilarIngredient{Ingredient: ing, Similarity: r.score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug("similar ingredients", zap.String("name", name), zap.Int("candidates", len(out)))
	return out, nil
}

// ingredient expands an Ingredient entity with its store locations.
func (s *GraphService) ingredient(ctx context.Context, e domain.Entity) (domain.Ingredient, error) {
	related, err := s.repo.RelatedEntities(ctx, e.ID)
	if err != nil {
		return domain.Ingredient{}, err
	}
	stores := make([]domain.StoreLocation, 0)
	for _, r := range related {
		if r.Type != "StoreLocation" {
			continue
		}
		stores = append(stores, domain.StoreLocation{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	ing := domain.Ingredient{
		ID:                  e.ID,
		Name:                e.Name,
		Description:         e.Description,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		StoreLocationsCount: len(stores),
		StoreLocations:      stores,
	}
	if freq, ok := e.Properties["purchaseFrequency"].(string); ok && freq != "" {
		ing.PurchaseFrequency = &freq
	}
	return ing, nil
}

func validateName(name string) error {
	if name == "" {
		return &domain.ValidationError{Field: "name", Message: "Entity name is required"}
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("Entity name must be at least %d characters long", minNameLength)}
	}
	return nil
}

// validateProperties checks typ against the declared entity types and the
// given properties against that type's definitions. Undeclared properties
// pass through. Required properties are only enforced when checkRequired.
func validateProperties(schema domain.Schema, typ string, props map[string]any, checkRequired bool) error {
	if len(schema.Entities) == 0 {
		return nil
	}
	var es *domain.EntitySchema
	for i := range schema.Entities {
		if schema.Entities[i].Type == typ {
			es = &schema.Entities[i]
			break
		}
	}
	if es == nil {
		return &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown entity type %q", typ)}
	}

	var errs []error
	for _, p := range es.Properties {
		v, ok := props[p.Name]
		if !ok || v == nil {
			if p.Required && checkRequired {
				errs = append(errs, &domain.ValidationError{Field: p.Name, Message: fmt.Sprintf("property %q is required", p.Name)})
			}
			continue
		}
		if len(p.EnumValues) == 0 {
			continue
		}
		str, isString := v.(string)
		if !isString || !contains(p.EnumValues, str) {
			errs = append(errs, &domain.ValidationError{
				Field:   p.Name,
				Message: fmt.Sprintf("property %q must be one of %s", p.Name, strings.Join(p.EnumValues, ", ")),
			})
		}
	}
	if len(errs) == 1 {
		return errs[0]
	}
	if len(errs) > 1 {
		return &domain.ValidationError{Field: "properties", Message: errors.Join(errs...).Error()}
	}
	return nil
}

func allowed(schema domain.Schema, fromType, toType string) bool {
	for _, rule := range schema.RelationshipMatrix {
		if rule.FromEntityType == fromType && rule.ToEntityType == toType {
			return true
		}
	}
	return false
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
