package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stejskal/web-predator/internal/domain"
)

func openTestRepo(t *testing.T) *GraphRepository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "predator_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGraphRepository(db)
}

func TestRelatedEntitiesUnionsBothDirections(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	pasta, err := repo.CreateEntity(ctx, domain.Entity{Name: "Pasta", Type: "Recipe"})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	tomato, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Tomato", Type: "Ingredient"})
	italian, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Italian", Type: "Cuisine"})
	dinner, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Dinner", Type: "Meal"})

	if _, err := repo.CreateEdge(ctx, pasta.ID, italian.ID); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	_, _ = repo.CreateEdge(ctx, pasta.ID, tomato.ID)
	_, _ = repo.CreateEdge(ctx, dinner.ID, pasta.ID)

	related, err := repo.RelatedEntities(ctx, pasta.ID)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 3 {
		t.Fatalf("expected 3 related entities, got %d", len(related))
	}
	for i := 1; i < len(related); i++ {
		if related[i-1].ID > related[i].ID {
			t.Fatalf("related entities not ordered by id: %+v", related)
		}
	}

	got, err := repo.GetEntity(ctx, pasta.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	if got.RelatedEntitiesCount != 3 {
		t.Fatalf("expected related count 3, got %d", got.RelatedEntitiesCount)
	}

	tomatoRelated, _ := repo.RelatedEntities(ctx, tomato.ID)
	if len(tomatoRelated) != 1 || tomatoRelated[0].ID != pasta.ID {
		t.Fatalf("expected incoming edge to be listed, got %+v", tomatoRelated)
	}

	if _, err := repo.RelatedEntities(ctx, 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown entity, got %v", err)
	}
}

func TestCreateEdgeRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	a, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Pasta", Type: "Recipe"})
	b, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Basil", Type: "Ingredient"})

	if _, err := repo.CreateEdge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("create edge: %v", err)
	}
	if _, err := repo.CreateEdge(ctx, a.ID, b.ID); !errors.Is(err, domain.ErrDuplicateEdge) {
		t.Fatalf("expected duplicate edge error, got %v", err)
	}
	exists, err := repo.EdgeExists(ctx, a.ID, b.ID)
	if err != nil || !exists {
		t.Fatalf("expected edge to exist: %v %v", exists, err)
	}

	if err := repo.DeleteEdge(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("delete edge: %v", err)
	}
	if err := repo.DeleteEdge(ctx, a.ID, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteEntityRemovesEdges(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	a, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Pasta", Type: "Recipe"})
	b, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Basil", Type: "Ingredient"})
	_, _ = repo.CreateEdge(ctx, a.ID, b.ID)

	if err := repo.DeleteEntity(ctx, b.ID); err != nil {
		t.Fatalf("delete entity: %v", err)
	}
	related, err := repo.RelatedEntities(ctx, a.ID)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("expected edges to be removed, got %+v", related)
	}
	if err := repo.DeleteEntity(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListEntitiesFiltersAndKeepsProperties(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	desc := "ripe"
	_, err := repo.CreateEntity(ctx, domain.Entity{
		Name:        "Tomato",
		Type:        "Ingredient",
		Description: &desc,
		Properties:  map[string]any{"purchaseFrequency": "weekly"},
	})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	_, _ = repo.CreateEntity(ctx, domain.Entity{Name: "Tomato soup", Type: "Recipe"})
	_, _ = repo.CreateEntity(ctx, domain.Entity{Name: "Basil", Type: "Ingredient"})

	all, err := repo.ListEntities(ctx, domain.SearchParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Tomato" {
		t.Fatalf("unexpected list: %+v", all)
	}
	if all[0].Properties["purchaseFrequency"] != "weekly" {
		t.Fatalf("properties not stored: %+v", all[0].Properties)
	}
	if all[0].DescriptionText() != "ripe" || all[2].Description != nil {
		t.Fatalf("descriptions not kept: %+v", all)
	}

	frag, _ := repo.ListEntities(ctx, domain.SearchParams{NameFragment: "tom"})
	if len(frag) != 2 {
		t.Fatalf("expected 2 fragment matches, got %d", len(frag))
	}
	typed, _ := repo.ListEntities(ctx, domain.SearchParams{NameFragment: "tom", Type: "Recipe"})
	if len(typed) != 1 || typed[0].Name != "Tomato soup" {
		t.Fatalf("expected only the recipe, got %+v", typed)
	}
	exact, _ := repo.ListEntities(ctx, domain.SearchParams{Name: "basil"})
	if len(exact) != 1 {
		t.Fatalf("expected case-insensitive exact match, got %+v", exact)
	}
}

func TestUpdateEntity(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	e, _ := repo.CreateEntity(ctx, domain.Entity{Name: "Tomatoe", Type: "Ingredient"})
	name := "Tomato"
	empty := ""
	updated, err := repo.UpdateEntity(ctx, e.ID, domain.UpdateEntityRequest{Name: &name, Description: &empty})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Tomato" || updated.Description != nil {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := repo.UpdateEntity(ctx, 4242, domain.UpdateEntityRequest{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadSchemaSeed(t *testing.T) {
	repo := openTestRepo(t)

	schema, err := repo.LoadSchema(context.Background())
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if len(schema.Entities) != len(domain.EntityTypePriority) {
		t.Fatalf("expected %d entity types, got %d", len(domain.EntityTypePriority), len(schema.Entities))
	}
	for i, es := range schema.Entities {
		if es.Type != domain.EntityTypePriority[i] {
			t.Fatalf("entity type %d: expected %s, got %s", i, domain.EntityTypePriority[i], es.Type)
		}
	}

	var recipeToIngredient int
	for _, rule := range schema.RelationshipMatrix {
		if rule.FromEntityType == "Recipe" && rule.ToEntityType == "Ingredient" {
			recipeToIngredient++
			if rule.RelationshipDescription == "" {
				t.Fatalf("rule %s has no description", rule.RelationshipName)
			}
		}
	}
	if recipeToIngredient != 2 {
		t.Fatalf("expected two Recipe->Ingredient rules, got %d", recipeToIngredient)
	}

	if got := schema.Enums["purchaseFrequency"]; len(got) != 4 || got[0] != "weekly" {
		t.Fatalf("unexpected purchaseFrequency enum: %v", got)
	}
	for _, es := range schema.Entities {
		if es.Type != "Ingredient" {
			continue
		}
		if len(es.Properties) == 0 || len(es.Properties[0].EnumValues) != 4 {
			t.Fatalf("ingredient properties missing enum values: %+v", es.Properties)
		}
	}
}
