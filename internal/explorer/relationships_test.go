package explorer

import (
	"context"
	"testing"

	"github.com/stejskal/web-predator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRelationshipRefetchesExpandedNode(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)
	ctx := context.Background()
	require.NoError(t, tree.ToggleExpand(ctx, entity(1, "Pasta", "Recipe")))

	api.mu.Lock()
	api.related[1] = append(api.related[1], entity(5, "Basil", "Ingredient"))
	api.mu.Unlock()

	require.NoError(t, mut.Create(ctx, 1, 5))

	assert.Len(t, tree.RelationshipsOf(1), 3)
	assert.Equal(t, 2, api.relatedCount(1))
	assert.Equal(t, [][2]uint{{1, 5}}, api.edges)
}

func TestCreateRelationshipSkipsRefetchWithoutNode(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)

	require.NoError(t, mut.Create(context.Background(), 1, 5))

	assert.Equal(t, 0, api.relatedCount(1))
	assert.False(t, tree.Has(1))
}

func TestCreateRelationshipFailurePropagates(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)
	api.setErr("CreateRelationship", &domain.APIError{StatusCode: 409, Code: "DUPLICATE", Message: "relationship already exists"})

	err := mut.Create(context.Background(), 1, 2)

	var merr *domain.MutationError
	require.ErrorAs(t, err, &merr)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, "relationship already exists", mut.Err())
	assert.False(t, mut.IsLoading())
}

func TestCreateRelationshipRefetchFailureOnlySetsError(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)
	ctx := context.Background()
	require.NoError(t, tree.ToggleExpand(ctx, entity(1, "Pasta", "Recipe")))
	api.setErr("RelatedEntities", errBackendDown)

	require.NoError(t, mut.Create(ctx, 1, 5))

	assert.Equal(t, "backend down", mut.Err())
	assert.Len(t, tree.RelationshipsOf(1), 2)
}

func TestDeleteRelationshipRemovesLocallyAndEvictsNested(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)
	ctx := context.Background()
	require.NoError(t, tree.ToggleExpand(ctx, entity(1, "Pasta", "Recipe")))
	require.NoError(t, tree.ToggleNestedExpand(ctx, 1, entity(2, "Tomato", "Ingredient")))

	require.NoError(t, mut.Delete(ctx, 1, 2))

	rels := tree.RelationshipsOf(1)
	require.Len(t, rels, 1)
	assert.Equal(t, uint(3), rels[0].ID)
	assert.False(t, tree.IsNestedExpanded(1, 2))
	assert.False(t, tree.Has(2))
	assert.Equal(t, 1, api.relatedCount(1), "delete does not refetch")
}

func TestDeleteRelationshipFailureKeepsState(t *testing.T) {
	api, tree := treeFixture()
	mut := NewRelationshipMutator(api, tree, nil, nil)
	ctx := context.Background()
	require.NoError(t, tree.ToggleExpand(ctx, entity(1, "Pasta", "Recipe")))
	api.setErr("DeleteRelationship", errBackendDown)

	err := mut.Delete(ctx, 1, 2)

	var merr *domain.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Len(t, tree.RelationshipsOf(1), 2)
	assert.Equal(t, "backend down", mut.Err())
	mut.ClearError()
	assert.Empty(t, mut.Err())
}
