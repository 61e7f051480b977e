package explorer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stejskal/web-predator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type navRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (n *navRecorder) ShowListing(activeType string) {
	n.mu.Lock()
	n.calls = append(n.calls, activeType)
	n.mu.Unlock()
}

func (n *navRecorder) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func newTestSession(t *testing.T) (*fakeAPI, *Session, *navRecorder) {
	t.Helper()
	api := newFakeAPI()
	api.schema = foodSchema()
	nav := &navRecorder{}
	s := NewSession(api, WithNavigator(nav))
	return api, s, nav
}

func tomatoCandidate() domain.SimilarIngredient {
	return domain.SimilarIngredient{
		Ingredient: domain.Ingredient{ID: 7, Name: "Tomato"},
		Similarity: 0.92,
	}
}

func TestSubmitIngredientOpensSimilarityPrompt(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	ctx := context.Background()

	st, err := s.Creation.Submit(ctx, Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingDecision, st.State)
	assert.True(t, st.PromptOpen())
	require.Len(t, st.Candidates, 1)
	assert.InDelta(t, 0.92, st.Candidates[0].Similarity, 1e-9)
	require.NotNil(t, st.Pending)
	assert.Equal(t, "Tomatoe", st.Pending.Request.Name)
	assert.Equal(t, 0, api.count("CreateEntity"))

	st, err = s.Creation.Resolve(ctx, Decision{Kind: DecisionContinue})
	require.NoError(t, err)

	assert.Equal(t, StateDone, st.State)
	require.Len(t, api.created, 1)
	assert.Equal(t, "Tomatoe", api.created[0].Name)
	require.NotNil(t, st.Created)
	assert.NotZero(t, st.Created.ID)
	assert.Equal(t, []string{"Ingredient"}, nav.Calls())
	assert.Nil(t, st.Pending)
}

func TestSimilarityRequestUsesTrimmedNameAndTopK(t *testing.T) {
	rec := &similarityRecorder{fakeAPI: newFakeAPI()}
	w := NewCreationWorkflow(WorkflowDeps{API: rec})

	_, err := w.Submit(context.Background(), Draft{Name: "  Basil  ", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.FindSimilarIngredientsRequest{IngredientName: "Basil", TopK: 5}, rec.last)
}

type similarityRecorder struct {
	*fakeAPI
	last domain.FindSimilarIngredientsRequest
}

func (r *similarityRecorder) FindSimilarIngredients(ctx context.Context, req domain.FindSimilarIngredientsRequest) ([]domain.SimilarIngredient, error) {
	r.last = req
	return r.fakeAPI.FindSimilarIngredients(ctx, req)
}

func TestSubmitValidationMakesNoNetworkCall(t *testing.T) {
	api, s, _ := newTestSession(t)

	for _, name := range []string{"a", "   ", " b "} {
		st, err := s.Creation.Submit(context.Background(), Draft{Name: name, Type: "Recipe"}, nil)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, name)
		assert.Equal(t, StateIdle, st.State)
		assert.NotEmpty(t, st.Error)
	}
	assert.Equal(t, 0, api.total())
}

func TestSubmitNonIngredientSkipsSimilarity(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}

	st, err := s.Creation.Submit(context.Background(), Draft{Name: "Shakshuka", Type: "Recipe", Description: "  eggs  "}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 0, api.count("FindSimilarIngredients"))
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].Description)
	assert.Equal(t, "eggs", *api.created[0].Description)
	assert.Equal(t, []string{"Recipe"}, nav.Calls())

	_, ok := s.Entities.Get(st.Created.ID)
	assert.True(t, ok, "store refreshed after save")
}

func TestSubmitBlankDescriptionIsOmitted(t *testing.T) {
	api, s, _ := newTestSession(t)

	_, err := s.Creation.Submit(context.Background(), Draft{Name: "Tacos", Type: "Meal", Description: "   "}, nil)
	require.NoError(t, err)

	require.Len(t, api.created, 1)
	assert.Nil(t, api.created[0].Description)
}

func TestResolveCancelDiscardsPending(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	ctx := context.Background()

	_, err := s.Creation.Submit(ctx, Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	st, err := s.Creation.Resolve(ctx, Decision{Kind: DecisionCancel})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Nil(t, st.Pending)
	assert.Equal(t, 0, api.count("CreateEntity"))
	assert.Empty(t, nav.Calls())

	_, err = s.Creation.Resolve(ctx, Decision{Kind: DecisionContinue})
	assert.ErrorIs(t, err, domain.ErrNothingPending)
}

func TestResolvePickInjectsCandidateName(t *testing.T) {
	api, s, _ := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	ctx := context.Background()
	require.NoError(t, s.Schema.Refresh(ctx))
	s.Picker.Reset("Recipe")

	_, err := s.Creation.Submit(ctx, Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	_, err = s.Creation.Resolve(ctx, Decision{Kind: DecisionPick, CandidateID: 99})
	require.ErrorIs(t, err, domain.ErrCandidateNotFound)
	assert.Equal(t, StateAwaitingDecision, s.Creation.State())

	st, err := s.Creation.Resolve(ctx, Decision{Kind: DecisionPick, CandidateID: 7})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "Tomato", st.SelectedName)
	assert.Equal(t, "Tomato", s.Picker.SearchQuery("Ingredient"))
	assert.Equal(t, 0, api.count("CreateEntity"))
}

func TestNewSimilarityCheckOverwritesPending(t *testing.T) {
	api, s, _ := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	ctx := context.Background()

	_, err := s.Creation.Submit(ctx, Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)
	st, err := s.Creation.Submit(ctx, Draft{Name: "Tommato", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	require.NotNil(t, st.Pending)
	assert.Equal(t, "Tommato", st.Pending.Request.Name)

	_, err = s.Creation.Resolve(ctx, Decision{Kind: DecisionContinue})
	require.NoError(t, err)
	require.Len(t, api.created, 1)
	assert.Equal(t, "Tommato", api.created[0].Name)
}

func TestSimilarityFailureProceedsToSave(t *testing.T) {
	api, s, _ := newTestSession(t)
	api.setErr("FindSimilarIngredients", errBackendDown)

	st, err := s.Creation.Submit(context.Background(), Draft{Name: "Okra", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 1, api.count("CreateEntity"))
}

func TestCreateEntityFailureReturnsToIdle(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.setErr("CreateEntity", &domain.APIError{StatusCode: 400, Code: "VALIDATION", Message: "type is required"})

	st, err := s.Creation.Submit(context.Background(), Draft{Name: "Okra", Type: "Recipe"}, nil)

	var merr *domain.MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "type is required", st.Error)
	assert.Empty(t, nav.Calls())
}

func TestSaveWaitsForEveryAttachment(t *testing.T) {
	defer goleak.VerifyNone(t)

	api, s, nav := newTestSession(t)
	attachments := []domain.Entity{
		entity(1, "Tomato", "Ingredient"),
		entity(2, "Basil", "Ingredient"),
		entity(3, "Italian", "Cuisine"),
	}
	gates := map[uint]chan struct{}{}
	api.mu.Lock()
	for _, a := range attachments {
		gates[a.ID] = make(chan struct{})
		api.edgeGates[a.ID] = gates[a.ID]
	}
	api.edgeStarted = make(chan uint, len(attachments))
	api.mu.Unlock()

	type result struct {
		st  WorkflowStatus
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := s.Creation.Submit(context.Background(), Draft{Name: "Bruschetta", Type: "Recipe"}, attachments)
		done <- result{st, err}
	}()

	for range attachments {
		select {
		case <-api.edgeStarted:
		case <-time.After(time.Second):
			t.Fatal("relationship calls were not issued in parallel")
		}
	}

	for _, id := range []uint{3, 1} {
		close(gates[id])
	}
	assert.Never(t, func() bool { return s.Creation.State() == StateDone }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, nav.Calls())

	close(gates[2])
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, StateDone, res.st.State)
	assert.Equal(t, 3, api.count("CreateRelationship"))
	assert.Len(t, api.edges, 3)
	for _, e := range api.edges {
		assert.Equal(t, res.st.Created.ID, e[0])
	}
	assert.Equal(t, []string{"Recipe"}, nav.Calls())
}

func TestPartialSaveReportsFailedAttachments(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.edgeErrs[2] = &domain.APIError{StatusCode: 422, Code: "SCHEMA_VIOLATION", Message: "not allowed"}
	attachments := []domain.Entity{
		entity(1, "Tomato", "Ingredient"),
		entity(2, "Dinner", "Meal"),
	}

	st, err := s.Creation.Submit(context.Background(), Draft{Name: "Bruschetta", Type: "Recipe"}, attachments)

	var perr *domain.PartialSaveError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []uint{2}, perr.FailedIDs())
	assert.Equal(t, "Bruschetta", perr.Entity.Name)
	assert.Equal(t, StateIdle, st.State)
	assert.NotEmpty(t, st.Error)
	require.NotNil(t, st.Created)
	assert.Equal(t, 1, api.count("CreateEntity"))
	assert.Len(t, api.edges, 1)
	assert.Empty(t, nav.Calls())

	_, ok := s.Entities.Get(perr.Entity.ID)
	assert.True(t, ok, "persisted entity is visible after a partial save")
}

func TestCreateFromSearchTerm(t *testing.T) {
	api, s, nav := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Schema.Refresh(ctx))
	s.Picker.Reset("Recipe")

	_, err := s.Creation.CreateFromSearchTerm(ctx, "   ")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, api.count("FindSimilarIngredients"))

	st, err := s.Creation.CreateFromSearchTerm(ctx, " Sumac ")
	require.NoError(t, err)

	assert.Equal(t, StateIdle, st.State)
	require.Len(t, api.created, 1)
	assert.Equal(t, domain.CreateEntityRequest{Name: "Sumac", Type: "Ingredient"}, api.created[0])
	assert.Equal(t, "Sumac", s.Picker.SearchQuery("Ingredient"))
	assert.Empty(t, nav.Calls())
}

func TestCreateFromSearchTermSingleCharacterIsAllowed(t *testing.T) {
	api, s, _ := newTestSession(t)

	_, err := s.Creation.CreateFromSearchTerm(context.Background(), "Q")
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("CreateEntity"))
}

func TestCreateFromSearchTermGatedBySimilarity(t *testing.T) {
	api, s, _ := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	ctx := context.Background()

	st, err := s.Creation.CreateFromSearchTerm(ctx, "Tomatoe")
	require.NoError(t, err)
	require.True(t, st.PromptOpen())
	assert.True(t, st.Pending.FromSearch)

	st, err = s.Creation.Resolve(ctx, Decision{Kind: DecisionContinue})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 1, api.count("CreateEntity"))
}

func TestLeaveNavigatesWithoutFilter(t *testing.T) {
	api, s, nav := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	_, err := s.Creation.Submit(context.Background(), Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	s.Creation.Leave()

	assert.Equal(t, StateIdle, s.Creation.State())
	assert.Nil(t, s.Creation.Status().Pending)
	assert.Equal(t, []string{""}, nav.Calls())
}

func TestWorkflowPublishesStateChanges(t *testing.T) {
	api, s, _ := newTestSession(t)
	api.similar = []domain.SimilarIngredient{tomatoCandidate()}
	var states []WorkflowState
	s.Notifier.Subscribe(func(ev Event) {
		if ev.Kind == WorkflowChanged {
			states = append(states, ev.State)
		}
	})

	_, err := s.Creation.Submit(context.Background(), Draft{Name: "Tomatoe", Type: "Ingredient"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []WorkflowState{StateValidating, StateCheckingSimilarity, StateAwaitingDecision}, states)
}
