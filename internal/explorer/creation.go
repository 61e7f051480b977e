package explorer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type WorkflowState string

const (
	StateIdle               WorkflowState = "idle"
	StateValidating         WorkflowState = "validating"
	StateCheckingSimilarity WorkflowState = "checking_similarity"
	StateAwaitingDecision   WorkflowState = "awaiting_decision"
	StateSaving             WorkflowState = "saving"
	StateDone               WorkflowState = "done"
)

const (
	// SimilarityTopK is how many duplicate candidates are requested.
	SimilarityTopK = 5
	minNameLength  = 2
)

// Draft is the not yet submitted entity form.
type Draft struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// PendingCreation is the snapshot held while the similarity prompt is open.
type PendingCreation struct {
	Request     domain.CreateEntityRequest `json:"request"`
	Attachments []domain.Entity            `json:"attachments"`
	FromSearch  bool                       `json:"fromSearch"`
}

type DecisionKind string

const (
	DecisionCancel   DecisionKind = "cancel"
	DecisionContinue DecisionKind = "continue"
	DecisionPick     DecisionKind = "pick"
)

// Decision resolves an open similarity prompt. CandidateID is the
// ingredient id for DecisionPick.
type Decision struct {
	Kind        DecisionKind `json:"kind"`
	CandidateID uint         `json:"candidateId,omitempty"`
}

// WorkflowStatus is a snapshot of the creation workflow.
type WorkflowStatus struct {
	State        WorkflowState              `json:"state"`
	Error        string                     `json:"error,omitempty"`
	Pending      *PendingCreation           `json:"pending,omitempty"`
	Candidates   []domain.SimilarIngredient `json:"candidates"`
	Created      *domain.Entity             `json:"created,omitempty"`
	SelectedName string                     `json:"selectedName,omitempty"`
}

// PromptOpen reports whether the workflow waits for a Decision.
func (s WorkflowStatus) PromptOpen() bool { return s.State == StateAwaitingDecision }

// CreationWorkflow creates entities, checking Ingredient names against the
// similarity service first so the user can reuse an existing ingredient.
type CreationWorkflow struct {
	api      domain.GraphAPI
	store    *EntityStore
	mutator  *RelationshipMutator
	picker   *Picker
	navigate domain.Navigator
	notify   *Notifier
	log      *zap.Logger

	mu           sync.RWMutex
	state        WorkflowState
	err          string
	pending      *PendingCreation
	candidates   []domain.SimilarIngredient
	created      *domain.Entity
	selectedName string
}

type WorkflowDeps struct {
	API       domain.GraphAPI
	Store     *EntityStore
	Mutator   *RelationshipMutator
	Picker    *Picker
	Navigator domain.Navigator
	Notifier  *Notifier
	Logger    *zap.Logger
}

func NewCreationWorkflow(deps WorkflowDeps) *CreationWorkflow {
	return &CreationWorkflow{
		api:      deps.API,
		store:    deps.Store,
		mutator:  deps.Mutator,
		picker:   deps.Picker,
		navigate: deps.Navigator,
		notify:   deps.Notifier,
		log:      orNop(deps.Logger),
		state:    StateIdle,
	}
}

// Submit validates draft and either saves it or, for ingredients with
// similar existing names, opens the similarity prompt and returns without
// saving.
func (w *CreationWorkflow) Submit(ctx context.Context, draft Draft, attachments []domain.Entity) (WorkflowStatus, error) {
	if err := w.enter(StateValidating); err != nil {
		return w.Status(), err
	}

	name := strings.TrimSpace(draft.Name)
	if verr := validateName(name); verr != nil {
		w.fail(verr)
		return w.Status(), verr
	}

	req := domain.CreateEntityRequest{
		Name:       name,
		Type:       draft.Type,
		Properties: draft.Properties,
	}
	if desc := strings.TrimSpace(draft.Description); desc != "" {
		req.Description = &desc
	}
	snapshot := PendingCreation{Request: req, Attachments: append([]domain.Entity(nil), attachments...)}

	if draft.Type == domain.IngredientType {
		return w.checkSimilarity(ctx, snapshot)
	}
	return w.save(ctx, snapshot)
}

// CreateFromSearchTerm runs the similarity check for a bare ingredient name
// typed into the attach picker and, when allowed to proceed, creates an
// Ingredient with only that name.
func (w *CreationWorkflow) CreateFromSearchTerm(ctx context.Context, name string) (WorkflowStatus, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		verr := &domain.ValidationError{Field: "name", Message: "Ingredient name is required"}
		w.mu.Lock()
		w.err = verr.Message
		w.mu.Unlock()
		return w.Status(), verr
	}
	if err := w.enter(StateCheckingSimilarity); err != nil {
		return w.Status(), err
	}
	return w.checkSimilarity(ctx, PendingCreation{
		Request:    domain.CreateEntityRequest{Name: name, Type: domain.IngredientType},
		FromSearch: true,
	})
}

// Resolve answers the open similarity prompt.
func (w *CreationWorkflow) Resolve(ctx context.Context, d Decision) (WorkflowStatus, error) {
	w.mu.Lock()
	if w.state != StateAwaitingDecision || w.pending == nil {
		w.mu.Unlock()
		return w.Status(), domain.ErrNothingPending
	}
	pending := *w.pending

	switch d.Kind {
	case DecisionCancel:
		w.pending = nil
		w.candidates = nil
		w.state = StateIdle
		w.mu.Unlock()
		w.log.Debug("similarity prompt cancelled", zap.String("name", pending.Request.Name))
		w.changed(StateIdle)
		return w.Status(), nil

	case DecisionContinue:
		w.pending = nil
		w.candidates = nil
		w.mu.Unlock()
		w.log.Debug("similarity prompt ignored", zap.String("name", pending.Request.Name))
		return w.save(ctx, pending)

	case DecisionPick:
		var picked *domain.SimilarIngredient
		for i := range w.candidates {
			if w.candidates[i].Ingredient.ID == d.CandidateID {
				picked = &w.candidates[i]
				break
			}
		}
		if picked == nil {
			w.mu.Unlock()
			return w.Status(), domain.ErrCandidateNotFound
		}
		selected := picked.Ingredient.Name
		w.pending = nil
		w.candidates = nil
		w.selectedName = selected
		w.state = StateIdle
		w.mu.Unlock()

		if w.picker != nil {
			w.picker.SetSearchQuery(domain.IngredientType, selected)
		}
		w.log.Debug("existing ingredient selected", zap.Uint("ingredient_id", d.CandidateID), zap.String("name", selected))
		w.changed(StateIdle)
		return w.Status(), nil
	}

	w.mu.Unlock()
	return w.Status(), fmt.Errorf("unknown decision %q", d.Kind)
}

// Leave abandons the form and returns to the listing with no filter.
func (w *CreationWorkflow) Leave() {
	w.Reset()
	if w.navigate != nil {
		w.navigate.ShowListing("")
	}
}

// Reset discards any pending creation and returns to idle.
func (w *CreationWorkflow) Reset() {
	w.mu.Lock()
	w.state = StateIdle
	w.err = ""
	w.pending = nil
	w.candidates = nil
	w.created = nil
	w.selectedName = ""
	w.mu.Unlock()
	w.changed(StateIdle)
}

func (w *CreationWorkflow) Status() WorkflowStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st := WorkflowStatus{
		State:        w.state,
		Error:        w.err,
		Candidates:   append([]domain.SimilarIngredient{}, w.candidates...),
		SelectedName: w.selectedName,
	}
	if w.pending != nil {
		p := *w.pending
		p.Attachments = append([]domain.Entity(nil), w.pending.Attachments...)
		st.Pending = &p
	}
	if w.created != nil {
		c := *w.created
		st.Created = &c
	}
	return st
}

func (w *CreationWorkflow) State() WorkflowState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *CreationWorkflow) Err() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

func (w *CreationWorkflow) ClearError() {
	w.mu.Lock()
	w.err = ""
	w.mu.Unlock()
}

// enter starts a new run. Only idle, done and awaiting_decision accept a
// new run; starting one while a prompt is open discards that prompt.
func (w *CreationWorkflow) enter(state WorkflowState) error {
	w.mu.Lock()
	switch w.state {
	case StateValidating, StateCheckingSimilarity, StateSaving:
		w.mu.Unlock()
		return domain.ErrWorkflowBusy
	}
	w.state = state
	w.err = ""
	w.created = nil
	w.selectedName = ""
	w.mu.Unlock()
	w.changed(state)
	return nil
}

func (w *CreationWorkflow) checkSimilarity(ctx context.Context, snapshot PendingCreation) (WorkflowStatus, error) {
	w.mu.Lock()
	w.state = StateCheckingSimilarity
	w.pending = nil
	w.candidates = nil
	w.mu.Unlock()
	w.changed(StateCheckingSimilarity)

	name := snapshot.Request.Name
	candidates, err := w.api.FindSimilarIngredients(ctx, domain.FindSimilarIngredientsRequest{
		IngredientName: name,
		TopK:           SimilarityTopK,
	})
	if err != nil {
		w.log.Warn("similarity check failed, continuing without candidates", zap.String("name", name), zap.Error(err))
		candidates = nil
	}

	if len(candidates) == 0 {
		return w.save(ctx, snapshot)
	}

	w.mu.Lock()
	w.pending = &snapshot
	w.candidates = candidates
	w.state = StateAwaitingDecision
	w.mu.Unlock()
	w.log.Info("similar ingredients found", zap.String("name", name), zap.Int("candidates", len(candidates)))
	w.changed(StateAwaitingDecision)
	return w.Status(), nil
}

func (w *CreationWorkflow) save(ctx context.Context, snapshot PendingCreation) (WorkflowStatus, error) {
	w.mu.Lock()
	w.state = StateSaving
	w.mu.Unlock()
	w.changed(StateSaving)

	created, err := w.api.CreateEntity(ctx, snapshot.Request)
	if err != nil {
		merr := &domain.MutationError{Op: "create entity", Err: err}
		w.log.Warn("create entity failed", zap.String("name", snapshot.Request.Name), zap.Error(err))
		w.fail(merr)
		return w.Status(), merr
	}
	w.log.Info("entity created",
		zap.Uint("id", created.ID),
		zap.String("type", created.Type),
		zap.String("name", created.Name))

	if snapshot.FromSearch {
		return w.finishFromSearch(ctx, created)
	}

	if err := w.attach(ctx, created, snapshot.Attachments); err != nil {
		w.refreshStore(ctx)
		w.mu.Lock()
		w.created = &created
		w.mu.Unlock()
		w.fail(err)
		return w.Status(), err
	}

	w.refreshStore(ctx)
	w.mu.Lock()
	w.state = StateDone
	w.created = &created
	w.mu.Unlock()
	w.changed(StateDone)
	if w.navigate != nil {
		w.navigate.ShowListing(snapshot.Request.Type)
	}
	return w.Status(), nil
}

// attach links created to every attachment in parallel and waits for all
// of them. Any failure yields a PartialSaveError; nothing is rolled back.
func (w *CreationWorkflow) attach(ctx context.Context, created domain.Entity, attachments []domain.Entity) error {
	if len(attachments) == 0 {
		return nil
	}
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = make(map[uint]error)
	)
	for _, target := range attachments {
		target := target
		g.Go(func() error {
			err := w.createEdge(ctx, created.ID, target.ID)
			if err != nil {
				mu.Lock()
				failed[target.ID] = err
				mu.Unlock()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		perr := &domain.PartialSaveError{Entity: created, Failed: failed}
		w.log.Warn("entity saved with failed attachments",
			zap.Uint("id", created.ID),
			zap.Uints("failed", perr.FailedIDs()),
			zap.Error(err))
		return perr
	}
	return nil
}

func (w *CreationWorkflow) createEdge(ctx context.Context, fromID, toID uint) error {
	if w.mutator != nil {
		return w.mutator.Create(ctx, fromID, toID)
	}
	return w.api.CreateRelationship(ctx, fromID, toID)
}

func (w *CreationWorkflow) finishFromSearch(ctx context.Context, created domain.Entity) (WorkflowStatus, error) {
	w.refreshStore(ctx)
	if w.picker != nil {
		w.picker.SetSearchQuery(domain.IngredientType, created.Name)
	}
	w.mu.Lock()
	w.state = StateIdle
	w.created = &created
	w.mu.Unlock()
	w.changed(StateIdle)
	return w.Status(), nil
}

func (w *CreationWorkflow) refreshStore(ctx context.Context) {
	if w.store == nil {
		return
	}
	// The store records its own error; a stale list does not fail the save.
	_ = w.store.Refresh(ctx)
}

func (w *CreationWorkflow) fail(err error) {
	w.mu.Lock()
	w.state = StateIdle
	w.err = domain.Message(err)
	w.mu.Unlock()
	w.changed(StateIdle)
}

func (w *CreationWorkflow) changed(state WorkflowState) {
	w.notify.publish(Event{Kind: WorkflowChanged, State: state})
}

func validateName(trimmed string) *domain.ValidationError {
	if trimmed == "" {
		return &domain.ValidationError{Field: "name", Message: "Entity name is required"}
	}
	if utf8.RuneCountInString(trimmed) < minNameLength {
		return &domain.ValidationError{Field: "name", Message: fmt.Sprintf("Entity name must be at least %d characters long", minNameLength)}
	}
	return nil
}
