package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stejskal/web-predator/internal/domain"
	"github.com/stejskal/web-predator/internal/explorer"
	"go.uber.org/zap"
)

const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeBadRequest     = 40000
	CodeNotFound       = 40400
	CodeConflict       = 40900
	CodeUnprocessable  = 42200
	CodeInternal       = 50000
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message)
}

// Handler maps session method names onto an explorer Session. It carries
// no transport so the CLI can run it in-process as well.
type Handler struct {
	session *explorer.Session
	log     *zap.Logger
}

func NewHandler(session *explorer.Session, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{session: session, log: log}
}

// EntityCheck answers schema.check.
type EntityCheck struct {
	Valid         bool                      `json:"valid"`
	Relationships []domain.RelationshipRule `json:"relationships"`
}

type TypeLists struct {
	Creatable []string `json:"creatable"`
	Display   []string `json:"display"`
}

type Listing struct {
	ActiveTab string          `json:"activeTab"`
	Types     []string        `json:"types"`
	Query     string          `json:"query"`
	Entities  []domain.Entity `json:"entities"`
}

type SubmitParams struct {
	explorer.Draft
	AttachmentIDs []uint `json:"attachment_ids,omitempty"`
}

// Call runs one method. Failures are always returned as *Error.
func (h *Handler) Call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	h.log.Debug("rpc call", zap.String("method", method))
	result, err := h.call(ctx, method, params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		if errorCode(err) == CodeInternal {
			h.log.Warn("rpc call failed", zap.String("method", method), zap.Error(err))
		}
		return nil, &Error{Code: errorCode(err), Message: domain.Message(err)}
	}
	return result, nil
}

func (h *Handler) call(ctx context.Context, method string, params json.RawMessage) (any, error) {
	sess := h.session

	switch method {
	case "entities.refresh":
		if err := sess.Entities.Refresh(ctx); err != nil {
			return nil, err
		}
		return sess.Entities.List(), nil
	case "entities.list":
		return sess.Entities.List(), nil
	case "schema.refresh":
		if err := sess.Schema.Refresh(ctx); err != nil {
			return nil, err
		}
		schema, _ := sess.Schema.Schema()
		return schema, nil
	case "schema.targets":
		var p struct {
			Type string `json:"type"`
		}
		if !decodeParams(params, &p) || p.Type == "" {
			return nil, invalidParams()
		}
		if err := h.ensureSchema(ctx); err != nil {
			return nil, err
		}
		return sess.Schema.ValidTargetTypes(p.Type), nil
	case "schema.check":
		var p struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if !decodeParams(params, &p) || p.From == "" || p.To == "" {
			return nil, invalidParams()
		}
		if err := h.ensureSchema(ctx); err != nil {
			return nil, err
		}
		return EntityCheck{
			Valid:         sess.Schema.IsValidRelationship(p.From, p.To),
			Relationships: sess.Schema.ValidRelationships(p.From, p.To),
		}, nil
	case "schema.types":
		if err := h.ensureSchema(ctx); err != nil {
			return nil, err
		}
		return TypeLists{Creatable: sess.Schema.CreatableTypes(), Display: sess.Schema.DisplayTypes()}, nil
	case "tree.expand":
		var p struct {
			ID uint `json:"id"`
		}
		if !decodeParams(params, &p) || p.ID == 0 {
			return nil, invalidParams()
		}
		entity, err := h.lookup(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if err := sess.Tree.ToggleExpand(ctx, entity); err != nil {
			return nil, err
		}
		node, _ := sess.Tree.Node(p.ID)
		return node, nil
	case "tree.nested":
		var p struct {
			ParentID uint `json:"parent_id"`
			ID       uint `json:"id"`
		}
		if !decodeParams(params, &p) || p.ParentID == 0 || p.ID == 0 {
			return nil, invalidParams()
		}
		related, found := findEntity(sess.Tree.RelationshipsOf(p.ParentID), p.ID)
		if !found {
			return nil, fmt.Errorf("entity %d is not related to expanded entity %d: %w", p.ID, p.ParentID, domain.ErrNotFound)
		}
		if err := sess.Tree.ToggleNestedExpand(ctx, p.ParentID, related); err != nil {
			return nil, err
		}
		return sess.Tree.Nodes(), nil
	case "tree.show":
		return sess.Tree.Nodes(), nil
	case "tree.clear":
		sess.Tree.ClearAll()
		return map[string]any{"ok": true}, nil
	case "relationships.create", "relationships.delete":
		var p struct {
			From uint `json:"from"`
			To   uint `json:"to"`
		}
		if !decodeParams(params, &p) || p.From == 0 || p.To == 0 {
			return nil, invalidParams()
		}
		var err error
		if method == "relationships.create" {
			err = sess.Relationships.Create(ctx, p.From, p.To)
		} else {
			err = sess.Relationships.Delete(ctx, p.From, p.To)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	case "creation.submit":
		var p SubmitParams
		if !decodeParams(params, &p) {
			return nil, invalidParams()
		}
		sess.Picker.Reset(p.Type)
		for _, id := range p.AttachmentIDs {
			entity, err := h.lookup(ctx, id)
			if err != nil {
				return nil, err
			}
			sess.Picker.Attach(entity)
		}
		return statusResult(sess.Creation.Submit(ctx, p.Draft, sess.Picker.Attached()))
	case "creation.search_create":
		var p struct {
			Name string `json:"name"`
		}
		if !decodeParams(params, &p) {
			return nil, invalidParams()
		}
		return statusResult(sess.Creation.CreateFromSearchTerm(ctx, p.Name))
	case "creation.resolve":
		var d explorer.Decision
		if !decodeParams(params, &d) {
			return nil, invalidParams()
		}
		switch d.Kind {
		case explorer.DecisionCancel, explorer.DecisionContinue, explorer.DecisionPick:
		default:
			return nil, invalidParams()
		}
		return statusResult(sess.Creation.Resolve(ctx, d))
	case "creation.status":
		return sess.Creation.Status(), nil
	case "browse.list":
		var p struct {
			Type  string  `json:"type"`
			Query *string `json:"query"`
		}
		if len(params) > 0 && !decodeParams(params, &p) {
			return nil, invalidParams()
		}
		if err := h.ensureLoaded(ctx); err != nil {
			return nil, err
		}
		if p.Type != "" {
			sess.Browser.SetActiveTab(p.Type)
		}
		tab := sess.Browser.ActiveTab()
		if p.Query != nil {
			sess.Browser.SetSearchQuery(tab, *p.Query)
		}
		return Listing{
			ActiveTab: tab,
			Types:     sess.Browser.DisplayTypes(),
			Query:     sess.Browser.SearchQuery(tab),
			Entities:  sess.Browser.CurrentEntities(),
		}, nil
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found"}
	}
}

// lookup resolves id against the cached collection, refreshing it once on
// a miss.
func (h *Handler) lookup(ctx context.Context, id uint) (domain.Entity, error) {
	if e, found := h.session.Entities.Get(id); found {
		return e, nil
	}
	if err := h.session.Entities.Refresh(ctx); err != nil {
		return domain.Entity{}, err
	}
	if e, found := h.session.Entities.Get(id); found {
		return e, nil
	}
	return domain.Entity{}, fmt.Errorf("entity %d: %w", id, domain.ErrNotFound)
}

func (h *Handler) ensureSchema(ctx context.Context) error {
	if h.session.Schema.Loaded() {
		return nil
	}
	return h.session.Schema.Refresh(ctx)
}

func (h *Handler) ensureLoaded(ctx context.Context) error {
	if h.session.Schema.Loaded() {
		return nil
	}
	return h.session.Load(ctx)
}

func findEntity(list []domain.Entity, id uint) (domain.Entity, bool) {
	for _, e := range list {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Entity{}, false
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// statusResult keeps the status as the result when its Error field records
// this very failure.
func statusResult(status explorer.WorkflowStatus, err error) (any, error) {
	if err != nil && status.Error != domain.Message(err) {
		return nil, err
	}
	return status, nil
}

func invalidParams() *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params"}
}

func errorCode(err error) int {
	var apiErr *domain.APIError
	switch {
	case explorer.IsUserError(err):
		return CodeBadRequest
	case domain.IsNotFound(err):
		return CodeNotFound
	case domain.IsConflict(err):
		return CodeConflict
	case errors.Is(err, domain.ErrSchemaViolation):
		return CodeUnprocessable
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode * 100
	default:
		return CodeInternal
	}
}
