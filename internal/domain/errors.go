package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEdge     = errors.New("relationship already exists")
	ErrSchemaViolation   = errors.New("relationship not allowed by schema")
	ErrNothingPending    = errors.New("no pending creation to resolve")
	ErrCandidateNotFound = errors.New("candidate not in the current similarity results")
	ErrWorkflowBusy      = errors.New("a creation is already in progress")
)

// ValidationError is a local, pre-network failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// FetchError is a failed read of the collection, schema or related list.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// MutationError is a failed create or delete of an entity or edge.
type MutationError struct {
	Op  string
	Err error
}

func (e *MutationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *MutationError) Unwrap() error { return e.Err }

// PartialSaveError reports an entity that was persisted while one or more
// of its relationship attachments failed. Nothing is rolled back.
type PartialSaveError struct {
	Entity Entity
	Failed map[uint]error
}

func (e *PartialSaveError) Error() string {
	ids := e.FailedIDs()
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d (%v)", id, e.Failed[id]))
	}
	return fmt.Sprintf("entity %q was created (id %d) but %d relationship(s) failed: %s",
		e.Entity.Name, e.Entity.ID, len(ids), strings.Join(parts, ", "))
}

// FailedIDs returns the attachment ids that could not be linked, ascending.
func (e *PartialSaveError) FailedIDs() []uint {
	ids := make([]uint, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *PartialSaveError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, id := range e.FailedIDs() {
		out = append(out, e.Failed[id])
	}
	return out
}

// APIError is a non-2xx backend response carrying {code, message}.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsConflict(err error) bool {
	if errors.Is(err, ErrDuplicateEdge) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Message renders err for a component's error field. API errors show only
// the server message; a partial save keeps its own summary.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var partial *PartialSaveError
	if errors.As(err, &partial) {
		return partial.Error()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
