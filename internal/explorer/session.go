package explorer

import (
	"context"
	"errors"

	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

// Session owns one set of explorer components sharing a GraphAPI. The
// Browser is the Navigator unless WithNavigator overrides it.
type Session struct {
	Notifier      *Notifier
	Entities      *EntityStore
	Schema        *SchemaRegistry
	Tree          *ExpansionTree
	Relationships *RelationshipMutator
	Picker        *Picker
	Browser       *Browser
	Creation      *CreationWorkflow

	log *zap.Logger
}

type sessionOptions struct {
	log       *zap.Logger
	navigator domain.Navigator
}

type Option func(*sessionOptions)

func WithLogger(log *zap.Logger) Option {
	return func(o *sessionOptions) { o.log = log }
}

func WithNavigator(nav domain.Navigator) Option {
	return func(o *sessionOptions) { o.navigator = nav }
}

func NewSession(api domain.GraphAPI, opts ...Option) *Session {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := orNop(o.log)

	s := &Session{Notifier: NewNotifier(), log: log}
	s.Entities = NewEntityStore(api, s.Notifier, log.Named("entities"))
	s.Schema = NewSchemaRegistry(api, s.Notifier, log.Named("schema"))
	s.Tree = NewExpansionTree(api, s.Notifier, log.Named("tree"))
	s.Relationships = NewRelationshipMutator(api, s.Tree, s.Notifier, log.Named("relationships"))
	s.Picker = NewPicker(s.Schema, s.Entities, s.Notifier, log.Named("picker"))
	s.Browser = NewBrowser(s.Schema, s.Entities, s.Notifier)

	nav := o.navigator
	if nav == nil {
		nav = s.Browser
	}
	s.Creation = NewCreationWorkflow(WorkflowDeps{
		API:       api,
		Store:     s.Entities,
		Mutator:   s.Relationships,
		Picker:    s.Picker,
		Navigator: nav,
		Notifier:  s.Notifier,
		Logger:    log.Named("creation"),
	})
	return s
}

// Load fetches the entity collection and the schema.
func (s *Session) Load(ctx context.Context) error {
	return s.Browser.Load(ctx)
}

// Reset drops the expansion tree, any pending creation and the picker's
// attachments. Cached entities and schema are kept.
func (s *Session) Reset() {
	s.Tree.ClearAll()
	s.Creation.Reset()
	s.Picker.Reset(s.Picker.EntityType())
	s.log.Debug("session reset")
}

// Errors collects every component's current error message.
func (s *Session) Errors() map[string]string {
	out := make(map[string]string)
	for name, msg := range map[string]string{
		"entities":      s.Entities.Err(),
		"schema":        s.Schema.Err(),
		"tree":          s.Tree.Err(),
		"relationships": s.Relationships.Err(),
		"picker":        s.Picker.Err(),
		"creation":      s.Creation.Err(),
	} {
		if msg != "" {
			out[name] = msg
		}
	}
	return out
}

// IsUserError reports whether err was caused by the caller's input rather
// than by the backend or the transport.
func IsUserError(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, domain.ErrNothingPending) ||
		errors.Is(err, domain.ErrCandidateNotFound) ||
		errors.Is(err, domain.ErrWorkflowBusy)
}
