package explorer

import "sync"

type EventKind string

const (
	EntitiesChanged      EventKind = "entities_changed"
	SchemaChanged        EventKind = "schema_changed"
	NodeChanged          EventKind = "node_changed"
	NodeEvicted          EventKind = "node_evicted"
	TreeCleared          EventKind = "tree_cleared"
	RelationshipsChanged EventKind = "relationships_changed"
	WorkflowChanged      EventKind = "workflow_changed"
	BrowseChanged        EventKind = "browse_changed"
	PickerChanged        EventKind = "picker_changed"
)

// Event describes one state change. EntityID is set for node and
// relationship events, State for workflow events.
type Event struct {
	Kind     EventKind
	EntityID uint
	State    WorkflowState
}

// Notifier fans events out to subscribers. Handlers run synchronously on
// the goroutine that made the change, after its lock is released.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *Notifier) publish(ev Event) {
	if n == nil {
		return
	}
	n.mu.RLock()
	handlers := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		handlers = append(handlers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
