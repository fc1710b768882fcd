package gateway

import (
	"sync"

	"github.com/ameskov/botgate/internal/webhook"
)

// HandlerTable holds pending one-shot reply handlers keyed by (bot, user)
// and expected literal reply text. The dispatcher is the only consumer
// today, but the table keeps its own lock so a parallelized dispatcher
// stays correct.
type HandlerTable struct {
	mu      sync.Mutex
	entries map[handlerKey]HandlerMap
}

type handlerKey struct {
	bot  string
	user string
}

// NewHandlerTable creates an empty handler table.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{entries: make(map[handlerKey]HandlerMap)}
}

// Register merges handlers into the (bot, user) entry. An existing
// binding for the same expected text is replaced.
func (t *HandlerTable) Register(bot, user string, handlers HandlerMap) {
	if len(handlers) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := handlerKey{bot: bot, user: user}
	existing, ok := t.entries[key]
	if !ok {
		existing = make(HandlerMap, len(handlers))
		t.entries[key] = existing
	}
	for text, action := range handlers {
		existing[text] = action
	}
}

// Consume looks up the action bound to the exact reply text for
// (bot, user). On a hit the matched binding is removed atomically; other
// bindings for the same pair survive. On a miss the table is unchanged.
func (t *HandlerTable) Consume(bot, user, text string) (webhook.Action, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := handlerKey{bot: bot, user: user}
	handlers, ok := t.entries[key]
	if !ok {
		return webhook.Action{}, false
	}
	action, ok := handlers[text]
	if !ok {
		return webhook.Action{}, false
	}
	delete(handlers, text)
	if len(handlers) == 0 {
		delete(t.entries, key)
	}
	return action, true
}

// Len reports how many (bot, user) pairs have pending handlers.
func (t *HandlerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending reports how many reply texts are still registered for one
// (bot, user) pair.
func (t *HandlerTable) Pending(bot, user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[handlerKey{bot: bot, user: user}])
}
