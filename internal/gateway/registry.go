package gateway

import (
	"sort"

	"github.com/ameskov/botgate/internal/connector"
)

// Wildcard is the messenger value addressing every registered bot.
const Wildcard = "*"

// BotContext is static per-bot metadata attached to inbound events so
// handlers know which callback endpoint to notify.
type BotContext struct {
	BotName     string
	CallbackURL string
}

// Target is one resolved (bot, connector) pair.
type Target struct {
	Name string
	Conn connector.Connector
	Ctx  BotContext
}

// RegistryEntry is one bot supplied at registry construction.
type RegistryEntry struct {
	Name string
	Conn connector.Connector
	Ctx  BotContext
}

// Registry maps bot names to their connectors. It is built once at
// startup and read-only afterwards, so concurrent lookups need no lock.
type Registry struct {
	names []string
	conns map[string]connector.Connector
	ctxs  map[string]BotContext
}

// NewRegistry builds a registry from the configured bots. The entry set
// is fixed for the process lifetime.
func NewRegistry(entries []RegistryEntry) *Registry {
	r := &Registry{
		conns: make(map[string]connector.Connector, len(entries)),
		ctxs:  make(map[string]BotContext, len(entries)),
	}
	for _, e := range entries {
		if _, dup := r.conns[e.Name]; dup {
			continue
		}
		r.names = append(r.names, e.Name)
		r.conns[e.Name] = e.Conn
		r.ctxs[e.Name] = e.Ctx
	}
	sort.Strings(r.names)
	return r
}

// Lookup returns the connector registered under the given bot name.
func (r *Registry) Lookup(name string) (connector.Connector, bool) {
	c, ok := r.conns[name]
	return c, ok
}

// Context returns the static context for the given bot name.
func (r *Registry) Context(name string) (BotContext, bool) {
	ctx, ok := r.ctxs[name]
	return ctx, ok
}

// Names returns every registered bot name in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ResolveTargets maps a messenger value to connectors: the wildcard token
// resolves to every bot in sorted name order, a known name to that single
// bot, and an unknown name to an empty slice.
func (r *Registry) ResolveTargets(nameOrWildcard string) []Target {
	if nameOrWildcard == Wildcard {
		targets := make([]Target, 0, len(r.names))
		for _, name := range r.names {
			targets = append(targets, Target{Name: name, Conn: r.conns[name], Ctx: r.ctxs[name]})
		}
		return targets
	}
	c, ok := r.conns[nameOrWildcard]
	if !ok {
		return nil
	}
	return []Target{{Name: nameOrWildcard, Conn: c, Ctx: r.ctxs[nameOrWildcard]}}
}
