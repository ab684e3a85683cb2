// Package registry holds the statically configured OAuth clients.
package registry

import (
	"sort"

	"github.com/go-training/authz-server/pkg/core"
)

// Registry is an immutable lookup table of clients keyed by client id.
// It is safe for concurrent use.
type Registry struct {
	clients map[string]core.Client
}

// New builds a registry from the given clients. A later client with the same id replaces an earlier one.
func New(clients ...core.Client) *Registry {
	r := &Registry{clients: make(map[string]core.Client, len(clients))}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

// Find returns the client registered under clientID. A missing client is
// reported through ok, not as an error.
func (r *Registry) Find(clientID string) (client *core.Client, ok bool) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, false
	}
	return &c, true
}

// List returns all clients ordered by id.
func (r *Registry) List() []core.Client {
	out := make([]core.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Scopes returns the sorted union of all client scopes.
func (r *Registry) Scopes() []string {
	seen := make(map[string]struct{})
	for _, c := range r.clients {
		for _, s := range c.Scope {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
