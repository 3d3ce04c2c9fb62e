package delivery

import (
	"github.com/pkg/errors"
)

// Router maps payload sizes to an available client.
type Router struct {
	botMaxMB float64
	clients  map[Kind]Client
}

// NewRouter builds a router over the given clients. Clients are indexed by
// their channel kind; a missing kind behaves like an unavailable client.
func NewRouter(botMaxMB float64, clients ...Client) *Router {
	r := &Router{botMaxMB: botMaxMB, clients: make(map[Kind]Client, len(clients))}
	for _, c := range clients {
		if c != nil {
			r.clients[c.Channel().Kind] = c
		}
	}
	return r
}

// Client returns the client for kind, or nil.
func (r *Router) Client(kind Kind) Client { return r.clients[kind] }

// Available reports whether the client for kind exists and can be used.
func (r *Router) Available(kind Kind) bool {
	c := r.clients[kind]
	return c != nil && c.Available()
}

// Propose returns the channel a payload of sizeMB should use, downgrading
// Bot to User when the bot is unavailable. It performs no I/O.
func (r *Router) Propose(sizeMB float64) (Kind, error) {
	kind := RouteWith(sizeMB, r.botMaxMB)
	if kind == Bot && !r.Available(Bot) {
		kind = User
	}
	if !r.Available(kind) {
		return kind, errors.Wrapf(ErrNoChannel, "%.2fMB needs %s", sizeMB, kind)
	}
	return kind, nil
}

// Select returns the client that should carry a payload of sizeMB.
func (r *Router) Select(sizeMB float64) (Client, error) {
	kind, err := r.Propose(sizeMB)
	if err != nil {
		return nil, err
	}
	return r.clients[kind], nil
}
