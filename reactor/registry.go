package reactor

import (
	"errors"
	"fmt"

	"github.com/moontrade/portal/config"
	"github.com/moontrade/portal/pkg/netpoll"
)

var ErrDuplicateFD = errors.New("duplicate listener descriptor")

// Entry pairs a listening socket with the server configuration it was bound from.
type Entry struct {
	Listener *netpoll.Listener
	Server   *config.ServerConfig
}

// Registry maps listener descriptors to their entries. It is built once and
// never mutated, so the loop reads it without locking. Descriptors are only
// unique while the listener stays open; nothing is ever removed.
type Registry struct {
	entries map[int]Entry
	order   []int
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make(map[int]Entry, len(entries)),
		order:   make([]int, 0, len(entries)),
	}
	for _, e := range entries {
		if e.Listener == nil || e.Server == nil {
			return nil, errors.New("registry entry missing listener or server")
		}
		fd := e.Listener.FD()
		if _, ok := r.entries[fd]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateFD, fd)
		}
		r.entries[fd] = e
		r.order = append(r.order, fd)
	}
	return r, nil
}

func (r *Registry) Lookup(fd int) (Entry, bool) {
	e, ok := r.entries[fd]
	return e, ok
}

func (r *Registry) Len() int { return len(r.order) }

// Entries returns the entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.order))
	for i, fd := range r.order {
		out[i] = r.entries[fd]
	}
	return out
}
