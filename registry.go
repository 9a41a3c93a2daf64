// This file contains the connection registry: the set of live connections
// keyed by ID. It is the only shared mutable state in the library; the
// accept path, ingress loops and the dispatcher all mutate it concurrently.
package webui

import (
	"sync"
)

type registry struct {
	mutex sync.RWMutex
	conns map[string]*Conn
}

func newRegistry() *registry {
	return &registry{
		conns: make(map[string]*Conn),
	}
}

func (r *registry) add(c *Conn) error {
	r.mutex.Lock()

	defer r.mutex.Unlock()

	if _, exists := r.conns[c.ID]; exists {
		return internal("registry", "connection "+c.ID+" is already registered")
	}
	r.conns[c.ID] = c
	return nil
}

func (r *registry) remove(id string) {
	r.mutex.Lock()

	defer r.mutex.Unlock()

	delete(r.conns, id)
}

// snapshot returns a point-in-time copy of the live connections, safe to
// iterate while adds and removes happen concurrently. No ordering is
// guaranteed.
func (r *registry) snapshot() []*Conn {
	r.mutex.RLock()

	defer r.mutex.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))

	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

func (r *registry) size() int {
	r.mutex.RLock()

	defer r.mutex.RUnlock()

	return len(r.conns)
}
