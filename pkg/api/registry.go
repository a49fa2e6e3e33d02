package api

import (
	"strings"
	"sync"

	"github.com/uhyunpark/orderdesk/pkg/order"
	"github.com/uhyunpark/orderdesk/pkg/wire"
)

// Transport is one live client connection.
type Transport interface {
	// Send queues data without blocking. It fails with a TransportError
	// when the connection is closed or its queue is full.
	Send(data []byte) error
	Open() bool
	Close() error
}

type registration struct {
	role      string
	transport Transport
}

// Registry tracks every live transport plus the user identities bound to
// them. A transport may be live without being identified.
type Registry struct {
	mu         sync.RWMutex
	users      map[string]registration
	transports map[Transport]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users:      make(map[string]registration),
		transports: make(map[Transport]struct{}),
	}
}

// Add records a freshly connected transport.
func (r *Registry) Add(t Transport) {
	r.mu.Lock()
	r.transports[t] = struct{}{}
	r.mu.Unlock()
}

// Identify binds userID to t. A second IDENTIFY for the same user replaces
// the earlier binding; the earlier transport stays live but is no longer
// targeted by user or operator notifications.
func (r *Registry) Identify(userID, role string, t Transport) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return order.Errorf(order.KindValidation, "identify", "", "userId is required")
	}
	normalized := wire.NormalizeRole(role)
	if normalized == "" {
		return order.Errorf(order.KindValidation, "identify", "", "unknown role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t] = struct{}{}
	r.users[userID] = registration{role: normalized, transport: t}
	return nil
}

// Unregister forgets t and every identity bound to it. Calling it twice is
// harmless.
func (r *Registry) Unregister(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, t)
	for id, reg := range r.users {
		if reg.transport == t {
			delete(r.users, id)
		}
	}
}

// Submitter returns the transport of userID if it identified as a submitter.
func (r *Registry) Submitter(userID string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.users[userID]
	if !ok || reg.role != wire.RoleSubmitter {
		return nil, false
	}
	return reg.transport, true
}

// Role returns the role userID identified with.
func (r *Registry) Role(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.users[userID]
	return reg.role, ok
}

// Operators returns the transports bound to operator identities.
func (r *Registry) Operators() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transport
	for _, reg := range r.users {
		if reg.role == wire.RoleOperator {
			out = append(out, reg.transport)
		}
	}
	return out
}

// All returns every live transport, identified or not.
func (r *Registry) All() []Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transport, 0, len(r.transports))
	for t := range r.transports {
		out = append(out, t)
	}
	return out
}

// Len counts live transports.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports)
}
