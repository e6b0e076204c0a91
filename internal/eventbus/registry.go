package eventbus

import (
	"sort"
	"sync"
)

// ConnState is the lifecycle position of a connection.
type ConnState int

const (
	// StateUnbound: connected, no tenant declared, receives nothing.
	StateUnbound ConnState = iota
	// StateBound: joined to exactly one tenant, eligible for that tenant's events.
	StateBound
	// StateClosed: disconnected or never seen. Terminal.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	default:
		return "closed"
	}
}

// Conn is a live connection handle supplied by the transport. Send must not
// block: the bus calls it for every member of a tenant in turn.
type Conn interface {
	ID() string
	Send(ev Event) error
}

type member struct {
	conn   Conn
	tenant string // "" while unbound
}

// Registry maps tenants to their live connections. A connection belongs to
// at most one tenant. One RWMutex guards the whole map; nothing performs I/O
// while holding it.
type Registry struct {
	mu      sync.RWMutex
	members map[string]*member
	tenants map[string]map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]*member),
		tenants: make(map[string]map[string]Conn),
	}
}

// Attach registers conn as unbound. Attaching a known connection is a no-op.
func (r *Registry) Attach(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[conn.ID()]; !ok {
		r.members[conn.ID()] = &member{conn: conn}
	}
}

// Bind moves conn under tenantID and returns the tenant it was bound to
// before ("" if none). Connections must be attached first; a removed
// connection stays closed and yields ErrUnknownConnection.
func (r *Registry) Bind(conn Conn, tenantID string) (string, error) {
	return r.BindByID(conn.ID(), tenantID)
}

// BindByID is Bind for a connection known only by id. The membership check
// and the move happen under one lock, so a concurrent Remove either wins
// outright or removes the bound connection afterwards.
func (r *Registry) BindByID(id, tenantID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return "", ErrUnknownConnection
	}
	prev := m.tenant
	if prev == tenantID {
		return prev, nil
	}
	if prev != "" {
		r.removeFromTenant(prev, id)
	}
	set, ok := r.tenants[tenantID]
	if !ok {
		set = make(map[string]Conn)
		r.tenants[tenantID] = set
	}
	set[id] = m.conn
	m.tenant = tenantID
	return prev, nil
}

// Unbind returns conn to the unbound state. It reports the tenant it left,
// or "" when the connection was not bound.
func (r *Registry) Unbind(conn Conn) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conn.ID()]
	if !ok || m.tenant == "" {
		return ""
	}
	prev := m.tenant
	r.removeFromTenant(prev, conn.ID())
	m.tenant = ""
	return prev
}

// Remove forgets the connection entirely. It reports the tenant it was bound
// to and whether it was known at all.
func (r *Registry) Remove(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return "", false
	}
	if m.tenant != "" {
		r.removeFromTenant(m.tenant, id)
	}
	delete(r.members, id)
	return m.tenant, true
}

func (r *Registry) removeFromTenant(tenantID, id string) {
	set := r.tenants[tenantID]
	delete(set, id)
	if len(set) == 0 {
		delete(r.tenants, tenantID)
	}
}

// Snapshot returns the connections bound to tenantID at this instant.
func (r *Registry) Snapshot(tenantID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.tenants[tenantID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Lookup returns a live connection by id.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, false
	}
	return m.conn, true
}

// State reports the lifecycle state of a connection id. Unknown ids are closed.
func (r *Registry) State(id string) ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	switch {
	case !ok:
		return StateClosed
	case m.tenant == "":
		return StateUnbound
	default:
		return StateBound
	}
}

// TenantOf returns the tenant a connection is bound to.
func (r *Registry) TenantOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok || m.tenant == "" {
		return "", false
	}
	return m.tenant, true
}

// Members returns how many connections are bound to tenantID.
func (r *Registry) Members(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants[tenantID])
}

// Tenants lists tenants with at least one bound connection, sorted.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tenants))
	for t := range r.tenants {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live connections, bound or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
