package engine

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/fieldnet/internal/field"
)

// Node is an owning entity of a scene: it has a name, an owner id, and the
// fields it declares. SFNode and MFNode fields hold *Node references, which
// the registry counts.
type Node struct {
	id     field.OwnerID
	name   string
	fields []field.Field
	byName map[string]field.Field
	refs   atomic.Int64
}

// ID returns the owner id fields of this node carry.
func (n *Node) ID() field.OwnerID { return n.id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// String returns the node name; reference fields format their values with it.
func (n *Node) String() string { return n.name }

// Fields returns the node's fields in declaration order.
func (n *Node) Fields() []field.Field { return slices.Clone(n.fields) }

// Field returns the field named name.
func (n *Node) Field(name string) (field.Field, bool) {
	f, ok := n.byName[name]
	return f, ok
}

// Refs returns the number of reference fields currently holding n.
func (n *Node) Refs() int { return int(n.refs.Load()) }

func (n *Node) add(f field.Field) {
	n.fields = append(n.fields, f)
	n.byName[f.Name()] = f
}

// Registry resolves owner ids for the field core: it names entities, tracks
// whether each has finished initialization, decides write delegation, and
// counts the references SFNode and MFNode fields hold.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	next        field.OwnerID
	nodes       map[field.OwnerID]*Node
	byName      map[string]*Node
	initialized map[field.OwnerID]bool
	sealed      map[field.OwnerID]bool
	grants      map[field.OwnerID]map[field.OwnerID]bool
}

// NewRegistry creates an empty registry. Owner ids start at 1; 0 is
// field.Internal.
func NewRegistry() *Registry {
	return &Registry{
		nodes:       make(map[field.OwnerID]*Node),
		byName:      make(map[string]*Node),
		initialized: make(map[field.OwnerID]bool),
		sealed:      make(map[field.OwnerID]bool),
		grants:      make(map[field.OwnerID]map[field.OwnerID]bool),
	}
}

// Register creates an entity and returns its owner id. Names are not
// required to be unique; Lookup returns the first entity with a name.
func (r *Registry) Register(name string) field.OwnerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	n := &Node{id: r.next, name: name, byName: make(map[string]field.Field)}
	r.nodes[n.id] = n
	if _, taken := r.byName[name]; !taken {
		r.byName[name] = n
	}
	return n.id
}

// Node returns the entity with id.
func (r *Registry) Node(id field.OwnerID) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// Lookup returns the entity named name.
func (r *Registry) Lookup(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byName[name]
	return n, ok
}

// OwnerName implements field.OwnerRegistry.
func (r *Registry) OwnerName(id field.OwnerID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.nodes[id]; ok {
		return n.name
	}
	return ""
}

// MarkInitialized ends the initialization window of id. External writes to
// its INITIALIZE_ONLY fields fail from now on.
func (r *Registry) MarkInitialized(id field.OwnerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized[id] = true
}

// IsInitialized implements field.OwnerRegistry.
func (r *Registry) IsInitialized(id field.OwnerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized[id]
}

// Seal restricts external writes to id's fields to callers granted with
// Grant.
func (r *Registry) Seal(id field.OwnerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed[id] = true
}

// Grant lets caller write owner's fields after owner is sealed.
func (r *Registry) Grant(owner, caller field.OwnerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grants[owner] == nil {
		r.grants[owner] = make(map[field.OwnerID]bool)
	}
	r.grants[owner][caller] = true
}

// MayWrite implements field.OwnerRegistry.
func (r *Registry) MayWrite(owner, caller field.OwnerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.sealed[owner] || r.grants[owner][caller]
}

// Acquire implements field.RefCounter for node references.
func (r *Registry) Acquire(n *Node) {
	if n == nil {
		return
	}
	n.refs.Add(1)
}

// Release implements field.RefCounter for node references.
func (r *Registry) Release(n *Node) {
	if n == nil {
		return
	}
	n.refs.Add(-1)
}

// Teardown detaches and closes every field of id, releasing the references
// they hold, then forgets the entity. Fields of other entities that routed
// to or from it lose those routes.
func (r *Registry) Teardown(id field.OwnerID) {
	r.mu.RLock()
	n, ok := r.nodes[id]
	r.mu.RUnlock()
	if !ok {
		return
	}

	// Close outside the lock: releasing references calls back into Release.
	for _, f := range n.fields {
		field.Close(f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
	if r.byName[n.name] == n {
		delete(r.byName, n.name)
	}
	delete(r.initialized, id)
	delete(r.sealed, id)
	delete(r.grants, id)
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
