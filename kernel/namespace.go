package kernel

import "sync"

// Namespace is the mutable execution namespace (user_ns in SPEC_FULL §3):
// string keys to arbitrary values, shared across every execute_request,
// apply_request, and clear_request handled by one Kernel. It is private to
// one kernel (SPEC_FULL §5: "user_ns is private to one kernel; no locking
// required"), but the mutex costs nothing and guards against a future
// handler that dispatches work onto another goroutine.
type Namespace struct {
	mu     sync.Mutex
	values map[string]any
}

// NewNamespace constructs an empty Namespace.
func NewNamespace() *Namespace {
	return &Namespace{values: make(map[string]any)}
}

// Get returns the value bound to name and whether it was present.
func (n *Namespace) Get(name string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.values[name]
	return v, ok
}

// Set binds name to value.
func (n *Namespace) Set(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[name] = value
}

// Delete unconditionally removes name, matching apply_request's
// guaranteed-cleanup semantics (SPEC_FULL §4.2.3 step 4): deleting an
// absent name is not an error.
func (n *Namespace) Delete(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.values, name)
}

// Names returns every currently bound name, used by NamespaceCompleter.
func (n *Namespace) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.values))
	for k := range n.values {
		names = append(names, k)
	}
	return names
}

// Reset replaces the namespace contents with an empty mapping, per
// clear_request (SPEC_FULL §4.2.5).
func (n *Namespace) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values = make(map[string]any)
}

// Snapshot returns a shallow copy of the namespace contents, suitable as an
// expr-lang/expr evaluation environment (which reads but does not itself
// mutate the map it's given back into the namespace).
func (n *Namespace) Snapshot() map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make(map[string]any, len(n.values))
	for k, v := range n.values {
		cp[k] = v
	}
	return cp
}

// ApplySnapshot writes every key in snapshot back into the namespace,
// merging rather than replacing (assignments performed during expression
// evaluation become visible to subsequent execute_request calls).
func (n *Namespace) ApplySnapshot(snapshot map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range snapshot {
		n.values[k] = v
	}
}
