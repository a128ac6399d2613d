package net

import "sync"

// OperationRegistry tracks in-flight operations by logical key so they can be
// cancelled. Tracking a key that is already present replaces the handle; the
// replaced operation keeps running untracked.
type OperationRegistry struct {
	mu  sync.Mutex
	ops map[string]*Operation
}

func NewOperationRegistry() *OperationRegistry {
	return &OperationRegistry{ops: make(map[string]*Operation)}
}

// Track stores op under key and returns the handle it replaced, if any.
func (r *OperationRegistry) Track(key string, op *Operation) *Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.ops[key]
	r.ops[key] = op
	return prev
}

// Remove drops key only while it still refers to op, so a finishing operation
// never evicts the one that replaced it.
func (r *OperationRegistry) Remove(key string, op *Operation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.ops[key]; ok && cur == op {
		delete(r.ops, key)
		return true
	}
	return false
}

func (r *OperationRegistry) Get(key string) (*Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[key]
	return op, ok
}

// Cancel cancels the operation tracked under key.
func (r *OperationRegistry) Cancel(key string) bool {
	op, ok := r.Get(key)
	if !ok {
		return false
	}
	op.Cancel()
	return true
}

func (r *OperationRegistry) CancelAll() {
	r.mu.Lock()
	ops := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.Unlock()
	for _, op := range ops {
		op.Cancel()
	}
}

func (r *OperationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
