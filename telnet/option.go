package telnet

import "sync"

// OptionDescriptor is the immutable, per-option record of what an option
// supports. Zero MaxSubnegotiationSize never means unlimited: Register
// applies DefaultMaxSubnegotiationSize when it is zero and subnegotiation is
// supported, and the FSM drains a subnegotiation for any other zero-size
// descriptor (including UpsertDefault's) under that same default cap.
type OptionDescriptor struct {
	ID                     OptionID
	SupportsLocal          bool
	SupportsRemote         bool
	SupportsSubnegotiation bool
	MaxSubnegotiationSize  int
}

// Supports reports whether the option may be enabled in the given
// direction.
func (d OptionDescriptor) Supports(dir Direction) bool {
	if dir == Local {
		return d.SupportsLocal
	}
	return d.SupportsRemote
}

// DefaultMaxSubnegotiationSize is applied by Register to subnegotiation-
// capable descriptors registered without an explicit bound, and by the FSM
// as the drain cap for descriptors whose size is zero (such as the ones
// UpsertDefault memoizes for unregistered options a peer references).
const DefaultMaxSubnegotiationSize = 4096

// OptionRegistry is a total mapping from OptionID to an optional
// OptionDescriptor. It may be shared read-mostly across many Streams; the
// only mutation an established Stream ever performs on a shared registry is
// the idempotent UpsertDefault memoization of a permanently-refused option.
type OptionRegistry struct {
	mu   sync.RWMutex
	byID map[OptionID]OptionDescriptor
}

// NewOptionRegistry returns an empty registry. Use Register to add the
// options an application supports.
func NewOptionRegistry() *OptionRegistry {
	return &OptionRegistry{byID: make(map[OptionID]OptionDescriptor)}
}

// Register adds or replaces the descriptor for desc.ID, applying
// DefaultMaxSubnegotiationSize if desc.MaxSubnegotiationSize is zero and
// subnegotiation is supported.
func (r *OptionRegistry) Register(desc OptionDescriptor) {
	if desc.SupportsSubnegotiation && desc.MaxSubnegotiationSize == 0 {
		desc.MaxSubnegotiationSize = DefaultMaxSubnegotiationSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[desc.ID] = desc
}

// Get performs a pure lookup: (descriptor, true) if id is registered,
// (zero value, false) otherwise.
func (r *OptionRegistry) Get(id OptionID) (OptionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// UpsertDefault idempotently inserts an all-false, no-subnegotiation
// descriptor for id if one is not already present, and returns whatever
// descriptor ends up registered. It is used by the FSM to memoize the
// permanent rejection of an option a peer references in subnegotiation
// without ever having negotiated it, so repeated bad requests don't repeat
// the "unregistered option" branch from scratch.
func (r *OptionRegistry) UpsertDefault(id OptionID) OptionDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byID[id]; ok {
		return d
	}
	d := OptionDescriptor{ID: id}
	r.byID[id] = d
	return d
}
