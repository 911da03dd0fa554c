package retransmit

import (
	"sync"

	"github.com/jfortiz/radiuscore/rerrors"
)

// IdentifierAllocator hands out RADIUS packet identifiers (an 8-bit
// wrapping counter, RFC 2865 §3) while avoiding any value currently
// pending on the transport, the same optimization the teacher's
// getNextRadiusId hint (lastRadiusIdMap) provides, generalized into a
// standalone collaborator the controller owns instead of the
// transport.
type IdentifierAllocator struct {
	mu      sync.Mutex
	last    byte
	pending map[byte]struct{}
}

// NewIdentifierAllocator builds an allocator starting its search after
// identifier 0.
func NewIdentifierAllocator() *IdentifierAllocator {
	return &IdentifierAllocator{pending: make(map[byte]struct{})}
}

// Acquire returns the next free identifier, sweeping at most 256
// candidates starting just after the last one handed out. Returns
// rerrors.ErrNoFreeIdentifier if every slot is in use.
func (a *IdentifierAllocator) Acquire() (byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidate := a.last
	for i := 0; i < 256; i++ {
		candidate++
		if _, busy := a.pending[candidate]; !busy {
			a.pending[candidate] = struct{}{}
			a.last = candidate
			return candidate, nil
		}
	}
	return 0, rerrors.ErrNoFreeIdentifier
}

// Release returns id to the free pool once its request/response cycle
// (across every retry attempt) has concluded.
func (a *IdentifierAllocator) Release(id byte) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}
