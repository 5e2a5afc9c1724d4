package ranging

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// maxSessionIDAttempts bounds random-generation retries before giving up.
// With a 32-bit random space and realistic session counts, collisions are
// vanishingly unlikely; this is a safety net against a degenerate RNG.
const maxSessionIDAttempts = 100

// ErrSessionIDExhausted indicates the allocator could not produce a unique
// nonzero session id after the maximum number of attempts.
var ErrSessionIDExhausted = errors.New("ranging: session id allocator exhausted")

// SessionIDAllocator generates unique, nonzero, random UWB session ids for
// the OOB config payload's 4-byte session-id field (spec 4.A). Thread-safe.
type SessionIDAllocator struct {
	mu        sync.Mutex
	allocated map[uint32]struct{}
}

// NewSessionIDAllocator creates an allocator with an empty allocation set.
func NewSessionIDAllocator() *SessionIDAllocator {
	return &SessionIDAllocator{allocated: make(map[uint32]struct{})}
}

// Allocate returns a unique, nonzero, random session id.
func (a *SessionIDAllocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [4]byte
	for range maxSessionIDAttempts {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generate session id: %w", err)
		}
		id := binary.BigEndian.Uint32(buf[:])
		if id == 0 {
			continue
		}
		if _, exists := a.allocated[id]; exists {
			continue
		}
		a.allocated[id] = struct{}{}
		return id, nil
	}
	return 0, fmt.Errorf("allocate session id after %d attempts: %w",
		maxSessionIDAttempts, ErrSessionIDExhausted)
}

// Release returns a previously allocated session id to the free pool.
// Releasing an id that was not allocated is a no-op.
func (a *SessionIDAllocator) Release(id uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}
