package newsapi

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when a KeyRing is built without credentials.
var ErrNoKeys = errors.New("newsapi: no api keys configured")

// KeyRing is an ordered credential pool with a process-wide cursor. The
// cursor only moves when the key it points at is reported as rate limited,
// so concurrent requests never skip a healthy key on each other's behalf.
type KeyRing struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewKeyRing copies keys into a new ring.
func NewKeyRing(keys []string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &KeyRing{keys: cp}, nil
}

// Len returns the number of keys.
func (r *KeyRing) Len() int { return len(r.keys) }

// Current returns the key under the cursor and its index.
func (r *KeyRing) Current() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor, r.keys[r.cursor]
}

// At returns the key at index i modulo the ring size.
func (r *KeyRing) At(i int) (int, string) {
	i %= len(r.keys)
	return i, r.keys[i]
}

// MarkLimited advances the cursor past idx if it still points there.
func (r *KeyRing) MarkLimited(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == idx {
		r.cursor = (idx + 1) % len(r.keys)
	}
}
