package simpleposts

import (
	"hash/maphash"
	"sync"

	"github.com/google/uuid"
)

const postLockStripes = 64

// postLocks serializes mutations of a single post so that its commit and the
// matching event publish happen as one step. Unrelated posts only contend
// when they hash to the same stripe.
type postLocks struct {
	seed    maphash.Seed
	stripes [postLockStripes]sync.Mutex
}

func newPostLocks() *postLocks {
	return &postLocks{seed: maphash.MakeSeed()}
}

func (l *postLocks) lock(id uuid.UUID) func() {
	m := &l.stripes[maphash.Bytes(l.seed, id[:])%postLockStripes]
	m.Lock()
	return m.Unlock
}
