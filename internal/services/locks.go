package services

import (
	"errors"
	"strings"
	"sync"

	"github.com/shopcore/api/internal/repositories"
)

// keyedMutex serialises operations per key. Mutating cart and payment flows
// lock on the cart code or order ID so interleaved writers queue up instead of
// clobbering each other; the repository's optimistic precondition remains the
// backstop for writers on other instances.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLockEntry)}
}

// Lock acquires the mutex for the key and returns the unlock function.
func (m *keyedMutex) Lock(key string) func() {
	key = strings.TrimSpace(key)

	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedLockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
