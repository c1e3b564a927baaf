package vault

import "sync"

// PathLocks serializes read-decide-write sequences per path. Different
// paths never contend.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*pathLock)}
}

// Lock blocks until path is free and returns the matching unlock func.
func (l *PathLocks) Lock(path string) (unlock func()) {
	l.mu.Lock()
	pl, ok := l.locks[path]
	if !ok {
		pl = &pathLock{}
		l.locks[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			pl.mu.Unlock()

			l.mu.Lock()
			pl.refs--
			if pl.refs == 0 {
				delete(l.locks, path)
			}
			l.mu.Unlock()
		})
	}
}

// Len is the number of paths currently held or waited on
func (l *PathLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
