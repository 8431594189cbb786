package members

import (
	"strings"
	"sync"
)

// petLocks serializa las escrituras de membresía de una misma mascota dentro
// del proceso, así el chequeo "queda al menos un owner" y la escritura no se
// intercalan con otra request. Entre procesos distintos sigue valiendo
// last-write-wins.
type petLocks struct {
	mu    sync.Mutex
	locks map[string]*petLock
}

type petLock struct {
	mu   sync.Mutex
	refs int
}

// lock bloquea petID y devuelve el unlock.
func (l *petLocks) lock(petID string) func() {
	petID = strings.TrimSpace(petID)

	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*petLock{}
	}
	pl, ok := l.locks[petID]
	if !ok {
		pl = &petLock{}
		l.locks[petID] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, petID)
		}
		l.mu.Unlock()
	}
}
