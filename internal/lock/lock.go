// Package lock provides named, expiring mutual exclusion for runner passes.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
)

// Locker hands out expiring named locks.
// Acquire returns domain.ErrLockNotAcquired when the name is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// Local is a Locker valid within a single process
type Local struct {
	now func() time.Time

	mu   sync.Mutex
	held map[string]localHold
}

type localHold struct {
	token   string
	expires time.Time
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{now: time.Now, held: make(map[string]localHold)}
}

func (l *Local) Acquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[name]; ok && h.expires.After(now) {
		return nil, domain.ErrLockNotAcquired
	}

	token := uuid.NewString()
	l.held[name] = localHold{token: token, expires: now.Add(ttl)}
	return &localLease{owner: l, name: name, token: token}, nil
}

type localLease struct {
	owner *Local
	name  string
	token string
}

func (l *localLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if h, ok := l.owner.held[l.name]; ok && h.token == l.token {
		delete(l.owner.held, l.name)
	}
	return nil
}
