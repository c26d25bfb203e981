// Package lock provides short-lived leases keyed by name. The provisioning step
// takes one per payment id so two concurrent requests cannot both call the reseller.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotHeld is returned by Release when the lease expired or belongs to someone else.
var ErrNotHeld = errors.New("lock: lease not held")

// Locker acquires and releases leases. Acquire returns ok=false when the key
// is already leased.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu      sync.Mutex
	leases  map[string]lease
	nowFunc func() time.Time
}

type lease struct {
	token     string
	expiresAt time.Time
}

func NewLocal() *Local {
	return &Local{leases: map[string]lease{}, nowFunc: time.Now}
}

func (l *Local) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *Local) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.leases[key]
	if !ok || cur.token != token {
		return ErrNotHeld
	}
	delete(l.leases, key)
	return nil
}
