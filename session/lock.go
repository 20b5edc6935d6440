package session

import (
	"context"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/pkg/errors"
)

// Locker serialises token refreshes across processes sharing a store.
// Lock blocks until the lock is held or ctx ends; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

var _ Locker = (*LocalLocker)(nil)

// LocalLocker is an in-process Locker, used when several clients in one
// process share a store.
type LocalLocker struct {
	ch chan struct{}
}

// NewLocalLocker creates an unlocked LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{ch: make(chan struct{}, 1)}
}

func (l *LocalLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, errors.Wrap(apperrors.ErrLockNotAcquired, ctx.Err().Error())
	}
}
