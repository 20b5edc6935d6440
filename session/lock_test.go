package session_test

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	l := session.NewLocalLocker()

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)

	t.Run("second holder waits", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := l.Lock(ctx)
		require.ErrorIs(t, err, apperrors.ErrLockNotAcquired)
	})

	unlock()

	unlock, err = l.Lock(context.Background())
	require.NoError(t, err)
	unlock()
}
