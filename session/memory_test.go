package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-opportuci/session"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, s.IsEmpty())

	require.NoError(t, store.Save(ctx, session.Session{AccessToken: "a1", RefreshToken: "r1"}))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, session.Session{AccessToken: "a1", RefreshToken: "r1"}, s)

	require.NoError(t, store.SetAccessToken(ctx, "a2"))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, session.Session{AccessToken: "a2", RefreshToken: "r1"}, s)

	require.NoError(t, store.Clear(ctx))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, session.Session{}, s)

	// Clearing twice is fine.
	require.NoError(t, store.Clear(ctx))
}

func TestInMemoryStore(t *testing.T) {
	storeContract(t, session.NewInMemoryStore())
}

func TestInMemoryStore_ClearRemovesBothKeys(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()
	require.NoError(t, store.Save(ctx, session.Session{AccessToken: "a", RefreshToken: "r"}))
	require.ElementsMatch(t, []string{session.KeyAccess, session.KeyRefresh}, store.Keys())

	require.NoError(t, store.Clear(ctx))
	require.Empty(t, store.Keys())
}

func TestInMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := session.NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.SetAccessToken(ctx, "a")
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Load(ctx)
		}()
	}
	wg.Wait()

	s, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", s.AccessToken)
}
