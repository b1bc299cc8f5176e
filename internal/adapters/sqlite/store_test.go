package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	store.now = func() time.Time { return time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC) }

	return store
}

func TestStoreAwardAccumulates(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Award(ctx, "p1", 5))
	require.NoError(t, store.Award(ctx, "p1", 7))
	require.NoError(t, store.Award(ctx, "p2", 9))

	balance, err := store.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 12, balance)

	missing, err := store.Balance(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, missing)
}

func TestStoreAwardRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	assert.ErrorContains(t, store.Award(context.Background(), "", 5), "player id")
	assert.ErrorContains(t, store.Award(context.Background(), "p1", 0), "must be positive")
}

func TestStoreTopJoinsNicknames(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Award(ctx, "p1", 5))
	require.NoError(t, store.Award(ctx, "p2", 21))
	require.NoError(t, store.Award(ctx, "p3", 5))
	require.NoError(t, store.SetDisplayName(ctx, "p2", "小明"))

	top, err := store.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, domain.PlayerID("p2"), top[0].Player)
	assert.Equal(t, "小明", top[0].Name)
	assert.Equal(t, 21, top[0].Points)
	assert.Equal(t, 1, top[0].Awards)
	assert.Equal(t, domain.PlayerID("p1"), top[1].Player)
	assert.Empty(t, top[1].Name)
}

func TestStoreDisplayName(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.DisplayName(ctx, "p1")
	require.ErrorIs(t, err, domain.ErrNoDisplayName)

	require.NoError(t, store.SetDisplayName(ctx, "p1", " 小红 "))
	require.NoError(t, store.SetDisplayName(ctx, "p1", "小红红"))

	name, err := store.DisplayName(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "小红红", name)
}

func TestStoreConcurrentAwards(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Award(ctx, "p1", 5))
		}()
	}
	wg.Wait()

	balance, err := store.Balance(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(" ")
	assert.ErrorContains(t, err, "dsn is empty")
}
