package application

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newNotifierFixture(t *testing.T) (*Notifier, *SessionStore, *recordingSender, *manualClock) {
	t.Helper()

	store := NewSessionStore()
	store.install(domain.NewSession(testRoom, "g-1", "一心一意", testStart))
	sender := &recordingSender{}
	clock := newManualClock()

	names := mocks.NewMockNameResolver(t)
	names.On("DisplayName", mock.Anything, mock.Anything).Return("小红", nil).Maybe()

	return NewNotifier(store, sender, names, clock, 5*time.Second, zerolog.Nop()), store, sender, clock
}

func TestNotifierCooldownPerPlayer(t *testing.T) {
	t.Parallel()
	notifier, _, sender, clock := newNotifierFixture(t)
	ctx := context.Background()

	assert.True(t, notifier.Notify(ctx, testRoom, "p1", "输入太短", "一心一意"))
	assert.Equal(t, "❌ 小红，输入太短\n当前成语：一心一意", sender.Last(t))

	clock.Advance(5 * time.Second)
	assert.False(t, notifier.Notify(ctx, testRoom, "p1", "输入太长", "一心一意"))
	assert.True(t, notifier.Notify(ctx, testRoom, "p2", "输入太长", "一心一意"))

	clock.Advance(time.Second)
	assert.True(t, notifier.Notify(ctx, testRoom, "p1", "输入太长", "一心一意"))
	assert.Len(t, sender.Messages(), 3)
}

func TestNotifierIgnoresRoomsWithoutGame(t *testing.T) {
	t.Parallel()
	notifier, store, sender, _ := newNotifierFixture(t)

	assert.False(t, notifier.Notify(context.Background(), "other@chatroom", "p1", "输入太短", "一心一意"))
	assert.Empty(t, sender.Messages())
	assert.Equal(t, 0, store.noticeRooms())
}

func TestNotifierLedgerClearedOnNewGame(t *testing.T) {
	t.Parallel()
	notifier, store, _, _ := newNotifierFixture(t)
	ctx := context.Background()

	assert.True(t, notifier.Notify(ctx, testRoom, "p1", "输入太短", "一心一意"))
	store.install(domain.NewSession(testRoom, "g-2", "马到成功", testStart))

	assert.True(t, notifier.Notify(ctx, testRoom, "p1", "输入太短", "马到成功"))
}
