package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testRoom domain.RoomID = "1001@chatroom"

var testStart = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: testStart}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type sentMessage struct {
	Room domain.RoomID
	Text string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(_ context.Context, room domain.RoomID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, sentMessage{Room: room, Text: text})

	return s.err
}

func (s *recordingSender) Messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]sentMessage(nil), s.sent...)
}

func (s *recordingSender) Last(t *testing.T) string {
	t.Helper()
	msgs := s.Messages()
	require.NotEmpty(t, msgs)

	return msgs[len(msgs)-1].Text
}

type countingSaver struct {
	requests atomic.Int32
}

func (s *countingSaver) RequestSave() {
	s.requests.Add(1)
}

type panickingSender struct{}

func (panickingSender) SendText(context.Context, domain.RoomID, string) error {
	panic("transport exploded")
}

type fixture struct {
	engine *Engine
	oracle *mocks.MockOracle
	sender *recordingSender
	clock  *manualClock
	saver  *countingSaver
}

func testSettings() Settings {
	return Settings{
		StartCommands: []string{"成语接龙", "接龙游戏"},
		EndCommands:   []string{"游戏结束"},
		RoundTimeout:  60 * time.Second,
		ReminderLead:  30 * time.Second,
		Mode:          domain.ModeExact,
		LocalCheck:    true,
		Points:        domain.Points{Base: 5, Bonus: 2},
		ErrorCooldown: 5 * time.Second,
		ShowErrorTips: true,
		RoomSuffix:    "@chatroom",
	}
}

func newFixture(t *testing.T, mutate ...func(*Settings, *Deps)) *fixture {
	t.Helper()

	f := &fixture{
		oracle: mocks.NewMockOracle(t),
		sender: &recordingSender{},
		clock:  newManualClock(),
		saver:  &countingSaver{},
	}
	settings := testSettings()
	deps := Deps{
		Oracle: f.oracle,
		Sender: f.sender,
		Clock:  f.clock,
		Saver:  f.saver,
		Logger: zerolog.Nop(),
	}
	for _, fn := range mutate {
		fn(&settings, &deps)
	}

	engine, err := NewEngine(settings, NewSessionStore(), deps)
	require.NoError(t, err)
	f.engine = engine

	return f
}

// started puts a game with first idiom 一心一意 in testRoom.
func (f *fixture) started(t *testing.T) {
	t.Helper()

	f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).
		Return(portsGame("g-1", "一心一意"), nil).Once()
	require.NoError(t, f.engine.Start(context.Background(), testRoom))
}

func (f *fixture) session(t *testing.T) *domain.Session {
	t.Helper()

	var clone *domain.Session
	ok := f.engine.store.view(testRoom, func(s *domain.Session) { clone = s.Clone() })
	require.True(t, ok, "expected an active session")

	return clone
}

var errBoom = errors.New("boom")
