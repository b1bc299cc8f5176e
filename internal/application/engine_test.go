package application

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/bnema/idiom-relay/internal/ports/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func portsGame(id, first string) ports.StartedGame {
	return ports.StartedGame{GameID: id, FirstIdiom: first}
}

func accepted(next string) ports.Verdict {
	return ports.Verdict{Accepted: true, NextIdiom: next}
}

func TestNewEngineValidatesSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{name: "no start commands", mutate: func(s *Settings) { s.StartCommands = nil }},
		{name: "zero timeout", mutate: func(s *Settings) { s.RoundTimeout = 0 }},
		{name: "reminder not inside timeout", mutate: func(s *Settings) { s.ReminderLead = s.RoundTimeout }},
		{name: "negative points", mutate: func(s *Settings) { s.Points.Base = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := testSettings()
			tt.mutate(&settings)

			_, err := NewEngine(settings, nil, Deps{Oracle: mocks.NewMockOracle(t), Sender: &recordingSender{}})
			require.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestEngineStartAnnouncesGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.started(t)

	s := f.session(t)
	assert.Equal(t, "g-1", s.GameID)
	assert.Equal(t, "一心一意", s.CurrentIdiom)
	assert.Equal(t, []string{"一心一意"}, s.UsedIdioms)
	assert.True(t, s.Active)

	notice := f.sender.Last(t)
	assert.Contains(t, notice, "🎮 成语接龙游戏开始！(相同尾字模式)")
	assert.Contains(t, notice, "⏱️ 每轮限时 60 秒")
	assert.Contains(t, notice, "🎯 第一个成语：一心一意")
	assert.Contains(t, notice, "📝 发送\"游戏结束\"可以手动结束游戏")
	assert.Contains(t, notice, "不允许使用用过的成语")
	assert.GreaterOrEqual(t, f.saver.requests.Load(), int32(1))
}

func TestEngineStartFailureLeavesNoSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		game ports.StartedGame
		err  error
	}{
		{name: "oracle error", err: domain.ErrOracleRejected},
		{name: "missing first idiom", game: ports.StartedGame{GameID: "g-1"}},
		{name: "missing game id", game: ports.StartedGame{FirstIdiom: "一心一意"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).Return(tt.game, tt.err).Once()

			err := f.engine.Start(context.Background(), testRoom)
			require.Error(t, err)

			assert.False(t, f.engine.store.HasActive(testRoom))
			msgs := f.sender.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, startFailedNotice, msgs[0].Text)
		})
	}
}

func TestEngineStartWhileActiveRestarts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).Return(portsGame("g-2", "马到成功"), nil).Once()
	require.NoError(t, f.engine.Start(context.Background(), testRoom))

	msgs := f.sender.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, restartNotice, msgs[1].Text)
	assert.NotContains(t, msgs[1].Text, "排行榜")
	assert.Equal(t, "g-2", f.session(t).GameID)
	assert.Equal(t, 1, f.engine.store.Len())
}

func TestEngineSubmitLocalRejectionsSkipOracle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		tip  string
	}{
		{name: "too short", text: "意", tip: "输入太短"},
		{name: "too long", text: "意意意意意意意意意意意", tip: "输入太长"},
		{name: "head mismatch", text: "马到成功", tip: "接龙错误，成语必须以\"意\"开头"},
		{name: "already used", text: "一心一意", tip: "\"一心一意\"已经被使用过了，请换一个"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(s *Settings, _ *Deps) {
				if tt.name == "already used" {
					s.Mode = "pinyin"
				}
			})
			f.oracle.EXPECT().Start(mock.Anything, mock.Anything).Return(portsGame("g-1", "一心一意"), nil).Once()
			require.NoError(t, f.engine.Start(context.Background(), testRoom))

			outcome := f.engine.Submit(context.Background(), testRoom, "p1", tt.text)

			assert.Equal(t, OutcomeRejected, outcome)
			assert.Equal(t, "❌ p1，"+tt.tip+"\n当前成语：一心一意", f.sender.Last(t))
			f.oracle.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngineSubmitAcceptedScoresStreak(t *testing.T) {
	t.Parallel()
	ledger := mocks.NewMockPointsLedger(t)
	names := mocks.NewMockNameResolver(t)
	f := newFixture(t, func(_ *Settings, d *Deps) {
		d.Ledger = ledger
		d.Names = names
	})
	f.started(t)

	names.On("DisplayName", mock.Anything, domain.PlayerID("p1")).Return("小明", nil)
	ledger.On("Award", mock.Anything, domain.PlayerID("p1"), 5).Return(nil).Once()
	ledger.On("Award", mock.Anything, domain.PlayerID("p1"), 7).Return(nil).Once()
	ledger.On("Award", mock.Anything, domain.PlayerID("p1"), 9).Return(errBoom).Once()

	chain := []struct{ submit, next string }{
		{"意气风发", "发扬光大"},
		{"大显身手", "手到擒来"},
		{"来日方长", "长驱直入"},
	}
	for _, link := range chain {
		f.oracle.EXPECT().Submit(mock.Anything, "g-1", link.submit).Return(accepted(link.next), nil).Once()
		f.clock.Advance(10 * time.Second)
		require.Equal(t, OutcomeAccepted, f.engine.Submit(context.Background(), testRoom, "p1", link.submit))
	}

	s := f.session(t)
	assert.Equal(t, 21, s.Scores["p1"])
	assert.Equal(t, 3, s.Streaks["p1"])
	assert.Equal(t, 3, s.SuccessCounts["p1"])
	assert.Equal(t, "长驱直入", s.CurrentIdiom)
	assert.Len(t, s.UsedIdioms, 7)
	assert.Equal(t, f.clock.Now(), s.LastActivityAt)

	assert.Equal(t, "✅ 小明 接龙成功！\n🎯 来日方长 ➡️ 长驱直入\n💰 获得 5 积分，连续接龙 3 次，额外奖励 4 积分\n请继续接龙！", f.sender.Last(t))
}

func TestEngineSubmitOracleRejectionMapsTips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		tip     string
	}{
		{name: "head", message: "成语必须以意开头", tip: "接龙错误，成语必须以\"意\"开头"},
		{name: "not idiom", message: "成语不存在", tip: "\"意思意思\"不是成语，请重新输入"},
		{name: "used", message: "该成语已被使用", tip: "\"意思意思\"已经被使用过了，请换一个"},
		{name: "raw message", message: "服务繁忙", tip: "服务繁忙"},
		{name: "empty message", message: "", tip: "接龙失败"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.started(t)
			f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意思意思").
				Return(ports.Verdict{Message: tt.message}, nil).Once()

			outcome := f.engine.Submit(context.Background(), testRoom, "p1", "意思意思")

			assert.Equal(t, OutcomeRejected, outcome)
			assert.Equal(t, "❌ p1，"+tt.tip+"\n当前成语：一心一意", f.sender.Last(t))
			s := f.session(t)
			assert.Empty(t, s.Scores)
			assert.Equal(t, []string{"一心一意"}, s.UsedIdioms)
		})
	}
}

func TestEngineSubmitOracleRejectionSilentWhenTipsDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(s *Settings, _ *Deps) { s.ShowErrorTips = false })
	f.started(t)
	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意思意思").Return(ports.Verdict{Message: "成语不存在"}, nil).Once()

	outcome := f.engine.Submit(context.Background(), testRoom, "p1", "意思意思")

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Len(t, f.sender.Messages(), 1)
}

func TestEngineSubmitOracleFailureIsSilent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)
	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").Return(ports.Verdict{}, errBoom).Once()

	outcome := f.engine.Submit(context.Background(), testRoom, "p1", "意气风发")

	assert.Equal(t, OutcomeOracleFailed, outcome)
	assert.Len(t, f.sender.Messages(), 1)
	assert.Empty(t, f.session(t).Scores)
}

func TestEngineSubmitWithoutGameIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.Equal(t, OutcomeIgnored, f.engine.Submit(context.Background(), testRoom, "p1", "意气风发"))
	assert.Empty(t, f.sender.Messages())
}

func TestEngineSubmitDiscardsVerdictForEndedGame(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").
		Run(func(mock.Arguments) {
			f.engine.End(context.Background(), testRoom)
		}).
		Return(accepted("发扬光大"), nil).Once()

	outcome := f.engine.Submit(context.Background(), testRoom, "p1", "意气风发")

	assert.Equal(t, OutcomeStale, outcome)
	assert.False(t, f.engine.store.HasActive(testRoom))
	assert.Equal(t, 0, f.engine.store.Len())
	assert.Contains(t, f.sender.Last(t), "😢 没有人参与游戏")
}

func TestEngineSubmitDiscardsVerdictWhenTailMoved(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").
		Run(func(mock.Arguments) {
			f.engine.store.view(testRoom, func(s *domain.Session) {
				s.ApplySuccess("p2", "意味深长", "长驱直入", domain.Points{Base: 5}, testStart)
			})
		}).
		Return(accepted("发扬光大"), nil).Once()

	outcome := f.engine.Submit(context.Background(), testRoom, "p1", "意气风发")

	assert.Equal(t, OutcomeStale, outcome)
	s := f.session(t)
	assert.Equal(t, "长驱直入", s.CurrentIdiom)
	assert.NotContains(t, s.Scores, domain.PlayerID("p1"))
}

func TestEngineConcurrentSubmissionsCountOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").Return(accepted("发扬光大"), nil)

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- f.engine.Submit(context.Background(), testRoom, "p1", "意气风发")
		}()
	}
	wg.Wait()
	close(outcomes)

	acceptedCount := 0
	for outcome := range outcomes {
		if outcome == OutcomeAccepted {
			acceptedCount++
		}
	}
	assert.Equal(t, 1, acceptedCount)
	assert.Equal(t, 5, f.session(t).Scores["p1"])
}

func TestEngineEndPostsLeaderboards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").Return(accepted("发扬光大"), nil).Once()
	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "大显身手").Return(accepted("手到擒来"), nil).Once()
	require.Equal(t, OutcomeAccepted, f.engine.Submit(context.Background(), testRoom, "p1", "意气风发"))
	require.Equal(t, OutcomeAccepted, f.engine.Submit(context.Background(), testRoom, "p2", "大显身手"))
	f.clock.Advance(95 * time.Second)

	require.True(t, f.engine.End(context.Background(), testRoom))

	want := strings.Join([]string{
		"🎮 成语接龙游戏结束！",
		"⏱️ 游戏时长: 1分35秒",
		"🔢 共有 2 人参与",
		"📚 共接龙 2 轮",
		"",
		"🔄 接龙次数排行榜：",
		"1. p1: 成功接龙 1 次",
		"2. p2: 成功接龙 1 次",
		"",
		"🏆 积分排行榜：",
		"1. p1: 5 积分",
		"2. p2: 5 积分",
		"",
		"发送 \"成语接龙\" 开始新游戏",
	}, "\n")
	assert.Equal(t, want, f.sender.Last(t))
	assert.Equal(t, 0, f.engine.store.Len())
	assert.Equal(t, 0, f.engine.store.noticeRooms())
}

func TestEngineEndIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.engine.End(context.Background(), testRoom)
		}()
	}
	wg.Wait()
	close(results)

	ended := 0
	for ok := range results {
		if ok {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
	assert.Len(t, f.sender.Messages(), 2)
	assert.False(t, f.engine.store.HasActive(testRoom))
	assert.False(t, f.engine.End(context.Background(), testRoom))
	assert.Len(t, f.sender.Messages(), 2)
}

func TestEngineEndCleansUpWhenSendPanics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.started(t)
	f.engine.sender = panickingSender{}

	assert.NotPanics(t, func() { f.engine.End(context.Background(), testRoom) })
	assert.Equal(t, 0, f.engine.store.Len())
	assert.Equal(t, 0, f.engine.store.noticeRooms())
}

func TestEngineHandleMessageRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.engine.HandleMessage(context.Background(), ports.InboundMessage{RoomID: "wxid_private", SenderID: "p1", Content: "成语接龙"})
	assert.Empty(t, f.sender.Messages())

	f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).Return(portsGame("g-1", "一心一意"), nil).Once()
	f.engine.HandleMessage(context.Background(), ports.InboundMessage{RoomID: testRoom, SenderID: "p1", Content: " 成语接龙 "})
	require.True(t, f.engine.store.HasActive(testRoom))

	f.oracle.EXPECT().Submit(mock.Anything, "g-1", "意气风发").Return(accepted("发扬光大"), nil).Once()
	f.engine.HandleMessage(context.Background(), ports.InboundMessage{RoomID: testRoom, SenderID: "p1", Content: "意气风发"})
	assert.Equal(t, 5, f.session(t).Scores["p1"])

	f.engine.HandleMessage(context.Background(), ports.InboundMessage{RoomID: testRoom, SenderID: "p1", Content: "游戏结束"})
	assert.False(t, f.engine.store.HasActive(testRoom))
	assert.Contains(t, f.sender.Last(t), "🏆 积分排行榜")

	before := len(f.sender.Messages())
	f.engine.HandleMessage(context.Background(), ports.InboundMessage{RoomID: testRoom, SenderID: "p1", Content: "游戏结束"})
	assert.Len(t, f.sender.Messages(), before)
}

func TestEngineShutdownEndsAllGames(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).Return(portsGame("g-1", "一心一意"), nil).Once()
	f.oracle.EXPECT().Start(mock.Anything, domain.ModeExact).Return(portsGame("g-2", "马到成功"), nil).Once()
	require.NoError(t, f.engine.Start(context.Background(), "a@chatroom"))
	require.NoError(t, f.engine.Start(context.Background(), "b@chatroom"))

	ended := f.engine.Shutdown(context.Background())

	assert.Equal(t, 2, ended)
	assert.Equal(t, 0, f.engine.store.Len())
	msgs := f.sender.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2].Text, "🎮 成语接龙游戏结束！")
	assert.Contains(t, msgs[3].Text, "🎮 成语接龙游戏结束！")
}

func TestEngineRestoreDropsStaleSessions(t *testing.T) {
	t.Parallel()
	repo := mocks.NewMockSessionRepository(t)
	f := newFixture(t)
	f.clock.Advance(10 * time.Minute)
	now := f.clock.Now()

	fresh := domain.NewSession("fresh@chatroom", "g-1", "一心一意", now.Add(-2*time.Minute))
	fresh.LastActivityAt = now.Add(-119 * time.Second)
	stale := domain.NewSession("stale@chatroom", "g-2", "马到成功", now.Add(-5*time.Minute))
	stale.LastActivityAt = now.Add(-121 * time.Second)
	inactive := domain.NewSession("old@chatroom", "g-3", "马到成功", now)
	inactive.Active = false

	repo.On("LoadAll", mock.Anything).
		Return([]*domain.Session{fresh, stale, inactive}, &ports.PartialLoadError{Skipped: map[string]error{"x.toml": errBoom}}).Once()

	restored, err := f.engine.Restore(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, 1, restored)
	assert.True(t, f.engine.store.HasActive("fresh@chatroom"))
	assert.False(t, f.engine.store.HasActive("stale@chatroom"))
	assert.False(t, f.engine.store.HasActive("old@chatroom"))
}

func TestEngineRestoreFailsOnRepositoryError(t *testing.T) {
	t.Parallel()
	repo := mocks.NewMockSessionRepository(t)
	f := newFixture(t)
	repo.On("LoadAll", mock.Anything).Return(nil, errBoom).Once()

	_, err := f.engine.Restore(context.Background(), repo)
	require.ErrorIs(t, err, errBoom)
}

func TestDisplayNameFallsBackToID(t *testing.T) {
	t.Parallel()
	names := mocks.NewMockNameResolver(t)
	names.On("DisplayName", mock.Anything, domain.PlayerID("p1")).Return("", errBoom).Once()
	names.On("DisplayName", mock.Anything, domain.PlayerID("p2")).Return("  ", nil).Once()

	assert.Equal(t, "p1", displayName(context.Background(), names, "p1", zerolog.Nop()))
	assert.Equal(t, "p2", displayName(context.Background(), names, "p2", zerolog.Nop()))
	assert.Equal(t, "p3", displayName(context.Background(), nil, "p3", zerolog.Nop()))
}
