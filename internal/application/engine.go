package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/rs/zerolog"
)

var ErrInvalidSettings = errors.New("invalid engine settings")

// Settings is the immutable game configuration the engine runs with.
type Settings struct {
	StartCommands []string
	EndCommands   []string
	RoundTimeout  time.Duration
	ReminderLead  time.Duration
	Mode          domain.MatchMode
	AllowRepeat   bool
	LocalCheck    bool
	Points        domain.Points
	ErrorCooldown time.Duration
	ShowErrorTips bool
	RoomSuffix    string
}

func (s Settings) validate() error {
	switch {
	case len(s.StartCommands) == 0:
		return fmt.Errorf("%w: no start commands", ErrInvalidSettings)
	case s.RoundTimeout <= 0:
		return fmt.Errorf("%w: round timeout must be positive", ErrInvalidSettings)
	case s.ReminderLead < 0 || s.ReminderLead >= s.RoundTimeout:
		return fmt.Errorf("%w: reminder lead must be within the round timeout", ErrInvalidSettings)
	case s.Points.Base < 0 || s.Points.Bonus < 0:
		return fmt.Errorf("%w: points must not be negative", ErrInvalidSettings)
	}

	return nil
}

func (s Settings) rules() domain.Rules {
	return domain.Rules{Mode: s.Mode, LocalCheck: s.LocalCheck, AllowRepeat: s.AllowRepeat}
}

// SaveRequester is told whenever session state changed and should be
// written out. Implementations must not block.
type SaveRequester interface {
	RequestSave()
}

type noopSaver struct{}

func (noopSaver) RequestSave() {}

// Deps are the collaborators the engine talks to. Names, Ledger and Saver
// are optional.
type Deps struct {
	Oracle ports.Oracle
	Sender ports.Sender
	Names  ports.NameResolver
	Ledger ports.PointsLedger
	Saver  SaveRequester
	Clock  ports.Clock
	Logger zerolog.Logger
}

// Outcome reports what a submission ended up doing.
type Outcome string

const (
	OutcomeIgnored      Outcome = "ignored"
	OutcomeRejected     Outcome = "rejected"
	OutcomeAccepted     Outcome = "accepted"
	OutcomeStale        Outcome = "stale"
	OutcomeOracleFailed Outcome = "oracle_failed"
)

type Engine struct {
	settings Settings
	store    *SessionStore
	oracle   ports.Oracle
	sender   ports.Sender
	names    ports.NameResolver
	ledger   ports.PointsLedger
	saver    SaveRequester
	clock    ports.Clock
	notifier *Notifier
	log      zerolog.Logger
}

func NewEngine(settings Settings, store *SessionStore, deps Deps) (*Engine, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if deps.Oracle == nil || deps.Sender == nil {
		return nil, fmt.Errorf("%w: oracle and sender are required", ErrInvalidSettings)
	}
	if store == nil {
		store = NewSessionStore()
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Saver == nil {
		deps.Saver = noopSaver{}
	}
	if settings.Mode == "" {
		settings.Mode = domain.ModeExact
	}

	e := &Engine{
		settings: settings,
		store:    store,
		oracle:   deps.Oracle,
		sender:   deps.Sender,
		names:    deps.Names,
		ledger:   deps.Ledger,
		saver:    deps.Saver,
		clock:    deps.Clock,
		log:      deps.Logger,
	}
	e.notifier = NewNotifier(store, deps.Sender, deps.Names, deps.Clock, settings.ErrorCooldown, deps.Logger)

	return e, nil
}

func (e *Engine) Store() *SessionStore {
	return e.store
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// HandleMessage routes one inbound chat message. Failures are logged and
// never escape, so one room cannot take down another.
func (e *Engine) HandleMessage(ctx context.Context, msg ports.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Str("room", string(msg.RoomID)).Interface("panic", r).Msg("message handler panicked")
		}
	}()

	if !e.isGroupRoom(msg.RoomID) {
		return
	}

	content := strings.TrimSpace(msg.Content)
	switch {
	case contains(e.settings.StartCommands, content):
		_ = e.Start(ctx, msg.RoomID)
	case contains(e.settings.EndCommands, content) && e.store.HasActive(msg.RoomID):
		e.End(ctx, msg.RoomID)
	case e.store.HasActive(msg.RoomID):
		e.Submit(ctx, msg.RoomID, msg.SenderID, content)
	}
}

// Start begins a new game in room, ending any game already running there.
func (e *Engine) Start(ctx context.Context, room domain.RoomID) error {
	if previous, ok := e.store.detach(room); ok {
		e.log.Info().Str("room", string(room)).Str("game_id", previous.GameID).Msg("restarting running game")
		e.saver.RequestSave()
		e.send(ctx, room, restartNotice)
	}

	game, err := e.oracle.Start(ctx, e.settings.Mode)
	if err == nil && (game.GameID == "" || game.FirstIdiom == "") {
		err = fmt.Errorf("%w: start response is missing fields", domain.ErrOracleRejected)
	}
	if err != nil {
		e.log.Error().Err(err).Str("room", string(room)).Msg("start game")
		e.send(ctx, room, startFailedNotice)
		return fmt.Errorf("start game: %w", err)
	}

	session := domain.NewSession(room, game.GameID, game.FirstIdiom, e.clock.Now())
	if displaced := e.store.install(session); displaced != nil {
		e.log.Warn().Str("room", string(room)).Str("game_id", displaced.GameID).Msg("concurrent start replaced a game")
	}
	e.saver.RequestSave()

	e.log.Info().Str("room", string(room)).Str("game_id", game.GameID).Str("idiom", game.FirstIdiom).Msg("game started")
	e.send(ctx, room, startNotice(e.settings, game.FirstIdiom))

	return nil
}

// Submit handles one attempt to extend the chain.
func (e *Engine) Submit(ctx context.Context, room domain.RoomID, player domain.PlayerID, text string) Outcome {
	text = strings.TrimSpace(text)

	var (
		session   *domain.Session
		gameID    string
		current   string
		rejection *domain.Rejection
	)
	found := e.store.view(room, func(s *domain.Session) {
		session = s
		gameID = s.GameID
		current = s.CurrentIdiom
		rejection = domain.CheckSubmission(s, text, e.settings.rules())
	})
	if !found {
		return OutcomeIgnored
	}
	if rejection != nil {
		e.notifier.Notify(ctx, room, player, localTip(*rejection, text), current)
		return OutcomeRejected
	}

	verdict, err := e.oracle.Submit(ctx, gameID, text)
	if err != nil {
		e.log.Error().Err(err).Str("room", string(room)).Str("game_id", gameID).Str("idiom", text).Msg("submit idiom")
		return OutcomeOracleFailed
	}
	if !verdict.Accepted || verdict.NextIdiom == "" {
		if e.settings.ShowErrorTips {
			message := verdict.Message
			if message == "" {
				message = defaultFailureTip
			}
			e.notifier.Notify(ctx, room, player, localTip(classifyOracleMessage(message, current), text), current)
		}
		return OutcomeRejected
	}

	var award domain.Award
	applied := e.store.mutate(room, session, func(s *domain.Session) bool {
		if s.CurrentIdiom != current {
			return false
		}
		if !e.settings.AllowRepeat && s.HasUsed(text) {
			return false
		}
		award = s.ApplySuccess(player, text, verdict.NextIdiom, e.settings.Points, e.clock.Now())
		return true
	})
	if !applied {
		e.log.Debug().Str("room", string(room)).Str("player", string(player)).Str("idiom", text).Msg("discarding stale verdict")
		return OutcomeStale
	}
	e.saver.RequestSave()

	e.awardPoints(ctx, player, award.Total())
	name := displayName(ctx, e.names, player, e.log)
	e.log.Info().Str("room", string(room)).Str("player", string(player)).Str("idiom", text).Str("next", verdict.NextIdiom).Msg("link accepted")
	e.send(ctx, room, successNotice(name, text, verdict.NextIdiom, award))

	return OutcomeAccepted
}

// End stops the room's game and posts the final standings. It reports
// whether this call was the one that ended the game.
func (e *Engine) End(ctx context.Context, room domain.RoomID) bool {
	session, ok := e.store.detach(room)
	if !ok {
		e.log.Warn().Str("room", string(room)).Msg("end requested without a running game")
		return false
	}
	e.saver.RequestSave()

	if err := e.finish(ctx, session, endManual); err != nil {
		e.log.Error().Err(err).Str("room", string(room)).Msg("end game")
	}

	return true
}

// Shutdown ends every running game so players see final standings.
func (e *Engine) Shutdown(ctx context.Context) int {
	ended := 0
	for _, snapshot := range e.store.Snapshot() {
		session, ok := e.store.detach(snapshot.RoomID)
		if !ok {
			continue
		}
		if err := e.finish(ctx, session, endShutdown); err != nil {
			e.log.Error().Err(err).Str("room", string(session.RoomID)).Msg("end game on shutdown")
		}
		ended++
	}
	if ended > 0 {
		e.saver.RequestSave()
	}

	return ended
}

// Restore reinstalls persisted sessions that are still fresh enough to
// resume.
func (e *Engine) Restore(ctx context.Context, repo ports.SessionRepository) (int, error) {
	sessions, err := repo.LoadAll(ctx)
	if err != nil {
		var partial *ports.PartialLoadError
		if !errors.As(err, &partial) {
			return 0, fmt.Errorf("load sessions: %w", err)
		}
		e.log.Warn().Err(err).Msg("some session snapshots were skipped")
	}

	now := e.clock.Now()
	maxIdle := 2 * e.settings.RoundTimeout
	restored := 0
	for _, session := range sessions {
		if session == nil || !session.Active {
			continue
		}
		if now.Sub(session.LastActivityAt) > maxIdle {
			e.log.Debug().Str("room", string(session.RoomID)).Msg("dropping expired session snapshot")
			continue
		}
		session.Normalize()
		e.store.install(session)
		restored++
	}

	e.log.Info().Int("restored", restored).Int("loaded", len(sessions)).Msg("sessions restored")

	return restored, nil
}

// finish posts the closing notice for a session that has already been
// detached. The session and its notice ledger are purged no matter what.
func (e *Engine) finish(ctx context.Context, session *domain.Session, reason endReason) (err error) {
	defer e.store.purge(session)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("end game panicked: %v", r)
		}
	}()

	summary := endSummary{
		Reason:       reason,
		Duration:     e.clock.Now().Sub(session.StartedAt),
		Participants: session.Participants(),
		Rounds:       session.RoundsCompleted(),
		StartCommand: e.settings.StartCommands[0],
	}
	if summary.Participants > 0 {
		summary.ByCount = e.resolveStandings(ctx, domain.RankByCount(session))
		summary.ByScore = e.resolveStandings(ctx, domain.RankByScore(session))
	}

	e.log.Info().
		Str("room", string(session.RoomID)).
		Str("game_id", session.GameID).
		Str("reason", string(reason)).
		Dur("duration", summary.Duration).
		Msg("game ended")

	if err := e.sender.SendText(ctx, session.RoomID, endNotice(summary)); err != nil {
		return fmt.Errorf("send end notice: %w", err)
	}

	return nil
}

func (e *Engine) resolveStandings(ctx context.Context, standings []domain.Standing) []scoreLine {
	names := make(map[domain.PlayerID]string, len(standings))
	lines := make([]scoreLine, 0, len(standings))
	for _, standing := range standings {
		name, ok := names[standing.Player]
		if !ok {
			name = displayName(ctx, e.names, standing.Player, e.log)
			names[standing.Player] = name
		}
		lines = append(lines, scoreLine{Name: name, Value: standing.Value})
	}

	return lines
}

func (e *Engine) awardPoints(ctx context.Context, player domain.PlayerID, amount int) {
	if e.ledger == nil || amount <= 0 {
		return
	}
	if err := e.ledger.Award(ctx, player, amount); err != nil {
		e.log.Error().Err(err).Str("player", string(player)).Int("amount", amount).Msg("award points")
	}
}

func (e *Engine) send(ctx context.Context, room domain.RoomID, text string) {
	if err := e.sender.SendText(ctx, room, text); err != nil {
		e.log.Error().Err(err).Str("room", string(room)).Msg("send notice")
	}
}

func (e *Engine) isGroupRoom(room domain.RoomID) bool {
	if e.settings.RoomSuffix == "" {
		return room != ""
	}

	return strings.HasSuffix(string(room), e.settings.RoomSuffix)
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}

	return false
}

// displayName resolves a player's nickname, falling back to the raw id.
func displayName(ctx context.Context, names ports.NameResolver, player domain.PlayerID, log zerolog.Logger) string {
	if names == nil {
		return string(player)
	}

	name, err := names.DisplayName(ctx, player)
	if err != nil && !errors.Is(err, domain.ErrNoDisplayName) {
		log.Warn().Err(err).Str("player", string(player)).Msg("resolve display name")
	}
	if strings.TrimSpace(name) == "" {
		return string(player)
	}

	return name
}
