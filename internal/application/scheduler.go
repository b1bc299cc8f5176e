package application

import (
	"context"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
)

const DefaultSweepInterval = time.Second

type SweepReport struct {
	Reminded int
	Expired  int
}

type reminder struct {
	room      domain.RoomID
	current   string
	remaining time.Duration
}

// Sweep ends rounds that ran out of time and warns rooms nearing the limit.
func (e *Engine) Sweep(ctx context.Context) SweepReport {
	now := e.clock.Now()
	timeout := e.settings.RoundTimeout

	var reminders []reminder
	expired := e.store.sweep(func(s *domain.Session) bool {
		if s.Expired(now, timeout) {
			return true
		}

		remaining := timeout - now.Sub(s.LastActivityAt)
		if remaining <= e.settings.ReminderLead && !s.ReminderSent {
			s.ReminderSent = true
			reminders = append(reminders, reminder{room: s.RoomID, current: s.CurrentIdiom, remaining: remaining})
		}

		return false
	})

	for _, r := range reminders {
		e.log.Debug().Str("room", string(r.room)).Dur("remaining", r.remaining).Msg("sending timeout reminder")
		e.send(ctx, r.room, reminderNotice(r.current, r.remaining))
	}

	for _, session := range expired {
		if err := e.finish(ctx, session, endTimeout); err != nil {
			e.log.Error().Err(err).Str("room", string(session.RoomID)).Msg("end timed out game")
			e.log.Warn().Str("room", string(session.RoomID)).Msg("forcing session cleanup")
			e.store.purge(session)
		}
	}

	if len(reminders) > 0 || len(expired) > 0 {
		e.saver.RequestSave()
	}

	return SweepReport{Reminded: len(reminders), Expired: len(expired)}
}

// Scheduler drives Sweep on a fixed period.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
}

func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Scheduler{engine: engine, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.engine.log.Error().Interface("panic", r).Msg("sweep panicked")
		}
	}()

	report := s.engine.Sweep(ctx)
	if report.Reminded > 0 || report.Expired > 0 {
		s.engine.log.Debug().Int("reminded", report.Reminded).Int("expired", report.Expired).Msg("sweep finished")
	}
}
