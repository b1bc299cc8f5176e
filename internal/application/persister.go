package application

import (
	"context"
	"fmt"

	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/rs/zerolog"
)

// Persister writes store snapshots in the background. Save requests made
// while a write is pending collapse into a single write.
type Persister struct {
	repo     ports.SessionRepository
	store    *SessionStore
	log      zerolog.Logger
	requests chan struct{}
}

var _ SaveRequester = (*Persister)(nil)

func NewPersister(repo ports.SessionRepository, store *SessionStore, log zerolog.Logger) *Persister {
	return &Persister{
		repo:     repo,
		store:    store,
		log:      log,
		requests: make(chan struct{}, 1),
	}
}

func (p *Persister) RequestSave() {
	select {
	case p.requests <- struct{}{}:
	default:
	}
}

// Run flushes on request until ctx is cancelled. Pending requests are
// flushed once more on the way out.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			select {
			case <-p.requests:
				_ = p.Flush(context.WithoutCancel(ctx))
			default:
			}
			return nil
		case <-p.requests:
			_ = p.Flush(ctx)
		}
	}
}

// Flush writes every active session now.
func (p *Persister) Flush(ctx context.Context) error {
	sessions := p.store.Snapshot()
	if err := p.repo.SaveAll(ctx, sessions); err != nil {
		p.log.Error().Err(err).Int("sessions", len(sessions)).Msg("persist sessions")
		return fmt.Errorf("save sessions: %w", err)
	}
	p.log.Debug().Int("sessions", len(sessions)).Msg("sessions persisted")

	return nil
}
