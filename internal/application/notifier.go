package application

import (
	"context"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/rs/zerolog"
)

// Notifier posts rejection tips, at most one per player per room within the
// cooldown window.
type Notifier struct {
	store    *SessionStore
	sender   ports.Sender
	names    ports.NameResolver
	clock    ports.Clock
	cooldown time.Duration
	log      zerolog.Logger
}

func NewNotifier(store *SessionStore, sender ports.Sender, names ports.NameResolver, clock ports.Clock, cooldown time.Duration, log zerolog.Logger) *Notifier {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Notifier{
		store:    store,
		sender:   sender,
		names:    names,
		clock:    clock,
		cooldown: cooldown,
		log:      log,
	}
}

// Notify reports whether the tip was sent.
func (n *Notifier) Notify(ctx context.Context, room domain.RoomID, player domain.PlayerID, tip, current string) bool {
	if !n.store.reserveNotice(room, player, n.clock.Now(), n.cooldown) {
		n.log.Debug().Str("room", string(room)).Str("player", string(player)).Msg("rejection tip suppressed")
		return false
	}

	name := displayName(ctx, n.names, player, n.log)
	if err := n.sender.SendText(ctx, room, rejectionNotice(name, tip, current)); err != nil {
		n.log.Error().Err(err).Str("room", string(room)).Str("player", string(player)).Msg("send rejection tip")
		return false
	}

	return true
}
