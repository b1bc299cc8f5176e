package ports

import (
	"context"

	"github.com/bnema/idiom-relay/internal/domain"
)

type InboundMessage struct {
	RoomID   domain.RoomID
	SenderID domain.PlayerID
	Content  string
}

type MessageHandler func(ctx context.Context, msg InboundMessage)

type Sender interface {
	SendText(ctx context.Context, room domain.RoomID, text string) error
}

// Inbox delivers inbound chat messages until ctx is cancelled.
type Inbox interface {
	Listen(ctx context.Context, handle MessageHandler) error
}

type NameResolver interface {
	DisplayName(ctx context.Context, player domain.PlayerID) (string, error)
}

type PointsLedger interface {
	Award(ctx context.Context, player domain.PlayerID, amount int) error
}
