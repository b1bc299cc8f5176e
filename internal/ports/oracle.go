package ports

import (
	"context"

	"github.com/bnema/idiom-relay/internal/domain"
)

type StartedGame struct {
	GameID     string
	FirstIdiom string
}

// Verdict is the oracle's answer to a submission. Message carries the
// service's own explanation when Accepted is false.
type Verdict struct {
	Accepted  bool
	NextIdiom string
	Message   string
}

type Oracle interface {
	Start(ctx context.Context, mode domain.MatchMode) (StartedGame, error)
	Submit(ctx context.Context, gameID, idiom string) (Verdict, error)
}
