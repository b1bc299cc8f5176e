package ports

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bnema/idiom-relay/internal/domain"
)

type SessionRepository interface {
	LoadAll(ctx context.Context) ([]*domain.Session, error)
	SaveAll(ctx context.Context, sessions []*domain.Session) error
}

// PartialLoadError is returned by LoadAll alongside the sessions that could
// be read when some snapshots were skipped.
type PartialLoadError struct {
	Skipped map[string]error
}

func (e *PartialLoadError) Error() string {
	names := make([]string, 0, len(e.Skipped))
	for name := range e.Skipped {
		names = append(names, name)
	}
	sort.Strings(names)

	return fmt.Sprintf("skipped %d unreadable session snapshot(s): %s", len(e.Skipped), strings.Join(names, ", "))
}
