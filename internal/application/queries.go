package application

import (
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
)

type RoomStanding struct {
	Player    domain.PlayerID
	Score     int
	Successes int
	Streak    int
}

type RoomStatus struct {
	Room         domain.RoomID
	GameID       string
	CurrentIdiom string
	Rounds       int
	StartedAt    time.Time
	LastActivity time.Time
	Remaining    time.Duration
	ReminderSent bool
	Standings    []RoomStanding
}

// Rooms lists every running game with its time left and score table.
func (e *Engine) Rooms() []RoomStatus {
	return BuildRoomStatuses(e.store.Snapshot(), e.clock.Now(), e.settings.RoundTimeout)
}

func BuildRoomStatuses(sessions []*domain.Session, now time.Time, timeout time.Duration) []RoomStatus {
	statuses := make([]RoomStatus, 0, len(sessions))
	for _, s := range sessions {
		remaining := timeout - now.Sub(s.LastActivityAt)
		if remaining < 0 {
			remaining = 0
		}

		status := RoomStatus{
			Room:         s.RoomID,
			GameID:       s.GameID,
			CurrentIdiom: s.CurrentIdiom,
			Rounds:       s.RoundsCompleted(),
			StartedAt:    s.StartedAt,
			LastActivity: s.LastActivityAt,
			Remaining:    remaining,
			ReminderSent: s.ReminderSent,
		}
		for _, standing := range domain.RankByScore(s) {
			status.Standings = append(status.Standings, RoomStanding{
				Player:    standing.Player,
				Score:     standing.Value,
				Successes: s.SuccessCounts[standing.Player],
				Streak:    s.Streaks[standing.Player],
			})
		}
		statuses = append(statuses, status)
	}

	return statuses
}
