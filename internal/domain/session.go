package domain

import (
	"sort"
	"time"
)

type RoomID string

type PlayerID string

// Points configures how a successful link is scored.
type Points struct {
	Base  int
	Bonus int
}

// Award is the result of a single accepted link.
type Award struct {
	Player PlayerID
	Base   int
	Bonus  int
	Streak int
}

func (a Award) Total() int {
	return a.Base + a.Bonus
}

// Session is the live state of one game in one room.
type Session struct {
	RoomID         RoomID
	GameID         string
	CurrentIdiom   string
	LastPlayer     PlayerID
	Active         bool
	ReminderSent   bool
	Scores         map[PlayerID]int
	Streaks        map[PlayerID]int
	SuccessCounts  map[PlayerID]int
	PlayerOrder    []PlayerID
	UsedIdioms     []string
	StartedAt      time.Time
	LastActivityAt time.Time
}

func NewSession(room RoomID, gameID, firstIdiom string, now time.Time) *Session {
	return &Session{
		RoomID:         room,
		GameID:         gameID,
		CurrentIdiom:   firstIdiom,
		Active:         true,
		Scores:         map[PlayerID]int{},
		Streaks:        map[PlayerID]int{},
		SuccessCounts:  map[PlayerID]int{},
		UsedIdioms:     []string{firstIdiom},
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// ApplySuccess records an accepted submission followed by the oracle's reply
// idiom. The previous player's streak is broken when someone else links.
func (s *Session) ApplySuccess(player PlayerID, submitted, next string, points Points, now time.Time) Award {
	s.Normalize()

	if s.LastPlayer != "" && s.LastPlayer != player {
		s.Streaks[s.LastPlayer] = 0
	}
	if _, seen := s.Scores[player]; !seen {
		s.PlayerOrder = append(s.PlayerOrder, player)
	}

	streak := s.Streaks[player] + 1
	award := Award{Player: player, Base: points.Base, Streak: streak}
	if streak > 1 {
		award.Bonus = (streak - 1) * points.Bonus
	}

	s.Streaks[player] = streak
	s.Scores[player] += award.Total()
	s.SuccessCounts[player]++
	s.LastPlayer = player
	s.UsedIdioms = append(s.UsedIdioms, submitted, next)
	s.CurrentIdiom = next
	s.LastActivityAt = now
	s.ReminderSent = false

	return award
}

func (s *Session) HasUsed(idiom string) bool {
	for _, used := range s.UsedIdioms {
		if used == idiom {
			return true
		}
	}

	return false
}

// RoundsCompleted counts each player link plus oracle reply as one round.
func (s *Session) RoundsCompleted() int {
	return len(s.UsedIdioms) / 2
}

func (s *Session) Participants() int {
	return len(s.Scores)
}

func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) >= timeout
}

// Normalize repairs maps and player order on sessions built outside NewSession.
func (s *Session) Normalize() {
	if s.Scores == nil {
		s.Scores = map[PlayerID]int{}
	}
	if s.Streaks == nil {
		s.Streaks = map[PlayerID]int{}
	}
	if s.SuccessCounts == nil {
		s.SuccessCounts = map[PlayerID]int{}
	}

	known := make(map[PlayerID]struct{}, len(s.PlayerOrder))
	order := s.PlayerOrder[:0:0]
	for _, player := range s.PlayerOrder {
		if _, dup := known[player]; dup {
			continue
		}
		if _, ok := s.Scores[player]; !ok {
			continue
		}
		known[player] = struct{}{}
		order = append(order, player)
	}

	var missing []PlayerID
	for player := range s.Scores {
		if _, ok := known[player]; !ok {
			missing = append(missing, player)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	s.PlayerOrder = append(order, missing...)
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Scores = cloneCounts(s.Scores)
	clone.Streaks = cloneCounts(s.Streaks)
	clone.SuccessCounts = cloneCounts(s.SuccessCounts)
	clone.PlayerOrder = append([]PlayerID(nil), s.PlayerOrder...)
	clone.UsedIdioms = append([]string(nil), s.UsedIdioms...)

	return &clone
}

func cloneCounts(in map[PlayerID]int) map[PlayerID]int {
	out := make(map[PlayerID]int, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
