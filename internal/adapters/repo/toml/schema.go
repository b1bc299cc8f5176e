package toml

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/idiom-relay/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	Session sessionSchema `toml:"session"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported session schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type sessionSchema struct {
	RoomID         string         `toml:"room_id"`
	GameID         string         `toml:"game_id"`
	CurrentIdiom   string         `toml:"current_idiom"`
	LastPlayer     string         `toml:"last_player,omitempty"`
	Active         bool           `toml:"active"`
	ReminderSent   bool           `toml:"reminder_sent"`
	StartedAt      string         `toml:"started_at"`
	LastActivityAt string         `toml:"last_activity_at"`
	UsedIdioms     []string       `toml:"used_idioms"`
	Players        []playerSchema `toml:"players,omitempty"`
}

type playerSchema struct {
	ID        string `toml:"id"`
	Score     int    `toml:"score"`
	Streak    int    `toml:"streak"`
	Successes int    `toml:"successes"`
}

func toSchema(s *domain.Session) fileSchema {
	s = s.Clone()
	s.Normalize()

	players := make([]playerSchema, 0, len(s.PlayerOrder))
	for _, player := range s.PlayerOrder {
		players = append(players, playerSchema{
			ID:        string(player),
			Score:     s.Scores[player],
			Streak:    s.Streaks[player],
			Successes: s.SuccessCounts[player],
		})
	}

	return fileSchema{
		Version: currentSchemaVersion,
		Session: sessionSchema{
			RoomID:         string(s.RoomID),
			GameID:         s.GameID,
			CurrentIdiom:   s.CurrentIdiom,
			LastPlayer:     string(s.LastPlayer),
			Active:         s.Active,
			ReminderSent:   s.ReminderSent,
			StartedAt:      s.StartedAt.UTC().Format(time.RFC3339Nano),
			LastActivityAt: s.LastActivityAt.UTC().Format(time.RFC3339Nano),
			UsedIdioms:     s.UsedIdioms,
			Players:        players,
		},
	}
}

func fromSchema(in sessionSchema) (*domain.Session, error) {
	if in.RoomID == "" || in.GameID == "" || in.CurrentIdiom == "" {
		return nil, errors.New("session snapshot is missing room, game or current idiom")
	}

	startedAt, err := time.Parse(time.RFC3339Nano, in.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	lastActivity, err := time.Parse(time.RFC3339Nano, in.LastActivityAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_activity_at: %w", err)
	}

	s := &domain.Session{
		RoomID:         domain.RoomID(in.RoomID),
		GameID:         in.GameID,
		CurrentIdiom:   in.CurrentIdiom,
		LastPlayer:     domain.PlayerID(in.LastPlayer),
		Active:         in.Active,
		ReminderSent:   in.ReminderSent,
		Scores:         map[domain.PlayerID]int{},
		Streaks:        map[domain.PlayerID]int{},
		SuccessCounts:  map[domain.PlayerID]int{},
		UsedIdioms:     append([]string(nil), in.UsedIdioms...),
		StartedAt:      startedAt,
		LastActivityAt: lastActivity,
	}
	for _, p := range in.Players {
		if p.ID == "" || p.Score < 0 || p.Streak < 0 || p.Successes < 0 {
			return nil, fmt.Errorf("invalid player entry %q", p.ID)
		}
		player := domain.PlayerID(p.ID)
		if _, dup := s.Scores[player]; dup {
			return nil, fmt.Errorf("duplicate player entry %q", p.ID)
		}
		s.Scores[player] = p.Score
		s.Streaks[player] = p.Streak
		s.SuccessCounts[player] = p.Successes
		s.PlayerOrder = append(s.PlayerOrder, player)
	}
	if len(s.UsedIdioms) == 0 {
		s.UsedIdioms = []string{s.CurrentIdiom}
	}

	return s, nil
}
