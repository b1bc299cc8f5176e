package domain

import "sort"

type Standing struct {
	Rank   int
	Player PlayerID
	Value  int
}

// RankByScore orders participants by points, highest first. Ties keep join order.
func RankByScore(s *Session) []Standing {
	return rank(s, s.Scores)
}

// RankByCount orders participants by accepted links, highest first.
func RankByCount(s *Session) []Standing {
	return rank(s, s.SuccessCounts)
}

func rank(s *Session, values map[PlayerID]int) []Standing {
	if s == nil {
		return nil
	}
	s.Normalize()

	standings := make([]Standing, 0, len(s.PlayerOrder))
	for _, player := range s.PlayerOrder {
		standings = append(standings, Standing{Player: player, Value: values[player]})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Value > standings[j].Value
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}

	return standings
}
