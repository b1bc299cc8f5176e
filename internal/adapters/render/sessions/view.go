package sessions

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/idiom-relay/internal/application"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	RoundTimeout time.Duration
	// TopPlayers caps the standings shown per room. Zero shows all.
	TopPlayers int
}

func renderView(rooms []application.RoomStatus, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Idiom Relay Sessions"),
		s.header.Render(fmt.Sprintf("rooms: %d", len(rooms))),
	}

	if len(rooms) == 0 {
		lines = append(lines, s.empty.Render("No games in progress."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, room := range rooms {
		lines = append(lines, s.section.Render(renderRoom(room, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRoom(room application.RoomStatus, opts RenderOptions, s styles) string {
	parts := []string{
		s.room.Render(fmt.Sprintf("%s (game %s)", room.Room, gameLabel(room.GameID))),
		s.detail.Render("current: ") + s.idiom.Render(room.CurrentIdiom),
		s.detail.Render(fmt.Sprintf("rounds: %d  players: %d", room.Rounds, len(room.Standings))),
		timerLine(room, opts, s),
	}

	parts = append(parts, standingLines(room, opts, s)...)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func timerLine(room application.RoomStatus, opts RenderOptions, s styles) string {
	line := s.detail.Render("time left: ")
	if opts.RoundTimeout > 0 {
		fraction := room.Remaining.Seconds() / opts.RoundTimeout.Seconds()
		line += renderProgressBar(fraction, 24, s) + " "
	}
	line += s.detail.Render(formatRemaining(room.Remaining))

	switch {
	case room.Remaining <= 0:
		line += " " + s.warning.Render("[expired]")
	case room.ReminderSent:
		line += " " + s.warning.Render("[reminded]")
	}

	return line
}

func standingLines(room application.RoomStatus, opts RenderOptions, s styles) []string {
	if len(room.Standings) == 0 {
		return []string{s.empty.Render("no successful moves yet")}
	}

	standings := room.Standings
	if opts.TopPlayers > 0 && len(standings) > opts.TopPlayers {
		standings = standings[:opts.TopPlayers]
	}

	lines := make([]string, 0, len(standings))
	for i, standing := range standings {
		line := fmt.Sprintf("%d. %s  %d pts  %d moves", i+1, standing.Player, standing.Score, standing.Successes)
		if standing.Streak > 1 {
			line += fmt.Sprintf("  streak %d", standing.Streak)
		}
		lines = append(lines, s.rank.Render(line))
	}

	return lines
}

func renderProgressBar(fraction float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampFraction(fraction)))
	empty := width - filled

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	return d.Truncate(time.Second).String()
}

func gameLabel(id string) string {
	if strings.TrimSpace(id) == "" {
		return "n/a"
	}

	return id
}
