package domain

import "strings"

// MatchMode is forwarded to the oracle untouched. Only "exact" is
// understood locally, every other value is treated as homophone matching.
type MatchMode string

const ModeExact MatchMode = "exact"

func ParseMatchMode(raw string) MatchMode {
	mode := strings.TrimSpace(raw)
	if mode == "" {
		return ModeExact
	}

	return MatchMode(mode)
}

func (m MatchMode) ChecksTail() bool {
	return m == ModeExact
}

func (m MatchMode) Label() string {
	if m.ChecksTail() {
		return "相同尾字模式"
	}

	return "同音模式"
}
