package domain

import (
	"unicode/utf8"
)

const (
	MinIdiomRunes = 2
	MaxIdiomRunes = 10
)

type RejectionReason string

const (
	RejectTooShort     RejectionReason = "too_short"
	RejectTooLong      RejectionReason = "too_long"
	RejectTailMismatch RejectionReason = "tail_mismatch"
	RejectAlreadyUsed  RejectionReason = "already_used"
	RejectNotIdiom     RejectionReason = "not_idiom"
	RejectOracle       RejectionReason = "oracle"
)

// Rejection explains why a submission was refused. Required carries the
// rune the submission had to start with for tail mismatches.
type Rejection struct {
	Reason   RejectionReason
	Required rune
	Message  string
}

// Rules are the local checks run before the oracle is consulted.
type Rules struct {
	Mode        MatchMode
	LocalCheck  bool
	AllowRepeat bool
}

// CheckSubmission runs the local checks in order and stops at the first failure.
func CheckSubmission(s *Session, text string, rules Rules) *Rejection {
	switch n := utf8.RuneCountInString(text); {
	case n < MinIdiomRunes:
		return &Rejection{Reason: RejectTooShort}
	case n > MaxIdiomRunes:
		return &Rejection{Reason: RejectTooLong}
	}

	if rules.LocalCheck && rules.Mode.ChecksTail() {
		if tail, ok := LastRune(s.CurrentIdiom); ok {
			if head, _ := utf8.DecodeRuneInString(text); head != tail {
				return &Rejection{Reason: RejectTailMismatch, Required: tail}
			}
		}
	}

	if !rules.AllowRepeat && s.HasUsed(text) {
		return &Rejection{Reason: RejectAlreadyUsed}
	}

	return nil
}

func LastRune(text string) (rune, bool) {
	if text == "" {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(text)

	return r, r != utf8.RuneError
}
