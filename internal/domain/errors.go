package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrOracleRejected  = errors.New("oracle rejected request")
	ErrNoDisplayName   = errors.New("display name not found")
)
