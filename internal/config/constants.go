package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Input bounds enforced at the transport boundary
const (
	MaxPromptLength = 500
	MaxAnswerLength = 500
	MaxNameLength   = 64
)

// MaxVoteTargets is the most answers one ballot may name.
const MaxVoteTargets = 2
