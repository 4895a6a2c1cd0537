package models

import "time"

// LogKind tags a notification record.
type LogKind string

const (
	LogDetected    LogKind = "detected"
	LogPunished    LogKind = "punished"
	LogReverted    LogKind = "reverted"
	LogWhitelisted LogKind = "whitelisted"
	LogError       LogKind = "error"
)

// Record is the structured notice emitted to a guild's log channel.
type Record struct {
	IncidentID string
	Kind       LogKind
	GuildID    string
	Actor      *Actor
	Action     ActionType
	Target     string
	Punishment PunishmentKind
	Reason     string
	Count      uint
	Limit      uint
	RolesSaved int
	Err        string
	Timestamp  time.Time
}
