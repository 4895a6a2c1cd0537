package models

import (
	"fmt"
	"strings"
)

// PunishmentKind is the closed set of sanctions the engine can apply.
type PunishmentKind uint8

const (
	PunishQuarantine PunishmentKind = iota + 1
	PunishBan
	PunishKick
	PunishTimeout
	PunishWarn
)

// AllPunishments lists every kind in display order.
var AllPunishments = []PunishmentKind{PunishQuarantine, PunishBan, PunishKick, PunishTimeout, PunishWarn}

func (p PunishmentKind) String() string {
	switch p {
	case PunishQuarantine:
		return "quarantine"
	case PunishBan:
		return "ban"
	case PunishKick:
		return "kick"
	case PunishTimeout:
		return "timeout"
	case PunishWarn:
		return "warn"
	default:
		return "unknown"
	}
}

func (p PunishmentKind) Emoji() string {
	switch p {
	case PunishQuarantine:
		return "🚨"
	case PunishBan:
		return "🔨"
	case PunishKick:
		return "👢"
	case PunishTimeout:
		return "⏰"
	default:
		return "⚠️"
	}
}

// ParsePunishment maps a stored or user supplied name to a PunishmentKind.
func ParsePunishment(s string) (PunishmentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quarantine":
		return PunishQuarantine, nil
	case "ban":
		return PunishBan, nil
	case "kick":
		return PunishKick, nil
	case "timeout":
		return PunishTimeout, nil
	case "warn":
		return PunishWarn, nil
	default:
		return 0, fmt.Errorf("unknown punishment %q", s)
	}
}
