package model

import "time"

// Event types broadcast on the ops feed.
const (
	EventVerification = "verification"
	EventDeverify     = "deverify"
	EventTokenIssued  = "token_issued"
)

// WSEvent is a single message on the ops websocket feed.
type WSEvent struct {
	Type      string    `json:"type"`
	GuildID   string    `json:"guild_id,omitempty"`
	DiscordID string    `json:"discord_id,omitempty"`
	Ckey      string    `json:"ckey,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	At        time.Time `json:"at"`
}
