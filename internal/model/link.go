package model

import "time"

// DiscordLink associates a ckey with a Discord account. A row starts life as an
// unclaimed one-time token (DiscordID empty, Valid false) issued by the game
// server; claiming the token during verification fills in DiscordID and flips
// Valid. At most one valid link exists per ckey and per Discord account.
type DiscordLink struct {
	ID           int64      `json:"id"`
	Ckey         string     `json:"ckey"`
	DiscordID    *string    `json:"discord_id,omitempty"`
	OneTimeToken string     `json:"-"`
	Valid        bool       `json:"valid"`
	CreatedAt    time.Time  `json:"created_at"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
}

// IssueTokenRequest is sent by the game server when a player asks for a
// verification token in game.
type IssueTokenRequest struct {
	Ckey string `json:"ckey"`
}

type IssueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkStatus is returned when the game server checks whether a ckey is linked.
type LinkStatus struct {
	Linked    bool   `json:"linked"`
	DiscordID string `json:"discord_id,omitempty"`
}
