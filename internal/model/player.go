package model

import "time"

// Player is the per-ckey record pushed by the game server. LivingMinutes is
// the total time played as a living crew member, the gate for the qualified
// verification role.
type Player struct {
	Ckey          string    `json:"ckey"`
	LivingMinutes int       `json:"living_minutes"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PlaytimeRequest is sent by the game server after each round to update a
// player's accumulated living minutes.
type PlaytimeRequest struct {
	Ckey          string `json:"ckey"`
	LivingMinutes int    `json:"living_minutes"`
}
