package model

// GuildSettings is the per-guild verification configuration. A guild with no
// stored row gets Defaults(). The two role IDs have no default; verification
// refuses to run until both are configured.
type GuildSettings struct {
	GuildID          string `json:"guild_id"`
	MinLivingMinutes int    `json:"min_living_minutes"`
	VerifiedRoleID   string `json:"verified_role_id"`
	LivingRoleID     string `json:"living_role_id"`
	InstructionsLink string `json:"instructions_link"`
	WelcomeChannelID string `json:"welcome_channel_id"`
	WelcomeGreeting  string `json:"welcome_greeting"`
	DisabledGreeting string `json:"disabled_greeting"`
	BunkerWarning    string `json:"bunker_warning"`
	Bunker           bool   `json:"bunker"`
	Disabled         bool   `json:"disabled"`
}

func DefaultGuildSettings(guildID string) *GuildSettings {
	return &GuildSettings{
		GuildID:          guildID,
		MinLivingMinutes: 60,
	}
}
