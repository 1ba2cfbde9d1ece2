package discord

import (
	"testing"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestComposeGreeting(t *testing.T) {
	base := model.GuildSettings{
		WelcomeGreeting:  "Welcome {member} to {guild}!",
		DisabledGreeting: "Hi {member}, verification is down right now.",
		BunkerWarning:    "The bunker is up, new accounts cannot join rounds.",
	}

	tests := []struct {
		name   string
		mutate func(*model.GuildSettings)
		want   string
	}{
		{
			name:   "normal greeting",
			mutate: func(s *model.GuildSettings) {},
			want:   "Welcome <@1> to Station!",
		},
		{
			name:   "disabled swaps greeting",
			mutate: func(s *model.GuildSettings) { s.Disabled = true },
			want:   "Hi <@1>, verification is down right now.",
		},
		{
			name:   "bunker appends warning",
			mutate: func(s *model.GuildSettings) { s.Bunker = true },
			want:   "Welcome <@1> to Station! The bunker is up, new accounts cannot join rounds.",
		},
		{
			name: "bunker flag without warning text appends nothing",
			mutate: func(s *model.GuildSettings) {
				s.Bunker = true
				s.BunkerWarning = ""
			},
			want: "Welcome <@1> to Station!",
		},
		{
			name: "empty greeting with bunker still warns",
			mutate: func(s *model.GuildSettings) {
				s.WelcomeGreeting = ""
				s.Bunker = true
			},
			want: "The bunker is up, new accounts cannot join rounds.",
		},
		{
			name: "nothing configured",
			mutate: func(s *model.GuildSettings) {
				s.WelcomeGreeting = ""
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			assert.Equal(t, tt.want, composeGreeting(&s, "<@1>", "Station"))
		})
	}
}
