package discord

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/bwmarrin/discordgo"
)

// HandleMemberJoin sends the configured greeting to the welcome channel when
// someone joins. A missing or unconfigured channel is logged and skipped,
// never an error.
func (h *CommandHandler) HandleMemberJoin(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.GuildID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	settings, err := h.settingsRepo.Get(ctx, m.GuildID)
	if err != nil {
		log.Printf("[discord-bot] could not load settings for guild %s on member join: %v", m.GuildID, err)
		return
	}
	if settings.WelcomeChannelID == "" {
		return
	}

	guildName := m.GuildID
	if guild, err := s.State.Guild(m.GuildID); err == nil {
		guildName = guild.Name
	}

	msg := composeGreeting(settings, m.User.Mention(), guildName)
	if msg == "" {
		return
	}

	if _, err := s.ChannelMessageSend(settings.WelcomeChannelID, msg); err != nil {
		log.Printf("[discord-bot] could not send welcome message to channel %s in guild %s: %v",
			settings.WelcomeChannelID, m.GuildID, err)
	}
}

// composeGreeting picks the greeting for the guild's current state and fills
// in the {member} and {guild} placeholders. The bunker warning is appended
// only when the bunker flag is on and a warning is configured.
func composeGreeting(settings *model.GuildSettings, memberMention, guildName string) string {
	msg := settings.WelcomeGreeting
	if settings.Disabled {
		msg = settings.DisabledGreeting
	}

	msg = strings.ReplaceAll(msg, "{member}", memberMention)
	msg = strings.ReplaceAll(msg, "{guild}", guildName)

	if settings.Bunker && settings.BunkerWarning != "" {
		if msg != "" {
			msg += " "
		}
		msg += settings.BunkerWarning
	}
	return msg
}
