package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/repository"
	"github.com/FIJTeam/eternitycogs/internal/service"
	"github.com/FIJTeam/eternitycogs/internal/verify"

	"github.com/bwmarrin/discordgo"
)

const (
	colorOK    = 0x2ECC71
	colorInfo  = 0x00C8FF
	colorError = 0xFF0000
)

// CommandHandler processes bot prefix commands.
type CommandHandler struct {
	prefix       string
	verifySvc    *service.VerificationService
	settingsRepo *repository.GuildSettingsRepository
}

func NewCommandHandler(
	prefix string,
	verifySvc *service.VerificationService,
	settingsRepo *repository.GuildSettingsRepository,
) *CommandHandler {
	return &CommandHandler{
		prefix:       prefix,
		verifySvc:    verifySvc,
		settingsRepo: settingsRepo,
	}
}

func (h *CommandHandler) HasPrefix(content string) bool {
	return strings.HasPrefix(content, h.prefix)
}

// Handle dispatches a prefix command.
func (h *CommandHandler) Handle(s *discordgo.Session, m *discordgo.MessageCreate) {
	parts := strings.Fields(strings.TrimPrefix(m.Content, h.prefix))
	if len(parts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch strings.ToLower(parts[0]) {
	case "verify":
		token := ""
		if len(parts) > 1 {
			token = parts[1]
		}
		h.cmdVerify(ctx, s, m, token)
	case "tgverify":
		h.handleAdmin(ctx, s, m, parts[1:])
	case "help":
		h.cmdHelp(s, m)
	}
}

// memberRoleGranter grants roles on the member who invoked verification.
type memberRoleGranter struct {
	s       *discordgo.Session
	guildID string
	userID  string
}

func (g *memberRoleGranter) GrantRole(_ context.Context, roleID, reason string) error {
	return g.s.GuildMemberRoleAdd(g.guildID, g.userID, roleID, discordgo.WithAuditLogReason(reason))
}

func (h *CommandHandler) cmdVerify(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, token string) {
	if m.GuildID == "" {
		s.ChannelMessageSend(m.ChannelID, "Verification only works inside a server.")
		return
	}

	// The token is a secret; get the invoking message out of sight first.
	// Deletion failure is logged and ignored, verification proceeds anyway.
	if err := s.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		log.Printf("[discord-bot] could not delete verify message in %s: %v", m.ChannelID, err)
		s.ChannelMessageSend(m.ChannelID,
			"I don't have permission to delete messages here, please remove your token message yourself.")
	}

	hasVerified, hasLiving := false, false
	if m.Member != nil {
		settings, err := h.settingsRepo.Get(ctx, m.GuildID)
		if err == nil {
			for _, r := range m.Member.Roles {
				if r == settings.VerifiedRoleID {
					hasVerified = true
				}
				if r == settings.LivingRoleID {
					hasLiving = true
				}
			}
		}
	}

	granter := &memberRoleGranter{s: s, guildID: m.GuildID, userID: m.Author.ID}
	res, settings, err := h.verifySvc.Verify(ctx, service.VerifyInput{
		GuildID:         m.GuildID,
		DiscordID:       m.Author.ID,
		Token:           token,
		HasVerifiedRole: hasVerified,
		HasLivingRole:   hasLiving,
	}, granter)

	if err != nil {
		h.replyVerifyError(s, m, err)
		return
	}

	mention := m.Author.Mention()
	switch res.Outcome {
	case verify.AlreadyVerified:
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("%s you are already verified.", mention))

	case verify.LinkedAndQualified:
		s.ChannelMessageSend(m.ChannelID,
			fmt.Sprintf("Congratulations %s, your verification is complete.", mention))

	case verify.LinkedButUnqualified:
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf(
			"Congratulations %s, your verification is complete, but you have not yet played %d living minutes as crew (you currently have %d). You can re-verify any time by typing `%sverify`.",
			mention, res.RequiredMinutes, res.LivingMinutes, h.prefix))

	case verify.NoLinkFound:
		desc := fmt.Sprintf(
			"Sorry %s, there is no ckey linked to this Discord account. Go back into the game and generate a one-time token, then run `%sverify <token>`.",
			mention, h.prefix)
		if settings != nil && settings.InstructionsLink != "" {
			desc += fmt.Sprintf(" See %s for details.", settings.InstructionsLink)
		}
		sendErrorEmbed(s, m.ChannelID, "Verification failed", desc)

	case verify.PlayerNotFound:
		sendErrorEmbed(s, m.ChannelID, "Verification failed",
			fmt.Sprintf("Sorry %s, we could not find your player record. Contact an administrator for support.", mention))
	}
}

func (h *CommandHandler) replyVerifyError(s *discordgo.Session, m *discordgo.MessageCreate, err error) {
	switch {
	case errors.Is(err, verify.ErrMissingConfiguration):
		sendErrorEmbed(s, m.ChannelID, "Verification misconfigured",
			"The verification roles are not configured for this server. An administrator needs to set them with `"+h.prefix+"tgverify config role` and `"+h.prefix+"tgverify config livingrole`.")

	case errors.Is(err, verify.ErrCooldown):
		sendErrorEmbed(s, m.ChannelID, "Slow down",
			"You are verifying too often. Wait a minute and try again.")

	case errors.Is(err, verify.ErrConcurrencyLimit):
		sendErrorEmbed(s, m.ChannelID, "Too many verifications right now",
			"Try again in 30 seconds.")
		log.Printf("[discord-bot] concurrency cap hit in guild %s, database backed up?", m.GuildID)

	default:
		log.Printf("[discord-bot] internal error verifying %s in guild %s: %v", m.Author.ID, m.GuildID, err)
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Please try again.")
	}
}

func (h *CommandHandler) cmdHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "Verification bot — commands",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "`" + h.prefix + "verify <token>`", Value: "Link your in-game account using a one-time token and receive your roles"},
			{Name: "`" + h.prefix + "verify`", Value: "Re-run verification with your existing link"},
			{Name: "`" + h.prefix + "tgverify ...`", Value: "Admin commands (whois, discords, deverify, bunker, broken, config)"},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}

func sendErrorEmbed(s *discordgo.Session, channelID, title, description string) {
	s.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorError,
	})
}
