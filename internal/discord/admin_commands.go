package discord

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// handleAdmin dispatches the tgverify admin command group. Requires the
// Manage Server permission (or administrator).
func (h *CommandHandler) handleAdmin(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if m.GuildID == "" {
		s.ChannelMessageSend(m.ChannelID, "Admin commands only work inside a server.")
		return
	}
	if !h.isAdmin(s, m) {
		return
	}
	if len(args) == 0 {
		h.adminHelp(s, m)
		return
	}

	switch strings.ToLower(args[0]) {
	case "whois":
		h.cmdWhois(ctx, s, m)
	case "discords":
		if len(args) < 2 {
			s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify discords <ckey>`")
			return
		}
		h.cmdDiscords(ctx, s, m, args[1])
	case "deverify":
		h.cmdDeverify(ctx, s, m)
	case "bunker":
		h.cmdToggleBunker(ctx, s, m)
	case "broken":
		h.cmdToggleDisabled(ctx, s, m)
	case "test":
		h.cmdTestWelcome(ctx, s, m)
	case "config":
		h.handleConfig(ctx, s, m, args[1:])
	default:
		h.adminHelp(s, m)
	}
}

func (h *CommandHandler) isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	perms, err := s.State.MessagePermissions(m.Message)
	if err != nil {
		perms, err = s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil {
			log.Printf("[discord-bot] permission check failed for %s: %v", m.Author.ID, err)
			return false
		}
	}
	return perms&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}

func (h *CommandHandler) adminHelp(s *discordgo.Session, m *discordgo.MessageCreate) {
	embed := &discordgo.MessageEmbed{
		Title: "tgverify — admin commands",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "`whois @user`", Value: "Show the ckey linked to a Discord user"},
			{Name: "`discords <ckey>`", Value: "List all Discord accounts this ckey has verified with"},
			{Name: "`deverify @user`", Value: "Remove all verifications for the user's linked ckey"},
			{Name: "`bunker`", Value: "Toggle the bunker warning on or off"},
			{Name: "`broken`", Value: "Toggle the verification system off or on"},
			{Name: "`test @user`", Value: "Send the welcome message as if the user just joined"},
			{Name: "`config ...`", Value: "current | minutes | role | livingrole | instructions | channel | greeting | disabledgreeting | bunkerwarning"},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}

func firstMention(m *discordgo.MessageCreate) *discordgo.User {
	for _, u := range m.Mentions {
		if !u.Bot {
			return u
		}
	}
	if len(m.Mentions) > 0 {
		return m.Mentions[0]
	}
	return nil
}

func (h *CommandHandler) cmdWhois(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	user := firstMention(m)
	if user == nil {
		s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify whois @user`")
		return
	}

	link, err := h.verifySvc.Whois(ctx, user.ID)
	if err != nil {
		log.Printf("[discord-bot] whois failed for %s: %v", user.ID, err)
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Please try again.")
		return
	}
	if link == nil {
		s.ChannelMessageSend(m.ChannelID, "That user has no linked ckey.")
		return
	}
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("That user is linked to ckey `%s`.", link.Ckey))
}

func (h *CommandHandler) cmdDiscords(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, ckey string) {
	links, err := h.verifySvc.LinkedAccounts(ctx, ckey)
	if err != nil {
		log.Printf("[discord-bot] discords lookup failed for %s: %v", ckey, err)
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Please try again.")
		return
	}
	if len(links) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No Discord accounts have verified with that ckey.")
		return
	}

	var names strings.Builder
	for _, link := range links {
		current := "no"
		if link.Valid {
			current = "yes"
		}
		fmt.Fprintf(&names, "<@%s> linked on %s, current: %s\n",
			*link.DiscordID, link.CreatedAt.Format("2006-01-02 15:04"), current)
	}
	embed := &discordgo.MessageEmbed{
		Color: colorInfo,
		Author: &discordgo.MessageEmbedAuthor{
			Name: "Discord accounts linked to " + ckey,
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "__Discord accounts__", Value: names.String(), Inline: false},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}

func (h *CommandHandler) cmdDeverify(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	user := firstMention(m)
	if user == nil {
		s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify deverify @user`")
		return
	}

	ok, err := h.verifySvc.Deverify(ctx, m.GuildID, user.ID)
	if err != nil {
		log.Printf("[discord-bot] deverify failed for %s: %v", user.ID, err)
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Please try again.")
		return
	}
	if !ok {
		s.ChannelMessageSend(m.ChannelID, "That user has no linked ckey.")
		return
	}
	s.ChannelMessageSend(m.ChannelID, "User deverified. They will need a new in-game token to verify again.")
}

func (h *CommandHandler) cmdToggleBunker(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	settings, err := h.settingsRepo.Get(ctx, m.GuildID)
	if err == nil {
		err = h.settingsRepo.SetBunker(ctx, m.GuildID, !settings.Bunker)
	}
	if err != nil {
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not toggle the bunker warning.")
		return
	}
	if !settings.Bunker {
		s.ChannelMessageSend(m.ChannelID, "Bunker warning is now ON.")
	} else {
		s.ChannelMessageSend(m.ChannelID, "Bunker warning is now OFF.")
	}
}

func (h *CommandHandler) cmdToggleDisabled(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	settings, err := h.settingsRepo.Get(ctx, m.GuildID)
	if err == nil {
		err = h.settingsRepo.SetDisabled(ctx, m.GuildID, !settings.Disabled)
	}
	if err != nil {
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not toggle the disabled flag.")
		return
	}
	if !settings.Disabled {
		s.ChannelMessageSend(m.ChannelID, "Verification system is now OFF.")
	} else {
		s.ChannelMessageSend(m.ChannelID, "Verification system is now ON.")
	}
}

func (h *CommandHandler) cmdTestWelcome(_ context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	user := firstMention(m)
	if user == nil {
		s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify test @user`")
		return
	}
	member, err := s.GuildMember(m.GuildID, user.ID)
	if err != nil {
		s.ChannelMessageSend(m.ChannelID, "That user is not a member of this server.")
		return
	}
	member.GuildID = m.GuildID
	h.HandleMemberJoin(s, &discordgo.GuildMemberAdd{Member: member})
}

// handleConfig covers the tgverify config subgroup.
func (h *CommandHandler) handleConfig(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		h.adminHelp(s, m)
		return
	}

	sub := strings.ToLower(args[0])
	rest := args[1:]

	switch sub {
	case "current":
		h.cmdConfigCurrent(ctx, s, m)

	case "minutes":
		if len(rest) == 0 {
			if err := h.settingsRepo.SetMinLivingMinutes(ctx, m.GuildID, 0); err != nil {
				sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the minimum living minutes.")
				return
			}
			s.ChannelMessageSend(m.ChannelID, "Minimum living minutes requirement removed.")
			return
		}
		minutes, err := strconv.Atoi(rest[0])
		if err != nil || minutes < 0 {
			s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify config minutes [number]`")
			return
		}
		if err := h.settingsRepo.SetMinLivingMinutes(ctx, m.GuildID, minutes); err != nil {
			sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the minimum living minutes.")
			return
		}
		s.ChannelMessageSend(m.ChannelID,
			fmt.Sprintf("Minimum living minutes required for full verification set to `%d`.", minutes))

	case "role", "livingrole":
		if len(rest) == 0 {
			s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify config "+sub+" <role id or @role>`")
			return
		}
		roleID := parseRoleRef(rest[0])
		if !h.roleExists(s, m.GuildID, roleID) {
			s.ChannelMessageSend(m.ChannelID, "That is not a valid role in this server.")
			return
		}
		var err error
		if sub == "role" {
			err = h.settingsRepo.SetVerifiedRole(ctx, m.GuildID, roleID)
		} else {
			err = h.settingsRepo.SetLivingRole(ctx, m.GuildID, roleID)
		}
		if err != nil {
			sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the role setting.")
			return
		}
		s.ChannelMessageSend(m.ChannelID,
			fmt.Sprintf("Verification will now apply role <@&%s>.", roleID))

	case "instructions":
		if len(rest) == 0 {
			s.ChannelMessageSend(m.ChannelID, "Usage: `"+h.prefix+"tgverify config instructions <link>`")
			return
		}
		if err := h.settingsRepo.SetInstructionsLink(ctx, m.GuildID, rest[0]); err != nil {
			sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the instructions link.")
			return
		}
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Instructions link set to `%s`.", rest[0]))

	case "channel":
		channelID := m.ChannelID
		if len(rest) > 0 {
			channelID = parseChannelRef(rest[0])
		}
		if _, err := s.Channel(channelID); err != nil {
			s.ChannelMessageSend(m.ChannelID, "That is not a channel I can see.")
			return
		}
		if err := h.settingsRepo.SetWelcomeChannel(ctx, m.GuildID, channelID); err != nil {
			sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the welcome channel.")
			return
		}
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("I will now send welcome messages to <#%s>.", channelID))

	case "greeting", "disabledgreeting", "bunkerwarning":
		text := strings.Join(rest, " ")
		var err error
		switch sub {
		case "greeting":
			err = h.settingsRepo.SetWelcomeGreeting(ctx, m.GuildID, text)
		case "disabledgreeting":
			err = h.settingsRepo.SetDisabledGreeting(ctx, m.GuildID, text)
		case "bunkerwarning":
			err = h.settingsRepo.SetBunkerWarning(ctx, m.GuildID, text)
		}
		if err != nil {
			sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not update the message.")
			return
		}
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Message set to: `%s`", text))

	default:
		h.adminHelp(s, m)
	}
}

func (h *CommandHandler) cmdConfigCurrent(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate) {
	settings, err := h.settingsRepo.Get(ctx, m.GuildID)
	if err != nil {
		sendErrorEmbed(s, m.ChannelID, "A system error occurred", "Could not load the settings.")
		return
	}

	display := func(v string) string {
		if v == "" {
			return "not set"
		}
		return v
	}
	embed := &discordgo.MessageEmbed{
		Title: "__Current settings:__",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "min_living_minutes:", Value: strconv.Itoa(settings.MinLivingMinutes), Inline: false},
			{Name: "verified_role:", Value: display(settings.VerifiedRoleID), Inline: false},
			{Name: "verified_living_role:", Value: display(settings.LivingRoleID), Inline: false},
			{Name: "instructions_link:", Value: display(settings.InstructionsLink), Inline: false},
			{Name: "welcome_channel:", Value: display(settings.WelcomeChannelID), Inline: false},
			{Name: "welcome_greeting:", Value: display(settings.WelcomeGreeting), Inline: false},
			{Name: "disabled_greeting:", Value: display(settings.DisabledGreeting), Inline: false},
			{Name: "bunker_warning:", Value: display(settings.BunkerWarning), Inline: false},
			{Name: "bunker:", Value: strconv.FormatBool(settings.Bunker), Inline: false},
			{Name: "disabled:", Value: strconv.FormatBool(settings.Disabled), Inline: false},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}

func (h *CommandHandler) roleExists(s *discordgo.Session, guildID, roleID string) bool {
	if roleID == "" {
		return false
	}
	if r, err := s.State.Role(guildID, roleID); err == nil && r != nil {
		return true
	}
	roles, err := s.GuildRoles(guildID)
	if err != nil {
		return false
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// parseRoleRef accepts a raw snowflake or a <@&id> role mention.
func parseRoleRef(arg string) string {
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<@&"), ">")
	return arg
}

// parseChannelRef accepts a raw snowflake or a <#id> channel mention.
func parseChannelRef(arg string) string {
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<#"), ">")
	return arg
}
