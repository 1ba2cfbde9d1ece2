package discord

import (
	"log"

	"github.com/FIJTeam/eternitycogs/internal/repository"
	"github.com/FIJTeam/eternitycogs/internal/service"

	"github.com/bwmarrin/discordgo"
)

// Bot manages the Discord bot lifecycle and command dispatch.
type Bot struct {
	session  *discordgo.Session
	commands *CommandHandler
}

// NewBot creates and configures a new Discord bot. A missing token disables
// the bot without failing startup, so the HTTP API can run alone.
func NewBot(
	token string,
	prefix string,
	verifySvc *service.VerificationService,
	settingsRepo *repository.GuildSettingsRepository,
) (*Bot, error) {
	if token == "" {
		log.Println("[discord-bot] No bot token configured, bot disabled")
		return nil, nil
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	commands := NewCommandHandler(prefix, verifySvc, settingsRepo)

	bot := &Bot{
		session:  s,
		commands: commands,
	}

	s.AddHandler(bot.onMessageCreate)
	s.AddHandler(bot.onGuildMemberAdd)

	return bot, nil
}

// Start opens the Discord gateway connection.
func (b *Bot) Start() error {
	if b == nil || b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return err
	}
	log.Println("[discord-bot] Bot connected to Discord")
	return nil
}

// Stop closes the Discord gateway connection.
func (b *Bot) Stop() {
	if b == nil || b.session == nil {
		return
	}
	_ = b.session.Close()
	log.Println("[discord-bot] Bot disconnected")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if len(m.Content) == 0 || !b.commands.HasPrefix(m.Content) {
		return
	}
	b.commands.Handle(s, m)
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.commands.HandleMemberJoin(s, m)
}
