package service

import (
	"context"
	"fmt"
	"log"

	"github.com/FIJTeam/eternitycogs/internal/model"
	"github.com/FIJTeam/eternitycogs/internal/verify"
)

// LinkStore is the full link contract the service needs: the resolver's read
// side plus the mutations it requests.
type LinkStore interface {
	verify.TokenLookup
	verify.LinkStore
	RewriteLink(ctx context.Context, token, discordID, ckey string) error
	InvalidateAllForCkey(ctx context.Context, ckey string) error
	AllLinksForCkey(ctx context.Context, ckey string) ([]model.DiscordLink, error)
}

type SettingsStore interface {
	Get(ctx context.Context, guildID string) (*model.GuildSettings, error)
}

// RoleGranter is implemented by the Discord command layer, which owns the bot
// session for the member being verified.
type RoleGranter interface {
	GrantRole(ctx context.Context, roleID, reason string) error
}

// VerificationService wires the resolver to its real collaborators and
// executes the mutations a resolution requests.
type VerificationService struct {
	links    LinkStore
	players  verify.PlayerStore
	settings SettingsStore
	resolver *verify.Resolver
	limiter  *verify.AttemptLimiter
	hub      *EventHub
}

func NewVerificationService(
	links LinkStore,
	players verify.PlayerStore,
	settings SettingsStore,
	limiter *verify.AttemptLimiter,
	hub *EventHub,
) *VerificationService {
	return &VerificationService{
		links:    links,
		players:  players,
		settings: settings,
		resolver: verify.NewResolver(links, links, players),
		limiter:  limiter,
		hub:      hub,
	}
}

type VerifyInput struct {
	GuildID         string
	DiscordID       string
	Token           string
	HasVerifiedRole bool
	HasLivingRole   bool
}

// Verify runs one rate-limited verification attempt end to end: resolve, then
// execute the requested link rewrite and role grants. Settings are returned
// alongside so the caller can build its reply without a second read.
func (s *VerificationService) Verify(ctx context.Context, in VerifyInput, granter RoleGranter) (verify.Resolution, *model.GuildSettings, error) {
	settings, err := s.settings.Get(ctx, in.GuildID)
	if err != nil {
		return verify.Resolution{}, nil, fmt.Errorf("load guild settings: %w", err)
	}

	release, err := s.limiter.Acquire(in.GuildID, in.DiscordID)
	if err != nil {
		return verify.Resolution{}, settings, err
	}
	defer release()

	res, err := s.resolver.Resolve(ctx, verify.Request{
		DiscordID:       in.DiscordID,
		Token:           in.Token,
		HasVerifiedRole: in.HasVerifiedRole,
		HasLivingRole:   in.HasLivingRole,
		Settings: verify.Settings{
			MinLivingMinutes: settings.MinLivingMinutes,
			VerifiedRoleID:   settings.VerifiedRoleID,
			LivingRoleID:     settings.LivingRoleID,
		},
	})
	if err != nil {
		return verify.Resolution{}, settings, err
	}

	log.Printf("[verify] attempt from %s in guild %s: outcome=%s ckey=%s",
		in.DiscordID, in.GuildID, res.Outcome, res.Ckey)

	// The rewrite comes first: roles must never be granted for a link that
	// failed to persist.
	if res.Effects.RewriteLink {
		if err := s.links.RewriteLink(ctx, in.Token, in.DiscordID, res.Ckey); err != nil {
			return verify.Resolution{}, settings, fmt.Errorf("rewrite link: %w", err)
		}
	}
	if res.Effects.GrantVerifiedRole {
		if err := granter.GrantRole(ctx, settings.VerifiedRoleID, "User has verified in game"); err != nil {
			return verify.Resolution{}, settings, fmt.Errorf("grant verified role: %w", err)
		}
	}
	if res.Effects.GrantLivingRole {
		if err := granter.GrantRole(ctx, settings.LivingRoleID, "User has verified against their in-game living minutes"); err != nil {
			return verify.Resolution{}, settings, fmt.Errorf("grant living role: %w", err)
		}
	}

	if res.Effects.Mutates() && s.hub != nil {
		s.hub.Broadcast(&model.WSEvent{
			Type:      model.EventVerification,
			GuildID:   in.GuildID,
			DiscordID: in.DiscordID,
			Ckey:      res.Ckey,
			Outcome:   res.Outcome.String(),
		})
	}

	return res, settings, nil
}

// Whois returns the valid link for a Discord account, or nil.
func (s *VerificationService) Whois(ctx context.Context, discordID string) (*model.DiscordLink, error) {
	return s.links.FindValidLinkByDiscordID(ctx, discordID)
}

// LinkedAccounts lists every Discord account a ckey has ever verified with.
func (s *VerificationService) LinkedAccounts(ctx context.Context, ckey string) ([]model.DiscordLink, error) {
	return s.links.AllLinksForCkey(ctx, verify.NormalizeCkey(ckey))
}

// Deverify drops every valid link for the ckey linked to a Discord account.
// Returns false when the account has no link to begin with.
func (s *VerificationService) Deverify(ctx context.Context, guildID, discordID string) (bool, error) {
	link, err := s.links.FindValidLinkByDiscordID(ctx, discordID)
	if err != nil {
		return false, err
	}
	if link == nil {
		return false, nil
	}
	if err := s.links.InvalidateAllForCkey(ctx, link.Ckey); err != nil {
		return false, err
	}
	if s.hub != nil {
		s.hub.Broadcast(&model.WSEvent{
			Type:      model.EventDeverify,
			GuildID:   guildID,
			DiscordID: discordID,
			Ckey:      link.Ckey,
		})
	}
	return true, nil
}
