// Package verify holds the verification state machine. The resolver only
// reads through its ports and reports which mutations the caller must perform,
// so it can be exercised end to end with fakes and no live bot or database.
package verify

import (
	"context"
	"errors"
	"strings"

	"github.com/FIJTeam/eternitycogs/internal/model"
)

// ErrMissingConfiguration aborts resolution before any side effect when the
// guild has not configured both verification roles. Operator error, not a
// user-facing outcome.
var ErrMissingConfiguration = errors.New("verification roles are not configured for this guild")

// Outcome classifies a verification attempt.
type Outcome int

const (
	// AlreadyVerified: the member already holds both roles, nothing to do.
	AlreadyVerified Outcome = iota
	// LinkedAndQualified: linked and past the living-minutes threshold, both
	// roles requested.
	LinkedAndQualified
	// LinkedButUnqualified: linked but short on living minutes. Base role
	// requested, qualified role withheld. Partial success, not an error.
	LinkedButUnqualified
	// NoLinkFound: no usable token and no pre-existing valid link. The user
	// needs to generate a token in game.
	NoLinkFound
	// PlayerNotFound: a ckey was resolved but the game server has never
	// reported that player.
	PlayerNotFound
)

func (o Outcome) String() string {
	switch o {
	case AlreadyVerified:
		return "already_verified"
	case LinkedAndQualified:
		return "linked_and_qualified"
	case LinkedButUnqualified:
		return "linked_but_unqualified"
	case NoLinkFound:
		return "no_link_found"
	case PlayerNotFound:
		return "player_not_found"
	default:
		return "unknown"
	}
}

// Settings is the per-guild snapshot the resolver needs. Taken once per
// attempt; the resolver never reads mutable guild state mid-flight.
type Settings struct {
	MinLivingMinutes int
	VerifiedRoleID   string
	LivingRoleID     string
}

// Request is a single verification attempt.
type Request struct {
	DiscordID       string
	Token           string
	HasVerifiedRole bool
	HasLivingRole   bool
	Settings        Settings
}

// Effects lists the mutations the caller must perform. The resolver itself
// writes nothing.
type Effects struct {
	// RewriteLink: invalidate all valid links for the ckey and for the
	// account, then claim the token. Skipped when reusing an existing link.
	RewriteLink       bool
	GrantVerifiedRole bool
	GrantLivingRole   bool
}

// Resolution is the transient result of one attempt.
type Resolution struct {
	Outcome         Outcome
	Ckey            string
	LivingMinutes   int
	RequiredMinutes int
	Effects         Effects
}

// Mutates reports whether the caller has anything to execute.
func (e Effects) Mutates() bool {
	return e.RewriteLink || e.GrantVerifiedRole || e.GrantLivingRole
}

// TokenLookup resolves a one-time token to a ckey. Empty string when the
// token is unknown, expired or already claimed.
type TokenLookup interface {
	LookupCkeyByToken(ctx context.Context, token string) (string, error)
}

// LinkStore reads the current valid link for a Discord account.
type LinkStore interface {
	FindValidLinkByDiscordID(ctx context.Context, discordID string) (*model.DiscordLink, error)
}

// PlayerStore reads player records by ckey.
type PlayerStore interface {
	GetByCkey(ctx context.Context, ckey string) (*model.Player, error)
}

type Resolver struct {
	tokens  TokenLookup
	links   LinkStore
	players PlayerStore
}

func NewResolver(tokens TokenLookup, links LinkStore, players PlayerStore) *Resolver {
	return &Resolver{tokens: tokens, links: links, players: players}
}

// Resolve runs one verification attempt. It holds no state between calls and
// is safe to invoke concurrently; the at-most-one-valid-link invariant is the
// link store's to enforce when the caller executes Effects.RewriteLink.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	if req.Settings.VerifiedRoleID == "" || req.Settings.LivingRoleID == "" {
		return Resolution{}, ErrMissingConfiguration
	}

	res := Resolution{RequiredMinutes: req.Settings.MinLivingMinutes}

	if req.HasVerifiedRole && req.HasLivingRole {
		res.Outcome = AlreadyVerified
		return res, nil
	}

	var ckey string
	if req.Token != "" {
		var err error
		ckey, err = r.tokens.LookupCkeyByToken(ctx, req.Token)
		if err != nil {
			return Resolution{}, err
		}
	}

	// No token, or a token that didn't match: fall back to an existing valid
	// link for this account.
	preexisting := false
	if ckey == "" {
		link, err := r.links.FindValidLinkByDiscordID(ctx, req.DiscordID)
		if err != nil {
			return Resolution{}, err
		}
		if link == nil || !link.Valid {
			res.Outcome = NoLinkFound
			return res, nil
		}
		preexisting = true
		ckey = link.Ckey
	}
	res.Ckey = ckey

	player, err := r.players.GetByCkey(ctx, ckey)
	if err != nil {
		return Resolution{}, err
	}
	if player == nil {
		res.Outcome = PlayerNotFound
		return res, nil
	}
	res.LivingMinutes = player.LivingMinutes

	res.Effects.RewriteLink = !preexisting
	res.Effects.GrantVerifiedRole = true
	if player.LivingMinutes >= req.Settings.MinLivingMinutes {
		res.Effects.GrantLivingRole = true
		res.Outcome = LinkedAndQualified
	} else {
		res.Outcome = LinkedButUnqualified
	}
	return res, nil
}

// NormalizeCkey lowercases and strips everything but letters and digits, the
// canonical ckey form the game uses.
func NormalizeCkey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
