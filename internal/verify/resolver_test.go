package verify

import (
	"context"
	"testing"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStores struct {
	tokens  map[string]string            // token -> ckey
	links   map[string]*model.DiscordLink // discord id -> valid link
	players map[string]*model.Player
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		tokens:  make(map[string]string),
		links:   make(map[string]*model.DiscordLink),
		players: make(map[string]*model.Player),
	}
}

func (f *fakeStores) LookupCkeyByToken(_ context.Context, token string) (string, error) {
	return f.tokens[token], nil
}

func (f *fakeStores) FindValidLinkByDiscordID(_ context.Context, discordID string) (*model.DiscordLink, error) {
	return f.links[discordID], nil
}

func (f *fakeStores) GetByCkey(_ context.Context, ckey string) (*model.Player, error) {
	return f.players[ckey], nil
}

func validSettings() Settings {
	return Settings{MinLivingMinutes: 60, VerifiedRoleID: "100", LivingRoleID: "200"}
}

func TestResolveMissingConfiguration(t *testing.T) {
	f := newFakeStores()
	r := NewResolver(f, f, f)

	for _, s := range []Settings{
		{MinLivingMinutes: 60},
		{MinLivingMinutes: 60, VerifiedRoleID: "100"},
		{MinLivingMinutes: 60, LivingRoleID: "200"},
	} {
		_, err := r.Resolve(context.Background(), Request{DiscordID: "1", Settings: s})
		assert.ErrorIs(t, err, ErrMissingConfiguration)
	}
}

func TestResolveAlreadyVerified(t *testing.T) {
	f := newFakeStores()
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID:       "1",
		Token:           "whatever",
		HasVerifiedRole: true,
		HasLivingRole:   true,
		Settings:        validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, AlreadyVerified, res.Outcome)
	assert.False(t, res.Effects.Mutates())
}

func TestResolveTokenQualified(t *testing.T) {
	f := newFakeStores()
	f.tokens["tok-1"] = "shadowcox"
	f.players["shadowcox"] = &model.Player{Ckey: "shadowcox", LivingMinutes: 120}
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: "42", Token: "tok-1", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, LinkedAndQualified, res.Outcome)
	assert.Equal(t, "shadowcox", res.Ckey)
	assert.Equal(t, 120, res.LivingMinutes)
	assert.True(t, res.Effects.RewriteLink)
	assert.True(t, res.Effects.GrantVerifiedRole)
	assert.True(t, res.Effects.GrantLivingRole)
}

func TestResolveTokenUnqualified(t *testing.T) {
	f := newFakeStores()
	f.tokens["tok-1"] = "newbie"
	f.players["newbie"] = &model.Player{Ckey: "newbie", LivingMinutes: 12}
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: "42", Token: "tok-1", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, LinkedButUnqualified, res.Outcome)
	assert.True(t, res.Effects.RewriteLink)
	assert.True(t, res.Effects.GrantVerifiedRole)
	assert.False(t, res.Effects.GrantLivingRole, "qualified role must be withheld below the threshold")
	assert.Equal(t, 12, res.LivingMinutes)
	assert.Equal(t, 60, res.RequiredMinutes)
}

func TestResolveExactThresholdQualifies(t *testing.T) {
	f := newFakeStores()
	f.tokens["tok-1"] = "edge"
	f.players["edge"] = &model.Player{Ckey: "edge", LivingMinutes: 60}
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: "42", Token: "tok-1", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, LinkedAndQualified, res.Outcome)
}

func TestResolvePreexistingLinkSkipsRewrite(t *testing.T) {
	f := newFakeStores()
	did := "42"
	f.links[did] = &model.DiscordLink{Ckey: "oldhand", DiscordID: &did, Valid: true}
	f.players["oldhand"] = &model.Player{Ckey: "oldhand", LivingMinutes: 999}
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: did, Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, LinkedAndQualified, res.Outcome)
	assert.Equal(t, "oldhand", res.Ckey)
	assert.False(t, res.Effects.RewriteLink, "existing valid link must be reused, not rewritten")
	assert.True(t, res.Effects.GrantVerifiedRole)
}

func TestResolveBadTokenFallsBackToLink(t *testing.T) {
	f := newFakeStores()
	did := "42"
	f.links[did] = &model.DiscordLink{Ckey: "oldhand", DiscordID: &did, Valid: true}
	f.players["oldhand"] = &model.Player{Ckey: "oldhand", LivingMinutes: 10}
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: did, Token: "expired-token", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, LinkedButUnqualified, res.Outcome)
	assert.Equal(t, "oldhand", res.Ckey)
	assert.False(t, res.Effects.RewriteLink)
}

func TestResolveNoLinkFound(t *testing.T) {
	f := newFakeStores()
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: "42", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, NoLinkFound, res.Outcome)
	assert.False(t, res.Effects.Mutates())
}

func TestResolvePlayerNotFound(t *testing.T) {
	f := newFakeStores()
	f.tokens["tok-1"] = "ghost"
	r := NewResolver(f, f, f)

	res, err := r.Resolve(context.Background(), Request{
		DiscordID: "42", Token: "tok-1", Settings: validSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, PlayerNotFound, res.Outcome)
	assert.Equal(t, "ghost", res.Ckey)
	assert.False(t, res.Effects.Mutates())
}

func TestNormalizeCkey(t *testing.T) {
	cases := map[string]string{
		"ShadowCox":   "shadowcox",
		"some_key":    "somekey",
		"With Spaces": "withspaces",
		"dots.and-dashes": "dotsanddashes",
		"ckey123":     "ckey123",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeCkey(in))
	}
}
