package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/FIJTeam/eternitycogs/internal/model"
	"github.com/FIJTeam/eternitycogs/internal/verify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLinkStore mimics the repository's semantics: tokens are claim-once, and
// RewriteLink applies the invalidate-both-sides-then-claim sequence atomically
// under one lock, the way the SQL transaction serializes it with row locks.
type memLinkStore struct {
	mu    sync.Mutex
	seq   int64
	links []*model.DiscordLink
}

func (m *memLinkStore) addToken(token, ckey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.links = append(m.links, &model.DiscordLink{ID: m.seq, Ckey: ckey, OneTimeToken: token})
}

func (m *memLinkStore) addValidLink(ckey, discordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := discordID
	m.links = append(m.links, &model.DiscordLink{ID: m.seq, Ckey: ckey, DiscordID: &id, Valid: true})
}

func (m *memLinkStore) LookupCkeyByToken(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.OneTimeToken == token && l.DiscordID == nil {
			return l.Ckey, nil
		}
	}
	return "", nil
}

func (m *memLinkStore) FindValidLinkByDiscordID(_ context.Context, discordID string) (*model.DiscordLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Valid && l.DiscordID != nil && *l.DiscordID == discordID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memLinkStore) RewriteLink(_ context.Context, token, discordID, ckey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claim *model.DiscordLink
	for _, l := range m.links {
		if l.OneTimeToken == token && l.DiscordID == nil {
			claim = l
			break
		}
	}
	if claim == nil {
		return fmt.Errorf("claim token: token already claimed or unknown")
	}
	for _, l := range m.links {
		if l.Valid && (l.Ckey == ckey || (l.DiscordID != nil && *l.DiscordID == discordID)) {
			l.Valid = false
		}
	}
	id := discordID
	claim.DiscordID = &id
	claim.Valid = true
	return nil
}

func (m *memLinkStore) InvalidateAllForCkey(_ context.Context, ckey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Ckey == ckey {
			l.Valid = false
		}
	}
	return nil
}

func (m *memLinkStore) AllLinksForCkey(_ context.Context, ckey string) ([]model.DiscordLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DiscordLink
	for _, l := range m.links {
		if l.Ckey == ckey && l.DiscordID != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memLinkStore) validLinksFor(ckey string) []model.DiscordLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DiscordLink
	for _, l := range m.links {
		if l.Valid && l.Ckey == ckey {
			out = append(out, *l)
		}
	}
	return out
}

type memPlayerStore map[string]*model.Player

func (m memPlayerStore) GetByCkey(_ context.Context, ckey string) (*model.Player, error) {
	return m[ckey], nil
}

type memSettingsStore model.GuildSettings

func (m *memSettingsStore) Get(_ context.Context, guildID string) (*model.GuildSettings, error) {
	s := model.GuildSettings(*m)
	s.GuildID = guildID
	return &s, nil
}

type recordingGranter struct {
	mu    sync.Mutex
	roles []string
}

func (g *recordingGranter) GrantRole(_ context.Context, roleID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles = append(g.roles, roleID)
	return nil
}

func newTestService(links *memLinkStore, players memPlayerStore) *VerificationService {
	settings := &memSettingsStore{MinLivingMinutes: 60, VerifiedRoleID: "100", LivingRoleID: "200"}
	return NewVerificationService(links, players, settings, verify.NewAttemptLimiter(100, 1000, 10), nil)
}

func TestVerifyExecutesRequestedEffects(t *testing.T) {
	links := &memLinkStore{}
	links.addToken("tok-1", "shadowcox")
	players := memPlayerStore{"shadowcox": {Ckey: "shadowcox", LivingMinutes: 200}}
	svc := newTestService(links, players)
	granter := &recordingGranter{}

	res, _, err := svc.Verify(context.Background(),
		VerifyInput{GuildID: "g1", DiscordID: "42", Token: "tok-1"}, granter)
	require.NoError(t, err)
	assert.Equal(t, verify.LinkedAndQualified, res.Outcome)
	assert.Equal(t, []string{"100", "200"}, granter.roles)

	valid := links.validLinksFor("shadowcox")
	require.Len(t, valid, 1)
	assert.Equal(t, "42", *valid[0].DiscordID)
}

func TestVerifyReusesExistingLinkWithoutRewrite(t *testing.T) {
	links := &memLinkStore{}
	links.addValidLink("oldhand", "42")
	players := memPlayerStore{"oldhand": {Ckey: "oldhand", LivingMinutes: 10}}
	svc := newTestService(links, players)
	granter := &recordingGranter{}

	res, settings, err := svc.Verify(context.Background(),
		VerifyInput{GuildID: "g1", DiscordID: "42"}, granter)
	require.NoError(t, err)
	assert.Equal(t, verify.LinkedButUnqualified, res.Outcome)
	assert.Equal(t, []string{"100"}, granter.roles, "only the base role below the threshold")
	assert.Equal(t, 60, settings.MinLivingMinutes)
	assert.Len(t, links.validLinksFor("oldhand"), 1)
}

func TestVerifyNoLinkFoundLeavesStoreUntouched(t *testing.T) {
	links := &memLinkStore{}
	svc := newTestService(links, memPlayerStore{})
	granter := &recordingGranter{}

	res, _, err := svc.Verify(context.Background(),
		VerifyInput{GuildID: "g1", DiscordID: "42"}, granter)
	require.NoError(t, err)
	assert.Equal(t, verify.NoLinkFound, res.Outcome)
	assert.Empty(t, granter.roles)
	assert.Empty(t, links.links)
}

func TestVerifyNewCkeyInvalidatesOldLinks(t *testing.T) {
	links := &memLinkStore{}
	links.addValidLink("oldckey", "42")
	links.addToken("tok-1", "newckey")
	players := memPlayerStore{"newckey": {Ckey: "newckey", LivingMinutes: 120}}
	svc := newTestService(links, players)

	res, _, err := svc.Verify(context.Background(),
		VerifyInput{GuildID: "g1", DiscordID: "42", Token: "tok-1"}, &recordingGranter{})
	require.NoError(t, err)
	assert.Equal(t, verify.LinkedAndQualified, res.Outcome)

	assert.Empty(t, links.validLinksFor("oldckey"), "previous ckey link must be invalidated")
	valid := links.validLinksFor("newckey")
	require.Len(t, valid, 1)
	assert.Equal(t, "42", *valid[0].DiscordID)
}

// Two accounts racing to claim the same ckey through separate tokens: the
// store's serialized rewrite must leave at most one valid link for the ckey.
func TestVerifyConcurrentSameCkey(t *testing.T) {
	links := &memLinkStore{}
	links.addToken("tok-a", "contested")
	links.addToken("tok-b", "contested")
	players := memPlayerStore{"contested": {Ckey: "contested", LivingMinutes: 120}}
	svc := newTestService(links, players)

	var wg sync.WaitGroup
	for _, attempt := range []struct{ discordID, token string }{
		{"1001", "tok-a"},
		{"1002", "tok-b"},
	} {
		wg.Add(1)
		go func(discordID, token string) {
			defer wg.Done()
			_, _, err := svc.Verify(context.Background(),
				VerifyInput{GuildID: "g1", DiscordID: discordID, Token: token}, &recordingGranter{})
			assert.NoError(t, err)
		}(attempt.discordID, attempt.token)
	}
	wg.Wait()

	valid := links.validLinksFor("contested")
	require.Len(t, valid, 1, "exactly one valid link may survive the race")
}

func TestDeverify(t *testing.T) {
	links := &memLinkStore{}
	links.addValidLink("oldhand", "42")
	svc := newTestService(links, memPlayerStore{})

	ok, err := svc.Deverify(context.Background(), "g1", "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, links.validLinksFor("oldhand"))

	ok, err = svc.Deverify(context.Background(), "g1", "42")
	require.NoError(t, err)
	assert.False(t, ok, "second deverify finds no link")
}
