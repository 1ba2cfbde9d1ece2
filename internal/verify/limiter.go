package verify

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrCooldown: the user or guild is sending verification attempts too fast.
var ErrCooldown = errors.New("verification attempts are rate limited, try again shortly")

// ErrConcurrencyLimit: too many verifications already in flight for the guild.
// Rejected immediately rather than queued to bound database load.
var ErrConcurrencyLimit = errors.New("too many verifications in flight for this guild")

// AttemptLimiter enforces the verify command's limits: per-user and per-guild
// attempt frequency, plus a non-blocking cap on concurrent attempts per guild.
type AttemptLimiter struct {
	userEvery   rate.Limit
	userBurst   int
	guildEvery  rate.Limit
	guildBurst  int
	maxPerGuild int

	mu       sync.Mutex
	users    map[string]*userLimiter
	guilds   map[string]*rate.Limiter
	inFlight map[string]int

	lastPrune time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter mirrors the source limits: userAttempts per minute per
// user, guildAttempts per minute per guild, maxPerGuild concurrent.
func NewAttemptLimiter(userAttempts, guildAttempts, maxPerGuild int) *AttemptLimiter {
	return &AttemptLimiter{
		userEvery:   rate.Every(time.Minute / time.Duration(userAttempts)),
		userBurst:   userAttempts,
		guildEvery:  rate.Every(time.Minute / time.Duration(guildAttempts)),
		guildBurst:  guildAttempts,
		maxPerGuild: maxPerGuild,
		users:       make(map[string]*userLimiter),
		guilds:      make(map[string]*rate.Limiter),
		inFlight:    make(map[string]int),
		lastPrune:   time.Now(),
	}
}

// Acquire admits one attempt or reports why it was rejected. On success the
// returned release func must be called when the attempt finishes.
func (l *AttemptLimiter) Acquire(guildID, userID string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked()

	userKey := guildID + ":" + userID
	ul, ok := l.users[userKey]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(l.userEvery, l.userBurst)}
		l.users[userKey] = ul
	}
	ul.lastSeen = time.Now()

	gl, ok := l.guilds[guildID]
	if !ok {
		gl = rate.NewLimiter(l.guildEvery, l.guildBurst)
		l.guilds[guildID] = gl
	}

	// Check both buckets before consuming either, so a guild-throttled
	// attempt doesn't burn the user's own allowance.
	if ul.lim.Tokens() < 1 || gl.Tokens() < 1 {
		return nil, ErrCooldown
	}

	if l.inFlight[guildID] >= l.maxPerGuild {
		return nil, ErrConcurrencyLimit
	}

	ul.lim.Allow()
	gl.Allow()
	l.inFlight[guildID]++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.inFlight[guildID]--
			l.mu.Unlock()
		})
	}, nil
}

// pruneLocked drops user buckets idle long enough to have fully refilled.
func (l *AttemptLimiter) pruneLocked() {
	now := time.Now()
	if now.Sub(l.lastPrune) < 5*time.Minute {
		return
	}
	l.lastPrune = now
	for key, ul := range l.users {
		if now.Sub(ul.lastSeen) > 10*time.Minute {
			delete(l.users, key)
		}
	}
}
