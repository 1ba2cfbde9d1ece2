package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkRepository owns the discord_links table: one-time token issuance, token
// and link lookups, and the atomic invalidate-then-claim rewrite that keeps at
// most one valid link per ckey and per Discord account.
type LinkRepository struct {
	pool     *pgxpool.Pool
	tokenTTL time.Duration
}

func NewLinkRepository(pool *pgxpool.Pool, tokenTTL time.Duration) *LinkRepository {
	return &LinkRepository{pool: pool, tokenTTL: tokenTTL}
}

// IssueToken creates a fresh one-time token for a ckey. The row is not a valid
// link yet; it becomes one when the token is claimed during verification.
func (r *LinkRepository) IssueToken(ctx context.Context, ckey string) (string, time.Time, error) {
	token := uuid.NewString()
	var createdAt time.Time
	err := r.pool.QueryRow(ctx, `
		INSERT INTO discord_links (ckey, one_time_token, valid)
		VALUES ($1, $2, FALSE)
		RETURNING created_at
	`, ckey, token).Scan(&createdAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token for %s: %w", ckey, err)
	}
	return token, createdAt.Add(r.tokenTTL), nil
}

// LookupCkeyByToken resolves an unclaimed, unexpired one-time token to its
// ckey. Returns "" when the token is unknown, already claimed or expired.
func (r *LinkRepository) LookupCkeyByToken(ctx context.Context, token string) (string, error) {
	var ckey string
	err := r.pool.QueryRow(ctx, `
		SELECT ckey FROM discord_links
		WHERE one_time_token = $1 AND discord_id IS NULL AND created_at > $2
	`, token, time.Now().Add(-r.tokenTTL)).Scan(&ckey)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ckey, nil
}

// FindValidLinkByDiscordID returns the current valid link for a Discord
// account, or nil when there is none.
func (r *LinkRepository) FindValidLinkByDiscordID(ctx context.Context, discordID string) (*model.DiscordLink, error) {
	l := &model.DiscordLink{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, ckey, discord_id, one_time_token, valid, created_at
		FROM discord_links
		WHERE discord_id = $1 AND valid
	`, discordID).Scan(&l.ID, &l.Ckey, &l.DiscordID, &l.OneTimeToken, &l.Valid, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// FindValidLinkByCkey returns the current valid link for a ckey, or nil.
func (r *LinkRepository) FindValidLinkByCkey(ctx context.Context, ckey string) (*model.DiscordLink, error) {
	l := &model.DiscordLink{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, ckey, discord_id, one_time_token, valid, created_at
		FROM discord_links
		WHERE ckey = $1 AND valid
	`, ckey).Scan(&l.ID, &l.Ckey, &l.DiscordID, &l.OneTimeToken, &l.Valid, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// RewriteLink invalidates every valid link for the ckey and for the Discord
// account, then claims the token row, all in one transaction. Row locks on the
// touched ckey/account rows serialize concurrent rewrites for the same player,
// so two racing verifications cannot both end up with a valid link.
func (r *LinkRepository) RewriteLink(ctx context.Context, token, discordID, ckey string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rewrite: %w", err)
	}
	defer tx.Rollback(ctx)

	// Deterministic lock order across the rows either side of the rewrite
	// touches, so concurrent rewrites cannot deadlock.
	rows, err := tx.Query(ctx, `
		SELECT id FROM discord_links
		WHERE ckey = $1 OR discord_id = $2
		ORDER BY id
		FOR UPDATE
	`, ckey, discordID)
	if err != nil {
		return fmt.Errorf("lock link rows: %w", err)
	}
	rows.Close()
	if rows.Err() != nil {
		return fmt.Errorf("lock link rows: %w", rows.Err())
	}

	if _, err := tx.Exec(ctx,
		`UPDATE discord_links SET valid = FALSE WHERE ckey = $1 AND valid`, ckey); err != nil {
		return fmt.Errorf("invalidate links for ckey: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE discord_links SET valid = FALSE WHERE discord_id = $1 AND valid`, discordID); err != nil {
		return fmt.Errorf("invalidate links for account: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE discord_links SET discord_id = $1, valid = TRUE
		WHERE one_time_token = $2 AND discord_id IS NULL
	`, discordID, token)
	if err != nil {
		return fmt.Errorf("claim token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("claim token: token already claimed or unknown")
	}

	return tx.Commit(ctx)
}

// InvalidateAllForCkey flips every valid link for a ckey. Used by deverify.
func (r *LinkRepository) InvalidateAllForCkey(ctx context.Context, ckey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE discord_links SET valid = FALSE WHERE ckey = $1 AND valid`, ckey)
	return err
}

// AllLinksForCkey returns every link row (valid or not) ever recorded for a
// ckey, newest first. Token rows that were never claimed are skipped.
func (r *LinkRepository) AllLinksForCkey(ctx context.Context, ckey string) ([]model.DiscordLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ckey, discord_id, one_time_token, valid, created_at
		FROM discord_links
		WHERE ckey = $1 AND discord_id IS NOT NULL
		ORDER BY created_at DESC
	`, ckey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.DiscordLink
	for rows.Next() {
		var l model.DiscordLink
		if err := rows.Scan(&l.ID, &l.Ckey, &l.DiscordID, &l.OneTimeToken, &l.Valid, &l.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// CountValidLinks reports how many accounts are currently verified.
func (r *LinkRepository) CountValidLinks(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM discord_links WHERE valid`).Scan(&n)
	return n, err
}
