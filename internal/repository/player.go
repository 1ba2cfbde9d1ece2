package repository

import (
	"context"
	"errors"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerRepository struct {
	pool *pgxpool.Pool
}

func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// GetByCkey returns the player record for a ckey, or nil when the player has
// never been seen by the game server.
func (r *PlayerRepository) GetByCkey(ctx context.Context, ckey string) (*model.Player, error) {
	p := &model.Player{}
	err := r.pool.QueryRow(ctx, `
		SELECT ckey, living_minutes, first_seen_at, updated_at
		FROM players WHERE ckey = $1
	`, ckey).Scan(&p.Ckey, &p.LivingMinutes, &p.FirstSeenAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertPlaytime records the game server's latest living-minutes total for a
// ckey, creating the player row on first sight.
func (r *PlayerRepository) UpsertPlaytime(ctx context.Context, ckey string, livingMinutes int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO players (ckey, living_minutes)
		VALUES ($1, $2)
		ON CONFLICT (ckey) DO UPDATE SET living_minutes = $2, updated_at = NOW()
	`, ckey, livingMinutes)
	return err
}

func (r *PlayerRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM players`).Scan(&n)
	return n, err
}
