package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/FIJTeam/eternitycogs/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GuildSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewGuildSettingsRepository(pool *pgxpool.Pool) *GuildSettingsRepository {
	return &GuildSettingsRepository{pool: pool}
}

// Get returns the settings row for a guild, falling back to defaults when the
// guild has never been configured.
func (r *GuildSettingsRepository) Get(ctx context.Context, guildID string) (*model.GuildSettings, error) {
	s := &model.GuildSettings{}
	err := r.pool.QueryRow(ctx, `
		SELECT guild_id, min_living_minutes, verified_role_id, living_role_id,
		       instructions_link, welcome_channel_id, welcome_greeting,
		       disabled_greeting, bunker_warning, bunker, disabled
		FROM guild_settings WHERE guild_id = $1
	`, guildID).Scan(
		&s.GuildID, &s.MinLivingMinutes, &s.VerifiedRoleID, &s.LivingRoleID,
		&s.InstructionsLink, &s.WelcomeChannelID, &s.WelcomeGreeting,
		&s.DisabledGreeting, &s.BunkerWarning, &s.Bunker, &s.Disabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultGuildSettings(guildID), nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *GuildSettingsRepository) SetMinLivingMinutes(ctx context.Context, guildID string, minutes int) error {
	return r.setField(ctx, guildID, "min_living_minutes", minutes)
}

func (r *GuildSettingsRepository) SetVerifiedRole(ctx context.Context, guildID, roleID string) error {
	return r.setField(ctx, guildID, "verified_role_id", roleID)
}

func (r *GuildSettingsRepository) SetLivingRole(ctx context.Context, guildID, roleID string) error {
	return r.setField(ctx, guildID, "living_role_id", roleID)
}

func (r *GuildSettingsRepository) SetInstructionsLink(ctx context.Context, guildID, link string) error {
	return r.setField(ctx, guildID, "instructions_link", link)
}

func (r *GuildSettingsRepository) SetWelcomeChannel(ctx context.Context, guildID, channelID string) error {
	return r.setField(ctx, guildID, "welcome_channel_id", channelID)
}

func (r *GuildSettingsRepository) SetWelcomeGreeting(ctx context.Context, guildID, greeting string) error {
	return r.setField(ctx, guildID, "welcome_greeting", greeting)
}

func (r *GuildSettingsRepository) SetDisabledGreeting(ctx context.Context, guildID, greeting string) error {
	return r.setField(ctx, guildID, "disabled_greeting", greeting)
}

func (r *GuildSettingsRepository) SetBunkerWarning(ctx context.Context, guildID, warning string) error {
	return r.setField(ctx, guildID, "bunker_warning", warning)
}

func (r *GuildSettingsRepository) SetBunker(ctx context.Context, guildID string, on bool) error {
	return r.setField(ctx, guildID, "bunker", on)
}

func (r *GuildSettingsRepository) SetDisabled(ctx context.Context, guildID string, on bool) error {
	return r.setField(ctx, guildID, "disabled", on)
}

// setField upserts a single settings column. The column name is always one of
// the fixed strings above, never caller input.
func (r *GuildSettingsRepository) setField(ctx context.Context, guildID, column string, value any) error {
	query := fmt.Sprintf(`
		INSERT INTO guild_settings (guild_id, %s)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET %s = $2, updated_at = NOW()
	`, column, column)
	_, err := r.pool.Exec(ctx, query, guildID, value)
	return err
}
