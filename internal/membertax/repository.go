package membertax

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository provides PostgreSQL backed persistence for member tax.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// GetConfig fetches a configuration by id.
func (r *PgRepository) GetConfig(ctx context.Context, id int64) (Configuration, error) {
	const query = `
		SELECT id, state, isk_per_main
		FROM member_tax_configurations
		WHERE id = $1
	`
	var cfg Configuration
	err := r.pool.QueryRow(ctx, query, id).Scan(&cfg.ID, &cfg.State, &cfg.IskPerMain)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Configuration{}, ErrConfigNotFound
		}
		return Configuration{}, err
	}
	return cfg, nil
}

// ListConfigs returns all configurations.
func (r *PgRepository) ListConfigs(ctx context.Context) ([]Configuration, error) {
	const query = `
		SELECT id, state, isk_per_main
		FROM member_tax_configurations
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Configuration
	for rows.Next() {
		var cfg Configuration
		if err := rows.Scan(&cfg.ID, &cfg.State, &cfg.IskPerMain); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// MainCounts counts, per corporation, the characters in the state that are
// their own account's main character.
func (r *PgRepository) MainCounts(ctx context.Context, state string) ([]CorpMainCount, error) {
	const query = `
		SELECT corporation_id, corporation_name, COUNT(character_id)
		FROM alliance_characters
		WHERE user_state = $1 AND character_id = main_character_id
		GROUP BY corporation_id, corporation_name
		ORDER BY corporation_id
	`
	rows, err := r.pool.Query(ctx, query, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CorpMainCount
	for rows.Next() {
		var c CorpMainCount
		if err := rows.Scan(&c.CorporationID, &c.CorporationName, &c.MainCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
