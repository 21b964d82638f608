package payouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/soratidus999/taxtools/internal/platform/db"
)

// ErrConfigExists indicates a configuration for the same corp, ref type and
// scope already exists.
var ErrConfigExists = errors.New("payout tax configuration already exists")

// PgRepository provides PostgreSQL backed persistence for payout aggregation.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// GetConfig fetches a configuration by id.
func (r *PgRepository) GetConfig(ctx context.Context, id int64) (TaxConfiguration, error) {
	const query = `
		SELECT id, corporation_id, corporation_name, ref_type, tax, scope
		FROM payout_tax_configurations
		WHERE id = $1
	`
	var cfg TaxConfiguration
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&cfg.ID, &cfg.CorporationID, &cfg.CorporationName, &cfg.RefType, &cfg.Tax, &cfg.Scope,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxConfiguration{}, ErrConfigNotFound
		}
		return TaxConfiguration{}, err
	}
	return cfg, nil
}

// ListConfigs returns all configurations.
func (r *PgRepository) ListConfigs(ctx context.Context) ([]TaxConfiguration, error) {
	const query = `
		SELECT id, corporation_id, corporation_name, ref_type, tax, scope
		FROM payout_tax_configurations
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaxConfiguration
	for rows.Next() {
		var cfg TaxConfiguration
		if err := rows.Scan(&cfg.ID, &cfg.CorporationID, &cfg.CorporationName, &cfg.RefType, &cfg.Tax, &cfg.Scope); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// CreateConfig persists a new configuration.
func (r *PgRepository) CreateConfig(ctx context.Context, cfg TaxConfiguration) (TaxConfiguration, error) {
	const insert = `
		INSERT INTO payout_tax_configurations (corporation_id, corporation_name, ref_type, tax, scope)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, insert,
		cfg.CorporationID, cfg.CorporationName, cfg.RefType, cfg.Tax, cfg.Scope,
	).Scan(&cfg.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TaxConfiguration{}, ErrConfigExists
		}
		return TaxConfiguration{}, fmt.Errorf("payouts: create config: %w", err)
	}
	return cfg, nil
}

// UpdateConfigTax changes the percentage of an existing configuration.
func (r *PgRepository) UpdateConfigTax(ctx context.Context, id int64, tax decimal.Decimal) (TaxConfiguration, error) {
	const update = `
		UPDATE payout_tax_configurations
		SET tax = $2
		WHERE id = $1
		RETURNING id, corporation_id, corporation_name, ref_type, tax, scope
	`
	var cfg TaxConfiguration
	err := r.pool.QueryRow(ctx, update, id, tax).Scan(
		&cfg.ID, &cfg.CorporationID, &cfg.CorporationName, &cfg.RefType, &cfg.Tax, &cfg.Scope,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaxConfiguration{}, ErrConfigNotFound
		}
		return TaxConfiguration{}, err
	}
	return cfg, nil
}

// ListUnprocessedEntries returns candidate journal rows for the config and
// window, excluding entries already bearing a processed marker.
func (r *PgRepository) ListUnprocessedEntries(ctx context.Context, cfg TaxConfiguration, start, end time.Time) ([]JournalEntry, error) {
	if cfg.Scope == ScopeCorporation {
		return r.listCorpEntries(ctx, cfg, start, end)
	}
	return r.listCharacterEntries(ctx, cfg, start, end)
}

func (r *PgRepository) listCharacterEntries(ctx context.Context, cfg TaxConfiguration, start, end time.Time) ([]JournalEntry, error) {
	const query = `
		SELECT j.entry_id, j.amount, j.date, j.character_id, j.character_name,
		       j.corporation_id, COALESCE(j.main_character_id, 0), COALESCE(j.main_corporation_id, 0)
		FROM character_wallet_journal j
		LEFT JOIN payout_tax_records t
		    ON t.scope = 'character' AND t.entry_id = j.entry_id AND t.processed
		WHERE j.first_party_id = $1
		  AND j.ref_type = $2
		  AND j.date >= $3 AND j.date <= $4
		  AND t.entry_id IS NULL
		ORDER BY j.date, j.entry_id
	`
	return r.scanEntries(ctx, query, cfg.CorporationID, cfg.RefType, start, end)
}

func (r *PgRepository) listCorpEntries(ctx context.Context, cfg TaxConfiguration, start, end time.Time) ([]JournalEntry, error) {
	const query = `
		SELECT j.entry_id, j.amount, j.date, j.second_party_id, j.second_party_name,
		       j.division_corporation_id, 0, j.division_corporation_id
		FROM corp_wallet_journal j
		LEFT JOIN payout_tax_records t
		    ON t.scope = 'corporation' AND t.entry_id = j.entry_id AND t.processed
		WHERE j.first_party_id = $1
		  AND j.ref_type = $2
		  AND j.date >= $3 AND j.date <= $4
		  AND t.entry_id IS NULL
		ORDER BY j.date, j.entry_id
	`
	return r.scanEntries(ctx, query, cfg.CorporationID, cfg.RefType, start, end)
}

func (r *PgRepository) scanEntries(ctx context.Context, query string, args ...any) ([]JournalEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.EntryID, &e.Amount, &e.Date, &e.CharacterID, &e.CharacterName,
			&e.CorporationID, &e.MainCharacterID, &e.MainCorporationID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkProcessed inserts processed markers in one transaction, so a failed
// commit leaves no partial marker set behind. The (scope, entry_id) primary
// key arbitrates concurrent runs over overlapping windows: a marker lost to
// another writer counts as already processed, never as a failure.
func (r *PgRepository) MarkProcessed(ctx context.Context, scope ConfigScope, entryIDs []int64) (int, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	const insert = `
		INSERT INTO payout_tax_records (scope, entry_id, processed)
		VALUES ($1, $2, true)
		ON CONFLICT (scope, entry_id) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, id := range entryIDs {
		batch.Queue(insert, scope, id)
	}

	marked := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range entryIDs {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("payouts: insert marker: %w", err)
			}
			marked += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// InsertRunRecord logs one committed payout run.
func (r *PgRepository) InsertRunRecord(ctx context.Context, rec RunRecord) error {
	const insert = `
		INSERT INTO payout_run_records (id, config_id, start_date, end_date, bucket_count, marked_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, insert,
		rec.ID, rec.ConfigID, rec.StartDate, rec.EndDate, rec.BucketCount, rec.MarkedCount, rec.CreatedAt)
	return err
}
