package rates

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notificationType is the upstream kind carrying corp tax changes.
const notificationType = "CorpTaxChangeMsg"

// PgRepository provides PostgreSQL backed persistence for rate timelines.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// ListTaxChangeNotifications returns CorpTaxChangeMsg rows ordered by
// (timestamp, notification_id). The ordering is what makes same-minute
// duplicate resolution deterministic, so it lives here and not in the caller.
func (r *PgRepository) ListTaxChangeNotifications(ctx context.Context, corpID int64) ([]NotificationRow, error) {
	const query = `
		SELECT notification_id, corporation_id, "timestamp", text
		FROM corp_notifications
		WHERE corporation_id = $1 AND notification_type = $2
		ORDER BY "timestamp", notification_id
	`
	rows, err := r.pool.Query(ctx, query, corpID, notificationType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationRow
	for rows.Next() {
		var n NotificationRow
		if err := rows.Scan(&n.NotificationID, &n.CorporationID, &n.Timestamp, &n.Text); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListPoints returns all timeline points stored for the corp.
func (r *PgRepository) ListPoints(ctx context.Context, corpID int64) ([]TimelinePoint, error) {
	const query = `
		SELECT corporation_id, effective_at, rate
		FROM corp_tax_timeline
		WHERE corporation_id = $1
		ORDER BY effective_at
	`
	rows, err := r.pool.Query(ctx, query, corpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelinePoint
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.CorporationID, &p.EffectiveAt, &p.Rate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPoints persists points relying on the (corporation_id, effective_at)
// uniqueness constraint to skip already-known history. Existing rows keep
// their stored rate even when a re-sync computes a different one.
func (r *PgRepository) InsertPoints(ctx context.Context, points []TimelinePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	const insert = `
		INSERT INTO corp_tax_timeline (corporation_id, effective_at, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (corporation_id, effective_at) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(insert, p.CorporationID, p.EffectiveAt, p.Rate)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	created := 0
	for range points {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("rates: insert timeline point: %w", err)
		}
		created += int(tag.RowsAffected())
	}
	return created, nil
}

// ListAuditedCorporations returns every corporation with audit coverage.
func (r *PgRepository) ListAuditedCorporations(ctx context.Context) ([]Corporation, error) {
	const query = `
		SELECT corporation_id, corporation_name
		FROM corporation_audits
		ORDER BY corporation_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Corporation
	for rows.Next() {
		var c Corporation
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
