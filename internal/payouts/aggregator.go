package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soratidus999/taxtools/internal/rates"
)

var (
	ErrConfigNotFound = errors.New("payout tax configuration not found")
	ErrInvalidWindow  = errors.New("start date must not be after end date")
)

var hundred = decimal.NewFromInt(100)

// Repository abstracts persistence for configurations, journal feeds and
// processed markers.
type Repository interface {
	GetConfig(ctx context.Context, id int64) (TaxConfiguration, error)
	ListConfigs(ctx context.Context) ([]TaxConfiguration, error)
	CreateConfig(ctx context.Context, cfg TaxConfiguration) (TaxConfiguration, error)
	UpdateConfigTax(ctx context.Context, id int64, tax decimal.Decimal) (TaxConfiguration, error)

	// ListUnprocessedEntries returns journal rows for the config's corp, ref
	// type and date range, excluding entries already bearing a processed
	// marker for the config's scope.
	ListUnprocessedEntries(ctx context.Context, cfg TaxConfiguration, start, end time.Time) ([]JournalEntry, error)

	// MarkProcessed records markers for the given entries. Entries already
	// marked (including by a concurrent run) are skipped, not errors; the
	// returned count covers only markers actually created.
	MarkProcessed(ctx context.Context, scope ConfigScope, entryIDs []int64) (int, error)

	InsertRunRecord(ctx context.Context, rec RunRecord) error
}

// TimelineSource supplies a corp's persisted rate timeline.
type TimelineSource interface {
	Timeline(ctx context.Context, corpID int64) (rates.Timeline, error)
}

// RateSource supplies the currently-effective live tax rate for a corp as the
// raw 0-1 fraction reported upstream. Lookups may block on the network and
// carry no internal retry.
type RateSource interface {
	CurrentTaxRate(ctx context.Context, corpID int64) (decimal.Decimal, error)
}

// GroupKeyFunc resolves the bucket key for a journal entry.
type GroupKeyFunc func(JournalEntry) int64

// MainOrCharacter buckets by the resolved main character when known, falling
// back to the paying character itself.
func MainOrCharacter(e JournalEntry) int64 {
	if e.MainCharacterID != 0 {
		return e.MainCharacterID
	}
	return e.CharacterID
}

// OwningCorporation buckets by the corp that owns the receiving wallet.
func OwningCorporation(e JournalEntry) int64 {
	return e.CorporationID
}

// Options tune a single aggregation run.
type Options struct {
	// GroupKey overrides the scope's default bucket key resolution.
	GroupKey GroupKeyFunc
	// DefaultRate, when set, substitutes for a failed live rate lookup
	// (percentage scale). Without it a lookup failure fails the run.
	DefaultRate *decimal.Decimal
}

// Service aggregates wallet journal streams into per-key tax liabilities.
type Service struct {
	repo      Repository
	timelines TimelineSource
	live      RateSource
	logger    *slog.Logger
}

// NewService constructs the aggregation service.
func NewService(repo Repository, timelines TimelineSource, live RateSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, timelines: timelines, live: live, logger: logger}
}

// Config loads a configuration by id.
func (s *Service) Config(ctx context.Context, id int64) (TaxConfiguration, error) {
	return s.repo.GetConfig(ctx, id)
}

// Configs lists all configurations.
func (s *Service) Configs(ctx context.Context) ([]TaxConfiguration, error) {
	return s.repo.ListConfigs(ctx)
}

// CreateConfig persists a new configuration.
func (s *Service) CreateConfig(ctx context.Context, cfg TaxConfiguration) (TaxConfiguration, error) {
	if cfg.Scope == "" {
		cfg.Scope = ScopeCharacter
	}
	cfg.Tax = cfg.Tax.Round(2)
	return s.repo.CreateConfig(ctx, cfg)
}

// UpdateTax changes a configuration's percentage. The new value applies to
// future runs only.
func (s *Service) UpdateTax(ctx context.Context, id int64, tax decimal.Decimal) (TaxConfiguration, error) {
	return s.repo.UpdateConfigTax(ctx, id, tax.Round(2))
}

// Aggregate folds all unprocessed journal entries for the config and window
// into per-key buckets. The operation is read-only: marking entries processed
// is the separate Commit step, so callers can inspect before committing.
//
// The fold is associative and commutative, so delivery order never affects the
// final sums. All rate caches are local to the run; concurrent runs for other
// corps share nothing.
func (s *Service) Aggregate(ctx context.Context, cfg TaxConfiguration, start, end time.Time, opts Options) (*Result, error) {
	if start.After(end) {
		return nil, ErrInvalidWindow
	}
	groupKey := opts.GroupKey
	if groupKey == nil {
		groupKey = defaultGroupKey(cfg.Scope)
	}

	entries, err := s.repo.ListUnprocessedEntries(ctx, cfg, start, end)
	if err != nil {
		return nil, fmt.Errorf("payouts: fetch journal for config %d: %w", cfg.ID, err)
	}

	timelines := make(map[int64]rates.Timeline)
	defaults := make(map[int64]decimal.Decimal)
	seen := make(map[int64]struct{}, len(entries))
	result := &Result{Buckets: make(map[int64]*Bucket)}

	for _, e := range entries {
		// Dedup before any side effect: duplicate rows in the feed must not
		// contribute twice.
		if _, ok := seen[e.EntryID]; ok {
			result.DuplicatesSkipped++
			continue
		}

		timeline, ok := timelines[e.CorporationID]
		if !ok {
			timeline, err = s.timelines.Timeline(ctx, e.CorporationID)
			if err != nil {
				return nil, fmt.Errorf("payouts: timeline for corp %d: %w", e.CorporationID, err)
			}
			timelines[e.CorporationID] = timeline
		}

		def, ok := defaults[e.CorporationID]
		if !ok {
			def, err = s.defaultRate(ctx, e.CorporationID, opts)
			if err != nil {
				return nil, err
			}
			defaults[e.CorporationID] = def
		}

		rate := timeline.RateAt(e.Date, def)
		gross := grossUp(e.Amount, rate)
		tax := gross.Mul(cfg.Tax).Div(hundred)

		key := groupKey(e)
		bucket, ok := result.Buckets[key]
		if !ok {
			bucket = newBucket()
			bucket.CorporationID = bucketCorporation(cfg.Scope, e)
			result.Buckets[key] = bucket
		}
		bucket.fold(e, rate, gross, tax)
		seen[e.EntryID] = struct{}{}
	}

	return result, nil
}

// Commit marks the given entries processed and logs the run. Entries marked by
// a concurrent overlapping run are silently skipped; the database's marker
// uniqueness is the arbiter.
func (s *Service) Commit(ctx context.Context, cfg TaxConfiguration, start, end time.Time, bucketCount int, entryIDs []int64) (RunRecord, error) {
	marked, err := s.repo.MarkProcessed(ctx, cfg.Scope, entryIDs)
	if err != nil {
		return RunRecord{}, fmt.Errorf("payouts: mark processed for config %d: %w", cfg.ID, err)
	}
	rec := RunRecord{
		ID:          uuid.New(),
		ConfigID:    cfg.ID,
		StartDate:   start,
		EndDate:     end,
		BucketCount: bucketCount,
		MarkedCount: marked,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertRunRecord(ctx, rec); err != nil {
		return RunRecord{}, fmt.Errorf("payouts: record run for config %d: %w", cfg.ID, err)
	}
	if marked < len(entryIDs) {
		s.logger.Info("some entries were already marked processed",
			slog.Int64("config_id", cfg.ID),
			slog.Int("requested", len(entryIDs)),
			slog.Int("marked", marked))
	}
	return rec, nil
}

func (s *Service) defaultRate(ctx context.Context, corpID int64, opts Options) (decimal.Decimal, error) {
	fraction, err := s.live.CurrentTaxRate(ctx, corpID)
	if err != nil {
		if opts.DefaultRate == nil {
			return decimal.Zero, fmt.Errorf("payouts: live tax rate for corp %d: %w", corpID, err)
		}
		s.logger.Warn("live rate lookup failed, using caller default",
			slog.Int64("corporation_id", corpID), slog.Any("error", err))
		return *opts.DefaultRate, nil
	}
	return fraction.Mul(hundred), nil
}

func defaultGroupKey(scope ConfigScope) GroupKeyFunc {
	if scope == ScopeCorporation {
		return OwningCorporation
	}
	return MainOrCharacter
}

func bucketCorporation(scope ConfigScope, e JournalEntry) int64 {
	if scope == ScopeCorporation {
		return e.CorporationID
	}
	if e.MainCorporationID != 0 {
		return e.MainCorporationID
	}
	return e.CorporationID
}

// grossUp recovers the pre-tax value from a received amount taxed at rate.
// A 100% rate would make the division degenerate, so the received amount is
// used as the gross value instead of failing.
func grossUp(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.Equal(hundred) {
		return amount
	}
	return amount.Mul(hundred).Div(hundred.Sub(rate))
}
