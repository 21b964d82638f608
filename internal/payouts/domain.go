package payouts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfigScope selects which wallet journal feeds an aggregation run.
type ConfigScope string

const (
	// ScopeCharacter taxes payouts received in character wallets.
	ScopeCharacter ConfigScope = "character"
	// ScopeCorporation taxes payouts received in corporation wallets.
	ScopeCorporation ConfigScope = "corporation"
)

// TaxConfiguration identifies a taxed corporation, a wallet ref type filter and
// a flat tax percentage (0-100, two decimal places). Only the percentage may be
// edited after creation; an edit applies to future runs, never retroactively.
type TaxConfiguration struct {
	ID              int64           `json:"id"`
	CorporationID   int64           `json:"corporation_id"`
	CorporationName string          `json:"corporation_name"`
	RefType         string          `json:"ref_type"`
	Tax             decimal.Decimal `json:"tax"`
	Scope           ConfigScope     `json:"scope"`
}

// JournalEntry is one dated wallet journal row eligible for aggregation.
// Entries are read-only input; EntryID is globally unique per journal.
type JournalEntry struct {
	EntryID           int64
	Amount            decimal.Decimal
	Date              time.Time
	CharacterID       int64
	CharacterName     string
	CorporationID     int64 // corp whose rate timeline applies
	MainCharacterID   int64 // 0 when the owning main is unknown
	MainCorporationID int64 // 0 when the owning main is unknown
}

// Bucket accumulates one grouping key's share of an aggregation run. Sums and
// counts only ever grow as entries fold in; a transaction id appears at most
// once across all buckets of a run.
type Bucket struct {
	CorporationID  int64             `json:"corporation_id"`
	Characters     []string          `json:"characters"`
	TransactionIDs []int64           `json:"transaction_ids"`
	RatesUsed      []decimal.Decimal `json:"tax_rates_used"`
	SumEarned      decimal.Decimal   `json:"sum_earned"`
	PreTaxTotal    decimal.Decimal   `json:"pre_tax_total"`
	TaxToPay       decimal.Decimal   `json:"tax_to_pay"`
	Count          int               `json:"count"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
}

func newBucket() *Bucket {
	return &Bucket{
		SumEarned:   decimal.Zero,
		PreTaxTotal: decimal.Zero,
		TaxToPay:    decimal.Zero,
	}
}

// fold adds one journal entry's contribution.
func (b *Bucket) fold(e JournalEntry, rate, gross, tax decimal.Decimal) {
	b.SumEarned = b.SumEarned.Add(e.Amount)
	b.PreTaxTotal = b.PreTaxTotal.Add(gross)
	b.TaxToPay = b.TaxToPay.Add(tax)
	b.Count++
	b.TransactionIDs = append(b.TransactionIDs, e.EntryID)
	if !containsDecimal(b.RatesUsed, rate) {
		b.RatesUsed = append(b.RatesUsed, rate)
	}
	if e.CharacterName != "" && !containsString(b.Characters, e.CharacterName) {
		b.Characters = append(b.Characters, e.CharacterName)
	}
	b.extendWindow(e.Date, e.Date)
}

// merge folds another bucket in, unioning the distinct sets.
func (b *Bucket) merge(other *Bucket) {
	b.SumEarned = b.SumEarned.Add(other.SumEarned)
	b.PreTaxTotal = b.PreTaxTotal.Add(other.PreTaxTotal)
	b.TaxToPay = b.TaxToPay.Add(other.TaxToPay)
	b.Count += other.Count

	known := make(map[int64]struct{}, len(b.TransactionIDs))
	for _, id := range b.TransactionIDs {
		known[id] = struct{}{}
	}
	for _, id := range other.TransactionIDs {
		if _, ok := known[id]; !ok {
			b.TransactionIDs = append(b.TransactionIDs, id)
			known[id] = struct{}{}
		}
	}
	for _, rate := range other.RatesUsed {
		if !containsDecimal(b.RatesUsed, rate) {
			b.RatesUsed = append(b.RatesUsed, rate)
		}
	}
	for _, name := range other.Characters {
		if !containsString(b.Characters, name) {
			b.Characters = append(b.Characters, name)
		}
	}
	b.extendWindow(other.Start, other.End)
}

// extendWindow widens [Start, End] to include the given range. Both bounds
// merge symmetrically: min of starts, max of ends.
func (b *Bucket) extendWindow(start, end time.Time) {
	if !start.IsZero() && (b.Start.IsZero() || start.Before(b.Start)) {
		b.Start = start
	}
	if !end.IsZero() && (b.End.IsZero() || end.After(b.End)) {
		b.End = end
	}
}

func containsDecimal(list []decimal.Decimal, v decimal.Decimal) bool {
	for _, d := range list {
		if d.Equal(v) {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Result is the outcome of a single aggregation run, owned by the caller.
type Result struct {
	Buckets           map[int64]*Bucket `json:"buckets"`
	DuplicatesSkipped int               `json:"duplicates_skipped"`
}

// RunRecord logs one committed payout run for a configuration.
type RunRecord struct {
	ID          uuid.UUID `json:"id"`
	ConfigID    int64     `json:"config_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	BucketCount int       `json:"bucket_count"`
	MarkedCount int       `json:"marked_count"`
	CreatedAt   time.Time `json:"created_at"`
}
