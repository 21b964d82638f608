package membertax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrConfigNotFound indicates the member tax configuration is missing.
var ErrConfigNotFound = errors.New("member tax configuration not found")

// Repository abstracts persistence for member tax configurations and counts.
type Repository interface {
	GetConfig(ctx context.Context, id int64) (Configuration, error)
	ListConfigs(ctx context.Context) ([]Configuration, error)
	// MainCounts returns, per corporation, how many characters holding the
	// state are their own account's main character.
	MainCounts(ctx context.Context, state string) ([]CorpMainCount, error)
}

// CorporationSource supplies live corporation metadata (CEO, member count).
type CorporationSource interface {
	CorporationCEO(ctx context.Context, corpID int64) (int64, int, error)
}

// Service computes per-corp head tax invoices for a membership state.
type Service struct {
	repo   Repository
	corps  CorporationSource
	logger *slog.Logger
}

// NewService constructs the member tax service.
func NewService(repo Repository, corps CorporationSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, corps: corps, logger: logger}
}

// Configs lists all configurations.
func (s *Service) Configs(ctx context.Context) ([]Configuration, error) {
	return s.repo.ListConfigs(ctx)
}

// InvoiceData computes one invoice per corp with mains in the config's state.
func (s *Service) InvoiceData(ctx context.Context, configID int64) (map[int64]Invoice, error) {
	cfg, err := s.repo.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.MainCounts(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("membertax: main counts for state %q: %w", cfg.State, err)
	}

	out := make(map[int64]Invoice, len(counts))
	for _, c := range counts {
		ceoID, members, err := s.corps.CorporationCEO(ctx, c.CorporationID)
		if err != nil {
			return nil, fmt.Errorf("membertax: corporation %d: %w", c.CorporationID, err)
		}
		out[c.CorporationID] = Invoice{
			CorporationID:   c.CorporationID,
			CorporationName: c.CorporationName,
			CEOID:           ceoID,
			MemberCount:     members,
			MainCount:       c.MainCount,
			Tax:             int64(c.MainCount) * cfg.IskPerMain,
		}
	}
	return out, nil
}

// InvoiceStats summarises invoice data: main counts per corp name and the
// total tax across the state.
func (s *Service) InvoiceStats(ctx context.Context, configID int64) (Stats, error) {
	invoices, err := s.InvoiceData(ctx, configID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Corps: make(map[string]int, len(invoices))}
	for _, inv := range invoices {
		stats.Corps[inv.CorporationName] = inv.MainCount
		stats.Total += inv.Tax
	}
	return stats, nil
}
