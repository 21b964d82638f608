// Package esi provides the live corporation metadata lookup backed by the
// EVE Swagger Interface. Lookups carry no internal retry; timeout and retry
// policy belong to the caller.
package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/soratidus999/taxtools/internal/platform/cache"
	"github.com/soratidus999/taxtools/internal/platform/httpx"
)

// CorporationInfo is the subset of the public corporation endpoint we consume.
type CorporationInfo struct {
	Name        string  `json:"name"`
	CEOID       int64   `json:"ceo_id"`
	MemberCount int     `json:"member_count"`
	TaxRate     float64 `json:"tax_rate"`
}

// Client looks up corporation metadata, deduplicating concurrent lookups and
// caching responses in Redis with a TTL. A nil redis client disables caching.
type Client struct {
	baseURL string
	http    *http.Client
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

// NewClient constructs an ESI client.
func NewClient(baseURL string, timeout time.Duration, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		redis:   redisClient,
		ttl:     ttl,
		logger:  logger,
	}
}

// CorporationInfo fetches public metadata for a corporation.
func (c *Client) CorporationInfo(ctx context.Context, corpID int64) (CorporationInfo, error) {
	key := fmt.Sprintf("esi:corporation:%d", corpID)
	var info CorporationInfo
	err := cache.FetchJSON(ctx, c.redis, key, c.ttl, &info, func(ctx context.Context) (any, error) {
		return c.fetchCorporation(ctx, corpID)
	})
	if err != nil {
		return CorporationInfo{}, err
	}
	return info, nil
}

// CorporationCEO returns the corporation's CEO id and member count.
func (c *Client) CorporationCEO(ctx context.Context, corpID int64) (int64, int, error) {
	info, err := c.CorporationInfo(ctx, corpID)
	if err != nil {
		return 0, 0, err
	}
	return info.CEOID, info.MemberCount, nil
}

// CurrentTaxRate returns the corporation's currently-effective tax rate as the
// raw 0-1 fraction reported by ESI.
func (c *Client) CurrentTaxRate(ctx context.Context, corpID int64) (decimal.Decimal, error) {
	info, err := c.CorporationInfo(ctx, corpID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(info.TaxRate), nil
}

func (c *Client) fetchCorporation(ctx context.Context, corpID int64) (CorporationInfo, error) {
	key := fmt.Sprintf("corporation:%d", corpID)
	v, err, shared := c.flight(ctx, key, func(ctx context.Context) (any, error) {
		return c.get(ctx, corpID)
	})
	if err != nil {
		return CorporationInfo{}, err
	}
	if shared {
		c.logger.Debug("esi lookup shared between callers", slog.Int64("corporation_id", corpID))
	}
	return v.(CorporationInfo), nil
}

func (c *Client) flight(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := c.group.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func (c *Client) get(ctx context.Context, corpID int64) (CorporationInfo, error) {
	url := fmt.Sprintf("%s/corporations/%d/", c.baseURL, corpID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return CorporationInfo{}, fmt.Errorf("esi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return CorporationInfo{}, fmt.Errorf("esi: corporation %d: %w: %w", corpID, httpx.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CorporationInfo{}, fmt.Errorf("esi: corporation %d: %w: unexpected status %d", corpID, httpx.ErrUpstream, resp.StatusCode)
	}

	var info CorporationInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return CorporationInfo{}, fmt.Errorf("esi: corporation %d: decode: %w", corpID, err)
	}
	return info, nil
}
