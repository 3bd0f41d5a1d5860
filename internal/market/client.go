// Package market reads current market prices from the procurement
// collaborator. Prices only seed liquidation previews.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backoffice-pricing/internal/money"
	"github.com/noah-isme/backoffice-pricing/internal/obs"
	"github.com/noah-isme/backoffice-pricing/internal/resilience"
)

const cacheKeyPrefix = "market:price:v1:"

// Prices maps product ID to current market price.
type Prices map[string]money.Money

// Source fetches market prices for products. Products the collaborator does
// not know are absent from the result.
type Source interface {
	Prices(ctx context.Context, productIDs []string) (Prices, error)
}

// Client calls GET {base}/market-prices?productIds=a,b and caches answers.
type Client struct {
	baseURL  string
	http     resilience.HTTPClient
	redis    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// Config configures the client.
type Config struct {
	BaseURL  string
	HTTP     resilience.HTTPClient
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("market: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("market: base url: %w", err)
	}
	if cfg.HTTP.Client == nil {
		cfg.HTTP = resilience.NewHTTPClient(resilience.Options{Target: "market-price", MaxAttempts: 3})
	}
	return &Client{
		baseURL:  base,
		http:     cfg.HTTP,
		redis:    cfg.Redis,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger.With().Str("component", "market").Logger(),
	}, nil
}

type pricesResponse struct {
	Data []struct {
		ProductID string      `json:"productId"`
		Price     money.Money `json:"price"`
	} `json:"data"`
}

// Prices returns the market price for each known product.
func (c *Client) Prices(ctx context.Context, productIDs []string) (Prices, error) {
	out := make(Prices, len(productIDs))
	misses := c.fromCache(ctx, productIDs, out)
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.fetch(ctx, misses)
	if err != nil {
		obs.CountMarketLookup("error")
		return nil, err
	}
	obs.CountMarketLookup("upstream")
	for id, price := range fetched {
		out[id] = price
	}
	c.toCache(ctx, fetched)
	return out, nil
}

func (c *Client) fetch(ctx context.Context, ids []string) (Prices, error) {
	q := url.Values{}
	q.Set("productIds", strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/market-prices?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("market: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("market: fetch prices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market: unexpected status %s", resp.Status)
	}

	var body pricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("market: decode prices: %w", err)
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	prices := make(Prices, len(body.Data))
	for _, row := range body.Data {
		if _, ok := wanted[row.ProductID]; !ok {
			continue
		}
		prices[row.ProductID] = row.Price
	}
	return prices, nil
}

func (c *Client) fromCache(ctx context.Context, ids []string, out Prices) []string {
	if c.redis == nil || c.cacheTTL <= 0 {
		return ids
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKeyPrefix + id
	}
	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("market_cache_get_failed")
		return ids
	}
	var misses []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		price, err := money.Parse(raw)
		if err != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = price
		obs.CountMarketLookup("cache")
	}
	return misses
}

func (c *Client) toCache(ctx context.Context, prices Prices) {
	if c.redis == nil || c.cacheTTL <= 0 || len(prices) == 0 {
		return
	}
	pipe := c.redis.Pipeline()
	for id, price := range prices {
		pipe.Set(ctx, cacheKeyPrefix+id, price.String(), c.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("market_cache_set_failed")
	}
}
