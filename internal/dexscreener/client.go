// Package dexscreener fetches token market data from the DexScreener API.
package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/restclient"
)

const (
	chainSolana = "solana"

	// maxAddressesPerRequest is the DexScreener limit for /tokens/v1.
	maxAddressesPerRequest = 30
	maxTrending            = 30
)

// Client is a DexScreener REST client.
type Client struct {
	rest   *restclient.Client
	logger *zap.Logger
}

// NewClient creates a new DexScreener client.
func NewClient(cfg config.API, logger *zap.Logger, opts ...restclient.Option) *Client {
	logger = logger.Named("dexscreener")
	return &Client{
		rest:   restclient.New(cfg, logger, opts...),
		logger: logger,
	}
}

type pair struct {
	ChainID     string `json:"chainId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"`
	Txns     struct {
		M5 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"m5"`
	} `json:"txns"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Fdv float64 `json:"fdv"`
}

type boost struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

// FetchTokenInfo returns one snapshot per known address, taken from the first pair listed for it.
// Addresses are requested in batches of 30, concurrently.
func (c *Client) FetchTokenInfo(ctx context.Context, addresses []string) ([]models.TokenInfo, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	var chunks [][]string
	for start := 0; start < len(addresses); start += maxAddressesPerRequest {
		chunks = append(chunks, addresses[start:min(start+maxAddressesPerRequest, len(addresses))])
	}

	results := make([][]pair, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			pairs, err := c.fetchPairs(gCtx, chunk)
			if err != nil {
				return err
			}
			results[i] = pairs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch token info: %w", err)
	}

	var tokens []models.TokenInfo
	seen := make(map[string]bool)
	for _, pairs := range results {
		for _, p := range pairs {
			addr := p.BaseToken.Address
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			tokens = append(tokens, c.toTokenInfo(p))
		}
	}
	return tokens, nil
}

func (c *Client) fetchPairs(ctx context.Context, addresses []string) ([]pair, error) {
	var pairs []pair
	req := c.rest.R().
		SetResult(&pairs).
		SetPathParam("addresses", strings.Join(addresses, ","))

	if _, err := c.rest.Do(ctx, http.MethodGet, "/tokens/v1/solana/{addresses}", req); err != nil {
		return nil, err
	}
	return pairs, nil
}

// FetchTrending returns market data for the latest boosted Solana tokens.
func (c *Client) FetchTrending(ctx context.Context) ([]models.TokenInfo, error) {
	var boosts []boost
	req := c.rest.R().SetResult(&boosts)
	if _, err := c.rest.Do(ctx, http.MethodGet, "/token-boosts/latest/v1", req); err != nil {
		return nil, fmt.Errorf("failed to fetch trending tokens: %w", err)
	}

	var addresses []string
	seen := make(map[string]bool)
	for _, b := range boosts {
		if b.ChainID != chainSolana || b.TokenAddress == "" || seen[b.TokenAddress] {
			continue
		}
		seen[b.TokenAddress] = true
		addresses = append(addresses, b.TokenAddress)
		if len(addresses) == maxTrending {
			break
		}
	}
	c.logger.Debug("Fetched trending tokens", zap.Int("boosts", len(boosts)), zap.Int("solana", len(addresses)))
	if len(addresses) == 0 {
		return nil, nil
	}
	return c.FetchTokenInfo(ctx, addresses)
}

func (c *Client) toTokenInfo(p pair) models.TokenInfo {
	var price float64
	if p.PriceUsd != "" {
		v, err := strconv.ParseFloat(p.PriceUsd, 64)
		if err != nil {
			c.logger.Warn("Invalid priceUsd", zap.String("token", p.BaseToken.Address), zap.String("price", p.PriceUsd))
		} else {
			price = v
		}
	}

	symbol := p.BaseToken.Symbol
	if symbol == "" {
		symbol = "???"
	}
	return models.TokenInfo{
		Address:        p.BaseToken.Address,
		Symbol:         symbol,
		Name:           p.BaseToken.Name,
		PriceUSD:       max(price, 0),
		Volume24h:      max(p.Volume.H24, 0),
		LiquidityUSD:   max(p.Liquidity.Usd, 0),
		PriceChange5m:  p.PriceChange.M5,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange24h: p.PriceChange.H24,
		Buys5m:         max(p.Txns.M5.Buys, 0),
		Sells5m:        max(p.Txns.M5.Sells, 0),
		PairAddress:    p.PairAddress,
		FDV:            p.Fdv,
	}
}
