// Package jupiter quotes and builds swaps through the Jupiter aggregator.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/models"
	"solana-trade-bot-go/internal/restclient"
)

// Client is a Jupiter swap API client. In dry-run mode swaps are never requested.
type Client struct {
	rest   *restclient.Client
	logger *zap.Logger
	dryRun bool
}

// NewClient creates a new Jupiter client.
func NewClient(cfg config.API, dryRun bool, logger *zap.Logger, opts ...restclient.Option) *Client {
	logger = logger.Named("jupiter")
	if dryRun {
		logger.Warn("Dry run enabled. Swaps will be simulated.")
	}
	return &Client{
		rest:   restclient.New(cfg, logger, opts...),
		logger: logger,
		dryRun: dryRun,
	}
}

type quoteResponse struct {
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	PriceImpactPct string            `json:"priceImpactPct"`
	SlippageBps    int               `json:"slippageBps"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// Quote asks for the best route swapping amount base units of inputMint into outputMint.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*models.Quote, error) {
	req := c.rest.R().SetQueryParams(map[string]string{
		"inputMint":   inputMint,
		"outputMint":  outputMint,
		"amount":      strconv.FormatUint(amount, 10),
		"slippageBps": strconv.Itoa(slippageBps),
	})

	resp, err := c.rest.Do(ctx, http.MethodGet, "/swap/v1/quote", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap quote: %w", err)
	}

	raw := resp.Body()
	var qr quoteResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return nil, fmt.Errorf("failed to decode swap quote: %w", err)
	}

	quote := &models.Quote{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		SlippageBps: slippageBps,
		RouteCount:  len(qr.RoutePlan),
		Raw:         json.RawMessage(raw),
	}
	if quote.InAmount, err = parseUint(qr.InAmount); err != nil {
		return nil, fmt.Errorf("invalid inAmount: %w", err)
	}
	if quote.OutAmount, err = parseUint(qr.OutAmount); err != nil {
		return nil, fmt.Errorf("invalid outAmount: %w", err)
	}
	if qr.PriceImpactPct != "" {
		if quote.PriceImpactPct, err = strconv.ParseFloat(qr.PriceImpactPct, 64); err != nil {
			return nil, fmt.Errorf("invalid priceImpactPct: %w", err)
		}
	}

	c.logger.Debug("Got swap quote",
		zap.String("input_mint", inputMint),
		zap.String("output_mint", outputMint),
		zap.Uint64("in_amount", quote.InAmount),
		zap.Uint64("out_amount", quote.OutAmount),
		zap.Float64("price_impact_pct", quote.PriceImpactPct))
	return quote, nil
}

// ExecuteSwap builds the unsigned swap transaction for the quote. In dry-run mode it returns a
// marker receipt without calling the API.
func (c *Client) ExecuteSwap(ctx context.Context, quote *models.Quote, wallet string) (*models.SwapReceipt, error) {
	if quote == nil {
		return nil, errors.New("quote is required")
	}
	if c.dryRun {
		return &models.SwapReceipt{
			Status:    models.SwapStatusDryRun,
			InAmount:  quote.InAmount,
			OutAmount: quote.OutAmount,
		}, nil
	}
	if len(quote.Raw) == 0 {
		return nil, errors.New("quote has no raw response to swap")
	}

	var sr swapResponse
	req := c.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(swapRequest{
			QuoteResponse:             quote.Raw,
			UserPublicKey:             wallet,
			WrapAndUnwrapSol:          true,
			PrioritizationFeeLamports: "auto",
		}).
		SetResult(&sr)

	if _, err := c.rest.Do(ctx, http.MethodPost, "/swap/v1/swap", req); err != nil {
		return nil, fmt.Errorf("failed to build swap: %w", err)
	}
	if sr.SwapTransaction == "" {
		return nil, errors.New("no swap transaction in response")
	}

	return &models.SwapReceipt{
		Status:               models.SwapStatusBuilt,
		SwapTransaction:      sr.SwapTransaction,
		LastValidBlockHeight: sr.LastValidBlockHeight,
		InAmount:             quote.InAmount,
		OutAmount:            quote.OutAmount,
	}, nil
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
