// Package chain talks to the Solana RPC: balances, token holdings, holder distribution and
// transaction submission.
package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/models"
)

// DryRunSignature is returned instead of a real signature when submission is simulated.
const DryRunSignature = "DRY_RUN_SIMULATED_TX_SIG"

const (
	lamportsPerSOL = 1_000_000_000
	maxReadTries   = 3

	fungibleTokenInterface = "FungibleToken"
	assetsPageLimit        = 1000
)

// ErrNoWallet is returned when a transaction has to be signed but no key is configured.
var ErrNoWallet = errors.New("no wallet configured")

// rpcAPI is the subset of the solana-go RPC client used here.
type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenLargestAccounts(ctx context.Context, tokenMint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenLargestAccountsResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	SendRawTransactionWithOpts(ctx context.Context, txData []byte, opts rpc.TransactionOpts) (solana.Signature, error)
}

// dasAPI sends Helius DAS requests, which take named params.
type dasAPI interface {
	CallFor(ctx context.Context, out any, method string, params ...any) error
}

// Client is a Solana RPC client bound to an optional wallet.
type Client struct {
	rpc           rpcAPI
	das           dasAPI
	wallet        *Wallet
	limiter       *rate.Limiter
	logger        *zap.Logger
	dryRun        bool
	retryInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetryInterval sets the initial backoff between read retries.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// WithLimiter replaces the limiter built from the config.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates a client for the configured RPC endpoint. wallet may be nil, in which case
// only reads are possible.
func NewClient(cfg config.Solana, wallet *Wallet, dryRun bool, logger *zap.Logger, opts ...Option) *Client {
	endpoint := cfg.Endpoint()
	return newClient(rpc.New(endpoint), jsonrpc.NewClient(endpoint), cfg, wallet, dryRun, logger, opts...)
}

func newClient(api rpcAPI, das dasAPI, cfg config.Solana, wallet *Wallet, dryRun bool, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		rpc:           api,
		das:           das,
		wallet:        wallet,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		logger:        logger.Named("chain"),
		dryRun:        dryRun,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wallet returns the configured wallet address, or "" without one.
func (c *Client) Wallet() string {
	if c.wallet == nil {
		return ""
	}
	return c.wallet.Address()
}

// GetBalance returns the SOL balance of wallet.
func (c *Client) GetBalance(ctx context.Context, wallet string) (float64, error) {
	pubkey, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return 0, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}

	lamports, err := retryRead(ctx, c, "getBalance", func() (uint64, error) {
		res, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
		if err != nil {
			return 0, err
		}
		return res.Value, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return float64(lamports) / lamportsPerSOL, nil
}

type assetsByOwnerParams struct {
	OwnerAddress   string              `json:"ownerAddress"`
	Page           int                 `json:"page"`
	Limit          int                 `json:"limit"`
	DisplayOptions assetDisplayOptions `json:"displayOptions"`
}

type assetDisplayOptions struct {
	ShowFungible bool `json:"showFungible"`
}

type assetsPage struct {
	Total int     `json:"total"`
	Items []asset `json:"items"`
}

type asset struct {
	ID        string `json:"id"`
	Interface string `json:"interface"`
	Content   struct {
		Metadata struct {
			Symbol string `json:"symbol"`
		} `json:"metadata"`
	} `json:"content"`
	TokenInfo struct {
		Symbol    string          `json:"symbol"`
		Balance   decimal.Decimal `json:"balance"`
		Decimals  int32           `json:"decimals"`
		PriceInfo struct {
			PricePerToken float64 `json:"price_per_token"`
		} `json:"price_info"`
	} `json:"token_info"`
}

// GetTokenHoldings lists the fungible tokens wallet holds through the Helius DAS
// getAssetsByOwner method. Balances are decimal adjusted; tokens without a price are valued at 0.
func (c *Client) GetTokenHoldings(ctx context.Context, wallet string) ([]models.TokenHolding, error) {
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		return nil, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}

	params := assetsByOwnerParams{
		OwnerAddress:   wallet,
		Page:           1,
		Limit:          assetsPageLimit,
		DisplayOptions: assetDisplayOptions{ShowFungible: true},
	}
	page, err := retryRead(ctx, c, "getAssetsByOwner", func() (*assetsPage, error) {
		var out assetsPage
		if err := c.das.CallFor(ctx, &out, "getAssetsByOwner", params); err != nil {
			var rpcErr *jsonrpc.RPCError
			if errors.As(err, &rpcErr) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get token holdings: %w", err)
	}
	return tokenHoldings(page.Items), nil
}

func tokenHoldings(items []asset) []models.TokenHolding {
	var out []models.TokenHolding
	for _, a := range items {
		info := a.TokenInfo
		if a.Interface != fungibleTokenInterface || !info.Balance.IsPositive() {
			continue
		}
		symbol := a.Content.Metadata.Symbol
		if symbol == "" {
			symbol = info.Symbol
		}
		if symbol == "" {
			symbol = "???"
		}
		balance := info.Balance.Shift(-info.Decimals)
		value := balance.Mul(decimal.NewFromFloat(info.PriceInfo.PricePerToken))
		out = append(out, models.TokenHolding{
			Mint:     a.ID,
			Symbol:   symbol,
			Balance:  balance.InexactFloat64(),
			ValueUSD: value.Round(2).InexactFloat64(),
		})
	}
	return out
}

// GetHolderStats summarizes the largest token accounts of mint. A mint without accounts reports
// a 100% top holder.
func (c *Client) GetHolderStats(ctx context.Context, mint string) (models.HolderStats, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return models.HolderStats{}, fmt.Errorf("invalid mint address %q: %w", mint, err)
	}

	amounts, err := retryRead(ctx, c, "getTokenLargestAccounts", func() ([]string, error) {
		res, err := c.rpc.GetTokenLargestAccounts(ctx, pubkey, rpc.CommitmentFinalized)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(res.Value))
		for _, acc := range res.Value {
			if acc != nil {
				out = append(out, acc.Amount)
			}
		}
		return out, nil
	})
	if err != nil {
		return models.HolderStats{}, fmt.Errorf("failed to get token holders: %w", err)
	}
	return holderStats(amounts)
}

func holderStats(amounts []string) (models.HolderStats, error) {
	if len(amounts) == 0 {
		return models.HolderStats{Count: 0, TopHolderPct: 100}, nil
	}

	total := decimal.Zero
	top := decimal.Zero
	for _, a := range amounts {
		d, err := decimal.NewFromString(a)
		if err != nil {
			return models.HolderStats{}, fmt.Errorf("invalid token amount %q: %w", a, err)
		}
		total = total.Add(d)
		if d.GreaterThan(top) {
			top = d
		}
	}
	if total.IsZero() {
		total = decimal.NewFromInt(1)
	}

	pct := top.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
	return models.HolderStats{Count: len(amounts), TopHolderPct: pct.InexactFloat64()}, nil
}

// SignAndSubmit signs a base64 serialized swap transaction with the wallet and sends it.
// Submission is never retried. In dry-run mode nothing is sent.
func (c *Client) SignAndSubmit(ctx context.Context, swapTransaction string) (string, error) {
	if c.dryRun {
		return DryRunSignature, nil
	}
	if c.wallet == nil {
		return "", ErrNoWallet
	}

	raw, err := base64.StdEncoding.DecodeString(swapTransaction)
	if err != nil {
		return "", fmt.Errorf("failed to decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	if err := c.wallet.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction submitted", zap.String("signature", sig.String()))
	return sig.String(), nil
}

// SubmitSignedTransaction sends an already signed, serialized transaction.
func (c *Client) SubmitSignedTransaction(ctx context.Context, raw []byte) (string, error) {
	if c.dryRun {
		return DryRunSignature, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig.String(), nil
}

func retryRead[T any](ctx context.Context, c *Client, method string, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = c.retryInterval * 10

	notify := func(err error, d time.Duration) {
		c.logger.Warn("RPC call failed, retrying...", zap.String("method", method), zap.Duration("backoff", d), zap.Error(err))
	}

	return backoff.Retry(ctx, func() (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		return op()
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxReadTries), backoff.WithNotify(notify))
}
