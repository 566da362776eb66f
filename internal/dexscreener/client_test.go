package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/restclient"
)

func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	c := NewClient(config.API{BaseURL: server.URL}, zap.NewNop(),
		restclient.WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		restclient.WithBaseDelay(time.Millisecond))
	return c, server
}

const pairsResponse = `[
  {
    "chainId": "solana",
    "pairAddress": "PAIR1",
    "baseToken": {"address": "MINT1", "name": "Dog Coin", "symbol": "DOG"},
    "priceUsd": "0.00012345",
    "txns": {"m5": {"buys": 70, "sells": 30}},
    "volume": {"h24": 1500000.5},
    "priceChange": {"m5": 6.1, "h1": -2, "h24": 40},
    "liquidity": {"usd": 250000},
    "fdv": 1200000
  },
  {
    "chainId": "solana",
    "pairAddress": "PAIR2",
    "baseToken": {"address": "MINT1", "symbol": "DOG"},
    "priceUsd": "9"
  },
  {
    "chainId": "solana",
    "pairAddress": "PAIR3",
    "baseToken": {"address": "MINT2", "symbol": ""},
    "priceUsd": null,
    "liquidity": null
  }
]`

func TestFetchTokenInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/v1/solana/MINT1,MINT2", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pairsResponse))
	})
	c, server := setupTestServer(handler)
	defer server.Close()

	tokens, err := c.FetchTokenInfo(context.Background(), []string{"MINT1", "MINT2"})

	require.NoError(t, err)
	require.Len(t, tokens, 2)

	dog := tokens[0]
	assert.Equal(t, "MINT1", dog.Address)
	assert.Equal(t, "DOG", dog.Symbol)
	assert.Equal(t, "Dog Coin", dog.Name)
	assert.Equal(t, "PAIR1", dog.PairAddress)
	assert.InDelta(t, 0.00012345, dog.PriceUSD, 1e-12)
	assert.Equal(t, 1500000.5, dog.Volume24h)
	assert.Equal(t, 250000.0, dog.LiquidityUSD)
	assert.Equal(t, 6.1, dog.PriceChange5m)
	assert.Equal(t, -2.0, dog.PriceChange1h)
	assert.Equal(t, 70, dog.Buys5m)
	assert.Equal(t, 30, dog.Sells5m)
	assert.Equal(t, 1200000.0, dog.FDV)

	empty := tokens[1]
	assert.Equal(t, "???", empty.Symbol)
	assert.Zero(t, empty.PriceUSD)
	assert.Zero(t, empty.LiquidityUSD)
}

func TestFetchTokenInfo_Batches(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		addrs := strings.Split(strings.TrimPrefix(r.URL.Path, "/tokens/v1/solana/"), ",")
		assert.LessOrEqual(t, len(addrs), maxAddressesPerRequest)
		var items []string
		for _, a := range addrs {
			items = append(items, fmt.Sprintf(`{"baseToken": {"address": %q, "symbol": "S"}, "priceUsd": "1"}`, a))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	})
	c, server := setupTestServer(handler)
	defer server.Close()

	var addresses []string
	for i := 0; i < 65; i++ {
		addresses = append(addresses, fmt.Sprintf("M%02d", i))
	}

	tokens, err := c.FetchTokenInfo(context.Background(), addresses)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, tokens, 65)
	for i, tok := range tokens {
		assert.Equal(t, addresses[i], tok.Address)
	}
}

func TestFetchTokenInfo_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c, server := setupTestServer(handler)
	defer server.Close()

	tokens, err := c.FetchTokenInfo(context.Background(), []string{"MINT1"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch token info")
	assert.Nil(t, tokens)
}

func TestFetchTrending(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token-boosts/latest/v1":
			_, _ = w.Write([]byte(`[
				{"chainId": "ethereum", "tokenAddress": "0xabc"},
				{"chainId": "solana", "tokenAddress": "MINT1"},
				{"chainId": "solana", "tokenAddress": "MINT1"},
				{"chainId": "solana", "tokenAddress": ""},
				{"chainId": "solana", "tokenAddress": "MINT2"}
			]`))
		case "/tokens/v1/solana/MINT1,MINT2":
			_, _ = w.Write([]byte(pairsResponse))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c, server := setupTestServer(handler)
	defer server.Close()

	tokens, err := c.FetchTrending(context.Background())

	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "MINT1", tokens[0].Address)
}

func TestFetchTrending_NoSolanaTokens(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token-boosts/latest/v1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"chainId": "base", "tokenAddress": "0x1"}]`))
	})
	c, server := setupTestServer(handler)
	defer server.Close()

	tokens, err := c.FetchTrending(context.Background())

	require.NoError(t, err)
	assert.Empty(t, tokens)
}
