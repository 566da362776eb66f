package models

// TokenInfo is a market snapshot of a token as reported by the market data provider.
type TokenInfo struct {
	Address        string  `json:"address"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	PriceUSD       float64 `json:"price_usd"`
	Volume24h      float64 `json:"volume_24h"`
	LiquidityUSD   float64 `json:"liquidity_usd"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange24h float64 `json:"price_change_24h"`
	Buys5m         int     `json:"buy_count_5m"`
	Sells5m        int     `json:"sell_count_5m"`
	PairAddress    string  `json:"pair_address"`
	FDV            float64 `json:"fdv"`
}

// BuyRatio returns buys/(buys+sells) over the last 5 minutes. ok is false when there were no trades.
func (t TokenInfo) BuyRatio() (ratio float64, ok bool) {
	total := t.Buys5m + t.Sells5m
	if total <= 0 {
		return 0, false
	}
	return float64(t.Buys5m) / float64(total), true
}

// BuyPct is BuyRatio as a percentage, 0 when undefined.
func (t TokenInfo) BuyPct() float64 {
	r, _ := t.BuyRatio()
	return r * 100
}

// HolderStats summarizes the distribution of a token's largest accounts.
type HolderStats struct {
	Count        int     `json:"holder_count"`
	TopHolderPct float64 `json:"top_holder_pct"`
}

// TokenHolding is a fungible token balance held by the wallet.
type TokenHolding struct {
	Mint     string  `json:"mint"`
	Symbol   string  `json:"symbol"`
	Balance  float64 `json:"balance"`
	ValueUSD float64 `json:"value_usd"`
}
