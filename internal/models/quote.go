package models

import "encoding/json"

// Quote is a swap route quote. Raw keeps the provider response so it can be sent back for the swap.
type Quote struct {
	InputMint      string          `json:"input_mint"`
	OutputMint     string          `json:"output_mint"`
	InAmount       uint64          `json:"in_amount"`
	OutAmount      uint64          `json:"out_amount"`
	PriceImpactPct float64         `json:"price_impact_pct"`
	SlippageBps    int             `json:"slippage_bps"`
	RouteCount     int             `json:"route_count"`
	Raw            json.RawMessage `json:"-"`
}

// Swap receipt statuses.
const (
	SwapStatusDryRun = "dry_run"
	SwapStatusBuilt  = "built"
)

// SwapReceipt is what the router hands back after a swap request. In dry-run mode it is only a marker.
type SwapReceipt struct {
	Status               string `json:"status"`
	SwapTransaction      string `json:"swap_transaction,omitempty"` // base64, unsigned
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
	InAmount             uint64 `json:"in_amount"`
	OutAmount            uint64 `json:"out_amount"`
}
