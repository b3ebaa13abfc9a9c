// Package exchange is the sole boundary between the control plane and a perp
// futures venue. Every other package talks to a Gateway, never to an HTTP
// client directly (spec.md §6: "consumed only via Exchange Gateway").
package exchange

import (
	"context"
	"time"
)

// OrderSide is the venue-native order side, distinct from models.Side: an entry
// on models.SideLong places a BUY order, but closing it places a SELL.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

type OrderType string

const (
	TypeMarket          OrderType = "MARKET"
	TypeTakeProfitMkt   OrderType = "TAKE_PROFIT_MARKET"
	TypeStopMkt         OrderType = "STOP_MARKET"
)

// Kline is one OHLCV bar. Timestamps are venue server time.
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Ticker is the latest trade/mark snapshot for a symbol.
type Ticker struct {
	Symbol    string
	LastPrice float64
	MarkPrice float64
	BestBid   float64
	BestAsk   float64
	AsOf      time.Time
}

// OpenOrder mirrors spec.md §6's open_orders shape closely enough that the
// Order Manager can tell a TP leg from an SL leg without venue-specific code.
type OpenOrder struct {
	OrderID        string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	StopPrice      float64
	ClosePosition  bool
	ReduceOnly     bool
	Quantity       float64
	Status         string
}

// PositionInfo is the venue's current view of a symbol's position. PositionAmt
// is signed: positive is long, negative is short, zero means flat.
type PositionInfo struct {
	Symbol           string
	PositionAmt      float64
	EntryPrice       float64
	Leverage         int
	MarkPrice        float64
	UnrealizedProfit float64
}

// Balance is one asset line from account_balance().
type Balance struct {
	Asset            string
	Total            float64
	AvailableBalance float64
}

// OrderParams covers every place_order shape named in spec.md §6: a plain
// market entry, a TP leg (preferred closePosition mode or reduceOnly
// fallback), and an SL leg (same two modes under STOP_MARKET).
type OrderParams struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	StopPrice     float64
	ClosePosition bool
	ReduceOnly    bool
	WorkingType   string // "MARK_PRICE" for TP/SL legs
}

// OrderResult is what the venue handed back for a placed order.
type OrderResult struct {
	OrderID string
	Status  string
}

// Filters is the per-symbol precision/minimum metadata backing
// models.Symbol; GetFilters is how the gateway populates it at startup and
// whenever the Order Manager reports a filter mismatch.
type Filters struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MinNotional float64
}

// Gateway is the venue-agnostic contract every other component depends on.
// Implementations retry transport/5xx errors with exponential backoff and
// short-circuit on the mapped exchange error codes in errcode.go (spec.md
// §4.A, §6). All methods are safe for concurrent use.
type Gateway interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
	GetPositionInfo(ctx context.Context, symbol string) (PositionInfo, error)
	GetBalance(ctx context.Context) ([]Balance, error)
	PlaceOrder(ctx context.Context, params OrderParams) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetFilters(ctx context.Context, symbol string) (Filters, error)
}
