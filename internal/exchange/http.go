package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"perpctl/pkg/logger"
)

const (
	baseRetryWait = 200 * time.Millisecond
	maxRetries    = 5
	backoffFactor = 2.0
)

// HTTPGateway is the REST implementation of Gateway. Request signing follows
// the teacher's generateRequest (internal/exchange/client.go): a
// timestamp+method+path+body HMAC-SHA256 digest, base64-encoded, on three
// OK-ACCESS-* headers. The retry/rate-limit wrapper is grounded on
// AlejandroRuiz99-polybot's polymarket.Client.doWithRetry, adapted to
// short-circuit on the mapped error codes in errcode.go instead of always
// retrying.
type HTTPGateway struct {
	http       *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
}

// NewHTTPGateway builds a gateway against baseURL with a limiter sized to
// the venue's documented call budget; ratePerSec/burst are left to the
// caller because they are venue-specific (spec.md §5: "call budget must be
// respected").
func NewHTTPGateway(baseURL, apiKey, apiSecret, passphrase string, ratePerSec float64, burst int) *HTTPGateway {
	return &HTTPGateway{
		http:       &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
	}
}

func (g *HTTPGateway) sign(ts, method, path, body string) string {
	msg := ts + strings.ToUpper(method) + path + body
	h := hmac.New(sha256.New, []byte(g.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (g *HTTPGateway) newRequest(ctx context.Context, method, path, body string) (*http.Request, error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("OK-ACCESS-KEY", g.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", g.sign(ts, method, path, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", g.passphrase)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// venueError is the wire shape shared by every authenticated endpoint used
// here: {code, msg, data}. Code "0" is success per the teacher's OKX client.
type venueError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// doWithRetry executes fn, retrying transport errors and 5xx/429 responses
// with exponential backoff (base 200ms, factor 2, max 5 tries per spec.md
// §4.A), but returning immediately on a mapped exchange error code so the
// caller's short-circuit policy (errcode.go) takes over. The exception is
// -2021, which is retried once, after a delay, when it comes back on the
// first attempt.
func (g *HTTPGateway) doWithRetry(ctx context.Context, method, path, body string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := g.newRequest(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		resp, err := g.http.Do(req)
		if err != nil {
			lastErr = err
			logger.Error("exchange transport error: attempt=%d path=%s err=%v", attempt+1, path, err)
			g.sleep(ctx, attempt)
			continue
		}

		rb, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &MappedError{Code: CodeRateLimited, Msg: "rate limited"}
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					g.sleepFor(ctx, time.Duration(secs)*time.Second)
					continue
				}
			}
			g.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode/100 == 5 {
			lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
			g.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
		}

		var ve venueError
		if err := json.Unmarshal(rb, &ve); err == nil && ve.Code != "" && ve.Code != "0" {
			code, convErr := strconv.Atoi(ve.Code)
			if convErr == nil && code != 0 {
				mapped := &MappedError{Code: code, Msg: ve.Msg}
				if ShortCircuit(code) {
					return rb, mapped
				}
				if PolicyFor(code) == PolicyRetryOnceDelayed && attempt == 0 {
					lastErr = mapped
					g.sleepFor(ctx, time.Duration(RetryOnceDelayMin+(RetryOnceDelayMax-RetryOnceDelayMin)/2)*time.Millisecond)
					continue
				}
				return rb, mapped
			}
		}
		return rb, nil
	}
	return nil, fmt.Errorf("exchange call failed after %d attempts: %w", maxRetries, lastErr)
}

func (g *HTTPGateway) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(float64(baseRetryWait) * math.Pow(backoffFactor, float64(attempt)))
	g.sleepFor(ctx, wait)
}

func (g *HTTPGateway) sleepFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (g *HTTPGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", symbol, interval, limit)
	rb, err := g.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	var wrap struct {
		Data [][]string `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil {
		return nil, err
	}
	out := make([]Kline, 0, len(wrap.Data))
	for _, row := range wrap.Data {
		if len(row) < 6 {
			continue
		}
		k, err := parseKline(row)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func parseKline(row []string) (Kline, error) {
	msMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Kline{}, err
	}
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	return Kline{
		OpenTime: time.UnixMilli(msMs).UTC(),
		Open:     f(row[1]),
		High:     f(row[2]),
		Low:      f(row[3]),
		Close:    f(row[4]),
		Volume:   f(row[5]),
	}, nil
}

func (g *HTTPGateway) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	path := fmt.Sprintf("/api/v5/market/ticker?instId=%s", symbol)
	rb, err := g.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return Ticker{}, err
	}
	var wrap struct {
		Data []struct {
			Last   string `json:"last"`
			BidPx  string `json:"bidPx"`
			AskPx  string `json:"askPx"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil || len(wrap.Data) == 0 {
		return Ticker{}, fmt.Errorf("unexpected ticker shape for %s", symbol)
	}
	d := wrap.Data[0]
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	return Ticker{
		Symbol:    symbol,
		LastPrice: f(d.Last),
		MarkPrice: f(d.Last),
		BestBid:   f(d.BidPx),
		BestAsk:   f(d.AskPx),
		AsOf:      time.Now().UTC(),
	}, nil
}

func (g *HTTPGateway) GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	path := "/api/v5/trade/orders-algo-pending?ordType=conditional"
	if symbol != "" {
		path += "&instId=" + symbol
	}
	rb, err := g.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return nil, err
	}
	var wrap struct {
		Data []struct {
			AlgoID        string `json:"algoId"`
			InstID        string `json:"instId"`
			Side          string `json:"side"`
			OrdType       string `json:"ordType"`
			TpTriggerPx   string `json:"tpTriggerPx"`
			SlTriggerPx   string `json:"slTriggerPx"`
			ReduceOnly    string `json:"reduceOnly"`
			Sz            string `json:"sz"`
			State         string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil {
		return nil, err
	}
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	out := make([]OpenOrder, 0, len(wrap.Data))
	for _, d := range wrap.Data {
		ot := TypeTakeProfitMkt
		stop := f(d.TpTriggerPx)
		if stop == 0 {
			ot = TypeStopMkt
			stop = f(d.SlTriggerPx)
		}
		out = append(out, OpenOrder{
			OrderID:       d.AlgoID,
			Symbol:        d.InstID,
			Side:          OrderSide(strings.ToUpper(d.Side)),
			Type:          ot,
			StopPrice:     stop,
			ClosePosition: d.ReduceOnly != "true",
			ReduceOnly:    d.ReduceOnly == "true",
			Quantity:      f(d.Sz),
			Status:        d.State,
		})
	}
	return out, nil
}

func (g *HTTPGateway) GetPositionInfo(ctx context.Context, symbol string) (PositionInfo, error) {
	path := "/api/v5/account/positions"
	if symbol != "" {
		path += "?instId=" + symbol
	}
	rb, err := g.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return PositionInfo{}, err
	}
	var wrap struct {
		Data []struct {
			InstID  string `json:"instId"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			Lever   string `json:"lever"`
			MarkPx  string `json:"markPx"`
			Upl     string `json:"upl"`
			PosSide string `json:"posSide"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil {
		return PositionInfo{}, err
	}
	if len(wrap.Data) == 0 {
		return PositionInfo{Symbol: symbol}, nil
	}
	d := wrap.Data[0]
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	amt := f(d.Pos)
	if d.PosSide == "short" {
		amt = -math.Abs(amt)
	} else {
		amt = math.Abs(amt)
	}
	lev, _ := strconv.Atoi(d.Lever)
	return PositionInfo{
		Symbol:           d.InstID,
		PositionAmt:      amt,
		EntryPrice:       f(d.AvgPx),
		Leverage:         lev,
		MarkPrice:        f(d.MarkPx),
		UnrealizedProfit: f(d.Upl),
	}, nil
}

func (g *HTTPGateway) GetBalance(ctx context.Context) ([]Balance, error) {
	rb, err := g.doWithRetry(ctx, http.MethodGet, "/api/v5/account/balance", "")
	if err != nil {
		return nil, err
	}
	var wrap struct {
		Data []struct {
			Details []struct {
				Ccy       string `json:"ccy"`
				Eq        string `json:"eq"`
				AvailEq   string `json:"availEq"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil {
		return nil, err
	}
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	var out []Balance
	for _, d := range wrap.Data {
		for _, det := range d.Details {
			out = append(out, Balance{
				Asset:            det.Ccy,
				Total:            f(det.Eq),
				AvailableBalance: f(det.AvailEq),
			})
		}
	}
	return out, nil
}

func (g *HTTPGateway) PlaceOrder(ctx context.Context, params OrderParams) (OrderResult, error) {
	path := "/api/v5/trade/order"
	if params.Type != TypeMarket {
		path = "/api/v5/trade/order-algo"
	}
	body := buildOrderBody(params)
	b, err := json.Marshal(body)
	if err != nil {
		return OrderResult{}, err
	}
	rb, err := g.doWithRetry(ctx, http.MethodPost, path, string(b))
	if err != nil {
		if me, ok := err.(*MappedError); ok {
			return OrderResult{}, me
		}
		return OrderResult{}, err
	}
	var wrap struct {
		Data []struct {
			OrdID   string `json:"ordId"`
			AlgoID  string `json:"algoId"`
			SCode   string `json:"sCode"`
			SMsg    string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil {
		return OrderResult{}, err
	}
	if len(wrap.Data) == 0 {
		return OrderResult{}, fmt.Errorf("exchange: empty order response")
	}
	d := wrap.Data[0]
	if d.SCode != "" && d.SCode != "0" {
		code, _ := strconv.Atoi(d.SCode)
		return OrderResult{}, &MappedError{Code: code, Msg: d.SMsg}
	}
	id := d.OrdID
	if id == "" {
		id = d.AlgoID
	}
	return OrderResult{OrderID: id, Status: "live"}, nil
}

func buildOrderBody(p OrderParams) map[string]any {
	body := map[string]any{
		"instId":  p.Symbol,
		"side":    strings.ToLower(string(p.Side)),
		"tdMode":  "cross",
	}
	switch p.Type {
	case TypeMarket:
		body["ordType"] = "market"
		body["sz"] = fmt.Sprintf("%v", p.Quantity)
	case TypeTakeProfitMkt:
		body["ordType"] = "conditional"
		body["tpTriggerPx"] = fmt.Sprintf("%v", p.StopPrice)
		body["tpOrdPx"] = "-1"
	case TypeStopMkt:
		body["ordType"] = "conditional"
		body["slTriggerPx"] = fmt.Sprintf("%v", p.StopPrice)
		body["slOrdPx"] = "-1"
	}
	if p.ClosePosition {
		body["closeFraction"] = "1"
	}
	if p.ReduceOnly {
		body["reduceOnly"] = true
		body["sz"] = fmt.Sprintf("%v", p.Quantity)
	}
	return body
}

func (g *HTTPGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body, _ := json.Marshal(map[string]string{"instId": symbol, "algoId": orderID})
	rb, err := g.doWithRetry(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", string(body))
	if err != nil {
		if me, ok := err.(*MappedError); ok && (me.Code == CodeUnknownOrder || me.Code == CodeDuplicateReduceOnly) {
			return nil
		}
		return err
	}
	_ = rb
	return nil
}

func (g *HTTPGateway) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	body, _ := json.Marshal(map[string]any{
		"instId":  symbol,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": "cross",
	})
	_, err := g.doWithRetry(ctx, http.MethodPost, "/api/v5/account/set-leverage", string(body))
	return err
}

func (g *HTTPGateway) GetFilters(ctx context.Context, symbol string) (Filters, error) {
	path := fmt.Sprintf("/api/v5/public/instruments?instType=SWAP&instId=%s", symbol)
	rb, err := g.doWithRetry(ctx, http.MethodGet, path, "")
	if err != nil {
		return Filters{}, err
	}
	var wrap struct {
		Data []struct {
			InstID  string `json:"instId"`
			TickSz  string `json:"tickSz"`
			LotSz   string `json:"lotSz"`
			MinSz   string `json:"minSz"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &wrap); err != nil || len(wrap.Data) == 0 {
		return Filters{}, fmt.Errorf("unexpected instrument shape for %s", symbol)
	}
	d := wrap.Data[0]
	f := func(s string) float64 { v, _ := strconv.ParseFloat(s, 64); return v }
	return Filters{
		Symbol:      d.InstID,
		TickSize:    f(d.TickSz),
		StepSize:    f(d.LotSz),
		MinQty:      f(d.MinSz),
		MinNotional: 10,
	}, nil
}

var _ Gateway = (*HTTPGateway)(nil)
