package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"perpctl/pkg/logger"
)

// Tick is one streamed closed-candle close price for a symbol. GetKlines
// remains the source of truth for OHLCV: the market data cache
// (internal/marketdata) does not consume Ticks, and nothing in the engine
// calls StreamTicks.
type Tick struct {
	Symbol string
	Close  float64
	AsOf   time.Time
}

// StreamTicks mirrors the teacher's StreamCandlesBatch (internal/exchange/
// ws.go): one websocket per timeframe, subscribing every symbol in a single
// batch, reconnecting with a fixed backoff and a 20s keepalive ping (OKX
// drops idle connections with 4004 otherwise). Venue-specific parsing is
// kept; callers outside this package never see the wire frame.
func StreamTicks(ctx context.Context, wsURL string, symbols []string, timeframe string) <-chan Tick {
	out := make(chan Tick)
	go func() {
		defer close(out)
		if len(symbols) == 0 {
			return
		}
		channel := "candle" + timeframe
		dialer := &websocket.Dialer{}

		args := make([]map[string]string, 0, len(symbols))
		for _, s := range symbols {
			args = append(args, map[string]string{"channel": channel, "instId": s})
		}

		for {
			conn, _, err := dialer.Dial(wsURL, nil)
			if err != nil {
				logger.Error("exchange ws dial failed: %v", err)
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
				logger.Error("exchange ws subscribe failed: %v", err)
				conn.Close()
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			stopPing := make(chan struct{})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteJSON(map[string]string{"op": "ping"})
					}
				}
			}()

			readLoop(ctx, conn, channel, out)
			close(stopPing)
			conn.Close()

			if !sleepCtx(ctx, time.Second) {
				return
			}
		}
	}()
	return out
}

func readLoop(ctx context.Context, conn *websocket.Conn, channel string, out chan<- Tick) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Arg struct {
				Channel string `json:"channel"`
				InstID  string `json:"instId"`
			} `json:"arg"`
			Data [][]string `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Arg.Channel != channel || len(frame.Data) == 0 {
			continue
		}
		row := frame.Data[0]
		if len(row) < 5 {
			continue
		}
		if len(row) >= 9 && row[8] != "1" {
			continue // candle not yet closed
		}
		px, err := strconv.ParseFloat(row[4], 64)
		if err != nil || px <= 0 {
			continue
		}
		select {
		case out <- Tick{Symbol: frame.Arg.InstID, Close: px, AsOf: time.Now().UTC()}:
		case <-ctx.Done():
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
