package fugle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const feedURL = "wss://api.fugle.tw/marketdata/v1.0/stock/streaming"

// Trade is one realtime trade event from the streaming feed.
type Trade struct {
	Symbol string
	Price  float64
	At     time.Time
}

// Feed is the optional realtime websocket subscriber. It feeds last-trade
// prices to a callback; the reference cache consumer decides what to keep.
type Feed struct {
	apiKey  string
	onTrade func(Trade)
	log     zerolog.Logger
}

// NewFeed creates a realtime feed. onTrade runs on the read loop; it must
// not block.
func NewFeed(apiKey string, onTrade func(Trade), log zerolog.Logger) *Feed {
	return &Feed{
		apiKey:  apiKey,
		onTrade: onTrade,
		log:     log.With().Str("client", "fugle-feed").Logger(),
	}
}

type feedEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type feedTrade struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"` // Microseconds since epoch
}

// Run connects, authenticates, subscribes and pumps trades until the
// context ends. Reconnects with a fixed pause on any failure.
func (f *Feed) Run(ctx context.Context, symbols []string) {
	for {
		if err := f.runOnce(ctx, symbols); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn().Err(err).Msg("feed disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.Dial(ctx, feedURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	auth := map[string]any{"event": "auth", "data": map[string]string{"apikey": f.apiKey}}
	if err := wsjson.Write(ctx, conn, auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	for _, symbol := range symbols {
		sub := map[string]any{
			"event": "subscribe",
			"data":  map[string]string{"channel": "trades", "symbol": symbol},
		}
		if err := wsjson.Write(ctx, conn, sub); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", symbol, err)
		}
	}

	for {
		var env feedEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return fmt.Errorf("failed to read feed: %w", err)
		}
		if env.Event != "data" {
			continue
		}
		var trade feedTrade
		if err := json.Unmarshal(env.Data, &trade); err != nil {
			f.log.Debug().Err(err).Msg("unreadable trade event")
			continue
		}
		f.onTrade(Trade{
			Symbol: trade.Symbol,
			Price:  trade.Price,
			At:     time.UnixMicro(trade.Time),
		})
	}
}
