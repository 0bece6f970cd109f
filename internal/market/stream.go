package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PriceUpdate is one live ticker tick delivered by the stream.
type PriceUpdate struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// PriceStream consumes the Binance miniTicker websocket stream for a set of
// symbols and delivers price updates on a channel. Used by the monitor
// command; one-shot scan commands use the REST adapter instead.
type PriceStream struct {
	streamURL string
	symbols   []string
	logger    zerolog.Logger
}

// NewPriceStream creates a websocket price stream for the given symbols.
func NewPriceStream(streamURL string, symbols []string, logger zerolog.Logger) *PriceStream {
	return &PriceStream{
		streamURL: streamURL,
		symbols:   symbols,
		logger:    logger.With().Str("component", "price_stream").Logger(),
	}
}

// miniTickerEvent is the subset of the Binance miniTicker payload we consume.
type miniTickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// Run connects and forwards updates to out until the context is cancelled or
// the connection drops. The caller owns reconnect policy.
func (s *PriceStream) Run(ctx context.Context, out chan<- PriceUpdate) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(s.streamURL, "/"), strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect price stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info().Int("symbols", len(s.symbols)).Msg("price stream connected")

	// Unblock the read loop when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(90 * time.Second)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("price stream read failed: %w", err)
		}

		var event miniTickerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.logger.Warn().Err(err).Msg("dropping unparseable stream message")
			continue
		}
		if event.Symbol == "" || event.Close == "" {
			continue
		}

		price, err := strconv.ParseFloat(event.Close, 64)
		if err != nil {
			s.logger.Warn().Str("symbol", event.Symbol).Str("close", event.Close).Msg("dropping tick with bad price")
			continue
		}

		update := PriceUpdate{
			Symbol: event.Symbol,
			Price:  price,
			Time:   time.UnixMilli(event.EventTime),
		}

		select {
		case out <- update:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
