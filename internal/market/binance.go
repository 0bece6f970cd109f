package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"market-matrix/config"
)

// BinanceFeed fetches candles and ticker prices from the Binance public REST
// API. Only unauthenticated market data endpoints are used.
type BinanceFeed struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewBinanceFeed creates a Binance market data adapter.
func NewBinanceFeed(cfg config.FeedConfig, logger zerolog.Logger) *BinanceFeed {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceFeed{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "binance_feed").Logger(),
	}
}

// FetchCandles fetches candlestick data for a symbol and timeframe.
func (f *BinanceFeed) FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", f.baseURL, params.Encode())

	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines for %s %s: %w", symbol, tf, err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row with %d fields", len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("malformed kline open time %v", row[0])
		}
		candles = append(candles, Candle{
			OpenTime: int64(openTime),
			Open:     parseFloat(row[1]),
			High:     parseFloat(row[2]),
			Low:      parseFloat(row[3]),
			Close:    parseFloat(row[4]),
			Volume:   parseFloat(row[5]),
		})
	}

	f.logger.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).Int("candles", len(candles)).Msg("fetched candles")
	return candles, nil
}

// CurrentPrice fetches the latest traded price for a symbol.
func (f *BinanceFeed) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, url.QueryEscape(symbol))

	body, err := f.get(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("error fetching price for %s: %w", symbol, err)
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("error parsing ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing ticker price %q: %w", ticker.Price, err)
	}
	return price, nil
}

func (f *BinanceFeed) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
