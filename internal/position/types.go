package position

import (
	"context"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason explains why a position closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTrailingTP ExitReason = "TRAILING_TP"
	ExitUnknown    ExitReason = "UNKNOWN"
)

// Result classifies a closed trade.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
)

// TradeSetup is a proposal produced by the scanner when confluence is high
// enough. Immutable; it becomes a TrackedPosition only on acceptance.
type TradeSetup struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Confluence    float64   `json:"confluence"`
	Factors       []string  `json:"factors"`
	Entry         float64   `json:"entry"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	RiskPercent   float64   `json:"risk_percent"`
	RewardPercent float64   `json:"reward_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// TrailingState tracks the trailing take-profit for one position. Activated
// flips once and the trail level only ever moves in the trade's favor.
type TrailingState struct {
	BestPrice  float64 `json:"best_price"`
	TrailLevel float64 `json:"trail_level"`
	Activated  bool    `json:"activated"`
}

// TrackedPosition is an accepted, simulated position. At most one exists per
// symbol. Mutated each cycle; moved to history on close.
type TrackedPosition struct {
	TradeID         string        `json:"trade_id"`
	Symbol          string        `json:"symbol"`
	Side            Side          `json:"side"`
	EntryPrice      float64       `json:"entry_price"`
	StopLoss        float64       `json:"stop_loss"`
	TakeProfit      float64       `json:"take_profit"`
	Confluence      float64       `json:"confluence"`
	Factors         []string      `json:"factors"`
	PositionSizeUSD float64       `json:"position_size_usd"`
	EntryTime       time.Time     `json:"entry_time"`
	Trailing        TrailingState `json:"trailing"`
}

// ClosedTrade is a TrackedPosition after its terminal transition. Append-only
// history; never mutated after creation.
type ClosedTrade struct {
	TrackedPosition
	ExitPrice  float64    `json:"exit_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitReason ExitReason `json:"exit_reason"`
	PnlUSD     float64    `json:"pnl_usd"`
	PnlPercent float64    `json:"pnl_percent"`
	Result     Result     `json:"result"`
}

// RunningStats aggregates closed trade outcomes. The circuit breaker flag is
// set when the loss streak reaches the limit and is never cleared by the
// lifecycle itself; only an explicit reset clears it.
type RunningStats struct {
	TotalTrades          int     `json:"total_trades"`
	Wins                 int     `json:"wins"`
	Losses               int     `json:"losses"`
	TotalPnlUSD          float64 `json:"total_pnl_usd"`
	ConsecutiveLosses    int     `json:"consecutive_losses"`
	CircuitBreakerActive bool    `json:"circuit_breaker_active"`
}

// LiveTrailState tracks trailing for a position held at the exchange,
// reconciled from the live position snapshot.
type LiveTrailState struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	BestPrice  float64   `json:"best_price"`
	TrailLevel float64   `json:"trail_level"`
	Activated  bool      `json:"activated"`
	StartTime  time.Time `json:"start_time"`
}

// TrailEvent records a trailing trigger against a live position.
type TrailEvent struct {
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// State is the persisted position document. One record set keyed by symbol;
// concurrent cycles against the same store are not supported.
type State struct {
	Positions   map[string]*TrackedPosition `json:"positions"`
	History     []ClosedTrade               `json:"trade_history"`
	Stats       RunningStats                `json:"stats"`
	LiveTrails  map[string]*LiveTrailState  `json:"live_trails"`
	TrailEvents []TrailEvent                `json:"trail_events"`
}

// NewState returns an empty, valid state document.
func NewState() *State {
	return &State{
		Positions:  make(map[string]*TrackedPosition),
		History:    make([]ClosedTrade, 0),
		LiveTrails: make(map[string]*LiveTrailState),
	}
}

// Normalize repairs nil maps after JSON decoding.
func (s *State) Normalize() {
	if s.Positions == nil {
		s.Positions = make(map[string]*TrackedPosition)
	}
	if s.LiveTrails == nil {
		s.LiveTrails = make(map[string]*LiveTrailState)
	}
}

// Store persists the position state document. Save must be all-or-nothing:
// a failed write leaves the previous state intact.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// CloseListener is notified after a trade closes and stats are updated.
// Listener failures never fail the cycle.
type CloseListener interface {
	OnTradeClosed(ctx context.Context, trade ClosedTrade, stats RunningStats)
}
