package database

import (
	"context"

	"market-matrix/internal/position"
	"market-matrix/internal/verifier"
)

// Repository writes trade history and rejection audit rows. It implements
// position.CloseListener and verifier.AuditSink; write failures are logged
// and never fail the calling cycle.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over an open database.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// OnTradeClosed inserts one closed trade row.
func (r *Repository) OnTradeClosed(ctx context.Context, trade position.ClosedTrade, _ position.RunningStats) {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO closed_trades
			(trade_id, symbol, side, entry_price, exit_price, stop_loss, take_profit,
			 confluence, entry_time, exit_time, exit_reason, pnl_usd, pnl_percent, result)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (trade_id) DO NOTHING`,
		trade.TradeID, trade.Symbol, string(trade.Side), trade.EntryPrice, trade.ExitPrice,
		trade.StopLoss, trade.TakeProfit, trade.Confluence, trade.EntryTime, trade.ExitTime,
		string(trade.ExitReason), trade.PnlUSD, trade.PnlPercent, string(trade.Result),
	)
	if err != nil {
		r.db.logger.Error().Err(err).Str("trade_id", trade.TradeID).Msg("failed to insert closed trade")
	}
}

// RecordRejection inserts one rejection audit row.
func (r *Repository) RecordRejection(ctx context.Context, rec verifier.RejectionRecord) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO data_rejections (symbol, timeframe, reason, rejected_at)
		 VALUES ($1, $2, $3, $4)`,
		rec.Symbol, rec.Timeframe, rec.Reason, rec.Timestamp,
	)
	if err != nil {
		r.db.logger.Error().Err(err).Str("symbol", rec.Symbol).Msg("failed to insert rejection")
	}
	return err
}
