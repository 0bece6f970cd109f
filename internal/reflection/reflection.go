// Package reflection turns closed trades into templated post-mortems. The
// output is advisory prose plus a machine-readable adjustment hint; it never
// feeds back into scoring automatically.
package reflection

import (
	"fmt"
	"strings"

	"market-matrix/internal/position"
	"market-matrix/internal/scanner"
)

// Lesson is the post-mortem for one closed trade.
type Lesson struct {
	TradeID            string `json:"trade_id"`
	Symbol             string `json:"symbol"`
	Text               string `json:"text"`
	StrategyAdjustment string `json:"strategy_adjustment"`
}

// Generate deterministically templates a lesson for a closed trade. Wins get
// an affirming note; losses branch on exit reason and on whether a level
// factor argued against the trade's direction.
func Generate(trade position.ClosedTrade) Lesson {
	lesson := Lesson{
		TradeID: trade.TradeID,
		Symbol:  trade.Symbol,
	}

	if trade.Result == position.ResultWin {
		lesson.Text = fmt.Sprintf(
			"%s %s closed %s at %.2f%% profit. Confluence %.1f held up: %s.",
			trade.Symbol, trade.Side, trade.ExitReason, trade.PnlPercent,
			trade.Confluence, strings.Join(trade.Factors, ", "))
		lesson.StrategyAdjustment = "none"
		return lesson
	}

	switch trade.ExitReason {
	case position.ExitStopLoss:
		lesson.Text = fmt.Sprintf(
			"%s %s stopped out at %.2f%% loss despite confluence %.1f. The setup invalidated before the thesis played out.",
			trade.Symbol, trade.Side, trade.PnlPercent, trade.Confluence)
		lesson.StrategyAdjustment = "review_stop_distance"
	case position.ExitTrailingTP:
		lesson.Text = fmt.Sprintf(
			"%s %s trailing exit closed at %.2f%% loss. The trail armed on a favorable move that fully reversed.",
			trade.Symbol, trade.Side, trade.PnlPercent)
		lesson.StrategyAdjustment = "review_trail_activation"
	default:
		lesson.Text = fmt.Sprintf(
			"%s %s closed at %.2f%% loss with reason %s.",
			trade.Symbol, trade.Side, trade.PnlPercent, trade.ExitReason)
		lesson.StrategyAdjustment = "review_exit_handling"
	}

	if adjustment, ok := contraryLevelFactor(trade); ok {
		lesson.Text += " " + adjustment.note
		lesson.StrategyAdjustment = adjustment.key
	}
	return lesson
}

type factorAdjustment struct {
	key  string
	note string
}

// contraryLevelFactor flags losses where a support/resistance factor argued
// against the trade's direction: shorting into support or longing into
// resistance.
func contraryLevelFactor(trade position.ClosedTrade) (factorAdjustment, bool) {
	has := func(label string) bool {
		for _, f := range trade.Factors {
			if f == label {
				return true
			}
		}
		return false
	}

	if trade.Side == position.SideShort && has(scanner.FactorNearSupport) {
		return factorAdjustment{
			key:  "avoid_short_near_support",
			note: "Entry was near support, which favors buyers. Avoid SHORT setups when \"Near support\" is a contributing factor.",
		}, true
	}
	if trade.Side == position.SideLong && has(scanner.FactorNearResistance) {
		return factorAdjustment{
			key:  "avoid_long_near_resistance",
			note: "Entry was near resistance, which favors sellers. Avoid LONG setups when \"Near resistance\" is a contributing factor.",
		}, true
	}
	return factorAdjustment{}, false
}
