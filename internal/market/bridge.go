package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ExecBridge adapts an external exchange helper process to the PriceSource,
// PositionSource and CloseExecutor interfaces. The helper is invoked as
// `<command> price|positions|close <symbol>` and replies with JSON on stdout.
// The core never speaks an exchange wire protocol itself.
type ExecBridge struct {
	command string
	args    []string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecBridge creates a bridge around the given helper command line.
func NewExecBridge(commandLine string, logger zerolog.Logger) *ExecBridge {
	parts := strings.Fields(commandLine)
	bridge := &ExecBridge{
		timeout: 10 * time.Second,
		logger:  logger.With().Str("component", "exec_bridge").Logger(),
	}
	if len(parts) > 0 {
		bridge.command = parts[0]
		bridge.args = parts[1:]
	}
	return bridge
}

// Configured reports whether a helper command was provided.
func (b *ExecBridge) Configured() bool {
	return b.command != ""
}

// CurrentPrice asks the helper for the latest price of a symbol.
func (b *ExecBridge) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	out, err := b.run(ctx, "price", symbol)
	if err != nil {
		return 0, err
	}

	var reply struct {
		Price float64 `json:"price"`
	}
	if err := json.Unmarshal(out, &reply); err != nil {
		return 0, fmt.Errorf("bad price reply for %s: %w", symbol, err)
	}
	if reply.Price <= 0 {
		return 0, fmt.Errorf("helper returned non-positive price %.8f for %s", reply.Price, symbol)
	}
	return reply.Price, nil
}

// OpenPositions asks the helper for the live exchange position snapshot.
func (b *ExecBridge) OpenPositions(ctx context.Context) ([]LivePosition, error) {
	out, err := b.run(ctx, "positions")
	if err != nil {
		return nil, err
	}

	var positions []LivePosition
	if err := json.Unmarshal(out, &positions); err != nil {
		return nil, fmt.Errorf("bad positions reply: %w", err)
	}
	return positions, nil
}

// ClosePosition instructs the helper to close a symbol's position.
func (b *ExecBridge) ClosePosition(ctx context.Context, symbol string) error {
	if _, err := b.run(ctx, "close", symbol); err != nil {
		return err
	}
	b.logger.Info().Str("symbol", symbol).Msg("close instruction sent")
	return nil
}

func (b *ExecBridge) run(ctx context.Context, args ...string) ([]byte, error) {
	if !b.Configured() {
		return nil, fmt.Errorf("no exchange bridge command configured")
	}

	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	full := append(append([]string{}, b.args...), args...)
	cmd := exec.CommandContext(runCtx, b.command, full...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("bridge command %s %s failed: %w", b.command, strings.Join(args, " "), err)
	}
	return out, nil
}
