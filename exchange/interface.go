package exchange

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnknownPosition is returned for positions the broker does not hold open.
	ErrUnknownPosition = errors.New("unknown or closed position")
	// ErrExitRejected is returned when the broker refuses an exit order.
	ErrExitRejected = errors.New("exit rejected by broker")
	// ErrNoPrice is returned when no quote is available for a symbol.
	ErrNoPrice = errors.New("no price available")
)

// Quote is the latest traded price of an underlying.
type Quote struct {
	Symbol    string
	Price     float64
	Volume    int64
	Timestamp time.Time
}

// Position is an open options/futures position on one underlying.
type Position struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Strategy  string    `json:"strategy"`
	Lots      int       `json:"lots"`
	EntryTime time.Time `json:"entry_time"`
	// Expiry is optional; the calendar supplies days-to-expiry when it is zero.
	Expiry time.Time `json:"expiry,omitempty"`
}

// ExitResult is the broker's confirmation of a closed position.
type ExitResult struct {
	PositionID  string
	RealizedPnL float64
	ExitedAt    time.Time
}

// Backdrop is the market-wide context a broker or data vendor reports alongside prices.
type Backdrop struct {
	VIX         float64
	VolumeSurge bool
	// NewsImpact is "", "LOW", "MEDIUM" or "HIGH".
	NewsImpact string
}

// BackdropSource is implemented by clients that can report the market backdrop.
// The risk engine checks for it at run time; clients without it leave thresholds neutral.
type BackdropSource interface {
	GetMarketBackdrop(ctx context.Context) (Backdrop, error)
}

// PriceFeed supplies underlying quotes.
type PriceFeed interface {
	GetCurrentPrice(ctx context.Context, symbol string) (Quote, error)
}

// MTMSource supplies the mark-to-market of open positions.
type MTMSource interface {
	GetCurrentMTM(ctx context.Context, positionID string) (float64, error)
}

// PositionSource lists the positions currently open at the broker.
type PositionSource interface {
	ListOpenPositions(ctx context.Context) ([]Position, error)
}

// Executor closes positions.
type Executor interface {
	ExitPosition(ctx context.Context, pos Position, reason string) (ExitResult, error)
}

// Client bundles every broker-side capability the risk engine consumes.
type Client interface {
	PriceFeed
	MTMSource
	PositionSource
	Executor
}
