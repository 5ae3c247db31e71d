// risk/manager.go
package risk

import "context"

// RiskManager is what the scheduler and the orchestrator need from the risk engine.
type RiskManager interface {
	// RunDangerCheck, RunPositionCheck and RunPortfolioCheck are the periodic checks.
	// Each returns ErrCheckInProgress when the previous run of the same check has not finished.
	RunDangerCheck(ctx context.Context) error
	RunPositionCheck(ctx context.Context) error
	RunPortfolioCheck(ctx context.Context) error

	// RunComprehensiveCheck runs all three checks in sequence.
	RunComprehensiveCheck(ctx context.Context) error

	// IsMarketOpen reports whether checks should run now.
	IsMarketOpen(ctx context.Context) (bool, string)

	// IsSafeToEnter reports whether a new position on symbol is allowed.
	IsSafeToEnter(symbol string) (bool, string)

	// ShouldExitPositions reports whether positions on symbol should be closed.
	ShouldExitPositions(symbol string) (bool, string)

	// ForceExitAll closes every open position.
	ForceExitAll(ctx context.Context, reason string) (int, error)

	// Summary returns a snapshot for reporting.
	Summary() Summary
}
