package lending

import (
	"math/big"

	"dlend/core/types"
)

// Pool captures the accounting state for a single-asset liquidity market.
// Raw amounts are denominated in the asset's smallest units; the borrow
// index and rate are 1e18 fixed point.
type Pool struct {
	// ID is the unique market identifier assigned at creation.
	ID string
	// Asset is the underlying token ticker, informational only.
	Asset string
	// Decimals is the underlying token's decimal precision.
	Decimals uint8
	// FeedID names the oracle feed that prices the underlying asset.
	FeedID string

	// TotalLiquidity is the aggregate deposited liquidity, including the
	// portion currently lent out and interest credited on accrual.
	TotalLiquidity uint64
	// TotalBorrowed is the outstanding principal-adjusted borrowed amount.
	TotalBorrowed uint64
	// TotalShares is the dToken supply issued against this pool.
	TotalShares uint64

	// BorrowIndex is the cumulative compounding multiplier, 1e18 base,
	// monotonically non-decreasing.
	BorrowIndex *big.Int
	// BorrowRatePerSec is the current per-second borrow rate, 1e18 base.
	BorrowRatePerSec *big.Int
	// LastAccrualTs records the unix timestamp of the last accrual. Zero
	// means the pool has never accrued.
	LastAccrualTs uint64

	// Risk parameters, basis points.
	LTVBps                  uint64
	LiquidationThresholdBps uint64
	LiquidationBonusBps     uint64
	CloseFactorBps          uint64

	// Rate-curve parameters, 1e18 fixed-point annualized.
	BaseRate           *big.Int
	Slope1             *big.Int
	Slope2             *big.Int
	OptimalUtilization *big.Int
}

// ensureDefaults populates nil fixed-point fields so decoded records are safe
// to operate on.
func (p *Pool) ensureDefaults() {
	if p.BorrowIndex == nil {
		p.BorrowIndex = big.NewInt(0)
	}
	if p.BorrowRatePerSec == nil {
		p.BorrowRatePerSec = big.NewInt(0)
	}
	if p.BaseRate == nil {
		p.BaseRate = big.NewInt(0)
	}
	if p.Slope1 == nil {
		p.Slope1 = big.NewInt(0)
	}
	if p.Slope2 == nil {
		p.Slope2 = big.NewInt(0)
	}
	if p.OptimalUtilization == nil {
		p.OptimalUtilization = big.NewInt(0)
	}
}

// AvailableLiquidity is the cash remaining in the pool vault: deposits not
// currently lent out.
func (p *Pool) AvailableLiquidity() uint64 {
	return saturatingSub(p.TotalLiquidity, p.TotalBorrowed)
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	if p.BorrowIndex != nil {
		clone.BorrowIndex = new(big.Int).Set(p.BorrowIndex)
	}
	if p.BorrowRatePerSec != nil {
		clone.BorrowRatePerSec = new(big.Int).Set(p.BorrowRatePerSec)
	}
	if p.BaseRate != nil {
		clone.BaseRate = new(big.Int).Set(p.BaseRate)
	}
	if p.Slope1 != nil {
		clone.Slope1 = new(big.Int).Set(p.Slope1)
	}
	if p.Slope2 != nil {
		clone.Slope2 = new(big.Int).Set(p.Slope2)
	}
	if p.OptimalUtilization != nil {
		clone.OptimalUtilization = new(big.Int).Set(p.OptimalUtilization)
	}
	return &clone
}

// UserPosition is a user's pool-agnostic aggregate, maintained incrementally
// by the engine: deltas are added on deposit/borrow and subtracted,
// saturating at zero, on withdraw/repay/liquidation. It is never recomputed
// by re-summation on the hot path; ReconcileUserPosition exists to defend the
// no-drift invariant.
type UserPosition struct {
	Address            types.Address
	CollateralValueUSD uint64
	DebtValueUSD       uint64
	HealthFactor       uint64
}

// Clone returns a copy of the aggregate position.
func (u *UserPosition) Clone() *UserPosition {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// UserPoolPosition tracks one user's exposure to one pool. BorrowedAmount is
// expressed against the snapshot of the pool's borrow index stored in
// BorrowIndex; SyncDebt folds accrued interest in before any read or write.
type UserPoolPosition struct {
	Address         types.Address
	PoolID          string
	DepositedAmount uint64
	BorrowedAmount  uint64
	// Shares is the user's dToken balance for this pool.
	Shares      uint64
	BorrowIndex *big.Int
}

func (u *UserPoolPosition) ensureDefaults() {
	if u.BorrowIndex == nil {
		u.BorrowIndex = big.NewInt(0)
	}
}

// Clone returns a deep copy of the per-pool position.
func (u *UserPoolPosition) Clone() *UserPoolPosition {
	if u == nil {
		return nil
	}
	clone := *u
	if u.BorrowIndex != nil {
		clone.BorrowIndex = new(big.Int).Set(u.BorrowIndex)
	}
	return &clone
}
