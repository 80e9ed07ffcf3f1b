package lending

import (
	"time"

	"dlend/core/types"
	"dlend/native/oracle"
)

// PositionSnapshot pairs a pool with the user's balances in it after interest
// has been folded in, plus the USD valuations used for the aggregate.
type PositionSnapshot struct {
	PoolID            string
	DepositedAmount   uint64
	BorrowedAmount    uint64
	CollateralUSD     uint64
	DebtUSD           uint64
	PriceUSD1e6       uint64
	ThresholdBps      uint64
	WeightedThreshold uint64
}

// RecomputePosition derives a user's aggregate USD position from first
// principles: each pool is accrued to now on a copy, the user's debt is
// synced against the fresh index, and balances are valued at current quotes.
// Pure over its inputs; nothing is written back.
func RecomputePosition(addr types.Address, pools map[string]*Pool, positions []*UserPoolPosition, prices oracle.Source, maxQuoteAge time.Duration, now uint64) (*UserPosition, []PositionSnapshot, error) {
	var (
		collateralUSD uint64
		debtUSD       uint64
		weighted      uint64
		totalDeposit  uint64
		fallbackBps   uint64
	)
	snapshots := make([]PositionSnapshot, 0, len(positions))

	for _, stored := range positions {
		source, ok := pools[stored.PoolID]
		if !ok || source == nil {
			return nil, nil, ErrPoolNotFound
		}
		pool := source.Clone()
		if err := Accrue(pool, now); err != nil {
			return nil, nil, err
		}
		position := stored.Clone()
		if err := SyncDebt(position, pool); err != nil {
			return nil, nil, err
		}

		quote, err := prices.Latest(pool.FeedID)
		if err != nil {
			return nil, nil, ErrInvalidOraclePrice
		}
		if !quote.Fresh(time.Unix(int64(now), 0), maxQuoteAge) {
			return nil, nil, ErrInvalidOraclePrice
		}
		if quote.Price <= 0 {
			return nil, nil, ErrInvalidPrice
		}
		price, err := NormalizeUSD1e6(quote.Price, quote.Expo)
		if err != nil {
			return nil, nil, err
		}

		snap := PositionSnapshot{
			PoolID:          pool.ID,
			DepositedAmount: position.DepositedAmount,
			BorrowedAmount:  position.BorrowedAmount,
			PriceUSD1e6:     price,
			ThresholdBps:    pool.LiquidationThresholdBps,
		}
		if position.DepositedAmount > 0 {
			if snap.CollateralUSD, err = ValueUSD(position.DepositedAmount, price, pool.Decimals); err != nil {
				return nil, nil, err
			}
			if collateralUSD, err = addU64(collateralUSD, snap.CollateralUSD); err != nil {
				return nil, nil, err
			}
			w, err := mulDiv(position.DepositedAmount, pool.LiquidationThresholdBps, 1)
			if err != nil {
				return nil, nil, err
			}
			if weighted, err = addU64(weighted, w); err != nil {
				return nil, nil, err
			}
			if totalDeposit, err = addU64(totalDeposit, position.DepositedAmount); err != nil {
				return nil, nil, err
			}
		}
		if position.BorrowedAmount > 0 {
			if snap.DebtUSD, err = ValueUSD(position.BorrowedAmount, price, pool.Decimals); err != nil {
				return nil, nil, err
			}
			if debtUSD, err = addU64(debtUSD, snap.DebtUSD); err != nil {
				return nil, nil, err
			}
		}
		if fallbackBps == 0 {
			fallbackBps = pool.LiquidationThresholdBps
		}
		snapshots = append(snapshots, snap)
	}

	thresholdBps := fallbackBps
	if totalDeposit > 0 {
		thresholdBps = weighted / totalDeposit
	}
	hf := MaxHealthFactor
	if debtUSD > 0 {
		var err error
		if hf, err = HealthFactor(collateralUSD, debtUSD, thresholdBps); err != nil {
			return nil, nil, err
		}
	}

	return &UserPosition{
		Address:            addr,
		CollateralValueUSD: collateralUSD,
		DebtValueUSD:       debtUSD,
		HealthFactor:       hf,
	}, snapshots, nil
}

// ReconcileUserPosition recomputes and persists the actor's aggregate
// snapshot without mutating any pool. Useful after oracle moves, or to repair
// a snapshot that drifted from the per-pool records.
func (e *Engine) ReconcileUserPosition(actor types.Address, now uint64) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	positions, err := e.state.ListUserPoolPositions(actor)
	if err != nil {
		return nil, err
	}
	pools := make(map[string]*Pool, len(positions))
	for _, p := range positions {
		if _, ok := pools[p.PoolID]; ok {
			continue
		}
		pool, err := e.state.GetPool(p.PoolID)
		if err != nil {
			return nil, err
		}
		pools[p.PoolID] = pool
	}
	aggregate, _, err := RecomputePosition(actor, pools, positions, e.prices, e.maxQuoteAge, now)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutUserPosition(aggregate); err != nil {
		return nil, err
	}
	return aggregate.Clone(), nil
}
