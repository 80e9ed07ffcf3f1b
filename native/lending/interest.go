package lending

import "math/big"

// Accrue folds elapsed time into the pool's compounding borrow index and
// scales the outstanding borrow total by the same ratio, so every borrower's
// share of pool-wide debt growth stays proportional. The accrued interest is
// also credited to TotalLiquidity, which is what moves the dToken exchange
// rate in the suppliers' favor. Idempotent within the same timestamp.
//
// On the first-ever accrual (index uninitialized or timestamp never set) the
// index is bootstrapped to 1e18 and the timestamp advances without
// compounding, since nothing has accrued yet.
func Accrue(pool *Pool, now uint64) error {
	if pool == nil {
		return ErrPoolNotFound
	}
	pool.ensureDefaults()

	if pool.BorrowIndex.Sign() == 0 || pool.LastAccrualTs == 0 {
		if pool.BorrowIndex.Sign() == 0 {
			pool.BorrowIndex = new(big.Int).Set(one18)
		}
		if now > pool.LastAccrualTs {
			pool.LastAccrualTs = now
		}
		return nil
	}
	if now <= pool.LastAccrualTs {
		return nil
	}
	dt := now - pool.LastAccrualTs

	delta := new(big.Int).Mul(pool.BorrowRatePerSec, new(big.Int).SetUint64(dt))
	if !fits128(delta) {
		return ErrMathOverflow
	}
	multiplier := new(big.Int).Add(one18, delta)
	if !fits128(multiplier) {
		return ErrMathOverflow
	}

	oldIndex := pool.BorrowIndex
	newIndex := new(big.Int).Mul(oldIndex, multiplier)
	if !fits128(newIndex) {
		return ErrMathOverflow
	}
	newIndex.Quo(newIndex, one18)

	scaled := new(big.Int).Mul(new(big.Int).SetUint64(pool.TotalBorrowed), newIndex)
	if !fits128(scaled) {
		return ErrMathOverflow
	}
	scaled.Quo(scaled, oldIndex)
	if !fitsU64(scaled) {
		return ErrMathOverflow
	}
	newTotalBorrowed := scaled.Uint64()

	interest := saturatingSub(newTotalBorrowed, pool.TotalBorrowed)
	newLiquidity, err := addU64(pool.TotalLiquidity, interest)
	if err != nil {
		return err
	}

	pool.BorrowIndex = newIndex
	pool.TotalBorrowed = newTotalBorrowed
	pool.TotalLiquidity = newLiquidity
	pool.LastAccrualTs = now
	return nil
}

// UpdateRate recomputes the forward-looking per-second borrow rate from the
// kinked utilization curve. It must run after Accrue and before the calling
// operation's own balance changes.
//
// An optimal utilization of 0 or 1e18 would fault the curve's divisions;
// PoolParams.Validate rejects such configurations, and the live check here
// backstops records that bypassed it.
func UpdateRate(pool *Pool) error {
	if pool == nil {
		return ErrPoolNotFound
	}
	pool.ensureDefaults()

	optimal := pool.OptimalUtilization
	if optimal.Sign() <= 0 || optimal.Cmp(one18) >= 0 {
		return ErrMathOverflow
	}

	utilization := new(big.Int)
	if pool.TotalLiquidity > 0 {
		utilization.Mul(new(big.Int).SetUint64(pool.TotalBorrowed), one18)
		if !fits128(utilization) {
			return ErrMathOverflow
		}
		utilization.Quo(utilization, new(big.Int).SetUint64(pool.TotalLiquidity))
	}

	annual := new(big.Int).Set(pool.BaseRate)
	if utilization.Cmp(optimal) <= 0 {
		below := new(big.Int).Mul(pool.Slope1, utilization)
		if !fits128(below) {
			return ErrMathOverflow
		}
		below.Quo(below, optimal)
		annual.Add(annual, below)
	} else {
		annual.Add(annual, pool.Slope1)
		excess := new(big.Int).Sub(utilization, optimal)
		above := new(big.Int).Mul(pool.Slope2, excess)
		if !fits128(above) {
			return ErrMathOverflow
		}
		above.Quo(above, new(big.Int).Sub(one18, optimal))
		annual.Add(annual, above)
	}
	if !fits128(annual) {
		return ErrMathOverflow
	}

	pool.BorrowRatePerSec = annual.Quo(annual, big.NewInt(secondsPerYear))
	return nil
}

// SyncDebt brings a position's recorded debt up to date with the pool's
// current index. It must run before BorrowedAmount is read or written
// anywhere else, or interest silently fails to apply.
//
// A position with no debt just adopts the pool index so it cannot
// desynchronize while idle. A stored index of zero (never synchronized) or
// at/above the pool index skips growth.
func SyncDebt(position *UserPoolPosition, pool *Pool) error {
	if position == nil || pool == nil {
		return ErrPoolNotFound
	}
	pool.ensureDefaults()
	position.ensureDefaults()

	if position.BorrowedAmount == 0 ||
		position.BorrowIndex.Sign() == 0 ||
		position.BorrowIndex.Cmp(pool.BorrowIndex) >= 0 {
		position.BorrowIndex = new(big.Int).Set(pool.BorrowIndex)
		return nil
	}

	factor := new(big.Int).Mul(pool.BorrowIndex, one18)
	if !fits128(factor) {
		return ErrMathOverflow
	}
	factor.Quo(factor, position.BorrowIndex)

	grown := new(big.Int).Mul(new(big.Int).SetUint64(position.BorrowedAmount), factor)
	if !fits128(grown) {
		return ErrMathOverflow
	}
	grown.Quo(grown, one18)
	if !fitsU64(grown) {
		return ErrMathOverflow
	}

	position.BorrowedAmount = grown.Uint64()
	position.BorrowIndex = new(big.Int).Set(pool.BorrowIndex)
	return nil
}
