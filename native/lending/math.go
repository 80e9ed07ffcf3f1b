package lending

import (
	"math"
	"math/big"
)

// Fixed-point bases used across the engine: borrow indexes and rates are
// 1e18 scaled, USD values are 1e6 scaled, and risk parameters are basis
// points. Stored amounts are 64-bit raw token units; every intermediate is
// bounded to a 128-bit accumulator and narrowed back with an explicit fit
// check.
const (
	// UnsafeHealthFactorBps is the health-factor floor in basis points. A
	// position at or above it is safe; below it, liquidatable.
	UnsafeHealthFactorBps = 10_000

	bpsDenominator = 10_000
	secondsPerYear = 31_536_000
	usdScale       = 1_000_000

	// MaxHealthFactor is reported while a position carries no debt.
	MaxHealthFactor uint64 = math.MaxUint64
)

var (
	one18  = big.NewInt(1_000_000_000_000_000_000)
	maxU64 = new(big.Int).SetUint64(math.MaxUint64)
)

func fits128(v *big.Int) bool {
	return v.BitLen() <= 128
}

func fitsU64(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(maxU64) <= 0
}

func pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// mulDiv computes a*b/den with a 128-bit intermediate and truncating
// division. den == 0 and results that do not fit a uint64 both fail with
// ErrMathOverflow.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrMathOverflow
	}
	prod := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	if !fits128(prod) {
		return 0, ErrMathOverflow
	}
	prod.Quo(prod, new(big.Int).SetUint64(den))
	if !fitsU64(prod) {
		return 0, ErrMathOverflow
	}
	return prod.Uint64(), nil
}

func addU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrMathOverflow
	}
	return a + b, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// NormalizeUSD1e6 converts a signed price mantissa and power-of-ten exponent
// into an unsigned USD value scaled by 1e6. Negative exponents integer-divide
// first, truncating toward zero; the precision loss is deliberate and matched
// on both the collateral and debt sides of every valuation. Fails with
// ErrMathOverflow when an intermediate exceeds the 128-bit accumulator or the
// result does not fit the unsigned output, including any negative result.
// Negative prices are a caller-level invalid-price condition and are rejected
// at the oracle boundary before reaching this function.
func NormalizeUSD1e6(mantissa int64, expo int32) (uint64, error) {
	value := big.NewInt(mantissa)
	switch {
	case expo < -38:
		// |mantissa| < 10^19, so the division underflows to zero.
		value.SetInt64(0)
	case expo < 0:
		value.Quo(value, pow10(uint32(-expo)))
	case expo > 38:
		if mantissa != 0 {
			return 0, ErrMathOverflow
		}
	case expo > 0:
		value.Mul(value, pow10(uint32(expo)))
		if !fits128(value) {
			return 0, ErrMathOverflow
		}
	}
	value.Mul(value, big.NewInt(usdScale))
	if !fits128(value) {
		return 0, ErrMathOverflow
	}
	if !fitsU64(value) {
		return 0, ErrMathOverflow
	}
	return value.Uint64(), nil
}

// ValueUSD values a raw token amount in USD 1e6 precision given the token's
// decimal count and a normalized price. Division by the decimal scale only
// shrinks the value and cannot overflow; the multiply is checked.
func ValueUSD(amount, priceUSD1e6 uint64, decimals uint8) (uint64, error) {
	prod := new(big.Int).Mul(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(priceUSD1e6))
	if !fits128(prod) {
		return 0, ErrMathOverflow
	}
	prod.Quo(prod, pow10(uint32(decimals)))
	if !fitsU64(prod) {
		return 0, ErrMathOverflow
	}
	return prod.Uint64(), nil
}

// AmountFromUSD is the inverse of ValueUSD: it converts a USD 1e6 value back
// into raw token units at the given price. Used when sizing seized
// collateral.
func AmountFromUSD(valueUSD1e6, priceUSD1e6 uint64, decimals uint8) (uint64, error) {
	if priceUSD1e6 == 0 {
		return 0, ErrMathOverflow
	}
	prod := new(big.Int).Mul(new(big.Int).SetUint64(valueUSD1e6), pow10(uint32(decimals)))
	if !fits128(prod) {
		return 0, ErrMathOverflow
	}
	prod.Quo(prod, new(big.Int).SetUint64(priceUSD1e6))
	if !fitsU64(prod) {
		return 0, ErrMathOverflow
	}
	return prod.Uint64(), nil
}

// HealthFactor computes the bps-scaled ratio of risk-weighted collateral to
// debt: collateral * thresholdBps / debt. A result of 10_000 means the
// position sits exactly at the liquidation boundary. A position with no debt
// is maximally healthy.
func HealthFactor(collateralUSD, debtUSD, liquidationThresholdBps uint64) (uint64, error) {
	if debtUSD == 0 {
		return MaxHealthFactor, nil
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(collateralUSD), new(big.Int).SetUint64(liquidationThresholdBps))
	if !fits128(num) {
		return 0, ErrMathOverflow
	}
	num.Quo(num, new(big.Int).SetUint64(debtUSD))
	if !fitsU64(num) {
		return 0, ErrMathOverflow
	}
	return num.Uint64(), nil
}

// MintShares returns the dToken amount minted for a deposit. An empty pool
// mints 1:1; otherwise shares are proportional to the deposit's fraction of
// current liquidity, truncated in the pool's favor.
func MintShares(depositAmount, totalLiquidity, totalShares uint64) (uint64, error) {
	if totalShares == 0 || totalLiquidity == 0 {
		return depositAmount, nil
	}
	return mulDiv(depositAmount, totalShares, totalLiquidity)
}

// RedeemUnderlying is the algebraic inverse of MintShares: the underlying
// amount released for burning dTokens at the current exchange rate.
func RedeemUnderlying(sharesBurned, totalLiquidity, totalShares uint64) (uint64, error) {
	if totalShares == 0 {
		return 0, ErrInvalidAmount
	}
	return mulDiv(sharesBurned, totalLiquidity, totalShares)
}
