package lending

import "errors"

// Error taxonomy surfaced verbatim to callers. No operation partially commits
// on any error path: every mutation is computed into local values first and
// written back only after all checks in that operation succeed.
var (
	// ErrMathOverflow covers checked arithmetic overflow, underflow, and
	// forbidden division. It is fatal to the operation and never retried,
	// since it indicates either a parameter misconfiguration or a value
	// outside safe protocol bounds.
	ErrMathOverflow = errors.New("lending: math overflow")

	ErrAmountZero    = errors.New("lending: amount is zero")
	ErrInvalidAmount = errors.New("lending: invalid amount")

	ErrExceedsLTV      = errors.New("lending: exceeds max borrowable amount")
	ErrBadHealthFactor = errors.New("lending: bad health factor")

	ErrInsufficientLiquidity = errors.New("lending: insufficient liquidity")

	ErrNotLiquidatable               = errors.New("lending: borrower not eligible for liquidation")
	ErrNothingToLiquidate            = errors.New("lending: nothing to liquidate")
	ErrInsufficientCollateralToSeize = errors.New("lending: insufficient collateral to seize")

	ErrInvalidOraclePrice = errors.New("lending: invalid oracle price")
	ErrInvalidPrice       = errors.New("lending: invalid price")

	ErrNoOutstandingDebt = errors.New("lending: no outstanding debt to repay")

	ErrPoolExists    = errors.New("lending: pool already exists")
	ErrPoolNotFound  = errors.New("lending: pool not found")
	ErrInvalidParams = errors.New("lending: invalid pool parameters")

	ErrNilState = errors.New("lending: state not configured")
	ErrNilVault = errors.New("lending: vault not configured")
)
