package lending

import (
	"math/big"
	"strings"
	"time"

	"dlend/core/events"
	"dlend/core/types"
	"dlend/native/common"
	"dlend/native/oracle"
)

const moduleName = "lending"

// State abstracts the persistence layer backing the engine. Implementations
// must return deep copies so callers can mutate records before committing.
type State interface {
	GetPool(poolID string) (*Pool, error)
	PutPool(pool *Pool) error
	ListPools() ([]*Pool, error)
	GetUserPosition(addr types.Address) (*UserPosition, error)
	PutUserPosition(position *UserPosition) error
	GetUserPoolPosition(addr types.Address, poolID string) (*UserPoolPosition, error)
	PutUserPoolPosition(position *UserPoolPosition) error
	ListUserPoolPositions(addr types.Address) ([]*UserPoolPosition, error)
}

// Engine orchestrates the primary state transitions for the lending module.
type Engine struct {
	state       State
	vault       Vault
	prices      oracle.Source
	emitter     events.Emitter
	pauses      common.PauseView
	maxQuoteAge time.Duration
}

// NewEngine constructs a lending engine wired to the given price source. State
// and vault are attached separately so callers can swap backends in tests.
func NewEngine(prices oracle.Source) *Engine {
	return &Engine{
		prices:      prices,
		emitter:     events.NoopEmitter{},
		maxQuoteAge: oracle.DefaultMaxQuoteAge,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetVault wires the engine to the token custody layer.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter replaces the event sink. A nil emitter silences events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetMaxQuoteAge overrides the freshness window applied to oracle quotes.
func (e *Engine) SetMaxQuoteAge(age time.Duration) {
	if e == nil || age <= 0 {
		return
	}
	e.maxQuoteAge = age
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.vault == nil {
		return ErrNilVault
	}
	return common.Guard(e.pauses, moduleName)
}

// CreatePool registers a new pool with the supplied risk parameters. The
// borrow index starts at 1e18 and the accrual clock starts at now.
func (e *Engine) CreatePool(poolID, asset string, decimals uint8, feedID string, params PoolParams, now uint64) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	poolID = strings.TrimSpace(poolID)
	asset = strings.TrimSpace(asset)
	feedID = strings.TrimSpace(feedID)
	if poolID == "" || asset == "" || feedID == "" {
		return nil, ErrInvalidParams
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if existing, err := e.state.GetPool(poolID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrPoolExists
	}

	pool := &Pool{
		ID:                      poolID,
		Asset:                   asset,
		Decimals:                decimals,
		FeedID:                  feedID,
		BorrowIndex:             new(big.Int).Set(one18),
		BorrowRatePerSec:        new(big.Int),
		LastAccrualTs:           now,
		LTVBps:                  params.LTVBps,
		LiquidationThresholdBps: params.LiquidationThresholdBps,
		LiquidationBonusBps:     params.LiquidationBonusBps,
		CloseFactorBps:          params.CloseFactorBps,
		BaseRate:                params.baseRate(),
		Slope1:                  params.slope1(),
		Slope2:                  params.slope2(),
		OptimalUtilization:      params.optimalUtilization(),
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	e.emitter.Emit(eventPoolCreated(pool, now))
	return pool.Clone(), nil
}

// session bundles the per-operation prologue: load the pool, fold elapsed
// interest into it, and bring the actor's debt up to the new index. Every
// mutating operation opens a session before touching balances so index math
// never observes stale state. Committing recomputes the borrow rate from the
// post-operation utilization before writing back.
type session struct {
	pool     *Pool
	position *UserPoolPosition
	now      uint64
}

func (e *Engine) openSession(actor types.Address, poolID string, now uint64) (*session, error) {
	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if err := Accrue(pool, now); err != nil {
		return nil, err
	}

	position, err := e.state.GetUserPoolPosition(actor, poolID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &UserPoolPosition{Address: actor, PoolID: poolID}
	}
	position.ensureDefaults()
	if err := SyncDebt(position, pool); err != nil {
		return nil, err
	}
	return &session{pool: pool, position: position, now: now}, nil
}

func (e *Engine) commitSession(s *session) error {
	if err := UpdateRate(s.pool); err != nil {
		return err
	}
	if err := e.state.PutPool(s.pool); err != nil {
		return err
	}
	return e.state.PutUserPoolPosition(s.position)
}

// quoteUSD fetches and validates the pool's oracle quote, returning the
// normalized 1e6 USD unit price.
func (e *Engine) quoteUSD(pool *Pool, now uint64) (uint64, error) {
	quote, err := e.prices.Latest(pool.FeedID)
	if err != nil {
		return 0, ErrInvalidOraclePrice
	}
	if !quote.Fresh(time.Unix(int64(now), 0), e.maxQuoteAge) {
		return 0, ErrInvalidOraclePrice
	}
	if quote.Price <= 0 {
		return 0, ErrInvalidPrice
	}
	return NormalizeUSD1e6(quote.Price, quote.Expo)
}

// Deposit moves underlying tokens from the actor into the pool vault and
// mints dToken shares at the current exchange rate. Returns the minted share
// amount.
func (e *Engine) Deposit(actor types.Address, poolID string, amount uint64, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrAmountZero
	}

	s, err := e.openSession(actor, poolID, now)
	if err != nil {
		return 0, err
	}
	price, err := e.quoteUSD(s.pool, now)
	if err != nil {
		return 0, err
	}
	depositUSD, err := ValueUSD(amount, price, s.pool.Decimals)
	if err != nil {
		return 0, err
	}

	shares, err := MintShares(amount, s.pool.TotalLiquidity, s.pool.TotalShares)
	if err != nil {
		return 0, err
	}
	newLiquidity, err := addU64(s.pool.TotalLiquidity, amount)
	if err != nil {
		return 0, err
	}
	newShares, err := addU64(s.pool.TotalShares, shares)
	if err != nil {
		return 0, err
	}
	newDeposited, err := addU64(s.position.DepositedAmount, amount)
	if err != nil {
		return 0, err
	}
	newUserShares, err := addU64(s.position.Shares, shares)
	if err != nil {
		return 0, err
	}

	if err := e.vault.Deposit(actor, s.pool.Asset, amount); err != nil {
		return 0, err
	}

	s.pool.TotalLiquidity = newLiquidity
	s.pool.TotalShares = newShares
	s.position.DepositedAmount = newDeposited
	s.position.Shares = newUserShares
	if err := e.commitSession(s); err != nil {
		return 0, err
	}
	if err := e.applyAggregateDelta(actor, usdDelta{collateralAdd: depositUSD}); err != nil {
		return 0, err
	}

	e.emitter.Emit(eventDeposit(actor, s.pool.ID, amount, shares, price, now))
	return shares, nil
}

// Withdraw burns dToken shares and releases the corresponding underlying back
// to the actor, provided the remaining position stays healthy. Returns the
// redeemed underlying amount.
func (e *Engine) Withdraw(actor types.Address, poolID string, shares uint64, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if shares == 0 {
		return 0, ErrAmountZero
	}

	s, err := e.openSession(actor, poolID, now)
	if err != nil {
		return 0, err
	}
	price, err := e.quoteUSD(s.pool, now)
	if err != nil {
		return 0, err
	}
	if shares > s.position.Shares {
		return 0, ErrInvalidAmount
	}

	underlying, err := RedeemUnderlying(shares, s.pool.TotalLiquidity, s.pool.TotalShares)
	if err != nil {
		return 0, err
	}
	if underlying > s.pool.AvailableLiquidity() {
		return 0, ErrInsufficientLiquidity
	}
	withdrawUSD, err := ValueUSD(underlying, price, s.pool.Decimals)
	if err != nil {
		return 0, err
	}

	s.pool.TotalLiquidity -= underlying
	s.pool.TotalShares -= shares
	s.position.Shares -= shares
	// Interest credited on accrual can push the redeemable value past the
	// recorded principal, so the principal decrement saturates.
	s.position.DepositedAmount = saturatingSub(s.position.DepositedAmount, underlying)

	collateralUSD, debtUSD, err := e.valueUserUSD(actor, now, s)
	if err != nil {
		return 0, err
	}
	if debtUSD > 0 {
		hf, err := HealthFactor(collateralUSD, debtUSD, s.pool.LiquidationThresholdBps)
		if err != nil {
			return 0, err
		}
		if hf < UnsafeHealthFactorBps {
			return 0, ErrBadHealthFactor
		}
	}

	if err := e.vault.Withdraw(actor, s.pool.Asset, underlying); err != nil {
		return 0, err
	}
	if err := e.commitSession(s); err != nil {
		return 0, err
	}
	if err := e.applyAggregateDelta(actor, usdDelta{collateralSub: withdrawUSD}); err != nil {
		return 0, err
	}

	e.emitter.Emit(eventWithdraw(actor, s.pool.ID, underlying, shares, price, now))
	return underlying, nil
}

// Borrow draws underlying from the pool against the actor's aggregate
// collateral, subject to the pool's loan-to-value ceiling and a post-borrow
// health-factor floor.
func (e *Engine) Borrow(actor types.Address, poolID string, amount uint64, now uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrAmountZero
	}

	s, err := e.openSession(actor, poolID, now)
	if err != nil {
		return err
	}
	price, err := e.quoteUSD(s.pool, now)
	if err != nil {
		return err
	}
	if amount > s.pool.AvailableLiquidity() {
		return ErrInsufficientLiquidity
	}
	borrowUSD, err := ValueUSD(amount, price, s.pool.Decimals)
	if err != nil {
		return err
	}

	newBorrowed, err := addU64(s.position.BorrowedAmount, amount)
	if err != nil {
		return err
	}
	newTotal, err := addU64(s.pool.TotalBorrowed, amount)
	if err != nil {
		return err
	}
	s.position.BorrowedAmount = newBorrowed
	s.pool.TotalBorrowed = newTotal

	collateralUSD, debtUSD, err := e.valueUserUSD(actor, now, s)
	if err != nil {
		return err
	}
	limit, err := mulDiv(collateralUSD, s.pool.LTVBps, bpsDenominator)
	if err != nil {
		return err
	}
	if debtUSD > limit {
		return ErrExceedsLTV
	}
	// The LTV ceiling is the debt pool's; the floor weighs where the
	// collateral actually sits.
	threshold, err := e.weightedThresholdBps(actor)
	if err != nil {
		return err
	}
	hf, err := HealthFactor(collateralUSD, debtUSD, threshold)
	if err != nil {
		return err
	}
	if hf < UnsafeHealthFactorBps {
		return ErrBadHealthFactor
	}

	if err := e.vault.Withdraw(actor, s.pool.Asset, amount); err != nil {
		return err
	}
	if err := e.commitSession(s); err != nil {
		return err
	}
	if err := e.applyAggregateDelta(actor, usdDelta{debtAdd: borrowUSD}); err != nil {
		return err
	}

	e.emitter.Emit(eventBorrow(actor, s.pool.ID, amount, price, now))
	return nil
}

// Repay returns borrowed underlying to the pool. Overpayment is clamped to
// the outstanding synced debt; the debt remaining after repayment is
// returned.
func (e *Engine) Repay(actor types.Address, poolID string, amount uint64, now uint64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, ErrAmountZero
	}

	s, err := e.openSession(actor, poolID, now)
	if err != nil {
		return 0, err
	}
	price, err := e.quoteUSD(s.pool, now)
	if err != nil {
		return 0, err
	}
	if s.position.BorrowedAmount == 0 {
		return 0, ErrNoOutstandingDebt
	}

	repaid := amount
	if repaid > s.position.BorrowedAmount {
		repaid = s.position.BorrowedAmount
	}
	repaidUSD, err := ValueUSD(repaid, price, s.pool.Decimals)
	if err != nil {
		return 0, err
	}
	s.position.BorrowedAmount -= repaid
	s.pool.TotalBorrowed = saturatingSub(s.pool.TotalBorrowed, repaid)
	remaining := s.position.BorrowedAmount

	if err := e.vault.Deposit(actor, s.pool.Asset, repaid); err != nil {
		return 0, err
	}
	if err := e.commitSession(s); err != nil {
		return 0, err
	}
	if err := e.applyAggregateDelta(actor, usdDelta{debtSub: repaidUSD}); err != nil {
		return 0, err
	}

	e.emitter.Emit(eventRepay(actor, s.pool.ID, repaid, remaining, price, now))
	return remaining, nil
}

// LiquidationResult reports the outcome of a liquidation call.
type LiquidationResult struct {
	Repaid       uint64
	Seized       uint64
	HealthBefore uint64
}

// Liquidate lets a third party repay part of an unhealthy borrower's debt in
// the debt pool and seize discounted collateral from the collateral pool. The
// repay amount is capped by the debt pool's close factor.
func (e *Engine) Liquidate(liquidator, borrower types.Address, debtPoolID, collateralPoolID string, repayAmount, now uint64) (*LiquidationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if repayAmount == 0 {
		return nil, ErrAmountZero
	}
	if liquidator == borrower {
		return nil, ErrInvalidParams
	}

	debt, err := e.openSession(borrower, debtPoolID, now)
	if err != nil {
		return nil, err
	}
	var coll *session
	if collateralPoolID == debtPoolID {
		coll = debt
	} else {
		coll, err = e.openSession(borrower, collateralPoolID, now)
		if err != nil {
			return nil, err
		}
	}

	debtPrice, err := e.quoteUSD(debt.pool, now)
	if err != nil {
		return nil, err
	}
	collPrice, err := e.quoteUSD(coll.pool, now)
	if err != nil {
		return nil, err
	}

	collateralUSD, debtUSD, err := e.valueUserUSD(borrower, now, debt, coll)
	if err != nil {
		return nil, err
	}
	hf, err := HealthFactor(collateralUSD, debtUSD, debt.pool.LiquidationThresholdBps)
	if err != nil {
		return nil, err
	}
	if hf >= UnsafeHealthFactorBps {
		return nil, ErrNotLiquidatable
	}
	if debt.position.BorrowedAmount == 0 {
		return nil, ErrNothingToLiquidate
	}

	maxRepay, err := mulDiv(debt.position.BorrowedAmount, debt.pool.CloseFactorBps, bpsDenominator)
	if err != nil {
		return nil, err
	}
	repaid := repayAmount
	if repaid > maxRepay {
		repaid = maxRepay
	}
	if repaid == 0 {
		return nil, ErrInvalidAmount
	}

	repaidUSD, err := ValueUSD(repaid, debtPrice, debt.pool.Decimals)
	if err != nil {
		return nil, err
	}
	seizeUSD, err := mulDiv(repaidUSD, bpsDenominator+coll.pool.LiquidationBonusBps, bpsDenominator)
	if err != nil {
		return nil, err
	}
	seized, err := AmountFromUSD(seizeUSD, collPrice, coll.pool.Decimals)
	if err != nil {
		return nil, err
	}
	// A deeply underwater borrower can owe more than the collateral is
	// worth; the seize caps at the deposit instead of aborting.
	if seized > coll.position.DepositedAmount {
		seized = coll.position.DepositedAmount
	}
	if seized == 0 {
		return nil, ErrInsufficientCollateralToSeize
	}
	if seized > coll.pool.AvailableLiquidity() {
		return nil, ErrInsufficientLiquidity
	}
	// The borrower's aggregate is reduced by the USD value actually seized,
	// not the pre-cap estimate.
	seizedUSD, err := ValueUSD(seized, collPrice, coll.pool.Decimals)
	if err != nil {
		return nil, err
	}

	if err := e.vault.Deposit(liquidator, debt.pool.Asset, repaid); err != nil {
		return nil, err
	}
	if err := e.vault.Withdraw(liquidator, coll.pool.Asset, seized); err != nil {
		return nil, err
	}

	shareBurn, err := sharesForUnderlying(coll.pool, seized)
	if err != nil {
		return nil, err
	}

	debt.position.BorrowedAmount -= repaid
	debt.pool.TotalBorrowed = saturatingSub(debt.pool.TotalBorrowed, repaid)
	coll.position.DepositedAmount -= seized
	coll.pool.TotalLiquidity -= seized
	coll.pool.TotalShares = saturatingSub(coll.pool.TotalShares, shareBurn)
	coll.position.Shares = saturatingSub(coll.position.Shares, shareBurn)

	if err := e.commitSession(debt); err != nil {
		return nil, err
	}
	if coll != debt {
		if err := e.commitSession(coll); err != nil {
			return nil, err
		}
	}
	if err := e.applyAggregateDelta(borrower, usdDelta{collateralSub: seizedUSD, debtSub: repaidUSD}); err != nil {
		return nil, err
	}

	e.emitter.Emit(eventLiquidate(liquidator, borrower, debt.pool.ID, coll.pool.ID, repaid, seized, debtPrice, now))
	return &LiquidationResult{Repaid: repaid, Seized: seized, HealthBefore: hf}, nil
}

// sharesForUnderlying converts an underlying amount to the share quantity it
// represents at the pool's pre-removal exchange rate.
func sharesForUnderlying(pool *Pool, amount uint64) (uint64, error) {
	if pool.TotalLiquidity == 0 || pool.TotalShares == 0 {
		return 0, nil
	}
	return mulDiv(amount, pool.TotalShares, pool.TotalLiquidity)
}

// valueUserUSD totals the actor's collateral and debt across every pool in
// current USD terms. Sessions already open for this operation are substituted
// for their stored counterparts so in-flight balance changes are priced.
func (e *Engine) valueUserUSD(actor types.Address, now uint64, open ...*session) (uint64, uint64, error) {
	positions, err := e.state.ListUserPoolPositions(actor)
	if err != nil {
		return 0, 0, err
	}
	byPool := make(map[string]*UserPoolPosition, len(positions)+len(open))
	for _, p := range positions {
		byPool[p.PoolID] = p
	}
	for _, s := range open {
		byPool[s.pool.ID] = s.position
	}

	var collateralUSD, debtUSD uint64
	for poolID, position := range byPool {
		pool := e.poolForValuation(poolID, open)
		if pool == nil {
			stored, err := e.state.GetPool(poolID)
			if err != nil {
				return 0, 0, err
			}
			if stored == nil {
				return 0, 0, ErrPoolNotFound
			}
			if err := Accrue(stored, now); err != nil {
				return 0, 0, err
			}
			synced := position.Clone()
			if err := SyncDebt(synced, stored); err != nil {
				return 0, 0, err
			}
			position = synced
			pool = stored
		}

		price, err := e.quoteUSD(pool, now)
		if err != nil {
			return 0, 0, err
		}
		if position.DepositedAmount > 0 {
			v, err := ValueUSD(position.DepositedAmount, price, pool.Decimals)
			if err != nil {
				return 0, 0, err
			}
			if collateralUSD, err = addU64(collateralUSD, v); err != nil {
				return 0, 0, err
			}
		}
		if position.BorrowedAmount > 0 {
			v, err := ValueUSD(position.BorrowedAmount, price, pool.Decimals)
			if err != nil {
				return 0, 0, err
			}
			if debtUSD, err = addU64(debtUSD, v); err != nil {
				return 0, 0, err
			}
		}
	}
	return collateralUSD, debtUSD, nil
}

func (e *Engine) poolForValuation(poolID string, open []*session) *Pool {
	for _, s := range open {
		if s.pool.ID == poolID {
			return s.pool
		}
	}
	return nil
}

// usdDelta carries the realized USD amounts an operation folds into the
// actor's aggregate position.
type usdDelta struct {
	collateralAdd uint64
	collateralSub uint64
	debtAdd       uint64
	debtSub       uint64
}

// applyAggregateDelta maintains the actor's aggregate snapshot incrementally:
// realized USD amounts are added on deposit and borrow and subtracted,
// saturating at zero, on withdraw, repay, and liquidation. The aggregate is
// never rebuilt from the per-pool positions on this path; ReconcileUserPosition
// is the independent recompute that audits drift.
func (e *Engine) applyAggregateDelta(actor types.Address, delta usdDelta) error {
	position, err := e.state.GetUserPosition(actor)
	if err != nil {
		return err
	}
	if position == nil {
		position = &UserPosition{Address: actor}
	}
	if position.CollateralValueUSD, err = addU64(position.CollateralValueUSD, delta.collateralAdd); err != nil {
		return err
	}
	position.CollateralValueUSD = saturatingSub(position.CollateralValueUSD, delta.collateralSub)
	if position.DebtValueUSD, err = addU64(position.DebtValueUSD, delta.debtAdd); err != nil {
		return err
	}
	position.DebtValueUSD = saturatingSub(position.DebtValueUSD, delta.debtSub)

	position.HealthFactor = MaxHealthFactor
	if position.DebtValueUSD > 0 {
		threshold, err := e.weightedThresholdBps(actor)
		if err != nil {
			return err
		}
		if position.HealthFactor, err = HealthFactor(position.CollateralValueUSD, position.DebtValueUSD, threshold); err != nil {
			return err
		}
	}
	return e.state.PutUserPosition(position)
}

// weightedThresholdBps averages the liquidation thresholds of the pools the
// actor holds collateral in, weighted by deposited amount. Falls back to the
// first pool's threshold when no collateral is recorded.
func (e *Engine) weightedThresholdBps(actor types.Address) (uint64, error) {
	positions, err := e.state.ListUserPoolPositions(actor)
	if err != nil {
		return 0, err
	}
	var weighted, total uint64
	var fallback uint64
	for _, p := range positions {
		pool, err := e.state.GetPool(p.PoolID)
		if err != nil {
			return 0, err
		}
		if pool == nil {
			continue
		}
		if fallback == 0 {
			fallback = pool.LiquidationThresholdBps
		}
		if p.DepositedAmount == 0 {
			continue
		}
		w, err := mulDiv(p.DepositedAmount, pool.LiquidationThresholdBps, 1)
		if err != nil {
			return 0, err
		}
		if weighted, err = addU64(weighted, w); err != nil {
			return 0, err
		}
		if total, err = addU64(total, p.DepositedAmount); err != nil {
			return 0, err
		}
	}
	if total == 0 {
		return fallback, nil
	}
	return weighted / total, nil
}

// Pool returns a copy of the stored pool record.
func (e *Engine) Pool(poolID string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.GetPool(strings.TrimSpace(poolID))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool.Clone(), nil
}

// Pools returns copies of every registered pool.
func (e *Engine) Pools() ([]*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pools, err := e.state.ListPools()
	if err != nil {
		return nil, err
	}
	out := make([]*Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Clone())
	}
	return out, nil
}

// Position returns the actor's aggregate USD snapshot, or an empty record
// when none has been written yet.
func (e *Engine) Position(actor types.Address) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, err := e.state.GetUserPosition(actor)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return &UserPosition{Address: actor, HealthFactor: MaxHealthFactor}, nil
	}
	return position.Clone(), nil
}

// PoolPosition returns the actor's per-pool balances.
func (e *Engine) PoolPosition(actor types.Address, poolID string) (*UserPoolPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	position, err := e.state.GetUserPoolPosition(actor, strings.TrimSpace(poolID))
	if err != nil {
		return nil, err
	}
	if position == nil {
		return &UserPoolPosition{Address: actor, PoolID: strings.TrimSpace(poolID), BorrowIndex: new(big.Int).Set(one18)}, nil
	}
	return position.Clone(), nil
}
