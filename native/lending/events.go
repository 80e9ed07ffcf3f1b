package lending

import (
	"strconv"

	"dlend/core/types"
)

const (
	EventTypePoolCreated = "lending.poolCreated"
	EventTypeDeposit     = "lending.deposit"
	EventTypeWithdraw    = "lending.withdraw"
	EventTypeBorrow      = "lending.borrow"
	EventTypeRepay       = "lending.repay"
	EventTypeLiquidate   = "lending.liquidate"
)

func u64attr(v uint64) string { return strconv.FormatUint(v, 10) }

func eventPoolCreated(pool *Pool, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypePoolCreated,
		Attributes: map[string]string{
			"pool":         pool.ID,
			"asset":        pool.Asset,
			"feed":         pool.FeedID,
			"ltvBps":       u64attr(pool.LTVBps),
			"thresholdBps": u64attr(pool.LiquidationThresholdBps),
			"timestamp":    u64attr(ts),
		},
	}
}

func eventDeposit(actor types.Address, poolID string, amount, shares, priceUSD, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"actor":       actor.String(),
			"pool":        poolID,
			"amount":      u64attr(amount),
			"shares":      u64attr(shares),
			"priceUsd1e6": u64attr(priceUSD),
			"timestamp":   u64attr(ts),
		},
	}
}

func eventWithdraw(actor types.Address, poolID string, amount, shares, priceUSD, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypeWithdraw,
		Attributes: map[string]string{
			"actor":       actor.String(),
			"pool":        poolID,
			"amount":      u64attr(amount),
			"shares":      u64attr(shares),
			"priceUsd1e6": u64attr(priceUSD),
			"timestamp":   u64attr(ts),
		},
	}
}

func eventBorrow(actor types.Address, poolID string, amount, priceUSD, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypeBorrow,
		Attributes: map[string]string{
			"actor":       actor.String(),
			"pool":        poolID,
			"amount":      u64attr(amount),
			"priceUsd1e6": u64attr(priceUSD),
			"timestamp":   u64attr(ts),
		},
	}
}

func eventRepay(actor types.Address, poolID string, amount, remaining, priceUSD, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypeRepay,
		Attributes: map[string]string{
			"actor":       actor.String(),
			"pool":        poolID,
			"amount":      u64attr(amount),
			"remaining":   u64attr(remaining),
			"priceUsd1e6": u64attr(priceUSD),
			"timestamp":   u64attr(ts),
		},
	}
}

func eventLiquidate(liquidator, borrower types.Address, debtPool, collateralPool string, repaid, seized, priceUSD, ts uint64) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidate,
		Attributes: map[string]string{
			"liquidator":     liquidator.String(),
			"borrower":       borrower.String(),
			"debtPool":       debtPool,
			"collateralPool": collateralPool,
			"repaid":         u64attr(repaid),
			"seized":         u64attr(seized),
			"priceUsd1e6":    u64attr(priceUSD),
			"timestamp":      u64attr(ts),
		},
	}
}
