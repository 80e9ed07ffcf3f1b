package lending

import (
	"testing"
)

func TestReconcileFoldsPendingInterest(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t, "usdc", "USDC", "usdc-usd")
	env.fund(t, "alice", "USDC", 1_000_000_000)

	if _, err := env.engine.Deposit("alice", "usdc", 1_000_000_000, env.now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := env.engine.Borrow("alice", "usdc", 500_000_000, env.now); err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	createdAt := env.now

	env.now += 1_000
	env.setPrice("usdc-usd", 1, 0)

	aggregate, err := env.engine.ReconcileUserPosition("alice", env.now)
	if err != nil {
		t.Fatalf("ReconcileUserPosition: %v", err)
	}
	// 1000 seconds at the kink rate compounds 500_000_000 to 500_002_000.
	if aggregate.DebtValueUSD != 500_002_000 {
		t.Fatalf("debt USD: got %d, want 500002000", aggregate.DebtValueUSD)
	}
	if aggregate.CollateralValueUSD != 1_000_000_000 {
		t.Fatalf("collateral USD: got %d", aggregate.CollateralValueUSD)
	}
	if aggregate.HealthFactor >= MaxHealthFactor || aggregate.HealthFactor < UnsafeHealthFactorBps {
		t.Fatalf("unexpected health factor %d", aggregate.HealthFactor)
	}

	// Reconciliation is read-only with respect to pool state.
	pool, err := env.engine.Pool("usdc")
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if pool.TotalBorrowed != 500_000_000 {
		t.Fatalf("pool mutated by reconcile: borrowed %d", pool.TotalBorrowed)
	}
	if pool.LastAccrualTs != createdAt {
		t.Fatalf("pool accrual clock mutated by reconcile: %d", pool.LastAccrualTs)
	}

	// The persisted snapshot matches the returned aggregate.
	stored, err := env.engine.Position("alice")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if *stored != *aggregate {
		t.Fatalf("stored %+v diverged from reconciled %+v", stored, aggregate)
	}
}

func TestReconcileRepairsPriceDrift(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t, "weth", "WETH", "weth-usd")
	env.setPrice("weth-usd", 2000, 0)

	env.fund(t, "bob", "WETH", 1_100_000)
	if _, err := env.engine.Deposit("bob", "weth", 1_000_000, env.now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// The deposit was valued at $2000. After the price moves, only the new
	// deposit's value enters the running aggregate; the stale $2000 of the
	// first deposit is left in place until a reconcile.
	env.setPrice("weth-usd", 1500, 0)
	if _, err := env.engine.Deposit("bob", "weth", 100_000, env.now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	stored, err := env.engine.Position("bob")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if stored.CollateralValueUSD != 2_150_000_000 {
		t.Fatalf("running aggregate: got %d, want 2150000000", stored.CollateralValueUSD)
	}

	// 1_100_000 units at $1500.
	aggregate, err := env.engine.ReconcileUserPosition("bob", env.now)
	if err != nil {
		t.Fatalf("ReconcileUserPosition: %v", err)
	}
	if aggregate.CollateralValueUSD != 1_650_000_000 {
		t.Fatalf("reconciled collateral: got %d, want 1650000000", aggregate.CollateralValueUSD)
	}
}

func TestRecomputePositionSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t, "usdc", "USDC", "usdc-usd")
	env.createPool(t, "weth", "WETH", "weth-usd")
	env.setPrice("weth-usd", 2000, 0)

	env.fund(t, "bob", "WETH", 1_000_000)
	if _, err := env.engine.Deposit("bob", "weth", 1_000_000, env.now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	env.fund(t, "carol", "USDC", 2_000_000_000)
	if _, err := env.engine.Deposit("carol", "usdc", 2_000_000_000, env.now); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := env.engine.Borrow("bob", "usdc", 1_000_000_000, env.now); err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	positions, err := env.state.ListUserPoolPositions("bob")
	if err != nil {
		t.Fatalf("ListUserPoolPositions: %v", err)
	}
	pools := map[string]*Pool{}
	for _, p := range positions {
		stored, err := env.state.GetPool(p.PoolID)
		if err != nil {
			t.Fatalf("GetPool: %v", err)
		}
		pools[p.PoolID] = stored
	}

	aggregate, snapshots, err := RecomputePosition("bob", pools, positions, env.prices, env.engine.maxQuoteAge, env.now)
	if err != nil {
		t.Fatalf("RecomputePosition: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected one snapshot per pool, got %d", len(snapshots))
	}
	if aggregate.CollateralValueUSD != 2_000_000_000 {
		t.Fatalf("collateral USD: %d", aggregate.CollateralValueUSD)
	}
	if aggregate.DebtValueUSD != 1_000_000_000 {
		t.Fatalf("debt USD: %d", aggregate.DebtValueUSD)
	}
	// $2000 collateral at 80% threshold against $1000 of debt.
	if aggregate.HealthFactor != 16_000 {
		t.Fatalf("health factor: got %d, want 16000", aggregate.HealthFactor)
	}
}
