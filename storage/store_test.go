package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dlend/native/lending"
)

func samplePool(id string) *lending.Pool {
	return &lending.Pool{
		ID:                      id,
		Asset:                   "USDC",
		Decimals:                6,
		FeedID:                  id + "-usd",
		TotalLiquidity:          1_000_000,
		TotalBorrowed:           250_000,
		TotalShares:             1_000_000,
		BorrowIndex:             big.NewInt(1_000_000_000_000_000_000),
		BorrowRatePerSec:        big.NewInt(2_000_000_000),
		LastAccrualTs:           1_700_000_000,
		LTVBps:                  7500,
		LiquidationThresholdBps: 8000,
		LiquidationBonusBps:     500,
		CloseFactorBps:          5000,
		BaseRate:                big.NewInt(4),
		Slope1:                  big.NewInt(1),
		Slope2:                  big.NewInt(2),
		OptimalUtilization:      big.NewInt(3),
	}
}

func TestStorePoolRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())

	missing, err := store.GetPool("usdc")
	require.NoError(t, err)
	require.Nil(t, missing)

	pool := samplePool("usdc")
	require.NoError(t, store.PutPool(pool))

	got, err := store.GetPool("usdc")
	require.NoError(t, err)
	require.Equal(t, pool, got)

	pools, err := store.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
}

func TestStorePositionListing(t *testing.T) {
	store := NewStore(NewMemDB())

	for _, poolID := range []string{"usdc", "weth"} {
		require.NoError(t, store.PutUserPoolPosition(&lending.UserPoolPosition{
			Address:         "alice",
			PoolID:          poolID,
			DepositedAmount: 100,
			BorrowIndex:     big.NewInt(1_000_000_000_000_000_000),
		}))
	}
	require.NoError(t, store.PutUserPoolPosition(&lending.UserPoolPosition{
		Address:     "bob",
		PoolID:      "usdc",
		BorrowIndex: big.NewInt(1_000_000_000_000_000_000),
	}))

	positions, err := store.ListUserPoolPositions("alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	for _, p := range positions {
		require.Equal(t, "alice", string(p.Address))
	}

	single, err := store.GetUserPoolPosition("alice", "weth")
	require.NoError(t, err)
	require.Equal(t, uint64(100), single.DepositedAmount)
}

func TestStoreEscapesSeparators(t *testing.T) {
	store := NewStore(NewMemDB())

	// An address embedding the separator must not leak into another
	// user's listing.
	require.NoError(t, store.PutUserPoolPosition(&lending.UserPoolPosition{
		Address:     "alice/usdc",
		PoolID:      "weth",
		BorrowIndex: big.NewInt(1),
	}))

	positions, err := store.ListUserPoolPositions("alice")
	require.NoError(t, err)
	require.Empty(t, positions)
}

func TestStoreUserPositionRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())

	missing, err := store.GetUserPosition("alice")
	require.NoError(t, err)
	require.Nil(t, missing)

	position := &lending.UserPosition{
		Address:            "alice",
		CollateralValueUSD: 2_000_000_000,
		DebtValueUSD:       1_000_000_000,
		HealthFactor:       16_000,
	}
	require.NoError(t, store.PutUserPosition(position))

	got, err := store.GetUserPosition("alice")
	require.NoError(t, err)
	require.Equal(t, position, got)
}

func TestStoreRejectsIncompleteRecords(t *testing.T) {
	store := NewStore(NewMemDB())
	require.Error(t, store.PutPool(&lending.Pool{}))
	require.Error(t, store.PutUserPosition(&lending.UserPosition{}))
	require.Error(t, store.PutUserPoolPosition(&lending.UserPoolPosition{Address: "alice"}))
}

func TestMemDBIterateOrdered(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("p/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("p/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("q/a"), []byte("3")))

	var keys []string
	require.NoError(t, db.Iterate([]byte("p/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.Equal(t, []string{"p/a", "p/b"}, keys)

	require.NoError(t, db.Delete([]byte("p/a")))
	_, err := db.Get([]byte("p/a"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}
