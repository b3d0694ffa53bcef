package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"svcmarket/internal/ledger"
)

// testStoreRoundTrip drives a ledger over store, reopens it and checks the
// snapshot survives. A second ledger opened before the last write must then
// be rejected with ErrSeqConflict and keep its own state.
func testStoreRoundTrip(t *testing.T, store ledger.Store) {
	t.Helper()
	ctx := context.Background()

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snap)

	l, err := ledger.Open(ctx, testConfig(), store)
	require.NoError(t, err)
	_, err = l.IssueServices(ctx, "owner", "seller", 10)
	require.NoError(t, err)
	_, err = l.IssueTokens(ctx, "owner", "buyer", 1000)
	require.NoError(t, err)
	_, err = l.AddListing(ctx, "seller", 5, 100)
	require.NoError(t, err)
	_, err = l.RemoveListing(ctx, "seller", 2)
	require.NoError(t, err)
	_, err = l.Purchase(ctx, "buyer", "seller", 3)
	require.NoError(t, err)
	_, err = l.SetListingCap(ctx, "owner", 4)
	require.NoError(t, err)

	reopened, err := ledger.Open(ctx, ledger.Config{Owner: "other", UnitCost: 1}, store)
	require.NoError(t, err)
	require.Equal(t, l.Snapshot(), reopened.Snapshot())
	require.Empty(t, reopened.Snapshot().Listings)

	stale, err := ledger.Open(ctx, testConfig(), store)
	require.NoError(t, err)
	before := stale.Snapshot()

	_, err = l.IssueTokens(ctx, "owner", "buyer", 1)
	require.NoError(t, err)

	_, err = stale.IssueTokens(ctx, "owner", "buyer", 5)
	require.ErrorIs(t, err, ErrSeqConflict)
	require.Equal(t, before, stale.Snapshot())

	latest, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, l.Snapshot(), latest)
}
