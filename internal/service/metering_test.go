package service

import (
	"context"
	"testing"

	"server_rental/internal/domain"
	"server_rental/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepDeductsDefaultRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	srv := f.server(t, "free", domain.TierFree)
	u := f.user(t, "alice", 100)
	idle := f.user(t, "idle", 100)
	_, err := f.svc.AllocateFree(ctx, u.ID)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.CoinsDeductedTotal)
	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rate)
	assert.Equal(t, 1, report.Deducted)
	assert.Equal(t, 1, report.Coins)
	assert.Empty(t, report.Evicted)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CoinsDeductedTotal))

	assert.Equal(t, 99, f.reloadUser(t, u.ID).Coins)
	assert.Equal(t, 100, f.reloadUser(t, idle.ID).Coins, "users without a server are not metered")

	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxDeduction, txs[0].Kind)
	assert.Equal(t, 1, txs[0].Amount)
	assert.Equal(t, u.ID, txs[0].UserID)
	require.NotNil(t, txs[0].ServerID)
	assert.Equal(t, srv.ID, *txs[0].ServerID)
	f.assertConsistent(t)
}

func TestSweepGoesNegativeThenEvictsNextSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	srv := f.server(t, "free", domain.TierFree)
	u := f.user(t, "alice", 3)
	_, err := f.svc.AllocateFree(ctx, u.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateSettings(ctx, "", "", 5)
	require.NoError(t, err)

	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Evicted)
	got := f.reloadUser(t, u.ID)
	assert.Equal(t, -2, got.Coins)
	require.NotNil(t, got.ServerID, "the balance check runs before the subtraction")

	report, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, report.Evicted, 1)
	ev := report.Evicted[0]
	assert.Equal(t, u.ID, ev.UserID)
	assert.Equal(t, srv.ID, ev.ServerID)
	assert.Equal(t, -2, ev.Coins)
	assert.Contains(t, ev.Notice(), "alice ran out of coins")

	got = f.reloadUser(t, u.ID)
	assert.Nil(t, got.ServerID)
	assert.Equal(t, -2, got.Coins, "eviction does not touch the balance")
	assert.False(t, f.reloadServer(t, srv.ID).IsOccupied)
	assert.Len(t, f.transactions(t), 1, "only the first sweep wrote a deduction")
	f.assertConsistent(t)
}

func TestSweepZeroBalanceEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server(t, "free", domain.TierFree)
	u := f.user(t, "broke", 0)
	_, err := f.svc.AllocateFree(ctx, u.ID)
	require.NoError(t, err)

	report, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Evicted, 1)
	assert.Equal(t, 0, report.Deducted)
	assert.Empty(t, f.transactions(t))
	f.assertConsistent(t)
}

func TestSweepTwiceDeductsTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.server(t, "free", domain.TierFree)
	u := f.user(t, "alice", 10)
	_, err := f.svc.AllocateFree(ctx, u.ID)
	require.NoError(t, err)

	_, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	_, err = f.svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 8, f.reloadUser(t, u.ID).Coins)
	assert.Len(t, f.transactions(t), 2)
}

func TestSweepWithNoOccupiedUsers(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice", 10)

	report, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deducted)
	assert.Empty(t, report.Evicted)
}
