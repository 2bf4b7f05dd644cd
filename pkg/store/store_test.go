package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "bridge-state.db"), log.NewNopLogger())
	require.NoError(t, err, "Should open store")
	t.Cleanup(func() { st.Close() })
	return st
}

func testDeposit(txHash string, amount int64) bridge.DepositEvent {
	return bridge.DepositEvent{
		TxHash:           txHash,
		SenderAddress:    "addr_test1sender",
		RecipientAddress: "addr_test1recipient",
		Amount:           math.NewInt(amount),
		AssetType:        "ADA",
		BlockSlot:        1234,
		BlockHash:        "block_abc",
		OutputIndex:      0,
		Timestamp:        time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestStateRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bridge-state.db")

	st, err := store.New(dbPath, log.NewNopLogger())
	require.NoError(t, err)

	deposit := testDeposit("aa11", 5_000_000)
	require.NoError(t, st.AddPendingMirror(bridge.PendingMirror{
		DepositTxHash: deposit.TxHash,
		Deposit:       deposit,
		RetryCount:    1,
		LastRetryAt:   time.Now().UTC(),
	}))
	require.NoError(t, st.AddProcessedDeposit(bridge.ProcessedDeposit{
		DepositTxHash: "bb22",
		ProcessedAt:   time.Now().UTC(),
		MirrorTxHash:  "mirror_bb22",
		Status:        bridge.MirrorStatusConfirmed,
	}))
	require.NoError(t, st.SaveWatermark(999, "block_999"))
	require.NoError(t, st.Close())

	// Reopen, as after a restart.
	st2, err := store.New(dbPath, log.NewNopLogger())
	require.NoError(t, err)
	defer st2.Close()

	state, err := st2.LoadBridgeState()
	require.NoError(t, err)

	require.Len(t, state.PendingMirrors, 1, "Pending mirror should survive restart")
	pm := state.PendingMirrors["aa11"]
	require.Equal(t, deposit.TxHash, pm.Deposit.TxHash)
	require.Equal(t, deposit.SenderAddress, pm.Deposit.SenderAddress)
	require.True(t, pm.Deposit.Amount.Equal(deposit.Amount), "Amount should round-trip exactly")
	require.Equal(t, 1, pm.RetryCount, "Retry count should survive restart")

	require.Len(t, state.ProcessedDeposits, 1)
	require.Equal(t, "mirror_bb22", state.ProcessedDeposits["bb22"].MirrorTxHash)
	require.Equal(t, bridge.MirrorStatusConfirmed, state.ProcessedDeposits["bb22"].Status)

	require.Equal(t, uint64(999), state.Watermark.LastProcessedSlot)
	require.Equal(t, "block_999", state.Watermark.LastProcessedBlockHash)
}

func TestEmptyStateDefaults(t *testing.T) {
	st := newTestStore(t)

	state, err := st.LoadBridgeState()
	require.NoError(t, err)
	require.Empty(t, state.ProcessedDeposits)
	require.Empty(t, state.PendingMirrors)
	require.Equal(t, uint64(0), state.Watermark.LastProcessedSlot)
	require.Equal(t, "genesis", state.Watermark.LastProcessedBlockHash)
}

func TestLargeAmountRoundTrip(t *testing.T) {
	st := newTestStore(t)

	// Amounts beyond 2^53-1 must survive serialization exactly.
	huge, ok := math.NewIntFromString("170141183460469231731687303715884105727") // 2^127 - 1
	require.True(t, ok)

	deposit := testDeposit("cc33", 0)
	deposit.Amount = huge
	require.NoError(t, st.AddPendingMirror(bridge.PendingMirror{
		DepositTxHash: deposit.TxHash,
		Deposit:       deposit,
		LastRetryAt:   time.Now().UTC(),
	}))

	state, err := st.LoadBridgeState()
	require.NoError(t, err)
	got := state.PendingMirrors["cc33"].Deposit.Amount
	require.True(t, got.Equal(huge), "Expected %s, got %s", huge, got)
}

func TestSmallAmountStaysNumeric(t *testing.T) {
	st := newTestStore(t)

	deposit := testDeposit("dd44", 42_000_000)
	require.NoError(t, st.AddPendingMirror(bridge.PendingMirror{
		DepositTxHash: deposit.TxHash,
		Deposit:       deposit,
		LastRetryAt:   time.Now().UTC(),
	}))

	state, err := st.LoadBridgeState()
	require.NoError(t, err)
	require.True(t, state.PendingMirrors["dd44"].Deposit.Amount.Equal(math.NewInt(42_000_000)))
}

func TestFinalizePendingMirror(t *testing.T) {
	st := newTestStore(t)

	deposit := testDeposit("ee55", 3_000_000)
	require.NoError(t, st.AddPendingMirror(bridge.PendingMirror{
		DepositTxHash: deposit.TxHash,
		Deposit:       deposit,
		LastRetryAt:   time.Now().UTC(),
	}))

	require.NoError(t, st.FinalizePendingMirror(deposit.TxHash, bridge.ProcessedDeposit{
		DepositTxHash: deposit.TxHash,
		ProcessedAt:   time.Now().UTC(),
		MirrorTxHash:  "mirror_ee55",
		Status:        bridge.MirrorStatusConfirmed,
	}))

	// Never both pending and processed.
	state, err := st.LoadBridgeState()
	require.NoError(t, err)
	require.NotContains(t, state.PendingMirrors, deposit.TxHash, "Finalized deposit must leave the pending set")
	require.Contains(t, state.ProcessedDeposits, deposit.TxHash)

	done, err := st.HasProcessedDeposit(deposit.TxHash)
	require.NoError(t, err)
	require.True(t, done)
}

func TestUpdatePendingMirror(t *testing.T) {
	st := newTestStore(t)

	updated, err := st.UpdatePendingMirror("missing", 1, "boom")
	require.NoError(t, err)
	require.False(t, updated, "Updating a missing mirror should report false")

	deposit := testDeposit("ff66", 3_000_000)
	require.NoError(t, st.AddPendingMirror(bridge.PendingMirror{
		DepositTxHash: deposit.TxHash,
		Deposit:       deposit,
		LastRetryAt:   time.Now().UTC(),
	}))

	updated, err = st.UpdatePendingMirror(deposit.TxHash, 2, "submit timeout")
	require.NoError(t, err)
	require.True(t, updated)

	pm, exists, err := st.GetPendingMirror(deposit.TxHash)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, 2, pm.RetryCount)
	require.Equal(t, "submit timeout", pm.ErrorMessage)
}

func TestWatermarkOverwrite(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SaveWatermark(10, "block_10"))
	require.NoError(t, st.SaveWatermark(20, "block_20"))

	state, err := st.LoadBridgeState()
	require.NoError(t, err)
	require.Equal(t, uint64(20), state.Watermark.LastProcessedSlot)
	require.Equal(t, "block_20", state.Watermark.LastProcessedBlockHash)
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "bridge-state.db"), log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	err = st.AddPendingMirror(bridge.PendingMirror{DepositTxHash: "x", Deposit: testDeposit("x", 1)})
	require.Error(t, err, "Writes after Close must fail")
}
