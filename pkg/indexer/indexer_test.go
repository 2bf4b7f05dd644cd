package indexer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/indexer"
	"github.com/bayareaeagle/VBJC/pkg/ledger"
	"github.com/bayareaeagle/VBJC/pkg/relayer"
)

// recordingBroker captures published deposits without a real store.
type recordingBroker struct {
	mu         sync.Mutex
	published  []bridge.DepositEvent
	watermarks []uint64
	publishErr error
}

func (b *recordingBroker) PublishDeposit(ev bridge.DepositEvent) (relayer.PublishResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return relayer.PublishResult{}, b.publishErr
	}
	b.published = append(b.published, ev)
	return relayer.PublishResult{Success: true, MessageID: ev.TxHash + "#1"}, nil
}

func (b *recordingBroker) UpdateWatermark(slot uint64, blockHash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watermarks = append(b.watermarks, slot)
}

func (b *recordingBroker) publishedHashes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, ev := range b.published {
		out = append(out, ev.TxHash)
	}
	return out
}

func testConfig() bridge.Config {
	return bridge.Config{
		DepositAddresses:  []string{"addr_test1deposit"},
		AllowedAssets:     []string{"ADA"},
		MinDepositAmount:  2_000_000,
		MaxTransferAmount: 100_000_000_000,
		RetryDelay:        10 * time.Millisecond,
	}
}

func event(txHash string, amount int64, asset string) bridge.DepositEvent {
	return bridge.DepositEvent{
		TxHash:           txHash,
		SenderAddress:    "addr_test1sender",
		RecipientAddress: "addr_test1deposit",
		Amount:           math.NewInt(amount),
		AssetType:        asset,
		BlockSlot:        500,
		BlockHash:        "block_500",
		Timestamp:        time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRequiresDepositAddresses(t *testing.T) {
	cfg := testConfig()
	cfg.DepositAddresses = nil

	_, err := indexer.New(cfg, ledger.NewFakeWatcher("addr_test", "ADA"), &recordingBroker{}, log.NewNopLogger())
	require.ErrorIs(t, err, bridge.ErrNoDepositAddresses)
}

func TestValidDepositIsPublished(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	waitFor(t, func() bool { return watcher.SubscriptionCount() > 0 }, "Indexer should subscribe")
	watcher.Emit(event("aa11", 5_000_000, "ADA"))

	waitFor(t, func() bool { return len(broker.publishedHashes()) == 1 }, "Deposit should be published")
	require.Equal(t, []string{"aa11"}, broker.publishedHashes())

	broker.mu.Lock()
	require.Equal(t, []uint64{500}, broker.watermarks, "Watermark should advance with the event")
	broker.mu.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestBelowMinimumDepositIsDropped(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)

	waitFor(t, func() bool { return watcher.SubscriptionCount() > 0 }, "Indexer should subscribe")
	watcher.Emit(event("small", 1_000_000, "ADA")) // below 2 ADA minimum
	watcher.Emit(event("ok", 5_000_000, "ADA"))

	waitFor(t, func() bool { return len(broker.publishedHashes()) == 1 }, "Only the valid deposit should be published")
	require.Equal(t, []string{"ok"}, broker.publishedHashes())
}

func TestDisallowedAssetIsDropped(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)

	waitFor(t, func() bool { return watcher.SubscriptionCount() > 0 }, "Indexer should subscribe")
	watcher.Emit(event("token", 5_000_000, "SHIBA"))
	watcher.Emit(event("ok", 5_000_000, "ADA"))

	waitFor(t, func() bool { return len(broker.publishedHashes()) == 1 }, "Disallowed asset should be dropped")
	require.Equal(t, []string{"ok"}, broker.publishedHashes())
}

func TestDuplicateDeliveryIsDropped(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)

	waitFor(t, func() bool { return watcher.SubscriptionCount() > 0 }, "Indexer should subscribe")
	watcher.Emit(event("dup", 5_000_000, "ADA"))
	watcher.Emit(event("dup", 5_000_000, "ADA"))
	watcher.Emit(event("other", 5_000_000, "ADA"))

	waitFor(t, func() bool { return len(broker.publishedHashes()) == 2 }, "Duplicate should be published once")
	require.Equal(t, []string{"dup", "other"}, broker.publishedHashes())
}

func TestResubscribesAfterStreamFailure(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)

	waitFor(t, func() bool {
		watcher.Emit(event("before", 5_000_000, "ADA"))
		return len(broker.publishedHashes()) > 0
	}, "First subscription should deliver")

	watcher.Fail(errors.New("connection reset"))

	waitFor(t, func() bool {
		watcher.Emit(event("after", 5_000_000, "ADA"))
		return contains(broker.publishedHashes(), "after")
	}, "Indexer should re-subscribe after a transient stream failure")
}

func TestAuthFailureIsFatal(t *testing.T) {
	watcher := ledger.NewFakeWatcher("addr_test", "ADA")
	broker := &recordingBroker{}

	ix, err := indexer.New(testConfig(), watcher, broker, log.NewNopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	waitFor(t, func() bool {
		watcher.Emit(event("warm", 5_000_000, "ADA"))
		return len(broker.publishedHashes()) > 0
	}, "Stream should be live before failing it")

	watcher.Fail(bridge.ErrAdapterAuth.Wrap("invalid api key"))

	select {
	case err := <-done:
		require.ErrorIs(t, err, bridge.ErrAdapterAuth, "Auth failure must stop the indexer")
	case <-time.After(2 * time.Second):
		t.Fatal("Indexer did not stop on auth failure")
	}
}

func contains(hashes []string, want string) bool {
	for _, h := range hashes {
		if h == want {
			return true
		}
	}
	return false
}
