// Package indexer drives the source chain adapter, validates deposit events
// and forwards them to the relayer.
package indexer

import (
	"context"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/ledger"
	"github.com/bayareaeagle/VBJC/pkg/relayer"
)

// Broker is the slice of the relayer the indexer publishes through.
type Broker interface {
	PublishDeposit(event bridge.DepositEvent) (relayer.PublishResult, error)
	UpdateWatermark(slot uint64, blockHash string)
}

// Indexer consumes the watch stream for the configured deposit addresses.
// The in-memory processed set absorbs duplicate deliveries within a boot;
// the relayer's idempotent upsert absorbs them across boots.
type Indexer struct {
	cfg     bridge.Config
	watcher ledger.Watcher
	broker  Broker
	logger  log.Logger

	minAmount math.Int
	maxAmount math.Int

	// processed is touched only by the Run goroutine.
	processed map[string]bool
}

// New builds an indexer. An empty deposit-address set is a boot error.
func New(cfg bridge.Config, watcher ledger.Watcher, broker Broker, logger log.Logger) (*Indexer, error) {
	if len(cfg.DepositAddresses) == 0 {
		return nil, bridge.ErrNoDepositAddresses
	}
	return &Indexer{
		cfg:       cfg,
		watcher:   watcher,
		broker:    broker,
		logger:    logger.With("module", "bridge/indexer"),
		minAmount: math.NewIntFromUint64(cfg.MinDepositAmount),
		maxAmount: math.NewIntFromUint64(cfg.MaxTransferAmount),
		processed: make(map[string]bool),
	}, nil
}

// Run consumes the watch stream until ctx is cancelled or an unrecoverable
// error occurs. Transient stream failures trigger a re-subscribe after the
// configured retry delay; authentication failures are fatal.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.Info("🔍 Indexer starting",
		"deposit_addresses", len(ix.cfg.DepositAddresses),
		"min_amount", ix.cfg.MinDepositAmount,
		"max_amount", ix.cfg.MaxTransferAmount,
	)

	for {
		events, errs := ix.watcher.WatchAddresses(ctx, ix.cfg.DepositAddresses)

		streamErr, err := ix.consume(ctx, events, errs)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ledger.IsAuthError(streamErr) {
			ix.logger.Error("❌ Watch stream authentication failed", "error", streamErr)
			return streamErr
		}

		ix.logger.Warn("⚠️ Watch stream ended, re-subscribing",
			"error", streamErr,
			"delay", ix.cfg.RetryDelay.String(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ix.cfg.RetryDelay):
		}
	}
}

// consume drains one subscription. It returns the stream's terminal error
// (to be classified by Run) or a hard error to propagate to the supervisor.
func (ix *Indexer) consume(ctx context.Context, events <-chan bridge.DepositEvent, errs <-chan error) (streamErr error, fatal error) {
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case err := <-errs:
			return err, nil
		case ev, ok := <-events:
			if !ok {
				// Wait for the paired error.
				select {
				case err := <-errs:
					return err, nil
				case <-ctx.Done():
					return nil, nil
				}
			}
			if err := ix.handle(ev); err != nil {
				return nil, err
			}
		}
	}
}

func (ix *Indexer) handle(ev bridge.DepositEvent) error {
	if ix.processed[ev.TxHash] {
		ix.logger.Debug("Duplicate deposit delivery dropped", "txHash", ev.TxHash)
		return nil
	}

	if err := ix.validate(ev); err != nil {
		// The on-chain deposit cannot be corrected from here; drop it.
		ix.logger.Warn("⚠️ Invalid deposit dropped",
			"txHash", ev.TxHash,
			"amount", ev.Amount.String(),
			"asset", ev.AssetType,
			"error", err,
		)
		return nil
	}

	ix.processed[ev.TxHash] = true

	if _, err := ix.broker.PublishDeposit(ev); err != nil {
		// Allow a future stream re-delivery to retry this deposit.
		delete(ix.processed, ev.TxHash)
		return err
	}

	if ev.BlockSlot > 0 {
		ix.broker.UpdateWatermark(ev.BlockSlot, ev.BlockHash)
	}
	return nil
}

func (ix *Indexer) validate(ev bridge.DepositEvent) error {
	if ev.Amount.IsNil() || !ev.Amount.IsPositive() {
		return bridge.ErrAmountOutOfRange.Wrap("amount must be positive")
	}
	if ev.Amount.LT(ix.minAmount) || ev.Amount.GT(ix.maxAmount) {
		return bridge.ErrAmountOutOfRange.Wrapf("amount %s outside [%s, %s]",
			ev.Amount, ix.minAmount, ix.maxAmount)
	}
	if !ix.cfg.AssetAllowed(ev.AssetType) {
		return bridge.ErrAssetNotAllowed.Wrapf("%q", ev.AssetType)
	}
	return nil
}
