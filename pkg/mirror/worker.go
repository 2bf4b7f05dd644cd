// Package mirror turns published deposits into destination-chain
// transactions. The worker consumes the live relayer stream and sweeps the
// durable pending set on an interval so crashed or failed mirrors are retried.
package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"golang.org/x/sync/errgroup"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/ledger"
	"github.com/bayareaeagle/VBJC/pkg/txbuilder"
)

const (
	// BridgeVersion is stamped into every mirror transaction's metadata.
	BridgeVersion = "1.0.0"

	// MetadataLabel is the auxiliary metadata label carried by mirror
	// transactions.
	MetadataLabel = 1337

	mirrorMessage = "VISTA Bridge: Mirroring deposit"
)

// Broker is the slice of the relayer the worker needs.
type Broker interface {
	SubscribeToDeposits() <-chan bridge.DepositEvent
	UpdateMirrorStatus(depositTxHash, mirrorTxHash string, status bridge.MirrorStatus, errorMessage string) (bool, error)
	GetPendingDepositsForRetry(maxRetries int) ([]bridge.PendingMirror, error)
}

// Worker builds, signs, submits and confirms mirror transactions.
type Worker struct {
	cfg       bridge.Config
	broker    Broker
	submitter ledger.Submitter
	signer    *txbuilder.Signer
	logger    log.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a mirror worker. The signer is derived from the configured
// wallet seed.
func New(cfg bridge.Config, broker Broker, submitter ledger.Submitter, logger log.Logger) (*Worker, error) {
	signer, err := txbuilder.NewSignerFromSeed(cfg.SenderSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet key: %w", err)
	}
	return &Worker{
		cfg:       cfg,
		broker:    broker,
		submitter: submitter,
		signer:    signer,
		logger:    logger.With("module", "bridge/mirror"),
		inFlight:  make(map[string]bool),
	}, nil
}

// Run processes deposits until ctx is cancelled. Live deliveries and sweep
// pickups share one bounded worker pool.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("⚙️ Mirror worker starting",
		"parallelism", w.cfg.MirrorParallelism,
		"sweep_interval", w.cfg.SweepInterval.String(),
		"fee", w.cfg.FeeAmount,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MirrorParallelism)

	deposits := w.broker.SubscribeToDeposits()
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Let in-flight mirrors finish their status updates.
			_ = g.Wait()
			return ctx.Err()

		case ev, ok := <-deposits:
			if !ok {
				_ = g.Wait()
				return nil
			}
			w.spawn(ctx, g, ev)

		case <-ticker.C:
			pending, err := w.broker.GetPendingDepositsForRetry(w.cfg.RetryAttempts)
			if err != nil {
				w.logger.Error("❌ Failed to list pending mirrors", "error", err)
				continue
			}
			for _, pm := range pending {
				w.spawn(ctx, g, pm.Deposit)
			}
		}
	}
}

// spawn schedules one mirror attempt unless the deposit is already being
// worked on.
func (w *Worker) spawn(ctx context.Context, g *errgroup.Group, ev bridge.DepositEvent) {
	w.mu.Lock()
	if w.inFlight[ev.TxHash] {
		w.mu.Unlock()
		return
	}
	w.inFlight[ev.TxHash] = true
	w.mu.Unlock()

	g.Go(func() error {
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, ev.TxHash)
			w.mu.Unlock()
		}()
		w.mirror(ctx, ev)
		return nil
	})
}

// mirror runs one attempt end to end. All outcomes are reported through the
// relayer; errors never escape to the pool.
func (w *Worker) mirror(ctx context.Context, ev bridge.DepositEvent) {
	net := ev.Amount.Sub(math.NewIntFromUint64(w.cfg.FeeAmount))
	if net.LTE(math.NewIntFromUint64(w.cfg.MinDestinationOutput)) {
		// Deterministic failure; submitting would be rejected by the ledger.
		w.report(ev.TxHash, "", bridge.MirrorStatusFailed,
			bridge.ErrInsufficientNet.Wrapf("amount %s fee %d", ev.Amount, w.cfg.FeeAmount).Error())
		return
	}

	tx, err := w.buildMirrorTx(ev, net)
	if err != nil {
		w.report(ev.TxHash, "", bridge.MirrorStatusFailed, err.Error())
		return
	}

	txBytes, err := tx.Bytes()
	if err != nil {
		w.report(ev.TxHash, "", bridge.MirrorStatusFailed, err.Error())
		return
	}
	// Computed before submission so a crash between submit and ack still
	// leaves us able to recognize the mirror on chain.
	mirrorHash, err := tx.Hash()
	if err != nil {
		w.report(ev.TxHash, "", bridge.MirrorStatusFailed, err.Error())
		return
	}

	w.logger.Info("🔄 Mirroring deposit",
		"depositTxHash", ev.TxHash,
		"mirrorTxHash", mirrorHash,
		"net_amount", net.String(),
		"recipient", ev.SenderAddress,
	)

	submittedHash, err := w.submitter.SubmitTx(ctx, txBytes)
	if err != nil {
		w.report(ev.TxHash, mirrorHash, bridge.MirrorStatusFailed, err.Error())
		return
	}
	if submittedHash != "" && submittedHash != mirrorHash {
		w.logger.Warn("⚠️ Submitted hash differs from computed hash",
			"computed", mirrorHash, "submitted", submittedHash)
		mirrorHash = submittedHash
	}
	if ok := w.report(ev.TxHash, mirrorHash, bridge.MirrorStatusSubmitted, ""); !ok {
		return
	}

	if err := w.awaitConfirmation(ctx, mirrorHash); err != nil {
		w.report(ev.TxHash, mirrorHash, bridge.MirrorStatusFailed, err.Error())
		return
	}
	w.report(ev.TxHash, mirrorHash, bridge.MirrorStatusConfirmed, "")
}

// buildMirrorTx pays the net amount back to the depositor on the destination
// chain and stamps the bridge metadata.
func (w *Worker) buildMirrorTx(ev bridge.DepositEvent, net math.Int) (*txbuilder.Tx, error) {
	metadata := map[interface{}]interface{}{
		"msg":           []interface{}{mirrorMessage, ev.TxHash},
		"originalTx":    ev.TxHash,
		"bridgeVersion": BridgeVersion,
		"timestamp":     time.Now().Unix(),
	}

	tx, err := txbuilder.NewBuilder().
		PayToAddress(ev.SenderAddress, net).
		AttachMetadata(MetadataLabel, metadata).
		Complete()
	if err != nil {
		return nil, fmt.Errorf("failed to build mirror transaction: %w", err)
	}
	if err := tx.Sign(w.signer); err != nil {
		return nil, fmt.Errorf("failed to sign mirror transaction: %w", err)
	}
	return tx, nil
}

// report forwards a status transition to the relayer. It returns false when
// the deposit had already reached a terminal state, which makes duplicate
// deliveries a no-op.
func (w *Worker) report(depositTxHash, mirrorTxHash string, status bridge.MirrorStatus, errMsg string) bool {
	existed, err := w.broker.UpdateMirrorStatus(depositTxHash, mirrorTxHash, status, errMsg)
	if err != nil {
		w.logger.Error("❌ Failed to update mirror status",
			"depositTxHash", depositTxHash, "status", status.String(), "error", err)
		return false
	}
	if !existed {
		w.logger.Debug("Mirror already finalized, skipping", "depositTxHash", depositTxHash)
		return false
	}
	return true
}

// awaitConfirmation blocks until the mirror transaction reaches the
// confirmed stage or the stream fails.
func (w *Worker) awaitConfirmation(ctx context.Context, mirrorHash string) error {
	stages, errs := w.submitter.WaitForTx(ctx, mirrorHash)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				// Error channel closed cleanly; keep draining stages.
				errs = nil
				continue
			}
			return fmt.Errorf("confirmation stream failed: %w", err)
		case stage, ok := <-stages:
			if !ok {
				return fmt.Errorf("confirmation stream closed before confirmation")
			}
			w.logger.Debug("Mirror stage", "mirrorTxHash", mirrorHash, "stage", string(stage))
			if stage == ledger.StageConfirmed {
				return nil
			}
		}
	}
}
