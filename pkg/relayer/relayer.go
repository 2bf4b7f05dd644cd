// Package relayer is the single in-process publication point for deposits.
// It owns the durable store: every state transition is persisted before it
// becomes visible to subscribers.
package relayer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/log"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// Store is the durable backend the relayer mutates. *store.Store satisfies
// it; tests may substitute their own.
type Store interface {
	AddProcessedDeposit(p bridge.ProcessedDeposit) error
	AddPendingMirror(pm bridge.PendingMirror) error
	UpdatePendingMirror(depositTxHash string, retryCount int, errorMessage string) (bool, error)
	RemovePendingMirror(depositTxHash string) error
	FinalizePendingMirror(depositTxHash string, p bridge.ProcessedDeposit) error
	GetPendingMirror(depositTxHash string) (bridge.PendingMirror, bool, error)
	HasProcessedDeposit(depositTxHash string) (bool, error)
	RemoveProcessedDeposit(depositTxHash string) error
	LoadBridgeState() (bridge.BridgeState, error)
	SaveWatermark(slot uint64, blockHash string) error
}

// PublishResult reports the outcome of PublishDeposit. MessageID is a
// deterministic identifier used only for logging.
type PublishResult struct {
	Success   bool
	MessageID string
}

// Relayer linearizes all bridge state mutations and fans published deposits
// out to the single subscriber. The subscriber queue is unbounded FIFO; the
// consumer is expected to drain it.
type Relayer struct {
	store         Store
	logger        log.Logger
	retryAttempts int

	mu               sync.Mutex
	cond             *sync.Cond
	queue            []bridge.DepositEvent
	out              chan bridge.DepositEvent
	closed           bool
	seq              uint64
	watermark        bridge.Watermark
	lastMirrorTxHash string
}

// New creates a relayer over the given store. retryAttempts is the cap from
// configuration; reaching it promotes a pending mirror to terminal Failed.
func New(st Store, retryAttempts int, logger log.Logger) *Relayer {
	r := &Relayer{
		store:         st,
		logger:        logger.With("module", "bridge/relayer"),
		retryAttempts: retryAttempts,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Start loads the durable state and re-emits every surviving pending mirror
// onto the subscriber stream so the mirror worker resumes them immediately.
func (r *Relayer) Start() error {
	state, err := r.store.LoadBridgeState()
	if err != nil {
		return fmt.Errorf("failed to load bridge state: %w", err)
	}

	r.mu.Lock()
	r.watermark = state.Watermark
	r.mu.Unlock()

	pending := make([]bridge.PendingMirror, 0, len(state.PendingMirrors))
	for _, pm := range state.PendingMirrors {
		pending = append(pending, pm)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].DepositTxHash < pending[j].DepositTxHash
	})
	for _, pm := range pending {
		r.enqueue(pm.Deposit)
	}

	r.logger.Info("🌉 Relayer started",
		"processed_deposits", len(state.ProcessedDeposits),
		"resumed_pending_mirrors", len(pending),
		"watermark_slot", state.Watermark.LastProcessedSlot,
	)
	return nil
}

// PublishDeposit persists a pending mirror for the deposit and offers it to
// the subscriber. The persist happens first: a deposit is never visible
// downstream before it is durable. Publishing a deposit that already reached
// a terminal state is a no-op.
func (r *Relayer) PublishDeposit(event bridge.DepositEvent) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done, err := r.store.HasProcessedDeposit(event.TxHash)
	if err != nil {
		return PublishResult{}, fmt.Errorf("failed to check processed deposits: %w", err)
	}
	if done {
		r.logger.Warn("⚠️ Deposit already processed, not publishing", "txHash", event.TxHash)
		return PublishResult{Success: false}, nil
	}

	pm := bridge.PendingMirror{
		DepositTxHash: event.TxHash,
		Deposit:       event,
		RetryCount:    0,
		LastRetryAt:   time.Now().UTC(),
	}
	if err := r.store.AddPendingMirror(pm); err != nil {
		return PublishResult{}, fmt.Errorf("failed to persist pending mirror: %w", err)
	}

	r.seq++
	messageID := fmt.Sprintf("%s#%d", event.TxHash, r.seq)
	r.queueLocked(event)

	r.logger.Info("📥 Deposit published",
		"txHash", event.TxHash,
		"amount", event.Amount.String(),
		"sender", event.SenderAddress,
		"messageId", messageID,
	)
	return PublishResult{Success: true, MessageID: messageID}, nil
}

// SubscribeToDeposits returns the single-consumer FIFO of published events
// for this boot. The channel closes when the relayer closes.
func (r *Relayer) SubscribeToDeposits() <-chan bridge.DepositEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		r.out = make(chan bridge.DepositEvent)
		go r.pump()
	}
	return r.out
}

// UpdateMirrorStatus records the outcome of a mirror attempt. It returns
// true when a matching pending mirror existed (even if it was promoted to a
// terminal state by this call), false otherwise.
func (r *Relayer) UpdateMirrorStatus(depositTxHash, mirrorTxHash string, status bridge.MirrorStatus, errorMessage string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, exists, err := r.store.GetPendingMirror(depositTxHash)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	switch status {
	case bridge.MirrorStatusConfirmed:
		p := bridge.ProcessedDeposit{
			DepositTxHash: depositTxHash,
			ProcessedAt:   time.Now().UTC(),
			MirrorTxHash:  mirrorTxHash,
			Status:        bridge.MirrorStatusConfirmed,
		}
		if err := r.store.FinalizePendingMirror(depositTxHash, p); err != nil {
			return true, err
		}
		r.lastMirrorTxHash = mirrorTxHash
		r.logger.Info("✅ Mirror confirmed", "depositTxHash", depositTxHash, "mirrorTxHash", mirrorTxHash)

	case bridge.MirrorStatusFailed:
		retry := pm.RetryCount + 1
		if retry >= r.retryAttempts {
			p := bridge.ProcessedDeposit{
				DepositTxHash: depositTxHash,
				ProcessedAt:   time.Now().UTC(),
				MirrorTxHash:  mirrorTxHash,
				Status:        bridge.MirrorStatusFailed,
			}
			if err := r.store.FinalizePendingMirror(depositTxHash, p); err != nil {
				return true, err
			}
			r.logger.Error("❌ Mirror failed terminally",
				"depositTxHash", depositTxHash,
				"attempts", retry,
				"error", errorMessage,
			)
		} else {
			if _, err := r.store.UpdatePendingMirror(depositTxHash, retry, errorMessage); err != nil {
				return true, err
			}
			r.logger.Warn("🔄 Mirror attempt failed, will retry",
				"depositTxHash", depositTxHash,
				"attempt", retry,
				"max_attempts", r.retryAttempts,
				"error", errorMessage,
			)
		}

	case bridge.MirrorStatusSubmitted:
		// Progress marker only; retry metadata is untouched.
		r.logger.Info("📤 Mirror submitted", "depositTxHash", depositTxHash, "mirrorTxHash", mirrorTxHash)

	default:
		return true, fmt.Errorf("unsupported mirror status %s", status)
	}

	return true, nil
}

// GetBridgeState reads the full state snapshot through to the store.
func (r *Relayer) GetBridgeState() (bridge.BridgeState, error) {
	return r.store.LoadBridgeState()
}

// GetPendingDeposits returns all pending mirrors.
func (r *Relayer) GetPendingDeposits() ([]bridge.PendingMirror, error) {
	return r.GetPendingDepositsForRetry(r.retryAttempts)
}

// GetPendingDepositsForRetry returns pending mirrors whose retry count is
// still below maxRetries, ordered by deposit tx hash.
func (r *Relayer) GetPendingDepositsForRetry(maxRetries int) ([]bridge.PendingMirror, error) {
	state, err := r.store.LoadBridgeState()
	if err != nil {
		return nil, err
	}
	out := make([]bridge.PendingMirror, 0, len(state.PendingMirrors))
	for _, pm := range state.PendingMirrors {
		if pm.RetryCount < maxRetries {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepositTxHash < out[j].DepositTxHash })
	return out, nil
}

// UpdateWatermark records the newest observed source position in memory; it
// is persisted on the next PersistState checkpoint.
func (r *Relayer) UpdateWatermark(slot uint64, blockHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= r.watermark.LastProcessedSlot {
		r.watermark = bridge.Watermark{LastProcessedSlot: slot, LastProcessedBlockHash: blockHash}
	}
}

// PersistState flushes the volatile watermark to the store.
func (r *Relayer) PersistState() error {
	r.mu.Lock()
	wm := r.watermark
	r.mu.Unlock()
	if err := r.store.SaveWatermark(wm.LastProcessedSlot, wm.LastProcessedBlockHash); err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}
	return nil
}

// LastMirrorTxHash returns the most recently confirmed mirror hash, for the
// status report.
func (r *Relayer) LastMirrorTxHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastMirrorTxHash
}

// CleanupOldDeposits removes terminal records older than maxAge. It returns
// the number of records removed.
func (r *Relayer) CleanupOldDeposits(maxAge time.Duration) (int, error) {
	state, err := r.store.LoadBridgeState()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for hash, p := range state.ProcessedDeposits {
		if p.ProcessedAt.Before(cutoff) {
			if err := r.store.RemoveProcessedDeposit(hash); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Close shuts the subscriber stream. Pending queue entries drain first.
func (r *Relayer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cond.Broadcast()
}

func (r *Relayer) enqueue(ev bridge.DepositEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueLocked(ev)
}

func (r *Relayer) queueLocked(ev bridge.DepositEvent) {
	if r.closed {
		return
	}
	r.queue = append(r.queue, ev)
	r.cond.Signal()
	if r.out == nil {
		// No subscriber yet; events wait in the queue.
		return
	}
}

// pump moves queued events to the subscriber channel, preserving FIFO order.
func (r *Relayer) pump() {
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closed {
			out := r.out
			r.mu.Unlock()
			close(out)
			return
		}
		ev := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.out <- ev
	}
}
