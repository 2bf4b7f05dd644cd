package bridge

import (
	"time"

	"cosmossdk.io/math"
)

// MirrorStatus tracks the lifecycle of a mirror transaction for a deposit.
type MirrorStatus int32

const (
	MirrorStatusUnspecified MirrorStatus = iota
	MirrorStatusPending
	MirrorStatusSubmitted
	MirrorStatusConfirmed
	MirrorStatusFailed
)

func (s MirrorStatus) String() string {
	switch s {
	case MirrorStatusPending:
		return "pending"
	case MirrorStatusSubmitted:
		return "submitted"
	case MirrorStatusConfirmed:
		return "confirmed"
	case MirrorStatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// DepositEvent represents a validated deposit observed on the source chain.
// It is immutable once emitted by the indexer; TxHash is its identity within
// the bridge.
type DepositEvent struct {
	TxHash           string            `json:"txHash"`
	SenderAddress    string            `json:"senderAddress"`
	RecipientAddress string            `json:"recipientAddress"`
	Amount           math.Int          `json:"amount"`
	AssetType        string            `json:"assetType"`
	BlockSlot        uint64            `json:"blockSlot"`
	BlockHash        string            `json:"blockHash"`
	OutputIndex      uint32            `json:"outputIndex"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// PendingMirror exists while the bridge still owes a destination transaction
// for the deposit. Unique by DepositTxHash.
type PendingMirror struct {
	DepositTxHash string       `json:"depositTxHash"`
	Deposit       DepositEvent `json:"deposit"`
	RetryCount    int          `json:"retryCount"`
	LastRetryAt   time.Time    `json:"lastRetryAt"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}

// ProcessedDeposit records a terminal decision for a deposit. Retained
// indefinitely for audit.
type ProcessedDeposit struct {
	DepositTxHash string       `json:"depositTxHash"`
	ProcessedAt   time.Time    `json:"processedAt"`
	MirrorTxHash  string       `json:"mirrorTxHash"`
	Status        MirrorStatus `json:"status"`
}

// Watermark is the last source-chain position the bridge has observed. It is
// a restart hint only, never a correctness condition.
type Watermark struct {
	LastProcessedSlot      uint64 `json:"lastProcessedSlot"`
	LastProcessedBlockHash string `json:"lastProcessedBlockHash"`
}

// BridgeState is the full durable state snapshot, keyed by deposit tx hash.
type BridgeState struct {
	ProcessedDeposits map[string]ProcessedDeposit `json:"processedDeposits"`
	PendingMirrors    map[string]PendingMirror    `json:"pendingMirrors"`
	Watermark         Watermark                   `json:"watermark"`
}

// NewBridgeState returns an empty state with the genesis watermark.
func NewBridgeState() BridgeState {
	return BridgeState{
		ProcessedDeposits: make(map[string]ProcessedDeposit),
		PendingMirrors:    make(map[string]PendingMirror),
		Watermark:         Watermark{LastProcessedSlot: 0, LastProcessedBlockHash: "genesis"},
	}
}
