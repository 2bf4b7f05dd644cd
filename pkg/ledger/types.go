// Package ledger contains the adapters for the source and destination chains.
// The bridge core only depends on the interfaces here; the concrete client
// speaks the UTxORPC watch/submit protocol.
package ledger

import (
	"context"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// Action distinguishes the source stream's two kinds of events. The bridge
// processes apply actions only.
type Action string

const (
	ActionApply Action = "apply"
	ActionUndo  Action = "undo"
)

// Stage reports destination transaction confirmation progress.
type Stage string

const (
	StageAcknowledged Stage = "acknowledged"
	StageMempool      Stage = "mempool"
	StageConfirmed    Stage = "confirmed"
)

// TxEvent is one event from the per-address transaction stream.
type TxEvent struct {
	Action    Action `json:"action"`
	Tx        Tx     `json:"tx"`
	BlockSlot uint64 `json:"blockSlot,omitempty"`
	BlockHash string `json:"blockHash,omitempty"`
}

// Tx is the wire form of a source-chain transaction.
type Tx struct {
	Hash      []byte     `json:"hash"`
	Inputs    []TxInput  `json:"inputs,omitempty"`
	Outputs   []TxOutput `json:"outputs,omitempty"`
	Auxiliary *Auxiliary `json:"auxiliary,omitempty"`
}

// TxInput carries the resolved source output when the node can provide it.
type TxInput struct {
	AsOutput *TxOutput `json:"asOutput,omitempty"`
}

// TxOutput is a transaction output paying Coin (in the smallest ledger unit)
// to Address.
type TxOutput struct {
	Address []byte `json:"address"`
	Coin    uint64 `json:"coin"`
}

// Auxiliary holds transaction metadata entries.
type Auxiliary struct {
	Metadata []MetadataEntry `json:"metadata,omitempty"`
}

// MetadataEntry is one labelled auxiliary metadata value.
type MetadataEntry struct {
	Label uint64        `json:"label"`
	Value MetadataValue `json:"value"`
}

// MetadataValue is a tagged union; Case is one of "text", "int", "bytes",
// "map" or "array".
type MetadataValue struct {
	Case  string      `json:"case"`
	Value interface{} `json:"value"`
}

// Watcher streams deposit events for a set of watched addresses. The stream
// is infinite while the adapter is healthy; it terminates by delivering one
// error and closing both channels.
type Watcher interface {
	WatchAddresses(ctx context.Context, addresses []string) (<-chan bridge.DepositEvent, <-chan error)
	Close() error
}

// Submitter submits signed transactions and reports confirmation stages.
type Submitter interface {
	SubmitTx(ctx context.Context, txBytes []byte) (string, error)
	WaitForTx(ctx context.Context, txHash string) (<-chan Stage, <-chan error)
	Close() error
}
