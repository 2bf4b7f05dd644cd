package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/bech32"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// decoder turns wire transaction events into deposit events for watched
// addresses. It is shared by the gRPC client and the fake adapter tests.
type decoder struct {
	hrp       string
	assetType string
	watched   map[string]bool
}

func newDecoder(hrp, assetType string, addresses []string) *decoder {
	watched := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		watched[a] = true
	}
	return &decoder{hrp: hrp, assetType: assetType, watched: watched}
}

// DepositsFromEvent extracts one DepositEvent per output of the event's
// transaction that pays a watched address. Undo actions yield nothing.
func (d *decoder) DepositsFromEvent(ev TxEvent) ([]bridge.DepositEvent, error) {
	if ev.Action != ActionApply {
		return nil, nil
	}
	if len(ev.Tx.Hash) == 0 {
		return nil, fmt.Errorf("transaction event without hash")
	}

	txHash := hex.EncodeToString(ev.Tx.Hash)
	sender := senderAddress(ev.Tx, d.hrp)
	metadata := flattenMetadata(ev.Tx.Auxiliary)

	blockSlot := ev.BlockSlot
	blockHash := ev.BlockHash
	if blockHash == "" {
		blockHash = "unknown_block"
	}

	var deposits []bridge.DepositEvent
	for i, out := range ev.Tx.Outputs {
		addr, err := bech32.ConvertAndEncode(d.hrp, out.Address)
		if err != nil {
			// Undecodable output address: skip the output, not the stream.
			continue
		}
		if !d.watched[addr] {
			continue
		}
		deposits = append(deposits, bridge.DepositEvent{
			TxHash:           txHash,
			SenderAddress:    sender,
			RecipientAddress: addr,
			Amount:           math.NewIntFromUint64(out.Coin),
			AssetType:        d.assetType,
			BlockSlot:        blockSlot,
			BlockHash:        blockHash,
			OutputIndex:      uint32(i),
			Metadata:         metadata,
			Timestamp:        time.Now().UTC(),
		})
	}
	return deposits, nil
}

// senderAddress resolves the first input's source address; the stream does
// not always resolve inputs, in which case the sender is unknown.
func senderAddress(tx Tx, hrp string) string {
	for _, in := range tx.Inputs {
		if in.AsOutput == nil || len(in.AsOutput.Address) == 0 {
			continue
		}
		addr, err := bech32.ConvertAndEncode(hrp, in.AsOutput.Address)
		if err != nil {
			break
		}
		return addr
	}
	return "unknown_sender"
}

// flattenMetadata reduces auxiliary metadata to a label→string map. Text
// passes through, integers are stringified, bytes are UTF-8 decoded and
// composites are stringified as JSON. Non-representable entries are dropped.
func flattenMetadata(aux *Auxiliary) map[string]string {
	if aux == nil || len(aux.Metadata) == 0 {
		return nil
	}

	out := make(map[string]string, len(aux.Metadata))
	for _, entry := range aux.Metadata {
		label := strconv.FormatUint(entry.Label, 10)
		switch entry.Value.Case {
		case "text":
			if s, ok := entry.Value.Value.(string); ok {
				out[label] = s
			}
		case "int":
			switch v := entry.Value.Value.(type) {
			case float64:
				out[label] = strconv.FormatInt(int64(v), 10)
			case int64:
				out[label] = strconv.FormatInt(v, 10)
			case json.Number:
				out[label] = v.String()
			}
		case "bytes":
			raw, ok := entry.Value.Value.(string)
			if !ok {
				continue
			}
			decoded, err := hex.DecodeString(raw)
			if err != nil {
				decoded = []byte(raw)
			}
			if utf8.Valid(decoded) {
				out[label] = string(decoded)
			}
		case "map", "array":
			if encoded, err := json.Marshal(entry.Value.Value); err == nil {
				out[label] = string(encoded)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
