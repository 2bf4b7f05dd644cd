package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// bigintSentinel tags amounts that exceed 53-bit precision so they survive a
// JSON round-trip losslessly.
const bigintSentinel = "__BIGINT__"

// maxSafeInteger is the largest integer a 64-bit float represents exactly.
const maxSafeInteger = int64(1)<<53 - 1

type depositBlob struct {
	TxHash           string            `json:"txHash"`
	SenderAddress    string            `json:"senderAddress"`
	RecipientAddress string            `json:"recipientAddress"`
	Amount           json.RawMessage   `json:"amount"`
	AssetType        string            `json:"assetType"`
	BlockSlot        uint64            `json:"blockSlot"`
	BlockHash        string            `json:"blockHash"`
	OutputIndex      uint32            `json:"outputIndex"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        int64             `json:"timestamp"`
}

func encodeDeposit(d bridge.DepositEvent) ([]byte, error) {
	amount := d.Amount
	if amount.IsNil() {
		amount = math.ZeroInt()
	}

	var raw json.RawMessage
	if amount.IsInt64() && amount.Int64() <= maxSafeInteger && amount.Int64() >= 0 {
		raw = json.RawMessage(strconv.FormatInt(amount.Int64(), 10))
	} else {
		quoted, err := json.Marshal(bigintSentinel + amount.String())
		if err != nil {
			return nil, err
		}
		raw = quoted
	}

	return json.Marshal(depositBlob{
		TxHash:           d.TxHash,
		SenderAddress:    d.SenderAddress,
		RecipientAddress: d.RecipientAddress,
		Amount:           raw,
		AssetType:        d.AssetType,
		BlockSlot:        d.BlockSlot,
		BlockHash:        d.BlockHash,
		OutputIndex:      d.OutputIndex,
		Metadata:         d.Metadata,
		Timestamp:        d.Timestamp.UnixMilli(),
	})
}

func decodeDeposit(data []byte) (bridge.DepositEvent, error) {
	var blob depositBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return bridge.DepositEvent{}, fmt.Errorf("failed to unmarshal deposit blob: %w", err)
	}

	amount, err := decodeAmount(blob.Amount)
	if err != nil {
		return bridge.DepositEvent{}, err
	}

	return bridge.DepositEvent{
		TxHash:           blob.TxHash,
		SenderAddress:    blob.SenderAddress,
		RecipientAddress: blob.RecipientAddress,
		Amount:           amount,
		AssetType:        blob.AssetType,
		BlockSlot:        blob.BlockSlot,
		BlockHash:        blob.BlockHash,
		OutputIndex:      blob.OutputIndex,
		Metadata:         blob.Metadata,
		Timestamp:        time.UnixMilli(blob.Timestamp).UTC(),
	}, nil
}

func decodeAmount(raw json.RawMessage) (math.Int, error) {
	if len(raw) == 0 {
		return math.ZeroInt(), nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return math.Int{}, fmt.Errorf("failed to unmarshal amount string: %w", err)
		}
		s = strings.TrimPrefix(s, bigintSentinel)
		amount, ok := math.NewIntFromString(s)
		if !ok {
			return math.Int{}, fmt.Errorf("invalid amount %q", s)
		}
		return amount, nil
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return math.Int{}, fmt.Errorf("failed to unmarshal amount: %w", err)
	}
	return math.NewInt(n), nil
}
