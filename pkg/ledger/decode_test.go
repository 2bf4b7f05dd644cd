package ledger

import (
	"encoding/hex"
	"testing"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, raw ...byte) (string, []byte) {
	t.Helper()
	encoded, err := bech32.ConvertAndEncode("addr_test", raw)
	require.NoError(t, err)
	return encoded, raw
}

func TestDepositsFromEventFiltersWatchedOutputs(t *testing.T) {
	watchedAddr, watchedRaw := addr(t, 0x01, 0x02, 0x03)
	_, otherRaw := addr(t, 0x09, 0x08, 0x07)
	senderAddr, senderRaw := addr(t, 0x05, 0x05, 0x05)

	dec := newDecoder("addr_test", "ADA", []string{watchedAddr})

	ev := TxEvent{
		Action:    ActionApply,
		BlockSlot: 777,
		BlockHash: "block_777",
		Tx: Tx{
			Hash: []byte{0xaa, 0xbb},
			Inputs: []TxInput{
				{AsOutput: &TxOutput{Address: senderRaw, Coin: 9_000_000}},
			},
			Outputs: []TxOutput{
				{Address: otherRaw, Coin: 1_000_000},   // change, not watched
				{Address: watchedRaw, Coin: 5_000_000}, // the deposit
			},
		},
	}

	deposits, err := dec.DepositsFromEvent(ev)
	require.NoError(t, err)
	require.Len(t, deposits, 1, "Only watched outputs should produce deposits")

	d := deposits[0]
	require.Equal(t, hex.EncodeToString([]byte{0xaa, 0xbb}), d.TxHash)
	require.Equal(t, watchedAddr, d.RecipientAddress)
	require.Equal(t, senderAddr, d.SenderAddress)
	require.Equal(t, uint64(5_000_000), d.Amount.Uint64())
	require.Equal(t, "ADA", d.AssetType)
	require.Equal(t, uint64(777), d.BlockSlot)
	require.Equal(t, "block_777", d.BlockHash)
	require.Equal(t, uint32(1), d.OutputIndex)
}

func TestUndoEventsYieldNothing(t *testing.T) {
	watchedAddr, watchedRaw := addr(t, 0x01)
	dec := newDecoder("addr_test", "ADA", []string{watchedAddr})

	deposits, err := dec.DepositsFromEvent(TxEvent{
		Action: ActionUndo,
		Tx: Tx{
			Hash:    []byte{0x01},
			Outputs: []TxOutput{{Address: watchedRaw, Coin: 5_000_000}},
		},
	})
	require.NoError(t, err)
	require.Empty(t, deposits, "Undo actions must not produce deposits")
}

func TestEventWithoutHashIsRejected(t *testing.T) {
	dec := newDecoder("addr_test", "ADA", nil)
	_, err := dec.DepositsFromEvent(TxEvent{Action: ActionApply})
	require.Error(t, err)
}

func TestUnresolvedSenderFallsBack(t *testing.T) {
	watchedAddr, watchedRaw := addr(t, 0x01)
	dec := newDecoder("addr_test", "ADA", []string{watchedAddr})

	deposits, err := dec.DepositsFromEvent(TxEvent{
		Action: ActionApply,
		Tx: Tx{
			Hash:    []byte{0x02},
			Inputs:  []TxInput{{AsOutput: nil}}, // node did not resolve the input
			Outputs: []TxOutput{{Address: watchedRaw, Coin: 3_000_000}},
		},
	})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.Equal(t, "unknown_sender", deposits[0].SenderAddress)
	require.Equal(t, "unknown_block", deposits[0].BlockHash)
}

func TestFlattenMetadata(t *testing.T) {
	aux := &Auxiliary{Metadata: []MetadataEntry{
		{Label: 674, Value: MetadataValue{Case: "text", Value: "hello"}},
		{Label: 675, Value: MetadataValue{Case: "int", Value: float64(42)}},
		{Label: 676, Value: MetadataValue{Case: "bytes", Value: hex.EncodeToString([]byte("world"))}},
		{Label: 677, Value: MetadataValue{Case: "bytes", Value: hex.EncodeToString([]byte{0xff, 0xfe})}}, // not UTF-8
		{Label: 678, Value: MetadataValue{Case: "array", Value: []interface{}{"a", "b"}}},
	}}

	out := flattenMetadata(aux)
	require.Equal(t, "hello", out["674"])
	require.Equal(t, "42", out["675"])
	require.Equal(t, "world", out["676"])
	require.NotContains(t, out, "677", "Non-UTF-8 bytes should be dropped")
	require.JSONEq(t, `["a","b"]`, out["678"])

	require.Nil(t, flattenMetadata(nil))
	require.Nil(t, flattenMetadata(&Auxiliary{}))
}
