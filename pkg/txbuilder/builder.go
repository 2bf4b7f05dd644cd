// Package txbuilder assembles, signs and serializes destination-chain
// transactions. The wire form is CBOR: [body, witnesses, auxiliary].
package txbuilder

import (
	"encoding/hex"
	"fmt"

	"cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"golang.org/x/crypto/blake2b"
)

// Body map keys.
const (
	bodyKeyOutputs       = 1
	bodyKeyAuxiliaryHash = 7
)

// Builder accumulates outputs and metadata for one transaction.
type Builder struct {
	outputs  []output
	metadata map[interface{}]interface{}
	err      error
}

type output struct {
	address []byte
	amount  math.Int
}

// NewBuilder returns an empty transaction builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// PayToAddress adds one payment output of amount (smallest units) to the
// bech32 address.
func (b *Builder) PayToAddress(address string, amount math.Int) *Builder {
	if b.err != nil {
		return b
	}
	_, raw, err := bech32.DecodeAndConvert(address)
	if err != nil {
		b.err = fmt.Errorf("invalid payment address %q: %w", address, err)
		return b
	}
	if amount.IsNil() || !amount.IsPositive() {
		b.err = fmt.Errorf("payment amount must be positive")
		return b
	}
	b.outputs = append(b.outputs, output{address: raw, amount: amount})
	return b
}

// AttachMetadata adds an auxiliary metadata entry under the given label.
// Values may be strings, integers, byte slices, []interface{} or
// map[interface{}]interface{}.
func (b *Builder) AttachMetadata(label uint64, value interface{}) *Builder {
	if b.err != nil {
		return b
	}
	if b.metadata == nil {
		b.metadata = make(map[interface{}]interface{})
	}
	b.metadata[label] = value
	return b
}

// Complete validates the accumulated transaction and freezes it for signing.
func (b *Builder) Complete() (*Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.outputs) == 0 {
		return nil, fmt.Errorf("transaction has no outputs")
	}

	outs := make([]interface{}, 0, len(b.outputs))
	for _, o := range b.outputs {
		outs = append(outs, []interface{}{o.address, o.amount.BigInt()})
	}
	body := map[interface{}]interface{}{
		uint64(bodyKeyOutputs): outs,
	}

	var auxBytes []byte
	if b.metadata != nil {
		encoded, err := encode(b.metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		auxBytes = encoded
		auxHash := blake2b.Sum256(encoded)
		body[uint64(bodyKeyAuxiliaryHash)] = auxHash[:]
	}

	bodyBytes, err := encode(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction body: %w", err)
	}

	return &Tx{bodyBytes: bodyBytes, auxBytes: auxBytes}, nil
}

// Tx is a completed transaction, ready to be signed and serialized.
type Tx struct {
	bodyBytes []byte
	auxBytes  []byte
	pubKey    []byte
	signature []byte
}

// Sign witnesses the transaction body with the wallet key. The message is
// the blake2b-256 digest of the encoded body.
func (t *Tx) Sign(signer *Signer) error {
	if signer == nil {
		return fmt.Errorf("nil signer")
	}
	digest := blake2b.Sum256(t.bodyBytes)
	t.signature = signer.Sign(digest[:])
	t.pubKey = signer.PublicKey()
	return nil
}

// Bytes serializes the signed transaction.
func (t *Tx) Bytes() ([]byte, error) {
	if t.signature == nil {
		return nil, fmt.Errorf("transaction is not signed")
	}

	witnesses := map[interface{}]interface{}{
		uint64(0): []interface{}{
			[]interface{}{t.pubKey, t.signature},
		},
	}
	witnessBytes, err := encode(witnesses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode witness set: %w", err)
	}

	// The body and auxiliary data are already encoded; splice them into the
	// envelope array without re-encoding so the signed bytes stay stable.
	arity := uint64(2)
	if t.auxBytes != nil {
		arity = 3
	}
	out := appendHead(nil, majorArray, arity)
	out = append(out, t.bodyBytes...)
	out = append(out, witnessBytes...)
	if t.auxBytes != nil {
		out = append(out, t.auxBytes...)
	}
	return out, nil
}

// Hash returns the lowercase hex transaction hash, computed over the signed
// serialization. It is available before submission, which is what makes
// submission retries idempotent.
func (t *Tx) Hash() (string, error) {
	raw, err := t.Bytes()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
