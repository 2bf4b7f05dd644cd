package txbuilder

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/cosmos/go-bip39"
)

// Signer holds the destination-side signing key. The seed is either a BIP-39
// mnemonic or 32 hex-encoded bytes.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSignerFromSeed derives the ed25519 key pair from the configured wallet
// seed.
func NewSignerFromSeed(seed string) (*Signer, error) {
	if seed == "" {
		return nil, fmt.Errorf("empty wallet seed")
	}

	var keySeed []byte
	if bip39.IsMnemonicValid(seed) {
		derived := bip39.NewSeed(seed, "")
		keySeed = derived[:ed25519.SeedSize]
	} else {
		raw, err := hex.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("wallet seed is neither a mnemonic nor hex: %w", err)
		}
		if len(raw) != ed25519.SeedSize {
			return nil, fmt.Errorf("hex wallet seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
		}
		keySeed = raw
	}

	priv := ed25519.NewKeyFromSeed(keySeed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Sign signs msg with the wallet key.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// PublicKey returns the verification key carried in the witness set.
func (s *Signer) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)
	return out
}
