// Package signer holds the backend's single transaction-signing key. Spec
// §4.6 requires the backend to own the signer and nonce sequencing for
// every contract call; this package loads that key once at startup and
// refuses to start without it, mirroring a price-feeder's fail-fast
// operator-key loading.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bithedge/backend/internal/types"
)

// Signer holds the backend's secp256k1 key pair and signs raw transaction
// payloads before broadcast.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// New parses the hex-encoded private key from config (spec §6: read only
// from BACKEND_SIGNER_PRIVATE_KEY, never from a file). A malformed or
// empty key is a fatal ConfigError — the process should not start.
func New(privateKeyHex string) (*Signer, error) {
	trimmed := strings.TrimPrefix(privateKeyHex, "0x")
	if trimmed == "" {
		return nil, types.New(types.KindConfig, "signer: private key is empty")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, "signer: invalid private key", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return &Signer{key: key, address: addr}, nil
}

// Address returns the backend's on-chain signer address.
func (s *Signer) Address() string { return s.address }

// Sign produces a recoverable ECDSA signature over a transaction payload
// hash, used by TransactionEngine before broadcast (spec §4.6 step 4).
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign: %w", err)
	}
	return sig, nil
}
