// Package signer verifies that a delegate action was authorized by the key that claims it.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/codec"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigningHash returns the digest senders sign: sha256 over the canonical encoding of
// the unsigned delegate action.
func SigningHash(d *types.DelegateAction) ([]byte, error) {
	encoded, err := codec.EncodeDelegateAction(d)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(encoded)
	return hash[:], nil
}

// Verify checks the detached signature of a signed delegate action. Every failure is
// reported as types.ErrUnauthorized.
func Verify(sda *types.SignedDelegateAction) error {
	return VerifyDelegateAction(&sda.DelegateAction, sda.Signature, sda.PublicKey)
}

func VerifyDelegateAction(d *types.DelegateAction, sig types.Signature, pk types.PublicKey) error {
	if sig.Type != pk.Type {
		return fmt.Errorf("%w: signature scheme %s does not match key %s", types.ErrUnauthorized, sig.Type, pk.Type)
	}
	keyLength, ok := pk.Type.PublicKeyLength()
	if !ok || len(pk.Data) != keyLength {
		return fmt.Errorf("%w: malformed %s public key", types.ErrUnauthorized, pk.Type)
	}
	sigLength, _ := sig.Type.SignatureLength()
	if len(sig.Data) != sigLength {
		return fmt.Errorf("%w: %s signature must be %d bytes, got %d", types.ErrUnauthorized, sig.Type, sigLength, len(sig.Data))
	}
	hash, err := SigningHash(d)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
	}
	switch pk.Type {
	case types.KeyTypeED25519:
		if !ed25519.Verify(ed25519.PublicKey(pk.Data), hash, sig.Data) {
			return fmt.Errorf("%w: invalid ed25519 signature", types.ErrUnauthorized)
		}
	case types.KeyTypeSECP256K1:
		uncompressed := append([]byte{0x04}, pk.Data...)
		if !crypto.VerifySignature(uncompressed, hash, sig.Data[:64]) {
			return fmt.Errorf("%w: invalid secp256k1 signature", types.ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: unsupported key type %s", types.ErrUnauthorized, pk.Type)
	}
	return nil
}
