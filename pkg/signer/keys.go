package signer

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyPair signs delegate actions off-system. The relayer itself only verifies; key
// pairs are used by clients, the CLI and tests.
type KeyPair interface {
	PublicKey() types.PublicKey
	Sign(hash []byte) (types.Signature, error)
}

type ed25519KeyPair struct {
	private ed25519.PrivateKey
}

func GenerateED25519() (KeyPair, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ed25519KeyPair{private: private}, nil
}

func ED25519FromSeed(seed []byte) (KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes", ed25519.SeedSize)
	}
	return &ed25519KeyPair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *ed25519KeyPair) PublicKey() types.PublicKey {
	pub := k.private.Public().(ed25519.PublicKey)
	return types.PublicKey{Type: types.KeyTypeED25519, Data: append([]byte(nil), pub...)}
}

func (k *ed25519KeyPair) Sign(hash []byte) (types.Signature, error) {
	return types.Signature{Type: types.KeyTypeED25519, Data: ed25519.Sign(k.private, hash)}, nil
}

type secp256k1KeyPair struct {
	private *ecdsa.PrivateKey
}

func GenerateSECP256K1() (KeyPair, error) {
	private, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &secp256k1KeyPair{private: private}, nil
}

func SECP256K1FromHex(hexKey string) (KeyPair, error) {
	private, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secp256k1 key: %w", err)
	}
	return &secp256k1KeyPair{private: private}, nil
}

func (k *secp256k1KeyPair) PublicKey() types.PublicKey {
	// drop the 0x04 uncompressed prefix
	pub := crypto.FromECDSAPub(&k.private.PublicKey)
	return types.PublicKey{Type: types.KeyTypeSECP256K1, Data: pub[1:]}
}

func (k *secp256k1KeyPair) Sign(hash []byte) (types.Signature, error) {
	sig, err := crypto.Sign(hash, k.private)
	if err != nil {
		return types.Signature{}, err
	}
	return types.Signature{Type: types.KeyTypeSECP256K1, Data: sig}, nil
}

// SignDelegateAction produces a SignedDelegateAction for d with the given key pair.
func SignDelegateAction(kp KeyPair, d types.DelegateAction, fee types.Operation, sessionNonce uint64) (*types.SignedDelegateAction, error) {
	hash, err := SigningHash(&d)
	if err != nil {
		return nil, err
	}
	sig, err := kp.Sign(hash)
	if err != nil {
		return nil, err
	}
	return &types.SignedDelegateAction{
		DelegateAction: d,
		Signature:      sig,
		PublicKey:      kp.PublicKey(),
		FeeAction:      fee,
		SessionNonce:   sessionNonce,
	}, nil
}
