package types

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

type KeyType uint8

const (
	KeyTypeED25519 KeyType = iota
	KeyTypeSECP256K1
)

const (
	ED25519PublicKeyLength   = 32
	ED25519SignatureLength   = 64
	SECP256K1PublicKeyLength = 64
	SECP256K1SignatureLength = 65
)

func (t KeyType) String() string {
	switch t {
	case KeyTypeED25519:
		return "ed25519"
	case KeyTypeSECP256K1:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

func (t KeyType) PublicKeyLength() (int, bool) {
	switch t {
	case KeyTypeED25519:
		return ED25519PublicKeyLength, true
	case KeyTypeSECP256K1:
		return SECP256K1PublicKeyLength, true
	}
	return 0, false
}

func (t KeyType) SignatureLength() (int, bool) {
	switch t {
	case KeyTypeED25519:
		return ED25519SignatureLength, true
	case KeyTypeSECP256K1:
		return SECP256K1SignatureLength, true
	}
	return 0, false
}

func parseKeyType(s string) (KeyType, error) {
	switch s {
	case "ed25519":
		return KeyTypeED25519, nil
	case "secp256k1":
		return KeyTypeSECP256K1, nil
	}
	return 0, fmt.Errorf("unknown key type %q", s)
}

type PublicKey struct {
	Type KeyType
	Data []byte
}

func (k PublicKey) Equal(other PublicKey) bool {
	return k.Type == other.Type && bytes.Equal(k.Data, other.Data)
}

func (k PublicKey) IsZero() bool {
	return len(k.Data) == 0
}

// String renders the key as "<type>:<base58>".
func (k PublicKey) String() string {
	return k.Type.String() + ":" + base58.Encode(k.Data)
}

func ParsePublicKey(s string) (PublicKey, error) {
	prefix, encoded, ok := strings.Cut(s, ":")
	if !ok {
		// bare base58 keys default to ed25519
		prefix, encoded = "ed25519", s
	}
	keyType, err := parseKeyType(prefix)
	if err != nil {
		return PublicKey{}, err
	}
	data, err := base58.Decode(encoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid base58 public key: %w", err)
	}
	length, _ := keyType.PublicKeyLength()
	if len(data) != length {
		return PublicKey{}, fmt.Errorf("invalid %s public key length %d", keyType, len(data))
	}
	return PublicKey{Type: keyType, Data: data}, nil
}

type Signature struct {
	Type KeyType
	Data []byte
}

func (s Signature) String() string {
	return s.Type.String() + ":" + base58.Encode(s.Data)
}
