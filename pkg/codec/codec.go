// Package codec implements the canonical binary layout of relay requests.
//
// The layout is Borsh: integers are little-endian and fixed width, strings and byte
// sequences carry a u32 length prefix, vectors a u32 count, options a u8 presence flag
// and enums a u8 variant tag. The delegate action bytes produced here are what senders
// sign, so the layout must never change within a schema version.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/near/borsh-go"
)

// SchemaVersion prefixes every encoded SignedDelegateAction.
const SchemaVersion uint8 = 1

// Upper bound for any encoded input.
const maxLength = 1 << 20

var (
	ErrMalformed      = errors.New("codec: malformed input")
	ErrUnexpectedEOF  = errors.New("codec: unexpected end of input")
	ErrTrailingBytes  = errors.New("codec: trailing bytes")
	ErrUnknownTag     = errors.New("codec: unknown tag")
	ErrLengthTooLarge = errors.New("codec: length too large")
	ErrU128Overflow   = errors.New("codec: value exceeds u128")
	ErrSchemaVersion  = errors.New("codec: unsupported schema version")
)

func encode(v any) ([]byte, error) {
	b, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}

// decode fills dst from b and rejects input that is not exactly one value.
func decode(b []byte, dst any) (err error) {
	if len(b) == 0 {
		return ErrUnexpectedEOF
	}
	if len(b) > maxLength {
		return fmt.Errorf("%w: %d bytes", ErrLengthTooLarge, len(b))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	if err := borsh.Deserialize(dst, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrMalformed, ErrUnexpectedEOF)
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	// the layout is canonical, so a value re-encodes to exactly the bytes it was read from
	again, err := borsh.Serialize(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(again) < len(b) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(b)-len(again))
	}
	return nil
}
