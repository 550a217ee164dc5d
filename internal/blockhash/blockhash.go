// Package blockhash provides deterministic content addressing for note blocks.
package blockhash

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// DocumentType is the block type used when hashing a whole note.
const DocumentType = "document"

// Hash is a 256-bit content digest. The zero value means "empty".
type Hash [Size]byte

// Zero is the empty hash.
var Zero Hash

// Sum hashes a block's type and raw bytes.
//
// The type is length-prefixed so that ("ab", "c") and ("a", "bc") never collide.
func Sum(blockType string, content []byte) Hash {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(blockType)))
	h.Write(n[:])
	h.Write([]byte(blockType))
	h.Write(content)

	var out Hash
	h.Sum(out[:0])
	return out
}

// SumDocument hashes a whole note.
func SumDocument(data []byte) Hash {
	return Sum(DocumentType, data)
}

// FromHex decodes a lowercase (or uppercase) hex digest.
func FromHex(s string) (Hash, error) {
	var out Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("blockhash: decode hex: %w", err)
	}
	if len(b) != Size {
		return out, fmt.Errorf("blockhash: decoded length %d, want %d", len(b), Size)
	}
	copy(out[:], b)
	return out, nil
}

// MustFromHex is FromHex for known-good constants and tests.
func MustFromHex(s string) Hash {
	h, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Hex returns the lowercase hex encoding.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// Short returns the first 12 hex characters, for logs.
func (h Hash) Short() string {
	return h.Hex()[:12]
}

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// MarshalText implements encoding.TextMarshaler. The zero hash encodes as "".
func (h Hash) MarshalText() ([]byte, error) {
	if h.IsZero() {
		return []byte{}, nil
	}
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = Zero
		return nil
	}
	v, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Value implements driver.Valuer; hashes are stored as hex text, empty as "".
func (h Hash) Value() (driver.Value, error) {
	if h.IsZero() {
		return "", nil
	}
	return h.Hex(), nil
}

// Scan implements sql.Scanner.
func (h *Hash) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*h = Zero
		return nil
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("blockhash: cannot scan %T", src)
	}
}

// Hasher maps a block's type and content to its hash. It exists so callers
// can take the hashing function as a dependency.
type Hasher interface {
	Hash(blockType string, content []byte) Hash
}

// SHA256 is the default Hasher.
type SHA256 struct{}

// Hash implements Hasher.
func (SHA256) Hash(blockType string, content []byte) Hash {
	return Sum(blockType, content)
}
