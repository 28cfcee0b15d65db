package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// HashLen is the length in bytes of a Hash.
const HashLen = 32

// Hash is a 32-byte BLAKE3 digest used for content addressing and the
// event log's hash chain.
type Hash [HashLen]byte

// ComputeHash returns the BLAKE3 hash of data.
func ComputeHash(data []byte) Hash {
	sum := blake3.Sum256(data)
	return Hash(sum)
}

// EmptyHash is the zero hash, the sentinel "absent" hash. A run started
// through internal/engine chains its first event from the hash of an
// empty replay.State, not from EmptyHash.
var EmptyHash = Hash{}

// IsEmpty reports whether h is the zero hash.
func (h Hash) IsEmpty() bool { return h == EmptyHash }

// Verify reports whether h is the BLAKE3 hash of data.
func (h Hash) Verify(data []byte) bool { return ComputeHash(data) == h }

// Chain computes H(h || other). The event log's hash chain does not call
// it: an event's post_state_hash is the hash of the encoded replay.State
// (see internal/sandbox).
func (h Hash) Chain(other Hash) Hash {
	buf := make([]byte, 0, HashLen*2)
	buf = append(buf, h[:]...)
	buf = append(buf, other[:]...)
	return ComputeHash(buf)
}

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// HashFromHex parses a 64-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, NewError(CodeInvalidHash, fmt.Sprintf("invalid hex: %v", err))
	}
	if len(b) != HashLen {
		return Hash{}, NewError(CodeInvalidHash, fmt.Sprintf("invalid hash length: %d (expected %d)", len(b), HashLen))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// AddressAlgorithm names the hash algorithm backing a ContentAddress. BLAKE3
// is the only supported algorithm; the type exists so the textual form and
// wire encoding carry an explicit, extensible discriminant.
type AddressAlgorithm uint32

const (
	// AlgorithmBlake3 is the sole supported content-address algorithm.
	AlgorithmBlake3 AddressAlgorithm = 0
)

func (a AddressAlgorithm) String() string {
	switch a {
	case AlgorithmBlake3:
		return "blake3"
	default:
		return "unknown"
	}
}

// ContentAddress names immutable bytes by algorithm + hash.
type ContentAddress struct {
	Hash      Hash
	Algorithm AddressAlgorithm
}

// AddressFromData computes the content address of data.
func AddressFromData(data []byte) ContentAddress {
	return ContentAddress{Hash: ComputeHash(data), Algorithm: AlgorithmBlake3}
}

// String renders the address as "blake3:<64 hex>".
func (a ContentAddress) String() string {
	return fmt.Sprintf("%s:%s", a.Algorithm, a.Hash.Hex())
}

// ParseContentAddress parses the "algorithm:hex" textual form, failing on
// an unknown algorithm or a hash that isn't exactly 32 bytes.
func ParseContentAddress(s string) (ContentAddress, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ContentAddress{}, NewError(CodeInvalidHash, "malformed content address: "+s)
	}
	var algo AddressAlgorithm
	switch parts[0] {
	case "blake3":
		algo = AlgorithmBlake3
	default:
		return ContentAddress{}, NewError(CodeInvalidHash, "unknown content address algorithm: "+parts[0])
	}
	h, err := HashFromHex(parts[1])
	if err != nil {
		return ContentAddress{}, err
	}
	return ContentAddress{Hash: h, Algorithm: algo}, nil
}
