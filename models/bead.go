package models

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
)

// HashSize is the length in bytes of a bead identifier.
const HashSize = 32

// Hash identifies a bead.
type Hash [HashSize]byte

// GenesisHash is the all-zero identity of the genesis bead.
var GenesisHash = Hash{}

// NewHashFromBytes copies b into a Hash.
func NewHashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash size. Want: %d, got: %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// NewHashFromString parses the hex form produced by Hash.String.
func NewHashFromString(s string) (Hash, error) {
	if len(s) != HashSize*2 {
		return Hash{}, errors.Errorf("hash string length is %d, while it should be %d",
			len(s), HashSize*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, errors.WithStack(err)
	}
	return NewHashFromBytes(b)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsGenesis reports whether h is the genesis identity.
func (h Hash) IsGenesis() bool {
	return h == GenesisHash
}

// MarshalText encodes the hash as hex so beads read naturally in JSON.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := NewHashFromString(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Less orders hashes bytewise.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// SortHashes sorts hashes in place by their byte value.
func SortHashes(hashes []Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}

// Bead is a single unit of the braid. Payload fields are carried but not interpreted.
type Bead struct {
	Hash        Hash   `json:"hash"`                  // content identifier
	Parents     []Hash `json:"parents"`               // direct predecessors, empty only for genesis
	BlockHeader []byte `json:"blockheader,omitempty"` // opaque
	Coinbase    []byte `json:"coinbase,omitempty"`    // opaque
	Payout      []byte `json:"payout,omitempty"`      // opaque
	Metadata    []byte `json:"metadata,omitempty"`    // opaque
	UCMetadata  []byte `json:"ucmetadata,omitempty"`  // opaque, uncommitted metadata
	Difficulty  uint64 `json:"difficulty"`            // work measure, analysis input only
}

// NewGenesisBead returns the fixed root bead.
func NewGenesisBead() *Bead {
	return &Bead{Hash: GenesisHash, Parents: []Hash{}}
}

// Clone returns a deep copy of the bead.
func (b *Bead) Clone() *Bead {
	c := *b
	c.Parents = append([]Hash{}, b.Parents...)
	c.BlockHeader = cloneBytes(b.BlockHeader)
	c.Coinbase = cloneBytes(b.Coinbase)
	c.Payout = cloneBytes(b.Payout)
	c.Metadata = cloneBytes(b.Metadata)
	c.UCMetadata = cloneBytes(b.UCMetadata)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
