package repository

import (
	"encoding/binary"

	"braid-project/models"

	"github.com/pkg/errors"
)

// Authoritative buckets.
var (
	beadBucket    = []byte("bead/")
	parentsBucket = []byte("parents/")
	metaBucket    = []byte("meta/")
)

// Derived buckets. Everything here can be dropped and rebuilt from the
// authoritative buckets.
var (
	childBucket        = []byte("child/")
	tipBucket          = []byte("tip/")
	genBucket          = []byte("gen/")
	genMemberBucket    = []byte("genmember/")
	cohortBucket       = []byte("cohort/")
	cohortMemberBucket = []byte("cohortmember/")
	siblingBucket      = []byte("sib/")
)

var derivedBuckets = [][]byte{
	childBucket,
	tipBucket,
	genBucket,
	genMemberBucket,
	cohortBucket,
	cohortMemberBucket,
	siblingBucket,
}

var (
	versionKey = makeKey(metaBucket, []byte("version"))
	countKey   = makeKey(metaBucket, []byte("count"))
)

func makeKey(bucket []byte, parts ...[]byte) []byte {
	size := len(bucket)
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, bucket...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errors.Errorf("expected 8 byte integer, got %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// hashSuffix extracts the trailing hash of a key such as child/<parent>/<child>.
func hashSuffix(key []byte) (models.Hash, error) {
	if len(key) < models.HashSize {
		return models.Hash{}, errors.Errorf("key too short for hash: %d bytes", len(key))
	}
	return models.NewHashFromBytes(key[len(key)-models.HashSize:])
}

func encodeHashes(hashes []models.Hash) []byte {
	out := make([]byte, 0, len(hashes)*models.HashSize)
	for _, h := range hashes {
		out = append(out, h[:]...)
	}
	return out
}

func decodeHashes(b []byte) ([]models.Hash, error) {
	if len(b)%models.HashSize != 0 {
		return nil, errors.Errorf("hash list length %d is not a multiple of %d", len(b), models.HashSize)
	}
	hashes := make([]models.Hash, 0, len(b)/models.HashSize)
	for i := 0; i < len(b); i += models.HashSize {
		var h models.Hash
		copy(h[:], b[i:i+models.HashSize])
		hashes = append(hashes, h)
	}
	return hashes, nil
}
