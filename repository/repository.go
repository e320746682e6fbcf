package repository

import (
	"encoding/json"

	"braid-project/db"
	"braid-project/models"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// BeadStore is the authoritative side of the store: bead records and the
// parent relation, plus the children relation kept alongside it.
type BeadStore interface {
	GetBead(hash models.Hash) (*models.Bead, error)
	HasBead(hash models.Hash) (bool, error)
	GetParents(hash models.Hash) ([]models.Hash, error)
	GetChildren(hash models.Hash) ([]models.Hash, error)
	ScanAllHashes(fn func(models.Hash) error) error
	Count() (uint64, error)
}

// Reader reads bead and index records through a db accessor, either a
// snapshot or an open transaction.
type Reader struct {
	r db.Reader
}

// NewReader creates a Reader over r.
func NewReader(r db.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) get(key []byte) ([]byte, error) {
	data, err := r.r.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// GetBead retrieves a bead record by its hash.
func (r *Reader) GetBead(hash models.Hash) (*models.Bead, error) {
	data, err := r.get(makeKey(beadBucket, hash[:]))
	if err != nil {
		return nil, err
	}
	var bead models.Bead
	if err := json.Unmarshal(data, &bead); err != nil {
		return nil, errors.Wrapf(err, "decode bead %s", hash)
	}
	return &bead, nil
}

// HasBead reports whether a bead record exists.
func (r *Reader) HasBead(hash models.Hash) (bool, error) {
	return r.r.Has(makeKey(beadBucket, hash[:]))
}

// GetParents returns the authoritative parent set of a bead.
func (r *Reader) GetParents(hash models.Hash) ([]models.Hash, error) {
	data, err := r.get(makeKey(parentsBucket, hash[:]))
	if err != nil {
		return nil, err
	}
	return decodeHashes(data)
}

// ScanAllHashes calls fn for every stored bead, in hash order.
func (r *Reader) ScanAllHashes(fn func(models.Hash) error) error {
	iter := r.r.NewIterator(parentsBucket)
	defer iter.Release()
	for iter.Next() {
		hash, err := hashSuffix(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(hash); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Count returns the number of stored beads.
func (r *Reader) Count() (uint64, error) {
	data, err := r.get(countKey)
	if err != nil {
		return 0, err
	}
	return decodeUint64(data)
}

// Version returns the layout version the store was created with.
func (r *Reader) Version() (uint64, error) {
	data, err := r.get(versionKey)
	if err != nil {
		return 0, err
	}
	return decodeUint64(data)
}

// GetChildren returns the recorded children of a bead, in hash order.
func (r *Reader) GetChildren(hash models.Hash) ([]models.Hash, error) {
	return r.hashesUnder(makeKey(childBucket, hash[:]))
}

// HasChildren reports whether any child is recorded for the bead.
func (r *Reader) HasChildren(hash models.Hash) (bool, error) {
	iter := r.r.NewIterator(makeKey(childBucket, hash[:]))
	defer iter.Release()
	has := iter.Next()
	return has, iter.Error()
}

// Tips returns the recorded tip set, in hash order.
func (r *Reader) Tips() ([]models.Hash, error) {
	return r.hashesUnder(tipBucket)
}

// GetSiblings returns the recorded siblings of a bead, in hash order.
func (r *Reader) GetSiblings(hash models.Hash) ([]models.Hash, error) {
	return r.hashesUnder(makeKey(siblingBucket, hash[:]))
}

// GetGeneration returns the longest-path distance of a bead from genesis.
func (r *Reader) GetGeneration(hash models.Hash) (uint64, error) {
	data, err := r.get(makeKey(genBucket, hash[:]))
	if err != nil {
		return 0, err
	}
	return decodeUint64(data)
}

// ScanGenerations calls fn for every bead whose generation is at least from,
// in ascending generation order.
func (r *Reader) ScanGenerations(from uint64, fn func(gen uint64, hash models.Hash) error) error {
	iter := r.r.NewRangeIterator(makeKey(genMemberBucket, uint64Bytes(from)), prefixLimit(genMemberBucket))
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()[len(genMemberBucket):]
		if len(key) != 8+models.HashSize {
			return errors.Errorf("malformed generation key of %d bytes", len(key))
		}
		gen, err := decodeUint64(key[:8])
		if err != nil {
			return err
		}
		hash, err := models.NewHashFromBytes(key[8:])
		if err != nil {
			return err
		}
		if err := fn(gen, hash); err != nil {
			return err
		}
	}
	return iter.Error()
}

// GetCohortHeight returns the cohort height of a bead.
func (r *Reader) GetCohortHeight(hash models.Hash) (uint64, error) {
	data, err := r.get(makeKey(cohortBucket, hash[:]))
	if err != nil {
		return 0, err
	}
	return decodeUint64(data)
}

// CohortMembers returns every bead at the given cohort height, in hash order.
func (r *Reader) CohortMembers(height uint64) ([]models.Hash, error) {
	return r.hashesUnder(makeKey(cohortMemberBucket, uint64Bytes(height)))
}

func (r *Reader) hashesUnder(prefix []byte) ([]models.Hash, error) {
	iter := r.r.NewIterator(prefix)
	defer iter.Release()
	var hashes []models.Hash
	for iter.Next() {
		hash, err := hashSuffix(iter.Key())
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, iter.Error()
}

// prefixLimit returns the smallest key greater than every key under prefix.
func prefixLimit(prefix []byte) []byte {
	limit := make([]byte, len(prefix))
	copy(limit, prefix)
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			return limit[:i+1]
		}
	}
	return nil
}
