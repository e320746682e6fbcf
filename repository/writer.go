package repository

import (
	"encoding/json"

	"braid-project/db"
	"braid-project/models"

	"github.com/pkg/errors"
)

// Writer mutates records inside an open transaction. It reads through the
// same transaction, so it observes its own pending writes.
type Writer struct {
	*Reader
	w db.Writer
}

// NewWriter creates a Writer over w.
func NewWriter(w db.Writer) *Writer {
	return &Writer{Reader: NewReader(w), w: w}
}

// PutBead stores the authoritative bead record.
func (w *Writer) PutBead(bead *models.Bead) error {
	data, err := json.Marshal(bead)
	if err != nil {
		return errors.Wrapf(err, "encode bead %s", bead.Hash)
	}
	return w.w.Put(makeKey(beadBucket, bead.Hash[:]), data)
}

// PutParentEdges stores the authoritative parent set of a bead.
func (w *Writer) PutParentEdges(hash models.Hash, parents []models.Hash) error {
	return w.w.Put(makeKey(parentsBucket, hash[:]), encodeHashes(parents))
}

// SetCount records the number of stored beads.
func (w *Writer) SetCount(count uint64) error {
	return w.w.Put(countKey, uint64Bytes(count))
}

// SetVersion records the store layout version.
func (w *Writer) SetVersion(version uint64) error {
	return w.w.Put(versionKey, uint64Bytes(version))
}

// AddChild records child as a child of parent.
func (w *Writer) AddChild(parent, child models.Hash) error {
	return w.w.Put(makeKey(childBucket, parent[:], child[:]), nil)
}

// PutTip marks a bead as a tip.
func (w *Writer) PutTip(hash models.Hash) error {
	return w.w.Put(makeKey(tipBucket, hash[:]), nil)
}

// DeleteTip clears the tip mark of a bead.
func (w *Writer) DeleteTip(hash models.Hash) error {
	return w.w.Delete(makeKey(tipBucket, hash[:]))
}

// PutGeneration records the generation of a bead and its generation index entry.
func (w *Writer) PutGeneration(hash models.Hash, gen uint64) error {
	if err := w.w.Put(makeKey(genBucket, hash[:]), uint64Bytes(gen)); err != nil {
		return err
	}
	return w.w.Put(makeKey(genMemberBucket, uint64Bytes(gen), hash[:]), nil)
}

// PutCohortHeight assigns a bead to a cohort, replacing any earlier assignment.
func (w *Writer) PutCohortHeight(hash models.Hash, height uint64) error {
	if err := w.DeleteCohortHeight(hash); err != nil {
		return err
	}
	if err := w.w.Put(makeKey(cohortBucket, hash[:]), uint64Bytes(height)); err != nil {
		return err
	}
	return w.w.Put(makeKey(cohortMemberBucket, uint64Bytes(height), hash[:]), nil)
}

// DeleteCohortHeight removes a bead's cohort assignment, if any.
func (w *Writer) DeleteCohortHeight(hash models.Hash) error {
	old, err := w.GetCohortHeight(hash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := w.w.Delete(makeKey(cohortMemberBucket, uint64Bytes(old), hash[:])); err != nil {
		return err
	}
	return w.w.Delete(makeKey(cohortBucket, hash[:]))
}

// PutSiblings records a and b as siblings of each other.
func (w *Writer) PutSiblings(a, b models.Hash) error {
	if err := w.w.Put(makeKey(siblingBucket, a[:], b[:]), nil); err != nil {
		return err
	}
	return w.w.Put(makeKey(siblingBucket, b[:], a[:]), nil)
}

// DeleteSiblings removes the sibling records keyed by hash. The mirrored
// records held by the siblings themselves are left to their own call.
func (w *Writer) DeleteSiblings(hash models.Hash) error {
	return w.deletePrefix(makeKey(siblingBucket, hash[:]))
}

// DropDerived deletes every derived record, leaving only authoritative data.
func (w *Writer) DropDerived() error {
	for _, bucket := range derivedBuckets {
		if err := w.deletePrefix(bucket); err != nil {
			return errors.Wrapf(err, "drop %s", bucket)
		}
	}
	return nil
}

func (w *Writer) deletePrefix(prefix []byte) error {
	iter := w.w.NewIterator(prefix)
	var keys [][]byte
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keys = append(keys, key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}
	for _, key := range keys {
		if err := w.w.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
