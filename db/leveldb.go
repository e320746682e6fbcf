package db

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = leveldb.ErrNotFound

// Reader is the read side shared by transactions and snapshots.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// NewIterator walks every key starting with prefix, in key order.
	NewIterator(prefix []byte) iterator.Iterator
	// NewRangeIterator walks keys in [start, limit). A nil limit means no upper bound.
	NewRangeIterator(start, limit []byte) iterator.Iterator
}

// Writer is a Reader that can also mutate keys.
type Writer interface {
	Reader
	Put(key, value []byte) error
	Delete(key []byte) error
}

// LevelDB wraps the actual LevelDB connection
type LevelDB struct {
	conn *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB instance at the given path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}
	return &LevelDB{conn: db}, nil
}

// OpenExistingLevelDB opens a LevelDB instance that must already exist at path.
func OpenExistingLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ErrorIfMissing: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open existing leveldb at %s", path)
	}
	return &LevelDB{conn: db}, nil
}

// NewMemLevelDB opens a LevelDB instance backed by memory only.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory leveldb")
	}
	return &LevelDB{conn: db}, nil
}

// Close safely closes the LevelDB connection
func (l *LevelDB) Close() error {
	return l.conn.Close()
}

// IsEmpty reports whether the database holds no keys at all.
func (l *LevelDB) IsEmpty() (bool, error) {
	iter := l.conn.NewIterator(nil, nil)
	defer iter.Release()
	empty := !iter.Next()
	return empty, iter.Error()
}

// OpenTransaction starts the single in-flight write transaction. Other
// transactions and plain writes block until it is committed or discarded.
func (l *LevelDB) OpenTransaction() (*Transaction, error) {
	tr, err := l.conn.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "open transaction")
	}
	return &Transaction{tr: tr}, nil
}

// Snapshot returns a frozen read view of the database. Callers must Release it.
func (l *LevelDB) Snapshot() (*Snapshot, error) {
	snap, err := l.conn.GetSnapshot()
	if err != nil {
		return nil, errors.Wrap(err, "get snapshot")
	}
	return &Snapshot{snap: snap}, nil
}

// Transaction is an atomic batch of reads and writes. Reads observe the
// transaction's own uncommitted writes.
type Transaction struct {
	tr     *leveldb.Transaction
	closed bool
}

func (t *Transaction) Get(key []byte) ([]byte, error) {
	return t.tr.Get(key, nil)
}

func (t *Transaction) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *Transaction) NewIterator(prefix []byte) iterator.Iterator {
	return t.tr.NewIterator(util.BytesPrefix(prefix), nil)
}

func (t *Transaction) NewRangeIterator(start, limit []byte) iterator.Iterator {
	return t.tr.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}

func (t *Transaction) Put(key, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *Transaction) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

// Commit makes every write of the transaction visible at once.
func (t *Transaction) Commit() error {
	t.closed = true
	return errors.Wrap(t.tr.Commit(), "commit transaction")
}

// Discard drops the transaction's writes.
func (t *Transaction) Discard() {
	t.closed = true
	t.tr.Discard()
}

// DiscardUnlessClosed discards the transaction unless it was already
// committed or discarded. Meant for defer.
func (t *Transaction) DiscardUnlessClosed() {
	if !t.closed {
		t.Discard()
	}
}

// Snapshot is a consistent point-in-time read view.
type Snapshot struct {
	snap *leveldb.Snapshot
}

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	return s.snap.Get(key, nil)
}

func (s *Snapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

func (s *Snapshot) NewIterator(prefix []byte) iterator.Iterator {
	return s.snap.NewIterator(util.BytesPrefix(prefix), nil)
}

func (s *Snapshot) NewRangeIterator(start, limit []byte) iterator.Iterator {
	return s.snap.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}

// Release frees the snapshot.
func (s *Snapshot) Release() {
	s.snap.Release()
}
