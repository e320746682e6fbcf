package braid

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"braid-project/db"
	"braid-project/logger"
	"braid-project/models"
	"braid-project/repository"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// storeVersion is the layout version written into new stores.
	storeVersion = 1

	// storeDirName is the LevelDB directory inside the data directory.
	storeDirName = "beads"

	defaultBeadCacheSize = 4096
)

// Options tunes a Braid instance.
type Options struct {
	// BeadCacheSize bounds the number of decoded beads kept in memory.
	BeadCacheSize int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{BeadCacheSize: defaultBeadCacheSize}
}

// Braid coordinates bead ingestion, invariant enforcement and queries over
// one store. Writers are serialized; readers work on store snapshots.
type Braid struct {
	db    *db.LevelDB
	mux   sync.Mutex
	cache *lru.Cache[models.Hash, *models.Bead]
}

// Open opens the braid stored under dataDir, creating the directory and a
// store holding only the genesis bead when none exists yet. A store
// directory that is present must hold a database.
func Open(dataDir string, opts Options) (*Braid, error) {
	info, err := os.Stat(dataDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, errors.Wrapf(ErrStorageInit, "%s is not a directory", dataDir)
	case os.IsNotExist(err):
		logger.Logger.Info("Setting up new data directory", zap.String("data_dir", dataDir))
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, errors.Wrapf(ErrStorageInit, "create %s: %s", dataDir, err)
		}
	case err != nil:
		return nil, errors.Wrapf(ErrStorageInit, "stat %s: %s", dataDir, err)
	default:
		logger.Logger.Info("Using existing data directory", zap.String("data_dir", dataDir))
	}

	storePath := filepath.Join(dataDir, storeDirName)
	open := db.NewLevelDB
	if _, statErr := os.Stat(storePath); statErr == nil {
		open = db.OpenExistingLevelDB
	}
	ldb, err := open(storePath)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageInit, "%s", err)
	}
	b, err := New(ldb, opts)
	if err != nil {
		ldb.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an already opened store. An empty store is seeded with genesis;
// a non-empty store must carry a known layout version.
func New(ldb *db.LevelDB, opts Options) (*Braid, error) {
	if opts.BeadCacheSize <= 0 {
		opts.BeadCacheSize = defaultBeadCacheSize
	}
	cache, err := lru.New[models.Hash, *models.Bead](opts.BeadCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create bead cache")
	}
	b := &Braid{db: ldb, cache: cache}
	if err := b.initialize(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Braid) initialize() error {
	empty, err := b.db.IsEmpty()
	if err != nil {
		return errors.Wrapf(ErrStorageInit, "%s", err)
	}
	if !empty {
		snap, err := b.db.Snapshot()
		if err != nil {
			return errors.Wrapf(ErrStorageInit, "%s", err)
		}
		defer snap.Release()
		version, err := repository.NewReader(snap).Version()
		if errors.Is(err, repository.ErrNotFound) {
			return errors.Wrap(ErrStorageInit, "store holds data but is not a braid store")
		}
		if err != nil {
			return errors.Wrapf(ErrStorageInit, "%s", err)
		}
		if version != storeVersion {
			return errors.Wrapf(ErrStorageInit, "unsupported store version %d", version)
		}
		return nil
	}

	tx, err := b.db.OpenTransaction()
	if err != nil {
		return errors.Wrapf(ErrStorageInit, "%s", err)
	}
	defer tx.DiscardUnlessClosed()
	w := repository.NewWriter(tx)

	genesis := models.NewGenesisBead()
	err = w.PutBead(genesis)
	if err == nil {
		err = w.PutParentEdges(genesis.Hash, genesis.Parents)
	}
	if err == nil {
		err = w.SetCount(1)
	}
	if err == nil {
		err = w.SetVersion(storeVersion)
	}
	if err == nil {
		_, err = rebuildIndex(w)
	}
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		return errors.Wrapf(ErrStorageInit, "seed genesis: %s", err)
	}
	logger.Logger.Info("Created new braid", zap.Stringer("genesis", genesis.Hash))
	return nil
}

// Close releases the store.
func (b *Braid) Close() error {
	return b.db.Close()
}

// Insert validates a bead and commits it together with its parent edges
// and the derived index updates, all in one transaction.
func (b *Braid) Insert(bead *models.Bead) error {
	if bead == nil {
		return errors.New("nil bead")
	}
	b.mux.Lock()
	defer b.mux.Unlock()

	tx, err := b.db.OpenTransaction()
	if err != nil {
		return err
	}
	defer tx.DiscardUnlessClosed()
	w := repository.NewWriter(tx)

	if err := validateBead(w, bead); err != nil {
		return err
	}

	stored := bead.Clone()
	if err := w.PutBead(stored); err != nil {
		return err
	}
	if err := w.PutParentEdges(stored.Hash, stored.Parents); err != nil {
		return err
	}
	count, err := w.Count()
	if err != nil {
		return err
	}
	if err := w.SetCount(count + 1); err != nil {
		return err
	}
	if err := addToIndex(w, stored); err != nil {
		return errors.Wrapf(err, "index bead %s", stored.Hash)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	b.cache.Add(stored.Hash, stored)
	logger.Logger.Debug("Inserted bead",
		zap.Stringer("hash", stored.Hash),
		zap.Int("parents", len(stored.Parents)))
	return nil
}

// Reindex discards the derived index and rebuilds it from the parent relation.
func (b *Braid) Reindex() error {
	b.mux.Lock()
	defer b.mux.Unlock()

	started := time.Now()
	tx, err := b.db.OpenTransaction()
	if err != nil {
		return err
	}
	defer tx.DiscardUnlessClosed()

	count, err := rebuildIndex(repository.NewWriter(tx))
	if err != nil {
		return errors.Wrap(err, "reindex")
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Logger.Info("Reindexed braid",
		zap.Int("beads", count),
		zap.Duration("took", time.Since(started)))
	return nil
}

// view runs fn against a consistent snapshot of the store.
func (b *Braid) view(fn func(r *repository.Reader) error) error {
	snap, err := b.db.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Release()
	return fn(repository.NewReader(snap))
}

// GetBead returns the bead stored under hash.
func (b *Braid) GetBead(hash models.Hash) (*models.Bead, error) {
	if bead, ok := b.cache.Get(hash); ok {
		return bead.Clone(), nil
	}
	var bead *models.Bead
	err := b.view(func(r *repository.Reader) error {
		var err error
		bead, err = r.GetBead(hash)
		if errors.Is(err, repository.ErrNotFound) {
			return errors.Wrapf(ErrBeadNotFound, "%s", hash)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	b.cache.Add(hash, bead)
	return bead.Clone(), nil
}

// Tips returns the beads without children, in hash order.
func (b *Braid) Tips() ([]models.Hash, error) {
	var tips []models.Hash
	err := b.view(func(r *repository.Reader) error {
		var err error
		tips, err = r.Tips()
		if err != nil {
			return err
		}
		if len(tips) == 0 {
			return errors.Wrap(ErrCorruptIndex, "tip set is empty")
		}
		for _, t := range tips {
			has, err := r.HasChildren(t)
			if err != nil {
				return err
			}
			if has {
				return errors.Wrapf(ErrCorruptIndex, "tip %s has children", t)
			}
		}
		return nil
	})
	return tips, err
}

// CohortOf returns the members of the cohort holding hash, in hash order.
func (b *Braid) CohortOf(hash models.Hash) ([]models.Hash, error) {
	_, members, err := b.Cohort(hash)
	return members, err
}

// Cohort returns the height and members of the cohort holding hash, read
// from one snapshot.
func (b *Braid) Cohort(hash models.Hash) (uint64, []models.Hash, error) {
	var height uint64
	var members []models.Hash
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		var err error
		height, err = r.GetCohortHeight(hash)
		if err != nil {
			return indexReadError(err, "cohort of %s", hash)
		}
		members, err = r.CohortMembers(height)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m == hash {
				return nil
			}
		}
		return errors.Wrapf(ErrCorruptIndex, "cohort %d does not list %s", height, hash)
	})
	if err != nil {
		return 0, nil, err
	}
	return height, members, nil
}

// CohortHeight returns the height of the cohort holding hash.
func (b *Braid) CohortHeight(hash models.Hash) (uint64, error) {
	var height uint64
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		var err error
		height, err = r.GetCohortHeight(hash)
		return indexReadError(err, "cohort of %s", hash)
	})
	return height, err
}

// Cohorts returns the cohorts with heights in [from, to], stopping early at
// the last cohort.
func (b *Braid) Cohorts(from, to uint64) ([][]models.Hash, error) {
	var cohorts [][]models.Hash
	err := b.view(func(r *repository.Reader) error {
		for height := from; height <= to; height++ {
			members, err := r.CohortMembers(height)
			if err != nil {
				return err
			}
			if len(members) == 0 {
				break
			}
			cohorts = append(cohorts, members)
			if height == ^uint64(0) {
				break
			}
		}
		return nil
	})
	return cohorts, err
}

// Generation returns the longest-path distance of hash from genesis.
func (b *Braid) Generation(hash models.Hash) (uint64, error) {
	var gen uint64
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		var err error
		gen, err = r.GetGeneration(hash)
		return indexReadError(err, "generation of %s", hash)
	})
	return gen, err
}

// Parents returns the declared parents of hash.
func (b *Braid) Parents(hash models.Hash) ([]models.Hash, error) {
	var parents []models.Hash
	err := b.view(func(r *repository.Reader) error {
		var err error
		parents, err = r.GetParents(hash)
		if errors.Is(err, repository.ErrNotFound) {
			return errors.Wrapf(ErrBeadNotFound, "%s", hash)
		}
		return err
	})
	return parents, err
}

// Children returns the beads naming hash as a parent, in hash order.
func (b *Braid) Children(hash models.Hash) ([]models.Hash, error) {
	var children []models.Hash
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		var err error
		children, err = r.GetChildren(hash)
		return err
	})
	return children, err
}

// Siblings returns the beads that are neither ancestors nor descendants of
// hash, in hash order.
func (b *Braid) Siblings(hash models.Hash) ([]models.Hash, error) {
	var siblings []models.Hash
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		var err error
		siblings, err = r.GetSiblings(hash)
		return err
	})
	return siblings, err
}

// Ancestors returns the full ancestor closure of hash, in hash order.
func (b *Braid) Ancestors(hash models.Hash) ([]models.Hash, error) {
	var ancestors []models.Hash
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, hash); err != nil {
			return err
		}
		bound, err := r.Count()
		if err != nil {
			return err
		}
		_, err = searchAncestors(r, hash, bound, func(h models.Hash) bool {
			ancestors = append(ancestors, h)
			return false
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	models.SortHashes(ancestors)
	return ancestors, nil
}

// IsAncestor reports whether ancestor is reachable from descendant through
// one or more parent edges.
func (b *Braid) IsAncestor(ancestor, descendant models.Hash) (bool, error) {
	var found bool
	err := b.view(func(r *repository.Reader) error {
		if err := requireBead(r, ancestor); err != nil {
			return err
		}
		if err := requireBead(r, descendant); err != nil {
			return err
		}
		bound, err := r.Count()
		if err != nil {
			return err
		}
		hit, err := searchAncestors(r, descendant, bound, func(h models.Hash) bool {
			return h == ancestor
		})
		found = hit != nil
		return err
	})
	return found, err
}

// Count returns the number of stored beads, genesis included.
func (b *Braid) Count() (uint64, error) {
	var count uint64
	err := b.view(func(r *repository.Reader) error {
		var err error
		count, err = r.Count()
		return err
	})
	return count, err
}

func requireBead(r *repository.Reader, hash models.Hash) error {
	ok, err := r.HasBead(hash)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrBeadNotFound, "%s", hash)
	}
	return nil
}
