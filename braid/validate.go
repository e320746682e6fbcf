package braid

import (
	"braid-project/models"
	"braid-project/repository"

	"github.com/pkg/errors"
)

// validateBead checks a candidate bead against the authoritative store.
// Checks run in order: duplicate, parent shape, unknown parent, incest.
func validateBead(store repository.BeadStore, bead *models.Bead) error {
	exists, err := store.HasBead(bead.Hash)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(ErrDuplicateBead, "bead %s", bead.Hash)
	}

	if len(bead.Parents) == 0 {
		return errors.Wrapf(ErrNoParents, "bead %s", bead.Hash)
	}
	seen := make(map[models.Hash]struct{}, len(bead.Parents))
	for _, p := range bead.Parents {
		if _, ok := seen[p]; ok {
			return errors.Wrapf(ErrDuplicateParent, "bead %s lists parent %s twice", bead.Hash, p)
		}
		seen[p] = struct{}{}
	}

	for _, p := range bead.Parents {
		ok, err := store.HasBead(p)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(ErrUnknownParent, "bead %s parent %s", bead.Hash, p)
		}
	}

	return checkNoIncest(store, bead.Parents)
}

// checkNoIncest verifies the parents form an antichain: no parent is
// reachable from another parent through one or more parent edges.
func checkNoIncest(store repository.BeadStore, parents []models.Hash) error {
	if len(parents) < 2 {
		return nil
	}
	declared := make(map[models.Hash]struct{}, len(parents))
	for _, p := range parents {
		declared[p] = struct{}{}
	}

	bound, err := store.Count()
	if err != nil {
		return err
	}

	for _, q := range parents {
		found, err := searchAncestors(store, q, bound, func(h models.Hash) bool {
			_, ok := declared[h]
			return ok
		})
		if err != nil {
			return err
		}
		if found != nil {
			return errors.Wrapf(ErrIncestViolation, "parent %s is an ancestor of parent %s", *found, q)
		}
	}
	return nil
}

// searchAncestors walks the ancestor closure of start breadth first and
// returns the first ancestor matching stop. The walk visits at most bound
// beads.
func searchAncestors(store repository.BeadStore, start models.Hash, bound uint64,
	stop func(models.Hash) bool) (*models.Hash, error) {

	visited := map[models.Hash]struct{}{start: {}}
	queue := []models.Hash{start}
	for len(queue) > 0 {
		if uint64(len(visited)) > bound {
			return nil, errors.Wrapf(ErrCorruptIndex, "ancestor walk from %s exceeded %d beads", start, bound)
		}
		current := queue[0]
		queue = queue[1:]

		parents, err := store.GetParents(current)
		if err != nil {
			return nil, errors.Wrapf(err, "parents of %s", current)
		}
		for _, p := range parents {
			if _, ok := visited[p]; ok {
				continue
			}
			if stop(p) {
				found := p
				return &found, nil
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return nil, nil
}
