package braid

import (
	"braid-project/models"
	"braid-project/repository"

	"github.com/pkg/errors"
)

// The graph index owns every derived record: children, tips, generations,
// cohorts and siblings. All of it is a function of the parent relation.
//
// A bead's generation is its longest-path distance from genesis. The cut
// after generation g splits the braid into S(g), the beads of generation <= g,
// and the rest. Cohort boundaries are exactly the total cuts, where every bead
// of S(g) is an ancestor of every bead outside it. Any total cut is one of
// these generation cuts, since every later bead must out-generation every
// earlier one.
//
// Every bead of generation > g has an ancestor-or-self at generation g+1, so
// the cut is total iff each bead c at g+1 descends from all of S(g). Let the
// frontier T(g) be the beads of S(g) with no child inside S(g). Every bead of
// S(g) reaches some frontier bead, and a frontier bead can only reach c
// through a direct edge, so the test reduces to T(g) being a subset of
// parents(c).

// indexNode is the in-memory view of one bead during a cohort sweep.
type indexNode struct {
	hash        models.Hash
	gen         uint64
	parents     []models.Hash
	hasChild    bool
	minChildGen uint64
}

// inFrontier reports whether n belongs to T(g).
func (n *indexNode) inFrontier(g uint64) bool {
	return n.gen <= g && (!n.hasChild || n.minChildGen > g)
}

// frontierEnd is the last generation g for which n is in T(g), given the
// highest generation present.
func (n *indexNode) frontierEnd(maxGen uint64) uint64 {
	if n.hasChild {
		return n.minChildGen - 1
	}
	return maxGen
}

// addToIndex updates the derived records for a bead whose authoritative
// records were just written in the same transaction.
func addToIndex(w *repository.Writer, bead *models.Bead) error {
	var gen uint64
	var topParent models.Hash
	for _, p := range bead.Parents {
		pg, err := w.GetGeneration(p)
		if err != nil {
			return indexReadError(err, "generation of %s", p)
		}
		if pg+1 > gen {
			gen = pg + 1
			topParent = p
		}
	}
	if err := w.PutGeneration(bead.Hash, gen); err != nil {
		return err
	}
	for _, p := range bead.Parents {
		if err := w.AddChild(p, bead.Hash); err != nil {
			return err
		}
		if err := w.DeleteTip(p); err != nil {
			return err
		}
	}
	if err := w.PutTip(bead.Hash); err != nil {
		return err
	}

	// Only cuts at generation >= gen-1 can change. The cohort holding the
	// highest parent starts right after a total cut that stays total.
	height, err := w.GetCohortHeight(topParent)
	if err != nil {
		return indexReadError(err, "cohort of %s", topParent)
	}
	start, err := cohortStartGeneration(w.Reader, height)
	if err != nil {
		return err
	}
	return recomputeCohorts(w, start, height)
}

// rebuildIndex drops every derived record and recomputes it from the parent
// relation.
func rebuildIndex(w *repository.Writer) (int, error) {
	if err := w.DropDerived(); err != nil {
		return 0, err
	}

	var hashes []models.Hash
	parents := make(map[models.Hash][]models.Hash)
	err := w.ScanAllHashes(func(h models.Hash) error {
		ps, err := w.GetParents(h)
		if err != nil {
			return err
		}
		hashes = append(hashes, h)
		parents[h] = ps
		return nil
	})
	if err != nil {
		return 0, err
	}

	children := make(map[models.Hash][]models.Hash, len(hashes))
	pending := make(map[models.Hash]int, len(hashes))
	var queue []models.Hash
	for _, h := range hashes {
		pending[h] = len(parents[h])
		if len(parents[h]) == 0 {
			queue = append(queue, h)
		}
		for _, p := range parents[h] {
			if _, ok := parents[p]; !ok {
				return 0, errors.Wrapf(ErrCorruptIndex, "bead %s has unstored parent %s", h, p)
			}
			children[p] = append(children[p], h)
		}
	}
	if len(queue) != 1 || queue[0] != models.GenesisHash {
		return 0, errors.Wrapf(ErrCorruptIndex, "expected genesis as the only root, found %d roots", len(queue))
	}

	gens := make(map[models.Hash]uint64, len(hashes))
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		for _, c := range children[h] {
			if gens[h]+1 > gens[c] {
				gens[c] = gens[h] + 1
			}
			pending[c]--
			if pending[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	for _, h := range hashes {
		if pending[h] != 0 {
			return 0, errors.Wrapf(ErrCorruptIndex, "parent relation has a cycle through %s", h)
		}
	}

	for _, h := range hashes {
		if err := w.PutGeneration(h, gens[h]); err != nil {
			return 0, err
		}
		for _, p := range parents[h] {
			if err := w.AddChild(p, h); err != nil {
				return 0, err
			}
		}
		if len(children[h]) == 0 {
			if err := w.PutTip(h); err != nil {
				return 0, err
			}
		}
	}

	return len(hashes), recomputeCohorts(w, 0, 0)
}

// cohortStartGeneration returns the lowest generation found in a cohort.
func cohortStartGeneration(r *repository.Reader, height uint64) (uint64, error) {
	members, err := r.CohortMembers(height)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, errors.Wrapf(ErrCorruptIndex, "cohort %d has no members", height)
	}
	var start uint64
	for i, m := range members {
		g, err := r.GetGeneration(m)
		if err != nil {
			return 0, indexReadError(err, "generation of %s", m)
		}
		if i == 0 || g < start {
			start = g
		}
	}
	return start, nil
}

// recomputeCohorts reassigns cohorts and siblings for every bead of
// generation >= startGen. The cut at startGen-1 must be total, and
// baseHeight is the height of the first cohort after it.
func recomputeCohorts(w *repository.Writer, startGen, baseHeight uint64) error {
	nodes := make(map[models.Hash]*indexNode)
	var levels [][]*indexNode
	err := w.ScanGenerations(startGen, func(gen uint64, h models.Hash) error {
		idx := gen - startGen
		if idx > uint64(len(levels)) {
			return errors.Wrapf(ErrCorruptIndex, "no bead at generation %d", startGen+uint64(len(levels)))
		}
		if idx == uint64(len(levels)) {
			levels = append(levels, nil)
		}
		n := &indexNode{hash: h, gen: gen}
		nodes[h] = n
		levels[idx] = append(levels[idx], n)
		return nil
	})
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		return errors.Wrapf(ErrCorruptIndex, "no bead at generation %d", startGen)
	}

	for _, n := range nodes {
		n.parents, err = w.GetParents(n.hash)
		if err != nil {
			return errors.Wrapf(err, "parents of %s", n.hash)
		}
		children, err := w.GetChildren(n.hash)
		if err != nil {
			return err
		}
		for _, c := range children {
			cn, ok := nodes[c]
			if !ok {
				return errors.Wrapf(ErrCorruptIndex, "child %s of %s has no generation", c, n.hash)
			}
			if !n.hasChild || cn.gen < n.minChildGen {
				n.minChildGen = cn.gen
			}
			n.hasChild = true
		}
	}

	maxGen := startGen + uint64(len(levels)) - 1

	// frontier[i] counts |T(startGen+i)|. Beads below startGen never sit in
	// these frontiers because the cut below startGen is total.
	frontier := make([]int, len(levels)+1)
	for _, n := range nodes {
		frontier[n.gen-startGen]++
		frontier[n.frontierEnd(maxGen)-startGen+1]--
	}
	for i := 1; i < len(frontier); i++ {
		frontier[i] += frontier[i-1]
	}

	heights := make(map[models.Hash]uint64, len(nodes))
	cohorts := [][]*indexNode{nil}
	height := baseHeight
	for i, level := range levels {
		for _, n := range level {
			heights[n.hash] = height
		}
		last := len(cohorts) - 1
		cohorts[last] = append(cohorts[last], level...)
		if i+1 < len(levels) && cutIsTotal(nodes, levels[i+1], startGen+uint64(i), frontier[i]) {
			height++
			cohorts = append(cohorts, nil)
		}
	}

	for _, cohort := range cohorts {
		for _, n := range cohort {
			if err := w.DeleteSiblings(n.hash); err != nil {
				return err
			}
			if err := w.PutCohortHeight(n.hash, heights[n.hash]); err != nil {
				return err
			}
		}
	}
	for _, cohort := range cohorts {
		if err := writeSiblings(w, cohort); err != nil {
			return err
		}
	}
	return nil
}

// cutIsTotal reports whether every bead of next descends from all of T(g).
func cutIsTotal(nodes map[models.Hash]*indexNode, next []*indexNode, g uint64, frontierSize int) bool {
	for _, c := range next {
		covered := 0
		for _, p := range c.parents {
			if pn, ok := nodes[p]; ok && pn.inFrontier(g) {
				covered++
			}
		}
		if covered != frontierSize {
			return false
		}
	}
	return true
}

// writeSiblings records every unordered pair inside one cohort. Paths between
// two members never leave the cohort, so ancestry is resolved locally. The
// members must be in ascending generation order.
func writeSiblings(w *repository.Writer, cohort []*indexNode) error {
	if len(cohort) < 2 {
		return nil
	}
	pos := make(map[models.Hash]int, len(cohort))
	for i, n := range cohort {
		pos[n.hash] = i
	}
	ancestors := make([]bitset, len(cohort))
	for i, n := range cohort {
		ancestors[i] = newBitset(len(cohort))
		for _, p := range n.parents {
			j, ok := pos[p]
			if !ok {
				continue
			}
			ancestors[i].set(j)
			ancestors[i].union(ancestors[j])
		}
	}
	for i := range cohort {
		for j := i + 1; j < len(cohort); j++ {
			if ancestors[j].has(i) || ancestors[i].has(j) {
				continue
			}
			if err := w.PutSiblings(cohort[i].hash, cohort[j].hash); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexReadError turns a missing derived record into ErrCorruptIndex.
func indexReadError(err error, format string, args ...interface{}) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errors.Wrapf(ErrCorruptIndex, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) has(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) union(other bitset) {
	for i := range b {
		b[i] |= other[i]
	}
}
