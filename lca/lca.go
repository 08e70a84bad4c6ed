// Package lca implements the ancestry-graph lowest-common-ancestor search: a
// flag-propagating breadth-first walk over a parent-lookup oracle, with
// "do-not-consider" pruning of superseded candidates.
package lca

import (
	"encoding/hex"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/pkg/errors"
)

// CommitID is an opaque content-addressed commit identifier. Equality is
// byte-equality; ordering is not required. Mirrors go-git's plumbing.Hash:
// a fixed-size array sized for either a 20-byte (SHA-1) or 32-byte (SHA-256)
// digest, with unused trailing bytes left zero for the shorter case.
type CommitID [32]byte

// NewCommitID copies up to 32 bytes of b into a CommitID, zero-padding any
// remainder. Longer inputs are truncated.
func NewCommitID(b []byte) CommitID {
	var id CommitID
	copy(id[:], b)
	return id
}

func (id CommitID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value.
func (id CommitID) IsZero() bool {
	return id == CommitID{}
}

// ParentOracle resolves a commit to its parents. A commit unknown to the
// oracle MUST return an empty slice and a nil error — e.g. the boundary of
// a shallow clone — a non-nil error is reserved for a true backing-store
// failure.
type ParentOracle interface {
	ParentsOf(c CommitID) ([]CommitID, error)
}

// ParentOracleFunc adapts a plain function to ParentOracle.
type ParentOracleFunc func(CommitID) ([]CommitID, error)

// ParentsOf implements ParentOracle.
func (f ParentOracleFunc) ParentsOf(c CommitID) ([]CommitID, error) { return f(c) }

// flags is the per-commit state bitset: which side(s) it's an ancestor of,
// whether it has already been recorded as a candidate, and whether its
// descendants already settled the question (do-not-consider).
type flags uint8

const (
	ancOf1 flags = 1 << iota
	ancOf2
	lcaFlag
	dnc
)

const ancOfBoth = ancOf1 | ancOf2

// Finder runs the LCA search over a single ParentOracle. It holds no state
// between FindLCAs calls.
type Finder struct {
	parents ParentOracle
}

// NewFinder constructs a Finder over the given parent-lookup oracle.
func NewFinder(parents ParentOracle) *Finder {
	return &Finder{parents: parents}
}

// FindLCAs returns the lowest common ancestors of c1 and the commits in
// rest, in insertion order of candidate discovery, with no duplicates.
//
// Edge cases: an empty rest list means there is nothing to intersect c1
// against, so the result is [c1] (the "single commit" case); c1 appearing
// among rest short-circuits to [c1] directly, without walking the graph.
func (f *Finder) FindLCAs(c1 CommitID, rest []CommitID) ([]CommitID, error) {
	if len(rest) == 0 {
		return []CommitID{c1}, nil
	}
	for _, c2 := range rest {
		if c2 == c1 {
			return []CommitID{c1}, nil
		}
	}

	states := map[CommitID]flags{}
	worklist := linkedlistqueue.New()

	states[c1] |= ancOf1
	worklist.Enqueue(c1)
	for _, c2 := range rest {
		states[c2] |= ancOf2
		worklist.Enqueue(c2)
	}

	hasCandidates := func() bool {
		for _, v := range worklist.Values() {
			if states[v.(CommitID)]&dnc == 0 {
				return true
			}
		}
		return false
	}

	var cands []CommitID

	for hasCandidates() {
		v, ok := worklist.Dequeue()
		if !ok {
			break
		}
		c := v.(CommitID)
		cur := states[c]

		// cur is only mutated locally from here on, to decide what gets
		// propagated to c's parents; the dnc bit is deliberately never
		// written back into states[c] itself, or marking c as an LCA
		// would immediately disqualify it in the results filter below.
		if cur&ancOfBoth == ancOfBoth && cur&lcaFlag == 0 {
			states[c] = cur | lcaFlag
			cands = append(cands, c)
			cur |= dnc
		}

		parents, err := f.parents.ParentsOf(c)
		if err != nil {
			return nil, errors.Wrapf(err, "lca: looking up parents of %v", c)
		}

		for _, p := range parents {
			states[p] |= cur
			worklist.Enqueue(p)
		}
	}

	results := make([]CommitID, 0, len(cands))
	for _, c := range cands {
		if states[c]&dnc == 0 {
			results = append(results, c)
		}
	}
	return results, nil
}

// FindOctopusLCAs emulates an N-way merge base by iterated pairwise LCA
// search: start with lcas = [commits[0]], then for each additional commit
// fold its LCA against the running set into the result.
func (f *Finder) FindOctopusLCAs(commits []CommitID) ([]CommitID, error) {
	if len(commits) == 0 {
		return nil, nil
	}
	lcas := []CommitID{commits[0]}
	for _, c := range commits[1:] {
		var next []CommitID
		for _, l := range lcas {
			found, err := f.FindLCAs(c, []CommitID{l})
			if err != nil {
				return nil, err
			}
			for _, n := range found {
				if !containsID(next, n) {
					next = append(next, n)
				}
			}
		}
		lcas = next
	}
	return lcas, nil
}

func containsID(ids []CommitID, id CommitID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
