// Package rename implements a content-similarity rename detector, kept
// opaque to treemerge's Merger and threaded through to
// ObjectStore.TreeChanges so a tree-diffing implementation (package
// gitmerge's) can pair up a deleted path and an added path into a single
// Rename TreeChange when their contents are similar enough. Copies are not
// detected.
//
// Similarity is scored with github.com/sergi/go-diff's diffmatchpatch via
// DiffMain plus a Levenshtein edit distance, turned into a 0..1 ratio the
// way git's own similarity index does: 1 minus the edit distance over the
// longer of the two texts.
package rename

import (
	"sort"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vcsmerge/merge3/treemerge"
)

// Detector pairs deleted and added entries into renames by greedy
// best-match similarity.
type Detector struct {
	// Threshold is the minimum similarity ratio (0..1) required to treat a
	// delete/add pair as a rename. git's own default is 0.5 (50%).
	Threshold float64
}

// New constructs a Detector at the given similarity threshold.
func New(threshold float64) *Detector {
	return &Detector{Threshold: threshold}
}

// Similarity returns a 0..1 content-similarity ratio between a and b.
func (d *Detector) Similarity(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(a), string(b), false)
	dist := dmp.DiffLevenshtein(diffs)

	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 1
	}
	ratio := 1 - float64(dist)/float64(longer)
	if ratio < 0 {
		ratio = 0
	}
	return ratio
}

// Pair is one detected rename: Old is the deleted entry, New is the added
// entry, and Score is their similarity ratio.
type Pair struct {
	Old   treemerge.TreeEntry
	New   treemerge.TreeEntry
	Score float64
}

// BlobReader resolves a blob id to its content.
type BlobReader func(treemerge.BlobID) ([]byte, error)

// Match greedily pairs each added entry with its best-scoring deleted
// entry at or above Threshold, largest score first so the strongest matches are
// claimed first; unmatched entries are returned unchanged.
func (d *Detector) Match(deleted, added []treemerge.TreeEntry, blob BlobReader) (pairs []Pair, leftoverDeleted, leftoverAdded []treemerge.TreeEntry, err error) {
	type candidate struct {
		di, ai int
		score  float64
	}

	var candidates []candidate
	for di, del := range deleted {
		delContent, derr := blob(del.ID)
		if derr != nil {
			return nil, nil, nil, derr
		}
		for ai, add := range added {
			addContent, aerr := blob(add.ID)
			if aerr != nil {
				return nil, nil, nil, aerr
			}
			score := d.Similarity(delContent, addContent)
			if score >= d.Threshold {
				candidates = append(candidates, candidate{di: di, ai: ai, score: score})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	usedDel := make([]bool, len(deleted))
	usedAdd := make([]bool, len(added))
	for _, c := range candidates {
		if usedDel[c.di] || usedAdd[c.ai] {
			continue
		}
		usedDel[c.di] = true
		usedAdd[c.ai] = true
		pairs = append(pairs, Pair{Old: deleted[c.di], New: added[c.ai], Score: c.score})
	}

	for i, del := range deleted {
		if !usedDel[i] {
			leftoverDeleted = append(leftoverDeleted, del)
		}
	}
	for i, add := range added {
		if !usedAdd[i] {
			leftoverAdded = append(leftoverAdded, add)
		}
	}

	return pairs, leftoverDeleted, leftoverAdded, nil
}
