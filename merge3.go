// Package merge3 implements the core of a three-way tree-merging engine:
// ancestry-graph LCA search, a path-level three-way tree merge, and a
// diff3-style textual file merge, wired together behind small interfaces so
// the object store and commit graph can be supplied by any VCS backend.
package merge3

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vcsmerge/merge3/lca"
	"github.com/vcsmerge/merge3/treemerge"
)

// FileMode is re-exported from treemerge, whose TreeEntry carries it.
type FileMode = treemerge.FileMode

// Modes recognized by the merge core, re-exported from treemerge so callers
// never need to import the subpackage to build a TreeEntry literal.
const (
	ModeRegular    = treemerge.ModeRegular
	ModeExecutable = treemerge.ModeExecutable
	ModeSymlink    = treemerge.ModeSymlink
	ModeSubmodule  = treemerge.ModeSubmodule
	ModeDirectory  = treemerge.ModeDirectory
)

// CommitID, TreeID and BlobID are opaque content-addressed identifiers.
// Equality is byte-equality; ordering is not required.
type (
	CommitID = lca.CommitID
	TreeID   = treemerge.TreeID
	BlobID   = treemerge.BlobID
)

// TreeEntry is re-exported from treemerge so callers of MergeDriver never
// have to import the subpackage directly.
type TreeEntry = treemerge.TreeEntry

// MergeConflict is re-exported from treemerge.
type MergeConflict = treemerge.MergeConflict

// ObjectStore and ParentOracle are re-exported from their owning packages.
type (
	ObjectStore  = treemerge.ObjectStore
	ParentOracle = lca.ParentOracle
)

// FileMerger is the optional three-way textual merge callback TreeMerger
// dispatches conflicting modify/modify and rename/modify pairs to.
type FileMerger = treemerge.FileMerger

// RenameDetector is re-exported from treemerge; it is an opaque collaborator
// never implemented by this package itself.
type RenameDetector = treemerge.RenameDetector

// NoLCAPolicy controls what MergeDriver does when the two commits being
// merged share no common ancestor at all.
type NoLCAPolicy int

const (
	// NoLCAUseEmptyTree synthesizes an empty tree as the merge base, so
	// every path present in either side is treated as newly added. This is
	// the default: it never fails and degrades gracefully to an all-adds
	// merge, which is the most common real-world situation (unrelated
	// histories being merged deliberately, e.g. git's --allow-unrelated-
	// histories).
	NoLCAUseEmptyTree NoLCAPolicy = iota
	// NoLCAError refuses to merge and returns ErrNoCommonAncestor.
	NoLCAError
)

// ErrNoCommonAncestor is returned by MergeDriver.Merge when no LCA exists
// and Options.NoLCAPolicy is NoLCAError.
var ErrNoCommonAncestor = errors.New("merge3: no common ancestor between the given commits")

// EmptyTreeID is the tree id MergeDriver substitutes as the merge base when
// NoLCAPolicy is NoLCAUseEmptyTree. Adapters should treat lookups of this id
// as "the tree with no entries" rather than forwarding it to the backing
// object store.
var EmptyTreeID TreeID = treemerge.TreeID{}

// Options configures a MergeDriver. The zero value is usable: no rename
// detector, no file merger (every content conflict is reported, never
// resolved), and NoLCAUseEmptyTree.
type Options struct {
	RenameDetector RenameDetector
	FileMerger     FileMerger
	NoLCAPolicy    NoLCAPolicy

	// Logger receives structured progress/debug events. A nil Logger
	// disables logging entirely (logrus.New() with output discarded),
	// matching a library that stays silent unless a caller opts in.
	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Entry {
	l := o.Logger
	if l == nil {
		l = logrus.New()
		l.SetOutput(logrusDiscard{})
	}
	return l.WithField("component", "merge3")
}

type logrusDiscard struct{}

func (logrusDiscard) Write(p []byte) (int, error) { return len(p), nil }

// TreeLookup resolves a commit id to the id of the tree it points at. This
// is the one piece of commit-graph knowledge MergeDriver needs beyond the
// ParentOracle; adapters backed by a real object store implement it by
// reading the commit object.
type TreeLookup interface {
	TreeOf(commit CommitID) (TreeID, error)
}

// Result is the output of a MergeDriver.Merge call: the merged tree updates
// in TreeMerger's emission order, plus the accumulated conflicts.
type Result struct {
	Entries   []TreeEntry
	Conflicts []MergeConflict
}

// MergeDriver is the top-level entry point: it selects a merge base via the
// ancestry search and drives the tree merger across the three resulting
// trees.
type MergeDriver struct {
	Store   ObjectStore
	Parents ParentOracle
	Trees   TreeLookup
	Options Options
}

// NewMergeDriver constructs a MergeDriver over the given collaborators.
func NewMergeDriver(store ObjectStore, parents ParentOracle, trees TreeLookup, opts Options) *MergeDriver {
	return &MergeDriver{Store: store, Parents: parents, Trees: trees, Options: opts}
}

// Merge finds the lowest common ancestor of thisCommit and otherCommit,
// resolves the three tree ids, and drives the tree merger across them.
func (d *MergeDriver) Merge(thisCommit, otherCommit CommitID) (*Result, error) {
	log := d.Options.logger()

	lcas, err := lca.NewFinder(d.Parents).FindLCAs(thisCommit, []CommitID{otherCommit})
	if err != nil {
		return nil, errors.Wrap(err, "merge3: finding common ancestor")
	}

	var baseTree TreeID
	switch {
	case len(lcas) > 0:
		log.WithField("base_commit", lcas[0]).Debug("selected merge base")
		baseTree, err = d.Trees.TreeOf(lcas[0])
		if err != nil {
			return nil, errors.Wrapf(err, "merge3: resolving tree of base commit %v", lcas[0])
		}
	case d.Options.NoLCAPolicy == NoLCAError:
		return nil, ErrNoCommonAncestor
	default:
		log.Warn("no common ancestor found; using an empty tree as the merge base")
		baseTree = EmptyTreeID
	}

	thisTree, err := d.Trees.TreeOf(thisCommit)
	if err != nil {
		return nil, errors.Wrapf(err, "merge3: resolving tree of this commit %v", thisCommit)
	}
	otherTree, err := d.Trees.TreeOf(otherCommit)
	if err != nil {
		return nil, errors.Wrapf(err, "merge3: resolving tree of other commit %v", otherCommit)
	}

	tm := treemerge.New(d.Store, d.Options.RenameDetector, d.Options.FileMerger)
	items, err := tm.Merge(thisTree, otherTree, baseTree)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, item := range items {
		if c, ok := item.(MergeConflict); ok {
			log.WithField("path", c.Message).Debug("merge conflict")
			res.Conflicts = append(res.Conflicts, c)
			continue
		}
		res.Entries = append(res.Entries, item.(TreeEntry))
	}

	return res, nil
}
