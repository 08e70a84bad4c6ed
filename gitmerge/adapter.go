// Package gitmerge binds merge3's small collaborator interfaces
// (lca.ParentOracle, treemerge.ObjectStore, merge3.TreeLookup) to a real
// gopkg.in/src-d/go-git.v4 repository, so merge3.MergeDriver can run
// against an actual on-disk or in-memory git object store instead of the
// fakes used in package-level tests.
//
// ParentsOf resolves parent hashes via object.GetCommit, TreeChanges walks
// two trees with object.NewTreeRootNode + merkletrie.DiffTree, and
// Diff3FileMerger round-trips the merged content through a billy.Filesystem
// temp file before handing it back.
package gitmerge

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"

	"github.com/pkg/errors"
	"gopkg.in/src-d/go-billy.v4"
	"gopkg.in/src-d/go-billy.v4/osfs"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/storer"
	"gopkg.in/src-d/go-git.v4/utils/merkletrie"
	"gopkg.in/src-d/go-git.v4/utils/merkletrie/noder"

	"github.com/vcsmerge/merge3/diff3"
	"github.com/vcsmerge/merge3/lca"
	"github.com/vcsmerge/merge3/rename"
	"github.com/vcsmerge/merge3/treemerge"
)

// toHash truncates/pads a 32-byte opaque id down to go-git's 20-byte
// plumbing.Hash. Real commit/tree/blob ids produced by this package are
// already SHA-1 and fit exactly; the wider opaque types only exist so the
// core algorithms aren't tied to one digest size.
func toHash(id [32]byte) plumbing.Hash {
	var h plumbing.Hash
	copy(h[:], id[:20])
	return h
}

func fromHash(h plumbing.Hash) [32]byte {
	var id [32]byte
	copy(id[:], h[:])
	return id
}

// Store adapts a storer.EncodedObjectStorer to treemerge.ObjectStore and
// merge3.TreeLookup, and its commit-parent lookups to lca.ParentOracle.
type Store struct {
	Storer storer.EncodedObjectStorer
}

// NewStore constructs a Store over an already-open go-git object storer
// (e.g. a *filesystem.Storage or memory.Storage).
func NewStore(s storer.EncodedObjectStorer) *Store {
	return &Store{Storer: s}
}

// Blob implements treemerge.ObjectStore.
func (s *Store) Blob(id treemerge.BlobID) ([]byte, error) {
	blob, err := object.GetBlob(s.Storer, toHash(id))
	if err != nil {
		return nil, errors.Wrapf(err, "gitmerge: loading blob %s", id)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, errors.Wrap(err, "gitmerge: opening blob reader")
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gitmerge: reading blob content")
	}
	return data, nil
}

// AddBlob implements treemerge.ObjectStore by writing a new blob object,
// whose hash (computed by the storer the same way git itself does) becomes
// the returned BlobID.
func (s *Store) AddBlob(data []byte) (treemerge.BlobID, error) {
	obj := s.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	w, err := obj.Writer()
	if err != nil {
		return treemerge.BlobID{}, errors.Wrap(err, "gitmerge: opening blob writer")
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return treemerge.BlobID{}, errors.Wrap(err, "gitmerge: writing blob content")
	}
	if err := w.Close(); err != nil {
		return treemerge.BlobID{}, errors.Wrap(err, "gitmerge: closing blob writer")
	}

	hash, err := s.Storer.SetEncodedObject(obj)
	if err != nil {
		return treemerge.BlobID{}, errors.Wrap(err, "gitmerge: storing blob")
	}
	return fromHash(hash), nil
}

// treeNoder resolves a TreeID to a merkletrie root noder, treating the zero
// TreeID (merge3.EmptyTreeID) as an empty tree rather than an object
// lookup, matching worktree_merge.go's own nil-tree handling for a missing
// parent.
func (s *Store) treeNoder(id treemerge.TreeID) (noder.Noder, error) {
	if id == (treemerge.TreeID{}) {
		return nil, nil
	}
	tree, err := object.GetTree(s.Storer, toHash([32]byte(id)))
	if err != nil {
		return nil, errors.Wrapf(err, "gitmerge: loading tree %s", id)
	}
	return object.NewTreeRootNode(tree), nil
}

func hashEquals(a, b noder.Hasher) bool {
	return bytes.Equal(a.Hash(), b.Hash())
}

// TreeChanges implements treemerge.ObjectStore via merkletrie.DiffTree.
// When detector is a *rename.Detector (treemerge itself only ever sees it
// as an opaque collaborator; gitmerge is the one package that knows how to
// use it), matching Add/Delete pairs are folded into single Rename changes.
func (s *Store) TreeChanges(old, new treemerge.TreeID, detector treemerge.RenameDetector) ([]treemerge.TreeChange, error) {
	from, err := s.treeNoder(old)
	if err != nil {
		return nil, err
	}
	to, err := s.treeNoder(new)
	if err != nil {
		return nil, err
	}

	raw, err := merkletrie.DiffTree(from, to, hashEquals)
	if err != nil {
		return nil, errors.Wrap(err, "gitmerge: diffing trees")
	}

	out := make([]treemerge.TreeChange, 0, len(raw))
	for _, ch := range raw {
		tc, err := changeToTreeChange(ch)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}

	if d, ok := detector.(*rename.Detector); ok {
		out, err = foldRenames(out, d, s.Blob)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// foldRenames replaces matched Add/Delete pairs with a single Rename
// change, the way git's own diff machinery turns a similarity-matched
// delete+add pair into one rename record.
func foldRenames(changes []treemerge.TreeChange, d *rename.Detector, blob func(treemerge.BlobID) ([]byte, error)) ([]treemerge.TreeChange, error) {
	var adds, deletes []treemerge.TreeEntry
	var rest []treemerge.TreeChange
	for _, c := range changes {
		switch c.Kind {
		case treemerge.Add:
			adds = append(adds, *c.New)
		case treemerge.Delete:
			deletes = append(deletes, *c.Old)
		default:
			rest = append(rest, c)
		}
	}

	if len(adds) == 0 || len(deletes) == 0 {
		return changes, nil
	}

	pairs, leftoverDeletes, leftoverAdds, err := d.Match(deletes, adds, blob)
	if err != nil {
		return nil, errors.Wrap(err, "gitmerge: detecting renames")
	}

	out := rest
	for _, p := range pairs {
		oldEntry, newEntry := p.Old, p.New
		out = append(out, treemerge.TreeChange{Kind: treemerge.Rename, Old: &oldEntry, New: &newEntry})
	}
	for _, e := range leftoverDeletes {
		e := e
		out = append(out, treemerge.TreeChange{Kind: treemerge.Delete, Old: &e})
	}
	for _, e := range leftoverAdds {
		e := e
		out = append(out, treemerge.TreeChange{Kind: treemerge.Add, New: &e})
	}
	return out, nil
}

func changeToTreeChange(ch merkletrie.Change) (treemerge.TreeChange, error) {
	action, err := ch.Action()
	if err != nil {
		return treemerge.TreeChange{}, errors.Wrap(err, "gitmerge: reading change action")
	}

	switch action {
	case merkletrie.Insert:
		return treemerge.TreeChange{Kind: treemerge.Add, New: changeEntryToTreeEntry(ch.To)}, nil
	case merkletrie.Delete:
		return treemerge.TreeChange{Kind: treemerge.Delete, Old: changeEntryToTreeEntry(ch.From)}, nil
	default:
		return treemerge.TreeChange{
			Kind: treemerge.Modify,
			Old:  changeEntryToTreeEntry(ch.From),
			New:  changeEntryToTreeEntry(ch.To),
		}, nil
	}
}

func changeEntryToTreeEntry(ce merkletrie.ChangeEntry) *treemerge.TreeEntry {
	if ce.Name == "" {
		return nil
	}
	return &treemerge.TreeEntry{
		Path: ce.Name,
		Mode: filemodeToTreemerge(ce.TreeEntry.Mode),
		ID:   fromHash(ce.TreeEntry.Hash),
	}
}

func filemodeToTreemerge(m filemode.FileMode) treemerge.FileMode {
	return treemerge.FileMode(m)
}

// ParentsOf implements lca.ParentOracle over the object store's commit
// graph: missing commits resolve to no parents rather than an error, since
// a shallow clone's boundary commits are exactly this case; any other
// lookup failure is returned.
func (s *Store) ParentsOf(c lca.CommitID) ([]lca.CommitID, error) {
	commit, err := object.GetCommit(s.Storer, toHash([32]byte(c)))
	if err == plumbing.ErrObjectNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "gitmerge: loading commit %s", c)
	}
	parents := make([]lca.CommitID, 0, len(commit.ParentHashes))
	for _, h := range commit.ParentHashes {
		parents = append(parents, lca.CommitID(fromHash(h)))
	}
	return parents, nil
}

// TreeOf implements merge3.TreeLookup.
func (s *Store) TreeOf(c lca.CommitID) (treemerge.TreeID, error) {
	commit, err := object.GetCommit(s.Storer, toHash([32]byte(c)))
	if err != nil {
		return treemerge.TreeID{}, errors.Wrapf(err, "gitmerge: loading commit %s", c)
	}
	return treemerge.TreeID(fromHash(commit.TreeHash)), nil
}

// Diff3FileMerger adapts package diff3 to treemerge.FileMerger. It writes
// the merged content through a billy.Filesystem temp file
// (fs.Create("temp_<rand>"), write, close, remove) rather than handing the
// in-memory buffer straight back, so the merged bytes are round-tripped
// through the same filesystem abstraction a real worktree merge would use.
func Diff3FileMerger(fs billy.Filesystem, opts diff3.Options) treemerge.FileMerger {
	if fs == nil {
		fs = osfs.New("")
	}
	return func(thisBytes, otherBytes, baseBytes []byte) ([]byte, []diff3.ConflictRange, error) {
		merged, conflicts := diff3.Merge(baseBytes, thisBytes, otherBytes, opts)

		tmp, err := fs.Create(fmt.Sprintf("temp_%d", rand.Int()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "gitmerge: creating merge temp file")
		}
		defer fs.Remove(tmp.Name())

		if _, err := tmp.Write(merged); err != nil {
			tmp.Close()
			return nil, nil, errors.Wrap(err, "gitmerge: writing merge temp file")
		}
		if err := tmp.Close(); err != nil {
			return nil, nil, errors.Wrap(err, "gitmerge: closing merge temp file")
		}

		readBack, err := fs.Open(tmp.Name())
		if err != nil {
			return nil, nil, errors.Wrap(err, "gitmerge: reopening merge temp file")
		}
		defer readBack.Close()

		verified, err := io.ReadAll(readBack)
		if err != nil {
			return nil, nil, errors.Wrap(err, "gitmerge: reading back merge temp file")
		}

		return verified, conflicts, nil
	}
}
