package merge3

import (
	"bytes"
	"testing"

	"github.com/vcsmerge/merge3/diff3"
	"github.com/vcsmerge/merge3/treemerge"
)

// fakeBackend is a minimal in-memory ObjectStore + ParentOracle + TreeLookup,
// enough to drive MergeDriver end to end without any real VCS backend.
type fakeBackend struct {
	blobs       map[BlobID][]byte
	treeChanges map[[2]TreeID][]treemerge.TreeChange
	parents     map[CommitID][]CommitID
	trees       map[CommitID]TreeID
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		blobs:       map[BlobID][]byte{},
		treeChanges: map[[2]TreeID][]treemerge.TreeChange{},
		parents:     map[CommitID][]CommitID{},
		trees:       map[CommitID]TreeID{},
	}
}

func (b *fakeBackend) Blob(id BlobID) ([]byte, error) { return b.blobs[id], nil }

func (b *fakeBackend) AddBlob(data []byte) (BlobID, error) {
	id := treemerge.NewBlobID(data)
	b.blobs[id] = append([]byte(nil), data...)
	return id, nil
}

func (b *fakeBackend) TreeChanges(old, new TreeID, _ RenameDetector) ([]treemerge.TreeChange, error) {
	return b.treeChanges[[2]TreeID{old, new}], nil
}

func (b *fakeBackend) ParentsOf(c CommitID) ([]CommitID, error) { return b.parents[c], nil }

func (b *fakeBackend) TreeOf(c CommitID) (TreeID, error) { return b.trees[c], nil }

func cid(b byte) CommitID { var c CommitID; c[0] = b; return c }
func treeID(b byte) TreeID { var t TreeID; t[0] = b; return t }

func entry(path string, id BlobID) *treemerge.TreeEntry {
	return &treemerge.TreeEntry{Path: path, Mode: ModeRegular, ID: id}
}

// A linear history (base -> this, base -> other) with a non-overlapping
// edit on each side merges cleanly end to end through MergeDriver.
func TestMergeDriver_CleanMergeEndToEnd(t *testing.T) {
	backend := newFakeBackend()

	baseCommit, thisCommit, otherCommit := cid(1), cid(2), cid(3)
	baseTreeID, thisTreeID, otherTreeID := treeID(1), treeID(2), treeID(3)

	backend.trees[baseCommit] = baseTreeID
	backend.trees[thisCommit] = thisTreeID
	backend.trees[otherCommit] = otherTreeID

	backend.parents[thisCommit] = []CommitID{baseCommit}
	backend.parents[otherCommit] = []CommitID{baseCommit}
	backend.parents[baseCommit] = nil

	baseID, _ := backend.AddBlob([]byte("a\nb\nc\nd\n"))
	thisID, _ := backend.AddBlob([]byte("A\nb\nc\nd\n"))
	otherID, _ := backend.AddBlob([]byte("a\nb\nc\nD\n"))

	baseEntry := entry("f.txt", baseID)
	backend.treeChanges[[2]TreeID{baseTreeID, thisTreeID}] = []treemerge.TreeChange{
		{Kind: treemerge.Modify, Old: baseEntry, New: entry("f.txt", thisID)},
	}
	backend.treeChanges[[2]TreeID{baseTreeID, otherTreeID}] = []treemerge.TreeChange{
		{Kind: treemerge.Modify, Old: baseEntry, New: entry("f.txt", otherID)},
	}

	driver := NewMergeDriver(backend, backend, backend, Options{
		FileMerger: treemerge.Diff3FileMerger(diff3.Options{}),
	})

	result, err := driver.Merge(thisCommit, otherCommit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Fatalf("expected a clean merge, got conflicts: %v", result.Conflicts)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected exactly one merged entry, got %v", result.Entries)
	}
	merged, _ := backend.Blob(result.Entries[0].ID)
	if !bytes.Equal(merged, []byte("A\nb\nc\nD\n")) {
		t.Fatalf("got %q", merged)
	}
}

// When the two commits share no common ancestor and NoLCAPolicy is left at
// its default, the merge base falls back to the empty tree and everything
// present on either side is treated as newly added.
func TestMergeDriver_NoCommonAncestorDefaultsToEmptyTree(t *testing.T) {
	backend := newFakeBackend()

	thisCommit, otherCommit := cid(2), cid(3)
	thisTreeID, otherTreeID := treeID(2), treeID(3)
	backend.trees[thisCommit] = thisTreeID
	backend.trees[otherCommit] = otherTreeID
	backend.parents[thisCommit] = nil
	backend.parents[otherCommit] = nil

	id, _ := backend.AddBlob([]byte("new\n"))
	backend.treeChanges[[2]TreeID{EmptyTreeID, thisTreeID}] = nil
	backend.treeChanges[[2]TreeID{EmptyTreeID, otherTreeID}] = []treemerge.TreeChange{
		{Kind: treemerge.Add, New: entry("new.txt", id)},
	}

	driver := NewMergeDriver(backend, backend, backend, Options{})
	result, err := driver.Merge(thisCommit, otherCommit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Path != "new.txt" {
		t.Fatalf("expected new.txt to be carried through from an empty base, got %v", result.Entries)
	}
}

// NoLCAError makes the same situation a hard error instead.
func TestMergeDriver_NoCommonAncestorErrorPolicy(t *testing.T) {
	backend := newFakeBackend()

	thisCommit, otherCommit := cid(2), cid(3)
	backend.trees[thisCommit] = treeID(2)
	backend.trees[otherCommit] = treeID(3)

	driver := NewMergeDriver(backend, backend, backend, Options{NoLCAPolicy: NoLCAError})
	_, err := driver.Merge(thisCommit, otherCommit)
	if err != ErrNoCommonAncestor {
		t.Fatalf("expected ErrNoCommonAncestor, got %v", err)
	}
}

// A conflicting edit surfaces as a MergeConflict on the Result, not an error.
func TestMergeDriver_ConflictingEditSurfacesAsResultConflict(t *testing.T) {
	backend := newFakeBackend()

	baseCommit, thisCommit, otherCommit := cid(1), cid(2), cid(3)
	baseTreeID, thisTreeID, otherTreeID := treeID(1), treeID(2), treeID(3)
	backend.trees[baseCommit] = baseTreeID
	backend.trees[thisCommit] = thisTreeID
	backend.trees[otherCommit] = otherTreeID
	backend.parents[thisCommit] = []CommitID{baseCommit}
	backend.parents[otherCommit] = []CommitID{baseCommit}

	baseID, _ := backend.AddBlob([]byte("same\n"))
	thisID, _ := backend.AddBlob([]byte("mine\n"))
	otherID, _ := backend.AddBlob([]byte("theirs\n"))

	baseEntry := entry("f.txt", baseID)
	backend.treeChanges[[2]TreeID{baseTreeID, thisTreeID}] = []treemerge.TreeChange{
		{Kind: treemerge.Modify, Old: baseEntry, New: entry("f.txt", thisID)},
	}
	backend.treeChanges[[2]TreeID{baseTreeID, otherTreeID}] = []treemerge.TreeChange{
		{Kind: treemerge.Modify, Old: baseEntry, New: entry("f.txt", otherID)},
	}

	driver := NewMergeDriver(backend, backend, backend, Options{})
	result, err := driver.Merge(thisCommit, otherCommit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected exactly one conflict (no file merger configured), got %v", result.Conflicts)
	}
}
