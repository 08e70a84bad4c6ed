// Package treemerge implements the path-level three-way tree merge that
// walks per-path changes between (base, this) and (base, other) and
// classifies each combination into a resolved tree entry or a conflict.
//
// The dispatch table covers every add/delete/modify/rename combination
// between the two sides, the same shape as a merkletrie.Changes-driven
// add/modify/delete dispatch over two diffs against a common base.
package treemerge

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/vcsmerge/merge3/diff3"
)

// TreeID and BlobID are opaque content-addressed identifiers, sized like
// lca.CommitID for the same reason.
type TreeID [32]byte
type BlobID [32]byte

func (id TreeID) String() string { return hex.EncodeToString(id[:]) }
func (id BlobID) String() string { return hex.EncodeToString(id[:]) }

// NewTreeID and NewBlobID copy up to 32 bytes of b, zero-padding any
// remainder.
func NewTreeID(b []byte) TreeID {
	var id TreeID
	copy(id[:], b)
	return id
}

func NewBlobID(b []byte) BlobID {
	var id BlobID
	copy(id[:], b)
	return id
}

// FileMode is a small integer encoding file type and permission bits.
type FileMode uint32

const (
	ModeRegular    FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeSubmodule  FileMode = 0o160000
	ModeDirectory  FileMode = 0o040000
)

// TreeEntry is (path, mode, blob id); Delete marks a delete-marker entry
// carrying no mode or blob.
type TreeEntry struct {
	Path   string
	Mode   FileMode
	ID     BlobID
	Delete bool
}

func deleteMarker(path string) TreeEntry { return TreeEntry{Path: path, Delete: true} }

// ChangeKind enumerates the structural diff kinds TreeChange carries.
type ChangeKind int

const (
	Add ChangeKind = iota
	Copy
	Delete
	Modify
	Rename
	Unchanged
)

// TreeChange is a structural diff record between two trees at one path.
// Old is absent for Add/Copy; New is absent for Delete. Two TreeChanges are
// equal iff all fields match byte-for-byte; since TreeEntry and its pointer
// fields are comparable structs, plain == suffices once Old and New are
// non-nil and dereferenced — see equalChange.
type TreeChange struct {
	Kind ChangeKind
	Old  *TreeEntry
	New  *TreeEntry
}

func equalChange(a, b TreeChange) bool {
	if a.Kind != b.Kind {
		return false
	}
	if (a.Old == nil) != (b.Old == nil) || (a.New == nil) != (b.New == nil) {
		return false
	}
	if a.Old != nil && *a.Old != *b.Old {
		return false
	}
	if a.New != nil && *a.New != *b.New {
		return false
	}
	return true
}

// MergeConflict records one unresolved (or partially resolved) path.
type MergeConflict struct {
	ThisEntry  *TreeEntry
	OtherEntry *TreeEntry
	BaseEntry  *TreeEntry
	Message    string
}

// RenameDetector is an opaque collaborator: treemerge never inspects it,
// only threads it through to ObjectStore.TreeChanges.
type RenameDetector interface{}

// ObjectStore is the external collaborator handling blob lookup/storage and
// tree-diffing. The serialization of tree/commit/blob objects is entirely
// its concern — callers supply a concrete implementation (see package
// gitmerge for one backed by gopkg.in/src-d/go-git.v4).
type ObjectStore interface {
	Blob(id BlobID) ([]byte, error)
	AddBlob(data []byte) (BlobID, error)
	TreeChanges(old, new TreeID, detector RenameDetector) ([]TreeChange, error)
}

// FileMerger is the optional three-way textual merge callback, expected to
// be implemented by package diff3.
type FileMerger func(thisBytes, otherBytes, baseBytes []byte) ([]byte, []diff3.ConflictRange, error)

// Diff3FileMerger adapts package diff3 directly to the FileMerger contract.
func Diff3FileMerger(opts diff3.Options) FileMerger {
	return func(thisBytes, otherBytes, baseBytes []byte) ([]byte, []diff3.ConflictRange, error) {
		merged, conflicts := diff3.Merge(baseBytes, thisBytes, otherBytes, opts)
		return merged, conflicts, nil
	}
}

// Merger drives the path-level three-way merge.
type Merger struct {
	Store    ObjectStore
	Detector RenameDetector
	Merge3   FileMerger
	Log      *logrus.Entry
}

// New constructs a Merger. detector and fileMerger may be nil.
func New(store ObjectStore, detector RenameDetector, fileMerger FileMerger) *Merger {
	return &Merger{Store: store, Detector: detector, Merge3: fileMerger}
}

func (m *Merger) log() *logrus.Entry {
	if m.Log != nil {
		return m.Log
	}
	l := logrus.New()
	l.SetOutput(discard{})
	return l.WithField("component", "treemerge")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Merge walks the path-level three-way merge, returning items in the order
// TreeChanges(base, other) reports them, each either a TreeEntry, a
// delete-marker TreeEntry (Delete == true), or a MergeConflict.
func (m *Merger) Merge(thisTree, otherTree, baseTree TreeID) ([]interface{}, error) {
	changesThis, err := m.Store.TreeChanges(baseTree, thisTree, m.Detector)
	if err != nil {
		return nil, errors.Wrap(err, "treemerge: computing changes on this side")
	}
	changesOther, err := m.Store.TreeChanges(baseTree, otherTree, m.Detector)
	if err != nil {
		return nil, errors.Wrap(err, "treemerge: computing changes on other side")
	}

	byOldPath := map[string]TreeChange{}
	for _, c := range changesThis {
		if c.Old != nil {
			byOldPath[c.Old.Path] = c
		}
	}
	byNewPath := map[string]TreeChange{}
	for _, c := range changesThis {
		if c.New != nil {
			byNewPath[c.New.Path] = c
		}
	}

	var out []interface{}

	for _, otherChange := range changesOther {
		var thisChange TreeChange
		var hasThisChange bool
		if otherChange.Old != nil {
			thisChange, hasThisChange = byOldPath[otherChange.Old.Path]
		}

		if hasThisChange && equalChange(thisChange, otherChange) {
			continue
		}

		item, err := m.dispatch(otherChange, thisChange, hasThisChange, byNewPath)
		if err != nil {
			return nil, err
		}
		switch v := item.(type) {
		case nil:
		case fileConflictBundle:
			out = append(out, v.entry, MergeConflict{
				ThisEntry:  v.thisEntry,
				OtherEntry: v.otherEntry,
				BaseEntry:  v.baseEntry,
				Message:    fmt.Sprintf("%s: merged with %d unresolved hunk(s)", v.path, len(v.ranges)),
			})
		default:
			out = append(out, item)
		}
	}

	return out, nil
}

func (m *Merger) dispatch(otherChange, thisChange TreeChange, hasThisChange bool, byNewPath map[string]TreeChange) (interface{}, error) {
	switch otherChange.Kind {
	case Add, Copy:
		return m.dispatchAdd(otherChange, byNewPath)
	case Delete:
		return m.dispatchDelete(otherChange, thisChange, hasThisChange)
	case Rename:
		return m.dispatchRename(otherChange, thisChange, hasThisChange)
	case Modify:
		return m.dispatchModify(otherChange, thisChange, hasThisChange)
	default:
		return nil, errors.Errorf("treemerge: unsupported change kind on other side: %v", otherChange.Kind)
	}
}

func (m *Merger) dispatchAdd(otherChange TreeChange, byNewPath map[string]TreeChange) (interface{}, error) {
	thisEntryChange, ok := byNewPath[otherChange.New.Path]
	if !ok {
		return *otherChange.New, nil
	}
	if *thisEntryChange.New == *otherChange.New {
		return nil, nil
	}
	return MergeConflict{
		ThisEntry:  thisEntryChange.New,
		OtherEntry: otherChange.New,
		BaseEntry:  otherChange.Old,
		Message:    fmt.Sprintf("Both this and other add new file %s", otherChange.New.Path),
	}, nil
}

func (m *Merger) dispatchDelete(otherChange, thisChange TreeChange, hasThisChange bool) (interface{}, error) {
	if hasThisChange && thisChange.Kind != Delete && thisChange.Kind != Unchanged {
		return MergeConflict{
			ThisEntry:  thisChange.New,
			OtherEntry: otherChange.New,
			BaseEntry:  otherChange.Old,
			Message:    fmt.Sprintf("%s is deleted in other but modified in this", otherChange.Old.Path),
		}, nil
	}
	return deleteMarker(otherChange.Old.Path), nil
}

func (m *Merger) dispatchRename(otherChange, thisChange TreeChange, hasThisChange bool) (interface{}, error) {
	if !hasThisChange {
		return *otherChange.New, nil
	}
	switch thisChange.Kind {
	case Rename:
		if thisChange.New.Path != otherChange.New.Path {
			return MergeConflict{
				ThisEntry:  thisChange.New,
				OtherEntry: otherChange.New,
				BaseEntry:  otherChange.Old,
				Message: fmt.Sprintf("%s was renamed by both sides (%s / %s)",
					otherChange.Old.Path, otherChange.New.Path, thisChange.New.Path),
			}, nil
		}
		return m.mergeEntry(otherChange.New.Path, thisChange.New, otherChange.New, otherChange.Old)
	case Modify:
		return m.mergeEntry(otherChange.New.Path, thisChange.New, otherChange.New, otherChange.Old)
	case Delete:
		return MergeConflict{
			ThisEntry:  thisChange.New,
			OtherEntry: otherChange.New,
			BaseEntry:  otherChange.Old,
			Message: fmt.Sprintf("%s is deleted in this but renamed to %s in other",
				otherChange.Old.Path, otherChange.New.Path),
		}, nil
	default:
		return nil, errors.Errorf("treemerge: unsupported combination: other=Rename this=%v", thisChange.Kind)
	}
}

func (m *Merger) dispatchModify(otherChange, thisChange TreeChange, hasThisChange bool) (interface{}, error) {
	if !hasThisChange {
		return *otherChange.New, nil
	}
	switch thisChange.Kind {
	case Delete:
		return MergeConflict{
			ThisEntry:  thisChange.New,
			OtherEntry: otherChange.New,
			BaseEntry:  otherChange.Old,
			Message:    fmt.Sprintf("%s is deleted in this but modified in other", otherChange.Old.Path),
		}, nil
	case Modify, Rename:
		return m.mergeEntry(thisChange.New.Path, thisChange.New, otherChange.New, otherChange.Old)
	default:
		return nil, errors.Errorf("treemerge: unsupported combination: other=Modify this=%v", thisChange.Kind)
	}
}

// mergeEntry dispatches a conflicting modification to the configured
// FileMerger and computes the merged file mode.
func (m *Merger) mergeEntry(path string, thisEntry, otherEntry, baseEntry *TreeEntry) (interface{}, error) {
	if m.Merge3 == nil {
		return MergeConflict{
			ThisEntry:  thisEntry,
			OtherEntry: otherEntry,
			BaseEntry:  baseEntry,
			Message:    fmt.Sprintf("Conflict in %s but no file merger provided", path),
		}, nil
	}

	thisBytes, err := m.Store.Blob(thisEntry.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "treemerge: loading this blob for %s", path)
	}
	otherBytes, err := m.Store.Blob(otherEntry.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "treemerge: loading other blob for %s", path)
	}
	baseBytes, err := m.Store.Blob(baseEntry.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "treemerge: loading base blob for %s", path)
	}

	mergedBytes, ranges, err := m.Merge3(thisBytes, otherBytes, baseBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "treemerge: merging file contents for %s", path)
	}

	newBlobID, err := m.Store.AddBlob(mergedBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "treemerge: storing merged blob for %s", path)
	}

	mode, modeErr := mergedMode(thisEntry.Mode, otherEntry.Mode, baseEntry.Mode)
	if modeErr != nil {
		return MergeConflict{
			ThisEntry:  thisEntry,
			OtherEntry: otherEntry,
			BaseEntry:  baseEntry,
			Message:    fmt.Sprintf("%s: %v", path, modeErr),
		}, nil
	}

	m.log().WithField("path", path).WithField("conflicts", len(ranges)).Debug("merged file contents")

	entry := TreeEntry{Path: path, Mode: mode, ID: newBlobID}
	if len(ranges) == 0 {
		return entry, nil
	}

	// Surface the per-hunk conflict ranges as an additional conflict
	// record alongside the (still applied, marker-bearing) merged entry,
	// rather than silently dropping them.
	return fileConflictBundle{entry: entry, path: path, thisEntry: thisEntry, otherEntry: otherEntry, baseEntry: baseEntry, ranges: ranges}, nil
}

// fileConflictBundle is flattened by Merge into a TreeEntry update plus a
// single MergeConflict reporting the number of unresolved hunks; it is never
// returned directly to callers.
type fileConflictBundle struct {
	entry                            TreeEntry
	path                             string
	thisEntry, otherEntry, baseEntry *TreeEntry
	ranges                           []diff3.ConflictRange
}

// mergedMode resolves the three-way mode conflict case as an explicit
// error the caller reports as a MergeConflict rather than a panic.
func mergedMode(thisMode, otherMode, baseMode FileMode) (FileMode, error) {
	if thisMode == baseMode || thisMode == otherMode {
		return otherMode, nil
	}
	if baseMode != otherMode {
		return 0, errors.Errorf("mode conflict: this=%#o base=%#o other=%#o all differ", thisMode, baseMode, otherMode)
	}
	return thisMode, nil
}
