package rename

import (
	"testing"

	"github.com/vcsmerge/merge3/treemerge"
)

func TestSimilarity_Identical(t *testing.T) {
	d := New(0.5)
	s := d.Similarity([]byte("package main\n\nfunc main() {}\n"), []byte("package main\n\nfunc main() {}\n"))
	if s != 1 {
		t.Fatalf("expected identical content to score 1, got %v", s)
	}
}

func TestSimilarity_Unrelated(t *testing.T) {
	d := New(0.5)
	s := d.Similarity([]byte("aaaaaaaaaaaaaaaaaaaa"), []byte("bbbbbbbbbbbbbbbbbbbb"))
	if s > 0.2 {
		t.Fatalf("expected unrelated content to score low, got %v", s)
	}
}

func TestSimilarity_Empty(t *testing.T) {
	d := New(0.5)
	if got := d.Similarity(nil, nil); got != 1 {
		t.Fatalf("expected two empty blobs to be identical, got %v", got)
	}
}

func blobMap(m map[treemerge.BlobID][]byte) BlobReader {
	return func(id treemerge.BlobID) ([]byte, error) { return m[id], nil }
}

func TestMatch_PairsMostSimilar(t *testing.T) {
	oldID := treemerge.NewBlobID([]byte("helper.go content v1, quite long indeed"))
	newID := treemerge.NewBlobID([]byte("helper.go content v2, quite long indeed"))
	unrelatedID := treemerge.NewBlobID([]byte("totally unrelated other file"))

	blobs := blobMap(map[treemerge.BlobID][]byte{
		oldID:       []byte("helper.go content v1, quite long indeed"),
		newID:       []byte("helper.go content v2, quite long indeed"),
		unrelatedID: []byte("totally unrelated other file"),
	})

	deleted := []treemerge.TreeEntry{{Path: "old/helper.go", Mode: treemerge.ModeRegular, ID: oldID}}
	added := []treemerge.TreeEntry{
		{Path: "new/helper.go", Mode: treemerge.ModeRegular, ID: newID},
		{Path: "new/other.go", Mode: treemerge.ModeRegular, ID: unrelatedID},
	}

	d := New(0.5)
	pairs, leftoverDel, leftoverAdd, err := d.Match(deleted, added, blobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Old.Path != "old/helper.go" || pairs[0].New.Path != "new/helper.go" {
		t.Fatalf("expected one rename pair old/helper.go -> new/helper.go, got %+v", pairs)
	}
	if len(leftoverDel) != 0 {
		t.Fatalf("expected no leftover deletes, got %v", leftoverDel)
	}
	if len(leftoverAdd) != 1 || leftoverAdd[0].Path != "new/other.go" {
		t.Fatalf("expected new/other.go to remain unmatched, got %v", leftoverAdd)
	}
}

func TestMatch_NoneAboveThreshold(t *testing.T) {
	oldID := treemerge.NewBlobID([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
	newID := treemerge.NewBlobID([]byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))
	blobs := blobMap(map[treemerge.BlobID][]byte{
		oldID: []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		newID: []byte("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"),
	})
	deleted := []treemerge.TreeEntry{{Path: "a.txt", Mode: treemerge.ModeRegular, ID: oldID}}
	added := []treemerge.TreeEntry{{Path: "z.txt", Mode: treemerge.ModeRegular, ID: newID}}

	d := New(0.9)
	pairs, leftoverDel, leftoverAdd, err := d.Match(deleted, added, blobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs above threshold, got %v", pairs)
	}
	if len(leftoverDel) != 1 || len(leftoverAdd) != 1 {
		t.Fatalf("expected both entries left over, got del=%v add=%v", leftoverDel, leftoverAdd)
	}
}
