package mysqlfs

import (
	"crypto/sha256"
	"testing"

	"github.com/vcsmerge/merge3/treemerge"
)

func TestNew_RejectsEmptyTableName(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Fatal("expected an error for an empty table name")
	}
}

// AddBlob's content addressing must be deterministic: the same bytes always
// produce the same id, independent of any database round trip.
func TestBlobIDIsContentAddressed(t *testing.T) {
	data := []byte("three-way merge\n")
	sum := sha256.Sum256(data)
	want := treemerge.NewBlobID(sum[:])

	sum2 := sha256.Sum256(append([]byte(nil), data...))
	got := treemerge.NewBlobID(sum2[:])

	if want != got {
		t.Fatalf("expected deterministic content addressing, got %v != %v", got, want)
	}
}
