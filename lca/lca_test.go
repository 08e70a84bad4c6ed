package lca

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// graphOracle is an in-memory ParentOracle over a map of short
// commit names, letting each test describe a small DAG as a literal.
type graphOracle map[string][]string

func id(name string) CommitID {
	return NewCommitID([]byte(name))
}

func ids(names ...string) []CommitID {
	out := make([]CommitID, len(names))
	for i, n := range names {
		out[i] = id(n)
	}
	return out
}

func (g graphOracle) ParentsOf(c CommitID) ([]CommitID, error) {
	for name, parents := range g {
		if id(name) == c {
			return ids(parents...), nil
		}
	}
	return nil, nil
}

func namesOf(t *testing.T, graph graphOracle, got []CommitID) []string {
	t.Helper()
	byID := map[CommitID]string{}
	for name := range graph {
		byID[id(name)] = name
	}
	out := make([]string, 0, len(got))
	for _, c := range got {
		n, ok := byID[c]
		if !ok {
			t.Fatalf("result commit %v has no known name in the test graph", c)
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func assertNames(t *testing.T, graph graphOracle, got []CommitID, want ...string) {
	t.Helper()
	gotNames := namesOf(t, graph, got)
	sort.Strings(want)
	if diff := cmp.Diff(want, gotNames); diff != "" {
		t.Fatalf("lca result mismatch (-want +got):\n%s", diff)
	}
}

// Two candidates tie for lowest common ancestor.

func TestFindLCAs_MultipleLCA(t *testing.T) {
	graph := graphOracle{
		"5": {"1", "2"},
		"4": {"3", "1"},
		"3": {"2"},
		"2": {"0"},
		"1": {},
		"0": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("4"), ids("5"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "1", "2")
}

func TestFindLCAs_NoCommonAncestor(t *testing.T) {
	graph := graphOracle{
		"4": {"2"},
		"3": {"1"},
		"2": {},
		"1": {"0"},
		"0": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("4"), ids("3"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no common ancestor, got %v", namesOf(t, graph, got))
	}
}

// D's search against its direct ancestor C finds C itself.

func TestFindLCAs_Ancestor(t *testing.T) {
	graph := graphOracle{
		"G": {"D", "F"},
		"F": {"E"},
		"D": {"C"},
		"C": {"B"},
		"E": {"B"},
		"B": {"A"},
		"A": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("D"), ids("C"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "C")
}

func TestFindLCAs_DirectParent(t *testing.T) {
	graph := graphOracle{
		"G": {"D", "F"},
		"F": {"E"},
		"D": {"C"},
		"C": {"B"},
		"E": {"B"},
		"B": {"A"},
		"A": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("G"), ids("D"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "D")
}

func TestFindLCAs_CrossOver(t *testing.T) {
	graph := graphOracle{
		"G": {"D", "F"},
		"F": {"E", "C"},
		"D": {"C", "E"},
		"C": {"B"},
		"E": {"B"},
		"B": {"A"},
		"A": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("D"), ids("F"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "E", "C")
}

// A three-branch octopus merge, the textbook example from the git docs on
// merging more than two branches at once.

func TestFindOctopusLCAs_ThreeCommits(t *testing.T) {
	graph := graphOracle{
		"C": {"C1"}, "C1": {"C2"}, "C2": {"C3"}, "C3": {"C4"}, "C4": {"2"},
		"B": {"B1"}, "B1": {"B2"}, "B2": {"B3"}, "B3": {"1"},
		"A": {"A1"}, "A1": {"A2"}, "A2": {"A3"}, "A3": {"1"},
		"1": {"2"},
		"2": {},
	}
	got, err := NewFinder(graph).FindOctopusLCAs(ids("A", "B", "C"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "2")
}

func TestFindLCAs_SelfIsOwnLCA(t *testing.T) {
	graph := graphOracle{"X": {"Y"}, "Y": {}}
	got, err := NewFinder(graph).FindLCAs(id("X"), ids("X"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "X")
}

func TestFindLCAs_SingleCommit(t *testing.T) {
	graph := graphOracle{"X": {}}
	got, err := NewFinder(graph).FindLCAs(id("X"), nil)
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "X")
}

func TestFindLCAs_LinearChain(t *testing.T) {
	graph := graphOracle{
		"D": {"C"},
		"C": {"B"},
		"B": {"A"},
		"A": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("D"), ids("C"))
	if err != nil {
		t.Fatal(err)
	}
	assertNames(t, graph, got, "C")
}
// Disjoint DAGs produce an empty result.

func TestFindLCAs_Disjoint(t *testing.T) {
	graph := graphOracle{
		"X": {}, "Y": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("X"), ids("Y"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for disjoint graphs, got %v", got)
	}
}

// No returned id may be a proper ancestor of another returned id: for the
// multi-LCA fixture, 1 is not reachable from 2's ancestry and vice versa.

func TestFindLCAs_ResultsAreIncomparable(t *testing.T) {
	graph := graphOracle{
		"5": {"1", "2"},
		"4": {"3", "1"},
		"3": {"2"},
		"2": {"0"},
		"1": {},
		"0": {},
	}
	got, err := NewFinder(graph).FindLCAs(id("4"), ids("5"))
	if err != nil {
		t.Fatal(err)
	}

	reachable := func(from, to CommitID) bool {
		seen := map[CommitID]bool{}
		var walk func(CommitID) bool
		walk = func(c CommitID) bool {
			if c == to {
				return true
			}
			if seen[c] {
				return false
			}
			seen[c] = true
			ps, _ := graph.ParentsOf(c)
			for _, p := range ps {
				if walk(p) {
					return true
				}
			}
			return false
		}
		return walk(from)
	}

	for i, a := range got {
		for j, b := range got {
			if i == j {
				continue
			}
			if reachable(a, b) {
				t.Fatalf("result %v is a proper ancestor of result %v", a, b)
			}
		}
	}
}
