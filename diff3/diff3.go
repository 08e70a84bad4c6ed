// Package diff3 implements a three-way line merge over byte sequences,
// producing a merged byte string with conflict-marker hunks and the list of
// conflict ranges.
//
// The chunk loop and resolution table follow the classic generate_chunks /
// find_next_mismatch / find_next_match structure for diff3 merging, built as
// an in-memory byte buffer rather than writing straight to a file; package
// gitmerge layers a billy.Filesystem temp-file dance back on top for callers
// that need one.
package diff3

import (
	"bytes"

	"github.com/vcsmerge/merge3/linediff"
)

// LineRange is a half-open [From, To) range of 0-based line indices.
type LineRange struct {
	From, To int
}

// ConflictRange records the base/this/other line ranges that produced one
// conflict hunk.
type ConflictRange struct {
	Base, This, Other LineRange
}

// Options configures Merge. The zero value uses default conflict labels.
type Options struct {
	ThisLabel  []byte
	OtherLabel []byte
	Differ     linediff.Differ
}

var (
	defaultThisLabel  = []byte("alice")
	defaultOtherLabel = []byte("bob")
)

func (o Options) thisLabel() []byte {
	if o.ThisLabel == nil {
		return defaultThisLabel
	}
	return o.ThisLabel
}

func (o Options) otherLabel() []byte {
	if o.OtherLabel == nil {
		return defaultOtherLabel
	}
	return o.OtherLabel
}

func (o Options) differ() linediff.Differ {
	if o.Differ == nil {
		return linediff.Myers{}
	}
	return o.Differ
}

// Merge performs a three-way textual merge. base/this/other are arbitrary
// byte sequences; the same Differ algorithm is used for both base<->this
// and base<->other so the resulting alignments are directly comparable.
func Merge(base, this, other []byte, opts Options) (merged []byte, conflicts []ConflictRange) {
	o := splitLines(base)
	a := splitLines(this)
	b := splitLines(other)
	return merge(o, a, b, opts)
}

type state struct {
	o, a, b [][]byte
	matchA  map[int]int
	matchB  map[int]int

	on, an, bn int
	out        bytes.Buffer
	conflicts  []ConflictRange

	thisLabel, otherLabel []byte
}

func merge(o, a, b [][]byte, opts Options) ([]byte, []ConflictRange) {
	d := opts.differ()
	s := &state{
		o: o, a: a, b: b,
		matchA:     d.Align(o, a),
		matchB:     d.Align(o, b),
		thisLabel:  opts.thisLabel(),
		otherLabel: opts.otherLabel(),
	}

	for {
		i := s.nextMismatch()

		switch {
		case i < 0:
			s.emitFinal()
			return s.out.Bytes(), s.conflicts

		case i == 1:
			ov, av, bv, ok := s.nextMatch()
			if !ok {
				s.emitFinal()
				return s.out.Bytes(), s.conflicts
			}
			s.emitChunk(ov, av, bv)

		default:
			s.emitChunk(s.on+i, s.an+i, s.bn+i)
		}
	}
}

// inBounds reports whether advancing all three cursors by i could still be
// within at least one of the three sequences.
func (s *state) inBounds(i int) bool {
	return s.on+i <= len(s.o) || s.an+i <= len(s.a) || s.bn+i <= len(s.b)
}

func isMatch(matches map[int]int, base, offset, i int) bool {
	v, ok := matches[base+i]
	return ok && v == offset+i
}

// nextMismatch finds the length i of the current run of simultaneous
// alignment, returning -1 once the advance runs out of bounds on all three
// sides.
func (s *state) nextMismatch() int {
	i := 1
	for s.inBounds(i) && isMatch(s.matchA, s.on, s.an, i) && isMatch(s.matchB, s.on, s.bn, i) {
		i++
	}
	if s.inBounds(i) {
		return i
	}
	return -1
}

// nextMatch scans forward in the base for the next line matched in both
// alignments.
func (s *state) nextMatch() (ov, av, bv int, ok bool) {
	for ov = s.on + 1; ov <= len(s.o); ov++ {
		av, okA := s.matchA[ov]
		bv, okB := s.matchB[ov]
		if okA && okB {
			return ov, av, bv, true
		}
	}
	return 0, 0, 0, false
}

// emitChunk writes the chunk ending just before (baseTo, aTo, bTo) and
// advances the cursors there.
func (s *state) emitChunk(baseTo, aTo, bTo int) {
	s.writeChunk(s.on, baseTo-1, s.an, aTo-1, s.bn, bTo-1)
	s.on, s.an, s.bn = baseTo-1, aTo-1, bTo-1
}

func (s *state) emitFinal() {
	s.writeChunk(s.on, len(s.o), s.an, len(s.a), s.bn, len(s.b))
}

// writeChunk applies the merge resolution table to the half-open line
// ranges [oLo,oHi), [aLo,aHi), [bLo,bHi) and appends the result.
func (s *state) writeChunk(oLo, oHi, aLo, aHi, bLo, bHi int) {
	oc := join(s.o[oLo:oHi])
	ac := join(s.a[aLo:aHi])
	bc := join(s.b[bLo:bHi])

	switch {
	case bytes.Equal(oc, ac) && bytes.Equal(oc, bc):
		s.out.Write(oc)
	case bytes.Equal(oc, ac):
		s.out.Write(bc)
	case bytes.Equal(oc, bc):
		s.out.Write(ac)
	case bytes.Equal(ac, bc):
		s.out.Write(ac)
	default:
		s.out.Write([]byte("<<<<<<< "))
		s.out.Write(s.thisLabel)
		s.out.WriteByte('\n')
		s.out.Write(ac)
		s.out.Write([]byte("======= \n"))
		s.out.Write(bc)
		s.out.Write([]byte(">>>>>>> "))
		s.out.Write(s.otherLabel)
		s.out.WriteByte('\n')

		s.conflicts = append(s.conflicts, ConflictRange{
			Base:  LineRange{oLo, oHi},
			This:  LineRange{aLo, aHi},
			Other: LineRange{bLo, bHi},
		})
	}
}

func join(ls [][]byte) []byte {
	var buf bytes.Buffer
	for _, l := range ls {
		buf.Write(l)
	}
	return buf.Bytes()
}

// splitLines splits data into lines, each including its trailing '\n' when
// present; a trailing run of bytes with no terminator forms its own final
// line.
func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var lines [][]byte
	start := 0
	for i, c := range data {
		if c == '\n' {
			lines = append(lines, data[start:i+1])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
