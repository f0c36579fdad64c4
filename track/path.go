package track

import (
	"fmt"
	"strings"

	"nyiyui.ca/hato/shingo/binfmt"
)

// Element is one section of a partial path route.
type Element struct {
	SectionIndex int
	Direction    Direction
	// OutPin is the direction and link index used to leave the section; -1 for the last element.
	OutPin      [2]int
	FacingPoint bool
	// UsedAlternativePath is the deadlock path index this element starts, or -1.
	UsedAlternativePath  int
	StartAlternativePath int
	EndAlternativePath   int
}

func NewElement(section int, dir Direction) Element {
	return Element{
		SectionIndex:         section,
		Direction:            dir,
		OutPin:               [2]int{-1, -1},
		UsedAlternativePath:  -1,
		StartAlternativePath: -1,
		EndAlternativePath:   -1,
	}
}

// PartialPath is a contiguous ordered sequence of sections describing part of a train's route.
type PartialPath []Element

func (p PartialPath) Clone() PartialPath {
	if p == nil {
		return nil
	}
	res := make(PartialPath, len(p))
	copy(res, p)
	return res
}

// Index returns the position of section in the path, or -1.
func (p PartialPath) Index(section int) int {
	for i, e := range p {
		if e.SectionIndex == section {
			return i
		}
	}
	return -1
}

// Length sums the section lengths of the path.
func (p PartialPath) Length(y *Network) float32 {
	var sum float32
	for _, e := range p {
		if y.valid(e.SectionIndex) {
			sum += y.Sections[e.SectionIndex].Length
		}
	}
	return sum
}

// Check fails if the path refers to sections outside y or is not contiguous in y.
func (p PartialPath) Check(y *Network) error {
	for i, e := range p {
		if !y.valid(e.SectionIndex) {
			return fmt.Errorf("element %d: %w: %d", i, ErrInvalidSection, e.SectionIndex)
		}
		if !e.Direction.Valid() {
			return fmt.Errorf("element %d: invalid direction %d", i, int(e.Direction))
		}
		if i == 0 {
			continue
		}
		prev := p[i-1]
		linked := false
		for _, l := range y.Sections[prev.SectionIndex].Links[prev.Direction] {
			if l.Section == e.SectionIndex && l.Direction == e.Direction {
				linked = true
				break
			}
		}
		if !linked {
			return fmt.Errorf("element %d: %w: %d does not follow %d", i, ErrInvalidLink, e.SectionIndex, prev.SectionIndex)
		}
	}
	return nil
}

func (p PartialPath) String() string {
	b := new(strings.Builder)
	for i, e := range p {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(b, "%d/%s", e.SectionIndex, e.Direction)
		if e.UsedAlternativePath >= 0 {
			fmt.Fprintf(b, "(alt%d)", e.UsedAlternativePath)
		}
	}
	return b.String()
}

// Save writes [count][count × element] where an element is
// [section][direction][outpin0][outpin1][facing byte][used alt][start alt][end alt].
func (p PartialPath) Save(w *binfmt.Writer) {
	w.Int(len(p))
	for _, e := range p {
		w.Int(e.SectionIndex)
		w.Int(int(e.Direction))
		w.Int(e.OutPin[0])
		w.Int(e.OutPin[1])
		w.Bool(e.FacingPoint)
		w.Int(e.UsedAlternativePath)
		w.Int(e.StartAlternativePath)
		w.Int(e.EndAlternativePath)
	}
}

// RestorePartialPath reads a path written by Save.
func RestorePartialPath(r *binfmt.Reader) PartialPath {
	n := r.Count("path element")
	if r.Err() != nil || n == 0 {
		return nil
	}
	p := make(PartialPath, 0, min(n, r.Remaining()))
	for i := 0; i < n && r.Err() == nil; i++ {
		var e Element
		e.SectionIndex = r.Int()
		e.Direction = Direction(r.Int())
		e.OutPin[0] = r.Int()
		e.OutPin[1] = r.Int()
		e.FacingPoint = r.Bool()
		e.UsedAlternativePath = r.Int()
		e.StartAlternativePath = r.Int()
		e.EndAlternativePath = r.Int()
		p = append(p, e)
	}
	if r.Err() != nil {
		return nil
	}
	return p
}
