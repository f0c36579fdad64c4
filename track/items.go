package track

import (
	"cmp"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo/aspect"
)

var ErrFrozen = errors.New("section index is frozen")

// SignalItem is a signal node lying on a section.
type SignalItem struct {
	Node   int
	Offset float32
}

// SpeedPostItem is a fixed speed restriction lying on a section.
type SpeedPostItem struct {
	Offset      float32
	Restriction aspect.SpeedRestriction
}

type MilepostItem struct {
	Offset float32
	Value  float32
}

type circuitItems struct {
	// signals is indexed by [direction][function].
	signals    [2][][]SignalItem
	speedPosts [2][]SpeedPostItem
	mileposts  []MilepostItem
}

// SectionIndex catalogues which signals, speed posts and mileposts lie on each section.
// It is filled once, frozen, and read-only afterwards.
// Lists are kept in travel order for their direction.
type SectionIndex struct {
	functions int
	items     []circuitItems
	frozen    bool
}

// NewSectionIndex sizes the index for the given number of sections and signal functions.
func NewSectionIndex(sections, functions int) (*SectionIndex, error) {
	if sections < 0 || functions <= 0 {
		return nil, fmt.Errorf("section index: invalid size %d sections × %d functions", sections, functions)
	}
	x := &SectionIndex{
		functions: functions,
		items:     make([]circuitItems, sections),
	}
	for i := range x.items {
		for d := range x.items[i].signals {
			x.items[i].signals[d] = make([][]SignalItem, functions)
		}
	}
	return x, nil
}

func (x *SectionIndex) Functions() int {
	return x.functions
}

func (x *SectionIndex) Sections() int {
	return len(x.items)
}

func (x *SectionIndex) check(section int, dir Direction) error {
	if x.frozen {
		return ErrFrozen
	}
	if section < 0 || section >= len(x.items) {
		return fmt.Errorf("%w: %d", ErrInvalidSection, section)
	}
	if !dir.Valid() {
		return fmt.Errorf("invalid direction %d", int(dir))
	}
	return nil
}

func (x *SectionIndex) AddSignal(section int, dir Direction, function int, item SignalItem) error {
	if err := x.check(section, dir); err != nil {
		return err
	}
	if function < 0 || function >= x.functions {
		return fmt.Errorf("section %d: function %d out of range (%d functions)", section, function, x.functions)
	}
	x.items[section].signals[dir][function] = append(x.items[section].signals[dir][function], item)
	return nil
}

func (x *SectionIndex) AddSpeedPost(section int, dir Direction, item SpeedPostItem) error {
	if err := x.check(section, dir); err != nil {
		return err
	}
	x.items[section].speedPosts[dir] = append(x.items[section].speedPosts[dir], item)
	return nil
}

func (x *SectionIndex) AddMilepost(section int, item MilepostItem) error {
	if err := x.check(section, Forward); err != nil {
		return err
	}
	x.items[section].mileposts = append(x.items[section].mileposts, item)
	return nil
}

// Freeze sorts every list into travel order and makes the index read-only.
func (x *SectionIndex) Freeze() {
	if x.frozen {
		return
	}
	for i := range x.items {
		it := &x.items[i]
		for d := Forward; d <= Reverse; d++ {
			sign := float32(1)
			if d == Reverse {
				sign = -1
			}
			for fn := range it.signals[d] {
				slices.SortStableFunc(it.signals[d][fn], func(a, b SignalItem) int {
					return cmp.Compare(sign*a.Offset, sign*b.Offset)
				})
			}
			slices.SortStableFunc(it.speedPosts[d], func(a, b SpeedPostItem) int {
				return cmp.Compare(sign*a.Offset, sign*b.Offset)
			})
		}
		slices.SortStableFunc(it.mileposts, func(a, b MilepostItem) int {
			return cmp.Compare(a.Offset, b.Offset)
		})
	}
	x.frozen = true
}

func (x *SectionIndex) Frozen() bool {
	return x.frozen
}

// Signals returns the signals of function on section facing dir, in travel order.
func (x *SectionIndex) Signals(section int, dir Direction, function int) []SignalItem {
	if section < 0 || section >= len(x.items) || !dir.Valid() || function < 0 || function >= x.functions {
		return nil
	}
	return x.items[section].signals[dir][function]
}

func (x *SectionIndex) SpeedPosts(section int, dir Direction) []SpeedPostItem {
	if section < 0 || section >= len(x.items) || !dir.Valid() {
		return nil
	}
	return x.items[section].speedPosts[dir]
}

func (x *SectionIndex) Mileposts(section int) []MilepostItem {
	if section < 0 || section >= len(x.items) {
		return nil
	}
	return x.items[section].mileposts
}

// MilepostAt returns the value of the last milepost at or before offset on section.
func (x *SectionIndex) MilepostAt(section int, offset float32) (float32, bool) {
	var res MilepostItem
	found := false
	for _, m := range x.Mileposts(section) {
		if m.Offset > offset {
			break
		}
		res, found = m, true
	}
	return res.Value, found
}

// Beyond reports whether offset lies strictly ahead of from when travelling in dir.
func Beyond(offset, from float32, dir Direction) bool {
	if dir == Forward {
		return offset > from
	}
	return offset < from
}

// SignalsAhead returns the signals of function on section facing dir that lie strictly beyond from.
func (x *SectionIndex) SignalsAhead(section int, dir Direction, function int, from float32) []SignalItem {
	items := x.Signals(section, dir, function)
	for i, it := range items {
		if Beyond(it.Offset, from, dir) {
			return items[i:]
		}
	}
	return nil
}

// SpeedPostsAhead walks the current route from pos and returns speed posts within maxDistance, in travel order.
func (y *Network) SpeedPostsAhead(x *SectionIndex, pos Position, dir Direction, maxDistance float32) []SpeedPostItem {
	var res []SpeedPostItem
	y.Walk(pos, dir, maxDistance, func(st Step) bool {
		for _, sp := range x.SpeedPosts(st.Section, st.Direction) {
			if st.First && !Beyond(sp.Offset, st.Entry, st.Direction) {
				continue
			}
			d := sp.Offset - st.Entry
			if d < 0 {
				d = -d
			}
			if maxDistance > 0 && st.Distance+d > maxDistance {
				break
			}
			res = append(res, sp)
		}
		return true
	})
	return res
}
