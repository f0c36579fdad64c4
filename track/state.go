package track

import (
	"fmt"

	"nyiyui.ca/hato/shingo/binfmt"
)

type sectionState struct {
	selected   int
	reservedBy int
	occupiedBy []int
}

// State is decoded junction and reservation state not yet applied to a network.
type State struct {
	sections []sectionState
}

// SaveState writes [sectionCount] then per section [selected][reservedBy][occupiedCount][occupiedCount × train].
func (y *Network) SaveState(w *binfmt.Writer) {
	w.Int(len(y.Sections))
	for i := range y.Sections {
		s := &y.Sections[i]
		w.Int(s.Selected)
		w.Int(s.ReservedBy)
		w.Int(len(s.OccupiedBy))
		for _, t := range s.OccupiedBy {
			w.Int(t)
		}
	}
}

// DecodeState reads state written by SaveState and checks it fits y.
func (y *Network) DecodeState(r *binfmt.Reader) (*State, error) {
	n := r.Count("section")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if n != len(y.Sections) {
		return nil, fmt.Errorf("%w: %d sections saved, %d in network", binfmt.ErrDecode, n, len(y.Sections))
	}
	st := &State{sections: make([]sectionState, n)}
	for i := range st.sections {
		s := &st.sections[i]
		s.selected = r.Int()
		s.reservedBy = r.Int()
		occupied := r.Count("occupying train")
		for j := 0; j < occupied && r.Err() == nil; j++ {
			s.occupiedBy = append(s.occupiedBy, r.Int())
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if s.selected != -1 && s.selected != 0 {
			facing, ok := y.Sections[i].FacingDirection()
			if !ok || s.selected < 0 || s.selected >= len(y.Sections[i].Links[facing]) {
				return nil, fmt.Errorf("%w: section %d: pin %d", binfmt.ErrDecode, i, s.selected)
			}
		}
	}
	return st, nil
}

// ApplyState replaces junction and reservation state with st, which must come from DecodeState on y.
// Every section is reported as changed.
func (y *Network) ApplyState(st *State) {
	for i, s := range st.sections {
		sec := &y.Sections[i]
		sec.Selected = s.selected
		sec.ReservedBy = s.reservedBy
		sec.OccupiedBy = s.occupiedBy
	}
	for i := range y.Sections {
		y.changed(i)
	}
}
