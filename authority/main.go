// Package authority computes how far a train may proceed and why it may go no further.
package authority

import (
	"fmt"

	"nyiyui.ca/hato/shingo/binfmt"
	"nyiyui.ca/hato/shingo/track"
)

// Type classifies why authority ends. The ordinal is the persisted value.
type Type int

const (
	EndOfTrack Type = iota
	EndOfPath
	ReservedSwitch
	Loop
	TrainAhead
	MaxDistance
	NoPathReserved
	Signal
	EndOfAuthority
	typeCount

	// Unspecified is only used in Input, when the reservation logic gives no reason.
	Unspecified Type = -1
)

var typeNames = [...]string{
	"end-of-track",
	"end-of-path",
	"reserved-switch",
	"loop",
	"train-ahead",
	"max-distance",
	"no-path-reserved",
	"signal",
	"end-of-authority",
}

func (t Type) String() string {
	if t < 0 || t >= typeCount {
		return fmt.Sprintf("authority(%d)", int(t))
	}
	return typeNames[t]
}

// Valid reports whether t is a persisted type. Unspecified is not.
func (t Type) Valid() bool {
	return t >= 0 && t < typeCount
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	for i, name := range typeNames {
		if name == string(text) {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown authority type %q", text)
}

// State is a train's movement authority. It is always replaced wholesale.
type State struct {
	Type Type `json:"type"`
	// LastReservedSection is the furthest contiguously reserved section, or -1.
	LastReservedSection int     `json:"last-reserved-section"`
	Distance            float32 `json:"distance"`
}

// None is the authority of a train with nothing reserved ahead.
var None = State{Type: NoPathReserved, LastReservedSection: -1}

func (s State) String() string {
	return fmt.Sprintf("%s@%d (%.1f m)", s.Type, s.LastReservedSection, s.Distance)
}

// Input is a snapshot of what a train's authority depends on.
type Input struct {
	Train int
	// Position is the train's front; it lies on Route[0].
	Position track.Position
	Route    track.PartialPath
	// Reason is why reservation stopped, or Unspecified.
	Reason Type
	// MaxDistance clamps the authority. 0 means no clamp.
	MaxDistance float32
}

// Compute derives the authority for in. It depends only on in and the reservation state of y,
// so it gives identical results for identical inputs.
func Compute(y *track.Network, in Input) (State, error) {
	if len(in.Route) == 0 {
		return None, nil
	}
	if in.Route[0].SectionIndex != in.Position.Section {
		return None, fmt.Errorf("train %d: front %s is not on the route start %d", in.Train, in.Position, in.Route[0].SectionIndex)
	}
	if err := in.Route.Check(y); err != nil {
		return None, fmt.Errorf("train %d: %w", in.Train, err)
	}
	var distance float32
	last := -1
	for i, e := range in.Route {
		sec := &y.Sections[e.SectionIndex]
		if sec.ReservedBy != in.Train {
			break
		}
		if i == 0 {
			distance += sec.Remaining(in.Position.Offset, e.Direction)
		} else {
			distance += sec.Length
		}
		last = i
	}
	if last == -1 {
		return None, nil
	}
	res := State{
		LastReservedSection: in.Route[last].SectionIndex,
		Distance:            distance,
	}
	switch {
	case in.MaxDistance > 0 && distance > in.MaxDistance:
		res.Type = MaxDistance
		res.Distance = in.MaxDistance
	case in.Reason != Unspecified:
		res.Type = in.Reason
	case last == len(in.Route)-1:
		res.Type = EndOfPath
	default:
		res.Type = blocked(in.Train, &y.Sections[in.Route[last+1].SectionIndex])
	}
	return res, nil
}

// blocked says why the train cannot reserve sec.
func blocked(train int, sec *track.Section) Type {
	for _, t := range sec.OccupiedBy {
		if t != train {
			return TrainAhead
		}
	}
	if sec.ReservedBy != track.NoTrain && sec.Kind == track.KindJunction {
		return ReservedSwitch
	}
	if sec.Kind == track.KindEndOfTrack {
		return EndOfTrack
	}
	return EndOfAuthority
}

// Save writes [type][lastReservedSection][distance].
func (s State) Save(w *binfmt.Writer) {
	w.Int(int(s.Type))
	w.Int(s.LastReservedSection)
	w.Float32(s.Distance)
}

func Restore(r *binfmt.Reader) (State, error) {
	s := State{
		Type:                Type(r.Int()),
		LastReservedSection: r.Int(),
		Distance:            r.Float32(),
	}
	if err := r.Err(); err != nil {
		return None, err
	}
	if !s.Type.Valid() {
		return None, fmt.Errorf("%w: authority type %d", binfmt.ErrDecode, int(s.Type))
	}
	return s, nil
}
