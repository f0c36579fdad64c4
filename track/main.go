// Package track models the static track-circuit network and its dynamic junction and reservation state.
package track

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidSection = errors.New("invalid section")
	ErrInvalidLink    = errors.New("invalid link")
	ErrReserved       = errors.New("section reserved by another train")
	ErrNotJunction    = errors.New("section is not a junction")
)

// NoTrain is used where a train index is unset.
const NoTrain = -1

// Direction of travel through a section. Offsets are always measured from the Forward start.
type Direction int

const (
	Forward Direction = 0
	Reverse Direction = 1
)

func (d Direction) Reverse() Direction {
	return 1 - d
}

func (d Direction) Valid() bool {
	return d == Forward || d == Reverse
}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "fwd"
	case Reverse:
		return "rev"
	default:
		return fmt.Sprintf("dir(%d)", int(d))
	}
}

type Kind int

const (
	KindNormal Kind = iota
	KindJunction
	KindCrossover
	KindEndOfTrack
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindJunction:
		return "junction"
	case KindCrossover:
		return "crossover"
	case KindEndOfTrack:
		return "end-of-track"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Link is where a train ends up when leaving a section: the next section and the direction it travels through it.
type Link struct {
	Section   int
	Direction Direction
}

func (l Link) String() string {
	return fmt.Sprintf("→%d/%s", l.Section, l.Direction)
}

// Position is a point on a section, measured from its Forward start.
type Position struct {
	Section int     `json:"section"`
	Offset  float32 `json:"offset"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d+%.1f", p.Section, p.Offset)
}

// Section is a single track circuit: the unit of occupancy and reservation.
type Section struct {
	Index int
	Kind  Kind
	// Name is a human-readable comment, used for lookups in tests and presets.
	Name   string
	Length float32
	// Links are the outgoing connections for each direction of travel.
	// Only junctions have two links (in their facing direction).
	Links [2][]Link
	// Selected is the junction pin in use; -1 means the switch is not set.
	Selected   int
	ReservedBy int
	OccupiedBy []int
}

// Remaining returns the distance from offset to the end of the section when travelling in dir.
func (s *Section) Remaining(offset float32, dir Direction) float32 {
	if dir == Forward {
		return s.Length - offset
	}
	return offset
}

// Entry returns the offset at which a train travelling in dir enters the section.
func (s *Section) Entry(dir Direction) float32 {
	if dir == Forward {
		return 0
	}
	return s.Length
}

// FacingDirection returns the direction in which the section branches.
func (s *Section) FacingDirection() (Direction, bool) {
	for d := Forward; d <= Reverse; d++ {
		if len(s.Links[d]) > 1 {
			return d, true
		}
	}
	return 0, false
}

func (s *Section) occupiedOnlyBy(train int) bool {
	for _, t := range s.OccupiedBy {
		if t != train {
			return false
		}
	}
	return true
}

// Network is the track-circuit graph plus the cross-over and platform tables built from it.
type Network struct {
	Sections   []Section
	CrossOvers []CrossOverLink
	Platforms  []PlatformRecord

	sectionPlatforms map[int][]int
	listeners        []func(section int)
}

func NewNetwork() *Network {
	return &Network{sectionPlatforms: map[int][]int{}}
}

func (y *Network) valid(section int) bool {
	return section >= 0 && section < len(y.Sections)
}

// Section returns the section with the given index.
func (y *Network) Section(section int) (*Section, error) {
	if !y.valid(section) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSection, section)
	}
	return &y.Sections[section], nil
}

// MustLookupIndex finds a section with a matching name. If it doesn't it panics.
// This is for presets/testing.
func (y *Network) MustLookupIndex(name string) int {
	for i := range y.Sections {
		if y.Sections[i].Name == name {
			return i
		}
	}
	panic(fmt.Sprintf("found nothing when looking up for %s", name))
}

// AddSection appends a section and returns its index.
func (y *Network) AddSection(kind Kind, length float32, name string) (int, error) {
	if length < 0 || math.IsNaN(float64(length)) || math.IsInf(float64(length), 0) {
		return -1, fmt.Errorf("section %s: invalid length %f", name, length)
	}
	i := len(y.Sections)
	y.Sections = append(y.Sections, Section{
		Index:      i,
		Kind:       kind,
		Name:       name,
		Length:     length,
		ReservedBy: NoTrain,
	})
	return i, nil
}

// Connect joins two sections: leaving a in dirA enters b travelling in dirB.
// The reverse connection is added as well.
func (y *Network) Connect(a int, dirA Direction, b int, dirB Direction) error {
	if !y.valid(a) || !y.valid(b) {
		return fmt.Errorf("%w: connect %d-%d", ErrInvalidSection, a, b)
	}
	if !dirA.Valid() || !dirB.Valid() {
		return fmt.Errorf("%w: connect %d-%d: bad direction", ErrInvalidLink, a, b)
	}
	if err := y.checkLinkCapacity(a, dirA); err != nil {
		return err
	}
	if err := y.checkLinkCapacity(b, dirB.Reverse()); err != nil {
		return err
	}
	sa, sb := &y.Sections[a], &y.Sections[b]
	sa.Links[dirA] = append(sa.Links[dirA], Link{Section: b, Direction: dirB})
	sb.Links[dirB.Reverse()] = append(sb.Links[dirB.Reverse()], Link{Section: a, Direction: dirA.Reverse()})
	return nil
}

func (y *Network) checkLinkCapacity(section int, dir Direction) error {
	s := &y.Sections[section]
	n := len(s.Links[dir])
	if n == 0 {
		return nil
	}
	if s.Kind != KindJunction {
		return fmt.Errorf("%w: section %d (%s) already linked in %s", ErrInvalidLink, section, s.Name, dir)
	}
	if n >= 2 {
		return fmt.Errorf("%w: junction %d (%s) already has two links in %s", ErrInvalidLink, section, s.Name, dir)
	}
	if other := dir.Reverse(); len(s.Links[other]) > 1 {
		return fmt.Errorf("%w: junction %d (%s) already branches in %s", ErrInvalidLink, section, s.Name, other)
	}
	return nil
}

// Next returns the link followed when leaving section in dir, given the current junction setting.
func (y *Network) Next(section int, dir Direction) (Link, bool) {
	if !y.valid(section) {
		return Link{}, false
	}
	links := y.Sections[section].Links[dir]
	switch len(links) {
	case 0:
		return Link{}, false
	case 1:
		return links[0], true
	default:
		sel := y.Sections[section].Selected
		if sel < 0 || sel >= len(links) {
			return Link{}, false
		}
		return links[sel], true
	}
}

// OnRouteChange registers fn to be called whenever the route through a section changes
// (junction setting, reservation or occupation).
func (y *Network) OnRouteChange(fn func(section int)) {
	y.listeners = append(y.listeners, fn)
}

func (y *Network) changed(section int) {
	for _, fn := range y.listeners {
		fn(section)
	}
}

// SetJunction selects the pin used in the junction's facing direction. -1 unsets it.
func (y *Network) SetJunction(section, pin int) error {
	s, err := y.Section(section)
	if err != nil {
		return err
	}
	if s.Kind != KindJunction {
		return fmt.Errorf("%w: %d (%s)", ErrNotJunction, section, s.Name)
	}
	facing, ok := s.FacingDirection()
	if !ok {
		return fmt.Errorf("%w: junction %d (%s) has no branches", ErrInvalidLink, section, s.Name)
	}
	if pin < -1 || pin >= len(s.Links[facing]) {
		return fmt.Errorf("%w: junction %d pin %d", ErrInvalidLink, section, pin)
	}
	if s.Selected == pin {
		return nil
	}
	s.Selected = pin
	y.changed(section)
	return nil
}

// Reserve claims the section for train.
func (y *Network) Reserve(section, train int) error {
	s, err := y.Section(section)
	if err != nil {
		return err
	}
	if train < 0 {
		return fmt.Errorf("reserve %d: invalid train %d", section, train)
	}
	if s.ReservedBy == train {
		return nil
	}
	if s.ReservedBy != NoTrain {
		return fmt.Errorf("%w: %d (%s) held by %d", ErrReserved, section, s.Name, s.ReservedBy)
	}
	s.ReservedBy = train
	y.changed(section)
	return nil
}

func (y *Network) Release(section int) error {
	s, err := y.Section(section)
	if err != nil {
		return err
	}
	if s.ReservedBy == NoTrain {
		return nil
	}
	s.ReservedBy = NoTrain
	y.changed(section)
	return nil
}

func (y *Network) Occupy(section, train int) error {
	s, err := y.Section(section)
	if err != nil {
		return err
	}
	for _, t := range s.OccupiedBy {
		if t == train {
			return nil
		}
	}
	s.OccupiedBy = append(s.OccupiedBy, train)
	y.changed(section)
	return nil
}

func (y *Network) Vacate(section, train int) error {
	s, err := y.Section(section)
	if err != nil {
		return err
	}
	for i, t := range s.OccupiedBy {
		if t == train {
			s.OccupiedBy = append(s.OccupiedBy[:i], s.OccupiedBy[i+1:]...)
			y.changed(section)
			return nil
		}
	}
	return nil
}

// ReservedBy returns the reserving train, or NoTrain.
func (y *Network) ReservedBy(section int) int {
	if !y.valid(section) {
		return NoTrain
	}
	return y.Sections[section].ReservedBy
}

// IsClearFor reports whether no other train reserves or occupies the section.
func (y *Network) IsClearFor(section, train int) bool {
	if !y.valid(section) {
		return false
	}
	s := &y.Sections[section]
	if s.ReservedBy != NoTrain && s.ReservedBy != train {
		return false
	}
	return s.occupiedOnlyBy(train)
}
