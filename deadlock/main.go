// Package deadlock keeps the alternate paths through junction areas that let converging trains pass each other.
//
// A Registry is a passive store: it answers membership and length queries, the route planner picks paths.
package deadlock

import (
	"errors"
	"fmt"

	"nyiyui.ca/hato/shingo/track"
)

var ErrInvalidPath = errors.New("invalid deadlock path")

// Public in AllowedTrains marks a path usable by every train.
const Public = -1

// Path is an alternate partial route through a junction area.
type Path struct {
	Route  track.PartialPath
	Name   string
	Groups []string
	// AllowedTrains lists sub-path indices allowed to use the path. Empty means public.
	AllowedTrains          []int
	UsefulLength           float32
	EndSectionIndex        int
	LastUsefulSectionIndex int
}

// IsUsableBy reports whether the train sub-path index may use p.
func (p *Path) IsUsableBy(index int) bool {
	if len(p.AllowedTrains) == 0 {
		return true
	}
	for _, t := range p.AllowedTrains {
		if t == Public || t == index {
			return true
		}
	}
	return false
}

func (p *Path) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Registry holds the paths of one junction area and the sub-path indices of trains routed through it.
type Registry struct {
	ID    int
	Paths []*Path

	indices map[subpath]int
}

type subpath struct {
	train, subpath int
}

func NewRegistry(id int) *Registry {
	return &Registry{ID: id, indices: map[subpath]int{}}
}

// Path returns path i.
func (g *Registry) Path(i int) (*Path, error) {
	if i < 0 || i >= len(g.Paths) {
		return nil, fmt.Errorf("%w: registry %d has no path %d", ErrInvalidPath, g.ID, i)
	}
	return g.Paths[i], nil
}

// RegisterPath stores a copy of route and returns its index.
// The copy's first element is marked as starting the path; length, end and name are filled in later.
func (g *Registry) RegisterPath(route track.PartialPath) (int, error) {
	if len(route) == 0 {
		return -1, fmt.Errorf("%w: empty route", ErrInvalidPath)
	}
	i := len(g.Paths)
	p := &Path{
		Route:                  route.Clone(),
		EndSectionIndex:        route[len(route)-1].SectionIndex,
		LastUsefulSectionIndex: -1,
	}
	p.Route[0].UsedAlternativePath = i
	g.Paths = append(g.Paths, p)
	return i, nil
}

// ExtendEndpoint records that path i continues further than first discovered.
func (g *Registry) ExtendEndpoint(i int, length float32, endSection int) error {
	p, err := g.Path(i)
	if err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("%w: path %d: negative length %.1f", ErrInvalidPath, i, length)
	}
	p.UsefulLength = length
	p.EndSectionIndex = endSection
	return nil
}

// SetUsefulLength names path i and records how much of it a train can stand in.
func (g *Registry) SetUsefulLength(i int, name string, length float32, lastUseful int) error {
	p, err := g.Path(i)
	if err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("%w: path %d: negative length %.1f", ErrInvalidPath, i, length)
	}
	if lastUseful >= 0 && p.Route.Index(lastUseful) < 0 {
		return fmt.Errorf("%w: path %d: section %d is not on the path", ErrInvalidPath, i, lastUseful)
	}
	p.Name = name
	p.UsefulLength = length
	p.LastUsefulSectionIndex = lastUseful
	return nil
}

func (g *Registry) AddGroup(i int, group string) error {
	p, err := g.Path(i)
	if err != nil {
		return err
	}
	if !p.InGroup(group) {
		p.Groups = append(p.Groups, group)
	}
	return nil
}

// AllowTrain adds index to the sub-path indices allowed on path i.
// A path with any allowed index is no longer public unless Public is allowed too.
func (g *Registry) AllowTrain(i int, index int) error {
	p, err := g.Path(i)
	if err != nil {
		return err
	}
	if index < Public {
		return fmt.Errorf("%w: path %d: invalid train index %d", ErrInvalidPath, i, index)
	}
	for _, t := range p.AllowedTrains {
		if t == index {
			return nil
		}
	}
	p.AllowedTrains = append(p.AllowedTrains, index)
	return nil
}

func (g *Registry) IsUsableBy(i int, index int) bool {
	p, err := g.Path(i)
	if err != nil {
		return false
	}
	return p.IsUsableBy(index)
}

// Lookup finds a path by name.
func (g *Registry) Lookup(name string) (int, bool) {
	for i, p := range g.Paths {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

// SubpathIndex returns the index identifying a train's sub-path in this registry, allocating one on first use.
func (g *Registry) SubpathIndex(train, sp int) int {
	k := subpath{train, sp}
	if i, ok := g.indices[k]; ok {
		return i
	}
	i := len(g.indices)
	g.indices[k] = i
	return i
}

// UsablePaths lists the paths the sub-path index may use.
func (g *Registry) UsablePaths(index int) []int {
	var res []int
	for i, p := range g.Paths {
		if p.IsUsableBy(index) {
			res = append(res, i)
		}
	}
	return res
}

// UsablePathsFor lists the paths the sub-path index may use with at least required useful length.
func (g *Registry) UsablePathsFor(index int, required float32) []int {
	var res []int
	for i, p := range g.Paths {
		if p.IsUsableBy(index) && p.UsefulLength >= required {
			res = append(res, i)
		}
	}
	return res
}

// FirstUsable returns the first path index may use with at least required useful length, or -1.
func (g *Registry) FirstUsable(index int, required float32) int {
	if res := g.UsablePathsFor(index, required); len(res) > 0 {
		return res[0]
	}
	return -1
}

// Discover registers every simple path from section from (leaving in dir) to goal, up to limit.
// Each path is named after its registry and index, and is fully useful.
func (g *Registry) Discover(y *track.Network, from int, dir track.Direction, goal int, limit int) ([]int, error) {
	routes, err := y.AlternativePaths(from, dir, goal, limit)
	if err != nil {
		return nil, err
	}
	res := make([]int, 0, len(routes))
	for _, route := range routes {
		i, err := g.RegisterPath(route)
		if err != nil {
			return nil, err
		}
		last := route[len(route)-1].SectionIndex
		if err := g.SetUsefulLength(i, fmt.Sprintf("%d/%d", g.ID, i), route.Length(y), last); err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, nil
}
