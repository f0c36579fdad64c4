package deadlock

import (
	"cmp"
	"fmt"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo/binfmt"
	"nyiyui.ca/hato/shingo/track"
)

// Save writes [route][name][groupCount][groups][usefulLength][endSection][lastUsefulSection][allowedCount][allowed].
func (p *Path) Save(w *binfmt.Writer) {
	p.Route.Save(w)
	w.Text(p.Name)
	w.Int(len(p.Groups))
	for _, g := range p.Groups {
		w.Text(g)
	}
	w.Float32(p.UsefulLength)
	w.Int(p.EndSectionIndex)
	w.Int(p.LastUsefulSectionIndex)
	w.Int(len(p.AllowedTrains))
	for _, t := range p.AllowedTrains {
		w.Int(t)
	}
}

// RestorePath reads a path written by Save.
func RestorePath(r *binfmt.Reader) (*Path, error) {
	p := new(Path)
	p.Route = track.RestorePartialPath(r)
	if r.Err() == nil && len(p.Route) == 0 {
		return nil, fmt.Errorf("%w: deadlock path with an empty route", binfmt.ErrDecode)
	}
	p.Name = r.Text()
	n := r.Count("group")
	for i := 0; i < n && r.Err() == nil; i++ {
		p.Groups = append(p.Groups, r.Text())
	}
	p.UsefulLength = r.Float32()
	p.EndSectionIndex = r.Int()
	p.LastUsefulSectionIndex = r.Int()
	n = r.Count("allowed train")
	for i := 0; i < n && r.Err() == nil; i++ {
		p.AllowedTrains = append(p.AllowedTrains, r.Int())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

type indexEntry struct {
	key   subpath
	index int
}

// Save writes [id][pathCount][paths][indexCount][indexCount × (train, subpath, index)].
// Indices are written ordered by train then sub-path.
func (g *Registry) Save(w *binfmt.Writer) {
	w.Int(g.ID)
	w.Int(len(g.Paths))
	for _, p := range g.Paths {
		p.Save(w)
	}
	entries := make([]indexEntry, 0, len(g.indices))
	for k, i := range g.indices {
		entries = append(entries, indexEntry{k, i})
	}
	slices.SortFunc(entries, func(a, b indexEntry) int {
		if c := cmp.Compare(a.key.train, b.key.train); c != 0 {
			return c
		}
		return cmp.Compare(a.key.subpath, b.key.subpath)
	})
	w.Int(len(entries))
	for _, e := range entries {
		w.Int(e.key.train)
		w.Int(e.key.subpath)
		w.Int(e.index)
	}
}

// RestoreRegistry reads a registry written by Save.
func RestoreRegistry(r *binfmt.Reader) (*Registry, error) {
	g := NewRegistry(r.Int())
	n := r.Count("deadlock path")
	for i := 0; i < n && r.Err() == nil; i++ {
		p, err := RestorePath(r)
		if err != nil {
			return nil, err
		}
		g.Paths = append(g.Paths, p)
	}
	n = r.Count("sub-path index")
	seen := map[int]bool{}
	for i := 0; i < n && r.Err() == nil; i++ {
		k := subpath{train: r.Int(), subpath: r.Int()}
		index := r.Int()
		if r.Err() != nil {
			break
		}
		if _, dup := g.indices[k]; dup || seen[index] || index < 0 || index >= n {
			return nil, fmt.Errorf("%w: registry %d: bad sub-path index %d for train %d", binfmt.ErrDecode, g.ID, index, k.train)
		}
		seen[index] = true
		g.indices[k] = index
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

// Check verifies that p lies on y.
func (p *Path) Check(y *track.Network) error {
	if len(p.Route) == 0 {
		return fmt.Errorf("%w: empty route", ErrInvalidPath)
	}
	if err := p.Route.Check(y); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if _, err := y.Section(p.EndSectionIndex); err != nil {
		return fmt.Errorf("%w: end: %w", ErrInvalidPath, err)
	}
	if p.LastUsefulSectionIndex != -1 && p.Route.Index(p.LastUsefulSectionIndex) < 0 {
		return fmt.Errorf("%w: last useful section %d is not on the path", ErrInvalidPath, p.LastUsefulSectionIndex)
	}
	if p.UsefulLength < 0 {
		return fmt.Errorf("%w: negative useful length %.1f", ErrInvalidPath, p.UsefulLength)
	}
	for _, t := range p.AllowedTrains {
		if t < Public {
			return fmt.Errorf("%w: invalid train index %d", ErrInvalidPath, t)
		}
	}
	return nil
}

// Check verifies every path of g against y.
func (g *Registry) Check(y *track.Network) error {
	for i, p := range g.Paths {
		if err := p.Check(y); err != nil {
			return fmt.Errorf("registry %d: path %d: %w", g.ID, i, err)
		}
	}
	return nil
}
