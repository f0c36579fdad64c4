package sim

import (
	"fmt"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/authority"
	"nyiyui.ca/hato/shingo/deadlock"
	"nyiyui.ca/hato/shingo/track"
)

// SetRoute replaces a train's route ahead. The route must start at the train's front section.
// Reservations along the old route beyond the front are released.
func (c *Context) SetRoute(id int, route track.PartialPath) error {
	t, err := c.train(id)
	if err != nil {
		return err
	}
	if len(route) == 0 || route[0].SectionIndex != t.Position.Section {
		return fmt.Errorf("train %d: route must start at %d", id, t.Position.Section)
	}
	if err := route.Check(c.Track); err != nil {
		return fmt.Errorf("train %d: %w", id, err)
	}
	c.release(t, t.Route[min(1, len(t.Route)):])
	t.Route = route.Clone()
	t.Direction = route[0].Direction
	t.Reason = authority.Unspecified
	return nil
}

func (c *Context) release(t *Train, route track.PartialPath) {
	for _, e := range route {
		if c.Track.ReservedBy(e.SectionIndex) == t.ID && e.SectionIndex != t.Position.Section {
			// cannot fail: the index came from a checked route
			_ = c.Track.Release(e.SectionIndex)
		}
	}
}

// Reserve claims sections along a train's route, setting facing junctions as it goes,
// until a section is held by another train or the route ends.
// It returns the number of sections the train holds ahead of and including its front.
func (c *Context) Reserve(id int) (int, error) {
	t, err := c.train(id)
	if err != nil {
		return 0, err
	}
	t.Reason = authority.Unspecified
	for i, e := range t.Route {
		sec := &c.Track.Sections[e.SectionIndex]
		if !c.Track.IsClearFor(e.SectionIndex, t.ID) {
			return i, nil
		}
		if err := c.Track.Reserve(e.SectionIndex, t.ID); err != nil {
			return i, err
		}
		if e.FacingPoint && sec.Selected != e.OutPin[1] {
			if err := c.Track.SetJunction(e.SectionIndex, e.OutPin[1]); err != nil {
				return i, err
			}
		}
	}
	return len(t.Route), nil
}

// MoveTrain moves a train's front along its route, releasing and vacating the sections left behind.
func (c *Context) MoveTrain(id int, pos track.Position, speed float32) error {
	t, err := c.train(id)
	if err != nil {
		return err
	}
	i := t.Route.Index(pos.Section)
	if i < 0 {
		return fmt.Errorf("%w: %d: %s is not on its route", ErrInvalidTrain, id, pos)
	}
	sec := &c.Track.Sections[pos.Section]
	if pos.Offset < 0 || pos.Offset > sec.Length {
		return fmt.Errorf("%w: %d: bad position %s", ErrInvalidTrain, id, pos)
	}
	for _, e := range t.Route[:i] {
		if err := c.Track.Vacate(e.SectionIndex, t.ID); err != nil {
			return err
		}
		if c.Track.ReservedBy(e.SectionIndex) == t.ID {
			if err := c.Track.Release(e.SectionIndex); err != nil {
				return err
			}
		}
	}
	if err := c.Track.Occupy(pos.Section, t.ID); err != nil {
		return err
	}
	t.Route = t.Route[i:]
	t.Position = pos
	t.Direction = t.Route[0].Direction
	t.Speed = speed
	return nil
}

// TakeAlternative reroutes a train over the first path of registry that it may use, that is clear for it,
// and whose useful length is at least required.
// The path must start and end on the train's current route. It returns the path index, or -1 if none fits.
func (c *Context) TakeAlternative(id, registry int, required float32) (int, error) {
	t, err := c.train(id)
	if err != nil {
		return -1, err
	}
	g, err := c.Registry(registry)
	if err != nil {
		return -1, err
	}
	index := g.SubpathIndex(t.ID, 0)
	for _, pi := range g.UsablePathsFor(index, required) {
		p := g.Paths[pi]
		start := t.Route.Index(p.Route[0].SectionIndex)
		end := t.Route.Index(p.Route[len(p.Route)-1].SectionIndex)
		if start < 0 || end < start || !c.clearFor(p, t.ID) {
			continue
		}
		route := make(track.PartialPath, 0, len(t.Route)-(end-start+1)+len(p.Route))
		route = append(route, t.Route[:start]...)
		route = append(route, p.Route...)
		// the rejoin section keeps the pins the old route set beyond it
		last := &route[len(route)-1]
		last.OutPin = t.Route[end].OutPin
		last.FacingPoint = t.Route[end].FacingPoint
		route = append(route, t.Route[end+1:]...)
		if err := route.Check(c.Track); err != nil {
			zap.S().Debugw("alternative does not join route", "train", id, "registry", registry, "path", pi, "err", err)
			continue
		}
		c.release(t, t.Route[start+1:end+1])
		t.Route = route
		zap.S().Infow("train took alternative path", "train", id, "registry", registry, "path", p.Name, "useful", p.UsefulLength)
		return pi, nil
	}
	return -1, nil
}

func (c *Context) clearFor(p *deadlock.Path, train int) bool {
	for _, e := range p.Route {
		if !c.Track.IsClearFor(e.SectionIndex, train) {
			return false
		}
	}
	return true
}
