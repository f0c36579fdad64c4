package sim

import (
	"errors"
	"fmt"
	"io"

	"nyiyui.ca/hato/shingo/authority"
	"nyiyui.ca/hato/shingo/binfmt"
	"nyiyui.ca/hato/shingo/deadlock"
	"nyiyui.ca/hato/shingo/track"
)

// Save writes [ticks int64][track state][signal state][trainCount][trains][registryCount][registries].
// A train is [id][section][offset f32][direction][speed f32][callOn byte][route][reason][authority].
// It must only be called between ticks.
func (c *Context) Save(out io.Writer) error {
	w := binfmt.NewWriter(out)
	w.Int64(c.ticks)
	c.Track.SaveState(w)
	c.Signals.Save(w)
	w.Int(len(c.Trains))
	for _, t := range c.Trains {
		w.Int(t.ID)
		w.Int(t.Position.Section)
		w.Float32(t.Position.Offset)
		w.Int(int(t.Direction))
		w.Float32(t.Speed)
		w.Bool(t.CallOn)
		t.Route.Save(w)
		w.Int(int(t.Reason))
		t.Authority.Save(w)
	}
	w.Int(len(c.Registries))
	for _, g := range c.Registries {
		g.Save(w)
	}
	return w.Err()
}

// Restore replaces the simulation state with what Save wrote, on the same track and signal layout.
// Nothing is changed unless the whole save decodes and fits.
func (c *Context) Restore(in io.Reader) error {
	r, err := binfmt.ReadAll(in)
	if err != nil {
		return err
	}
	ticks := r.Int64()
	if err := r.Err(); err != nil {
		return err
	}
	trackState, err := c.Track.DecodeState(r)
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	signalState, err := c.Signals.Decode(r)
	if err != nil {
		return fmt.Errorf("signals: %w", err)
	}
	trains, err := c.decodeTrains(r)
	if err != nil {
		return fmt.Errorf("trains: %w", err)
	}
	n := r.Count("registry")
	registries := make([]*deadlock.Registry, 0, min(n, r.Remaining()))
	ids := map[int]bool{}
	for i := 0; i < n && r.Err() == nil; i++ {
		g, err := deadlock.RestoreRegistry(r)
		if err != nil {
			return fmt.Errorf("registry %d: %w", i, err)
		}
		if ids[g.ID] {
			return fmt.Errorf("%w: duplicate registry %d", binfmt.ErrDecode, g.ID)
		}
		ids[g.ID] = true
		if err := g.Check(c.Track); err != nil {
			return fmt.Errorf("%w: %w", binfmt.ErrDecode, err)
		}
		registries = append(registries, g)
	}
	if err := r.Done(); err != nil {
		return err
	}
	c.Track.ApplyState(trackState)
	c.Signals.Apply(signalState)
	c.Trains = trains
	for _, t := range c.Trains {
		c.updateSpeedLimit(t)
	}
	c.Registries = registries
	c.ticks = ticks
	return nil
}

func (c *Context) decodeTrains(r *binfmt.Reader) ([]*Train, error) {
	n := r.Count("train")
	trains := make([]*Train, 0, min(n, r.Remaining()))
	ids := map[int]bool{}
	for i := 0; i < n && r.Err() == nil; i++ {
		t := &Train{
			ID:       r.Int(),
			Position: track.Position{Section: r.Int(), Offset: r.Float32()},
		}
		t.Direction = track.Direction(r.Int())
		t.Speed = r.Float32()
		t.CallOn = r.Bool()
		t.Route = track.RestorePartialPath(r)
		t.Reason = authority.Type(r.Int())
		st, err := authority.Restore(r)
		if err != nil {
			return nil, err
		}
		t.Authority = st
		if r.Err() != nil {
			break
		}
		if err := c.checkRestored(t, ids); err != nil {
			return nil, fmt.Errorf("%w: train %d: %w", binfmt.ErrDecode, t.ID, err)
		}
		ids[t.ID] = true
		trains = append(trains, t)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return trains, nil
}

// checkRestored applies the rules AddTrain and SetRoute enforce to a decoded train.
func (c *Context) checkRestored(t *Train, ids map[int]bool) error {
	if t.ID < 0 || ids[t.ID] {
		return errors.New("bad or duplicate id")
	}
	sec, err := c.Track.Section(t.Position.Section)
	if err != nil {
		return err
	}
	if t.Position.Offset < 0 || t.Position.Offset > sec.Length || !t.Direction.Valid() {
		return fmt.Errorf("bad position %s %s", t.Position, t.Direction)
	}
	if len(t.Route) == 0 || t.Route[0].SectionIndex != t.Position.Section || t.Route[0].Direction != t.Direction {
		return fmt.Errorf("route %s does not start at the front %s %s", t.Route, t.Position, t.Direction)
	}
	if err := t.Route.Check(c.Track); err != nil {
		return err
	}
	if t.Reason != authority.Unspecified && !t.Reason.Valid() {
		return fmt.Errorf("bad reason %d", int(t.Reason))
	}
	return nil
}
