// Package sim holds everything one simulation needs and advances it one tick at a time.
package sim

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/authority"
	"nyiyui.ca/hato/shingo/deadlock"
	"nyiyui.ca/hato/shingo/signal"
	"nyiyui.ca/hato/shingo/track"
)

var ErrInvalidTrain = errors.New("invalid train")

// Train is the simulation's view of a train. Movement itself is driven from outside.
type Train struct {
	ID        int
	Position  track.Position
	Direction track.Direction
	// Speed in m/s.
	Speed  float32
	CallOn bool
	// Route is the route ahead; Route[0] is the section holding the train's front.
	Route track.PartialPath
	// Reason is why reservation along Route last stopped, or authority.Unspecified.
	Reason    authority.Type
	Authority authority.State
	// SpeedLimit is the tightest speed post within Authority, recomputed every tick.
	SpeedLimit aspect.SpeedRestriction
}

type Options struct {
	Multiplayer bool
	// MaxAuthority clamps every train's authority. 0 means no clamp.
	MaxAuthority float32
}

// Context is the simulation state every entry point works on.
type Context struct {
	Track      *track.Network
	Signals    *signal.Network
	Trains     []*Train
	Registries []*deadlock.Registry

	opts  Options
	ticks int64
}

// New wraps a track and signal network. Build must be called before the first tick.
func New(y *track.Network, signals *signal.Network, opts Options) *Context {
	return &Context{
		Track:   y,
		Signals: signals,
		opts:    opts,
	}
}

// Build builds the signal network with c as its world.
func (c *Context) Build() error {
	return c.Signals.Build(c)
}

func (c *Context) Multiplayer() bool {
	return c.opts.Multiplayer
}

// Ticks is the number of ticks run so far.
func (c *Context) Ticks() int64 {
	return c.ticks
}

func (c *Context) Index() *track.SectionIndex {
	return c.Signals.Index()
}

// Train implements signal.World.
func (c *Context) Train(id int) (signal.TrainState, bool) {
	t, err := c.train(id)
	if err != nil {
		return signal.TrainState{}, false
	}
	return signal.TrainState{
		Position:  t.Position,
		Direction: t.Direction,
		Speed:     t.Speed,
		CallOn:    t.CallOn,
		Route:     t.Route,
	}, true
}

func (c *Context) train(id int) (*Train, error) {
	for _, t := range c.Trains {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidTrain, id)
}

// AddTrain places a train with an empty route and occupies its front section.
func (c *Context) AddTrain(id int, pos track.Position, dir track.Direction) (*Train, error) {
	if id < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrain, id)
	}
	if _, err := c.train(id); err == nil {
		return nil, fmt.Errorf("%w: %d already exists", ErrInvalidTrain, id)
	}
	sec, err := c.Track.Section(pos.Section)
	if err != nil {
		return nil, fmt.Errorf("train %d: %w", id, err)
	}
	if pos.Offset < 0 || pos.Offset > sec.Length || !dir.Valid() {
		return nil, fmt.Errorf("%w: %d: bad position %s %s", ErrInvalidTrain, id, pos, dir)
	}
	if err := c.Track.Occupy(pos.Section, id); err != nil {
		return nil, err
	}
	t := &Train{
		ID:         id,
		Position:   pos,
		Direction:  dir,
		Route:      track.PartialPath{track.NewElement(pos.Section, dir)},
		Reason:     authority.Unspecified,
		Authority:  authority.None,
		SpeedLimit: aspect.NoRestriction,
	}
	c.Trains = append(c.Trains, t)
	return t, nil
}

func (c *Context) AddRegistry(g *deadlock.Registry) {
	c.Registries = append(c.Registries, g)
}

func (c *Context) Registry(id int) (*deadlock.Registry, error) {
	for _, g := range c.Registries {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: no registry %d", deadlock.ErrInvalidPath, id)
}

// Tick advances the simulation: signals first, in node order, then every train's authority,
// so trains see this tick's aspects.
func (c *Context) Tick() error {
	if err := c.Signals.Update(c); err != nil {
		return fmt.Errorf("tick %d: %w", c.ticks, err)
	}
	for _, t := range c.Trains {
		st, err := authority.Compute(c.Track, authority.Input{
			Train:       t.ID,
			Position:    t.Position,
			Route:       t.Route,
			Reason:      t.Reason,
			MaxDistance: c.opts.MaxAuthority,
		})
		if err != nil {
			return fmt.Errorf("tick %d: %w", c.ticks, err)
		}
		if st != t.Authority {
			zap.S().Debugw("authority changed", "tick", c.ticks, "train", t.ID, "authority", st.String())
		}
		t.Authority = st
		c.updateSpeedLimit(t)
	}
	c.ticks++
	return nil
}

func (c *Context) updateSpeedLimit(t *Train) {
	t.SpeedLimit = aspect.NoRestriction
	if t.Authority.Distance > 0 {
		t.SpeedLimit = c.Signals.SpeedLimitAhead(t.Position, t.Direction, t.Authority.Distance)
	}
}
