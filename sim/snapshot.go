package sim

import (
	"github.com/brunoga/deep"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/authority"
	"nyiyui.ca/hato/shingo/track"
)

// Snapshot is a copy of the simulation state for observers. It shares nothing with the Context.
type Snapshot struct {
	Tick     int64             `json:"tick"`
	Sections []SectionSnapshot `json:"sections"`
	Nodes    []NodeSnapshot    `json:"nodes"`
	Trains   []TrainSnapshot   `json:"trains"`
}

type SectionSnapshot struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Selected   int    `json:"selected"`
	ReservedBy int    `json:"reserved-by"`
	OccupiedBy []int  `json:"occupied-by"`
}

type NodeSnapshot struct {
	Index        int            `json:"index"`
	Position     track.Position `json:"position"`
	Direction    string         `json:"direction"`
	Enabled      bool           `json:"enabled"`
	Block        string         `json:"block"`
	EnabledTrain int            `json:"enabled-train"`
	Locals       map[int]int    `json:"locals"`
	Heads        []HeadSnapshot `json:"heads"`
}

type HeadSnapshot struct {
	Type      string                  `json:"type"`
	Function  string                  `json:"function"`
	Aspect    aspect.Aspect           `json:"aspect"`
	DrawState int                     `json:"draw-state"`
	Speed     aspect.SpeedRestriction `json:"speed"`
}

type TrainSnapshot struct {
	ID         int                     `json:"id"`
	Position   track.Position          `json:"position"`
	Direction  string                  `json:"direction"`
	Speed      float32                 `json:"speed"`
	Route      []int                   `json:"route"`
	Authority  authority.State         `json:"authority"`
	SpeedLimit aspect.SpeedRestriction `json:"speed-limit"`
	// Milepost is the last milepost passed on the front's section, if it has any.
	Milepost *float32 `json:"milepost,omitempty"`
}

// Head returns the aspect of head hi of node i, or Unknown.
func (s Snapshot) Head(i, hi int) aspect.Aspect {
	if i < 0 || i >= len(s.Nodes) || hi < 0 || hi >= len(s.Nodes[i].Heads) {
		return aspect.Unknown
	}
	return s.Nodes[i].Heads[hi].Aspect
}

// Snapshot copies the current state. It must only be called between ticks.
func (c *Context) Snapshot() Snapshot {
	s := Snapshot{Tick: c.ticks}
	for i := range c.Track.Sections {
		sec := &c.Track.Sections[i]
		s.Sections = append(s.Sections, SectionSnapshot{
			Index:      sec.Index,
			Name:       sec.Name,
			Selected:   sec.Selected,
			ReservedBy: sec.ReservedBy,
			OccupiedBy: sec.OccupiedBy,
		})
	}
	fns := c.Signals.Types.Functions()
	for _, n := range c.Signals.Nodes {
		ns := NodeSnapshot{
			Index:        n.Index,
			Position:     n.Position,
			Direction:    n.Direction.String(),
			Enabled:      n.Enabled,
			Block:        n.Block.String(),
			EnabledTrain: n.EnabledTrain,
			Locals:       n.Locals,
		}
		for _, h := range n.Heads {
			ns.Heads = append(ns.Heads, HeadSnapshot{
				Type:      h.Type().Name,
				Function:  fns.Name(h.Function),
				Aspect:    h.Aspect,
				DrawState: h.DrawState,
				Speed:     h.SpeedRestriction(),
			})
		}
		s.Nodes = append(s.Nodes, ns)
	}
	for _, t := range c.Trains {
		ts := TrainSnapshot{
			ID:         t.ID,
			Position:   t.Position,
			Direction:  t.Direction.String(),
			Speed:      t.Speed,
			Authority:  t.Authority,
			SpeedLimit: t.SpeedLimit,
		}
		if x := c.Index(); x != nil {
			if v, ok := x.MilepostAt(t.Position.Section, t.Position.Offset); ok {
				ts.Milepost = &v
			}
		}
		for _, e := range t.Route {
			ts.Route = append(ts.Route, e.SectionIndex)
		}
		s.Trains = append(s.Trains, ts)
	}
	// sections and nodes still share their slices and maps
	return deep.MustCopy(s)
}
