// Package preset has hard-coded layouts for tests and demos.
package preset

import (
	"fmt"

	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/deadlock"
	"nyiyui.ca/hato/shingo/signal"
	"nyiyui.ca/hato/shingo/sim"
	"nyiyui.ca/hato/shingo/track"
)

type Options struct {
	Signal signal.Options
	Sim    sim.Options
}

// Layouts are the built simulations selectable by name.
var Layouts = map[string]func(*signal.Types, Options) (*sim.Context, error){
	"line":         InitLineSim,
	"passing-loop": InitPassingLoopSim,
}

// LineSpeed and TurnoutSpeed are the speed posts the presets place, in m/s.
var (
	LineSpeed    = aspect.SpeedRestriction{PassengerSpeed: 25, FreightSpeed: 20}
	TurnoutSpeed = aspect.SpeedRestriction{PassengerSpeed: 11, FreightSpeed: 8}
)

type section struct {
	kind   track.Kind
	length float32
	name   string
}

type link struct {
	a, b string
	dirB track.Direction
}

func build(sections []section, links []link) (*track.Network, error) {
	y := track.NewNetwork()
	for _, s := range sections {
		if _, err := y.AddSection(s.kind, s.length, s.name); err != nil {
			return nil, err
		}
	}
	for _, l := range links {
		if err := y.Connect(y.MustLookupIndex(l.a), track.Forward, y.MustLookupIndex(l.b), l.dirB); err != nil {
			return nil, fmt.Errorf("%s-%s: %w", l.a, l.b, err)
		}
	}
	return y, nil
}

// InitLine is n sections of length joined end to end, named 0..n-1.
func InitLine(n int, length float32) (*track.Network, error) {
	sections := make([]section, n)
	links := make([]link, 0, n)
	for i := range sections {
		sections[i] = section{track.KindNormal, length, fmt.Sprint(i)}
		if i > 0 {
			links = append(links, link{fmt.Sprint(i - 1), fmt.Sprint(i), track.Forward})
		}
	}
	return build(sections, links)
}

// InitLineSim is a six-block line with a home signal and a distant signal per block,
// a milepost at the start of every block and a line speed post halfway along block 3.
func InitLineSim(types *signal.Types, o Options) (*sim.Context, error) {
	const blocks = 6
	y, err := InitLine(blocks, 1000)
	if err != nil {
		return nil, err
	}
	s := signal.NewNetwork(y, types, o.Signal)
	for i := 0; i < blocks; i++ {
		if err := place(s, track.Position{Section: i, Offset: 950}, track.Forward, "home"); err != nil {
			return nil, err
		}
		if i+1 < blocks {
			if err := place(s, track.Position{Section: i, Offset: 300}, track.Forward, "distant"); err != nil {
				return nil, err
			}
		}
	}
	for i := 0; i < blocks; i++ {
		if err := s.AddMilepost(track.Position{Section: i}, float32(i)); err != nil {
			return nil, err
		}
	}
	if err := s.AddSpeedPost(track.Position{Section: 3, Offset: 500}, track.Forward, LineSpeed); err != nil {
		return nil, err
	}
	c := sim.New(y, s, o.Sim)
	if err := c.Build(); err != nil {
		return nil, err
	}
	return c, nil
}

func place(s *signal.Network, pos track.Position, dir track.Direction, types ...string) error {
	n, err := s.AddNode(pos, dir)
	if err != nil {
		return err
	}
	for _, typ := range types {
		if _, err := s.AddHead(n, typ); err != nil {
			return err
		}
	}
	return nil
}

// InitPassingLoop is a single line with a two-platform passing loop:
//
//	west ─ wp ┬ main ┬ ep ─ east
//	          └ loop ┘
//
// Forward is eastbound.
func InitPassingLoop() (*track.Network, error) {
	y, err := build([]section{
		{track.KindNormal, 800, "west"},
		{track.KindJunction, 40, "wp"},
		{track.KindNormal, 300, "main"},
		{track.KindNormal, 320, "loop"},
		{track.KindJunction, 40, "ep"},
		{track.KindNormal, 800, "east"},
	}, []link{
		{"west", "wp", track.Forward},
		{"wp", "main", track.Forward},
		{"wp", "loop", track.Forward},
		{"main", "ep", track.Forward},
		{"loop", "ep", track.Forward},
		{"ep", "east", track.Forward},
	})
	if err != nil {
		return nil, err
	}
	main, loop := y.MustLookupIndex("main"), y.MustLookupIndex("loop")
	for _, p := range []struct {
		name    string
		section int
	}{{"1", main}, {"2", loop}} {
		pr := track.NewPlatform(p.name, []int{p.section}, 200)
		pr.MinWaitingTime = 30
		pr.Side = track.SideLeft
		if _, err := y.AddPlatform(pr); err != nil {
			return nil, err
		}
	}
	_, err = y.AddCrossOver(
		track.Endpoint{Position: 150, SectionIndex: main, ItemIndex: 0},
		track.Endpoint{Position: 160, SectionIndex: loop, ItemIndex: 1},
		7,
	)
	if err != nil {
		return nil, err
	}
	return y, nil
}

// InitPassingLoopSim signals the passing loop in both directions and registers the loop's paths.
func InitPassingLoopSim(types *signal.Types, o Options) (*sim.Context, error) {
	y, err := InitPassingLoop()
	if err != nil {
		return nil, err
	}
	s := signal.NewNetwork(y, types, o.Signal)
	idx := y.MustLookupIndex
	for _, p := range []struct {
		section string
		offset  float32
		dir     track.Direction
		types   []string
	}{
		{"west", 200, track.Forward, []string{"distant"}},
		{"west", 780, track.Forward, []string{"home"}},
		{"main", 290, track.Forward, []string{"starter"}},
		{"loop", 310, track.Forward, []string{"starter"}},
		{"east", 790, track.Forward, []string{"home"}},
		{"east", 600, track.Reverse, []string{"distant"}},
		{"east", 20, track.Reverse, []string{"home"}},
		{"main", 10, track.Reverse, []string{"starter"}},
		{"loop", 10, track.Reverse, []string{"starter"}},
		{"west", 10, track.Reverse, []string{"home"}},
	} {
		if err := place(s, track.Position{Section: idx(p.section), Offset: p.offset}, p.dir, p.types...); err != nil {
			return nil, fmt.Errorf("%s+%.0f: %w", p.section, p.offset, err)
		}
	}
	for _, sp := range []struct {
		section string
		offset  float32
		dir     track.Direction
		limit   aspect.SpeedRestriction
	}{
		{"loop", 10, track.Forward, TurnoutSpeed},
		{"loop", 310, track.Reverse, TurnoutSpeed},
		{"east", 400, track.Forward, LineSpeed},
		{"west", 400, track.Reverse, LineSpeed},
	} {
		if err := s.AddSpeedPost(track.Position{Section: idx(sp.section), Offset: sp.offset}, sp.dir, sp.limit); err != nil {
			return nil, fmt.Errorf("speed post %s+%.0f: %w", sp.section, sp.offset, err)
		}
	}
	// kilometres from the west end
	if err := s.AddMilepost(track.Position{Section: idx("west")}, 10); err != nil {
		return nil, err
	}
	if err := s.AddMilepost(track.Position{Section: idx("east")}, 11.18); err != nil {
		return nil, err
	}
	for i := range y.Platforms {
		pr := &y.Platforms[i]
		sec := pr.Sections[0]
		for _, n := range s.Nodes {
			if n.Position.Section != sec {
				continue
			}
			distance := n.Position.Offset
			if n.Direction == track.Forward {
				distance = y.Sections[sec].Length - n.Position.Offset
			}
			if err := pr.SetEndSignal(n.Direction, n.Index, distance); err != nil {
				return nil, err
			}
		}
	}
	c := sim.New(y, s, o.Sim)
	if err := c.Build(); err != nil {
		return nil, err
	}
	east := deadlock.NewRegistry(0)
	if _, err := east.Discover(y, idx("wp"), track.Forward, idx("ep"), 4); err != nil {
		return nil, err
	}
	west := deadlock.NewRegistry(1)
	if _, err := west.Discover(y, idx("ep"), track.Reverse, idx("wp"), 4); err != nil {
		return nil, err
	}
	for _, g := range []*deadlock.Registry{east, west} {
		for i := range g.Paths {
			if err := g.AddGroup(i, "passing-loop"); err != nil {
				return nil, err
			}
		}
		c.AddRegistry(g)
	}
	return c, nil
}
