package signal

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/binfmt"
	"nyiyui.ca/hato/shingo/track"
)

type world struct {
	multiplayer bool
	trains      map[int]TrainState
}

func (w *world) Multiplayer() bool {
	return w.multiplayer
}

func (w *world) Train(id int) (TrainState, bool) {
	t, ok := w.trains[id]
	return t, ok
}

// initLine returns n sections s0..s(n-1) of 1000 m joined end to end.
func initLine(t *testing.T, n int) *track.Network {
	t.Helper()
	y := track.NewNetwork()
	for i := 0; i < n; i++ {
		if _, err := y.AddSection(track.KindNormal, 1000, fmt.Sprintf("s%d", i)); err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if err := y.Connect(i-1, track.Forward, i, track.Forward); err != nil {
				t.Fatal(err)
			}
		}
	}
	return y
}

func initTypes(t *testing.T) *Types {
	t.Helper()
	fns, err := NewFunctions()
	if err != nil {
		t.Fatal(err)
	}
	ts := NewTypes(fns)
	home := DefaultType("home", Normal)
	home.Aspects = []AspectDef{
		{Aspect: aspect.Clear2, DrawState: 3, Speed: aspect.NoRestriction},
		{Aspect: aspect.Stop, DrawState: 0, Speed: aspect.SpeedRestriction{PassengerSpeed: 0, FreightSpeed: 0}},
		{Aspect: aspect.Approach1, DrawState: 1, Speed: aspect.SpeedRestriction{PassengerSpeed: 11, FreightSpeed: 8}},
		{Aspect: aspect.Approach2, DrawState: 2, Speed: aspect.SpeedRestriction{PassengerSpeed: 22, FreightSpeed: 16}},
	}
	dist := DefaultType("dist", Distance)
	dist.Script = "distant"
	ac := DefaultType("ac", Normal)
	ac.Script = "approach-controlled"
	ac.ApproachLimitPosition = 200
	bogus := DefaultType("bogus", Normal)
	bogus.Script = "no-such-script"
	for _, typ := range []*Type{home, DefaultType("three", Normal), dist, ac, bogus} {
		if _, err := ts.Add(typ); err != nil {
			t.Fatal(err)
		}
	}
	return ts
}

type nodeSpec struct {
	section int
	offset  float32
	dir     track.Direction
	types   []string
}

func initNetwork(t *testing.T, y *track.Network, w World, nodes []nodeSpec) *Network {
	t.Helper()
	s := NewNetwork(y, initTypes(t), Options{MessageRounds: 2})
	for _, ns := range nodes {
		i, err := s.AddNode(track.Position{Section: ns.section, Offset: ns.offset}, ns.dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, typ := range ns.types {
			if _, err := s.AddHead(i, typ); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := s.Build(w); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNextSignalInvalidation(t *testing.T) {
	y := initLine(t, 4)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 900, track.Forward, []string{"home"}},
		{2, 900, track.Forward, []string{"home"}},
	})
	const a, b, c = 0, 1, 2
	if got := s.NextSignal(a, Normal); got != b {
		t.Fatalf("expected %d, got %d", b, got)
	}
	if _, ok := s.Nodes[a].found[searchKey{set: SetOf(Normal)}]; !ok {
		t.Fatal("search not cached")
	}
	if err := s.SetEnabled(b, false); err != nil {
		t.Fatal(err)
	}
	if len(s.Nodes[a].found) != 0 {
		t.Fatalf("cache not invalidated: %v", s.Nodes[a].found)
	}
	if got := s.NextSignal(a, Normal); got != c {
		t.Fatalf("expected %d, got %d", c, got)
	}
	if err := s.SetEnabled(c, false); err != nil {
		t.Fatal(err)
	}
	if got := s.NextSignal(a, Normal); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := s.NextSignalAspect(a, Normal, true); got != aspect.Stop {
		t.Fatalf("expected stop, got %s", got)
	}
	if err := s.SetEnabled(b, true); err != nil {
		t.Fatal(err)
	}
	if got := s.NextSignal(a, Normal); got != b {
		t.Fatalf("re-enabled: expected %d, got %d", b, got)
	}
}

func TestNoDownstreamSignal(t *testing.T) {
	y := initLine(t, 3)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 100, track.Forward, []string{"home"}},
	})
	s.Nodes[0].Heads[0].SetAspect(aspect.Clear2)
	s.Nodes[1].Heads[0].SetAspect(aspect.Clear2)
	for _, fn := range []Function{Normal, Distance, Speed} {
		if got := s.NextSignalAspect(1, fn, false); got != aspect.Stop {
			t.Fatalf("%d: expected stop, got %s", fn, got)
		}
	}
	// signals behind the node are never found
	if got := s.NextSignal(1, Normal); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
	if got := s.NextSignalAspect(99, Normal, true); got != aspect.Stop {
		t.Fatalf("invalid node: expected stop, got %s", got)
	}
}

func TestNextSignalFollowsJunction(t *testing.T) {
	y := track.NewNetwork()
	approach, _ := y.AddSection(track.KindNormal, 500, "approach")
	points, _ := y.AddSection(track.KindJunction, 50, "points")
	main, _ := y.AddSection(track.KindNormal, 400, "main")
	loop, _ := y.AddSection(track.KindNormal, 400, "loop")
	for _, c := range [][2]int{{approach, points}, {points, main}, {points, loop}} {
		if err := y.Connect(c[0], track.Forward, c[1], track.Forward); err != nil {
			t.Fatal(err)
		}
	}
	s := initNetwork(t, y, nil, []nodeSpec{
		{approach, 450, track.Forward, []string{"home"}},
		{main, 350, track.Forward, []string{"home"}},
		{loop, 350, track.Forward, []string{"home"}},
	})
	if got := s.NextSignal(0, Normal); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if err := y.SetJunction(points, 1); err != nil {
		t.Fatal(err)
	}
	if got := s.NextSignal(0, Normal); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if err := y.SetJunction(points, -1); err != nil {
		t.Fatal(err)
	}
	if got := s.NextSignal(0, Normal); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}

	w := &world{multiplayer: true}
	if err := s.LinkJunction(0, 0, points, 1); err != nil {
		t.Fatal(err)
	}
	e := s.env(w, s.Nodes[0], s.Nodes[0].Heads[0])
	if e.VerifyRouteSet() {
		t.Fatal("route unset but verified")
	}
	if err := y.SetJunction(points, 1); err != nil {
		t.Fatal(err)
	}
	if !e.VerifyRouteSet() {
		t.Fatal("route set but not verified")
	}
	if err := y.SetJunction(points, 0); err != nil {
		t.Fatal(err)
	}
	if e.VerifyRouteSet() {
		t.Fatal("route set to the other pin but verified")
	}
	if err := s.LinkJunction(0, 0, main, 0); !errors.Is(err, track.ErrNotJunction) {
		t.Fatalf("expected ErrNotJunction, got %v", err)
	}

	// unlinked heads only check the junction in multiplayer sessions
	s.Nodes[0].Heads[0].Junction = -1
	if err := y.SetJunction(points, -1); err != nil {
		t.Fatal(err)
	}
	if e.VerifyRouteSet() {
		t.Fatal("multiplayer: unset junction verified")
	}
	w.multiplayer = false
	if !e.VerifyRouteSet() {
		t.Fatal("single player: expected set")
	}
}

func TestRangeAspect(t *testing.T) {
	y := initLine(t, 5)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 900, track.Forward, []string{"home"}},
		{2, 900, track.Forward, []string{"home"}},
		{3, 900, track.Forward, []string{"dist"}},
		{4, 100, track.Forward, []string{"home", "dist"}},
	})
	set := func(node int, a aspect.Aspect) {
		s.Nodes[node].Heads[0].SetAspect(a)
	}
	set(1, aspect.Approach1)
	set(2, aspect.Clear2)
	set(4, aspect.Stop)

	for _, c := range []struct {
		node     int
		agg      aspect.Aggregation
		expected aspect.Aspect
	}{
		{0, aspect.MostRestrictive, aspect.Approach1},
		{0, aspect.LeastRestrictive, aspect.Clear2},
		{1, aspect.MostRestrictive, aspect.Clear2},
		// the end node has both functions, so its NORMAL aspect is included
		{3, aspect.MostRestrictive, aspect.Stop},
		{3, aspect.LeastRestrictive, aspect.Stop},
		// nothing at all ahead
		{4, aspect.MostRestrictive, aspect.Clear2},
	} {
		t.Run(fmt.Sprintf("%d-%s", c.node, c.agg), func(t *testing.T) {
			if got := s.RangeAspect(c.node, Normal, Distance, c.agg); got != c.expected {
				t.Fatalf("expected %s, got %s", c.expected, got)
			}
		})
	}

	// without an end marker, anything collected gives stop
	if err := s.SetEnabled(3, false); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEnabled(4, false); err != nil {
		t.Fatal(err)
	}
	if got := s.RangeAspect(0, Normal, Distance, aspect.LeastRestrictive); got != aspect.Stop {
		t.Fatalf("no end marker: expected stop, got %s", got)
	}
	// the walk refreshed the intermediate caches
	if _, ok := s.Nodes[1].found[searchKey{set: SetOf(Normal, Distance)}]; !ok {
		t.Fatal("intermediate node cache not filled")
	}
}

func TestRangeAspectNeverLessRestrictive(t *testing.T) {
	y := initLine(t, 5)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 900, track.Forward, []string{"home"}},
		{2, 900, track.Forward, []string{"home"}},
		{3, 900, track.Forward, []string{"home"}},
		{4, 900, track.Forward, []string{"dist"}},
	})
	displayable := []aspect.Aspect{aspect.Stop, aspect.Approach1, aspect.Approach2, aspect.Clear2}
	for i := 0; i < 64; i++ {
		lowest := aspect.Clear2
		for j, node := range []int{1, 2, 3} {
			a := displayable[(i>>(2*j))%len(displayable)]
			s.Nodes[node].Heads[0].SetAspect(a)
			if a < lowest {
				lowest = a
			}
		}
		if got := s.RangeAspect(0, Normal, Distance, aspect.MostRestrictive); got > lowest {
			t.Fatalf("case %d: got %s, less restrictive than %s", i, got, lowest)
		}
	}
}

func TestOppositeSignalAspect(t *testing.T) {
	y := initLine(t, 3)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{2, 100, track.Reverse, []string{"home"}},
		{1, 500, track.Reverse, []string{"dist"}},
	})
	s.Nodes[1].Heads[0].SetAspect(aspect.Approach2)
	if got := s.OppositeSignalAspect(0, Normal); got != aspect.Approach2 {
		t.Fatalf("expected approach2, got %s", got)
	}
	if got := s.NextSignal(0, Normal); got != -1 {
		t.Fatalf("opposite signal found by forward search: %d", got)
	}
	if got := s.OppositeSignalAspect(0, Shunting); got != aspect.Stop {
		t.Fatalf("expected stop, got %s", got)
	}
}

func TestSetAspectSnaps(t *testing.T) {
	y := initLine(t, 1)
	s := initNetwork(t, y, nil, []nodeSpec{{0, 0, track.Forward, []string{"three"}}})
	h := s.Nodes[0].Heads[0]
	for _, c := range []struct{ req, expected aspect.Aspect }{
		{aspect.Stop, aspect.Stop},
		{aspect.Restricting, aspect.Stop},
		{aspect.Approach2, aspect.Approach1},
		{aspect.Clear1, aspect.Approach1},
		{aspect.Clear2, aspect.Clear2},
	} {
		h.SetAspect(c.req)
		if h.Aspect != c.expected {
			t.Fatalf("SetAspect(%s): expected %s, got %s", c.req, c.expected, h.Aspect)
		}
		if !h.Type().Displays(h.Aspect) {
			t.Fatalf("showing undisplayable %s", h.Aspect)
		}
	}
	h.typ = &Type{Name: "x", Aspects: []AspectDef{{Aspect: aspect.Approach1, DrawState: 5}}}
	h.SetAspect(aspect.Stop)
	if h.Aspect != aspect.Approach1 || h.DrawState != 5 {
		t.Fatalf("expected the most restrictive displayable aspect, got %s/%d", h.Aspect, h.DrawState)
	}
}

func TestConfigurationGap(t *testing.T) {
	y := initLine(t, 2)
	s := NewNetwork(y, initTypes(t), Options{})
	n, err := s.AddNode(track.Position{Section: 0, Offset: 10}, track.Forward)
	if err != nil {
		t.Fatal(err)
	}
	before := s.Types.Len()
	h, err := s.AddHead(n, "undefined")
	if err != nil {
		t.Fatalf("undefined type must not fail: %s", err)
	}
	if h.Type().Name != "undefined" || h.Function != Normal || s.Types.Len() != before+1 {
		t.Fatalf("unexpected fallback %#v", h.Type())
	}
	if _, ok := h.script.(*stopSignal); !ok {
		t.Fatalf("unexpected script %T", h.script)
	}
	h, err = s.AddHead(n, "bogus")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := h.script.(*stopSignal); !ok {
		t.Fatalf("unknown script: unexpected %T", h.script)
	}
	if _, err := s.AddHead(5, "home"); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode, got %v", err)
	}
	if err := s.Build(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddNode(track.Position{Section: 1}, track.Forward); !errors.Is(err, ErrBuilt) {
		t.Fatalf("expected ErrBuilt, got %v", err)
	}
}

func TestSpeedRestriction(t *testing.T) {
	y := initLine(t, 1)
	s := initNetwork(t, y, nil, []nodeSpec{{0, 0, track.Forward, []string{"home"}}})
	n := s.Nodes[0]
	n.Heads[0].SetAspect(aspect.Approach1)
	expected := aspect.SpeedRestriction{PassengerSpeed: 11, FreightSpeed: 8}
	if got := n.SpeedRestriction(Normal); !cmp.Equal(got, expected) {
		t.Fatalf("diff: %s", cmp.Diff(expected, got))
	}
	if got := n.SpeedRestriction(Speed); got != aspect.NoRestriction {
		t.Fatalf("expected no restriction, got %s", got)
	}
	for _, a := range []aspect.Aspect{aspect.Stop, aspect.Approach1, aspect.Approach2, aspect.Clear2} {
		if _, ok := n.Heads[0].Speeds[a]; !ok {
			t.Fatalf("speed table missing %s", a)
		}
	}
}

func TestUpdate(t *testing.T) {
	y := initLine(t, 4)
	w := &world{trains: map[int]TrainState{}}
	s := initNetwork(t, y, w, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 900, track.Forward, []string{"home"}},
		{2, 900, track.Forward, []string{"home", "dist"}},
	})
	aspects := func() []aspect.Aspect {
		var res []aspect.Aspect
		for _, n := range s.Nodes {
			for _, h := range n.Heads {
				res = append(res, h.Aspect)
			}
		}
		return res
	}
	tick := func() {
		t.Helper()
		if err := s.Update(w); err != nil {
			t.Fatal(err)
		}
	}

	tick()
	if got := aspects(); !cmp.Equal(got, []aspect.Aspect{aspect.Stop, aspect.Stop, aspect.Stop, aspect.Approach1}) {
		t.Fatalf("no route: %v", got)
	}
	for i := range y.Sections {
		if err := y.Reserve(i, 1); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		tick()
	}
	expected := []aspect.Aspect{aspect.Clear2, aspect.Approach2, aspect.Approach1, aspect.Approach1}
	if got := aspects(); !cmp.Equal(got, expected) {
		t.Fatalf("route set: %s", cmp.Diff(expected, got))
	}
	if s.Nodes[0].Block != BlockReserved || s.Nodes[0].EnabledTrain != 1 {
		t.Fatalf("block %s, train %d", s.Nodes[0].Block, s.Nodes[0].EnabledTrain)
	}

	if err := y.Occupy(1, 2); err != nil {
		t.Fatal(err)
	}
	tick()
	if s.Nodes[0].Block != BlockObstructed || s.Nodes[0].Heads[0].Aspect != aspect.Stop {
		t.Fatalf("obstructed: block %s, aspect %s", s.Nodes[0].Block, s.Nodes[0].Heads[0].Aspect)
	}
	w.trains[1] = TrainState{CallOn: true}
	tick()
	if got := s.Nodes[0].Heads[0].Aspect; got != aspect.Stop {
		// home cannot display stop-and-proceed, so it snaps to stop
		t.Fatalf("call-on: expected stop, got %s", got)
	}
}

func TestApproachControl(t *testing.T) {
	y := initLine(t, 3)
	w := &world{trains: map[int]TrainState{}}
	s := initNetwork(t, y, w, []nodeSpec{
		{0, 900, track.Forward, []string{"ac"}},
	})
	for i := range y.Sections {
		if err := y.Reserve(i, 1); err != nil {
			t.Fatal(err)
		}
	}
	w.trains[1] = TrainState{Position: track.Position{Section: 0, Offset: 100}, Direction: track.Forward, Speed: 20}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if got := s.Nodes[0].Heads[0].Aspect; got != aspect.Stop {
		t.Fatalf("train far away: expected stop, got %s", got)
	}
	w.trains[1] = TrainState{Position: track.Position{Section: 0, Offset: 750}, Direction: track.Forward, Speed: 5}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if got := s.Nodes[0].Heads[0].Aspect; got != aspect.Approach1 {
		t.Fatalf("train close: expected approach1, got %s", got)
	}
	if s.Nodes[0].Locals[LocalReleased] != 1 {
		t.Fatal("release not recorded")
	}
}

func TestMessages(t *testing.T) {
	y := initLine(t, 3)
	w := &world{trains: map[int]TrainState{}}
	s := initNetwork(t, y, w, []nodeSpec{
		{0, 900, track.Forward, []string{"three"}},
		{1, 900, track.Forward, []string{"three"}},
	})
	for i := range y.Sections {
		if err := y.Reserve(i, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if got := s.Nodes[0].Heads[0].Aspect; got != aspect.Approach1 {
		t.Fatalf("expected approach1, got %s", got)
	}
	e := s.env(w, s.Nodes[1], s.Nodes[1].Heads[0])
	if err := e.SendMessage(0, MessageHold); err != nil {
		t.Fatal(err)
	}
	if err := e.SendMessage(7, MessageHold); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode, got %v", err)
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if s.Nodes[0].Locals[LocalHold] != 1 || s.Nodes[0].Heads[0].Aspect != aspect.Stop {
		t.Fatalf("hold not applied: %v %s", s.Nodes[0].Locals, s.Nodes[0].Heads[0].Aspect)
	}
	if got := e.RemoteLocal(0, LocalHold); got != 1 {
		t.Fatalf("remote local: %d", got)
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if s.Nodes[0].Heads[0].Aspect != aspect.Stop {
		t.Fatal("hold released by update")
	}
	if err := e.SendMessage(0, MessageRelease); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if got := s.Nodes[0].Heads[0].Aspect; got == aspect.Stop {
		t.Fatal("still held after release")
	}
}

func TestSaveRestore(t *testing.T) {
	y := initLine(t, 3)
	s := initNetwork(t, y, nil, []nodeSpec{
		{0, 900, track.Forward, []string{"home", "dist"}},
		{1, 900, track.Forward, []string{"three"}},
	})
	s.Nodes[0].Heads[0].SetAspect(aspect.Approach2)
	s.Nodes[0].Heads[1].SetAspect(aspect.Clear2)
	s.Nodes[0].Locals[3] = -4
	s.Nodes[0].Locals[1] = 9
	if err := s.SetEnabled(1, false); err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	bw := binfmt.NewWriter(buf)
	s.Save(bw)
	if bw.Err() != nil {
		t.Fatal(bw.Err())
	}
	saved := buf.Bytes()

	type headView struct {
		Aspect    aspect.Aspect
		DrawState int
	}
	type nodeView struct {
		Enabled bool
		Locals  map[int]int
		Heads   []headView
	}
	view := func() []nodeView {
		var res []nodeView
		for _, n := range s.Nodes {
			v := nodeView{Enabled: n.Enabled, Locals: map[int]int{}}
			for k, val := range n.Locals {
				v.Locals[k] = val
			}
			for _, h := range n.Heads {
				v.Heads = append(v.Heads, headView{h.Aspect, h.DrawState})
			}
			res = append(res, v)
		}
		return res
	}
	expected := view()

	s.Nodes[0].Heads[0].SetAspect(aspect.Stop)
	s.Nodes[0].Locals = map[int]int{}
	s.Nodes[1].Enabled = true
	if err := s.Restore(binfmt.NewReader(saved[:len(saved)-3])); !errors.Is(err, binfmt.ErrDecode) {
		t.Fatalf("truncated: expected ErrDecode, got %v", err)
	}
	if s.Nodes[1].Enabled != true {
		t.Fatal("failed restore changed state")
	}
	r := binfmt.NewReader(saved)
	if err := s.Restore(r); err != nil {
		t.Fatal(err)
	}
	if err := r.Done(); err != nil {
		t.Fatal(err)
	}
	if got := view(); !cmp.Equal(got, expected) {
		t.Fatalf("diff: %s", cmp.Diff(expected, got))
	}
}

func TestTrainBehindNode(t *testing.T) {
	y := initLine(t, 3)
	w := &world{trains: map[int]TrainState{
		1: {Position: track.Position{Section: 0, Offset: 100}, Direction: track.Forward},
	}}
	s := initNetwork(t, y, w, []nodeSpec{
		{0, 900, track.Forward, []string{"home"}},
		{1, 900, track.Forward, []string{"home"}},
	})
	for i := range y.Sections {
		if err := y.Reserve(i, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := y.Occupy(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if s.Nodes[0].Block != BlockReserved {
		t.Fatalf("approaching train: block %s", s.Nodes[0].Block)
	}
	w.trains[1] = TrainState{Position: track.Position{Section: 0, Offset: 950}, Direction: track.Forward}
	if err := s.Update(w); err != nil {
		t.Fatal(err)
	}
	if s.Nodes[0].Block != BlockObstructed {
		t.Fatalf("passed train: block %s", s.Nodes[0].Block)
	}
}

func TestSpeedLimitAhead(t *testing.T) {
	y := initLine(t, 3)
	s := NewNetwork(y, initTypes(t), Options{})
	for _, sp := range []struct {
		pos   track.Position
		dir   track.Direction
		limit float32
	}{
		{track.Position{Section: 1, Offset: 200}, track.Forward, 25},
		{track.Position{Section: 2, Offset: 100}, track.Forward, 11},
		{track.Position{Section: 1, Offset: 500}, track.Reverse, 5},
	} {
		if err := s.AddSpeedPost(sp.pos, sp.dir, aspect.SpeedRestriction{PassengerSpeed: sp.limit, FreightSpeed: sp.limit}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddMilepost(track.Position{Section: 1, Offset: 0}, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSpeedPost(track.Position{Section: 1, Offset: 2000}, track.Forward, aspect.NoRestriction); err == nil {
		t.Fatal("expected offset outside the section to fail")
	}
	from := track.Position{Section: 0, Offset: 500}
	if got := s.SpeedLimitAhead(from, track.Forward, 0); got.Restricts() {
		t.Fatalf("before build: %s", got)
	}
	if err := s.Build(nil); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		maxDistance float32
		want        float32
	}{
		{0, 11},
		{1000, 25},
		{600, -1},
	} {
		if got := s.SpeedLimitAhead(from, track.Forward, tc.maxDistance).PassengerSpeed; got != tc.want {
			t.Fatalf("within %.0f: expected %.0f, got %.0f", tc.maxDistance, tc.want, got)
		}
	}
	if v, ok := s.Index().MilepostAt(1, 300); !ok || v != 1 {
		t.Fatalf("milepost: %.1f %t", v, ok)
	}
	if err := s.AddSpeedPost(from, track.Forward, aspect.NoRestriction); !errors.Is(err, ErrBuilt) {
		t.Fatalf("expected ErrBuilt, got %v", err)
	}
}
