// Package signal implements signal nodes, their heads and the aspect engine that drives them.
//
// All methods are meant to be called from a single simulation goroutine.
package signal

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/track"
)

var (
	ErrInvalidNode     = errors.New("invalid signal node")
	ErrInvalidHead     = errors.New("invalid signal head")
	ErrUnknownFunction = errors.New("unknown signal function")
	ErrInvalidType     = errors.New("invalid signal type")
	ErrBuilt           = errors.New("signal network already built")
	ErrNotBuilt        = errors.New("signal network not built")
)

// BlockState is the state of the track between a node and the next NORMAL signal.
type BlockState int

const (
	BlockClear BlockState = iota
	// BlockReserved means the block is free and reserved for the enabled train.
	BlockReserved
	BlockObstructed
	BlockJunctionUnset
)

func (b BlockState) String() string {
	switch b {
	case BlockClear:
		return "clear"
	case BlockReserved:
		return "reserved"
	case BlockObstructed:
		return "obstructed"
	case BlockJunctionUnset:
		return "junction-unset"
	default:
		return fmt.Sprintf("block(%d)", int(b))
	}
}

// TrainState is what the signal engine needs to know about a train.
type TrainState struct {
	Position  track.Position
	Direction track.Direction
	// Speed in m/s.
	Speed  float32
	CallOn bool
	// Route is the train's route ahead. It must not be modified.
	Route track.PartialPath
}

// World gives the engine access to state it does not own.
type World interface {
	Multiplayer() bool
	Train(id int) (TrainState, bool)
}

// Head is one physical signal head.
type Head struct {
	TypeID    int
	Function  Function
	Aspect    aspect.Aspect
	DrawState int
	// Speeds has an entry for every aspect the head's type can display.
	Speeds                aspect.Table
	ApproachLimitPosition float32
	ApproachLimitSpeed    float32
	// Junction is the junction section this head protects, or -1.
	Junction    int
	JunctionPin int

	typ    *Type
	script Script
}

func (h *Head) Type() *Type {
	return h.typ
}

// SetAspect shows the least restrictive displayable aspect that is no less restrictive than a.
// If a is more restrictive than anything displayable, the most restrictive aspect is shown.
func (h *Head) SetAspect(a aspect.Aspect) {
	def := h.typ.snap(a)
	h.Aspect = def.Aspect
	h.DrawState = def.DrawState
}

func (h *Head) SpeedRestriction() aspect.SpeedRestriction {
	return h.Speeds.Lookup(h.Aspect)
}

type searchKey struct {
	set      FunctionSet
	opposite bool
}

// Node is a signal object: a set of heads at one position, facing one direction of travel.
type Node struct {
	Index     int
	Position  track.Position
	Direction track.Direction
	Heads     []*Head
	Enabled   bool
	Locals    map[int]int
	// EnabledTrain is the train holding the section beyond the node, or track.NoTrain. Computed every tick.
	EnabledTrain int
	Block        BlockState

	// found caches forward searches: the node found, or -1.
	found map[searchKey]int
}

func (n *Node) HasFunction(fn Function) bool {
	for _, h := range n.Heads {
		if h.Function == fn {
			return true
		}
	}
	return false
}

func (n *Node) functions() FunctionSet {
	var s FunctionSet
	for _, h := range n.Heads {
		s |= SetOf(h.Function)
	}
	return s
}

// Aspect aggregates the aspects of the node's heads of function fn.
// A node without such heads shows Stop.
func (n *Node) Aspect(fn Function, agg aspect.Aggregation) aspect.Aspect {
	res := agg.Seed()
	found := false
	for _, h := range n.Heads {
		if h.Function == fn {
			res = agg.Combine(res, h.Aspect)
			found = true
		}
	}
	if !found {
		return aspect.Stop
	}
	return res
}

// SpeedRestriction returns the restriction of the first head of function fn at its current aspect.
func (n *Node) SpeedRestriction(fn Function) aspect.SpeedRestriction {
	for _, h := range n.Heads {
		if h.Function == fn {
			return h.SpeedRestriction()
		}
	}
	return aspect.NoRestriction
}

type Options struct {
	// MaxSearchDistance bounds every forward search. 0 means unbounded.
	MaxSearchDistance float32
	// MessageRounds is how many delivery rounds run each tick.
	MessageRounds int
}

// Network is the table of signal nodes laid on a track network.
type Network struct {
	Types *Types
	Nodes []*Node

	track      *track.Network
	index      *track.SectionIndex
	opts       Options
	dependents map[int]map[int]struct{}
	queue      []message
	speedPosts []speedPost
	mileposts  []milepost
}

type speedPost struct {
	section int
	dir     track.Direction
	item    track.SpeedPostItem
}

type milepost struct {
	section int
	item    track.MilepostItem
}

func NewNetwork(y *track.Network, types *Types, opts Options) *Network {
	if opts.MessageRounds <= 0 {
		opts.MessageRounds = 1
	}
	return &Network{
		Types:      types,
		track:      y,
		opts:       opts,
		dependents: map[int]map[int]struct{}{},
	}
}

func (s *Network) Track() *track.Network {
	return s.track
}

// Index returns the section index, or nil before Build.
func (s *Network) Index() *track.SectionIndex {
	return s.index
}

func (s *Network) Node(i int) (*Node, error) {
	if i < 0 || i >= len(s.Nodes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, i)
	}
	return s.Nodes[i], nil
}

// AddNode places an enabled node without heads.
func (s *Network) AddNode(pos track.Position, dir track.Direction) (int, error) {
	if err := s.checkPlace(pos, dir); err != nil {
		return -1, fmt.Errorf("node: %w", err)
	}
	i := len(s.Nodes)
	s.Nodes = append(s.Nodes, &Node{
		Index:        i,
		Position:     pos,
		Direction:    dir,
		Enabled:      true,
		Locals:       map[int]int{},
		EnabledTrain: track.NoTrain,
		found:        map[searchKey]int{},
	})
	return i, nil
}

func (s *Network) checkPlace(pos track.Position, dir track.Direction) error {
	if s.index != nil {
		return ErrBuilt
	}
	sec, err := s.track.Section(pos.Section)
	if err != nil {
		return err
	}
	if !dir.Valid() {
		return fmt.Errorf("invalid direction %d", int(dir))
	}
	if pos.Offset < 0 || pos.Offset > sec.Length {
		return fmt.Errorf("offset %.1f outside section %d (length %.1f)", pos.Offset, pos.Section, sec.Length)
	}
	return nil
}

// AddSpeedPost places a fixed speed restriction applying to trains travelling in dir.
func (s *Network) AddSpeedPost(pos track.Position, dir track.Direction, r aspect.SpeedRestriction) error {
	if err := s.checkPlace(pos, dir); err != nil {
		return fmt.Errorf("speed post: %w", err)
	}
	s.speedPosts = append(s.speedPosts, speedPost{pos.Section, dir, track.SpeedPostItem{Offset: pos.Offset, Restriction: r}})
	return nil
}

func (s *Network) AddMilepost(pos track.Position, value float32) error {
	if err := s.checkPlace(pos, track.Forward); err != nil {
		return fmt.Errorf("milepost: %w", err)
	}
	s.mileposts = append(s.mileposts, milepost{pos.Section, track.MilepostItem{Offset: pos.Offset, Value: value}})
	return nil
}

// SpeedLimitAhead is the tightest speed post within maxDistance ahead of pos, or aspect.NoRestriction.
func (s *Network) SpeedLimitAhead(pos track.Position, dir track.Direction, maxDistance float32) aspect.SpeedRestriction {
	res := aspect.NoRestriction
	if s.index == nil {
		return res
	}
	for _, sp := range s.track.SpeedPostsAhead(s.index, pos, dir, maxDistance) {
		res = res.Min(sp.Restriction)
	}
	return res
}

// AddHead adds a head of the named type to node.
// An undefined type or script is logged and replaced by the default.
func (s *Network) AddHead(node int, typeName string) (*Head, error) {
	if s.index != nil {
		return nil, ErrBuilt
	}
	n, err := s.Node(node)
	if err != nil {
		return nil, err
	}
	id := s.Types.resolve(typeName, node)
	typ := s.Types.list[id]
	script, ok := newScript(typ.Script)
	if !ok {
		zap.S().Warnw("unknown signal script, using default",
			"node", node,
			"type", typ.Name,
			"script", typ.Script,
		)
		script, _ = newScript(DefaultScript)
	}
	h := &Head{
		TypeID:                id,
		Function:              typ.Function,
		Speeds:                typ.SpeedTable(),
		ApproachLimitPosition: typ.ApproachLimitPosition,
		ApproachLimitSpeed:    typ.ApproachLimitSpeed,
		Junction:              -1,
		JunctionPin:           -1,
		typ:                   typ,
		script:                script,
	}
	h.SetAspect(aspect.Stop)
	n.Heads = append(n.Heads, h)
	return h, nil
}

// LinkJunction makes head hi of node protect junction set to pin.
func (s *Network) LinkJunction(node, hi, junction, pin int) error {
	n, err := s.Node(node)
	if err != nil {
		return err
	}
	if hi < 0 || hi >= len(n.Heads) {
		return fmt.Errorf("%w: node %d head %d", ErrInvalidHead, node, hi)
	}
	sec, err := s.track.Section(junction)
	if err != nil {
		return fmt.Errorf("node %d: %w", node, err)
	}
	facing, ok := sec.FacingDirection()
	if sec.Kind != track.KindJunction || !ok {
		return fmt.Errorf("node %d: %w: %d", node, track.ErrNotJunction, junction)
	}
	if pin < 0 || pin >= len(sec.Links[facing]) {
		return fmt.Errorf("node %d: junction %d has no pin %d", node, junction, pin)
	}
	n.Heads[hi].Junction = junction
	n.Heads[hi].JunctionPin = pin
	return nil
}

// Build indexes every node by section, direction and function, starts listening for route changes,
// and initializes each head's script. Nodes cannot be added afterwards.
func (s *Network) Build(w World) error {
	if s.index != nil {
		return ErrBuilt
	}
	x, err := track.NewSectionIndex(len(s.track.Sections), s.Types.fns.Len())
	if err != nil {
		return err
	}
	for _, n := range s.Nodes {
		var err error
		n.functions().Each(func(fn Function) {
			if err != nil {
				return
			}
			err = x.AddSignal(n.Position.Section, n.Direction, int(fn), track.SignalItem{Node: n.Index, Offset: n.Position.Offset})
		})
		if err != nil {
			return fmt.Errorf("node %d: %w", n.Index, err)
		}
	}
	for _, sp := range s.speedPosts {
		if err := x.AddSpeedPost(sp.section, sp.dir, sp.item); err != nil {
			return err
		}
	}
	for _, m := range s.mileposts {
		if err := x.AddMilepost(m.section, m.item); err != nil {
			return err
		}
	}
	x.Freeze()
	s.index = x
	s.track.OnRouteChange(s.routeChanged)
	for _, n := range s.Nodes {
		for _, h := range n.Heads {
			h.script.Initialize(s.env(w, n, h))
		}
	}
	zap.S().Debugw("signal network built", "nodes", len(s.Nodes), "functions", s.Types.fns.Len())
	return nil
}

// SetEnabled enables or disables a node. Disabled nodes are not updated and are skipped by searches.
func (s *Network) SetEnabled(node int, enabled bool) error {
	n, err := s.Node(node)
	if err != nil {
		return err
	}
	if n.Enabled == enabled {
		return nil
	}
	n.Enabled = enabled
	clear(n.found)
	s.routeChanged(n.Position.Section)
	return nil
}

func (s *Network) env(w World, n *Node, h *Head) *Env {
	return &Env{s: s, w: w, node: n, head: h}
}

// Update runs one tick: every enabled node in index order, then message delivery.
func (s *Network) Update(w World) error {
	if s.index == nil {
		return ErrNotBuilt
	}
	for _, n := range s.Nodes {
		if !n.Enabled {
			continue
		}
		s.computeBlock(w, n)
		for _, h := range n.Heads {
			h.script.Update(s.env(w, n, h))
		}
	}
	s.deliver(w)
	return nil
}

// computeBlock finds the enabled train and the state of the block ahead of n.
// A train in the node's own section counts only once its front has passed the node.
func (s *Network) computeBlock(w World, n *Node) {
	n.EnabledTrain = track.NoTrain
	n.Block = BlockClear
	entered := false
	end := s.track.Walk(n.Position, n.Direction, s.opts.MaxSearchDistance, func(st track.Step) bool {
		sec := &s.track.Sections[st.Section]
		if st.First && sec.Remaining(st.Entry, st.Direction) == 0 {
			return true
		}
		if !entered {
			entered = true
			if opposing(w, sec.ReservedBy, st) {
				n.Block = BlockObstructed
				return false
			}
			n.EnabledTrain = sec.ReservedBy
		}
		if s.occupiedAhead(w, n, st) || (sec.ReservedBy != track.NoTrain && sec.ReservedBy != n.EnabledTrain) {
			n.Block = BlockObstructed
			return false
		}
		// the block ends at the next NORMAL signal
		for _, it := range s.index.Signals(st.Section, st.Direction, int(Normal)) {
			if it.Node == n.Index || !s.Nodes[it.Node].Enabled {
				continue
			}
			if !st.First || track.Beyond(it.Offset, st.Entry, st.Direction) {
				return false
			}
		}
		return true
	})
	if n.Block == BlockObstructed {
		return
	}
	if end == track.EndJunctionUnset {
		n.Block = BlockJunctionUnset
		return
	}
	if n.EnabledTrain != track.NoTrain {
		n.Block = BlockReserved
	}
}

func (s *Network) occupiedAhead(w World, n *Node, st track.Step) bool {
	sec := &s.track.Sections[st.Section]
	if !st.First || w == nil {
		return len(sec.OccupiedBy) > 0
	}
	for _, id := range sec.OccupiedBy {
		t, ok := w.Train(id)
		if !ok || t.Position.Section != st.Section || track.Beyond(t.Position.Offset, n.Position.Offset, n.Direction) {
			return true
		}
	}
	return false
}

// opposing reports whether train holds the step's section for travel the other way.
func opposing(w World, train int, st track.Step) bool {
	if w == nil || train == track.NoTrain {
		return false
	}
	t, ok := w.Train(train)
	if !ok {
		return false
	}
	i := t.Route.Index(st.Section)
	return i >= 0 && t.Route[i].Direction != st.Direction
}
