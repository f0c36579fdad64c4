package signal

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/track"
)

// Script is the per-signal-type logic driving a head.
// Initialize is called once when the network is built; Update is called every tick.
type Script interface {
	Initialize(e *Env)
	Update(e *Env)
}

// MessageHandler is implemented by scripts that receive messages sent with Env.SendMessage.
type MessageHandler interface {
	HandleMessage(e *Env, sender int, text string)
}

var scripts = map[string]func() Script{}

// RegisterScript makes a script available to signal types by name.
// Each head gets its own instance from factory.
func RegisterScript(name string, factory func() Script) {
	if _, ok := scripts[name]; ok {
		panic(fmt.Sprintf("script %q registered twice", name))
	}
	scripts[name] = factory
}

// Scripts lists registered script names.
func Scripts() []string {
	res := make([]string, 0, len(scripts))
	for name := range scripts {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func newScript(name string) (Script, bool) {
	factory, ok := scripts[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Env is what a script sees of the engine while running for one head.
type Env struct {
	s    *Network
	w    World
	node *Node
	head *Head
}

func (e *Env) Node() *Node {
	return e.node
}

func (e *Env) Head() *Head {
	return e.head
}

func (e *Env) Aspect() aspect.Aspect {
	return e.head.Aspect
}

func (e *Env) SetAspect(a aspect.Aspect) {
	e.head.SetAspect(a)
}

// Function looks up a function by name, for scripts using custom functions.
func (e *Env) Function(name string) (Function, error) {
	return e.s.Types.fns.Lookup(name)
}

func (e *Env) NextSignalAspect(fn Function, mostRestrictive bool) aspect.Aspect {
	return e.s.nextSignalAspect(e.node, fn, mostRestrictive)
}

// NextSignalID returns the next node of function fn, or -1.
func (e *Env) NextSignalID(fn Function) int {
	return e.s.next(e.node, SetOf(fn), false)
}

func (e *Env) RangeAspect(a, b Function, agg aspect.Aggregation) aspect.Aspect {
	return e.s.rangeAspect(e.node, a, b, agg)
}

func (e *Env) OppositeSignalAspect(fn Function) aspect.Aspect {
	return e.s.oppositeSignalAspect(e.node, fn)
}

// Local returns a local variable of this node; unset variables are 0.
func (e *Env) Local(i int) int {
	return e.node.Locals[i]
}

func (e *Env) SetLocal(i, v int) {
	e.node.Locals[i] = v
}

// RemoteLocal reads a local variable of another node. Invalid nodes read as 0.
func (e *Env) RemoteLocal(node, i int) int {
	n, err := e.s.Node(node)
	if err != nil {
		return 0
	}
	return n.Locals[i]
}

func (e *Env) VerifyRouteSet() bool {
	return e.s.verifyRouteSet(e.w, e.node, e.head)
}

// HasHead reports whether this node has a head of function fn.
func (e *Env) HasHead(fn Function) bool {
	return e.node.HasFunction(fn)
}

// ApproachControlPosition reports whether the enabled train is within distance of the node.
func (e *Env) ApproachControlPosition(distance float32) bool {
	d, _, ok := e.s.approach(e.w, e.node)
	return ok && d <= distance
}

// ApproachControlSpeed reports whether the enabled train is within distance of the node
// and no faster than speed.
func (e *Env) ApproachControlSpeed(distance, speed float32) bool {
	d, t, ok := e.s.approach(e.w, e.node)
	return ok && d <= distance && t.Speed <= speed
}

// SendMessage queues text for the scripts of node target. It is delivered after this tick's updates.
func (e *Env) SendMessage(target int, text string) error {
	if _, err := e.s.Node(target); err != nil {
		return err
	}
	e.s.queue = append(e.s.queue, message{from: e.node.Index, to: target, text: text})
	return nil
}

func (e *Env) TrainHasCallOn() bool {
	if e.w == nil || e.node.EnabledTrain == track.NoTrain {
		return false
	}
	t, ok := e.w.Train(e.node.EnabledTrain)
	return ok && t.CallOn
}

func (e *Env) BlockState() BlockState {
	return e.node.Block
}

// RouteEnabled reports whether a train holds the route beyond the node.
func (e *Env) RouteEnabled() bool {
	return e.node.EnabledTrain != track.NoTrain
}

type message struct {
	from, to int
	text     string
}

// deliver hands queued messages to their targets' handlers.
// Messages sent by handlers go out in the next round; any left after the last round wait for the next tick.
func (s *Network) deliver(w World) {
	for round := 0; round < s.opts.MessageRounds && len(s.queue) > 0; round++ {
		pending := s.queue
		s.queue = nil
		for _, m := range pending {
			n := s.Nodes[m.to]
			for _, h := range n.Heads {
				if mh, ok := h.script.(MessageHandler); ok {
					mh.HandleMessage(s.env(w, n, h), m.from, m.text)
				}
			}
		}
	}
	if len(s.queue) > 0 {
		zap.S().Debugw("messages left for next tick", "count", len(s.queue))
	}
}
