package signal

import (
	"fmt"

	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/binfmt"
)

type headState struct {
	aspect    aspect.Aspect
	drawState int
}

type nodeState struct {
	enabled      bool
	enabledTrain int
	locals       map[int]int
	heads        []headState
}

// Save writes [nodeCount] then per node
// [enabled byte][enabledTrain][localCount][localCount × (key, value)][headCount][headCount × (aspect, drawState)].
// Locals are written in key order. Search caches are not saved.
func (s *Network) Save(w *binfmt.Writer) {
	w.Int(len(s.Nodes))
	for _, n := range s.Nodes {
		w.Bool(n.Enabled)
		w.Int(n.EnabledTrain)
		keys := make([]int, 0, len(n.Locals))
		for k := range n.Locals {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		w.Int(len(keys))
		for _, k := range keys {
			w.Int(k)
			w.Int(n.Locals[k])
		}
		w.Int(len(n.Heads))
		for _, h := range n.Heads {
			w.Int(int(h.Aspect))
			w.Int(h.DrawState)
		}
	}
}

// Saved is decoded signal state not yet applied to a network.
type Saved struct {
	nodes []nodeState
}

// Restore reads state written by Save. Nothing is changed unless the whole record is valid.
func (s *Network) Restore(r *binfmt.Reader) error {
	saved, err := s.Decode(r)
	if err != nil {
		return err
	}
	s.Apply(saved)
	return nil
}

// Decode reads state written by Save and checks it fits the network: same nodes, same heads, displayable aspects.
func (s *Network) Decode(r *binfmt.Reader) (*Saved, error) {
	count := r.Count("signal node")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if count != len(s.Nodes) {
		return nil, fmt.Errorf("%w: %d nodes saved, %d in network", binfmt.ErrDecode, count, len(s.Nodes))
	}
	states := make([]nodeState, count)
	for i, n := range s.Nodes {
		st := &states[i]
		st.enabled = r.Bool()
		st.enabledTrain = r.Int()
		locals := r.Count("local variable")
		if r.Err() != nil {
			return nil, r.Err()
		}
		st.locals = make(map[int]int, min(locals, r.Remaining()))
		for j := 0; j < locals && r.Err() == nil; j++ {
			k := r.Int()
			st.locals[k] = r.Int()
		}
		heads := r.Count("signal head")
		if r.Err() != nil {
			return nil, r.Err()
		}
		if heads != len(n.Heads) {
			return nil, fmt.Errorf("%w: node %d: %d heads saved, %d in network", binfmt.ErrDecode, i, heads, len(n.Heads))
		}
		st.heads = make([]headState, heads)
		for j := range st.heads {
			a := aspect.Aspect(r.Int())
			st.heads[j] = headState{aspect: a, drawState: r.Int()}
			if r.Err() == nil && !n.Heads[j].typ.Displays(a) {
				return nil, fmt.Errorf("%w: node %d head %d: aspect %s not displayable", binfmt.ErrDecode, i, j, a)
			}
		}
		if r.Err() != nil {
			return nil, r.Err()
		}
	}
	return &Saved{nodes: states}, nil
}

// Apply replaces the network's state with saved, which must come from Decode on the same network.
// Search caches and queued messages are dropped.
func (s *Network) Apply(saved *Saved) {
	for i, n := range s.Nodes {
		st := saved.nodes[i]
		n.Enabled = st.enabled
		n.EnabledTrain = st.enabledTrain
		n.Locals = st.locals
		for j, h := range n.Heads {
			h.Aspect = st.heads[j].aspect
			h.DrawState = st.heads[j].drawState
		}
	}
	s.invalidateAll()
	s.queue = nil
}
