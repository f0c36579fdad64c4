package signal

import (
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/track"
)

// depend records that node's cached searches walked through section.
func (s *Network) depend(section, node int) {
	m, ok := s.dependents[section]
	if !ok {
		m = map[int]struct{}{}
		s.dependents[section] = m
	}
	m[node] = struct{}{}
}

// routeChanged drops the caches of every node whose searches walked through section.
func (s *Network) routeChanged(section int) {
	for node := range s.dependents[section] {
		clear(s.Nodes[node].found)
	}
	delete(s.dependents, section)
}

// invalidateAll drops every cache.
func (s *Network) invalidateAll() {
	for _, n := range s.Nodes {
		clear(n.found)
	}
	clear(s.dependents)
}

// next returns the nearest enabled node ahead of n with a head in set, or -1.
// With opposite set, nodes facing against n's direction of travel are searched instead.
// Results, including misses, are cached on n until the route ahead changes.
func (s *Network) next(n *Node, set FunctionSet, opposite bool) int {
	key := searchKey{set: set, opposite: opposite}
	if id, ok := n.found[key]; ok {
		return id
	}
	id := s.search(n, set, opposite)
	n.found[key] = id
	return id
}

func (s *Network) search(n *Node, set FunctionSet, opposite bool) int {
	res := -1
	s.track.Walk(n.Position, n.Direction, s.opts.MaxSearchDistance, func(st track.Step) bool {
		s.depend(st.Section, n.Index)
		facing := st.Direction
		if opposite {
			facing = facing.Reverse()
		}
		var best float32
		set.Each(func(fn Function) {
			for _, it := range s.index.Signals(st.Section, facing, int(fn)) {
				if it.Node == n.Index || !s.Nodes[it.Node].Enabled {
					continue
				}
				if st.First && !track.Beyond(it.Offset, st.Entry, st.Direction) {
					continue
				}
				d := it.Offset - st.Entry
				if d < 0 {
					d = -d
				}
				if res == -1 || d < best {
					res, best = it.Node, d
				}
			}
		})
		return res == -1
	})
	return res
}

// NextSignal returns the next enabled node of function fn ahead of node, or -1.
func (s *Network) NextSignal(node int, fn Function) int {
	n, err := s.Node(node)
	if err != nil || s.index == nil {
		return -1
	}
	return s.next(n, SetOf(fn), false)
}

func aggregation(mostRestrictive bool) aspect.Aggregation {
	if mostRestrictive {
		return aspect.MostRestrictive
	}
	return aspect.LeastRestrictive
}

func (s *Network) nextSignalAspect(n *Node, fn Function, mostRestrictive bool) aspect.Aspect {
	id := s.next(n, SetOf(fn), false)
	if id < 0 {
		return aspect.Stop
	}
	return s.Nodes[id].Aspect(fn, aggregation(mostRestrictive))
}

// NextSignalAspect returns the aspect of the next node of function fn ahead of node, or Stop if there is none.
func (s *Network) NextSignalAspect(node int, fn Function, mostRestrictive bool) aspect.Aspect {
	n, err := s.Node(node)
	if err != nil || s.index == nil {
		return aspect.Stop
	}
	return s.nextSignalAspect(n, fn, mostRestrictive)
}

func (s *Network) rangeAspect(n *Node, a, b Function, agg aspect.Aggregation) aspect.Aspect {
	set := SetOf(a, b)
	res := agg.Seed()
	collected := false
	visited := map[int]bool{n.Index: true}
	for cur := n; ; {
		id := s.next(cur, set, false)
		if id < 0 || visited[id] {
			break
		}
		visited[id] = true
		next := s.Nodes[id]
		if next.HasFunction(a) {
			res = agg.Combine(res, next.Aspect(a, agg))
			collected = true
		}
		if next.HasFunction(b) {
			if !collected {
				return aspect.Clear2
			}
			return res
		}
		cur = next
	}
	if collected {
		return aspect.Stop
	}
	return aspect.Clear2
}

// RangeAspect aggregates the aspects of the nodes of function a ahead of node, up to and including
// the first node of function b.
// If no node of function b is found, the result is Stop, unless no node of function a was found
// either, in which case it is Clear2.
func (s *Network) RangeAspect(node int, a, b Function, agg aspect.Aggregation) aspect.Aspect {
	n, err := s.Node(node)
	if err != nil || s.index == nil {
		return aspect.Stop
	}
	return s.rangeAspect(n, a, b, agg)
}

func (s *Network) oppositeSignalAspect(n *Node, fn Function) aspect.Aspect {
	id := s.next(n, SetOf(fn), true)
	if id < 0 {
		return aspect.Stop
	}
	return s.Nodes[id].Aspect(fn, aspect.MostRestrictive)
}

// OppositeSignalAspect returns the most restrictive aspect of the nearest node of function fn
// ahead of node that faces the other way, or Stop if there is none.
func (s *Network) OppositeSignalAspect(node int, fn Function) aspect.Aspect {
	n, err := s.Node(node)
	if err != nil || s.index == nil {
		return aspect.Stop
	}
	return s.oppositeSignalAspect(n, fn)
}

// verifyRouteSet reports whether the junction h protects is set as expected.
// Without a linked junction, multiplayer sessions check that the first facing junction ahead is set at all.
func (s *Network) verifyRouteSet(w World, n *Node, h *Head) bool {
	if h.Junction >= 0 {
		return s.track.Sections[h.Junction].Selected == h.JunctionPin
	}
	if w == nil || !w.Multiplayer() {
		return true
	}
	set := true
	s.track.Walk(n.Position, n.Direction, s.opts.MaxSearchDistance, func(st track.Step) bool {
		sec := &s.track.Sections[st.Section]
		links := sec.Links[st.Direction]
		if len(links) > 1 {
			set = sec.Selected >= 0 && sec.Selected < len(links)
			return false
		}
		return true
	})
	return set
}

// approach returns the enabled train's distance to n along the route, if it is approaching n.
func (s *Network) approach(w World, n *Node) (float32, TrainState, bool) {
	if w == nil || n.EnabledTrain == track.NoTrain {
		return 0, TrainState{}, false
	}
	t, ok := w.Train(n.EnabledTrain)
	if !ok {
		return 0, TrainState{}, false
	}
	d, ok := s.track.DistanceTo(t.Position, t.Direction, n.Position, s.opts.MaxSearchDistance)
	return d, t, ok
}
