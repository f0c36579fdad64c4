package track

import (
	"fmt"
)

// Step is one section visited by Walk.
type Step struct {
	Section   int
	Direction Direction
	// First is set for the section the walk starts in.
	First bool
	// Entry is the offset where the walk enters the section (the start offset for the first section).
	Entry float32
	// Distance from the start of the walk to Entry.
	Distance float32
}

// End says why a walk stopped.
type End int

const (
	EndVisitor End = iota
	EndOfTrack
	EndJunctionUnset
	EndLoop
	EndMaxDistance
)

func (e End) String() string {
	switch e {
	case EndVisitor:
		return "visitor"
	case EndOfTrack:
		return "end-of-track"
	case EndJunctionUnset:
		return "junction-unset"
	case EndLoop:
		return "loop"
	case EndMaxDistance:
		return "max-distance"
	default:
		return fmt.Sprintf("end(%d)", int(e))
	}
}

type walkKey struct {
	section int
	dir     Direction
}

// Walk visits the sections ahead of from in direction dir, following the current junction settings.
// visit returns false to stop the walk.
// A walk never enters a (section, direction) pair twice, so it terminates on any network.
// maxDistance of 0 means unbounded.
func (y *Network) Walk(from Position, dir Direction, maxDistance float32, visit func(Step) bool) End {
	if !y.valid(from.Section) || !dir.Valid() {
		return EndOfTrack
	}
	visited := map[walkKey]bool{}
	step := Step{
		Section:   from.Section,
		Direction: dir,
		First:     true,
		Entry:     from.Offset,
	}
	for {
		visited[walkKey{step.Section, step.Direction}] = true
		if !visit(step) {
			return EndVisitor
		}
		s := &y.Sections[step.Section]
		distance := step.Distance + s.Remaining(step.Entry, step.Direction)
		if maxDistance > 0 && distance >= maxDistance {
			return EndMaxDistance
		}
		if len(s.Links[step.Direction]) > 1 && (s.Selected < 0 || s.Selected >= len(s.Links[step.Direction])) {
			return EndJunctionUnset
		}
		next, ok := y.Next(step.Section, step.Direction)
		if !ok {
			return EndOfTrack
		}
		if visited[walkKey{next.Section, next.Direction}] {
			return EndLoop
		}
		step = Step{
			Section:   next.Section,
			Direction: next.Direction,
			Entry:     y.Sections[next.Section].Entry(next.Direction),
			Distance:  distance,
		}
	}
}

// DistanceTo returns the distance along the current route from from (travelling in dir) to to.
func (y *Network) DistanceTo(from Position, dir Direction, to Position, maxDistance float32) (float32, bool) {
	var found bool
	var distance float32
	y.Walk(from, dir, maxDistance, func(st Step) bool {
		if st.Section != to.Section {
			return true
		}
		var ahead bool
		if st.Direction == Forward {
			ahead = to.Offset >= st.Entry
		} else {
			ahead = to.Offset <= st.Entry
		}
		if !ahead {
			return true
		}
		d := to.Offset - st.Entry
		if d < 0 {
			d = -d
		}
		distance = st.Distance + d
		found = true
		return false
	})
	return distance, found
}

// PathTo returns a path from section from (leaving in dir) to goal, ignoring junction settings.
// The path includes both ends.
func (y *Network) PathTo(from int, dir Direction, goal int) (PartialPath, error) {
	if !y.valid(from) || !y.valid(goal) {
		return nil, fmt.Errorf("%w: path %d→%d", ErrInvalidSection, from, goal)
	}
	type using struct {
		prev walkKey
		pin  int
	}
	start := walkKey{from, dir}
	seen := map[walkKey]using{start: {prev: walkKey{-1, 0}, pin: -1}}
	queue := []walkKey{start}
	var end walkKey
	found := false
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.section == goal {
			end = current
			found = true
			break
		}
		for pin, l := range y.Sections[current.section].Links[current.dir] {
			k := walkKey{l.Section, l.Direction}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = using{prev: current, pin: pin}
			queue = append(queue, k)
		}
	}
	if !found {
		return nil, fmt.Errorf("no path from %d to %d", from, goal)
	}
	var keys []walkKey
	for k := end; k.section != -1; k = seen[k].prev {
		keys = append(keys, k)
	}
	reverse(keys)
	path := make(PartialPath, len(keys))
	for i, k := range keys {
		path[i] = NewElement(k.section, k.dir)
		if i+1 < len(keys) {
			pin := seen[keys[i+1]].pin
			path[i].OutPin = [2]int{int(k.dir), pin}
			path[i].FacingPoint = len(y.Sections[k.section].Links[k.dir]) > 1
		}
	}
	return path, nil
}

// AlternativePaths enumerates simple paths from section from (leaving in dir) to goal, ignoring junction settings.
// At most limit paths are returned, in depth-first order taking lower pins first.
func (y *Network) AlternativePaths(from int, dir Direction, goal int, limit int) ([]PartialPath, error) {
	if !y.valid(from) || !y.valid(goal) {
		return nil, fmt.Errorf("%w: path %d→%d", ErrInvalidSection, from, goal)
	}
	var res []PartialPath
	onPath := map[int]bool{}
	var cur PartialPath
	var dfs func(section int, d Direction)
	dfs = func(section int, d Direction) {
		if len(res) >= limit {
			return
		}
		onPath[section] = true
		defer delete(onPath, section)
		cur = append(cur, NewElement(section, d))
		defer func() { cur = cur[:len(cur)-1] }()
		if section == goal {
			res = append(res, cur.Clone())
			return
		}
		links := y.Sections[section].Links[d]
		for pin, l := range links {
			if onPath[l.Section] {
				continue
			}
			cur[len(cur)-1].OutPin = [2]int{int(d), pin}
			cur[len(cur)-1].FacingPoint = len(links) > 1
			dfs(l.Section, l.Direction)
		}
	}
	dfs(from, dir)
	return res, nil
}

func reverse[S ~[]E, E any](s S) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
