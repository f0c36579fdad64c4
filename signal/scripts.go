package signal

import (
	"nyiyui.ca/hato/shingo/aspect"
)

// Local variables used by the built-in scripts.
const (
	// LocalHold is non-zero while the node is held at stop by a "hold" message.
	LocalHold = 0
	// LocalReleased is set to 1 when an approach-controlled node has released its train.
	LocalReleased = 1
)

// Messages understood by the built-in scripts.
const (
	MessageHold    = "hold"
	MessageRelease = "release"
)

func init() {
	RegisterScript(DefaultScript, func() Script { return new(stopSignal) })
	RegisterScript("distant", func() Script { return new(distantSignal) })
	RegisterScript("repeater", func() Script { return new(repeaterSignal) })
	RegisterScript("speed", func() Script { return new(speedSignal) })
	RegisterScript("shunting", func() Script { return new(shuntingSignal) })
	RegisterScript("multi-distant", func() Script { return new(multiDistantSignal) })
	RegisterScript("approach-controlled", func() Script { return &stopSignal{approachControlled: true} })
}

// warning returns the aspect a signal shows in rear of one showing next.
func warning(next aspect.Aspect) aspect.Aspect {
	switch {
	case next <= aspect.Restricting:
		return aspect.Approach1
	case next == aspect.Approach1:
		return aspect.Approach2
	default:
		return aspect.Clear2
	}
}

// stopSignal protects the block up to the next NORMAL signal.
type stopSignal struct {
	approachControlled bool
}

func (*stopSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Stop)
}

func (s *stopSignal) Update(e *Env) {
	e.SetAspect(s.aspect(e))
}

func (s *stopSignal) aspect(e *Env) aspect.Aspect {
	if s.approachControlled && !e.RouteEnabled() {
		e.SetLocal(LocalReleased, 0)
	}
	if e.Local(LocalHold) != 0 || !e.RouteEnabled() || !e.VerifyRouteSet() {
		return aspect.Stop
	}
	switch e.BlockState() {
	case BlockObstructed:
		if e.TrainHasCallOn() {
			return aspect.StopAndProceed
		}
		return aspect.Stop
	case BlockJunctionUnset:
		return aspect.Stop
	}
	if s.approachControlled && e.Local(LocalReleased) == 0 {
		h := e.Head()
		released := true
		if h.ApproachLimitPosition >= 0 {
			if h.ApproachLimitSpeed >= 0 {
				released = e.ApproachControlSpeed(h.ApproachLimitPosition, h.ApproachLimitSpeed)
			} else {
				released = e.ApproachControlPosition(h.ApproachLimitPosition)
			}
		}
		if !released {
			return aspect.Stop
		}
		e.SetLocal(LocalReleased, 1)
	}
	return warning(e.NextSignalAspect(Normal, true))
}

func (*stopSignal) HandleMessage(e *Env, sender int, text string) {
	switch text {
	case MessageHold:
		e.SetLocal(LocalHold, 1)
		e.SetAspect(aspect.Stop)
	case MessageRelease:
		e.SetLocal(LocalHold, 0)
	}
}

// distantSignal warns of the next NORMAL signal.
type distantSignal struct{}

func (*distantSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Approach1)
}

func (*distantSignal) Update(e *Env) {
	if e.NextSignalAspect(Normal, true) == aspect.Stop {
		e.SetAspect(aspect.Approach1)
		return
	}
	e.SetAspect(aspect.Clear2)
}

// repeaterSignal shows what the next NORMAL signal shows.
type repeaterSignal struct{}

func (*repeaterSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Stop)
}

func (*repeaterSignal) Update(e *Env) {
	e.SetAspect(e.NextSignalAspect(Normal, true))
}

// speedSignal only carries a speed restriction; it is always clear.
type speedSignal struct{}

func (*speedSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Clear2)
}

func (*speedSignal) Update(e *Env) {
	e.SetAspect(aspect.Clear2)
}

// shuntingSignal lets a train enter an occupied block at restricted speed.
type shuntingSignal struct{}

func (*shuntingSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Stop)
}

func (*shuntingSignal) Update(e *Env) {
	if !e.RouteEnabled() || !e.VerifyRouteSet() || e.BlockState() == BlockJunctionUnset {
		e.SetAspect(aspect.Stop)
		return
	}
	if e.BlockState() == BlockObstructed {
		e.SetAspect(aspect.StopAndProceed)
		return
	}
	e.SetAspect(aspect.Restricting)
}

// multiDistantSignal warns of the most restrictive NORMAL signal before the next DISTANCE signal.
type multiDistantSignal struct{}

func (*multiDistantSignal) Initialize(e *Env) {
	e.SetAspect(aspect.Approach1)
}

func (*multiDistantSignal) Update(e *Env) {
	e.SetAspect(warning(e.RangeAspect(Normal, Distance, aspect.MostRestrictive)))
}
