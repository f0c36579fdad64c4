package aspect

import "fmt"

// Reduction marks a speed restriction as the start or end of a temporary limit.
type Reduction int

const (
	ReductionNone Reduction = iota
	ReductionTempStart
	ReductionTempEnd
)

func (r Reduction) String() string {
	switch r {
	case ReductionNone:
		return "none"
	case ReductionTempStart:
		return "temp-start"
	case ReductionTempEnd:
		return "temp-end"
	default:
		return fmt.Sprintf("reduction(%d)", int(r))
	}
}

func (r Reduction) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reduction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*r = ReductionNone
	case "temp-start":
		*r = ReductionTempStart
	case "temp-end":
		*r = ReductionTempEnd
	default:
		return fmt.Errorf("unknown reduction %q", text)
	}
	return nil
}

// SpeedRestriction is a passenger/freight speed ceiling in m/s.
// A speed of -1 means no restriction for that class.
type SpeedRestriction struct {
	PassengerSpeed  float32   `json:"passenger"`
	FreightSpeed    float32   `json:"freight"`
	ApproachOnSight bool      `json:"approach-on-sight,omitempty"`
	ResetToNormal   bool      `json:"reset-to-normal,omitempty"`
	Reduction       Reduction `json:"reduction,omitempty"`
}

// NoRestriction is returned by lookups that find nothing.
var NoRestriction = SpeedRestriction{PassengerSpeed: -1, FreightSpeed: -1}

func (s SpeedRestriction) Restricts() bool {
	return s.PassengerSpeed >= 0 || s.FreightSpeed >= 0
}

// Limit returns the ceiling for the given class, or -1.
func (s SpeedRestriction) Limit(freight bool) float32 {
	if freight {
		return s.FreightSpeed
	}
	return s.PassengerSpeed
}

func (s SpeedRestriction) String() string {
	return fmt.Sprintf("speed(p%.1f f%.1f sight=%t reset=%t %s)", s.PassengerSpeed, s.FreightSpeed, s.ApproachOnSight, s.ResetToNormal, s.Reduction)
}

// Table maps an aspect to the speed restriction shown with it.
type Table map[Aspect]SpeedRestriction

// Lookup returns NoRestriction when the aspect has no entry.
func (t Table) Lookup(a Aspect) SpeedRestriction {
	if s, ok := t[a]; ok {
		return s
	}
	return NoRestriction
}

// Min is the tighter of s and o for each class. On-sight approach from either side carries over.
func (s SpeedRestriction) Min(o SpeedRestriction) SpeedRestriction {
	res := s
	res.PassengerSpeed = minLimit(s.PassengerSpeed, o.PassengerSpeed)
	res.FreightSpeed = minLimit(s.FreightSpeed, o.FreightSpeed)
	res.ApproachOnSight = s.ApproachOnSight || o.ApproachOnSight
	return res
}

func minLimit(a, b float32) float32 {
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	}
	return min(a, b)
}
