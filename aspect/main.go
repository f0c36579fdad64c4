package aspect

import (
	"fmt"
)

// Aspect is the displayed state of a signal head.
// Lower values are more restrictive.
type Aspect int

const (
	Stop Aspect = iota
	StopAndProceed
	Restricting
	Approach1
	Approach2
	Approach3
	Clear1
	Clear2
	// Unknown is never displayed. It sorts after Clear2 so it never wins a most-restrictive aggregation.
	Unknown
)

var names = [...]string{
	Stop:           "stop",
	StopAndProceed: "stop-and-proceed",
	Restricting:    "restricting",
	Approach1:      "approach1",
	Approach2:      "approach2",
	Approach3:      "approach3",
	Clear1:         "clear1",
	Clear2:         "clear2",
	Unknown:        "unknown",
}

// Count is the number of displayable aspects.
const Count = int(Unknown)

func (a Aspect) Valid() bool {
	return a >= Stop && a < Unknown
}

func (a Aspect) String() string {
	if a < Stop || a > Unknown {
		return fmt.Sprintf("aspect(%d)", int(a))
	}
	return names[a]
}

func Parse(s string) (Aspect, error) {
	for a, name := range names {
		if name == s {
			return Aspect(a), nil
		}
	}
	return Unknown, fmt.Errorf("unknown aspect %q", s)
}

func (a Aspect) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Aspect) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Aggregation selects how aspects of several heads or signals are combined.
type Aggregation int

const (
	MostRestrictive Aggregation = iota
	LeastRestrictive
)

func (g Aggregation) String() string {
	switch g {
	case MostRestrictive:
		return "most-restrictive"
	case LeastRestrictive:
		return "least-restrictive"
	default:
		return fmt.Sprintf("aggregation(%d)", int(g))
	}
}

// Combine folds b into a.
func (g Aggregation) Combine(a, b Aspect) Aspect {
	switch g {
	case MostRestrictive:
		if b < a {
			return b
		}
		return a
	case LeastRestrictive:
		if b > a {
			return b
		}
		return a
	default:
		panic(fmt.Sprintf("invalid Aggregation %d", int(g)))
	}
}

// Seed is the neutral starting value for the aggregation.
func (g Aggregation) Seed() Aspect {
	switch g {
	case MostRestrictive:
		return Clear2
	case LeastRestrictive:
		return Stop
	default:
		panic(fmt.Sprintf("invalid Aggregation %d", int(g)))
	}
}
