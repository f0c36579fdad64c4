package track

import "fmt"

// Side flags which side of the train a platform is on.
type Side int

const (
	SideLeft  Side = 1 << 0
	SideRight Side = 1 << 1
)

// Platform ends.
const (
	EndA = 0
	EndB = 1
)

// PlatformRecord is the geometry of a station platform.
type PlatformRecord struct {
	Name string
	// Sections are the track circuits the platform covers, in physical order.
	Sections          []int
	PlatformReference [2]int
	// TrackCircuitOffset is indexed by [end][direction].
	TrackCircuitOffset [2][2]float32
	NodeOffset         [2]float32
	Length             float32
	// EndSignals holds the signal node protecting each direction's exit, or -1.
	EndSignals        [2]int
	DistanceToSignals [2]float32
	// MinWaitingTime is the minimum dwell in seconds.
	MinWaitingTime       float32
	NumPassengersWaiting int
	Side                 Side
}

// NewPlatform returns a platform record with unset signal links.
func NewPlatform(name string, sections []int, length float32) PlatformRecord {
	return PlatformRecord{
		Name:              name,
		Sections:          append([]int(nil), sections...),
		PlatformReference: [2]int{-1, -1},
		Length:            length,
		EndSignals:        [2]int{-1, -1},
		DistanceToSignals: [2]float32{-1, -1},
	}
}

func (p *PlatformRecord) Contains(section int) bool {
	for _, s := range p.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SetEndSignal links the signal node protecting the platform exit in dir.
func (p *PlatformRecord) SetEndSignal(dir Direction, node int, distance float32) error {
	if !dir.Valid() {
		return fmt.Errorf("platform %s: invalid direction %d", p.Name, int(dir))
	}
	if node < 0 || distance < 0 {
		return fmt.Errorf("platform %s: invalid end signal %d at %.1f", p.Name, node, distance)
	}
	p.EndSignals[dir] = node
	p.DistanceToSignals[dir] = distance
	return nil
}

func (p *PlatformRecord) ClearEndSignal(dir Direction) {
	p.EndSignals[dir] = -1
	p.DistanceToSignals[dir] = -1
}

func (y *Network) adjacent(a, b int) bool {
	for d := Forward; d <= Reverse; d++ {
		for _, l := range y.Sections[a].Links[d] {
			if l.Section == b {
				return true
			}
		}
	}
	return false
}

// AddPlatform validates and stores a platform, returning its index.
func (y *Network) AddPlatform(p PlatformRecord) (int, error) {
	if len(p.Sections) == 0 {
		return -1, fmt.Errorf("platform %s: no sections", p.Name)
	}
	if p.Length < 0 {
		return -1, fmt.Errorf("platform %s: negative length %.1f", p.Name, p.Length)
	}
	for i, s := range p.Sections {
		if !y.valid(s) {
			return -1, fmt.Errorf("platform %s: %w: %d", p.Name, ErrInvalidSection, s)
		}
		if i > 0 && !y.adjacent(p.Sections[i-1], s) {
			return -1, fmt.Errorf("platform %s: sections %d and %d are not contiguous", p.Name, p.Sections[i-1], s)
		}
	}
	i := len(y.Platforms)
	y.Platforms = append(y.Platforms, p)
	if y.sectionPlatforms == nil {
		y.sectionPlatforms = map[int][]int{}
	}
	for _, s := range p.Sections {
		y.sectionPlatforms[s] = append(y.sectionPlatforms[s], i)
	}
	return i, nil
}

// PlatformsAt returns indices of platforms covering section.
func (y *Network) PlatformsAt(section int) []int {
	return y.sectionPlatforms[section]
}
