package track

import "fmt"

// Endpoint is one end of a cross-over.
type Endpoint struct {
	// Position within the section.
	Position     float32
	SectionIndex int
	// ItemIndex is the physical track item the endpoint lies on.
	ItemIndex int
}

// CrossOverLink records where two tracks cross.
// The near endpoint is fixed once created; only the far endpoint moves when track is rebuilt.
type CrossOverLink struct {
	Near       Endpoint
	Far        Endpoint
	TrackShape uint32
}

// Update moves the far endpoint.
func (c *CrossOverLink) Update(position float32, section, item int) {
	c.Far = Endpoint{
		Position:     position,
		SectionIndex: section,
		ItemIndex:    item,
	}
}

func (y *Network) checkEndpoint(e Endpoint) error {
	s, err := y.Section(e.SectionIndex)
	if err != nil {
		return err
	}
	if e.Position < 0 || e.Position > s.Length {
		return fmt.Errorf("position %.1f outside section %d (length %.1f)", e.Position, e.SectionIndex, s.Length)
	}
	return nil
}

// AddCrossOver validates and stores a cross-over, returning its index.
func (y *Network) AddCrossOver(near, far Endpoint, trackShape uint32) (int, error) {
	if err := y.checkEndpoint(near); err != nil {
		return -1, fmt.Errorf("cross-over near end: %w", err)
	}
	if err := y.checkEndpoint(far); err != nil {
		return -1, fmt.Errorf("cross-over far end: %w", err)
	}
	y.CrossOvers = append(y.CrossOvers, CrossOverLink{Near: near, Far: far, TrackShape: trackShape})
	return len(y.CrossOvers) - 1, nil
}

// UpdateCrossOver moves the far endpoint of cross-over i after validating it.
func (y *Network) UpdateCrossOver(i int, far Endpoint) error {
	if i < 0 || i >= len(y.CrossOvers) {
		return fmt.Errorf("cross-over %d does not exist", i)
	}
	if err := y.checkEndpoint(far); err != nil {
		return fmt.Errorf("cross-over %d far end: %w", i, err)
	}
	y.CrossOvers[i].Update(far.Position, far.SectionIndex, far.ItemIndex)
	return nil
}

// CrossOversAt returns the indices of cross-overs with an endpoint in section.
func (y *Network) CrossOversAt(section int) []int {
	var res []int
	for i, c := range y.CrossOvers {
		if c.Near.SectionIndex == section || c.Far.SectionIndex == section {
			res = append(res, i)
		}
	}
	return res
}
