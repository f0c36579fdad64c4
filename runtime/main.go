// Package runtime runs a simulation on a fixed tick interval and publishes its snapshots.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/notify"
	"nyiyui.ca/hato/shingo/sim"
)

type Conf struct {
	Interval time.Duration
	// Trace receives one JSON line per aspect change. Nil disables the trace.
	Trace io.Writer
}

// Change is one trace line.
type Change struct {
	Tick int64         `json:"tick"`
	Node int           `json:"node"`
	Head int           `json:"head"`
	From aspect.Aspect `json:"from"`
	To   aspect.Aspect `json:"to"`
}

// Instance owns a simulation context. All access to it goes through Do so ticks never interleave with commands.
type Instance struct {
	conf      Conf
	Snapshots *notify.Multiplexer[sim.Snapshot]

	lock   sync.Mutex
	c      *sim.Context
	latest sim.Snapshot
	trace  *json.Encoder
	prev   [][]aspect.Aspect
}

func NewInstance(c *sim.Context, conf Conf) *Instance {
	i := &Instance{
		conf:      conf,
		Snapshots: notify.NewMultiplexer[sim.Snapshot]("runtime"),
		c:         c,
	}
	if conf.Trace != nil {
		i.trace = json.NewEncoder(conf.Trace)
	}
	i.latest = c.Snapshot()
	i.prev = aspects(i.latest)
	return i
}

func aspects(s sim.Snapshot) [][]aspect.Aspect {
	res := make([][]aspect.Aspect, len(s.Nodes))
	for ni, n := range s.Nodes {
		for _, h := range n.Heads {
			res[ni] = append(res[ni], h.Aspect)
		}
	}
	return res
}

// Do runs fn between ticks.
func (i *Instance) Do(fn func(c *sim.Context) error) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	err := fn(i.c)
	i.latest = i.c.Snapshot()
	return err
}

// Latest returns the snapshot taken after the last tick or command.
func (i *Instance) Latest() sim.Snapshot {
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.latest
}

// Step runs one tick and publishes the result.
func (i *Instance) Step() error {
	i.lock.Lock()
	if err := i.c.Tick(); err != nil {
		i.lock.Unlock()
		return err
	}
	s := i.c.Snapshot()
	i.latest = s
	err := i.writeTrace(s)
	i.lock.Unlock()
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	// Send may block on slow subscribers, so it runs outside the lock.
	i.Snapshots.Send(s)
	return nil
}

// i.lock must be taken!
func (i *Instance) writeTrace(s sim.Snapshot) error {
	cur := aspects(s)
	defer func() { i.prev = cur }()
	if i.trace == nil {
		return nil
	}
	for ni := range cur {
		for hi, a := range cur[ni] {
			if ni < len(i.prev) && hi < len(i.prev[ni]) && i.prev[ni][hi] == a {
				continue
			}
			from := aspect.Unknown
			if ni < len(i.prev) && hi < len(i.prev[ni]) {
				from = i.prev[ni][hi]
			}
			if err := i.trace.Encode(Change{Tick: s.Tick, Node: ni, Head: hi, From: from, To: a}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run ticks until ctx is done or a tick fails.
func (i *Instance) Run(ctx context.Context) error {
	ticker := time.NewTicker(i.conf.Interval)
	defer ticker.Stop()
	zap.S().Infow("runtime started", "interval", i.conf.Interval)
	for {
		select {
		case <-ctx.Done():
			zap.S().Infow("runtime stopped", "ticks", i.Latest().Tick)
			return nil
		case <-ticker.C:
			if err := i.Step(); err != nil {
				return err
			}
		}
	}
}
