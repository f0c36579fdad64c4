package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/config"
	"nyiyui.ca/hato/shingo/preset"
	"nyiyui.ca/hato/shingo/sim"
	"nyiyui.ca/hato/shingo/track"
)

func initInstance(t *testing.T, conf Conf) *Instance {
	t.Helper()
	ts, err := config.Default().Types()
	if err != nil {
		t.Fatal(err)
	}
	c, err := preset.InitPassingLoopSim(ts, preset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	i := NewInstance(c, conf)
	err = i.Do(func(c *sim.Context) error {
		west := c.Track.MustLookupIndex("west")
		if _, err := c.AddTrain(1, track.Position{Section: west, Offset: 100}, track.Forward); err != nil {
			return err
		}
		route, err := c.Track.PathTo(west, track.Forward, c.Track.MustLookupIndex("east"))
		if err != nil {
			return err
		}
		if err := c.SetRoute(1, route); err != nil {
			return err
		}
		_, err = c.Reserve(1)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return i
}

func TestStep(t *testing.T) {
	var trace bytes.Buffer
	i := initInstance(t, Conf{Trace: &trace})
	ch := make(chan sim.Snapshot, 1)
	i.Snapshots.Subscribe("test", ch)
	defer i.Snapshots.Unsubscribe(ch)
	if err := i.Step(); err != nil {
		t.Fatal(err)
	}
	s := <-ch
	if s.Tick != 1 || i.Latest().Tick != 1 {
		t.Fatalf("expected tick 1, got %d", s.Tick)
	}
	if s.Trains[0].Authority.Distance != 1880 {
		t.Fatalf("authority: %s", s.Trains[0].Authority)
	}

	var changes []Change
	dec := json.NewDecoder(&trace)
	for dec.More() {
		var c Change
		if err := dec.Decode(&c); err != nil {
			t.Fatal(err)
		}
		changes = append(changes, c)
	}
	expected := []Change{
		{Tick: 1, Node: 1, Head: 0, From: aspect.Stop, To: aspect.Approach1},
		{Tick: 1, Node: 2, Head: 0, From: aspect.Stop, To: aspect.Approach1},
		{Tick: 1, Node: 4, Head: 0, From: aspect.Stop, To: aspect.Approach1},
	}
	if diff := cmp.Diff(expected, changes); diff != "" {
		t.Fatalf("trace (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	i := initInstance(t, Conf{Interval: time.Millisecond})
	ch := make(chan sim.Snapshot, 8)
	i.Snapshots.Subscribe("test", ch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		errs <- i.Run(ctx)
	}()
	var last int64
	for n := 0; n < 3; n++ {
		select {
		case s := <-ch:
			if s.Tick <= last {
				t.Fatalf("tick went from %d to %d", last, s.Tick)
			}
			last = s.Tick
		case <-time.After(5 * time.Second):
			t.Fatal("no snapshot")
		}
	}
	cancel()
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
}
