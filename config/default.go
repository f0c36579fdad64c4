package config

import (
	"time"

	"nyiyui.ca/hato/shingo/aspect"
)

func ptr[T any](v T) *T {
	return &v
}

func restricted(passenger, freight float32) *aspect.SpeedRestriction {
	return &aspect.SpeedRestriction{PassengerSpeed: passenger, FreightSpeed: freight}
}

// Default is the configuration used when no file is given. It defines every signal type the presets use.
func Default() *Config {
	c := &Config{
		Engine: Engine{
			Layout:        "passing-loop",
			TickInterval:  Duration{500 * time.Millisecond},
			MessageRounds: 2,
		},
		Server: Server{
			RelayAddr:      "0.0.0.0:8001",
			StatusAddr:     "0.0.0.0:8080",
			DBPath:         "shingo.db",
			HistorySize:    256,
			AllowedOrigins: []string{"*"},
		},
	}
	c.SignalTypes.Add("home", SignalType{
		Function: "NORMAL",
		Aspects: []Aspect{
			{Aspect: aspect.Stop, DrawState: 0, Speed: restricted(0, 0)},
			{Aspect: aspect.StopAndProceed, DrawState: 4, Speed: restricted(4, 4)},
			{Aspect: aspect.Approach1, DrawState: 1, Speed: restricted(11, 8)},
			{Aspect: aspect.Approach2, DrawState: 2},
			{Aspect: aspect.Clear2, DrawState: 3},
		},
	})
	c.SignalTypes.Add("starter", SignalType{
		Function: "NORMAL",
		Aspects: []Aspect{
			{Aspect: aspect.Stop, DrawState: 0, Speed: restricted(0, 0)},
			{Aspect: aspect.Approach1, DrawState: 1, Speed: restricted(11, 8)},
			{Aspect: aspect.Clear2, DrawState: 2},
		},
	})
	c.SignalTypes.Add("approach", SignalType{
		Function:              "NORMAL",
		Script:                "approach-controlled",
		ApproachLimitPosition: ptr[float32](200),
		Aspects: []Aspect{
			{Aspect: aspect.Stop, DrawState: 0, Speed: restricted(0, 0)},
			{Aspect: aspect.Approach1, DrawState: 1, Speed: restricted(11, 8)},
			{Aspect: aspect.Clear2, DrawState: 2},
		},
	})
	c.SignalTypes.Add("distant", SignalType{
		Function: "DISTANCE",
		Script:   "distant",
		Aspects: []Aspect{
			{Aspect: aspect.Approach1, DrawState: 0},
			{Aspect: aspect.Clear2, DrawState: 1},
		},
	})
	c.SignalTypes.Add("repeater", SignalType{
		Function: "REPEATER",
		Script:   "repeater",
		Aspects: []Aspect{
			{Aspect: aspect.Stop, DrawState: 0},
			{Aspect: aspect.Approach1, DrawState: 1},
			{Aspect: aspect.Approach2, DrawState: 2},
			{Aspect: aspect.Clear2, DrawState: 3},
		},
	})
	c.SignalTypes.Add("shunt", SignalType{
		Function: "SHUNTING",
		Script:   "shunting",
		Aspects: []Aspect{
			{Aspect: aspect.Stop, DrawState: 0},
			{Aspect: aspect.StopAndProceed, DrawState: 1, Speed: restricted(4, 4)},
			{Aspect: aspect.Restricting, DrawState: 2, Speed: restricted(7, 7)},
		},
	})
	c.SignalTypes.Add("speed", SignalType{
		Function: "SPEED",
		Script:   "speed",
		Aspects: []Aspect{
			{Aspect: aspect.Clear2, DrawState: 0, Speed: restricted(25, 20)},
		},
	})
	return c
}
