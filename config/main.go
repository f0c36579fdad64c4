// Package config is the JSON configuration of the engine and its servers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iancoleman/orderedmap"
	"nyiyui.ca/hato/shingo/aspect"
	"nyiyui.ca/hato/shingo/signal"
	"nyiyui.ca/hato/shingo/sim"
)

type Config struct {
	// Functions are custom signal functions, numbered after the built-in ones.
	Functions   []string    `json:"functions"`
	SignalTypes SignalTypes `json:"signal-types"`
	Engine      Engine      `json:"engine"`
	Server      Server      `json:"server"`
}

type Engine struct {
	// Layout names a preset layout.
	Layout string `json:"layout"`
	// MaxSearchDistance bounds signal searches in metres. 0 means unbounded.
	MaxSearchDistance float32 `json:"max-search-distance"`
	// MaxAuthority clamps train authorities in metres. 0 means unbounded.
	MaxAuthority  float32  `json:"max-authority"`
	Multiplayer   bool     `json:"multiplayer"`
	TickInterval  Duration `json:"tick-interval"`
	MessageRounds int      `json:"message-rounds"`
	// TracePath is where aspect changes are written as JSON lines. Empty disables the trace.
	TracePath string `json:"trace-path"`
}

type Server struct {
	RelayAddr      string   `json:"relay-addr"`
	StatusAddr     string   `json:"status-addr"`
	DBPath         string   `json:"db-path"`
	HistorySize    int      `json:"history-size"`
	AllowedOrigins []string `json:"allowed-origins"`
}

// Duration is a time.Duration written as a string such as "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type SignalType struct {
	Function string   `json:"function"`
	Script   string   `json:"script,omitempty"`
	Aspects  []Aspect `json:"aspects"`
	// Approach limits are unset when absent.
	ApproachLimitPosition *float32 `json:"approach-limit-position,omitempty"`
	ApproachLimitSpeed    *float32 `json:"approach-limit-speed,omitempty"`
}

type Aspect struct {
	Aspect    aspect.Aspect `json:"aspect"`
	DrawState int           `json:"draw-state"`
	// Speed is no restriction when absent.
	Speed *aspect.SpeedRestriction `json:"speed,omitempty"`
}

// SignalTypes is an object of signal types keyed by name. Type ids follow the order in the file.
type SignalTypes struct {
	Names []string
	Types map[string]SignalType
}

func (s *SignalTypes) Add(name string, t SignalType) {
	if s.Types == nil {
		s.Types = map[string]SignalType{}
	}
	if _, ok := s.Types[name]; !ok {
		s.Names = append(s.Names, name)
	}
	s.Types[name] = t
}

func (s SignalTypes) MarshalJSON() ([]byte, error) {
	o := orderedmap.New()
	o.SetEscapeHTML(false)
	for _, name := range s.Names {
		o.Set(name, s.Types[name])
	}
	return json.Marshal(o)
}

func (s *SignalTypes) UnmarshalJSON(data []byte) error {
	o := orderedmap.New()
	if err := json.Unmarshal(data, o); err != nil {
		return err
	}
	var types map[string]SignalType
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}
	s.Names = o.Keys()
	s.Types = types
	return nil
}

// Load reads a configuration file. Missing fields keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	// signal-types, when present, replaces the defaults wholesale
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SignalFunctions returns the built-in functions followed by the configured ones.
func (c *Config) SignalFunctions() (*signal.Functions, error) {
	return signal.NewFunctions(c.Functions...)
}

// Types builds the signal-type table in declaration order.
func (c *Config) Types() (*signal.Types, error) {
	fns, err := c.SignalFunctions()
	if err != nil {
		return nil, err
	}
	ts := signal.NewTypes(fns)
	for _, name := range c.SignalTypes.Names {
		st := c.SignalTypes.Types[name]
		fn, err := fns.Lookup(st.Function)
		if err != nil {
			return nil, fmt.Errorf("signal type %s: %w", name, err)
		}
		t := &signal.Type{
			Name:                  name,
			Function:              fn,
			ApproachLimitPosition: -1,
			ApproachLimitSpeed:    -1,
			Script:                st.Script,
		}
		if st.ApproachLimitPosition != nil {
			t.ApproachLimitPosition = *st.ApproachLimitPosition
		}
		if st.ApproachLimitSpeed != nil {
			t.ApproachLimitSpeed = *st.ApproachLimitSpeed
		}
		for _, a := range st.Aspects {
			def := signal.AspectDef{Aspect: a.Aspect, DrawState: a.DrawState, Speed: aspect.NoRestriction}
			if a.Speed != nil {
				def.Speed = *a.Speed
			}
			t.Aspects = append(t.Aspects, def)
		}
		if _, err := ts.Add(t); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

func (c *Config) SignalOptions() signal.Options {
	return signal.Options{
		MaxSearchDistance: c.Engine.MaxSearchDistance,
		MessageRounds:     c.Engine.MessageRounds,
	}
}

func (c *Config) SimOptions() sim.Options {
	return sim.Options{
		Multiplayer:  c.Engine.Multiplayer,
		MaxAuthority: c.Engine.MaxAuthority,
	}
}
