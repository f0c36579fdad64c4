package signal

import (
	"fmt"
	"strings"
)

// Function is the semantic role of a signal head; it selects which search chain a query follows.
type Function int

// Built-in functions. Custom functions from configuration are numbered after these.
const (
	Normal Function = iota
	Distance
	Repeater
	Shunting
	Info
	Speed
	Alert
	builtinFunctions
)

var builtinNames = [...]string{"NORMAL", "DISTANCE", "REPEATER", "SHUNTING", "INFO", "SPEED", "ALERT"}

// MaxFunctions is the most functions a FunctionSet can hold.
const MaxFunctions = 64

// Functions maps function names to ids. Names are case-insensitive.
type Functions struct {
	names  []string
	byName map[string]Function
}

// NewFunctions returns the built-in functions followed by custom.
func NewFunctions(custom ...string) (*Functions, error) {
	f := &Functions{byName: map[string]Function{}}
	for _, name := range builtinNames {
		f.add(name)
	}
	for _, name := range custom {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("%w: empty function name", ErrUnknownFunction)
		}
		if _, ok := f.byName[name]; ok {
			// built-in names may be listed again
			continue
		}
		if len(f.names) >= MaxFunctions {
			return nil, fmt.Errorf("too many signal functions (max %d)", MaxFunctions)
		}
		f.add(name)
	}
	return f, nil
}

func (f *Functions) add(name string) {
	f.byName[name] = Function(len(f.names))
	f.names = append(f.names, name)
}

// Len is the number of distinct functions, used to size the section index.
func (f *Functions) Len() int {
	return len(f.names)
}

func (f *Functions) Lookup(name string) (Function, error) {
	fn, ok := f.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return fn, nil
}

func (f *Functions) Valid(fn Function) bool {
	return fn >= 0 && int(fn) < len(f.names)
}

func (f *Functions) Name(fn Function) string {
	if !f.Valid(fn) {
		return fmt.Sprintf("function(%d)", int(fn))
	}
	return f.names[fn]
}

// FunctionSet is a set of functions, used to key search caches.
type FunctionSet uint64

func SetOf(fns ...Function) FunctionSet {
	var s FunctionSet
	for _, fn := range fns {
		s |= 1 << uint(fn)
	}
	return s
}

func (s FunctionSet) Has(fn Function) bool {
	return fn >= 0 && fn < MaxFunctions && s&(1<<uint(fn)) != 0
}

// Each calls fn for every member in ascending order.
func (s FunctionSet) Each(fn func(Function)) {
	for i := Function(0); i < MaxFunctions && s>>uint(i) != 0; i++ {
		if s.Has(i) {
			fn(i)
		}
	}
}
