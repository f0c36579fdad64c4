package signal

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"nyiyui.ca/hato/shingo/aspect"
)

// AspectDef is one aspect a signal type can display.
type AspectDef struct {
	Aspect    aspect.Aspect
	DrawState int
	Speed     aspect.SpeedRestriction
}

// Type is a signal-type definition: what its heads can display and which script drives them.
type Type struct {
	Name     string
	Function Function
	// Aspects are sorted from most to least restrictive.
	Aspects []AspectDef
	// ApproachLimitPosition and ApproachLimitSpeed are negative when unset.
	ApproachLimitPosition float32
	ApproachLimitSpeed    float32
	Script                string
}

// DefaultScript drives types that do not name a script.
const DefaultScript = "default"

// DefaultType returns a three-aspect type of function fn.
func DefaultType(name string, fn Function) *Type {
	return &Type{
		Name:     name,
		Function: fn,
		Aspects: []AspectDef{
			{Aspect: aspect.Stop, DrawState: 0, Speed: aspect.NoRestriction},
			{Aspect: aspect.Approach1, DrawState: 1, Speed: aspect.NoRestriction},
			{Aspect: aspect.Clear2, DrawState: 2, Speed: aspect.NoRestriction},
		},
		ApproachLimitPosition: -1,
		ApproachLimitSpeed:    -1,
		Script:                DefaultScript,
	}
}

func (t *Type) check(fns *Functions) error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidType)
	}
	if !fns.Valid(t.Function) {
		return fmt.Errorf("%w: %s: function %d", ErrInvalidType, t.Name, t.Function)
	}
	if len(t.Aspects) == 0 {
		return fmt.Errorf("%w: %s: no aspects", ErrInvalidType, t.Name)
	}
	seen := map[aspect.Aspect]bool{}
	for _, def := range t.Aspects {
		if !def.Aspect.Valid() {
			return fmt.Errorf("%w: %s: invalid aspect %d", ErrInvalidType, t.Name, int(def.Aspect))
		}
		if seen[def.Aspect] {
			return fmt.Errorf("%w: %s: aspect %s listed twice", ErrInvalidType, t.Name, def.Aspect)
		}
		seen[def.Aspect] = true
	}
	return nil
}

// Displays reports whether a head of this type can show a.
func (t *Type) Displays(a aspect.Aspect) bool {
	for _, def := range t.Aspects {
		if def.Aspect == a {
			return true
		}
	}
	return false
}

// snap returns the definition for the least restrictive displayable aspect no less restrictive than a,
// or the most restrictive aspect if there is none.
func (t *Type) snap(a aspect.Aspect) AspectDef {
	res := t.Aspects[0]
	for _, def := range t.Aspects {
		if def.Aspect > a {
			break
		}
		res = def
	}
	return res
}

// SpeedTable returns the speed restriction for each displayable aspect.
func (t *Type) SpeedTable() aspect.Table {
	res := make(aspect.Table, len(t.Aspects))
	for _, def := range t.Aspects {
		res[def.Aspect] = def.Speed
	}
	return res
}

// Types is the table of signal types. Ids are assigned in order of addition.
type Types struct {
	fns    *Functions
	list   []*Type
	byName map[string]int
}

func NewTypes(fns *Functions) *Types {
	return &Types{fns: fns, byName: map[string]int{}}
}

func (ts *Types) Functions() *Functions {
	return ts.fns
}

// Add validates t and returns its id. The aspect list is sorted.
func (ts *Types) Add(t *Type) (int, error) {
	if err := t.check(ts.fns); err != nil {
		return -1, err
	}
	if _, ok := ts.byName[t.Name]; ok {
		return -1, fmt.Errorf("%w: %s defined twice", ErrInvalidType, t.Name)
	}
	if t.Script == "" {
		t.Script = DefaultScript
	}
	slices.SortFunc(t.Aspects, func(a, b AspectDef) int {
		return int(a.Aspect) - int(b.Aspect)
	})
	id := len(ts.list)
	ts.list = append(ts.list, t)
	ts.byName[t.Name] = id
	return id, nil
}

func (ts *Types) Len() int {
	return len(ts.list)
}

func (ts *Types) Get(id int) (*Type, bool) {
	if id < 0 || id >= len(ts.list) {
		return nil, false
	}
	return ts.list[id], true
}

func (ts *Types) Lookup(name string) (int, bool) {
	id, ok := ts.byName[name]
	return id, ok
}

// resolve returns the id of the named type.
// An undefined name is a configuration gap: it is logged and a default NORMAL type is added in its place.
func (ts *Types) resolve(name string, node int) int {
	if name == "" {
		name = "(unnamed)"
	}
	if id, ok := ts.byName[name]; ok {
		return id
	}
	zap.S().Warnw("undefined signal type, using default",
		"node", node,
		"type", name,
	)
	id, err := ts.Add(DefaultType(name, Normal))
	if err != nil {
		panic(fmt.Sprintf("default type %q: %s", name, err))
	}
	return id
}
