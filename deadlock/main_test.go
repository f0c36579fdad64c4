package deadlock

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"nyiyui.ca/hato/shingo/binfmt"
	"nyiyui.ca/hato/shingo/track"
)

// initPassingLoop builds a single line with a passing loop:
//
//	west ─ wp ┬ main ┬ ep ─ east
//	          └ loop ┘
func initPassingLoop(t *testing.T) *track.Network {
	t.Helper()
	y := track.NewNetwork()
	add := func(kind track.Kind, length float32, name string) int {
		i, err := y.AddSection(kind, length, name)
		if err != nil {
			t.Fatal(err)
		}
		return i
	}
	west := add(track.KindNormal, 800, "west")
	wp := add(track.KindJunction, 40, "wp")
	main := add(track.KindNormal, 300, "main")
	loop := add(track.KindNormal, 320, "loop")
	ep := add(track.KindJunction, 40, "ep")
	east := add(track.KindNormal, 800, "east")
	for _, c := range [][2]int{{west, wp}, {wp, main}, {wp, loop}, {main, ep}, {loop, ep}, {ep, east}} {
		if err := y.Connect(c[0], track.Forward, c[1], track.Forward); err != nil {
			t.Fatal(err)
		}
	}
	return y
}

func TestRegisterPath(t *testing.T) {
	y := initPassingLoop(t)
	route, err := y.PathTo(y.MustLookupIndex("wp"), track.Forward, y.MustLookupIndex("ep"))
	if err != nil {
		t.Fatal(err)
	}
	g := NewRegistry(4)
	if _, err := g.RegisterPath(route); err != nil {
		t.Fatal(err)
	}
	i, err := g.RegisterPath(route)
	if err != nil {
		t.Fatal(err)
	}
	p := g.Paths[i]
	if p.Route[0].UsedAlternativePath != i {
		t.Fatalf("first element not marked: %d", p.Route[0].UsedAlternativePath)
	}
	if route[0].UsedAlternativePath != -1 {
		t.Fatal("registering modified the caller's route")
	}
	if p.UsefulLength != 0 || len(p.Groups) != 0 || len(p.AllowedTrains) != 0 {
		t.Fatalf("unexpected initial path %#v", p)
	}
	if p.EndSectionIndex != y.MustLookupIndex("ep") || p.LastUsefulSectionIndex != -1 {
		t.Fatalf("end %d, last useful %d", p.EndSectionIndex, p.LastUsefulSectionIndex)
	}
	if _, err := g.RegisterPath(nil); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}

	if err := g.ExtendEndpoint(i, 950, y.MustLookupIndex("east")); err != nil {
		t.Fatal(err)
	}
	if p.UsefulLength != 950 || p.EndSectionIndex != y.MustLookupIndex("east") || p.Name != "" {
		t.Fatalf("extend changed the wrong fields: %#v", p)
	}
	if err := g.ExtendEndpoint(i, -1, 0); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := g.SetUsefulLength(i, "x", 10, y.MustLookupIndex("west")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("section off the path: expected ErrInvalidPath, got %v", err)
	}
	if err := g.ExtendEndpoint(9, 1, 0); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestIsUsableBy(t *testing.T) {
	g := NewRegistry(0)
	route := track.PartialPath{track.NewElement(0, track.Forward)}
	public, _ := g.RegisterPath(route)
	private, _ := g.RegisterPath(route)
	marked, _ := g.RegisterPath(route)
	if err := g.AllowTrain(private, 3); err != nil {
		t.Fatal(err)
	}
	if err := g.AllowTrain(marked, 5); err != nil {
		t.Fatal(err)
	}
	if err := g.AllowTrain(marked, Public); err != nil {
		t.Fatal(err)
	}
	if err := g.AllowTrain(marked, -2); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	for _, index := range []int{0, 3, 4, 100} {
		if !g.IsUsableBy(public, index) {
			t.Fatalf("public path refused %d", index)
		}
		if !g.IsUsableBy(marked, index) {
			t.Fatalf("path marked public refused %d", index)
		}
	}
	if !g.IsUsableBy(private, 3) {
		t.Fatal("allowed train refused")
	}
	if g.IsUsableBy(private, 4) {
		t.Fatal("other train allowed")
	}
	if g.IsUsableBy(42, 3) {
		t.Fatal("missing path usable")
	}
	if got := g.UsablePaths(4); !cmp.Equal(got, []int{public, marked}) {
		t.Fatalf("UsablePaths: %v", got)
	}
}

func TestSubpathIndex(t *testing.T) {
	g := NewRegistry(0)
	a := g.SubpathIndex(7, 0)
	b := g.SubpathIndex(7, 1)
	c := g.SubpathIndex(2, 0)
	if a == b || b == c || a == c {
		t.Fatalf("indices collide: %d %d %d", a, b, c)
	}
	if g.SubpathIndex(7, 1) != b {
		t.Fatal("index not stable")
	}
}

func TestDiscover(t *testing.T) {
	y := initPassingLoop(t)
	g := NewRegistry(1)
	paths, err := g.Discover(y, y.MustLookupIndex("wp"), track.Forward, y.MustLookupIndex("ep"), 4)
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(paths, []int{0, 1}) {
		t.Fatalf("paths: %v", paths)
	}
	i, ok := g.Lookup("1/1")
	if !ok || i != 1 {
		t.Fatalf("lookup: %d %t", i, ok)
	}
	if got := g.Paths[1].UsefulLength; got != 40+320+40 {
		t.Fatalf("loop length %f", got)
	}
	if got := g.FirstUsable(0, 390); got != 1 {
		t.Fatalf("expected the loop to be the first long enough, got %d", got)
	}
	if got := g.FirstUsable(0, 1000); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}

func TestSaveRestore(t *testing.T) {
	y := initPassingLoop(t)
	g := NewRegistry(12)
	if _, err := g.Discover(y, y.MustLookupIndex("wp"), track.Forward, y.MustLookupIndex("ep"), 4); err != nil {
		t.Fatal(err)
	}
	for _, group := range []string{"down", "up", "down", "東"} {
		if err := g.AddGroup(1, group); err != nil {
			t.Fatal(err)
		}
	}
	for _, index := range []int{9, 3, 6} {
		if err := g.AllowTrain(1, index); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.ExtendEndpoint(0, 1234.5, y.MustLookupIndex("east")); err != nil {
		t.Fatal(err)
	}
	g.SubpathIndex(4, 0)
	g.SubpathIndex(1, 2)

	buf := new(bytes.Buffer)
	w := binfmt.NewWriter(buf)
	g.Save(w)
	if w.Err() != nil {
		t.Fatal(w.Err())
	}
	r := binfmt.NewReader(buf.Bytes())
	got, err := RestoreRegistry(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Done(); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(g, got, cmp.AllowUnexported(Registry{}, subpath{})) {
		t.Fatalf("diff: %s", cmp.Diff(g, got, cmp.AllowUnexported(Registry{}, subpath{})))
	}
	if !cmp.Equal(got.Paths[1].Groups, []string{"down", "up", "東"}) {
		t.Fatalf("groups: %v", got.Paths[1].Groups)
	}
	if !cmp.Equal(got.Paths[1].AllowedTrains, []int{9, 3, 6}) {
		t.Fatalf("allowed order not preserved: %v", got.Paths[1].AllowedTrains)
	}
}

func TestRestoreRejects(t *testing.T) {
	p := &Path{
		Route:                  track.PartialPath{track.NewElement(2, track.Reverse)},
		Name:                   "alt",
		Groups:                 []string{"g"},
		AllowedTrains:          []int{1},
		EndSectionIndex:        2,
		LastUsefulSectionIndex: 2,
	}
	buf := new(bytes.Buffer)
	w := binfmt.NewWriter(buf)
	p.Save(w)
	saved := buf.Bytes()

	got, err := RestorePath(binfmt.NewReader(saved))
	if err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(p, got, cmpopts.EquateEmpty()) {
		t.Fatalf("diff: %s", cmp.Diff(p, got))
	}

	// route: count(4) + 7 ints(28) + 1 bool byte; then name: 1 length byte + 3 bytes
	groupCount := 4 + 4*7 + 1 + 1 + 3
	negative := append([]byte(nil), saved...)
	copy(negative[groupCount:], []byte{0xff, 0xff, 0xff, 0xff})
	if _, err := RestorePath(binfmt.NewReader(negative)); !errors.Is(err, binfmt.ErrDecode) {
		t.Fatalf("negative count: expected ErrDecode, got %v", err)
	}

	overrun := append([]byte(nil), saved...)
	overrun[groupCount-4] = 100
	if _, err := RestorePath(binfmt.NewReader(overrun)); !errors.Is(err, binfmt.ErrDecode) {
		t.Fatalf("string overrun: expected ErrDecode, got %v", err)
	}

	if _, err := RestorePath(binfmt.NewReader(saved[:len(saved)-1])); !errors.Is(err, binfmt.ErrDecode) {
		t.Fatalf("short: expected ErrDecode, got %v", err)
	}

	buf.Reset()
	(&Path{LastUsefulSectionIndex: -1}).Save(w)
	if _, err := RestorePath(binfmt.NewReader(buf.Bytes())); !errors.Is(err, binfmt.ErrDecode) {
		t.Fatalf("empty route: expected ErrDecode, got %v", err)
	}
}

func TestPathCheck(t *testing.T) {
	y := initPassingLoop(t)
	g := NewRegistry(3)
	if _, err := g.Discover(y, y.MustLookupIndex("wp"), track.Forward, y.MustLookupIndex("ep"), 4); err != nil {
		t.Fatal(err)
	}
	if err := g.Check(y); err != nil {
		t.Fatal(err)
	}
	main := y.MustLookupIndex("main")
	for name, p := range map[string]*Path{
		"empty":          {LastUsefulSectionIndex: -1},
		"off the track":  {Route: track.PartialPath{track.NewElement(99, track.Forward)}, LastUsefulSectionIndex: -1},
		"unlinked":       {Route: track.PartialPath{track.NewElement(main, track.Forward), track.NewElement(main, track.Forward)}, EndSectionIndex: main, LastUsefulSectionIndex: -1},
		"end":            {Route: track.PartialPath{track.NewElement(main, track.Forward)}, EndSectionIndex: 99, LastUsefulSectionIndex: -1},
		"last useful":    {Route: track.PartialPath{track.NewElement(main, track.Forward)}, EndSectionIndex: main, LastUsefulSectionIndex: 0},
		"negative train": {Route: track.PartialPath{track.NewElement(main, track.Forward)}, EndSectionIndex: main, LastUsefulSectionIndex: -1, AllowedTrains: []int{-2}},
	} {
		if err := p.Check(y); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("%s: expected ErrInvalidPath, got %v", name, err)
		}
	}
	g.Paths = append(g.Paths, &Path{LastUsefulSectionIndex: -1})
	if err := g.Check(y); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("registry: expected ErrInvalidPath, got %v", err)
	}
}
