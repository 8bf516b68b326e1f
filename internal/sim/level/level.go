// Package level loads the static description of a tower: floors and their
// elevations, holes, walls, intersection zones, enemy spawns and the scripted
// player route.
package level

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

type Level struct {
	Name          string         `yaml:"name"`
	Floors        []Floor        `yaml:"floors"`
	Holes         []Hole         `yaml:"holes"`
	Walls         []Wall         `yaml:"walls"`
	Intersections []Intersection `yaml:"intersections"`
	Agents        []Spawn        `yaml:"agents"`
	Player        Player         `yaml:"player"`
}

type Floor struct {
	Number    int     `yaml:"number"`
	Elevation float64 `yaml:"elevation"`
}

// Hole is cut into Floor; X/Z locate it on the plane, elevation comes from
// the floor.
type Hole struct {
	ID    string  `yaml:"id"`
	Floor int     `yaml:"floor"`
	X     float64 `yaml:"x"`
	Z     float64 `yaml:"z"`
}

type Wall struct {
	Floor int      `yaml:"floor"`
	Box   geom.Box `yaml:"box"`
}

// Intersection is a circular trigger zone where roaming agents may turn.
type Intersection struct {
	Floor  int     `yaml:"floor"`
	X      float64 `yaml:"x"`
	Z      float64 `yaml:"z"`
	Radius float64 `yaml:"radius"`
}

func (i Intersection) Contains(p geom.Vec3) bool {
	return geom.FlatDist(p, geom.V(i.X, 0, i.Z)) <= i.Radius
}

type Spawn struct {
	ID      string  `yaml:"id"`
	Profile string  `yaml:"profile"`
	Floor   int     `yaml:"floor"`
	X       float64 `yaml:"x"`
	Z       float64 `yaml:"z"`
	// HeadingDeg rotates the default forward heading (+Z) clockwise.
	HeadingDeg float64 `yaml:"heading_deg"`
}

type Player struct {
	ID    string     `yaml:"id"`
	Speed float64    `yaml:"speed"`
	Loop  bool       `yaml:"loop"`
	Route []Waypoint `yaml:"route"`
}

type Waypoint struct {
	Floor int     `yaml:"floor"`
	X     float64 `yaml:"x"`
	Z     float64 `yaml:"z"`
	// Wait holds the player at the waypoint for this many ticks.
	Wait int `yaml:"wait"`
}

func Load(path string) (Level, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Level{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Level, error) {
	var l Level
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("level.yaml: %w", err)
	}
	if l.Player.ID == "" {
		l.Player.ID = "player"
	}
	if err := l.Validate(); err != nil {
		return l, fmt.Errorf("level.yaml: %w", err)
	}
	return l, nil
}

func (l Level) Validate() error {
	if len(l.Floors) == 0 {
		return fmt.Errorf("no floors")
	}
	floors := map[int]bool{}
	for _, f := range l.Floors {
		if floors[f.Number] {
			return fmt.Errorf("floor %d: duplicate", f.Number)
		}
		floors[f.Number] = true
	}

	holes := map[string]bool{}
	for _, h := range l.Holes {
		if h.ID == "" {
			return fmt.Errorf("hole: empty id")
		}
		if holes[h.ID] {
			return fmt.Errorf("hole %s: duplicate id", h.ID)
		}
		holes[h.ID] = true
		if !floors[h.Floor] {
			return fmt.Errorf("hole %s: unknown floor %d", h.ID, h.Floor)
		}
		if !floors[h.Floor-1] {
			return fmt.Errorf("hole %s: floor %d has no floor below", h.ID, h.Floor)
		}
	}
	for i, w := range l.Walls {
		if !floors[w.Floor] {
			return fmt.Errorf("wall %d: unknown floor %d", i, w.Floor)
		}
		if w.Box.Min.X > w.Box.Max.X || w.Box.Min.Z > w.Box.Max.Z {
			return fmt.Errorf("wall %d: min exceeds max", i)
		}
	}
	for i, in := range l.Intersections {
		if !floors[in.Floor] {
			return fmt.Errorf("intersection %d: unknown floor %d", i, in.Floor)
		}
		if in.Radius <= 0 {
			return fmt.Errorf("intersection %d: radius must be > 0", i)
		}
	}

	ids := map[string]bool{l.Player.ID: true}
	for _, a := range l.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent: empty id")
		}
		if ids[a.ID] {
			return fmt.Errorf("agent %s: duplicate id", a.ID)
		}
		ids[a.ID] = true
		if !floors[a.Floor] {
			return fmt.Errorf("agent %s: unknown floor %d", a.ID, a.Floor)
		}
	}

	if len(l.Player.Route) == 0 {
		return fmt.Errorf("player: empty route")
	}
	for i, wp := range l.Player.Route {
		if !floors[wp.Floor] {
			return fmt.Errorf("player route %d: unknown floor %d", i, wp.Floor)
		}
		if wp.Wait < 0 {
			return fmt.Errorf("player route %d: negative wait", i)
		}
	}
	if l.Player.Speed < 0 {
		return fmt.Errorf("player: negative speed")
	}
	return nil
}

func (l Level) Elevations() map[int]float64 {
	out := make(map[int]float64, len(l.Floors))
	for _, f := range l.Floors {
		out[f.Number] = f.Elevation
	}
	return out
}

func (l Level) Elevation(floor int) float64 {
	for _, f := range l.Floors {
		if f.Number == floor {
			return f.Elevation
		}
	}
	return 0
}

// FloorNumbers returns the floor numbers in ascending order.
func (l Level) FloorNumbers() []int {
	out := make([]int, 0, len(l.Floors))
	for _, f := range l.Floors {
		out = append(out, f.Number)
	}
	sort.Ints(out)
	return out
}

// RegistryHoles converts the level's holes to registry holes placed at their
// floor's elevation.
func (l Level) RegistryHoles() []registry.Hole {
	el := l.Elevations()
	out := make([]registry.Hole, 0, len(l.Holes))
	for _, h := range l.Holes {
		out = append(out, registry.Hole{
			ID:    h.ID,
			Pos:   geom.V(h.X, el[h.Floor], h.Z),
			Floor: h.Floor,
		})
	}
	return out
}

// NewRegistry builds a registry holding the level's holes and elevations. No
// agents are registered.
func (l Level) NewRegistry() (*registry.Registry, error) {
	reg := registry.New(l.Elevations())
	for _, h := range l.RegistryHoles() {
		if err := reg.AddHole(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (l Level) WallsOn(floor int) []geom.Box {
	var out []geom.Box
	for _, w := range l.Walls {
		if w.Floor == floor {
			out = append(out, w.Box)
		}
	}
	return out
}

func (l Level) IntersectionsOn(floor int) []Intersection {
	var out []Intersection
	for _, in := range l.Intersections {
		if in.Floor == floor {
			out = append(out, in)
		}
	}
	return out
}
