package mocksim

import (
	"fmt"
	"sync"
)

// World is a small deterministic traffic network: a handful of edges with
// two lanes each, two signal plans, and a fixed fleet that crawls along the
// edges one step at a time. Determinism matters more than realism here; the
// world exists so the bridge and its tests never need a SUMO install.
type World struct {
	mu    sync.Mutex
	step  int
	fleet []*vehicle
	tls   []*trafficLight
	edges []*edge
}

type vehicle struct {
	id     string
	typeID string
	x, y   float64
	speed  float64
	angle  float64
	route  []string
}

type trafficLight struct {
	id      string
	phases  []string
	phase   int
	program string
}

type edge struct {
	id     string
	length float64
	lanes  int
}

var vehicleTypes = []string{"passenger", "bus", "truck", "motorcycle", "ambulance"}

// NewWorld seeds the default network with n vehicles.
func NewWorld(n int) *World {
	w := &World{
		edges: []*edge{
			{id: "edge0", length: 500, lanes: 2},
			{id: "edge1", length: 420, lanes: 2},
			{id: "edge2", length: 610, lanes: 3},
			{id: "edge3", length: 380, lanes: 1},
		},
		tls: []*trafficLight{
			{id: "tls0", phases: []string{"GGrr", "yyrr", "rrGG", "rryy"}, program: "default"},
			{id: "tls1", phases: []string{"GrGr", "yryr", "rGrG", "ryry"}, program: "default"},
		},
	}
	for i := 0; i < n; i++ {
		w.fleet = append(w.fleet, &vehicle{
			id:     fmt.Sprintf("veh%d", i),
			typeID: vehicleTypes[i%len(vehicleTypes)],
			x:      float64(80 * i),
			y:      float64(40 * i),
			speed:  6 + float64(i%7),
			angle:  float64((i * 36) % 360),
			route:  []string{w.edges[i%4].id, w.edges[(i+1)%4].id},
		})
	}
	return w
}

// Advance moves the world one simulation step.
func (w *World) Advance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step++
	for _, v := range w.fleet {
		v.x += v.speed
		v.y += v.speed / 2
	}
	for _, t := range w.tls {
		if w.step%10 == 0 {
			t.phase = (t.phase + 1) % len(t.phases)
		}
	}
}

// Step returns the current step count.
func (w *World) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *World) vehicleIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, len(w.fleet))
	for i, v := range w.fleet {
		ids[i] = v.id
	}
	return ids
}

func (w *World) vehicleByID(id string) (vehicle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, v := range w.fleet {
		if v.id == id {
			return *v, true
		}
	}
	return vehicle{}, false
}

func (w *World) trafficLightIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, len(w.tls))
	for i, t := range w.tls {
		ids[i] = t.id
	}
	return ids
}

func (w *World) trafficLightByID(id string) (trafficLight, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.tls {
		if t.id == id {
			return *t, true
		}
	}
	return trafficLight{}, false
}

func (w *World) setTrafficLightState(id, state string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.tls {
		if t.id == id {
			t.phases = []string{state}
			t.phase = 0
			t.program = "override"
			return true
		}
	}
	return false
}

func (w *World) edgeIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, len(w.edges))
	for i, e := range w.edges {
		ids[i] = e.id
	}
	return ids
}

func (w *World) edgeByID(id string) (edge, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.edges {
		if e.id == id {
			return *e, true
		}
	}
	return edge{}, false
}

// vehiclesOnEdge lists the fleet members whose current route starts at the
// given edge. Good enough for a scripted world.
func (w *World) vehiclesOnEdge(id string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ids []string
	for _, v := range w.fleet {
		if len(v.route) > 0 && v.route[0] == id {
			ids = append(ids, v.id)
		}
	}
	return ids
}

func (w *World) stats() (simTime float64, loaded, departed, arrived int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return float64(w.step), len(w.fleet), len(w.fleet), 0
}
