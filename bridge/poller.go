package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/addis-traffic/sumo-bridge/traci"
)

// Sim is the slice of the TraCI client the bridge needs. *traci.Client
// satisfies it; tests substitute a scripted implementation.
type Sim interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Ready() bool
	State() traci.State
	ServerVersion() string
	SimulationStep(ctx context.Context) error
	SimulationStats(ctx context.Context) (*traci.SimStats, error)
	GetAllVehiclesData(ctx context.Context) ([]traci.Vehicle, error)
	GetAllTrafficLightsData(ctx context.Context) ([]traci.TrafficLight, error)
	GetAllEdgesData(ctx context.Context) ([]traci.Edge, error)
	SetTrafficLightState(ctx context.Context, id, state string, duration float64) error
}

// Poller drives the simulation and caches the latest Snapshot. Each tick it
// steps simulated time, fans the aggregate queries out through the client
// (which serializes them on the wire), and hands the assembled snapshot to
// every registered listener.
//
// The poller never reconnects: when the client is not READY the tick is
// skipped, and bringing the connection back is the operator's call through
// the REST layer.
type Poller struct {
	sim      Sim
	interval time.Duration

	mu        sync.RWMutex
	paused    bool
	snapshot  *Snapshot
	listeners []func(*Snapshot)
}

// NewPoller builds a poller; a non-positive interval defaults to one second,
// the cadence the dashboard polls at.
func NewPoller(sim Sim, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{sim: sim, interval: interval}
}

// OnSnapshot registers a listener invoked after every completed cycle.
// Register before Run; listeners run on the polling goroutine.
func (p *Poller) OnSnapshot(fn func(*Snapshot)) {
	p.listeners = append(p.listeners, fn)
}

// Run loops until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if p.Paused() || !p.sim.Ready() {
		return
	}

	started := time.Now()
	snap, err := p.pollOnce(ctx)
	recordPollCycle(time.Since(started), err)
	if err != nil {
		// A failed cycle usually means the connection died mid-batch; the
		// client is already DISCONNECTED and the next ticks will skip.
		slog.Error("polling cycle failed", "error", err)
		return
	}

	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()

	for _, fn := range p.listeners {
		fn(snap)
	}
}

// pollOnce advances the simulation one step and assembles a snapshot.
func (p *Poller) pollOnce(ctx context.Context) (*Snapshot, error) {
	if err := p.sim.SimulationStep(ctx); err != nil {
		return nil, err
	}

	vehicles, err := p.sim.GetAllVehiclesData(ctx)
	if err != nil {
		return nil, err
	}
	lights, err := p.sim.GetAllTrafficLightsData(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := p.sim.GetAllEdgesData(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := p.sim.SimulationStats(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snap := &Snapshot{
		Vehicles:          make([]VehicleView, 0, len(vehicles)),
		EmergencyVehicles: []EmergencyVehicleView{},
		Intersections:     make([]IntersectionView, 0, len(lights)),
		Roads:             make([]RoadView, 0, len(edges)),
		Stats:             buildStatsView(*stats, len(vehicles), now),
		Timestamp:         now.UnixMilli(),
	}

	for _, v := range vehicles {
		view := buildVehicleView(v, now)
		if isEmergencyVehicle(v.ID, v.TypeID) {
			snap.EmergencyVehicles = append(snap.EmergencyVehicles, EmergencyVehicleView{
				VehicleView:   view,
				EmergencyType: emergencyType(v.ID, v.TypeID),
				Priority:      "high",
				Status:        "responding",
			})
			continue
		}
		snap.Vehicles = append(snap.Vehicles, view)
	}
	for _, tl := range lights {
		snap.Intersections = append(snap.Intersections, buildIntersectionView(tl, stats.Time, now))
	}
	for _, e := range edges {
		snap.Roads = append(snap.Roads, buildRoadView(e, now))
	}

	recordSnapshot(snap)
	return snap, nil
}

// Snapshot returns the most recent completed cycle, nil before the first.
func (p *Poller) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Pause stops stepping the simulation; the connection stays up.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	slog.Info("polling paused")
}

// Resume restarts stepping after a Pause.
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	slog.Info("polling resumed")
}

// Paused reports whether stepping is suspended.
func (p *Poller) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}
