package traci

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// State is the connection-level lifecycle of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshake
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshake:
		return "HANDSHAKE"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// ClientOptions configures a Client. Zero values pick the defaults.
type ClientOptions struct {
	RequestTimeout time.Duration // per-request deadline, defaults to DefaultRequestTimeout
	WarningBuffer  int           // capacity of the lenient-decode warning channel, defaults to 64
}

// Client is the domain query façade over one TraCI connection. It owns the
// socket, the frame decoder feeding the read pump, and the correlator that
// serializes all wire traffic. Batch methods fan out logically but every
// query funnels through the correlator's single slot.
//
// The client never reconnects on its own: a transport failure while READY
// marks it DISCONNECTED and is surfaced to the next caller, and recovery is
// a fresh Connect by whoever orchestrates the client.
type Client struct {
	timeout  time.Duration
	warnings chan Warning

	mu      sync.Mutex
	state   State
	conn    net.Conn
	corr    *Correlator
	lastErr error
	version string
}

// NewClient builds a disconnected client.
func NewClient(opts ClientOptions) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.WarningBuffer <= 0 {
		opts.WarningBuffer = 64
	}
	return &Client{
		timeout:  opts.RequestTimeout,
		warnings: make(chan Warning, opts.WarningBuffer),
	}
}

// Connect dials the simulator, performs the version handshake, and moves the
// client to READY. It fails on transport errors, a rejected handshake, or
// ctx expiry, leaving the client DISCONNECTED.
func (c *Client) Connect(ctx context.Context, addr string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.lastErr = nil
	c.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("traci: dial %s: %w", addr, err)
	}

	corr := NewCorrelator(conn, c.timeout)
	c.mu.Lock()
	c.conn = conn
	c.corr = corr
	c.state = StateHandshake
	c.mu.Unlock()
	go c.readLoop(conn, corr)

	data, err := c.request(ctx, CmdGetVersion, nil)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("traci: handshake: %w", err)
	}

	c.mu.Lock()
	c.version = DecodeString(data)
	c.state = StateReady
	version := c.version
	c.mu.Unlock()

	slog.Info("connected to simulator", "addr", addr, "server", version)
	return nil
}

// Disconnect best-effort sends the close command, then tears the socket down
// regardless of the result. Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	corr := c.corr
	c.state = StateDisconnected
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := corr.Roundtrip(ctx, EncodeFrame(CmdClose, nil)); err != nil {
		slog.Debug("close command not acknowledged", "error", err)
	}

	if err := conn.Close(); err != nil {
		slog.Debug("socket close", "error", err)
	}
	slog.Info("disconnected from simulator")
	return nil
}

// State returns the connection lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether queries can be issued right now.
func (c *Client) Ready() bool {
	return c.State() == StateReady
}

// ServerVersion returns the version string from the handshake response.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Warnings exposes lenient-decode warnings. The channel is buffered and
// never blocks the read pump; drain it or lose the oldest entries.
func (c *Client) Warnings() <-chan Warning {
	return c.warnings
}

// SimulationStep advances simulated time by one step. Fire-and-forget from
// the caller's perspective, but the acknowledgement still flows through the
// correlator like every other response.
func (c *Client) SimulationStep(ctx context.Context) error {
	_, err := c.request(ctx, CmdSimStep, nil)
	return err
}

// SetTrafficLightState overrides an intersection's red/yellow/green state
// for duration seconds. This is the only modeled set-variable command.
func (c *Client) SetTrafficLightState(ctx context.Context, id, state string, duration float64) error {
	_, err := c.request(ctx, CmdSetTrafficLightVariable, EncodeSetTrafficLightState(id, state, duration))
	return err
}

// GetVehicleIDs lists the ids of every vehicle active in the network.
func (c *Client) GetVehicleIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, CmdGetVehicleVariable, VarIDList, "")
}

// GetVehicleData assembles one vehicle record. Required fields fail the
// whole record; optional telemetry that fails is simply omitted.
func (c *Client) GetVehicleData(ctx context.Context, id string) (*Vehicle, error) {
	v := &Vehicle{ID: id}

	x, y, err := c.getPosition(ctx, CmdGetVehicleVariable, VarPosition, id)
	if err != nil {
		return nil, fmt.Errorf("vehicle %s position: %w", id, err)
	}
	v.Position = Position{X: x, Y: y}

	required := []struct {
		variable byte
		assign   func(context.Context) error
	}{
		{VarSpeed, func(ctx context.Context) (err error) {
			v.Speed, err = c.getDouble(ctx, CmdGetVehicleVariable, VarSpeed, id)
			return
		}},
		{VarAngle, func(ctx context.Context) (err error) {
			v.Angle, err = c.getDouble(ctx, CmdGetVehicleVariable, VarAngle, id)
			return
		}},
		{VarRoadID, func(ctx context.Context) (err error) {
			v.RoadID, err = c.getString(ctx, CmdGetVehicleVariable, VarRoadID, id)
			return
		}},
		{VarLaneID, func(ctx context.Context) (err error) {
			v.LaneID, err = c.getString(ctx, CmdGetVehicleVariable, VarLaneID, id)
			return
		}},
		{VarTypeID, func(ctx context.Context) (err error) {
			v.TypeID, err = c.getString(ctx, CmdGetVehicleVariable, VarTypeID, id)
			return
		}},
		{VarRouteEdges, func(ctx context.Context) (err error) {
			v.Route, err = c.getStringList(ctx, CmdGetVehicleVariable, VarRouteEdges, id)
			return
		}},
	}
	for _, q := range required {
		if err := q.assign(ctx); err != nil {
			return nil, fmt.Errorf("vehicle %s variable 0x%02X: %w", id, q.variable, err)
		}
	}

	optional := []struct {
		variable byte
		dst      **float64
	}{
		{VarWaitingTime, &v.WaitingTime},
		{VarAccumulatedWaitingTime, &v.AccumulatedWaitingTime},
		{VarDistance, &v.Distance},
		{VarCO2Emission, &v.CO2Emission},
		{VarFuelConsumption, &v.FuelConsumption},
		{VarNoiseEmission, &v.NoiseEmission},
	}
	for _, q := range optional {
		value, err := c.getDouble(ctx, CmdGetVehicleVariable, q.variable, id)
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			slog.Debug("optional vehicle telemetry unavailable", "vehicle", id,
				"variable", fmt.Sprintf("0x%02X", q.variable), "error", err)
			continue
		}
		*q.dst = &value
	}

	return v, nil
}

// GetAllVehiclesData fetches the id list, then fans out per-id detail
// queries. A vehicle whose required queries fail is dropped from the result
// with its reason logged; the batch itself only fails on errors that poison
// the connection.
func (c *Client) GetAllVehiclesData(ctx context.Context) ([]Vehicle, error) {
	ids, err := c.GetVehicleIDs(ctx)
	if err != nil {
		return nil, err
	}

	vehicles := make([]Vehicle, 0, len(ids))
	for _, id := range ids {
		v, err := c.GetVehicleData(ctx, id)
		if err != nil {
			if IsFatal(err) {
				return vehicles, err
			}
			slog.Warn("dropping vehicle record", "vehicle", id, "error", err)
			continue
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, nil
}

// GetTrafficLightIDs lists the ids of every signal-controlled intersection.
func (c *Client) GetTrafficLightIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, CmdGetTrafficLightVariable, VarIDList, "")
}

// GetTrafficLightData assembles one intersection record. The program id is
// optional; everything else is required.
func (c *Client) GetTrafficLightData(ctx context.Context, id string) (*TrafficLight, error) {
	tl := &TrafficLight{ID: id}
	var err error

	if tl.State, err = c.getString(ctx, CmdGetTrafficLightVariable, VarTLStateRYG, id); err != nil {
		return nil, fmt.Errorf("traffic light %s state: %w", id, err)
	}
	phase, err := c.getDouble(ctx, CmdGetTrafficLightVariable, VarTLPhaseIndex, id)
	if err != nil {
		return nil, fmt.Errorf("traffic light %s phase: %w", id, err)
	}
	tl.Phase = int(phase)
	if tl.NextSwitch, err = c.getDouble(ctx, CmdGetTrafficLightVariable, VarTLNextSwitch, id); err != nil {
		return nil, fmt.Errorf("traffic light %s next switch: %w", id, err)
	}

	program, err := c.getString(ctx, CmdGetTrafficLightVariable, VarTLProgram, id)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		slog.Debug("traffic light program unavailable", "id", id, "error", err)
	} else {
		tl.Program = program
	}
	return tl, nil
}

// GetAllTrafficLightsData fans out per-intersection queries with the same
// drop-and-log policy as the vehicle batch.
func (c *Client) GetAllTrafficLightsData(ctx context.Context) ([]TrafficLight, error) {
	ids, err := c.GetTrafficLightIDs(ctx)
	if err != nil {
		return nil, err
	}

	lights := make([]TrafficLight, 0, len(ids))
	for _, id := range ids {
		tl, err := c.GetTrafficLightData(ctx, id)
		if err != nil {
			if IsFatal(err) {
				return lights, err
			}
			slog.Warn("dropping traffic light record", "traffic_light", id, "error", err)
			continue
		}
		lights = append(lights, *tl)
	}
	return lights, nil
}

// GetEdgeIDs lists the ids of every edge in the network.
func (c *Client) GetEdgeIDs(ctx context.Context) ([]string, error) {
	return c.getStringList(ctx, CmdGetEdgeVariable, VarIDList, "")
}

// GetEdgeData assembles one edge record. Vehicle count, mean speed and the
// vehicle id list are required; occupancy, length and the per-lane
// sub-records are best effort.
func (c *Client) GetEdgeData(ctx context.Context, id string) (*Edge, error) {
	e := &Edge{ID: id}

	count, err := c.getDouble(ctx, CmdGetEdgeVariable, VarLastStepVehicleNumber, id)
	if err != nil {
		return nil, fmt.Errorf("edge %s vehicle count: %w", id, err)
	}
	e.VehicleCount = int(count)
	if e.MeanSpeed, err = c.getDouble(ctx, CmdGetEdgeVariable, VarLastStepMeanSpeed, id); err != nil {
		return nil, fmt.Errorf("edge %s mean speed: %w", id, err)
	}
	if e.VehicleIDs, err = c.getStringList(ctx, CmdGetEdgeVariable, VarLastStepVehicleIDs, id); err != nil {
		return nil, fmt.Errorf("edge %s vehicle ids: %w", id, err)
	}

	if occ, err := c.getDouble(ctx, CmdGetEdgeVariable, VarLastStepOccupancy, id); err == nil {
		e.Occupancy = &occ
	} else if IsFatal(err) {
		return nil, err
	}
	if length, err := c.getDouble(ctx, CmdGetEdgeVariable, VarLength, id); err == nil {
		e.Length = &length
	} else if IsFatal(err) {
		return nil, err
	}

	laneCount, err := c.getDouble(ctx, CmdGetEdgeVariable, VarLaneNumber, id)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		return e, nil
	}
	for i := 0; i < int(laneCount); i++ {
		lane, err := c.getLaneData(ctx, fmt.Sprintf("%s_%d", id, i))
		if err != nil {
			if IsFatal(err) {
				return nil, err
			}
			slog.Debug("lane sub-record unavailable", "edge", id, "lane_index", i, "error", err)
			continue
		}
		e.Lanes = append(e.Lanes, *lane)
	}
	return e, nil
}

// GetAllEdgesData fans out per-edge queries with the same drop-and-log
// policy as the vehicle batch.
func (c *Client) GetAllEdgesData(ctx context.Context) ([]Edge, error) {
	ids, err := c.GetEdgeIDs(ctx)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(ids))
	for _, id := range ids {
		e, err := c.GetEdgeData(ctx, id)
		if err != nil {
			if IsFatal(err) {
				return edges, err
			}
			slog.Warn("dropping edge record", "edge", id, "error", err)
			continue
		}
		edges = append(edges, *e)
	}
	return edges, nil
}

// SimulationStats queries the simulation-scope counters.
func (c *Client) SimulationStats(ctx context.Context) (*SimStats, error) {
	stats := &SimStats{}
	var err error

	if stats.Time, err = c.getDouble(ctx, CmdGetSimVariable, VarSimTime, ""); err != nil {
		return nil, fmt.Errorf("simulation time: %w", err)
	}
	counters := []struct {
		variable byte
		dst      *int
	}{
		{VarLoadedNumber, &stats.Loaded},
		{VarDepartedNumber, &stats.Departed},
		{VarArrivedNumber, &stats.Arrived},
		{VarMinExpectedCount, &stats.MinExpected},
	}
	for _, q := range counters {
		value, err := c.getDouble(ctx, CmdGetSimVariable, q.variable, "")
		if err != nil {
			return nil, fmt.Errorf("simulation counter 0x%02X: %w", q.variable, err)
		}
		*q.dst = int(value)
	}
	return stats, nil
}

func (c *Client) getLaneData(ctx context.Context, id string) (*Lane, error) {
	lane := &Lane{ID: id}

	count, err := c.getDouble(ctx, CmdGetLaneVariable, VarLastStepVehicleNumber, id)
	if err != nil {
		return nil, err
	}
	lane.VehicleCount = int(count)
	if lane.MeanSpeed, err = c.getDouble(ctx, CmdGetLaneVariable, VarLastStepMeanSpeed, id); err != nil {
		return nil, err
	}
	if lane.Length, err = c.getDouble(ctx, CmdGetLaneVariable, VarLength, id); err != nil {
		return nil, err
	}
	return lane, nil
}

// request writes one command through the correlator and unwraps the result
// code. A non-zero code becomes a ResultError carrying the server-supplied
// description; the connection stays usable.
func (c *Client) request(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	c.mu.Lock()
	state := c.state
	corr := c.corr
	lastErr := c.lastErr
	c.mu.Unlock()

	if state != StateReady && state != StateHandshake {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, lastErr)
		}
		return nil, ErrClosed
	}

	resp, err := corr.Roundtrip(ctx, EncodeFrame(cmd, payload))
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) < 1 {
		return nil, fmt.Errorf("%w: response for command 0x%02X carries no result code", ErrFraming, cmd)
	}
	if code := resp.Payload[0]; code != ResultOK {
		return nil, &ResultError{Command: cmd, Code: code, Description: DecodeString(resp.Payload[1:])}
	}
	return resp.Payload[1:], nil
}

func (c *Client) getVariable(ctx context.Context, cmd, variable byte, objectID string) ([]byte, error) {
	return c.request(ctx, cmd, EncodeGetVariable(variable, objectID))
}

func (c *Client) getDouble(ctx context.Context, cmd, variable byte, objectID string) (float64, error) {
	data, err := c.getVariable(ctx, cmd, variable, objectID)
	if err != nil {
		return 0, err
	}
	value, warn := DecodeDouble(data)
	c.forward(warn, variable, objectID)
	return value, nil
}

func (c *Client) getPosition(ctx context.Context, cmd, variable byte, objectID string) (float64, float64, error) {
	data, err := c.getVariable(ctx, cmd, variable, objectID)
	if err != nil {
		return 0, 0, err
	}
	x, y, warn := DecodePosition(data)
	c.forward(warn, variable, objectID)
	return x, y, nil
}

func (c *Client) getString(ctx context.Context, cmd, variable byte, objectID string) (string, error) {
	data, err := c.getVariable(ctx, cmd, variable, objectID)
	if err != nil {
		return "", err
	}
	return DecodeString(data), nil
}

func (c *Client) getStringList(ctx context.Context, cmd, variable byte, objectID string) ([]string, error) {
	data, err := c.getVariable(ctx, cmd, variable, objectID)
	if err != nil {
		return nil, err
	}
	list, warn := DecodeStringList(data)
	c.forward(warn, variable, objectID)
	return list, nil
}

// forward publishes a lenient-decode warning without ever blocking; the
// buffered channel drops on overflow and the log line remains.
func (c *Client) forward(warn *Warning, variable byte, objectID string) {
	if warn == nil {
		return
	}
	warn.Variable = variable
	warn.ObjectID = objectID
	slog.Warn("lenient decode", "variable", fmt.Sprintf("0x%02X", variable), "object", objectID, "reason", warn.Reason)
	select {
	case c.warnings <- *warn:
	default:
	}
}

// readLoop pumps socket bytes through the frame decoder into the correlator.
// Chunks arrive in arbitrary sizes; the decoder reassembles them without
// blocking any pending logical operation. A read or framing error poisons
// the correlator and marks the client DISCONNECTED.
func (c *Client) readLoop(conn net.Conn, corr *Correlator) {
	dec := NewFrameDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, f := range frames {
				corr.HandleFrame(f)
			}
			if ferr != nil {
				corr.Fail(ferr)
				c.transportDown(ferr)
				return
			}
		}
		if err != nil {
			werr := fmt.Errorf("%w: read: %v", ErrClosed, err)
			corr.Fail(werr)
			c.transportDown(err)
			return
		}
	}
}

// transportDown records an unexpected connection loss. The error is surfaced
// to the next caller; no reconnect is attempted here.
func (c *Client) transportDown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		// Deliberate Disconnect already ran; the read error is just the
		// socket closing under the pump.
		return
	}
	c.state = StateDisconnected
	c.lastErr = err
	c.conn.Close()
	slog.Error("connection lost", "error", err)
}
