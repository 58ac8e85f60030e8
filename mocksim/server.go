// Package mocksim is a stand-in traffic simulator. It speaks the same TraCI
// subset the bridge's client does over plain TCP, serving scripted data from
// a deterministic World, with optional fault injection for exercising the
// client's degraded-response handling.
package mocksim

import (
	"encoding/binary"
	"log/slog"
	"math"
	"net"
	"sync"

	"github.com/addis-traffic/sumo-bridge/traci"
)

// Faults selects deliberate misbehavior. All zero values mean a healthy
// simulator.
type Faults struct {
	mu sync.Mutex

	truncateVariables map[byte]bool   // respond with a short payload for these variables
	failVariables     map[byte]string // non-zero result code for these variables
	failObjects       map[string]string // non-zero result code for required queries on these objects
	withheld          int             // number of upcoming responses to swallow entirely
}

// TruncateVariable makes responses for the variable carry a 2-byte stump
// where a typed payload belongs.
func (f *Faults) TruncateVariable(variable byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.truncateVariables == nil {
		f.truncateVariables = make(map[byte]bool)
	}
	f.truncateVariables[variable] = true
}

// FailVariable makes every query for the variable answer with a non-zero
// result code and the given description.
func (f *Faults) FailVariable(variable byte, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failVariables == nil {
		f.failVariables = make(map[byte]string)
	}
	f.failVariables[variable] = description
}

// FailObject makes every query targeting the object answer with a non-zero
// result code and the given description.
func (f *Faults) FailObject(objectID, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failObjects == nil {
		f.failObjects = make(map[string]string)
	}
	f.failObjects[objectID] = description
}

// WithholdResponses swallows the next n responses without closing the
// connection, which is how a request timeout is provoked.
func (f *Faults) WithholdResponses(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withheld += n
}

func (f *Faults) truncated(variable byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truncateVariables[variable]
}

func (f *Faults) variableFailure(variable byte) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	desc, ok := f.failVariables[variable]
	return desc, ok
}

func (f *Faults) objectFailure(objectID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	desc, ok := f.failObjects[objectID]
	return desc, ok
}

func (f *Faults) swallow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.withheld > 0 {
		f.withheld--
		return true
	}
	return false
}

// Server accepts TraCI connections and answers them from its World.
type Server struct {
	world  *World
	faults *Faults

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a server around the given world. A nil world gets the
// default ten-vehicle network.
func NewServer(world *World) *Server {
	if world == nil {
		world = NewWorld(10)
	}
	return &Server{world: world, faults: &Faults{}}
}

// World exposes the scripted network, mostly for assertions in tests.
func (s *Server) World() *World {
	return s.world
}

// Faults exposes the fault injection switchboard.
func (s *Server) Faults() *Faults {
	return s.faults
}

// Start listens on addr and serves connections until Shutdown. Pass a ":0"
// port and read Addr to let the OS pick.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	slog.Info("mock simulator listening", "addr", l.Addr().String())

	for {
		conn, err := l.Accept()
		if err != nil {
			return err // listener closed
		}
		go s.handleConnection(conn)
	}
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes the listener. In-flight connections drain on their own.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConnection(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	slog.Info("bridge connected", "addr", remote)
	defer func() {
		conn.Close()
		slog.Info("bridge disconnected", "addr", remote)
	}()

	dec := traci.NewFrameDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			for _, f := range frames {
				resp, closing := s.respond(f)
				if resp != nil && !s.faults.swallow() {
					if _, err := conn.Write(resp); err != nil {
						return
					}
				}
				if closing {
					return
				}
			}
			if ferr != nil {
				slog.Warn("unreadable request stream", "addr", remote, "error", ferr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// respond computes the wire response for one request frame. The bool result
// reports that the connection should close afterwards.
func (s *Server) respond(f traci.Frame) ([]byte, bool) {
	switch f.CommandID {
	case traci.CmdGetVersion:
		return ok(f.CommandID, []byte("TraCI mocksim/1.0")), false
	case traci.CmdSimStep:
		s.world.Advance()
		return ok(f.CommandID, nil), false
	case traci.CmdClose:
		return ok(f.CommandID, nil), true
	case traci.CmdGetVehicleVariable, traci.CmdGetTrafficLightVariable,
		traci.CmdGetEdgeVariable, traci.CmdGetLaneVariable, traci.CmdGetSimVariable:
		return s.respondGet(f), false
	case traci.CmdSetTrafficLightVariable:
		return s.respondSet(f), false
	default:
		return fail(f.CommandID, "unknown command"), false
	}
}

func (s *Server) respondGet(f traci.Frame) []byte {
	variable, objectID, parsed := parseGetVariable(f.Payload)
	respCmd := traci.ResponseFor(f.CommandID)
	if !parsed {
		return fail(respCmd, "malformed get-variable payload")
	}
	if desc, bad := s.faults.variableFailure(variable); bad {
		return fail(respCmd, desc)
	}
	if desc, bad := s.faults.objectFailure(objectID); bad {
		return fail(respCmd, desc)
	}

	data, found := s.lookup(f.CommandID, variable, objectID)
	if !found {
		return fail(respCmd, "unknown object "+objectID)
	}
	if s.faults.truncated(variable) && len(data) > 2 {
		data = data[:2]
	}
	return ok(respCmd, data)
}

func (s *Server) respondSet(f traci.Frame) []byte {
	// [variableID][idLen][id][stateLen][state][duration f64 LE]
	p := f.Payload
	if len(p) < 5 {
		return fail(f.CommandID, "malformed set-variable payload")
	}
	// Declared lengths are untrusted; compare in uint64 so a length near
	// 2^32 cannot wrap the bounds check.
	idLen := binary.BigEndian.Uint32(p[1:])
	if uint64(len(p)) < 5+uint64(idLen)+4 {
		return fail(f.CommandID, "malformed set-variable payload")
	}
	id := string(p[5 : 5+idLen])
	rest := p[5+idLen:]
	stateLen := binary.BigEndian.Uint32(rest)
	if uint64(len(rest)) < 4+uint64(stateLen) {
		return fail(f.CommandID, "malformed set-variable payload")
	}
	state := string(rest[4 : 4+stateLen])

	if !s.world.setTrafficLightState(id, state) {
		return fail(f.CommandID, "unknown traffic light "+id)
	}
	slog.Info("traffic light override applied", "id", id, "state", state)
	return ok(f.CommandID, nil)
}

func (s *Server) lookup(cmd, variable byte, objectID string) ([]byte, bool) {
	switch cmd {
	case traci.CmdGetVehicleVariable:
		return s.vehicleVariable(variable, objectID)
	case traci.CmdGetTrafficLightVariable:
		return s.trafficLightVariable(variable, objectID)
	case traci.CmdGetEdgeVariable:
		return s.edgeVariable(variable, objectID)
	case traci.CmdGetLaneVariable:
		return s.laneVariable(variable, objectID)
	case traci.CmdGetSimVariable:
		return s.simVariable(variable)
	}
	return nil, false
}

func (s *Server) vehicleVariable(variable byte, objectID string) ([]byte, bool) {
	if variable == traci.VarIDList {
		return stringListBytes(s.world.vehicleIDs()), true
	}
	v, found := s.world.vehicleByID(objectID)
	if !found {
		return nil, false
	}
	switch variable {
	case traci.VarSpeed:
		return doubleBytes(v.speed), true
	case traci.VarPosition:
		return append(doubleBytes(v.x), doubleBytes(v.y)...), true
	case traci.VarAngle:
		return doubleBytes(v.angle), true
	case traci.VarTypeID:
		return []byte(v.typeID), true
	case traci.VarRoadID:
		return []byte(v.route[0]), true
	case traci.VarLaneID:
		return []byte(v.route[0] + "_0"), true
	case traci.VarRouteEdges:
		return stringListBytes(v.route), true
	case traci.VarWaitingTime, traci.VarAccumulatedWaitingTime:
		return doubleBytes(float64(len(v.id))), true
	case traci.VarDistance:
		return doubleBytes(v.x), true
	case traci.VarCO2Emission, traci.VarFuelConsumption, traci.VarNoiseEmission:
		return doubleBytes(v.speed * 10), true
	}
	return nil, false
}

func (s *Server) trafficLightVariable(variable byte, objectID string) ([]byte, bool) {
	if variable == traci.VarIDList {
		return stringListBytes(s.world.trafficLightIDs()), true
	}
	t, found := s.world.trafficLightByID(objectID)
	if !found {
		return nil, false
	}
	switch variable {
	case traci.VarTLStateRYG:
		return []byte(t.phases[t.phase]), true
	case traci.VarTLPhaseIndex:
		return doubleBytes(float64(t.phase)), true
	case traci.VarTLNextSwitch:
		return doubleBytes(float64(s.world.Step() + 10 - s.world.Step()%10)), true
	case traci.VarTLProgram:
		return []byte(t.program), true
	}
	return nil, false
}

func (s *Server) edgeVariable(variable byte, objectID string) ([]byte, bool) {
	if variable == traci.VarIDList {
		return stringListBytes(s.world.edgeIDs()), true
	}
	e, found := s.world.edgeByID(objectID)
	if !found {
		return nil, false
	}
	onEdge := s.world.vehiclesOnEdge(objectID)
	switch variable {
	case traci.VarLastStepVehicleNumber:
		return doubleBytes(float64(len(onEdge))), true
	case traci.VarLastStepMeanSpeed:
		return doubleBytes(9.5), true
	case traci.VarLastStepVehicleIDs:
		return stringListBytes(onEdge), true
	case traci.VarLastStepOccupancy:
		return doubleBytes(float64(len(onEdge)) / 20), true
	case traci.VarLength:
		return doubleBytes(e.length), true
	case traci.VarLaneNumber:
		return doubleBytes(float64(e.lanes)), true
	}
	return nil, false
}

func (s *Server) laneVariable(variable byte, objectID string) ([]byte, bool) {
	// Lane ids follow the <edge>_<index> convention.
	if len(objectID) < 2 {
		return nil, false
	}
	e, found := s.world.edgeByID(objectID[:len(objectID)-2])
	if !found {
		return nil, false
	}
	switch variable {
	case traci.VarLastStepVehicleNumber:
		return doubleBytes(float64(len(s.world.vehiclesOnEdge(e.id))) / float64(e.lanes)), true
	case traci.VarLastStepMeanSpeed:
		return doubleBytes(8.0), true
	case traci.VarLength:
		return doubleBytes(e.length), true
	}
	return nil, false
}

func (s *Server) simVariable(variable byte) ([]byte, bool) {
	simTime, loaded, departed, arrived := s.world.stats()
	switch variable {
	case traci.VarSimTime:
		return doubleBytes(simTime), true
	case traci.VarLoadedNumber:
		return doubleBytes(float64(loaded)), true
	case traci.VarDepartedNumber:
		return doubleBytes(float64(departed)), true
	case traci.VarArrivedNumber:
		return doubleBytes(float64(arrived)), true
	case traci.VarMinExpectedCount:
		return doubleBytes(float64(loaded - arrived)), true
	}
	return nil, false
}

func parseGetVariable(payload []byte) (variable byte, objectID string, ok bool) {
	if len(payload) < 5 {
		return 0, "", false
	}
	strLen := binary.BigEndian.Uint32(payload[1:])
	if uint64(len(payload)) < 5+uint64(strLen) {
		return 0, "", false
	}
	return payload[0], string(payload[5 : 5+strLen]), true
}

func ok(respCmd byte, data []byte) []byte {
	payload := make([]byte, 0, 1+len(data))
	payload = append(payload, traci.ResultOK)
	payload = append(payload, data...)
	return traci.EncodeFrame(respCmd, payload)
}

func fail(respCmd byte, description string) []byte {
	payload := make([]byte, 0, 1+len(description))
	payload = append(payload, traci.ResultErr)
	payload = append(payload, description...)
	return traci.EncodeFrame(respCmd, payload)
}

func doubleBytes(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func stringListBytes(list []string) []byte {
	size := 4
	for _, s := range list {
		size += 4 + len(s)
	}
	buf := make([]byte, 4, size)
	binary.BigEndian.PutUint32(buf, uint32(len(list)))
	for _, s := range list {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
		buf = append(buf, l[:]...)
		buf = append(buf, s...)
	}
	return buf
}
