package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/addis-traffic/sumo-bridge/traci"
)

// envelope is the JSON wrapper every REST endpoint answers with.
type envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Count     *int   `json:"count,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	env.Timestamp = time.Now().UnixMilli()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "ok", Data: data})
}

func writeList(w http.ResponseWriter, data any, count int) {
	writeJSON(w, http.StatusOK, envelope{Status: "ok", Data: data, Count: &count})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: "error", Message: msg})
}

// snapshotOr503 returns the latest snapshot, answering 503 when no polling
// cycle has completed yet (nothing is connected or the poller just started).
func (s *Server) snapshotOr503(w http.ResponseWriter) *Snapshot {
	snap := s.poller.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no simulation data yet")
	}
	return snap
}

// HandleHealth reports liveness regardless of the SUMO connection.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"service":   "sumo-bridge",
		"connected": s.sim.Ready(),
	})
}

// HandleStatus describes the connection and poller state.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{
		"connected":    s.sim.Ready(),
		"state":        s.sim.State().String(),
		"sumoVersion":  s.sim.ServerVersion(),
		"sumoAddress":  s.sumoAddr,
		"paused":       s.poller.Paused(),
		"clients":      s.hub.Count(),
		"haveSnapshot": s.poller.Snapshot() != nil,
	})
}

// HandleVehicles serves the non-emergency vehicles of the latest snapshot.
func (s *Server) HandleVehicles(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeList(w, snap.Vehicles, len(snap.Vehicles))
}

// HandleEmergencyVehicles serves the emergency fleet of the latest snapshot.
func (s *Server) HandleEmergencyVehicles(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeList(w, snap.EmergencyVehicles, len(snap.EmergencyVehicles))
}

// HandleIntersections serves the signal states of the latest snapshot.
func (s *Server) HandleIntersections(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeList(w, snap.Intersections, len(snap.Intersections))
}

// HandleRoads serves the per-edge traffic figures of the latest snapshot.
func (s *Server) HandleRoads(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeList(w, snap.Roads, len(snap.Roads))
}

// HandleSimulationStats serves the simulation counters.
func (s *Server) HandleSimulationStats(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeOK(w, snap.Stats)
}

// HandleAllData serves the whole snapshot in one response, the shape the
// WebSocket broadcast uses.
func (s *Server) HandleAllData(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeOK(w, snap)
}

// HandleConnect dials the configured SUMO endpoint.
func (s *Server) HandleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.sim.Connect(ctx, s.sumoAddr); err != nil {
		slog.Error("connect to SUMO failed", "addr", s.sumoAddr, "error", err)
		writeError(w, http.StatusBadGateway, "could not connect to SUMO: "+err.Error())
		return
	}
	slog.Info("connected to SUMO", "addr", s.sumoAddr, "version", s.sim.ServerVersion())
	writeOK(w, map[string]any{
		"connected":   true,
		"sumoVersion": s.sim.ServerVersion(),
	})
}

// HandleDisconnect tears the SUMO connection down.
func (s *Server) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Disconnect(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeOK(w, map[string]any{"connected": false})
}

// HandlePause suspends simulation stepping without dropping the connection.
func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.poller.Pause()
	writeOK(w, map[string]any{"paused": true})
}

// HandleResume restarts simulation stepping.
func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	s.poller.Resume()
	writeOK(w, map[string]any{"paused": false})
}

// trafficLightCommand is the body of POST /command/traffic-light.
type trafficLightCommand struct {
	IntersectionID string  `json:"intersectionId"`
	Phase          string  `json:"phase"`    // red, yellow or green
	Duration       float64 `json:"duration"` // seconds, 0 means server default
}

// phaseState expands a dashboard phase color to a four-link signal string.
func phaseState(phase string) (string, bool) {
	switch strings.ToLower(phase) {
	case "green":
		return "GGGG", true
	case "yellow":
		return "yyyy", true
	case "red":
		return "rrrr", true
	default:
		return "", false
	}
}

// HandleTrafficLightOverride forces an intersection into a single phase.
func (s *Server) HandleTrafficLightOverride(w http.ResponseWriter, r *http.Request) {
	var cmd trafficLightCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if cmd.IntersectionID == "" {
		writeError(w, http.StatusBadRequest, "intersectionId is required")
		return
	}
	state, ok := phaseState(cmd.Phase)
	if !ok {
		writeError(w, http.StatusBadRequest, "phase must be red, yellow or green")
		return
	}
	if cmd.Duration <= 0 {
		cmd.Duration = 30
	}

	if err := s.sim.SetTrafficLightState(r.Context(), cmd.IntersectionID, state, cmd.Duration); err != nil {
		var resErr *traci.ResultError
		if errors.As(err, &resErr) {
			writeError(w, http.StatusUnprocessableEntity, resErr.Description)
			return
		}
		slog.Error("traffic light override failed", "id", cmd.IntersectionID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	slog.Info("traffic light overridden", "id", cmd.IntersectionID, "phase", cmd.Phase, "duration", cmd.Duration)
	writeOK(w, map[string]any{
		"intersectionId": cmd.IntersectionID,
		"phase":          cmd.Phase,
		"state":          state,
		"duration":       cmd.Duration,
	})
}
