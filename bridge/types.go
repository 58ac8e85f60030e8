package bridge

import (
	"strings"
	"time"

	"github.com/addis-traffic/sumo-bridge/traci"
)

// The views in this file are the JSON shapes the dashboard consumes. They
// are derived from the traci domain records once per polling cycle: SUMO
// network coordinates become lat/lng around the Addis Ababa reference
// point, speeds become km/h, and raw signal strings become phase colors.

const (
	refLat          = 9.0320
	refLng          = 38.7469
	metersPerDegree = 111320.0
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toLatLng(p traci.Position) LatLng {
	return LatLng{
		Lat: refLat + p.Y/metersPerDegree,
		Lng: refLng + p.X/(metersPerDegree*0.9),
	}
}

// VehiclePosition carries the map coordinate plus the network placement.
type VehiclePosition struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	RoadID string  `json:"roadId"`
	LaneID string  `json:"laneId"`
}

// VehicleView is one vehicle as the dashboard sees it.
type VehicleView struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Position  VehiclePosition `json:"position"`
	Speed     float64         `json:"speed"` // km/h
	Angle     float64         `json:"angle"`
	Route     []string        `json:"route"`
	Timestamp int64           `json:"timestamp"` // unix millis

	WaitingTime            *float64 `json:"waitingTime,omitempty"`
	AccumulatedWaitingTime *float64 `json:"accumulatedWaitingTime,omitempty"`
	Distance               *float64 `json:"distance,omitempty"`
	CO2Emission            *float64 `json:"co2Emission,omitempty"`
	FuelConsumption        *float64 `json:"fuelConsumption,omitempty"`
	NoiseEmission          *float64 `json:"noiseEmission,omitempty"`
}

// EmergencyVehicleView extends a vehicle with dispatch metadata.
type EmergencyVehicleView struct {
	VehicleView
	EmergencyType string `json:"emergencyType"`
	Priority      string `json:"priority"`
	Status        string `json:"status"`
}

// IntersectionView is one signal-controlled intersection.
type IntersectionView struct {
	ID            string  `json:"id"`
	Position      LatLng  `json:"position"`
	Phase         string  `json:"phase"` // dominant color of the current state
	State         string  `json:"state"` // raw red/yellow/green string
	PhaseIndex    int     `json:"phaseIndex"`
	RemainingTime float64 `json:"remainingTime"` // seconds until next switch
	Program       string  `json:"program,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// LaneView is one lane of a road with its derived flow figures.
type LaneView struct {
	ID           string  `json:"id"`
	VehicleCount int     `json:"vehicleCount"`
	AverageSpeed float64 `json:"averageSpeed"` // km/h
	Density      float64 `json:"density"`      // vehicles per km
	Flow         float64 `json:"flow"`         // vehicles per hour
}

// RoadView is one edge with congestion classification.
type RoadView struct {
	ID              string     `json:"id"`
	VehicleCount    int        `json:"vehicleCount"`
	AverageSpeed    float64    `json:"averageSpeed"` // km/h
	VehicleIDs      []string   `json:"vehicleIds"`
	Occupancy       *float64   `json:"occupancy,omitempty"`
	Lanes           []LaneView `json:"lanes"`
	CongestionLevel string     `json:"congestionLevel"`
	Timestamp       int64      `json:"timestamp"`
}

// StatsView mirrors the simulation counters the dashboard charts.
type StatsView struct {
	CurrentTime      float64 `json:"currentTime"`
	LoadedVehicles   int     `json:"loadedVehicles"`
	DepartedVehicles int     `json:"departedVehicles"`
	ArrivedVehicles  int     `json:"arrivedVehicles"`
	ActiveVehicles   int     `json:"activeVehicles"`
	Timestamp        int64   `json:"timestamp"`
}

// Snapshot is everything one polling cycle produced. It is what the REST
// layer serves and the WebSocket hub broadcasts.
type Snapshot struct {
	Vehicles          []VehicleView          `json:"vehicles"`
	EmergencyVehicles []EmergencyVehicleView `json:"emergencyVehicles"`
	Intersections     []IntersectionView     `json:"intersections"`
	Roads             []RoadView             `json:"roads"`
	Stats             StatsView              `json:"stats"`
	Timestamp         int64                  `json:"timestamp"`
}

func msToKmh(ms float64) float64 {
	return ms * 3.6
}

var vehicleTypeNames = map[string]string{
	"passenger":  "car",
	"bus":        "bus",
	"truck":      "truck",
	"motorcycle": "motorcycle",
	"bicycle":    "bicycle",
	"emergency":  "emergency",
}

func mapVehicleType(sumoType string) string {
	if name, ok := vehicleTypeNames[sumoType]; ok {
		return name
	}
	return "car"
}

var emergencyKeywords = []string{"ambulance", "police", "fire", "emergency", "rescue"}

func isEmergencyVehicle(id, sumoType string) bool {
	probe := strings.ToLower(id + sumoType)
	for _, kw := range emergencyKeywords {
		if strings.Contains(probe, kw) {
			return true
		}
	}
	return false
}

func emergencyType(id, sumoType string) string {
	probe := strings.ToLower(id + sumoType)
	switch {
	case strings.Contains(probe, "ambulance"):
		return "ambulance"
	case strings.Contains(probe, "police"):
		return "police"
	case strings.Contains(probe, "fire"):
		return "fire"
	default:
		return "rescue"
	}
}

// phaseColor reduces a red/yellow/green link string to the dashboard's
// single phase color, taking the first controlled link as representative.
func phaseColor(state string) string {
	if state == "" {
		return "red"
	}
	switch state[0] {
	case 'g', 'G':
		return "green"
	case 'y', 'Y':
		return "yellow"
	default:
		return "red"
	}
}

// congestionLevel classifies an edge by its mean speed in m/s.
func congestionLevel(meanSpeed float64) string {
	switch {
	case meanSpeed < 5.0:
		return "high"
	case meanSpeed < 15.0:
		return "medium"
	default:
		return "low"
	}
}

func buildVehicleView(v traci.Vehicle, now time.Time) VehicleView {
	pos := toLatLng(v.Position)
	return VehicleView{
		ID:   v.ID,
		Type: mapVehicleType(v.TypeID),
		Position: VehiclePosition{
			Lat:    pos.Lat,
			Lng:    pos.Lng,
			RoadID: v.RoadID,
			LaneID: v.LaneID,
		},
		Speed:                  msToKmh(v.Speed),
		Angle:                  v.Angle,
		Route:                  v.Route,
		Timestamp:              now.UnixMilli(),
		WaitingTime:            v.WaitingTime,
		AccumulatedWaitingTime: v.AccumulatedWaitingTime,
		Distance:               v.Distance,
		CO2Emission:            v.CO2Emission,
		FuelConsumption:        v.FuelConsumption,
		NoiseEmission:          v.NoiseEmission,
	}
}

func buildIntersectionView(tl traci.TrafficLight, simTime float64, now time.Time) IntersectionView {
	remaining := tl.NextSwitch - simTime
	if remaining < 0 {
		remaining = 0
	}
	return IntersectionView{
		ID:            tl.ID,
		Position:      intersectionPosition(tl.ID),
		Phase:         phaseColor(tl.State),
		State:         tl.State,
		PhaseIndex:    tl.Phase,
		RemainingTime: remaining,
		Program:       tl.Program,
		Timestamp:     now.UnixMilli(),
	}
}

// intersectionPosition spreads intersections deterministically around the
// reference point; the network file carries no junction geometry over TraCI
// in the modeled subset.
func intersectionPosition(id string) LatLng {
	var h uint32
	for _, r := range id {
		h = h*31 + uint32(r)
	}
	return LatLng{
		Lat: refLat + float64(h%1000)/100000.0,
		Lng: refLng + float64(h%1000)/100000.0,
	}
}

func buildRoadView(e traci.Edge, now time.Time) RoadView {
	road := RoadView{
		ID:              e.ID,
		VehicleCount:    e.VehicleCount,
		AverageSpeed:    msToKmh(e.MeanSpeed),
		VehicleIDs:      e.VehicleIDs,
		Occupancy:       e.Occupancy,
		CongestionLevel: congestionLevel(e.MeanSpeed),
		Timestamp:       now.UnixMilli(),
	}
	for _, lane := range e.Lanes {
		view := LaneView{
			ID:           lane.ID,
			VehicleCount: lane.VehicleCount,
			AverageSpeed: msToKmh(lane.MeanSpeed),
		}
		if lane.Length > 0 {
			view.Density = float64(lane.VehicleCount) / (lane.Length / 1000)
		}
		if lane.Length > 0 && lane.MeanSpeed > 0 {
			view.Flow = float64(lane.VehicleCount) * 3600 / lane.Length * lane.MeanSpeed
		}
		road.Lanes = append(road.Lanes, view)
	}
	return road
}

func buildStatsView(stats traci.SimStats, active int, now time.Time) StatsView {
	return StatsView{
		CurrentTime:      stats.Time,
		LoadedVehicles:   stats.Loaded,
		DepartedVehicles: stats.Departed,
		ArrivedVehicles:  stats.Arrived,
		ActiveVehicles:   active,
		Timestamp:        now.UnixMilli(),
	}
}
