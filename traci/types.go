package traci

// Domain records assembled by the query façade. They live for one polling
// cycle and are never persisted. Optional telemetry uses pointers so an
// omitted field (its best-effort query failed) is distinguishable from a
// zero reading.

// Position is a SUMO network coordinate in meters.
type Position struct {
	X float64
	Y float64
}

// Vehicle is the aggregate of one vehicle's per-tick queries. Position
// through Route are required; the record is not emitted unless all of them
// succeeded. The remaining telemetry is optional.
type Vehicle struct {
	ID       string
	Position Position
	Speed    float64 // m/s
	Angle    float64 // degrees
	RoadID   string
	LaneID   string
	TypeID   string
	Route    []string

	WaitingTime            *float64
	AccumulatedWaitingTime *float64
	Distance               *float64
	CO2Emission            *float64
	FuelConsumption        *float64
	NoiseEmission          *float64
}

// TrafficLight describes one signal-controlled intersection.
type TrafficLight struct {
	ID         string
	State      string // red/yellow/green string, one rune per controlled link
	Phase      int
	NextSwitch float64 // simulation seconds
	Program    string  // optional, empty when its query failed
}

// Lane is a per-lane sub-record of an Edge.
type Lane struct {
	ID           string
	VehicleCount int
	MeanSpeed    float64 // m/s
	Length       float64 // meters
}

// Edge aggregates one road segment. VehicleCount, MeanSpeed and VehicleIDs
// are required; occupancy, length and the lane sub-records are best effort.
type Edge struct {
	ID           string
	VehicleCount int
	MeanSpeed    float64 // m/s
	VehicleIDs   []string
	Occupancy    *float64
	Length       *float64
	Lanes        []Lane
}

// SimStats mirrors the simulation-scope counters the dashboard charts.
type SimStats struct {
	Time        float64 // simulation seconds
	Loaded      int
	Departed    int
	Arrived     int
	MinExpected int
}
