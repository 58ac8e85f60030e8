package traci

// Command identifiers for the TraCI subset the bridge speaks. Responses to
// the get-variable commands carry the request id with bit 0x10 set.
const (
	CmdGetVersion byte = 0x00
	CmdSimStep    byte = 0x02
	CmdClose      byte = 0x7F

	CmdGetTrafficLightVariable byte = 0xA2
	CmdGetLaneVariable         byte = 0xA3
	CmdGetVehicleVariable      byte = 0xA4
	CmdGetEdgeVariable         byte = 0xAA
	CmdGetSimVariable          byte = 0xAB

	CmdSetTrafficLightVariable byte = 0xC2
)

// ResponseFor returns the response command id paired with a get command.
func ResponseFor(cmd byte) byte {
	return cmd | 0x10
}

// Variable identifiers. VarIDList is shared by every object domain.
const (
	VarIDList byte = 0x00

	// Vehicle domain
	VarSpeed                  byte = 0x40
	VarPosition               byte = 0x42
	VarAngle                  byte = 0x43
	VarTypeID                 byte = 0x4F
	VarRoadID                 byte = 0x50
	VarLaneID                 byte = 0x51
	VarRouteEdges             byte = 0x54
	VarCO2Emission            byte = 0x60
	VarFuelConsumption        byte = 0x65
	VarNoiseEmission          byte = 0x66
	VarWaitingTime            byte = 0x7A
	VarDistance               byte = 0x84
	VarAccumulatedWaitingTime byte = 0x87

	// Traffic light domain
	VarTLStateRYG   byte = 0x20
	VarTLPhaseIndex byte = 0x28
	VarTLProgram    byte = 0x29
	VarTLNextSwitch byte = 0x2D

	// Edge and lane domain
	VarLastStepVehicleNumber byte = 0x10
	VarLastStepMeanSpeed     byte = 0x11
	VarLastStepVehicleIDs    byte = 0x12
	VarLastStepOccupancy     byte = 0x13
	VarLength                byte = 0x44
	VarLaneNumber            byte = 0x34

	// Simulation domain
	VarSimTime          byte = 0x66
	VarLoadedNumber     byte = 0x71
	VarDepartedNumber   byte = 0x73
	VarArrivedNumber    byte = 0x79
	VarMinExpectedCount byte = 0x7D
)

// Result codes carried in the first payload byte of a response frame.
const (
	ResultOK  byte = 0x00
	ResultErr byte = 0xFF
)
