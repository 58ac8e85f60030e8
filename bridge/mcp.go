package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the bridge over stdio to MCP-speaking assistants so an
// operator can inspect and steer the simulation conversationally.
type MCPServer struct {
	Server *server.MCPServer
}

// NewMCPServer builds the stdio server and registers the bridge tools.
func NewMCPServer(srv *Server) *MCPServer {
	s := &MCPServer{Server: server.NewMCPServer("sumo-bridge", "1.0.0")}

	status := mcp.NewTool("simulation_status",
		mcp.WithDescription("Get the SUMO connection state and the latest simulation counters"))
	s.Server.AddTool(status, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := map[string]any{
			"connected": srv.sim.Ready(),
			"state":     srv.sim.State().String(),
			"paused":    srv.poller.Paused(),
		}
		if snap := srv.poller.Snapshot(); snap != nil {
			res["stats"] = snap.Stats
		}
		return textResult(res)
	})

	listVehicles := mcp.NewTool("list_vehicles",
		mcp.WithDescription("List the vehicles in the latest snapshot, emergency vehicles included"))
	s.Server.AddTool(listVehicles, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := srv.poller.Snapshot()
		if snap == nil {
			return textError("no simulation data yet"), nil
		}
		return textResult(map[string]any{
			"vehicles":          snap.Vehicles,
			"emergencyVehicles": snap.EmergencyVehicles,
		})
	})

	override := mcp.NewTool("override_traffic_light",
		mcp.WithDescription("Force an intersection into a single phase (red, yellow or green)"),
		mcp.WithString("intersectionId", mcp.Required(), mcp.Description("The traffic light id")),
		mcp.WithString("phase", mcp.Required(), mcp.Description("red, yellow or green")),
		mcp.WithNumber("duration", mcp.Description("Hold time in seconds, default 30")))
	s.Server.AddTool(override, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		id, _ := args["intersectionId"].(string)
		phase, _ := args["phase"].(string)
		duration, _ := args["duration"].(float64)
		if id == "" {
			return textError("intersectionId is required"), nil
		}
		state, ok := phaseState(phase)
		if !ok {
			return textError("phase must be red, yellow or green"), nil
		}
		if duration <= 0 {
			duration = 30
		}
		if err := srv.sim.SetTrafficLightState(ctx, id, state, duration); err != nil {
			return textError(fmt.Sprintf("override failed: %v", err)), nil
		}
		return textResult(map[string]any{
			"intersectionId": id,
			"state":          state,
			"duration":       duration,
		})
	})

	return s
}

// Run serves stdio until the peer closes it.
func (s *MCPServer) Run() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}

func textResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		}}, nil
}

func textError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		}}
}
