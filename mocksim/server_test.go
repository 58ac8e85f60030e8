package mocksim

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/addis-traffic/sumo-bridge/traci"
)

func startServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	srv := NewServer(NewWorld(3))
	go srv.Start("127.0.0.1:0")
	t.Cleanup(func() { srv.Shutdown() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("dialing server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func roundtrip(t *testing.T, conn net.Conn, request []byte) traci.Frame {
	t.Helper()
	if _, err := conn.Write(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	dec := traci.NewFrameDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("reading response: %v", err)
		}
		frames, ferr := dec.Feed(buf[:n])
		if ferr != nil {
			t.Fatalf("decoding response: %v", ferr)
		}
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func TestVersionRoundtrip(t *testing.T) {
	_, conn := startServer(t)

	resp := roundtrip(t, conn, traci.EncodeFrame(traci.CmdGetVersion, nil))
	if resp.CommandID != traci.CmdGetVersion {
		t.Errorf("response command = %#x", resp.CommandID)
	}
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultOK {
		t.Fatalf("unexpected result payload % x", resp.Payload)
	}
	if string(resp.Payload[1:]) != "TraCI mocksim/1.0" {
		t.Errorf("version = %q", resp.Payload[1:])
	}
}

func TestSpeedQuery(t *testing.T) {
	_, conn := startServer(t)

	req := traci.EncodeFrame(traci.CmdGetVehicleVariable, traci.EncodeGetVariable(traci.VarSpeed, "veh0"))
	resp := roundtrip(t, conn, req)

	if resp.CommandID != traci.ResponseFor(traci.CmdGetVehicleVariable) {
		t.Errorf("response command = %#x", resp.CommandID)
	}
	if len(resp.Payload) != 9 || resp.Payload[0] != traci.ResultOK {
		t.Fatalf("unexpected result payload % x", resp.Payload)
	}
	speed := math.Float64frombits(binary.LittleEndian.Uint64(resp.Payload[1:]))
	if speed <= 0 {
		t.Errorf("speed = %v, want positive", speed)
	}
}

func TestUnknownObjectFails(t *testing.T) {
	_, conn := startServer(t)

	req := traci.EncodeFrame(traci.CmdGetVehicleVariable, traci.EncodeGetVariable(traci.VarSpeed, "ghost"))
	resp := roundtrip(t, conn, req)

	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultErr {
		t.Fatalf("expected failure result, got % x", resp.Payload)
	}
	if string(resp.Payload[1:]) != "unknown object ghost" {
		t.Errorf("description = %q", resp.Payload[1:])
	}
}

func TestSimStepAdvancesWorld(t *testing.T) {
	srv, conn := startServer(t)

	before := srv.World().Step()
	resp := roundtrip(t, conn, traci.EncodeFrame(traci.CmdSimStep, nil))
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultOK {
		t.Fatalf("unexpected result payload % x", resp.Payload)
	}
	if got := srv.World().Step(); got != before+1 {
		t.Errorf("step = %d, want %d", got, before+1)
	}
}

func TestMalformedLengthsRejectedNotFatal(t *testing.T) {
	// Declared lengths near 2^32 must fail cleanly, not wrap the bounds
	// check and panic the connection handler.
	_, conn := startServer(t)

	setPayload := []byte{traci.VarTLStateRYG, 0xFF, 0xFF, 0xFF, 0xF8}
	resp := roundtrip(t, conn, traci.EncodeFrame(traci.CmdSetTrafficLightVariable, setPayload))
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultErr {
		t.Fatalf("expected failure result, got % x", resp.Payload)
	}
	if string(resp.Payload[1:]) != "malformed set-variable payload" {
		t.Errorf("description = %q", resp.Payload[1:])
	}

	getPayload := []byte{traci.VarSpeed, 0xFF, 0xFF, 0xFF, 0xFF}
	resp = roundtrip(t, conn, traci.EncodeFrame(traci.CmdGetVehicleVariable, getPayload))
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultErr {
		t.Fatalf("expected failure result, got % x", resp.Payload)
	}
	if string(resp.Payload[1:]) != "malformed get-variable payload" {
		t.Errorf("description = %q", resp.Payload[1:])
	}

	// The connection survives and keeps answering.
	resp = roundtrip(t, conn, traci.EncodeFrame(traci.CmdGetVersion, nil))
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultOK {
		t.Fatalf("server unusable after malformed requests: % x", resp.Payload)
	}
}

func TestCloseEndsConnection(t *testing.T) {
	_, conn := startServer(t)

	resp := roundtrip(t, conn, traci.EncodeFrame(traci.CmdClose, nil))
	if len(resp.Payload) < 1 || resp.Payload[0] != traci.ResultOK {
		t.Fatalf("unexpected result payload % x", resp.Payload)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected the server to close the connection")
	}
}
