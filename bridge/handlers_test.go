package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testServer(t *testing.T, sim *stubSim) (*Server, *Poller) {
	t.Helper()
	poller := NewPoller(sim, 0)
	return NewServer(sim, poller, NewHub(), "127.0.0.1:8813"), poller
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return rec.Code, env
}

func TestHealthAlwaysAnswers(t *testing.T) {
	sim := testSim()
	sim.ready = false
	srv, _ := testServer(t, sim)
	router := srv.Routes()

	code, env := doJSON(t, router, http.MethodGet, "/health", "")
	if code != http.StatusOK {
		t.Fatalf("health returned %d", code)
	}
	if env.Status != "ok" {
		t.Errorf("status = %q", env.Status)
	}
}

func TestDataEndpointsBeforeFirstCycle(t *testing.T) {
	srv, _ := testServer(t, testSim())
	router := srv.Routes()

	for _, path := range []string{"/vehicles", "/emergency-vehicles", "/intersections", "/roads", "/simulation-stats", "/all-data"} {
		code, env := doJSON(t, router, http.MethodGet, path, "")
		if code != http.StatusServiceUnavailable {
			t.Errorf("%s before first cycle returned %d, want 503", path, code)
		}
		if env.Status != "error" {
			t.Errorf("%s status = %q, want error", path, env.Status)
		}
	}
}

func TestVehiclesEndpoint(t *testing.T) {
	sim := testSim()
	srv, poller := testServer(t, sim)
	poller.tick(context.Background())
	router := srv.Routes()

	code, env := doJSON(t, router, http.MethodGet, "/vehicles", "")
	if code != http.StatusOK {
		t.Fatalf("vehicles returned %d", code)
	}
	if env.Count == nil || *env.Count != 1 {
		t.Errorf("count = %v, want 1", env.Count)
	}

	code, env = doJSON(t, router, http.MethodGet, "/emergency-vehicles", "")
	if code != http.StatusOK {
		t.Fatalf("emergency-vehicles returned %d", code)
	}
	if env.Count == nil || *env.Count != 1 {
		t.Errorf("emergency count = %v, want 1", env.Count)
	}
}

func TestAllDataEndpoint(t *testing.T) {
	sim := testSim()
	srv, poller := testServer(t, sim)
	poller.tick(context.Background())
	router := srv.Routes()

	code, env := doJSON(t, router, http.MethodGet, "/all-data", "")
	if code != http.StatusOK {
		t.Fatalf("all-data returned %d", code)
	}

	raw, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("all-data payload is not a snapshot: %v", err)
	}
	if len(snap.Intersections) != 1 || len(snap.Roads) != 1 {
		t.Errorf("unexpected snapshot shape: %d intersections, %d roads",
			len(snap.Intersections), len(snap.Roads))
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	sim := testSim()
	sim.ready = false
	srv, _ := testServer(t, sim)
	router := srv.Routes()

	code, _ := doJSON(t, router, http.MethodPost, "/connect", "")
	if code != http.StatusOK {
		t.Fatalf("connect returned %d", code)
	}
	if !sim.ready {
		t.Error("connect did not reach the client")
	}

	code, _ = doJSON(t, router, http.MethodPost, "/disconnect", "")
	if code != http.StatusOK {
		t.Fatalf("disconnect returned %d", code)
	}
	if sim.ready {
		t.Error("disconnect did not reach the client")
	}
}

func TestPauseResume(t *testing.T) {
	srv, poller := testServer(t, testSim())
	router := srv.Routes()

	if code, _ := doJSON(t, router, http.MethodPost, "/simulation/pause", ""); code != http.StatusOK {
		t.Fatalf("pause returned %d", code)
	}
	if !poller.Paused() {
		t.Error("poller not paused")
	}
	if code, _ := doJSON(t, router, http.MethodPost, "/simulation/resume", ""); code != http.StatusOK {
		t.Fatalf("resume returned %d", code)
	}
	if poller.Paused() {
		t.Error("poller still paused")
	}
}

func TestTrafficLightOverride(t *testing.T) {
	sim := testSim()
	srv, _ := testServer(t, sim)
	router := srv.Routes()

	body := `{"intersectionId":"tls0","phase":"red","duration":45}`
	code, env := doJSON(t, router, http.MethodPost, "/command/traffic-light", body)
	if code != http.StatusOK {
		t.Fatalf("override returned %d: %s", code, env.Message)
	}
	if sim.lastLight.id != "tls0" || sim.lastLight.state != "rrrr" || sim.lastLight.duration != 45 {
		t.Errorf("unexpected override call: %+v", sim.lastLight)
	}
}

func TestTrafficLightOverrideValidation(t *testing.T) {
	srv, _ := testServer(t, testSim())
	router := srv.Routes()

	cases := []struct {
		name string
		body string
	}{
		{"bad json", "{"},
		{"missing id", `{"phase":"red"}`},
		{"bad phase", `{"intersectionId":"tls0","phase":"purple"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := doJSON(t, router, http.MethodPost, "/command/traffic-light", tc.body)
			if code != http.StatusBadRequest {
				t.Errorf("returned %d, want 400", code)
			}
			if env.Status != "error" || env.Message == "" {
				t.Errorf("expected an error message, got %+v", env)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	sim := testSim()
	srv, _ := testServer(t, sim)
	router := srv.Routes()

	code, env := doJSON(t, router, http.MethodGet, "/status", "")
	if code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("status data is %T", env.Data)
	}
	if data["connected"] != true {
		t.Errorf("connected = %v", data["connected"])
	}
	if data["state"] != "READY" {
		t.Errorf("state = %v", data["state"])
	}
}
