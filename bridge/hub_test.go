package bridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients, has %d", want, hub.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(testSim(), NewPoller(testSim(), 0), hub, "").Routes())
	defer srv.Close()
	defer hub.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)
	waitForClients(t, hub, 2)

	hub.Broadcast(map[string]string{"hello": "dashboard"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading broadcast: %v", err)
		}
		var msg map[string]string
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast is not JSON: %v", err)
		}
		if msg["hello"] != "dashboard" {
			t.Errorf("unexpected message: %v", msg)
		}
	}
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(testSim(), NewPoller(testSim(), 0), hub, "").Routes())
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting into an empty hub must not panic.
	hub.Broadcast(map[string]string{"hello": "nobody"})
}

func TestHubCloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(testSim(), NewPoller(testSim(), 0), hub, "").Routes())
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	hub.Close()
	waitForClients(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read to fail after hub close")
	}
}
