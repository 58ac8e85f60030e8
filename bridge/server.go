package bridge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server ties the TraCI client, the poller, and the WebSocket hub together
// behind the dashboard's REST surface.
type Server struct {
	sim      Sim
	poller   *Poller
	hub      *Hub
	sumoAddr string
}

// NewServer builds the REST layer. sumoAddr is where POST /connect dials.
func NewServer(sim Sim, poller *Poller, hub *Hub, sumoAddr string) *Server {
	return &Server{sim: sim, poller: poller, hub: hub, sumoAddr: sumoAddr}
}

// Routes assembles the chi router for the whole HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/health", s.HandleHealth)
	r.Get("/status", s.HandleStatus)
	r.Get("/vehicles", s.HandleVehicles)
	r.Get("/emergency-vehicles", s.HandleEmergencyVehicles)
	r.Get("/intersections", s.HandleIntersections)
	r.Get("/roads", s.HandleRoads)
	r.Get("/simulation-stats", s.HandleSimulationStats)
	r.Get("/all-data", s.HandleAllData)

	r.Post("/connect", s.HandleConnect)
	r.Post("/disconnect", s.HandleDisconnect)
	r.Post("/simulation/pause", s.HandlePause)
	r.Post("/simulation/resume", s.HandleResume)
	r.Post("/command/traffic-light", s.HandleTrafficLightOverride)

	r.Get("/ws", s.hub.ServeWS)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// metricsMiddleware records the request counter and latency histogram the
// way the prometheus surface expects, using the routed pattern as the path
// label so ids do not explode cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		recordHTTPRequest(r.Method, path, ww.Status(), time.Since(started))
	})
}
