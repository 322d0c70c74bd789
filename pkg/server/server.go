/*
Package server is the HTTP surface of the dashboard: the webhook the Particle
cloud pushes bike events to, the polling endpoints the page reads on its 1s
and 5s intervals, and the resistance control endpoints.
*/
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/blumidealabs/blumbike/pkg/control"
	"github.com/blumidealabs/blumbike/pkg/ingest"
	"github.com/blumidealabs/blumbike/pkg/stats"
)

// Server holds on the stuff that serves up the dashboard API
type Server struct {
	listener     net.Listener
	apiKey       string
	policy       *ingest.Policy
	legacyPolicy *ingest.Policy
	engine       *stats.Engine
	gate         *control.Gate
}

// WithListener sets the listener on a server object
func WithListener(l net.Listener) func(*Server) {
	return func(s *Server) {
		s.listener = l
	}
}

// WithAPIKey sets the shared secret the webhook payloads must carry
func WithAPIKey(k string) func(*Server) {
	return func(s *Server) {
		s.apiKey = k
	}
}

// WithPolicy sets the ingestion policy behind /update
func WithPolicy(p *ingest.Policy) func(*Server) {
	return func(s *Server) {
		s.policy = p
	}
}

// WithLegacyPolicy sets the capped ingestion policy behind /append
func WithLegacyPolicy(p *ingest.Policy) func(*Server) {
	return func(s *Server) {
		s.legacyPolicy = p
	}
}

// WithEngine sets the query engine behind the polling endpoints
func WithEngine(e *stats.Engine) func(*Server) {
	return func(s *Server) {
		s.engine = e
	}
}

// WithGate sets the resistance control gate. A nil gate leaves the control
// endpoints responding 503.
func WithGate(g *control.Gate) func(*Server) {
	return func(s *Server) {
		s.gate = g
	}
}

// NewServer returns a new server with functional options
func NewServer(opts ...func(*Server)) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.listener == nil {
		defaultListener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			panic(err)
		}
		s.listener = defaultListener
	}
	return s
}

// Handler assembles the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /update", s.handleUpdate)
	mux.HandleFunc("POST /append", s.handleAppend)
	mux.HandleFunc("GET /api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/chart", s.handleChart)
	mux.HandleFunc("GET /api/v1/control", s.handleControl)
	mux.HandleFunc("POST /api/v1/control/resistance/{direction}", s.handleResistance)
	mux.HandleFunc("/", notFound)
	return mux
}

// Run starts the HTTP server
func (s *Server) Run() error {
	hs := &http.Server{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      s.Handler(),
	}
	return hs.Serve(s.listener)
}

// Port returns the port that a server is listening on
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns the listening address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// pushEnvelope is the outer body the Particle webhook sends: the shared
// secret plus the device payload as a JSON string
type pushEnvelope struct {
	APIKey string `json:"apikey"`
	Data   string `json:"data"`
}

// legacyData is the /append payload: no events, no resistance
type legacyData struct {
	T        int64   `json:"t"`
	BikeMPH  float64 `json:"bike_mph"`
	HeartBPM float64 `json:"heart_bpm"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// checkAPIKey validates the shared secret and writes the 401 reply itself.
// Callers stop when it returns false.
func (s *Server) checkAPIKey(w http.ResponseWriter, key string) bool {
	if s.apiKey == "" || key != s.apiKey {
		writeReply(w, http.StatusUnauthorized, "invalid key")
		return false
	}
	return true
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkAPIKey(w, env.APIKey) {
		return
	}

	var ev ingest.Event
	if err := json.Unmarshal([]byte(env.Data), &ev); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.policy.Ingest(r.Context(), ev)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	switch res {
	case ingest.PowerOnRecorded:
		writeReply(w, http.StatusOK, "power on received")
	case ingest.SessionStarted:
		writeReply(w, http.StatusOK, "started session")
	case ingest.SessionEnded:
		writeReply(w, http.StatusOK, "ended session")
	case ingest.Accepted:
		writeReply(w, http.StatusOK, "data appended")
	case ingest.RejectedStale:
		writeReply(w, http.StatusOK, "ignored stale data")
	case ingest.RejectedUnknown:
		writeReply(w, http.StatusNotImplemented, fmt.Sprintf("event '%v' not understood", ev.Name))
	}
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if !s.checkAPIKey(w, env.APIKey) {
		return
	}

	var d legacyData
	if err := json.Unmarshal([]byte(env.Data), &d); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.legacyPolicy.Ingest(r.Context(), ingest.Event{
		Kind:     ingest.KindNewData,
		T:        d.T,
		SpeedMPH: d.BikeMPH,
		HeartBPM: d.HeartBPM,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if res == ingest.RejectedStale {
		writeReply(w, http.StatusOK, "ignored stale data")
		return
	}
	writeReply(w, http.StatusOK, "data appended")
}

// metricsResponse is the sidebar payload: a presentation state, the stat
// lines, and a footer line. Absence of data is the waiting state, never an
// error.
type metricsResponse struct {
	State  string   `json:"state"`
	Lines  []string `json:"lines"`
	Footer string   `json:"footer"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := s.engine.SessionSummary(ctx)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if summary != nil {
		writeJSON(w, metricsResponse{
			State: "summary",
			Lines: []string{
				fmt.Sprintf("Last Session Duration: %v", summary.Duration),
				fmt.Sprintf("Session Average Bike Speed: %0.2f MPH", summary.AvgSpeedMPH),
				fmt.Sprintf("Session Max Bike Speed: %0.2f MPH", summary.MaxSpeedMPH),
				fmt.Sprintf("Session Average Resistance: %0.2f", summary.AvgResistance),
				fmt.Sprintf("Session Max Resistance: %d", summary.MaxResistance),
				fmt.Sprintf("Session Average Heart Rate: %0.2f BPM", summary.AvgHeartBPM),
				fmt.Sprintf("Session Max Heart Rate: %0.2f BPM", summary.MaxHeartBPM),
			},
			Footer: fmt.Sprintf("Last session ended: %v", summary.EndedAgo),
		})
		return
	}

	reading, err := s.engine.CurrentReading(ctx)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if reading != nil {
		writeJSON(w, metricsResponse{
			State: "live",
			Lines: []string{
				fmt.Sprintf("Current session started: %v", reading.StartedAgo),
				fmt.Sprintf("Current Bike Speed: %0.2f MPH", reading.SpeedMPH),
				fmt.Sprintf("Current Resistance: %d", reading.Resistance),
				fmt.Sprintf("Current Heart Rate: %0.2f BPM", reading.HeartBPM),
			},
			Footer: fmt.Sprintf("Last Update: %v", reading.LastUpdate.Format("Mon Jan  2 15:04:05 2006")),
		})
		return
	}

	writeJSON(w, metricsResponse{
		State: "waiting",
		Lines: []string{"Waiting to receive data from bike..."},
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	series, err := s.engine.ChartSeries(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, series)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("resistance control is not configured"))
		return
	}
	writeJSON(w, s.gate.Authorize(r.Context(), control.ClientIP(r)))
}

func (s *Server) handleResistance(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("resistance control is not configured"))
		return
	}
	d, err := control.DirectionString(r.PathValue("direction"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.gate.ChangeResistance(r.Context(), control.ClientIP(r), d)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, result)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeErr(w, http.StatusNotFound, fmt.Errorf("route not found: %v", r.URL))
}

func writeReply(w http.ResponseWriter, code int, reply string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(replyResponse{Reply: reply})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string][]string{
		"errors": {err.Error()},
	})
}
