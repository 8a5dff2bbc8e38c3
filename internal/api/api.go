// Package api is the thin runtime-control HTTP surface from spec.md §6,
// routed with gorilla/mux as the teacher's root go.mod already pulls in.
// It adapts internal/engine and internal/metrics into the JSON endpoints
// spec.md describes "at design level"; request validation beyond what
// the engine itself re-checks is out of scope, matching spec.md §1's
// CRUD-layer boundary.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/engine"
	"github.com/joluben/sigsim/internal/model"
)

// Server wraps an engine.Engine with its HTTP surface.
type Server struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

// NewServer builds a Server over eng.
func NewServer(eng *engine.Engine) *Server {
	return &Server{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the gorilla/mux router for every route in spec.md §6.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/simulation/{project_id}/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/simulation/{project_id}/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/simulation/{project_id}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/simulation/{project_id}/validate", s.handleValidate).Methods(http.MethodGet)
	r.HandleFunc("/simulation/{project_id}/logs", s.handleLogStream)
	r.HandleFunc("/simulation/status", s.handleAllStatus).Methods(http.MethodGet)
	r.HandleFunc("/simulation/emergency-stop", s.handleEmergencyStop).Methods(http.MethodPost)
	r.HandleFunc("/simulation/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/simulation/metrics/connectors", s.handleConnectorMetrics).Methods(http.MethodGet)
	r.HandleFunc("/simulation/metrics/devices", s.handleDeviceMetrics).Methods(http.MethodGet)
	r.HandleFunc("/simulation/metrics/projects/{project_id}", s.handleProjectMetrics).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.engine.StartProject(ctx, id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error(), "project_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "project started", "project_id": id})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]
	if err := s.engine.StopProject(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error(), "project_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "project stopped", "project_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]
	writeJSON(w, http.StatusOK, s.engine.Status(id))
}

func (s *Server) handleAllStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.AllStatuses())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	result, err := s.engine.ValidateProject(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "errors": []string{err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.engine.EmergencyStopAll()
	writeJSON(w, http.StatusOK, map[string]any{"stopped_projects": stopped, "count": len(stopped)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics().System())
}

func (s *Server) handleConnectorMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics().AllConnectors())
}

func (s *Server) handleDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics().AllDevices())
}

func (s *Server) handleProjectMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]
	writeJSON(w, http.StatusOK, s.engine.Metrics().ProjectSummary(id))
}

// handleLogStream upgrades to a websocket and implements spec.md §6's
// subscriber contract: a connection-established frame, then a
// chronological replay of the last up to 20 buffered entries, then the
// live stream. A dead or slow client is dropped by logstream.Stream
// itself; this handler only needs to unsubscribe on disconnect.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["project_id"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("project_id", id).Msg("log stream websocket upgrade failed")
		return
	}
	defer conn.Close()

	established := model.LogEntry{
		Timestamp:  time.Now().UTC(),
		DeviceID:   "system",
		DeviceName: "System",
		EventType:  "connection_established",
		Message:    "connected to project log stream",
		ProjectID:  id,
	}
	if err := conn.WriteJSON(established); err != nil {
		return
	}

	proj, running := s.engine.SubscribeLogs(id)
	if !running {
		_ = conn.WriteJSON(model.LogEntry{
			Timestamp:  time.Now().UTC(),
			DeviceID:   "system",
			DeviceName: "System",
			EventType:  model.EventInfo,
			Message:    "project is not running",
		})
		return
	}

	sub, replay := proj.Logs.Subscribe()
	defer proj.Logs.Unsubscribe(sub)

	for _, entry := range replay {
		if err := conn.WriteJSON(entry); err != nil {
			return
		}
	}

	// Drain client reads on a separate goroutine so Gorilla's control-frame
	// handling (pings/close) keeps working while we only ever write.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case entry, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}
