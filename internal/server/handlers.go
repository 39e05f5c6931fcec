package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/perimetra/fenceline/core"
	"github.com/perimetra/fenceline/internal/logging"
	"github.com/perimetra/fenceline/internal/observability"
	"github.com/perimetra/fenceline/model"
)

// Server is the fence receiver: it accepts submitted fence payloads, persists
// them, and notifies websocket subscribers.
type Server struct {
	router  *mux.Router
	store   FenceStore
	hub     *Hub
	log     logging.Logger
	metrics *observability.Collector
}

// NewServer wires the HTTP surface. hub and metrics may be nil.
func NewServer(store FenceStore, hub *Hub, log logging.Logger, metrics *observability.Collector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{
		router:  mux.NewRouter(),
		store:   store,
		hub:     hub,
		log:     log,
		metrics: metrics,
	}

	s.handle("/api/geofence", s.handleCreateFence).Methods(http.MethodPost)
	s.handle("/api/geofences", s.handleListFences).Methods(http.MethodGet)
	s.handle("/healthz", s.handleHealth).Methods(http.MethodGet)
	if hub != nil {
		s.router.HandleFunc("/ws", hub.ServeWS)
	}
	if metrics != nil {
		s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handle(route string, fn http.HandlerFunc) *mux.Route {
	var h http.Handler = fn
	if s.metrics != nil {
		h = s.metrics.Middleware(route, h)
	}
	return s.router.Handle(route, h)
}

type apiResponse struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Count     *int          `json:"count,omitempty"`
	Geofences []StoredFence `json:"geofences,omitempty"`
}

func (s *Server) handleCreateFence(w http.ResponseWriter, r *http.Request) {
	ctx, log := logging.WithRequestLogger(r.Context(), s.log)

	var payload model.FencePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{
			Status:  "error",
			Message: "invalid JSON body",
		})
		return
	}
	if msg := validatePayload(payload); msg != "" {
		log.Warn(ctx, "fence rejected",
			logging.String("fence_id", payload.FenceID),
			logging.String("reason", msg))
		writeJSON(w, http.StatusBadRequest, apiResponse{Status: "error", Message: msg})
		return
	}

	if err := s.store.SaveFence(ctx, payload); err != nil {
		log.Error(ctx, "fence store failed",
			logging.String("fence_id", payload.FenceID),
			logging.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, apiResponse{
			Status:  "error",
			Message: "failed to store geofence",
		})
		return
	}

	log.Info(ctx, "fence stored",
		logging.String("fence_id", payload.FenceID),
		logging.Int("vertices", len(payload.Ring())))

	if s.hub != nil {
		if raw, err := json.Marshal(payload); err == nil {
			s.hub.Broadcast(raw)
		}
	}

	writeJSON(w, http.StatusCreated, apiResponse{
		Status:  "success",
		Message: "Geofence created and stored",
	})
}

func (s *Server) handleListFences(w http.ResponseWriter, r *http.Request) {
	ctx, log := logging.WithRequestLogger(r.Context(), s.log)

	fences, err := s.store.ListFences(ctx)
	if err != nil {
		log.Error(ctx, "fence list failed", logging.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, apiResponse{
			Status:  "error",
			Message: "failed to list geofences",
		})
		return
	}
	n := len(fences)
	writeJSON(w, http.StatusOK, apiResponse{
		Status:    "success",
		Count:     &n,
		Geofences: fences,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Status: "ok"})
}

// validatePayload checks the wire contract of a submitted fence. Returns ""
// when valid, otherwise the rejection reason.
func validatePayload(p model.FencePayload) string {
	if p.FenceID == "" {
		return "missing fence_id"
	}
	if p.SpecVersion != model.SpecVersion {
		return "unsupported spec_version"
	}
	if p.Shape.Type != model.ShapeType {
		return "shape type must be Polygon"
	}
	if len(p.Shape.Coordinates) != 1 {
		return "shape must contain exactly one ring"
	}
	ring := core.RingFromClosed(p.Ring())
	if err := core.ValidateRing(ring); err != nil {
		return err.Error()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
