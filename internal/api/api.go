// Package api exposes the control loop's state over a JSON HTTP API and a
// websocket snapshot stream.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/growmesh/growlights-go/internal/database/models"
	"github.com/growmesh/growlights-go/internal/database/repositories"
	"github.com/growmesh/growlights-go/internal/services/controlloop"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/pubsub"
)

// Server carries the API's dependencies.
type Server struct {
	loop      *controlloop.Loop
	engine    *decision.Engine
	tracker   *dli.Tracker
	dliRepo   *repositories.DLIRepository
	overrides *repositories.OverrideRepository
	settings  *repositories.SettingRepository
	bus       *pubsub.PubSub
	upgrader  websocket.Upgrader
}

// NewServer creates an API server.
func NewServer(loop *controlloop.Loop, engine *decision.Engine, tracker *dli.Tracker,
	dliRepo *repositories.DLIRepository, overrides *repositories.OverrideRepository,
	settings *repositories.SettingRepository, bus *pubsub.PubSub) *Server {
	return &Server{
		loop:      loop,
		engine:    engine,
		tracker:   tracker,
		dliRepo:   dliRepo,
		overrides: overrides,
		settings:  settings,
		bus:       bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts all API routes on a router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Get("/zones", s.handleZones)
		r.Get("/zones/{key}", s.handleZone)
		r.Get("/zones/{key}/dli", s.handleZoneDLI)
		r.Get("/decisions", s.handleDecisions)
		r.Post("/overrides", s.handleCreateOverride)
		r.Delete("/overrides/{key}", s.handleDeleteOverride)
		r.Get("/emergency", s.handleGetEmergency)
		r.Post("/emergency", s.handleSetEmergency)
	})
	r.Get("/ws", s.handleWebsocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok"}
	if snap := s.loop.Snapshot(); snap != nil {
		status["snapshotVersion"] = snap.Version
		status["snapshotTakenAt"] = snap.TakenAt
	} else {
		status["status"] = "starting"
	}
	writeJSON(w, http.StatusOK, status)
}

// handleZones returns the latest snapshot of every zone. Before the first
// cycle completes there is no data; that is reported explicitly rather
// than as an empty grid.
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	snap := s.loop.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no control cycle has completed yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleZone(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	snap := s.loop.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no control cycle has completed yet",
		})
		return
	}
	zone, ok := snap.Zones[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "zone " + key + " is not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

// handleZoneDLI returns the zone's current accumulation plus persisted
// daily history.
func (s *Server) handleZoneDLI(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var history []models.DLIDay
	if s.dliRepo != nil {
		var err error
		history, err = s.dliRepo.FindByZone(r.Context(), key, 30)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zoneKey": key,
		"today":   s.tracker.DailyDLI(key),
		"history": history,
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	snap := s.loop.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no control cycle has completed yet",
		})
		return
	}
	decisions := make(map[string]interface{}, len(snap.Zones))
	for key, zone := range snap.Zones {
		if zone.Decision != nil {
			decisions[key] = zone.Decision
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":   snap.Version,
		"decisions": decisions,
	})
}

type overrideRequest struct {
	ZoneKey      string  `json:"zoneKey"`
	On           bool    `json:"on"`
	IntensityPct float64 `json:"intensityPct"`
	Reason       string  `json:"reason"`
	// TTLSeconds of 0 means the override holds until deleted.
	TTLSeconds int `json:"ttlSeconds"`
}

func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.ZoneKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zoneKey is required"})
		return
	}

	override := &models.ManualOverride{
		ZoneKey:      req.ZoneKey,
		On:           req.On,
		IntensityPct: req.IntensityPct,
		Reason:       req.Reason,
	}
	if req.TTLSeconds > 0 {
		expires := time.Now().Add(time.Duration(req.TTLSeconds) * time.Second)
		override.ExpiresAt = &expires
	}
	if err := s.overrides.Upsert(r.Context(), override); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.bus.Publish(pubsub.TopicOverrideChanged, req.ZoneKey, override)
	writeJSON(w, http.StatusCreated, override)
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.overrides.Delete(r.Context(), key); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.bus.Publish(pubsub.TopicOverrideChanged, key, nil)
	w.WriteHeader(http.StatusNoContent)
}

type emergencyRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleGetEmergency(w http.ResponseWriter, r *http.Request) {
	v, err := s.settings.Get(r.Context(), controlloop.SettingEmergencyStop, "false")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": v == "true"})
}

// handleSetEmergency raises or lifts the facility-wide emergency stop. While
// active, every control cycle forces all zones off; lifting it releases the
// held zones so the next cycle resumes automatic control.
func (s *Server) handleSetEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	value := strconv.FormatBool(req.Active)
	if err := s.settings.Set(r.Context(), controlloop.SettingEmergencyStop, value); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !req.Active {
		s.engine.ClearAllForcedOff()
	}
	s.bus.PublishAll(pubsub.TopicOverrideChanged, map[string]bool{"emergency": req.Active})
	writeJSON(w, http.StatusOK, map[string]bool{"active": req.Active})
}

// handleWebsocket streams snapshots to the client as they are produced.
// The current snapshot, if any, is sent immediately on connect.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(pubsub.TopicSnapshotUpdated, "", 8)
	defer s.bus.Unsubscribe(sub)

	if snap := s.loop.Snapshot(); snap != nil {
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}

	// Drain client frames so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
