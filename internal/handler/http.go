package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/internal/domain"
	"github.com/gatewarden/internal/service"
	"github.com/gatewarden/internal/websocket"
)

// AdmissionService is the admission state machine surface the API exposes
type AdmissionService interface {
	CreateSession(ctx context.Context, name, discordID, discordName string) error
	EvaluateJoin(ctx context.Context, name string) domain.AdmissionDecision
	CompleteOnJoin(ctx context.Context, name, playerKey string) (bool, error)
	RegisterAttempt(name string) (int, bool, error)
	Session(name string) (domain.PurgatorySession, bool)
	RemoveSession(name string) bool
}

// ProgressionAPI is the XP/rank surface the API exposes
type ProgressionAPI interface {
	IngestEvent(ctx context.Context, ev domain.GameplayEvent) (bool, error)
	Status(ctx context.Context, playerKey string) (*service.PlayerStatus, error)
	XPBySource(ctx context.Context, playerKey string) ([]domain.SourceXP, error)
	DailyXP(ctx context.Context, playerKey string, days int) ([]domain.DailyXP, error)
	TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	LeaderboardRank(ctx context.Context, playerKey string) (*domain.LeaderboardEntry, error)
}

// WhitelistReader answers the membership predicate for admin tooling
type WhitelistReader interface {
	EntryByName(ctx context.Context, name string) (*domain.WhitelistEntry, error)
}

// Handler provides HTTP handlers for the gatewarden API
type Handler struct {
	admission   AdmissionService
	progression ProgressionAPI
	whitelist   WhitelistReader
	hub         *websocket.Hub
	denyMessage string
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	admission AdmissionService,
	progression ProgressionAPI,
	whitelist WhitelistReader,
	hub *websocket.Hub,
	denyMessage string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		admission:   admission,
		progression: progression,
		whitelist:   whitelist,
		hub:         hub,
		denyMessage: denyMessage,
		logger:      logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Linking and admission
		r.Post("/link", h.CreateSession)
		r.Get("/join/{name}", h.EvaluateJoin)
		r.Post("/join/{name}/complete", h.CompleteJoin)

		r.Route("/sessions/{name}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.RemoveSession)
			r.Post("/attempt", h.RegisterAttempt)
		})

		r.Get("/whitelist/{name}", h.CheckWhitelist)

		// Progression
		r.Post("/events", h.IngestEvent)
		r.Route("/players/{playerKey}", func(r chi.Router) {
			r.Get("/status", h.PlayerStatus)
			r.Get("/xp/sources", h.XPBySource)
			r.Get("/xp/daily", h.DailyXP)
		})

		r.Get("/leaderboard/top", h.LeaderboardTop)
		r.Get("/leaderboard/player/{playerKey}", h.LeaderboardRank)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// LinkRequest is the body of a linking request from the chat-platform adapter
type LinkRequest struct {
	Name        string `json:"name"`
	DiscordID   string `json:"discord_id"`
	DiscordName string `json:"discord_name,omitempty"`
}

// CreateSession handles a linking request
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.admission.CreateSession(r.Context(), req.Name, req.DiscordID, req.DiscordName); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyWhitelisted):
			h.writeError(w, http.StatusConflict, err)
		case errors.Is(err, domain.ErrEscalated):
			h.writeError(w, http.StatusForbidden, err)
		case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidRequest):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.logger.Error("failed to create session", "name", req.Name, "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    map[string]string{"status": "session_created"},
	})
}

// JoinResponse is the admission decision returned to the proxy hook
type JoinResponse struct {
	Allow   bool                  `json:"allow"`
	State   domain.AdmissionState `json:"state"`
	Message string                `json:"message,omitempty"`
}

// EvaluateJoin handles the proxy's pre-login admission check
func (h *Handler) EvaluateJoin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	decision := h.admission.EvaluateJoin(r.Context(), name)
	resp := JoinResponse{Allow: decision.Allow, State: decision.State}
	if !decision.Allow {
		resp.Message = h.denyMessage
	}

	h.writeSuccess(w, resp)
}

// CompleteJoinRequest is the body of a join completion call
type CompleteJoinRequest struct {
	PlayerKey string `json:"player_key"`
}

// CompleteJoin promotes a purgatory session to a permanent entry
func (h *Handler) CompleteJoin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	var req CompleteJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	promoted, err := h.admission.CompleteOnJoin(r.Context(), name, req.PlayerKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			h.writeError(w, http.StatusNotFound, err)
		case errors.Is(err, domain.ErrInvalidRequest), domain.IsNotFoundError(err):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.logger.Error("failed to complete join", "name", name, "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		}
		return
	}

	status := "already_whitelisted"
	if promoted {
		status = "whitelisted"
	}
	h.writeSuccess(w, map[string]interface{}{
		"status":   status,
		"promoted": promoted,
	})
}

// GetSession returns the active session for a name
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	sess, ok := h.admission.Session(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrSessionNotFound)
		return
	}

	h.writeSuccess(w, sess)
}

// RemoveSession administratively removes a session
func (h *Handler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if !h.admission.RemoveSession(name) {
		h.writeError(w, http.StatusNotFound, domain.ErrSessionNotFound)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "removed"})
}

// RegisterAttempt records a failed link-code attempt
func (h *Handler) RegisterAttempt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	attempts, escalated, err := h.admission.RegisterAttempt(name)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to register attempt", "name", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"attempts":  attempts,
		"escalated": escalated,
	})
}

// CheckWhitelist answers the whitelist membership predicate
func (h *Handler) CheckWhitelist(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	entry, err := h.whitelist.EntryByName(r.Context(), name)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeSuccess(w, map[string]bool{"whitelisted": false})
			return
		}
		h.logger.Error("failed to check whitelist", "name", name, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"whitelisted": true,
		"entry":       entry,
	})
}

// IngestEvent handles direct gameplay event submission
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.GameplayEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	accepted, err := h.progression.IngestEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("failed to ingest event", "player_key", ev.PlayerKey, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	status := "rate_limited"
	if accepted {
		status = "accepted"
	}
	h.writeSuccess(w, map[string]interface{}{
		"status":   status,
		"accepted": accepted,
	})
}

// PlayerStatus returns a player's totals, rank and next-rank requirements
func (h *Handler) PlayerStatus(w http.ResponseWriter, r *http.Request) {
	playerKey := chi.URLParam(r, "playerKey")

	status, err := h.progression.Status(r.Context(), playerKey)
	if err != nil {
		h.logger.Error("failed to get player status", "player_key", playerKey, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, status)
}

// XPBySource returns a player's XP broken down by event source
func (h *Handler) XPBySource(w http.ResponseWriter, r *http.Request) {
	playerKey := chi.URLParam(r, "playerKey")

	sources, err := h.progression.XPBySource(r.Context(), playerKey)
	if err != nil {
		h.logger.Error("failed to get xp by source", "player_key", playerKey, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sources)
}

// DailyXP returns a player's daily XP breakdown
func (h *Handler) DailyXP(w http.ResponseWriter, r *http.Request) {
	playerKey := chi.URLParam(r, "playerKey")

	days := 7
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 {
			days = d
		}
	}

	daily, err := h.progression.DailyXP(r.Context(), playerKey, days)
	if err != nil {
		h.logger.Error("failed to get daily xp", "player_key", playerKey, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, daily)
}

// LeaderboardTop returns the top N players by total XP
func (h *Handler) LeaderboardTop(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.progression.TopN(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get leaderboard top", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}

// LeaderboardRank returns a player's realtime leaderboard position
func (h *Handler) LeaderboardRank(w http.ResponseWriter, r *http.Request) {
	playerKey := chi.URLParam(r, "playerKey")

	entry, err := h.progression.LeaderboardRank(r.Context(), playerKey)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get leaderboard rank", "player_key", playerKey, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entry)
}
