package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillm/agent-arena/internal/config"
	"github.com/kirillm/agent-arena/internal/domain"
	"github.com/kirillm/agent-arena/internal/execution"
	"github.com/kirillm/agent-arena/internal/metrics"
	"github.com/kirillm/agent-arena/internal/storage"
	"github.com/kirillm/agent-arena/internal/telegram"
	"github.com/kirillm/agent-arena/pkg/utils"
)

// Server HTTP API арены: чтение состояния, запуск цикла, halt, reset
type Server struct {
	logger  *utils.Logger
	storage *storage.PostgresStorage
	runner  telegram.CycleRunner
	halt    *execution.HaltSwitch
	cfg     config.AdminConfig
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewServer создает API-сервер
func NewServer(logger *utils.Logger, st *storage.PostgresStorage, runner telegram.CycleRunner, halt *execution.HaltSwitch, cfg config.AdminConfig) *Server {
	return &Server{
		logger:  logger.WithPrefix("api"),
		storage: st,
		runner:  runner,
		halt:    halt,
		cfg:     cfg,
	}
}

// Start запускает HTTP-сервер (блокирующий вызов)
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/agents/", s.handleAgentDetail)
	mux.HandleFunc("/trades", s.handleTrades)
	mux.HandleFunc("/cycle", s.handleCycle)
	mux.HandleFunc("/halt", s.handleHalt)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/reset", s.handleReset)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("Starting HTTP server on %s", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (s *Server) respond(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, Response{Success: false, Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, reason, _ := s.halt.Status()
	s.respond(w, http.StatusOK, Response{Success: true, Data: map[string]interface{}{
		"status":      "ok",
		"halt_active": active,
		"halt_reason": reason,
	}})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	agents, err := s.storage.Agents(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	since := time.Now().AddDate(0, 0, -30)
	reports := make([]metrics.Report, 0, len(agents))
	for _, agent := range agents {
		wins, losses, err := s.storage.AgentStats(r.Context(), agent.ID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		series, err := s.storage.PerformanceSeries(r.Context(), agent.ID, since)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		reports = append(reports, metrics.Compute(agent, series, wins, losses))
	}

	s.respond(w, http.StatusOK, Response{Success: true, Data: reports})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.storage.Agents(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, Response{Success: true, Data: agents})
}

// handleAgentDetail обслуживает /agents/{id} и вложенные ресурсы
// /agents/{id}/positions, /agents/{id}/decisions, /agents/{id}/performance
func (s *Server) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/agents/"):]

	idPart, resource, _ := strings.Cut(path, "/")

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid agent id"))
		return
	}

	switch resource {
	case "":
		agent, err := s.storage.Agent(r.Context(), id)
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respond(w, http.StatusOK, Response{Success: true, Data: agent})
	case "positions":
		positions, err := s.storage.PositionsByAgent(r.Context(), id)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respond(w, http.StatusOK, Response{Success: true, Data: positions})
	case "decisions":
		decisions, err := s.storage.DecisionsByAgent(r.Context(), id, queryLimit(r, 20))
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respond(w, http.StatusOK, Response{Success: true, Data: decisions})
	case "performance":
		series, err := s.storage.PerformanceSeries(r.Context(), id, time.Now().AddDate(0, 0, -30))
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err)
			return
		}
		s.respond(w, http.StatusOK, Response{Success: true, Data: series})
	default:
		s.respondError(w, http.StatusNotFound, fmt.Errorf("unknown resource %s", resource))
	}
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.storage.RecentTrades(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, Response{Success: true, Data: trades})
}

// handleCycle запускает торговый цикл вручную, игнорируя торговые часы
func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	err := s.runner.RunCycle(r.Context(), true)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, Response{Success: true, Data: "cycle finished"})
	case errors.Is(err, domain.ErrCycleInProgress):
		s.respondError(w, http.StatusConflict, err)
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Reason == "" {
		body.Reason = "manual halt via API"
	}

	s.halt.Activate(body.Reason)
	s.logger.Warn("🛑 Trading halted: %s", body.Reason)
	s.respond(w, http.StatusOK, Response{Success: true, Data: "trading halted"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	s.halt.Deactivate()
	s.logger.Info("▶️ Trading resumed")
	s.respond(w, http.StatusOK, Response{Success: true, Data: "trading resumed"})
}

// handleReset уничтожает всю историю арены. Требует секрет: операция
// необратима и доступна только тому, кто настраивал деплой.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}

	if s.cfg.ResetSecret == "" {
		s.respondError(w, http.StatusForbidden, fmt.Errorf("reset disabled: no secret configured"))
		return
	}

	provided := r.Header.Get("X-Reset-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.ResetSecret)) != 1 {
		s.logger.Warn("Reset attempt with invalid secret from %s", r.RemoteAddr)
		s.respondError(w, http.StatusUnauthorized, domain.ErrUnauthorized)
		return
	}

	if err := s.storage.Reset(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Warn("🧨 Arena reset performed")
	s.respond(w, http.StatusOK, Response{Success: true, Data: "arena reset"})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return def
	}
	return limit
}
