package transport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/audit"
	"github.com/chaoslab/faultplane/internal/config"
	"github.com/chaoslab/faultplane/internal/logger"
	"github.com/chaoslab/faultplane/pkg/metrics"

	"github.com/chaoslab/faultplane/internal/registry"
	"github.com/chaoslab/faultplane/internal/safety"
)

// ChaosServer answers chaosd's HTTP surface: create/stop/inspect attacks,
// the kill switch, audit queries, and the ambient health/metrics/docs
// routes.
type ChaosServer struct {
	Engine  *registry.Engine
	Gate    *safety.Gate
	Modules map[registry.Kind]registry.Module
	Audit   audit.Sink
	Metrics *metrics.ChaosMetrics
	Logger  *slog.Logger
	Config  *config.Config
}

// Router builds the full mux.Router, including middleware.
func (s *ChaosServer) Router(writeRatePerSecond int) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/break/{kind}", s.handleCreate).Methods(http.MethodPost)
	v1.HandleFunc("/break/{kind}/{id}", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/break/{kind}/{id}/stop", s.handleStop).Methods(http.MethodPost)
	v1.HandleFunc("/kill", s.handleKill).Methods(http.MethodPost)
	v1.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1.PathPrefix("/docs").Handler(swaggerUIHandler)
	v1.HandleFunc("/docs/doc.json", docSpecHandler(chaosOpenAPI)).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Use(logger.Middleware(s.Logger))
	r.Use(logger.Recover(s.Logger))
	r.Use(onlyWrites(writeRateLimiter(writeRatePerSecond, writeRatePerSecond)))

	return r
}

func (s *ChaosServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	kindVar := mux.Vars(r)["kind"]
	kind, ok := normalizeKind(kindVar)
	if !ok {
		writeError(w, apierrors.NotFoundf("unknown fault kind %q", kindVar))
		return
	}
	module, ok := s.Modules[kind]
	if !ok {
		writeError(w, apierrors.NotFoundf("unknown fault kind %q", kindVar))
		return
	}

	params, err := decodeParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if queryBool(r, "dry_run") {
		plan, err := s.Gate.DryRun(module, params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
		return
	}

	id, err := s.Engine.Create(kind, params)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.Metrics != nil {
		s.Metrics.AttacksTotal.WithLabelValues(string(kind), "starting").Inc()
		s.Metrics.AttacksInFlight.WithLabelValues(string(kind)).Inc()
	}
	s.recordAudit(r, "attack_created", id, string(kind), nil)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"attack_id": id,
		"state":     string(registry.StateStarting),
	})
}

func (s *ChaosServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	attack, err := s.Engine.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attack)
}

func (s *ChaosServer) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force := queryBool(r, "force")
	kind, _ := normalizeKind(mux.Vars(r)["kind"])

	state, err := s.Engine.Stop(r.Context(), id, force)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.Metrics != nil && state.Terminal() {
		s.Metrics.AttacksInFlight.WithLabelValues(string(kind)).Dec()
	}
	s.recordAudit(r, "attack_stopped", id, string(kind), map[string]string{
		"state": string(state),
		"force": strconv.FormatBool(force),
	})

	attack, err := s.Engine.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attack)
}

func (s *ChaosServer) handleKill(w http.ResponseWriter, r *http.Request) {
	if err := s.Gate.Engage(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.KillSwitchEngaged.Set(1)
	}
	s.Engine.KillAll(r.Context())
	s.recordAudit(r, "kill_switch_engaged", "", "", nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"kill_switch_engaged": true,
		"attacks":             s.Engine.List(),
	})
}

func (s *ChaosServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	attackID := r.URL.Query().Get("attack_id")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := s.Audit.Query(r.Context(), attackID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *ChaosServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":              "ok",
		"kill_switch_engaged": s.Gate.KillSwitchEngaged(),
	}
	if s.Config != nil {
		body["config"] = s.Config.Sanitized()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *ChaosServer) recordAudit(r *http.Request, action, attackID, kind string, detail map[string]string) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(r.Context(), audit.Entry{
		Timestamp: time.Now(),
		Actor:     logger.RequestID(r.Context()),
		Action:    action,
		AttackID:  attackID,
		Kind:      kind,
		Detail:    detail,
	})
}
