package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaoslab/faultplane/internal/adapters/dbadapter"
	"github.com/chaoslab/faultplane/internal/apierrors"
	"github.com/chaoslab/faultplane/internal/config"
	"github.com/chaoslab/faultplane/internal/logger"
	"github.com/chaoslab/faultplane/internal/remediation"
	"github.com/chaoslab/faultplane/internal/safety"
	"github.com/chaoslab/faultplane/pkg/metrics"
)

// ActionServer answers actiond's HTTP surface: the atomic remediation
// actions, the composed workflow, and the ambient health/metrics/docs
// routes.
type ActionServer struct {
	Remediation *remediation.Engine
	Gate        *safety.Gate // read-only here: refuses remediation while the chaos kill switch is engaged
	DB          *dbadapter.Pool
	Metrics     *metrics.RemediationMetrics
	Logger      *slog.Logger
	Config      *config.Config
}

// Router builds the full mux.Router, including middleware.
func (s *ActionServer) Router(writeRatePerSecond int) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/action/restart-target-api", s.handleRestartAPI).Methods(http.MethodPost)
	v1.HandleFunc("/action/restart-target-db", s.handleRestartDB).Methods(http.MethodPost)
	v1.HandleFunc("/action/verify-target-health", s.handleVerifyHealth).Methods(http.MethodGet)
	v1.HandleFunc("/action/remediate-db-pool-exhaustion", s.handleRemediateDBPool).Methods(http.MethodPost)
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1.PathPrefix("/docs").Handler(swaggerUIHandler)
	v1.HandleFunc("/docs/doc.json", docSpecHandler(actionOpenAPI)).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.Use(logger.Middleware(s.Logger))
	r.Use(logger.Recover(s.Logger))
	r.Use(onlyWrites(writeRateLimiter(writeRatePerSecond, writeRatePerSecond)))

	return r
}

func (s *ActionServer) refuseIfKilled(w http.ResponseWriter, r *http.Request) bool {
	if s.Gate != nil && s.Gate.KillSwitchEngaged() {
		writeError(w, apierrors.Rejectedf("chaos kill switch is engaged, refusing to run remediation"))
		return true
	}
	return false
}

func (s *ActionServer) handleRestartAPI(w http.ResponseWriter, r *http.Request) {
	if s.refuseIfKilled(w, r) {
		return
	}
	if queryBool(r, "dry_run") {
		writeJSON(w, http.StatusOK, s.Remediation.DryRunRemediateDBPoolExhaustion(false)[:1])
		return
	}
	step := s.Remediation.RestartTargetAPI(r.Context())
	s.recordStep(step)
	writeJSON(w, http.StatusOK, step)
}

func (s *ActionServer) handleRestartDB(w http.ResponseWriter, r *http.Request) {
	if s.refuseIfKilled(w, r) {
		return
	}
	if queryBool(r, "dry_run") {
		plan := s.Remediation.DryRunRemediateDBPoolExhaustion(true)
		writeJSON(w, http.StatusOK, plan[len(plan)-2])
		return
	}
	step := s.Remediation.RestartTargetDB(r.Context())
	s.recordStep(step)
	writeJSON(w, http.StatusOK, step)
}

func (s *ActionServer) handleVerifyHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	step := s.Remediation.VerifyHealth(r.Context())
	elapsed := time.Since(start)
	s.recordStep(step)
	writeJSON(w, http.StatusOK, s.assembleVerdict(r, step, elapsed))
}

func (s *ActionServer) handleRemediateDBPool(w http.ResponseWriter, r *http.Request) {
	if s.refuseIfKilled(w, r) {
		return
	}
	escalate := queryBool(r, "escalate_to_db_restart")

	if queryBool(r, "dry_run") {
		writeJSON(w, http.StatusOK, map[string]any{
			"planned_steps": s.Remediation.DryRunRemediateDBPoolExhaustion(escalate),
		})
		return
	}

	start := time.Now()
	run := s.Remediation.RemediateDBPoolExhaustion(r.Context(), escalate)
	duration := time.Since(start)

	for _, step := range run.ExecutionLog {
		s.recordStep(step)
	}
	if s.Metrics != nil {
		outcome := "incomplete"
		if run.RemediationComplete {
			outcome = "complete"
		}
		s.Metrics.WorkflowsTotal.WithLabelValues(outcome).Inc()
		s.Metrics.WorkflowDuration.WithLabelValues("remediate_db_pool_exhaustion").Observe(duration.Seconds())
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *ActionServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.Config != nil {
		body["config"] = s.Config.Sanitized()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *ActionServer) recordStep(step remediation.StepResult) {
	if s.Metrics != nil {
		s.Metrics.RecordStep(step.Action, step.Status)
	}
}

// healthVerdict matches spec.md §6's health-check response shape.
type healthVerdict struct {
	IsHealthy         bool    `json:"is_healthy"`
	HealthStatus      string  `json:"health_status"`
	DatabaseStatus    string  `json:"database_status"`
	PoolHealth        string  `json:"pool_health"`
	PoolUtilization   float64 `json:"pool_utilization"`
	ErrorRatePercent  float64 `json:"error_rate_percent"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
}

// assembleVerdict combines the target API probe (step) with the target
// database's pool statistics into spec.md §6's single health verdict.
// It reflects a single point-in-time sample rather than a rolling window
// — actiond keeps no request history of the target's own traffic.
func (s *ActionServer) assembleVerdict(r *http.Request, step remediation.StepResult, elapsed time.Duration) healthVerdict {
	isHealthy := step.Status == "success" && step.Result["is_healthy"] == "true"

	v := healthVerdict{
		IsHealthy:         isHealthy,
		AvgResponseTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	}
	if isHealthy {
		v.HealthStatus = "healthy"
		v.ErrorRatePercent = 0
	} else {
		v.HealthStatus = "unhealthy"
		v.ErrorRatePercent = 100
	}

	if s.DB == nil {
		v.DatabaseStatus = "unknown"
		v.PoolHealth = "unknown"
		return v
	}

	if err := s.DB.Health(r.Context()); err != nil {
		v.DatabaseStatus = fmt.Sprintf("error: %s", err.Error())
		v.IsHealthy = false
		v.HealthStatus = "unhealthy"
	} else {
		v.DatabaseStatus = "ok"
	}

	stat := s.DB.Stats()
	if stat.MaxConns() > 0 {
		v.PoolUtilization = float64(stat.AcquiredConns()) / float64(stat.MaxConns())
	}
	switch {
	case v.PoolUtilization >= 0.95:
		v.PoolHealth = "exhausted"
	case v.PoolUtilization >= 0.8:
		v.PoolHealth = "degraded"
	default:
		v.PoolHealth = "healthy"
	}

	return v
}
