// Package http exposes the subsystem over REST. Handlers stay thin: parse,
// delegate, map errors. All policy lives in the services.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"everkeep/internal/audit"
	"everkeep/internal/authorization"
	"everkeep/internal/consent"
	"everkeep/internal/gate"
	"everkeep/internal/platform/metrics"
	"everkeep/internal/platform/middleware"
	"everkeep/internal/voice"
)

// HealthCheck probes one dependency for the readiness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies carries everything the router needs wired in.
type Dependencies struct {
	Consents *consent.Service
	Workflow *authorization.Service
	Voices   *voice.Service
	Audits   *audit.Service
	Gate     *gate.Gate

	Validator middleware.Validator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	RequestTimeout time.Duration
	Health         []HealthCheck
}

// NewRouter assembles the middleware chain and routes.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	consents := &consentHandlers{consents: deps.Consents, gate: deps.Gate, logger: logger}
	workflow := &authorizationHandlers{workflow: deps.Workflow, logger: logger}
	voices := &voiceHandlers{voices: deps.Voices, gate: deps.Gate, logger: logger}
	audits := &auditHandlers{audits: deps.Audits, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.ClientMetadata)
	if deps.Metrics != nil {
		r.Use(instrument(deps.Metrics))
	}

	r.Get("/healthz", healthHandler(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(deps.Validator, logger))

		r.Route("/consent", func(r chi.Router) {
			r.Get("/", consents.list)
			r.Post("/", consents.grant)
			r.Post("/revoke", consents.revoke)
			r.Get("/check", consents.check)
		})

		r.Route("/authorization", func(r chi.Router) {
			r.Post("/", workflow.submit)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireReviewer(logger))
				r.Post("/{id}/approve", workflow.approve)
				r.Post("/{id}/reject", workflow.reject)
			})
		})

		r.Route("/memorials/{id}", func(r chi.Router) {
			r.Route("/voice", func(r chi.Router) {
				r.Get("/", voices.getProfile)
				r.Post("/samples", voices.addSample)
				r.Delete("/samples/{sampleID}", voices.removeSample)
				r.Get("/sufficiency", voices.sufficiency)
				r.Post("/generate", voices.generate)
				r.Post("/playback", voices.playback)
				r.Post("/revoke", voices.revokeProfile)
			})
			r.Get("/audit", audits.query)
			r.Get("/audit/export", audits.export)
		})

		r.Post("/privacy/anonymize", audits.anonymize)
	})

	return r
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		overall := "ok"
		detail := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				overall = "degraded"
				detail[check.Name] = err.Error()
				continue
			}
			detail[check.Name] = "ok"
		}
		writeJSON(w, status, map[string]any{
			"status": overall,
			"checks": detail,
		})
	}
}

// instrument records request latency by chi route pattern and status.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &instrumentedWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.RequestDuration.WithLabelValues(route, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}

type instrumentedWriter struct {
	http.ResponseWriter
	status int
}

func (w *instrumentedWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
