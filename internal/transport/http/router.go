// Package httptransport serves the routine engine over HTTP.
package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
	"github.com/hammamikhairi/glowroutine/internal/metrics"
	"github.com/hammamikhairi/glowroutine/internal/pending"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
)

const maxBodyBytes = 1 << 16

type startSessionRequest struct {
	Section string `json:"section"`
}

type eventRequest struct {
	Type string `json:"type"`
}

type pendingRequest struct {
	Action      string `json:"action"`
	ProductName string `json:"product_name"`
	Days        int    `json:"days"`
}

// Deps are the router's collaborators.
type Deps struct {
	Routines  RoutineService
	Health    HealthChecker
	Logger    *logger.Logger
	Version   string
	Commit    string
	BuildDate string
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")
	svc := deps.Routines

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(log.Slog()))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				log.Warn("readiness check failed: %v", err)
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// ---------------- METRICS ----------------

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- ROUTINES ----------------

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/sections", func(w http.ResponseWriter, r *http.Request) {
			sections, err := svc.Sections(r.Context(), chi.URLParam(r, "userID"))
			if err != nil {
				respondError(w, log, "list sections", err)
				return
			}
			if sections == nil {
				sections = []domain.RoutineSection{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"sections": sections})
		})

		r.Get("/exercises", func(w http.ResponseWriter, r *http.Request) {
			hub, ok, err := svc.ExerciseHub(r.Context(), chi.URLParam(r, "userID"))
			if err != nil {
				respondError(w, log, "exercise hub", err)
				return
			}
			if !ok {
				respondError(w, log, "exercise hub", fmt.Errorf("%w: %s", domain.ErrEmptySection, domain.SectionExercises))
				return
			}
			writeJSON(w, http.StatusOK, hub)
		})

		r.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
			var req startSessionRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			name, err := domain.ParseSectionName(req.Section)
			if err != nil {
				respondError(w, log, "start session", err)
				return
			}

			info, err := svc.StartSession(r.Context(), chi.URLParam(r, "userID"), name)
			if err != nil {
				respondError(w, log, "start session", err)
				return
			}
			writeJSON(w, http.StatusCreated, info)
		})

		r.Post("/pending/{ingredientID}", func(w http.ResponseWriter, r *http.Request) {
			var req pendingRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			out, err := outcomeFromRequest(req)
			if err != nil {
				respondError(w, log, "resolve pending", err)
				return
			}

			sel, err := svc.ResolvePending(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "ingredientID"), out)
			if err != nil {
				respondError(w, log, "resolve pending", err)
				return
			}
			writeJSON(w, http.StatusOK, sel)
		})
	})

	// ---------------- SESSIONS ----------------

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"sessions": svc.ActiveSessions()})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			info, err := svc.Status(chi.URLParam(r, "id"))
			if err != nil {
				respondError(w, log, "session status", err)
				return
			}
			writeJSON(w, http.StatusOK, info)
		})

		r.Post("/{id}/events", func(w http.ResponseWriter, r *http.Request) {
			var req eventRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			ev, err := sequencer.ParseEventType(req.Type)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			id := chi.URLParam(r, "id")
			snap, err := svc.Dispatch(r.Context(), id, ev)
			if err != nil {
				respondError(w, log, "dispatch "+ev.String(), err)
				return
			}
			if ev == sequencer.EventClose {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.CloseSession(r.Context(), chi.URLParam(r, "id")); err != nil {
				respondError(w, log, "close session", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

func outcomeFromRequest(req pendingRequest) (pending.Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "have", "added":
		return pending.Outcome{Kind: pending.KindAdded, ProductName: req.ProductName}, nil
	case "defer", "deferred":
		return pending.Outcome{Kind: pending.KindDeferred, Days: req.Days}, nil
	case "skip", "skipped":
		return pending.Outcome{Kind: pending.KindSkipped}, nil
	default:
		return pending.Outcome{}, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, req.Action)
	}
}

// httpStatus maps domain errors to status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrEmptySection):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSection),
		errors.Is(err, domain.ErrEmptyProductName),
		errors.Is(err, domain.ErrInvalidDeferral):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionComplete),
		errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("%s failed: %v", op, err)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func valueOrDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
