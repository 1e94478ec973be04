package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/wxarchive/internal/archive"
	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/store"
)

// CacheStatus reports the state of the cache database for /health.
type CacheStatus interface {
	MigrationVersion() (int, error)
	CachedMonths(ctx context.Context) ([]store.CacheHandle, error)
}

type Server struct {
	archive *archive.Archive
	cache   CacheStatus
	port    string
}

// NewServer wires the HTTP surface. cache may be nil when the server runs
// without a database.
func NewServer(a *archive.Archive, cache CacheStatus, port string) *Server {
	return &Server{archive: a, cache: cache, port: port}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/aggregate", s.handleAggregate).Methods("GET")
	r.HandleFunc("/api/daily", s.handleDaily).Methods("GET")
	r.HandleFunc("/api/stats/year/{year:[0-9]{4}}", s.handleYearStats).Methods("GET")
	r.HandleFunc("/api/stats/month/{month:[0-9]{6}}", s.handleMonthStats).Methods("GET")
	r.HandleFunc("/api/accuracy", s.handleAccuracy).Methods("GET")
	r.HandleFunc("/api/cache", s.handleCache).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("api: listening on :%s", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status           string   `json:"status"`
	MigrationVersion int      `json:"migration_version"`
	CachedMonths     int      `json:"cached_months"`
	Errors           []string `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	if s.cache == nil {
		health.Status = "degraded"
		health.Errors = append(health.Errors, "cache: disabled")
	} else {
		v, err := s.cache.MigrationVersion()
		if err != nil {
			health.Errors = append(health.Errors, "migrations: "+err.Error())
		}
		health.MigrationVersion = v

		months, err := s.cache.CachedMonths(r.Context())
		if err != nil {
			health.Errors = append(health.Errors, "cache: "+err.Error())
		}
		health.CachedMonths = len(months)

		// Queries still succeed from raw files when the cache is broken.
		if len(health.Errors) > 0 {
			health.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// writeJSON encodes before writing the status so an encoding failure becomes
// a 500 instead of a truncated 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Errorf("api: encode response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		log.Warnf("api: write response: %v", err)
	}
}

type errorBody struct {
	Error string        `json:"error"`
	Meta  *archive.Meta `json:"meta,omitempty"`
}

// writeError maps coordinator errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var bad *badRequest
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &bad):
		status = http.StatusBadRequest
	case errors.Is(err, columns.ErrColumnNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, archive.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Errorf("api: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeNoData(w http.ResponseWriter, meta archive.Meta) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: archive.ErrNoData.Error(), Meta: &meta})
}
