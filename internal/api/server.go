package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/pairing"
	"github.com/pbaille/winewize/internal/scan"
	"github.com/pbaille/winewize/internal/session"
	"github.com/pbaille/winewize/internal/store"
	apperrors "github.com/pbaille/winewize/pkg/errors"
	"github.com/pbaille/winewize/pkg/validator"
)

// maxBodyBytes bounds request bodies; a handful of base64 phone photos fit.
const maxBodyBytes = 40 << 20

// Server handles HTTP requests for the pairing API
type Server struct {
	store    *store.Store
	sessions *session.Manager
	scanner  *scan.Scanner
	pairing  *pairing.Service
	addr     string
	metrics  bool
	log      *zap.Logger
}

// Deps groups the components the server routes to. Scanner may be nil when
// no AI provider is configured; scan requests then fail with 503.
type Deps struct {
	Store    *store.Store
	Sessions *session.Manager
	Scanner  *scan.Scanner
	Pairing  *pairing.Service
	Logger   *zap.Logger
}

// New creates a new API server
func New(d Deps, addr string, metrics bool) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Server{
		store:    d.Store,
		sessions: d.Sessions,
		scanner:  d.Scanner,
		pairing:  d.Pairing,
		addr:     addr,
		metrics:  metrics,
		log:      d.Logger,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sessions
	mux.HandleFunc("POST /sessions/{id}/scan", s.scanSession)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.resetSession)
	mux.HandleFunc("GET /sessions/{id}/wines", s.sessionWines)
	mux.HandleFunc("POST /sessions/{id}/pairings", s.createPairings)
	mux.HandleFunc("GET /sessions/{id}/pairings", s.listPairings)

	// Restaurants
	mux.HandleFunc("GET /restaurants", s.listRestaurants)
	mux.HandleFunc("GET /restaurants/{id}", s.getRestaurant)

	mux.HandleFunc("GET /health", s.health)
	if s.metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return withRecovery(s.log, withAccessLog(s.log, withCORS(mux)))
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionID validates the {id} path segment
func sessionID(r *http.Request) (string, error) {
	p := struct {
		ID string `json:"session_id" validate:"required,max=128,excludesall=:/"`
	}{ID: r.PathValue("id")}
	if err := validator.ValidateStruct(p); err != nil {
		return "", validationError(err)
	}
	return p.ID, nil
}

// decodeBody decodes and validates a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewBadRequest("invalid request body").WithInternal(err)
	}
	if err := validator.ValidateStruct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		return &validationFailure{AppError: apperrors.ErrValidation.WithInternal(err), Fields: vErrs}
	}
	return apperrors.ErrValidation.WithInternal(err)
}

// validationFailure carries per-field details into the error body
type validationFailure struct {
	*apperrors.AppError
	Fields validator.ValidationErrors
}

func (v *validationFailure) Unwrap() error { return v.AppError }

type errorBody struct {
	Code    string                     `json:"code"`
	Message string                     `json:"message"`
	Fields  validator.ValidationErrors `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(appErr.Internal),
		)
	}

	body := errorBody{Code: appErr.Code, Message: appErr.Message}
	var vf *validationFailure
	if errors.As(err, &vf) {
		body.Fields = vf.Fields
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}
