// Package inspect serves the shared collections over HTTP, read-mostly, so
// captures can be browsed from tools that do not link the library.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shhac/httpspy/internal/domain"
	apperrors "github.com/shhac/httpspy/internal/errors"
	"github.com/shhac/httpspy/internal/match"
	"github.com/shhac/httpspy/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the exchange and context collections.
type Server struct {
	router    *chi.Mux
	exchanges storage.Repository[domain.Exchange]
	context   *storage.ContextStore
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
}

// NewServer wires the routes. A nil gatherer disables /metrics.
func NewServer(exchanges storage.Repository[domain.Exchange], ctxStore *storage.ContextStore, logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		exchanges: exchanges,
		context:   ctxStore,
		logger:    logger,
		gatherer:  gatherer,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/exchanges", func(r chi.Router) {
		r.Get("/", s.listExchanges)
		r.Delete("/", s.clearExchanges)
		r.Get("/{id}", s.getExchange)
	})

	r.Route("/context", func(r chi.Router) {
		r.Get("/", s.listContext)
		r.Delete("/", s.clearContext)
		r.Get("/{key}", s.getContext)
		r.Delete("/{key}", s.deleteContext)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// ServeHTTP lets Server be used as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspection server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown inspection server: %w", err)
	}
	return nil
}

func (s *Server) listExchanges(w http.ResponseWriter, r *http.Request) {
	c, q, err := ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := c.Compile()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := q.Limit
	q.Limit = 0
	list, err := s.exchanges.LoadSorted(q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	list = m.Filter(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) getExchange(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ex, ok, err := s.exchanges.Retrieve(id)
	switch {
	case errors.Is(err, apperrors.ErrInvalidKey):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("exchange %q not found", id))
	default:
		s.writeJSON(w, http.StatusOK, ex)
	}
}

func (s *Server) clearExchanges(w http.ResponseWriter, r *http.Request) {
	if err := s.exchanges.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("exchanges cleared via inspection API")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listContext(w http.ResponseWriter, r *http.Request) {
	keys, err := s.context.Keys()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, keys)
}

// getContext returns the raw stored value, or a single field of it when
// ?path= is given.
func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if path := r.URL.Query().Get("path"); path != "" {
		res, ok, err := s.context.Field(key, path)
		if s.contextError(w, key, true, err) {
			return
		}
		if !ok {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("context %q has no field %q", key, path))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(res.Raw))
		return
	}

	raw, ok, err := s.context.Raw(key)
	if s.contextError(w, key, ok, err) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) contextError(w http.ResponseWriter, key string, ok bool, err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrInvalidKey):
		s.writeError(w, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	case !ok:
		s.writeError(w, http.StatusNotFound, fmt.Errorf("context %q not found", key))
	default:
		return false
	}
	return true
}

func (s *Server) deleteContext(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.context.Delete(key); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperrors.ErrInvalidKey) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearContext(w http.ResponseWriter, r *http.Request) {
	if err := s.context.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
	Title string `json:"title,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("inspection request failed", slog.Any("error", err))
	}
	body := errorBody{Error: err.Error()}
	if d := apperrors.Classify(err); d != nil {
		body.Title = d.Title
	}
	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Debug("failed to write response", slog.Any("error", err))
	}
}

// ParseQuery reads criteria and ordering from URL parameters:
//
//	url, pattern, host, path, method   single-valued criteria
//	header=Name:Value                  repeatable
//	query=name=value                   repeatable
//	body=gjson.path=value              repeatable
//	since=RFC3339 order=created|modified asc=true limit=N
func ParseQuery(v map[string][]string) (match.Criteria, storage.Query, error) {
	get := func(k string) string {
		if vals := v[k]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	c := match.Criteria{
		URL:        get("url"),
		URLPattern: get("pattern"),
		Host:       get("host"),
		Path:       get("path"),
		Method:     get("method"),
	}
	var err error
	if c.Headers, err = pairs(v["header"], ":", "header"); err != nil {
		return c, storage.Query{}, err
	}
	if c.QueryParameters, err = pairs(v["query"], "=", "query"); err != nil {
		return c, storage.Query{}, err
	}
	if c.BodyJSON, err = pairs(v["body"], "=", "body"); err != nil {
		return c, storage.Query{}, err
	}

	var q storage.Query
	switch order := get("order"); order {
	case "", "created":
		q.SortKey = storage.SortByCreated
	case "modified":
		q.SortKey = storage.SortByModified
	default:
		return c, q, apperrors.ValidationError{Field: "order", Message: fmt.Sprintf("unknown order %q", order)}
	}
	if s := get("asc"); s != "" {
		if q.Ascending, err = strconv.ParseBool(s); err != nil {
			return c, q, apperrors.ValidationError{Field: "asc", Message: "must be a boolean"}
		}
	}
	if s := get("since"); s != "" {
		if q.Since, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return c, q, apperrors.ValidationError{Field: "since", Message: "must be an RFC 3339 timestamp"}
		}
	}
	if s := get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return c, q, apperrors.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
	}
	return c, q, nil
}

func pairs(raw []string, sep, field string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, p := range raw {
		k, val, ok := strings.Cut(p, sep)
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, apperrors.ValidationError{Field: field, Message: fmt.Sprintf("expected name%svalue, got %q", sep, p)}
		}
		out[k] = strings.TrimSpace(val)
	}
	return out, nil
}
