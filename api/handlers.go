package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/hlog"

	"github.com/codetesla51/productcache/cache"
	"github.com/codetesla51/productcache/jobs"
	"github.com/codetesla51/productcache/product"
)

const retryAfterSeconds = "5"

var (
	errBadID            = errors.New("invalid product id")
	errQueueUnavailable = errors.New("task queue unavailable")
)

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	p, err := decodeProduct(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.Products.Save(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, saved)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.FindAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, r, http.StatusOK, products)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.Products.FindByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := decodeProduct(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = id
	if err := p.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.Products.FindByID(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.Products.Save(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, saved)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.Products.FindByID(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Products.DeleteByID(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvictCache(w http.ResponseWriter, r *http.Request) {
	if err := s.Products.Evict(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWarmCache(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		n, err := s.Products.Warm(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]int{"warmed": n})
		return
	}

	task, err := jobs.NewWarmCatalogTask("api")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.Jobs.Enqueue(task, jobs.WarmOptions(jobs.NewRunID())...)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		hlog.FromRequest(r).Info().Msg("warm task already queued")
		writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "already queued"})
	case err != nil:
		s.writeError(w, r, fmt.Errorf("enqueue warm task: %w: %w", errQueueUnavailable, err))
	default:
		hlog.FromRequest(r).Info().Str("task_id", info.ID).Str("queue", info.Queue).Msg("warm task enqueued")
		writeJSON(w, r, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"task_id": info.ID,
			"queue":   info.Queue,
		})
	}
}

func productID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func decodeProduct(r *http.Request) (product.Product, error) {
	var p product.Product
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return product.Product{}, fmt.Errorf("%w: bad body: %v", product.ErrInvalid, err)
	}
	return p, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, errBadID):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, product.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, cache.ErrNotFound):
		status, msg = http.StatusNotFound, "product not found"
	case errors.Is(err, errQueueUnavailable):
		status, msg = http.StatusServiceUnavailable, errQueueUnavailable.Error()
		w.Header().Set("Retry-After", retryAfterSeconds)
	case cache.IsRetryable(err):
		status, msg = http.StatusServiceUnavailable, "service temporarily unavailable"
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("write response")
	}
}
