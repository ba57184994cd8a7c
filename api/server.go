// Package api exposes the product cache over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/codetesla51/productcache/product"
	"github.com/codetesla51/productcache/ratelimit"
)

// ProductService is the cache surface the handlers drive.
type ProductService interface {
	Save(ctx context.Context, p product.Product) (product.Product, error)
	FindAll(ctx context.Context) ([]product.Product, error)
	FindByID(ctx context.Context, id int) (product.Product, error)
	DeleteByID(ctx context.Context, id int) error
	Evict(ctx context.Context) error
	Warm(ctx context.Context) (int, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router   *chi.Mux
	Products ProductService
	Jobs     Enqueuer // nil runs warms inline
	Logger   zerolog.Logger
}

type ServerOptions struct {
	Products ProductService
	Jobs     Enqueuer
	Logger   zerolog.Logger
	Limiter  *ratelimit.TokenBucket // nil disables rate limiting
	Gatherer prometheus.Gatherer    // nil falls back to the default registry

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers, since the
	// rate limiter keys on the result.
	TrustProxy bool
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chimw.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, Products: opts.Products, Jobs: opts.Jobs, Logger: opts.Logger}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(ar chi.Router) {
		if opts.Limiter != nil {
			ar.Use(ratelimit.Middleware(opts.Limiter))
		}

		ar.Post("/products", s.handleCreateProduct)
		ar.Get("/products", s.handleListProducts)
		ar.Get("/products/{id}", s.handleGetProduct)
		ar.Put("/products/{id}", s.handleUpdateProduct)
		ar.Delete("/products/{id}", s.handleDeleteProduct)

		ar.Delete("/cache", s.handleEvictCache)
		ar.Post("/cache/warm", s.handleWarmCache)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
