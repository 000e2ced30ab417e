package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/results"
	"github.com/spigell/mutual-match/internal/session"
)

const (
	DefaultAddress          = ":8080"
	DefaultWebhookCacheSize = 1024
	shutdownTimeout         = 10 * time.Second
)

type Config struct {
	Address          string        `mapstructure:"address"`
	AllowedOrigins   []string      `mapstructure:"allowed-origins"`
	ReadTimeout      time.Duration `mapstructure:"read-timeout"`
	WebhookCacheSize int           `mapstructure:"webhook-cache-size"`
}

func DefaultConfig() Config {
	return Config{
		Address:          DefaultAddress,
		AllowedOrigins:   []string{"*"},
		ReadTimeout:      15 * time.Second,
		WebhookCacheSize: DefaultWebhookCacheSize,
	}
}

type Sessions interface {
	Create(ctx context.Context, req session.CreateRequest) (*session.Session, error)
	Status(ctx context.Context, id string) (session.Status, error)
	Submit(ctx context.Context, id string, req session.SubmitRequest) error
}

type Results interface {
	Results(ctx context.Context, id string) (results.Result, error)
}

type Payments interface {
	Checkout(ctx context.Context, quizID, code string) (payment.Quote, error)
	Complete(ctx context.Context, c *payment.CompletedCheckout) error
}

type Referrals interface {
	Validate(ctx context.Context, code string) (*referral.Code, error)
	List(ctx context.Context) ([]referral.Stats, error)
	Create(ctx context.Context, code, influencer string, discount int) (*referral.Code, error)
	Update(ctx context.Context, id string, upd referral.Update) (*referral.Code, error)
	Delete(ctx context.Context, id string) error
}

// Recorder receives request and webhook events. metrics.Metrics satisfies it.
type Recorder interface {
	ObserveRequest(route, method string, status int, duration time.Duration)
	ObserveWebhook(outcome string)
}

type Deps struct {
	Sessions  Sessions
	Results   Results
	Payments  Payments
	Referrals Referrals
	Catalog   *catalog.Catalog
	Quick     *catalog.Catalog
	Recorder  Recorder
	Gatherer  prometheus.Gatherer
	// Health reports storage readiness. Nil means always healthy.
	Health func(ctx context.Context) error

	WebhookSecret string
	AdminPassword string
}

type Server struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	seen   *lru.Cache[string, struct{}]
	router *mux.Router
}

func New(cfg Config, deps Deps, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Sessions == nil || deps.Results == nil {
		return nil, errors.New("sessions and results services are required")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Quick == nil {
		deps.Quick = catalog.Quick()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.WebhookCacheSize <= 0 {
		cfg.WebhookCacheSize = DefaultWebhookCacheSize
	}

	seen, err := lru.New[string, struct{}](cfg.WebhookCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating webhook cache: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log,
		seen:   seen,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/quiz", s.handleCreateQuiz).Methods(http.MethodPost)
	api.HandleFunc("/quiz/{id}", s.handleQuizStatus).Methods(http.MethodGet)
	api.HandleFunc("/quiz/{id}/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/results/{id}", s.handleResults).Methods(http.MethodGet)

	if s.deps.Payments != nil {
		api.HandleFunc("/checkout", s.handleCheckout).Methods(http.MethodPost)
		api.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	}

	if s.deps.Referrals != nil {
		api.HandleFunc("/referral/validate", s.handleValidateReferral).Methods(http.MethodPost)

		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(s.requireAdmin)
		admin.HandleFunc("/referrals", s.handleListReferrals).Methods(http.MethodGet)
		admin.HandleFunc("/referrals", s.handleCreateReferral).Methods(http.MethodPost)
		admin.HandleFunc("/referrals", s.handleUpdateReferral).Methods(http.MethodPut)
		admin.HandleFunc("/referrals", s.handleDeleteReferral).Methods(http.MethodDelete)
	}

	return r
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}).Handler(s.router)
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := s.httpServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("address", s.cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
