package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"vetting/internal/checks"
	"vetting/internal/metrics"
	"vetting/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

// CheckService is the lifecycle API exposed over HTTP.
type CheckService interface {
	RequestCheck(ctx context.Context, req checks.Request) (*types.BackgroundCheck, bool, error)
	Check(ctx context.Context, checkID string) (*types.BackgroundCheck, error)
	RefreshStatus(ctx context.Context, checkID string) (*types.BackgroundCheck, error)
	HandleWebhook(ctx context.Context, providerID string, payload []byte) (*types.BackgroundCheck, error)
}

type Validator interface {
	Validate(ctx context.Context, volunteerID, opportunityID string) (*types.ValidationResult, error)
}

// ProviderLookup resolves the provider profile that signs a webhook.
type ProviderLookup interface {
	Provider(id string) (*types.Provider, bool)
}

// KeySets fetches the JWKS a provider signs its webhook tokens with.
// *jwk.Cache satisfies it.
type KeySets interface {
	Lookup(ctx context.Context, u string) (jwk.Set, error)
}

type Service struct {
	logger    *logrus.Logger
	config    *types.Config
	checks    CheckService
	validator Validator
	providers ProviderLookup
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	keySets KeySets

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	checks CheckService,
	validator Validator,
	providers ProviderLookup,
	jwkCache *jwk.Cache,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Service {
	mux := flow.New()

	s := &Service{
		logger:    logger,
		config:    config,
		checks:    checks,
		validator: validator,
		providers: providers,
		metrics:   m,
		gatherer:  gatherer,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	if jwkCache != nil {
		s.keySets = jwkCache
	}

	s.buildRouter(mux)

	return s
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.RequestID)
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}), http.MethodGet)
	}

	r.HandleFunc("/checks", s.handlePostCheck, http.MethodPost)
	r.HandleFunc("/checks/:checkID", s.handleGetCheck, http.MethodGet)
	r.HandleFunc("/checks/:checkID/refresh", s.handlePostRefresh, http.MethodPost)

	r.HandleFunc("/volunteers/:volunteerID/validation", s.handleGetValidation, http.MethodGet)

	r.Group(func(r *flow.Mux) {
		r.Use(s.VerifyWebhook)

		r.HandleFunc("/webhooks/:providerID", s.handlePostWebhook, http.MethodPost)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
