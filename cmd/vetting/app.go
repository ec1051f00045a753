package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"vetting/internal/checks"
	"vetting/internal/db"
	"vetting/internal/metrics"
	"vetting/internal/notify"
	"vetting/internal/provider"
	"vetting/internal/renewal"
	"vetting/internal/requirements"
	"vetting/internal/runlock"
	"vetting/internal/seed"
	"vetting/internal/storage"
	"vetting/internal/store"
	"vetting/internal/store/memory"
	"vetting/pkg/types"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

type checkStore interface {
	checks.CheckStore
	renewal.CheckStore
	requirements.CheckStore
}

type volunteerStore interface {
	checks.VolunteerStore
	seed.VolunteerRepository
}

type providerStore interface {
	seed.ProviderRepository
}

type requirementStore interface {
	requirements.RequirementStore
	seed.RequirementRepository
}

// app holds every long lived dependency a command needs.
type app struct {
	config *types.Config
	logger *logrus.Logger

	checkStore       checkStore
	volunteerStore   volunteerStore
	providerStore    providerStore
	requirementStore requirementStore

	registry  *provider.Registry
	checks    *checks.Service
	validator *requirements.Validator
	scheduler *renewal.Scheduler

	metrics   *metrics.Metrics
	promReg   *prometheus.Registry
	jwksCache *jwk.Cache

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, config *types.Config, logger *logrus.Logger, inMemory bool) (*app, error) {
	a := &app{config: config, logger: logger}

	if err := a.openStores(ctx, inMemory); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) openStores(ctx context.Context, inMemory bool) error {
	if inMemory {
		mem := memory.New()
		a.checkStore = mem
		a.volunteerStore = mem
		a.providerStore = mem
		a.requirementStore = mem

		fixtures, err := seed.LoadFixtures(a.config.FixturesFile)
		if err != nil {
			return err
		}
		return seed.Apply(ctx, a.logger, seed.Repositories{
			Providers:    mem,
			Requirements: mem,
			Volunteers:   mem,
		}, fixtures)
	}

	pool, err := db.Connect(ctx, a.config)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	a.checkStore = store.NewCheckRepository(pool)
	a.volunteerStore = store.NewVolunteerRepository(pool)
	a.providerStore = store.NewProviderRepository(pool)
	a.requirementStore = store.NewRequirementRepository(pool)
	return nil
}

func (a *app) build(ctx context.Context) error {
	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.promReg)

	providers, err := a.providerStore.AllProviders(ctx)
	if err != nil {
		return err
	}

	simulation := provider.NewSimulationAdapter(a.config.SimulationApprovalAfter(), nil)
	httpClient := &http.Client{Timeout: a.config.ProviderTimeout()}
	a.registry, err = provider.BuildRegistry(providers, httpClient, simulation)
	if err != nil {
		return err
	}

	if err := a.registerJWKS(ctx, providers); err != nil {
		return err
	}

	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}

	var archive checks.Archiver
	if a.config.S3BucketName != "" {
		awsConfig, err := loadAWSConfig(ctx)
		if err != nil {
			return err
		}
		archive = storage.NewReportArchive(s3.NewFromConfig(awsConfig), a.config.S3BucketName, a.config.S3ReportPrefix)
	}

	a.checks = checks.New(a.logger, a.checkStore, a.volunteerStore, a.registry, dispatcher, checks.Options{
		FallbackMode:    a.config.FallbackMode,
		Validity:        a.config.CheckValidity(),
		ProviderTimeout: a.config.ProviderTimeout(),
		WebhookBaseURL:  a.config.WebhookBaseURL,
		Archive:         archive,
		Metrics:         a.metrics,
	})

	a.validator = requirements.NewValidator(a.logger, a.requirementStore, a.checkStore, a.volunteerStore, nil)

	var locker renewal.Locker
	if a.config.RedisURL != "" {
		client, err := runlock.Connect(ctx, a.config.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		locker = runlock.NewRedisLocker(client)
	}

	a.scheduler = renewal.NewScheduler(a.logger, a.checkStore, a.volunteerStore, a.checks, dispatcher, renewal.Options{
		Workers:    int(a.config.RenewalWorkers),
		StaleAfter: a.config.StaleAfter(),
		LockTTL:    a.config.RenewalLockTTL(),
		Locker:     locker,
		Metrics:    a.metrics,
	})

	return nil
}

func (a *app) dispatcher() (notify.Dispatcher, error) {
	if a.config.NatsURL == "" {
		a.logger.Warn("NATS_URL not set, notifications will only be logged")
		return notify.NewLogDispatcher(a.logger), nil
	}

	conn, err := nats.Connect(a.config.NatsURL,
		nats.Name("vetting"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Drain() })

	return notify.NewNATSDispatcher(conn, a.config.NotificationSubject), nil
}

// registerJWKS primes the key cache for providers that sign webhooks with
// JWTs.
func (a *app) registerJWKS(ctx context.Context, providers []*types.Provider) error {
	for _, p := range providers {
		if p.Settings.JWKSURL == "" {
			continue
		}

		if a.jwksCache == nil {
			cache, err := jwk.NewCache(ctx, httprc.NewClient())
			if err != nil {
				return fmt.Errorf("failed to initialize jwk cache: %w", err)
			}
			a.jwksCache = cache
		}

		if err := a.jwksCache.Register(ctx, p.Settings.JWKSURL); err != nil {
			return fmt.Errorf("failed to register jwks for provider %s: %w", p.ID, err)
		}
	}

	return nil
}
