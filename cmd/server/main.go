package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	assignmenthandler "experthub/internal/assignment/handler"
	assignmentmetrics "experthub/internal/assignment/metrics"
	assignmentservice "experthub/internal/assignment/service"
	assignmentstore "experthub/internal/assignment/store/assignment"
	billinghandler "experthub/internal/billing/handler"
	billingmetrics "experthub/internal/billing/metrics"
	billingservice "experthub/internal/billing/service"
	approvalstore "experthub/internal/billing/store/approval"
	cataloghandler "experthub/internal/catalog/handler"
	catalogservice "experthub/internal/catalog/service"
	offeringstore "experthub/internal/catalog/store/offering"
	parentstore "experthub/internal/catalog/store/parent"
	requirementstore "experthub/internal/catalog/store/requirement"
	cvhandler "experthub/internal/cv/handler"
	cvmetrics "experthub/internal/cv/metrics"
	cvservice "experthub/internal/cv/service"
	cvstore "experthub/internal/cv/store/cv"
	directoryhandler "experthub/internal/directory/handler"
	directoryservice "experthub/internal/directory/service"
	orgstore "experthub/internal/directory/store/org"
	userstore "experthub/internal/directory/store/user"
	jwttoken "experthub/internal/jwt_token"
	"experthub/internal/lifecycle"
	lifecyclemetrics "experthub/internal/lifecycle/metrics"
	"experthub/internal/lifecycle/notify"
	"experthub/internal/platform/config"
	"experthub/internal/platform/httpserver"
	"experthub/internal/platform/kafka"
	"experthub/internal/platform/logger"
	platformmetrics "experthub/internal/platform/metrics"
	"experthub/internal/platform/middleware"
	"experthub/internal/platform/postgres"
	"experthub/internal/platform/redis"
	qualificationhandler "experthub/internal/qualification/handler"
	qualservice "experthub/internal/qualification/service"
	qualificationstore "experthub/internal/qualification/store/qualification"
	"experthub/pkg/platform/audit"
	auditmemory "experthub/pkg/platform/audit/store/memory"
	auditpostgres "experthub/pkg/platform/audit/store/postgres"
	"experthub/pkg/platform/tx"
)

// main wires stores, services and the HTTP router, then runs the server
// until a shutdown signal arrives. Business logic lives in the internal
// service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = postgres.Open(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		log.Info("using postgres stores")
	} else {
		log.Info("no POSTGRES_URL set, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	if producer != nil {
		topicCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := producer.EnsureTopic(topicCtx, cfg.Kafka.Topic)
		cancel()
		if err != nil {
			return fmt.Errorf("ensure kafka topic: %w", err)
		}
	}

	st := newStores(db)
	auditPublisher := audit.NewPublisher(st.audit)

	txRunner := newTxRunner(db)
	httpMetrics := platformmetrics.New()

	directorySvc := directoryservice.New(st.users, st.orgs,
		directoryservice.WithLogger(log),
		directoryservice.WithAuditPublisher(auditPublisher),
	)
	catalogSvc := catalogservice.New(st.parents, st.offerings, st.requirements,
		catalogservice.WithLogger(log),
		catalogservice.WithAuditPublisher(auditPublisher),
		catalogservice.WithTxRunner(txRunner),
	)
	qualOpts := []qualservice.Option{
		qualservice.WithLogger(log),
		qualservice.WithAuditPublisher(auditPublisher),
	}
	if redisClient != nil {
		qualOpts = append(qualOpts, qualservice.WithRedis(redisClient.Client))
	}
	qualificationSvc := qualservice.New(st.qualifications, qualOpts...)

	cvSvc := cvservice.New(st.cvs,
		cvservice.WithLogger(log),
		cvservice.WithAuditPublisher(auditPublisher),
		cvservice.WithAssignmentReader(&assignmentReader{assignments: st.assignments, catalog: catalogSvc}),
		cvservice.WithMetrics(cvmetrics.New()),
	)
	assignmentSvc := assignmentservice.New(st.assignments, &cvGateway{cvs: st.cvs},
		assignmentservice.WithLogger(log),
		assignmentservice.WithAuditPublisher(auditPublisher),
		assignmentservice.WithTxRunner(txRunner),
		assignmentservice.WithRequirementCatalog(&requirementCatalog{catalog: catalogSvc}),
		assignmentservice.WithTrainingRegistry(&trainingRegistry{qualifications: qualificationSvc}),
		assignmentservice.WithMetrics(assignmentmetrics.New()),
	)
	coordinator := lifecycle.New(st.assignments, st.cvs, &lifecycleRegistry{qualifications: qualificationSvc},
		lifecycle.WithLogger(log),
		lifecycle.WithAuditPublisher(auditPublisher),
		lifecycle.WithTxRunner(txRunner),
		lifecycle.WithNotifier(notify.NewKafkaNotifier(producer, cfg.Kafka.Topic, log)),
		lifecycle.WithMetrics(lifecyclemetrics.New()),
	)
	billingSvc := billingservice.New(st.approvals, &leadRoster{assignments: st.assignments},
		billingservice.WithLogger(log),
		billingservice.WithAuditPublisher(auditPublisher),
		billingservice.WithMetrics(billingmetrics.New()),
	)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "experthub", "experthub-api")

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.LatencyMiddleware(httpMetrics))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(&jwtValidator{tokens: tokens}, log))

		directoryhandler.New(directorySvc, log).Register(r)
		cataloghandler.New(catalogSvc, log).Register(r)
		cvhandler.New(cvSvc, log).Register(r)
		assignmenthandler.New(assignmentSvc, coordinator, log).Register(r)
		qualificationhandler.New(qualificationSvc, log).Register(r)
		billinghandler.New(billingSvc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting experthub server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := producer.Close(ctx); err != nil {
		log.Warn("kafka producer close failed", "error", err)
	}
	return nil
}

// stores bundles the per-module persistence ports. A nil db selects the
// in-memory implementations.
type stores struct {
	users          directoryservice.UserStore
	orgs           directoryservice.OrgStore
	parents        catalogservice.ParentStore
	offerings      catalogservice.OfferingStore
	requirements   catalogservice.RequirementStore
	cvs            cvservice.Store
	assignments    assignmentservice.Store
	qualifications qualservice.Store
	approvals      billingservice.Store
	audit          audit.Store
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			users:          userstore.NewInMemory(),
			orgs:           orgstore.NewInMemory(),
			parents:        parentstore.NewInMemory(),
			offerings:      offeringstore.NewInMemory(),
			requirements:   requirementstore.NewInMemory(),
			cvs:            cvstore.NewInMemory(),
			assignments:    assignmentstore.NewInMemory(),
			qualifications: qualificationstore.NewInMemory(),
			approvals:      approvalstore.NewInMemory(),
			audit:          auditmemory.NewInMemoryStore(),
		}
	}
	return stores{
		users:          userstore.NewPostgres(db),
		orgs:           orgstore.NewPostgres(db),
		parents:        parentstore.NewPostgres(db),
		offerings:      offeringstore.NewPostgres(db),
		requirements:   requirementstore.NewPostgres(db),
		cvs:            cvstore.NewPostgres(db),
		assignments:    assignmentstore.NewPostgres(db),
		qualifications: qualificationstore.NewPostgres(db),
		approvals:      approvalstore.NewPostgres(db),
		audit:          auditpostgres.New(db),
	}
}

func newTxRunner(db *sql.DB) tx.Runner {
	if db == nil {
		return tx.NewPassthroughRunner()
	}
	return tx.NewSQLRunner(db)
}
