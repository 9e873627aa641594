package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/deploykit/api/v1"
	"github.com/deploykit/config"
	"github.com/deploykit/database"
	"github.com/deploykit/lib/broadcast"
	"github.com/deploykit/lib/kubernetes"
	"github.com/deploykit/lib/logger"
	"github.com/deploykit/lib/metrics"
	"github.com/deploykit/lib/remote"
	"github.com/deploykit/lib/telemetry"
	"github.com/deploykit/repositories"
	"github.com/deploykit/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var skipMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, config.Load())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate the database schema on startup")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithModule("server")

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, logger.Get())
	if err != nil {
		return err
	}
	if !skipMigrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	nrApp, err := telemetry.Initialize(cfg.NewRelicAppName, cfg.NewRelicLicenseKey, logger.WithModule("newrelic"))
	if err != nil {
		log.WithError(err).Warn("⚠️ Continuing without New Relic")
	}

	hub := broadcast.NewHub(logger.WithModule("broadcast"), m.EventDropped)
	var publisher broadcast.Publisher = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		relay := broadcast.NewRedisRelay(client, hub, logger.WithModule("redis"), m.EventDropped)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("❌ Redis relay stopped")
			}
		}()
		log.Info("📡 Live events relayed through Redis")
	}

	// Interfaces stay untyped nil when no cluster is reachable.
	var (
		reader  services.ResourceReader
		cleaner services.ResourceCleaner
	)
	if cfg.K8sProxyURL != "" {
		k8s, err := kubernetes.NewClient(cfg.K8sProxyURL, logger.WithModule("kubernetes"))
		if err != nil {
			log.WithError(err).Warn("⚠️ Kubernetes client unavailable, resource status disabled")
		} else {
			reader, cleaner = k8s, k8s
		}
	}

	var runner remote.Runner
	if cfg.SSH.Configured() {
		runner = remote.NewSSHRunner(remote.SSHConfig{
			Host:           cfg.SSH.Host,
			Port:           cfg.SSH.Port,
			User:           cfg.SSH.User,
			PrivateKey:     cfg.SSH.PrivateKey,
			KnownHostsPath: cfg.SSH.KnownHostsPath,
			DialTimeout:    cfg.SSH.DialTimeout,
		}, logger.WithModule("ssh"))
	} else {
		log.Warn("⚠️ SSH is not configured, deployments will fail until SSH_HOST and SSH_KEY are set")
	}

	projectRepo := repositories.NewProjectRepository(db)
	projectRepo.ObservePortAllocations(m.PortAllocation)

	deployments := services.NewDeploymentService(services.DeploymentServiceDeps{
		Projects:    projectRepo,
		Deployments: repositories.NewDeploymentRepository(db),
		Runner:      runner,
		SSH:         cfg.SSH,
		Publisher:   publisher,
		Platform:    services.PlatformFromConfig(cfg),
		Metrics:     m,
		NewRelic:    nrApp,
		Log:         logger.WithModule("deployments"),
	})
	projects := services.NewProjectService(projectRepo, repositories.NewMemberRepository(db), deployments, cleaner, cfg.KubeNamespace, logger.WithModule("projects"))
	resources := services.NewResourceService(reader, cfg.KubeNamespace)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), telemetry.GinMiddleware(nrApp))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	v1.RegisterRoutes(router.Group("/api/v1"), v1.Dependencies{
		Projects:    projects,
		Deployments: deployments,
		Resources:   resources,
		Hub:         hub,
		Gatherer:    registry,
		JWTSecret:   cfg.JWTSecret,
		Log:         logger.WithModule("api"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("🚀 deploykit API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not stop cleanly")
	}
	if err := deployments.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Deployments still running at shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("👋 Server stopped")
	return nil
}
