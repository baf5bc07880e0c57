package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mkrupp/streamhub/internal/infra/config"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/infra/metrics"
	"github.com/mkrupp/streamhub/internal/infra/transport/http"
	"github.com/mkrupp/streamhub/internal/repo/user"
	"github.com/mkrupp/streamhub/internal/svc/authsvc"
	"github.com/mkrupp/streamhub/internal/svc/usersvc"
)

const (
	appName = "streamhub"
	svcName = "authsvc"
)

// Environments accepted by Config.Env.
const (
	envDevelopment = "development"
	envProduction  = "production"
)

var errUnknownEnv = errors.New("unknown environment")

type Config struct {
	config.EnvConfig

	Env string `env:"ENV" default:"development"`

	Log  logging.LoggerConfig        `envPrefix:"LOG_"`
	Auth authsvc.AuthConfig          `envPrefix:"AUTH_"`
	HTTP authsvc.HTTPTransportConfig `envPrefix:"HTTP_"`
	User user.RepositoryConfig       `envPrefix:"USER_"`
}

// Validate implements config.Validator.
func (c Config) Validate() error {
	switch c.Env {
	case envDevelopment, envProduction:
	default:
		return fmt.Errorf("%w: %q", errUnknownEnv, c.Env)
	}

	if _, err := c.Auth.CheckSecrets(c.production()); err != nil {
		return fmt.Errorf("check secrets: %w", err)
	}

	return nil
}

func (c Config) production() bool {
	return c.Env == envProduction
}

func main() {
	var (
		cfg Config

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	if err := logging.Configure(ctx, cfg.Log, loggerName); err != nil {
		panic(err)
	}

	if err := run(ctx, cfg); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.authsvc")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.InfoContext(ctx, "shutdown")
		}
	}()

	warnings, _ := cfg.Auth.CheckSecrets(false)
	for _, warning := range warnings {
		log.WarnContext(ctx, "insecure configuration", "problem", warning, "env", cfg.Env)
	}

	userRepo, err := user.NewRepositoryFactory(cfg.User)()
	if err != nil {
		return fmt.Errorf("open user repository: %w", err)
	}

	defer func() {
		if closeErr := userRepo.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close user repository: %w", closeErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := metrics.NewMetrics(registry, appName)

	authSvc, err := authsvc.NewAuthService(userRepo, cfg.Auth, m)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}

	userSvc := usersvc.NewUserService(userRepo, authSvc.Hasher)
	authorizer := http.NewAuthorizer(authSvc, authSvc)

	router := mux.NewRouter()
	router.Use(m.HTTPMetricsMiddleware)

	authsvc.NewHTTPTransport(authSvc, authorizer).Register(router)
	usersvc.NewHTTPTransport(userSvc, authorizer).Register(router)

	router.Handle("/api/health", http.HealthHandler(time.Now(), time.Now)).Methods("GET")
	router.Handle("/metrics", m.Handler()).Methods("GET")

	log.InfoContext(ctx, "starting", "env", cfg.Env, "config", cfg.Namespace(), "store", cfg.User.Driver)

	if err := http.ListenAndServe(ctx, router, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
