// Command seedadmin creates the first administrator, or promotes an existing
// user, in the configured user store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mkrupp/streamhub/internal/infra/config"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/repo/user"
	"github.com/mkrupp/streamhub/internal/svc/authsvc"
	"github.com/mkrupp/streamhub/internal/svc/usersvc"
)

const (
	appName = "streamhub"
	svcName = "seedadmin"
)

type AdminConfig struct {
	Name     string `env:"NAME" default:"Administrator"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

type Config struct {
	config.EnvConfig

	Log   logging.LoggerConfig  `envPrefix:"LOG_"`
	Auth  authsvc.AuthConfig    `envPrefix:"AUTH_"`
	User  user.RepositoryConfig `envPrefix:"USER_"`
	Admin AdminConfig           `envPrefix:"ADMIN_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	if err := logging.Configure(ctx, cfg.Log, loggerName); err != nil {
		panic(err)
	}

	if err := run(ctx, cfg); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.seedadmin")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "seed admin failed", "err", err)
		}
	}()

	log.DebugContext(ctx, "seeding admin", "config", cfg.Namespace(), "store", cfg.User.Driver)

	userRepo, err := user.NewRepositoryFactory(cfg.User)()
	if err != nil {
		return fmt.Errorf("open user repository: %w", err)
	}

	defer func() {
		if closeErr := userRepo.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close user repository: %w", closeErr))
		}
	}()

	userSvc := usersvc.NewUserService(userRepo, authsvc.NewBcryptPasswordHasher(cfg.Auth.BcryptRounds))

	admin, created, err := userSvc.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	if created {
		log.InfoContext(ctx, "admin created", "id", admin.ID, "email", admin.Email)
	} else {
		log.InfoContext(ctx, "existing user promoted to admin", "id", admin.ID, "email", admin.Email)
	}

	return nil
}
