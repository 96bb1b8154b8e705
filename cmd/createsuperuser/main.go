// Command createsuperuser bootstraps an administrator account: it creates
// the schema if needed, registers an active superuser and optionally
// grants it a role (created on demand).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var email, login, password, role string
	flagSet := pflag.NewFlagSet("createsuperuser", pflag.ContinueOnError)
	flagSet.StringVar(&email, "email", "", "superuser email (required)")
	flagSet.StringVar(&login, "login", "", "superuser login (required)")
	flagSet.StringVar(&password, "password", "", "superuser password (required)")
	flagSet.StringVar(&role, "role", "", "role to grant, created if missing")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if email == "" || login == "" || password == "" {
		flagSet.PrintDefaults()
		return errors.New("--email, --login and --password are required")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	opts := service.Options{
		BcryptCost:    cfg.BcryptCost,
		StoreTimeout:  cfg.StoreTimeout,
		RetryAttempts: cfg.StoreRetryAttempts,
		RetryBackoff:  cfg.StoreRetryBackoff,
	}
	users := repository.NewUserRepo(db)
	// Registration touches neither sessions nor tokens.
	auth := service.NewAuthService(users, nil, nil, nil, opts)
	u, err := auth.RegisterSuperuser(ctx, email, login, password)
	if err != nil {
		return fmt.Errorf("create superuser: %w", err)
	}
	fmt.Printf("superuser %s created (id=%d)\n", u.Login, u.ID)

	if role == "" {
		return nil
	}
	roles := service.NewRoleService(repository.NewRoleRepo(db), users, opts)
	if _, err := roles.CreateRole(ctx, role); err != nil && !errors.Is(err, service.ErrConflict) {
		return fmt.Errorf("create role: %w", err)
	}
	if err := roles.AssignRole(ctx, u.Login, role); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	fmt.Printf("role %s granted to %s\n", role, u.Login)
	return nil
}
