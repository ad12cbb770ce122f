package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/database"
	"github.com/noah-isme/sma-admissions-api/pkg/logger"
)

func main() {
	seedEmail := flag.String("seed-admin", "", "email of a SUPERADMIN account to create or refresh after migrating")
	seedName := flag.String("seed-name", "Administrator", "display name for the seeded account")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db.DB, command, flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logr.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
	logr.Info("migration finished", zap.String("command", command))

	if *seedEmail == "" {
		return
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		logr.Fatal("SEED_ADMIN_PASSWORD must be set to seed an admin")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		logr.Fatal("failed to hash seed password", zap.Error(err))
	}
	admin := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(*seedEmail)),
		PasswordHash: hash,
		FullName:     *seedName,
		Role:         models.RoleSuperAdmin,
		Active:       true,
	}
	if err := repository.NewUserRepository(db).Upsert(ctx, admin); err != nil {
		logr.Fatal("failed to seed admin", zap.Error(err))
	}
	logr.Info("admin seeded", zap.String("email", admin.Email))
}
