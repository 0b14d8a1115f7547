package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"restockbot/backend/internal/api/handler"
	"restockbot/backend/internal/config"
	"restockbot/backend/internal/logger"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]

Commands:
  clear-all                  remove every report and cooldown (history is kept)
  remove-cooldown <location> remove all cooldowns for a location
  disable <id> <reason...>   block a reporter
  enable <id>                unblock a reporter
  save-roles <id> <roles...> snapshot a user's roles before a moderation action
  restore-roles <id>         print and close a user's open role snapshot
  backup                     write a timestamped copy of the store
  rollover                   run the weekly rollover now
  token <subject> [ttl]      mint an admin API token (default ttl 24h)`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	actor := os.Getenv("ADMIN_ACTOR")
	if actor == "" {
		actor = "cli"
	}
	ctx := context.Background()

	command, args := os.Args[1], os.Args[2:]
	if command == "token" {
		if len(args) < 1 {
			fmt.Println("Usage: admin token <subject> [ttl]")
			os.Exit(1)
		}
		if err := mintToken(cfg, args); err != nil {
			log.Fatalf("Error minting token: %v", err)
		}
		return
	}

	svc, store, err := openService(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	switch command {
	case "clear-all":
		res, err := svc.AdminClearAll(ctx, actor)
		if err != nil {
			log.Fatalf("Error clearing reports: %v", err)
		}
		fmt.Printf("Cleared %d reports and %d cooldowns.\n", res.ReportsCleared, res.CooldownsCleared)
	case "remove-cooldown":
		if len(args) != 1 {
			fmt.Println("Usage: admin remove-cooldown <location>")
			os.Exit(1)
		}
		removed, err := svc.AdminRemoveCooldown(ctx, args[0], actor)
		if err != nil {
			log.Fatalf("Error removing cooldowns: %v", err)
		}
		fmt.Printf("Removed %d cooldowns for %s.\n", removed, args[0])
	case "disable":
		if len(args) < 2 {
			fmt.Println("Usage: admin disable <id> <reason...>")
			os.Exit(1)
		}
		if err := svc.AdminDisableReporter(ctx, args[0], strings.Join(args[1:], " "), actor); err != nil {
			log.Fatalf("Error disabling reporter: %v", err)
		}
		fmt.Printf("Reporter %s has been disabled.\n", args[0])
	case "enable":
		if len(args) != 1 {
			fmt.Println("Usage: admin enable <id>")
			os.Exit(1)
		}
		if err := svc.AdminEnableReporter(ctx, args[0], actor); err != nil {
			log.Fatalf("Error enabling reporter: %v", err)
		}
		fmt.Printf("Reporter %s has been enabled.\n", args[0])
	case "save-roles":
		if len(args) < 2 {
			fmt.Println("Usage: admin save-roles <id> <roles...>")
			os.Exit(1)
		}
		if err := store.SaveRoleSnapshot(ctx, args[0], args[1:], actor); err != nil {
			log.Fatalf("Error saving roles: %v", err)
		}
		fmt.Printf("Saved %d roles for %s.\n", len(args)-1, args[0])
	case "restore-roles":
		if len(args) != 1 {
			fmt.Println("Usage: admin restore-roles <id>")
			os.Exit(1)
		}
		roles, err := store.RestoreRoleSnapshot(ctx, args[0], actor)
		if err != nil {
			log.Fatalf("Error restoring roles: %v", err)
		}
		fmt.Printf("Roles for %s: %s\n", args[0], strings.Join(roles, ", "))
	case "backup":
		if err := store.Backup(ctx); err != nil {
			log.Fatalf("Error writing backup: %v", err)
		}
		fmt.Println("Backup written.")
	case "rollover":
		now := time.Now().In(cfg.Timezone)
		res, err := store.Rollover(ctx, now, now.Format("2006-01-02"))
		if err != nil {
			log.Fatalf("Error running rollover: %v", err)
		}
		fmt.Printf("Rotated %d history entries, cleared %d reports and %d cooldowns.\n",
			res.HistoryRotated, res.ReportsCleared, res.CooldownsCleared)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func openService(ctx context.Context, cfg *config.Config) (*reports.Service, *storage.Store, error) {
	var backend storage.Backend
	if cfg.StoreBackend == "postgres" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
		if err != nil {
			return nil, nil, err
		}
		gb := storage.NewGormBackend(db, "restocks")
		if err := gb.AutoMigrate(ctx); err != nil {
			return nil, nil, err
		}
		backend = gb
	} else {
		backend = storage.NewFileBackend(cfg.StorePath, cfg.StoreBackupDir)
	}

	appLog := logger.Setup(os.Stderr, cfg.LogLevel)
	store := storage.New(backend, appLog, metrics.Nop{}, storage.WithWeek(cfg.RolloverWeekday, cfg.Timezone))
	if err := store.Load(ctx); err != nil {
		return nil, nil, err
	}

	// The catalog is optional here; admin overrides work on raw location keys.
	catalog, err := config.LoadLocations(cfg.LocationsFile)
	if err != nil {
		appLog.Warn("location catalog unavailable", slog.String("error", err.Error()))
		catalog = nil
	}
	svc := reports.NewService(store, catalog, nil, nil, appLog, metrics.Nop{}, reports.WithTimezone(cfg.Timezone))
	return svc, store, nil
}

func mintToken(cfg *config.Config, args []string) error {
	if cfg.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is not set")
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid ttl %q: %w", args[1], err)
		}
		ttl = d
	}
	token, err := handler.NewAuthenticator(cfg.AdminJWTSecret).GenerateAdminToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
