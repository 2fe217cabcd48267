package main

import (
	"context"
	"log"
	"os"
	"time"

	"mindvault/internal/api"
	"mindvault/internal/auth"
	"mindvault/internal/config"
	"mindvault/internal/redis"
	"mindvault/internal/service/account"
	"mindvault/internal/service/chat"
	"mindvault/internal/service/profile"
	"mindvault/internal/service/provider"
	"mindvault/internal/service/quota"
	"mindvault/internal/service/tools"
	"mindvault/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("MINDVAULT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("MINDVAULT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	// Create tables: roles, users, tokens, sessions, turns, profile records
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	accounts := account.NewService(db)
	profiles := profile.NewService(db)
	ledger := quota.NewLedger(db)
	sessions := chat.NewStore(db)
	registry := tools.NewRegistry(profiles)
	gateway := provider.NewClient(cfg.Provider)
	orchestrator := chat.NewOrchestrator(sessions, ledger, profiles, registry, gateway)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepInterval := time.Duration(cfg.BasicConfig.SessionSweepInterval) * time.Minute
	sessions.StartExpirySweeper(sweepCtx, sweepInterval)

	authService := auth.NewService(db, rdb, 24*time.Hour)
	handlers := api.NewHandler(accounts, authService, orchestrator, sessions, profiles)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
