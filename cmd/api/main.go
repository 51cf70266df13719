package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mirrormatch/mirrormatch/internal/auth"
	"github.com/mirrormatch/mirrormatch/internal/config"
	"github.com/mirrormatch/mirrormatch/internal/data"
	"github.com/mirrormatch/mirrormatch/internal/db"
	"github.com/mirrormatch/mirrormatch/internal/ingest"
	"github.com/mirrormatch/mirrormatch/internal/middleware"
	"github.com/mirrormatch/mirrormatch/internal/scorer"
)

func main() {
	// .env is a development convenience; absence is not an error
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// photo directories must exist before the first upload or comparison
	for _, dir := range []string{cfg.UploadsDir, cfg.AIFacesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(ctx)
	}()

	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	roomsStore := data.NewRoomsStore(dbClient.RoomsCollection())

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	sc := scorer.NewProcess(cfg.ScorerCommand, cfg.ScorerScript, cfg.ScorerTimeout)
	ingestor := ingest.New(usersStore, sc, ingest.Config{
		Threshold:  cfg.MatchThreshold,
		UploadsDir: cfg.UploadsDir,
		AIFacesDir: cfg.AIFacesDir,
	})

	// small burst so a couple of quick retries on login still pass
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, 1*time.Minute)
	defer limiterStore.Stop()

	hub := NewRoomHub()
	srv := newServer(usersStore, roomsStore, ingestor, jwtMgr, hub, cfg.UploadsDir, cfg.AIFacesDir)

	r := gin.Default()
	srv.registerRoutes(r, limiterStore)

	// no WriteTimeout: it would sever long-lived websocket connections
	httpServer := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server exit: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
