package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/config"
	"github.com/mRedzuan451/quiz-game-backend/internal/httpapi"
	"github.com/mRedzuan451/quiz-game-backend/internal/hub"
	"github.com/mRedzuan451/quiz-game-backend/internal/store"
	"github.com/mRedzuan451/quiz-game-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	st := store.New(db)

	ctx := context.Background()
	h := hub.NewHub(ctx, hub.Config{
		Results: st,
		Logger:  logger,
		TTL:     cfg.SessionTTL,
	})

	// Build the router *with* the hub injected
	srv := &httpapi.Server{
		Hub:                    h,
		Questions:              st,
		Names:                  st,
		Router:                 ws.NewRouter(),
		Log:                    logger,
		DefaultRounds:          cfg.DefaultRounds,
		DefaultTimePerQuestion: cfg.DefaultTimePerQuestion,
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	h.Inbox() <- hub.ShutdownHub{}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
