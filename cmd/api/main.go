package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iamasit07/wordle-duel/backend/internal/config"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
	"github.com/iamasit07/wordle-duel/backend/internal/repository/postgres"
	"github.com/iamasit07/wordle-duel/backend/internal/service/cleanup"
	"github.com/iamasit07/wordle-duel/backend/internal/service/game"
	"github.com/iamasit07/wordle-duel/backend/internal/service/identity"
	"github.com/iamasit07/wordle-duel/backend/internal/service/matchmaking"
	"github.com/iamasit07/wordle-duel/backend/internal/service/rematch"
	"github.com/iamasit07/wordle-duel/backend/internal/service/words"
	transportHttp "github.com/iamasit07/wordle-duel/backend/internal/transport/http"
	"github.com/iamasit07/wordle-duel/backend/internal/transport/websocket"
	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Info().Msg("No .env file found")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Session Store
	backend, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open session store")
	}
	defer backend.Close()
	log.Info().Str("backend", cfg.StoreBackend).Msg("session store ready")

	// 2. Archive and player names (optional)
	var (
		archive game.GameRepository
		players identity.PlayerRepository
		stats   transportHttp.StatsRepository
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
		if err != nil {
			log.Fatal().Err(err).Msg("database unavailable")
		}
		defer db.Close()
		log.Info().Msg("database migration completed successfully")

		gameRepo := postgres.NewGameRepo(db)
		playerRepo := postgres.NewPlayerRepo(db)
		archive, players, stats = gameRepo, playerRepo, playerRepo
	} else {
		log.Warn().Msg("DATABASE_URL not set, finished games will not be archived")
	}

	var cache identity.CacheRepository
	if c := backend.cache(ctx, cfg); c != nil {
		cache = c
	}

	// 3. Services
	src := wordSource(cfg)
	signer := auth.NewSigner(cfg.JWTSecret, cfg.AccessTokenTTL)
	identities := identity.NewService(signer, players, cache)
	reaper := cleanup.NewReaper(backend.store, cfg.ReaperWaitingTTL, cfg.ReaperEndedTTL, cfg.ReaperSweepInterval)
	games := game.NewService(backend.store, identities, archive, cfg.GameMaxGuesses)
	matchmaker := matchmaking.NewMatchmaker(backend.store, src, reaper)
	rematches := rematch.NewService(backend.store, src)

	// 4. Transport
	connManager := websocket.NewConnectionManager()
	wsHandler := websocket.NewHandler(connManager, backend.store, games, rematches, identities, cfg.AllowedOrigins)
	router := transportHttp.NewRouter(transportHttp.Handlers{
		Games:     transportHttp.NewGameHandler(games, matchmaker, rematches),
		History:   transportHttp.NewHistoryHandler(games, stats),
		Watch:     transportHttp.NewWatchHandler(games),
		WebSocket: wsHandler.HandleWebSocket,
	}, identities, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reaper.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server is shutting down")
		connManager.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
	games.WaitForSaves()
	log.Info().Msg("server exited gracefully")
}

// wordSource prefers the remote word API and falls back to the embedded
// list when it keeps failing.
func wordSource(cfg *config.Config) words.Source {
	embedded := words.NewEmbeddedSource()
	if cfg.WordSource == config.WordsEmbedded {
		return embedded
	}
	remote := words.NewRetrying(words.NewHTTPSource(cfg.WordAPIURL, cfg.WordTimeout), cfg.WordRetryMaxElapsed)
	return words.NewFallback(remote, embedded)
}
