package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chainsso/go-signon-server/auth"
	"github.com/chainsso/go-signon-server/authcodes"
	"github.com/chainsso/go-signon-server/challenges"
	"github.com/chainsso/go-signon-server/clients"
	"github.com/chainsso/go-signon-server/internal/config"
	"github.com/chainsso/go-signon-server/server"
	"github.com/chainsso/go-signon-server/sessions"
	"github.com/chainsso/go-signon-server/signing"
	"github.com/chainsso/go-signon-server/storage/redisstore"
	"github.com/chainsso/go-signon-server/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() error {
	_ = godotenv.Load()

	cfg := config.New()
	setupLogger(cfg)
	displayAppname(cfg.GetAppName())

	ctx := context.Background()

	repos, blacklist, pinger, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := seedClients(ctx, repos.Clients); err != nil {
		return err
	}

	authService, err := buildAuthService(cfg, repos, blacklist)
	if err != nil {
		return err
	}

	origins := clients.NewOriginCache(repos.Clients, cfg.GetStaticOrigins(), cfg.GetOriginsCacheTTL())

	srv, err := server.New(cfg, authService, origins, pinger)
	if err != nil {
		return errors.Wrap(err, "[run] server.New")
	}

	httpServer := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// buildStore wires the repos against Redis when REDIS_ADDR is set, or the
// in-memory implementations otherwise.
func buildStore(ctx context.Context, cfg config.Config) (auth.Repos, token.Blacklist, server.Pinger, func(), error) {
	if cfg.GetRedisAddr() == "" {
		log.Info().Msg("no REDIS_ADDR configured, using in-memory store")
		repos := auth.Repos{
			Clients:    clients.NewInMemoryRepo(),
			Challenges: challenges.NewInMemoryRepo(),
			AuthCodes:  authcodes.NewInMemoryRepo(),
			Sessions:   sessions.NewInMemoryRepo(),
		}
		return repos, token.NewInMemoryBlacklist(), nil, func() {}, nil
	}

	store, err := redisstore.New(ctx, redisstore.Config{
		Addr:      cfg.GetRedisAddr(),
		Password:  cfg.GetRedisPassword(),
		DB:        cfg.GetRedisDB(),
		KeyPrefix: cfg.GetStoreKeyPrefix(),
	})
	if err != nil {
		return auth.Repos{}, nil, nil, nil, errors.Wrap(err, "[run] redis store")
	}
	log.Info().Str("addr", cfg.GetRedisAddr()).Msg("connected to redis store")

	repos := auth.Repos{
		Clients:    store.Clients(),
		Challenges: store.Challenges(),
		AuthCodes:  store.AuthCodes(),
		Sessions:   store.Sessions(),
	}
	cleanup := func() { _ = store.Close() }
	return repos, store.Blacklist(), store, cleanup, nil
}

func buildAuthService(cfg config.Config, repos auth.Repos, blacklist token.Blacklist) (*auth.AuthorizationService, error) {
	secret := cfg.GetJWTSecret()
	if secret == "" {
		return nil, errors.New("[run] JWT_SECRET is required")
	}

	verifierURL := cfg.GetVerifierURL()
	if verifierURL == "" {
		return nil, errors.New("[run] VERIFIER_URL is required")
	}

	issuer := token.NewIssuer(
		token.NewHMACSigner(secret),
		cfg.GetNetworkType(),
		token.WithExpiry(cfg.GetAccessTokenExpiry()),
	)

	return auth.NewAuthorizationService(
		repos,
		issuer,
		signing.NewHTTPVerifier(verifierURL),
		blacklist,
		auth.Settings{
			Network:                cfg.GetNetworkType(),
			Production:             cfg.IsProduction(),
			ChallengeExpiration:    cfg.GetChallengeExpiration(),
			AuthCodeExpiration:     cfg.GetAuthCodeExpiration(),
			RefreshTokenExpiration: cfg.GetRefreshTokenExpiration(),
		},
	)
}

// seedClients loads client registrations from CLIENTS_FILE when it exists.
// Registration is otherwise an out-of-band concern.
func seedClients(ctx context.Context, repo clients.Repo) error {
	path := config.GetEnv("CLIENTS_FILE", "clients.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "[run] read %s", path)
	}

	var seeds []clients.Client
	if err := json.Unmarshal(data, &seeds); err != nil {
		return errors.Wrapf(err, "[run] parse %s", path)
	}

	for i := range seeds {
		if err := repo.Upsert(ctx, &seeds[i]); err != nil {
			return errors.Wrapf(err, "[run] seed client %q", seeds[i].ID)
		}
	}
	log.Info().Int("count", len(seeds)).Str("file", path).Msg("seeded clients")
	return nil
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
