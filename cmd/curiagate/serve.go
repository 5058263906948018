package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/flotob/curia-sub008/adapters/cache"
	"github.com/flotob/curia-sub008/adapters/chain"
	"github.com/flotob/curia-sub008/adapters/events"
	"github.com/flotob/curia-sub008/adapters/store"
	"github.com/flotob/curia-sub008/adapters/tokenizer"
	"github.com/flotob/curia-sub008/core"
	"github.com/flotob/curia-sub008/ports"
	"github.com/flotob/curia-sub008/service"
	transport "github.com/flotob/curia-sub008/transport/http"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification engine HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func serve(ctx context.Context) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	redisURL := envOr("REDIS_URL", "redis://localhost:6379/0")
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	// Challenge consumption and session revocation must be durable;
	// Postgres when configured, Redis otherwise.
	var challengeStore ports.ChallengeStore
	var sessionStore ports.SessionStore
	var lockStore ports.LockStore
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		pg := store.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		challengeStore, sessionStore, lockStore = pg, pg, pg
		log.Info("using postgres store")
	} else {
		rs := store.NewRedisStore(redisClient)
		challengeStore, sessionStore, lockStore = rs, rs, rs
		log.Info("using redis store")
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewSlogLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	eventPub := events.NewWatermillPublisher(publisher)

	chains := make(map[core.CategoryType]ports.ChainQuerier)
	if rpc := os.Getenv("ETH_RPC_URL"); rpc != "" {
		querier, err := chain.Dial(ctx, rpc, os.Getenv("ETH_FOLLOWER_REGISTRY"))
		if err != nil {
			return err
		}
		chains[core.CategoryEthereumProfile] = querier
	}
	if rpc := os.Getenv("LUKSO_RPC_URL"); rpc != "" {
		querier, err := chain.Dial(ctx, rpc, os.Getenv("LUKSO_FOLLOWER_REGISTRY"))
		if err != nil {
			return err
		}
		chains[core.CategoryUniversalProfile] = querier
	}

	// Assertion keys are ephemeral: assertions are short-lived and a restart
	// only forces consumers to re-fetch.
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate assertion key: %w", err)
	}
	assertions := tokenizer.NewJWTAssertionIssuer(signKey)

	evaluator := service.NewEvaluator(
		chains, lockStore, cache.NewRedisCache(redisClient), eventPub, log,
		service.EvaluatorConfig{},
	)
	auth := service.NewAuthService(
		challengeStore, sessionStore, eventPub, log,
		service.AuthConfig{Domain: envOr("CHALLENGE_DOMAIN", "curia.network")},
	)

	handlers := transport.NewHandlers(auth, evaluator, lockStore, assertions)
	router := transport.SetupRouter(handlers, auth)

	addr := ":" + envOr("PORT", "9000")
	log.Info("starting server", "addr", addr)
	return router.Run(addr)
}
