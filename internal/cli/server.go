package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	pinTTL := config.TTLDuration(cfg.Redis.TTL, 4*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var backing app.QuizStore = sampleQuizStore()
	if pool != nil {
		backing = pgstore.NewQuizStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizStore
	if redisClient != nil {
		quizzes = redisinfra.NewQuizStore(redisClient, backing, quizTTL)
	} else {
		quizzes = memory.NewCachedQuizStore(backing, quizTTL)
	}

	var registry app.SessionRegistry
	if redisClient != nil {
		registry = redisinfra.NewSessionRegistry(redisClient, pinTTL)
	} else {
		registry = memory.NewSessionRegistry()
	}

	hub := transport.NewHub()
	service := app.NewGameService(registry, quizzes, hub)
	wsHandler := transport.NewWSHandler(service, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting live quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	sweepDone := make(chan struct{})
	go runSweeper(ctx, registry, cfg, sweepDone)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	close(sweepDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runSweeper reclaims abandoned sessions: finished games after a short grace,
// anything else after the idle TTL.
func runSweeper(ctx context.Context, registry app.SessionRegistry, cfg config.Config, done <-chan struct{}) {
	idleTTL := config.TTLDuration(cfg.Session.IdleTTL, time.Hour)
	finishedTTL := config.TTLDuration(cfg.Session.FinishedTTL, 5*time.Minute)
	interval := config.TTLDuration(cfg.Session.SweepInterval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := registry.Sweep(time.Now(), idleTTL, finishedTTL); removed > 0 {
				log.Printf("sweeper: removed %d stale sessions", removed)
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sampleQuizStore provides demo content so the server runs with zero
// infrastructure; configure Postgres for real quizzes.
func sampleQuizStore() *memory.StaticQuizStore {
	store := memory.NewStaticQuizStore()
	store.AddQuiz(domain.Quiz{ID: "quiz-1", Title: "General Knowledge"}, []domain.Question{
		{
			Text:             "What is 2 + 2?",
			Options:          []string{"3", "4", "5"},
			CorrectIndices:   []int{1},
			TimeLimitSeconds: 10,
		},
		{
			Text:             "Which of these are primary colors?",
			Options:          []string{"Red", "Green", "Blue", "Yellow"},
			CorrectIndices:   []int{0, 2, 3},
			TimeLimitSeconds: 15,
		},
	})
	return store
}
