package main

import (
	"context"
	stdlog "log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dweinbeck/chatbot-assistant/internal/config"
	"github.com/dweinbeck/chatbot-assistant/internal/github"
	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/internal/queue"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
)

func main() {
	fs := pflag.NewFlagSet("chatbot-worker", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("redis", cfg.RedisAddr).
		Int("concurrency", cfg.Concurrency).
		Msg("starting chatbot worker")

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	orch := indexer.New(st, github.NewClient(cfg.GithubToken))

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      map[string]int{queue.QueueName: 1},
		},
	)

	if err := srv.Run(queue.NewServeMux(orch)); err != nil {
		stdlog.Fatalf("Worker exited: %v", err)
	}
}
