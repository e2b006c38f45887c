// Command indexer walks a local repository checkout and indexes every
// eligible file through the same pipeline the worker runs, without a queue
// in between. Useful for initial loads and air-gapped environments.
package main

import (
	"context"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/dweinbeck/chatbot-assistant/internal/config"
	"github.com/dweinbeck/chatbot-assistant/internal/denylist"
	"github.com/dweinbeck/chatbot-assistant/internal/github"
	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

func main() {
	fs := pflag.NewFlagSet("chatbot-indexer", pflag.ExitOnError)

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

	owner, name := cfg.RepoOwner, cfg.RepoName
	if owner == "" {
		owner = "local"
	}
	if name == "" {
		abs, err := filepath.Abs(cfg.RepoRoot)
		if err != nil {
			stdlog.Fatalf("Failed to resolve repo root: %v", err)
		}
		name = filepath.Base(abs)
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	orch := indexer.New(st, &github.LocalSource{Root: cfg.RepoRoot})

	logger.Info().
		Str("root", cfg.RepoRoot).
		Str("repository", owner+"/"+name).
		Str("ref", cfg.GitRef).
		Msg("starting local index run")

	var indexed, unchanged, skipped int
	err = godirwalk.Walk(cfg.RepoRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if denylist.IsDeniedDir(de.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(cfg.RepoRoot, osPathname)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			var size int64 = -1
			if fi, err := os.Stat(osPathname); err == nil {
				size = fi.Size()
			}

			outcome, err := orch.IndexFile(ctx, indexer.Request{
				Owner:     owner,
				Repo:      name,
				Path:      rel,
				CommitSHA: cfg.GitRef,
				SizeHint:  size,
			})
			if err != nil {
				logger.Error().Err(err).Str("path", rel).Msg("index failed")
				return err
			}

			switch outcome.Status {
			case models.StatusIndexed:
				indexed++
			case models.StatusUnchanged:
				unchanged++
			case models.StatusSkipped:
				skipped++
				logger.Debug().Str("path", rel).Str("reason", outcome.Reason).Msg("skipped")
			}
			return nil
		},
		ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
			if strings.Contains(err.Error(), "permission denied") {
				logger.Warn().Str("path", osPathname).Msg("skipping unreadable path")
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
	})
	if err != nil {
		stdlog.Fatalf("Walk failed: %v", err)
	}

	logger.Info().
		Int("indexed", indexed).
		Int("unchanged", unchanged).
		Int("skipped", skipped).
		Msg("local index run complete")
}
