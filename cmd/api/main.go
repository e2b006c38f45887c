package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/dweinbeck/chatbot-assistant/internal/ai"
	"github.com/dweinbeck/chatbot-assistant/internal/auth"
	"github.com/dweinbeck/chatbot-assistant/internal/chat"
	"github.com/dweinbeck/chatbot-assistant/internal/config"
	"github.com/dweinbeck/chatbot-assistant/internal/denylist"
	"github.com/dweinbeck/chatbot-assistant/internal/github"
	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/internal/queue"
	"github.com/dweinbeck/chatbot-assistant/internal/retrieval"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
	"github.com/dweinbeck/chatbot-assistant/internal/webhook"
	"github.com/dweinbeck/chatbot-assistant/pkg/models"
)

func main() {
	fs := pflag.NewFlagSet("chatbot-api", pflag.ExitOnError)

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
		Str("provider", cfg.Provider).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.AuthAPIKey != "").
		Msg("starting chatbot api")

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	client, err := ai.NewClient(ctx, &ai.ClientConfig{
		Provider:  ai.Provider(strings.ToLower(cfg.Provider)),
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		ProjectID: cfg.ProjectID,
		Location:  cfg.Location,
	})
	if err != nil {
		stdlog.Fatalf("Failed to create generation client: %v", err)
	}

	dispatcher := queue.NewAsynqDispatcher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer dispatcher.Close()

	gh := github.NewClient(cfg.GithubToken)
	orch := indexer.New(st, gh)
	svc := chat.NewService(retrieval.NewEngine(st), client, st)
	authn := auth.New(auth.Config{APIKey: cfg.AuthAPIKey, JWTSecret: []byte(cfg.JwtSecret)})

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			APIKey string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		token, err := authn.MintToken(req.APIKey)
		if err != nil {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_in": int(auth.TokenTTL.Seconds()),
		})
	})

	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()

		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		question := strings.TrimSpace(req.Question)
		if question == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}

		resp, err := svc.Answer(r.Context(), question)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("chat failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, resp)
		hlog.FromRequest(r).Info().
			Str("confidence", string(resp.Confidence)).
			Int("citations", len(resp.Citations)).
			Dur("dur", time.Since(start)).
			Msg("chat served")
	})

	mux.HandleFunc("/repositories", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		repos, err := st.ListRepositories(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if repos == nil {
			repos = []string{}
		}
		writeJSON(w, http.StatusOK, repos)
	})

	mux.HandleFunc("/webhooks/github", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}

		if cfg.WebhookSecret != "" {
			sig := r.Header.Get("X-Hub-Signature-256")
			if !webhook.VerifySignature(cfg.WebhookSecret, sig, body) {
				http.Error(w, "Invalid signature", http.StatusUnauthorized)
				return
			}
		}

		if event := r.Header.Get("X-GitHub-Event"); event != "push" {
			writeJSON(w, http.StatusAccepted, map[string]any{"status": "ignored", "event": event})
			return
		}

		var payload webhook.PushPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		tasks, err := webhook.FanOut(r.Context(), dispatcher, payload)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Int("enqueued", tasks).Msg("webhook fan-out failed")
			http.Error(w, "Failed to enqueue tasks", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "tasks": tasks})
	})

	mux.HandleFunc("/admin/sync-repo", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Owner == "" || req.Repo == "" {
			http.Error(w, "owner and repo are required", http.StatusBadRequest)
			return
		}

		res, err := syncRepo(r.Context(), gh, dispatcher, req)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("repo", req.Owner+"/"+req.Repo).Msg("sync failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, res)
	})

	mux.HandleFunc("/admin/backfill", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Repos []syncRequest `json:"repos"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if len(req.Repos) == 0 {
			http.Error(w, "repos is required", http.StatusBadRequest)
			return
		}

		// One failing repo must not abort the rest of the backfill.
		results := make([]backfillResult, 0, len(req.Repos))
		for _, sr := range req.Repos {
			res, err := syncRepo(r.Context(), gh, dispatcher, sr)
			br := backfillResult{Repository: sr.Owner + "/" + sr.Repo}
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Str("repo", br.Repository).Msg("backfill repo failed")
				br.Error = err.Error()
			} else {
				br.Enqueued = res.Enqueued
				br.Skipped = res.Skipped
			}
			results = append(results, br)
		}
		writeJSON(w, http.StatusAccepted, results)
	})

	mux.HandleFunc("/admin/ingest-url", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ingestURLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.URL == "" || req.RepoOwner == "" || req.RepoName == "" {
			http.Error(w, "url, repo_owner and repo_name are required", http.StatusBadRequest)
			return
		}

		outcome, err := ingestURL(r.Context(), orch, req)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("url", req.URL).Msg("ingest failed")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	})

	handler := authn.Middleware(mux)
	handler = hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(handler),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	stdlog.Fatal(s.ListenAndServe())
}

type syncRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Ref   string `json:"ref"`
}

type syncResult struct {
	Repository string `json:"repository"`
	Ref        string `json:"ref"`
	Enqueued   int    `json:"enqueued"`
	Skipped    int    `json:"skipped"`
}

type backfillResult struct {
	Repository string `json:"repository"`
	Enqueued   int    `json:"enqueued"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// syncRepo lists the repository tree at the requested ref (default branch
// when unset) and enqueues one index task per non-denied file. The worker
// re-checks the denylist with authoritative sizes; this pass just avoids
// enqueueing obvious junk.
func syncRepo(ctx context.Context, gh *github.Client, d queue.Dispatcher, req syncRequest) (syncResult, error) {
	ref := req.Ref
	if ref == "" {
		meta, err := gh.GetRepoMetadata(ctx, req.Owner, req.Repo)
		if err != nil {
			return syncResult{}, err
		}
		ref = meta.DefaultBranch
	}

	entries, err := gh.ListFiles(ctx, req.Owner, req.Repo, ref)
	if err != nil {
		return syncResult{}, err
	}

	res := syncResult{Repository: req.Owner + "/" + req.Repo, Ref: ref}
	for _, e := range entries {
		if denied, _ := denylist.IsDenied(e.Path, e.Size); denied {
			res.Skipped++
			continue
		}
		err := d.EnqueueIndexFile(ctx, indexer.Request{
			Owner:     req.Owner,
			Repo:      req.Repo,
			Path:      e.Path,
			CommitSHA: ref,
			SizeHint:  e.Size,
		})
		if err != nil {
			return res, err
		}
		res.Enqueued++
	}
	return res, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		stdlog.Printf("failed to encode response: %v", err)
	}
}
