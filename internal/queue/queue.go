// Package queue delivers file-index and file-delete events to the
// ingestion orchestrator. Production runs on asynq (Redis, at-least-once
// delivery); tests use an in-memory recorder behind the same interface.
// Redelivery is safe because the orchestrator's fingerprint gate makes
// indexing idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
)

const (
	TaskTypeIndexFile  = "kb:index_file"
	TaskTypeDeleteFile = "kb:delete_file"

	QueueName = "kb"

	maxRetries  = 3
	taskTimeout = 2 * time.Minute
)

// DeletePayload identifies one file to remove from the knowledge base.
type DeletePayload struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Path  string `json:"path"`
}

// Dispatcher enqueues file events for asynchronous processing.
type Dispatcher interface {
	EnqueueIndexFile(ctx context.Context, req indexer.Request) error
	EnqueueDeleteFile(ctx context.Context, req DeletePayload) error
}

// AsynqDispatcher is the production Dispatcher backed by an asynq client.
type AsynqDispatcher struct {
	client *asynq.Client
}

var _ Dispatcher = (*AsynqDispatcher)(nil)

// NewAsynqDispatcher creates a dispatcher over a Redis connection.
func NewAsynqDispatcher(redisAddr, redisPassword string, redisDB int) *AsynqDispatcher {
	return &AsynqDispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: redisPassword,
			DB:       redisDB,
		}),
	}
}

func (d *AsynqDispatcher) EnqueueIndexFile(ctx context.Context, req indexer.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal index task: %w", err)
	}
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeIndexFile, payload,
		asynq.MaxRetry(maxRetries),
		asynq.Timeout(taskTimeout),
		asynq.Queue(QueueName),
	))
	if err != nil {
		return fmt.Errorf("enqueue index task for %s: %w", req.Path, err)
	}
	return nil
}

func (d *AsynqDispatcher) EnqueueDeleteFile(ctx context.Context, req DeletePayload) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal delete task: %w", err)
	}
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeDeleteFile, payload,
		asynq.MaxRetry(maxRetries),
		asynq.Timeout(taskTimeout),
		asynq.Queue(QueueName),
	))
	if err != nil {
		return fmt.Errorf("enqueue delete task for %s: %w", req.Path, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (d *AsynqDispatcher) Close() error { return d.client.Close() }

// NewServeMux wires the worker-side handlers that invoke the orchestrator.
func NewServeMux(o *indexer.Orchestrator) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TaskTypeIndexFile, func(ctx context.Context, task *asynq.Task) error {
		var req indexer.Request
		if err := json.Unmarshal(task.Payload(), &req); err != nil {
			return fmt.Errorf("unmarshal index task: %w", err)
		}
		_, err := o.IndexFile(ctx, req)
		return err
	})

	mux.HandleFunc(TaskTypeDeleteFile, func(ctx context.Context, task *asynq.Task) error {
		var req DeletePayload
		if err := json.Unmarshal(task.Payload(), &req); err != nil {
			return fmt.Errorf("unmarshal delete task: %w", err)
		}
		_, err := o.DeleteFile(ctx, req.Owner, req.Repo, req.Path)
		return err
	})

	return mux
}

// Memory records enqueued tasks for assertions; it never executes them.
type Memory struct {
	mu      sync.Mutex
	Indexed []indexer.Request
	Deleted []DeletePayload
}

var _ Dispatcher = (*Memory)(nil)

// NewMemory creates an empty in-memory dispatcher.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) EnqueueIndexFile(_ context.Context, req indexer.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Indexed = append(m.Indexed, req)
	return nil
}

func (m *Memory) EnqueueDeleteFile(_ context.Context, req DeletePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, req)
	return nil
}
