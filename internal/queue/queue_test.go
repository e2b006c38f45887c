package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dweinbeck/chatbot-assistant/internal/github"
	"github.com/dweinbeck/chatbot-assistant/internal/indexer"
	"github.com/dweinbeck/chatbot-assistant/internal/store"
)

func TestMemoryDispatcherRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	req := indexer.Request{Owner: "acme", Repo: "svc", Path: "a.go", CommitSHA: "sha", SizeHint: 42}
	require.NoError(t, m.EnqueueIndexFile(ctx, req))
	require.NoError(t, m.EnqueueDeleteFile(ctx, DeletePayload{Owner: "acme", Repo: "svc", Path: "b.go"}))

	require.Len(t, m.Indexed, 1)
	assert.Equal(t, req, m.Indexed[0])
	require.Len(t, m.Deleted, 1)
	assert.Equal(t, "b.go", m.Deleted[0].Path)
}

type staticSource struct {
	content string
}

func (s staticSource) FetchContent(context.Context, string, string, string, string) (string, bool, error) {
	return s.content, s.content != "", nil
}

var _ github.ContentSource = staticSource{}

func TestServeMuxIndexTask(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	mux := NewServeMux(indexer.New(st, staticSource{content: "some indexed text"}))

	payload, err := json.Marshal(indexer.Request{
		Owner: "acme", Repo: "svc", Path: "a.go", CommitSHA: "sha", SizeHint: -1,
	})
	require.NoError(t, err)

	task := asynq.NewTask(TaskTypeIndexFile, payload)
	require.NoError(t, mux.ProcessTask(ctx, task))

	n, err := st.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestServeMuxDeleteTask(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	orch := indexer.New(st, staticSource{content: "doomed text"})
	mux := NewServeMux(orch)

	_, err := orch.IndexFile(ctx, indexer.Request{
		Owner: "acme", Repo: "svc", Path: "a.go", CommitSHA: "sha", SizeHint: -1,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(DeletePayload{Owner: "acme", Repo: "svc", Path: "a.go"})
	require.NoError(t, err)

	task := asynq.NewTask(TaskTypeDeleteFile, payload)
	require.NoError(t, mux.ProcessTask(ctx, task))

	n, err := st.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// Redelivery of the same delete succeeds: the outcome is not_found,
	// never an error that would trigger a retry loop.
	require.NoError(t, mux.ProcessTask(ctx, task))
}

func TestServeMuxRejectsMalformedPayload(t *testing.T) {
	mux := NewServeMux(indexer.New(store.NewMemory(), staticSource{}))

	task := asynq.NewTask(TaskTypeIndexFile, []byte("{not json"))
	err := mux.ProcessTask(context.Background(), task)
	assert.Error(t, err)
}
