// Package metrics exposes prometheus instrumentation for the indexing and
// chat pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_files_indexed_total",
		Help: "Files successfully chunked and written to the knowledge base.",
	})

	ChunksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_chunks_created_total",
		Help: "Chunks written to the knowledge base.",
	})

	ChatRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_chat_requests_total",
		Help: "Chat questions received.",
	})

	RetrievalTier = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbot_retrieval_tier_total",
		Help: "Retrieval tiers executed, by tier name.",
	}, []string{"tier"})

	GenerationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatbot_generation_failures_total",
		Help: "LLM generation calls that failed or timed out.",
	})
)
