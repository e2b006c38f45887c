package store

import (
	"errors"
	"testing"

	"github.com/dweinbeck/chatbot-assistant/internal/chunker"
)

func TestValidateChunks(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []chunker.Chunk
		wantErr bool
	}{
		{
			name:    "empty set is valid",
			chunks:  nil,
			wantErr: false,
		},
		{
			name: "single valid chunk",
			chunks: []chunker.Chunk{
				{StartLine: 1, EndLine: 10},
			},
			wantErr: false,
		},
		{
			name: "adjacent chunks",
			chunks: []chunker.Chunk{
				{StartLine: 1, EndLine: 10},
				{StartLine: 11, EndLine: 20},
			},
			wantErr: false,
		},
		{
			name: "gap between chunks is allowed",
			chunks: []chunker.Chunk{
				{StartLine: 1, EndLine: 10},
				{StartLine: 15, EndLine: 20},
			},
			wantErr: false,
		},
		{
			name: "zero start line",
			chunks: []chunker.Chunk{
				{StartLine: 0, EndLine: 5},
			},
			wantErr: true,
		},
		{
			name: "inverted range",
			chunks: []chunker.Chunk{
				{StartLine: 10, EndLine: 5},
			},
			wantErr: true,
		},
		{
			name: "overlapping chunks",
			chunks: []chunker.Chunk{
				{StartLine: 1, EndLine: 10},
				{StartLine: 10, EndLine: 20},
			},
			wantErr: true,
		},
		{
			name: "out of order chunks",
			chunks: []chunker.Chunk{
				{StartLine: 20, EndLine: 30},
				{StartLine: 1, EndLine: 10},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunks(tt.chunks)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateChunks() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidChunkSet) {
				t.Errorf("error %v does not wrap ErrInvalidChunkSet", err)
			}
		})
	}
}
