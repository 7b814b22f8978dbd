package transcriber

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/avaldes/scribeflow/pkg/models"
)

// TestMergeOrdersByChunkIndex feeds results out of order and checks the
// merged transcript follows chunk chronology, not completion order.
func TestMergeOrdersByChunkIndex(t *testing.T) {
	e := &Engine{}

	responses := map[int]openai.AudioResponse{
		2: {Text: "third part."},
		0: {Text: "First part,", Language: "english"},
		1: {Text: "second part,"},
	}
	chunks := []models.Chunk{
		{Index: 0, Start: 0, End: 600},
		{Index: 1, Start: 600, End: 1200},
		{Index: 2, Start: 1200, End: 1500},
	}

	result := e.merge(responses, chunks)
	assert.Equal(t, "First part, second part, third part.", result.Text)
	assert.Equal(t, "english", result.Language)
	assert.Equal(t, 1500.0, result.Duration)
}

func TestMergeSkipsEmptyChunks(t *testing.T) {
	e := &Engine{}

	responses := map[int]openai.AudioResponse{
		0: {Text: "hello", Language: "english"},
		1: {Text: "   "},
		2: {Text: "world"},
	}
	chunks := []models.Chunk{{Index: 0}, {Index: 1}, {Index: 2, End: 90}}

	result := e.merge(responses, chunks)
	assert.Equal(t, "hello world", result.Text)
}

func TestMergeSingleChunk(t *testing.T) {
	e := &Engine{}

	responses := map[int]openai.AudioResponse{
		0: {Text: " whole transcript ", Language: "spanish"},
	}
	chunks := []models.Chunk{{Index: 0, End: 42.5}}

	result := e.merge(responses, chunks)
	assert.Equal(t, "whole transcript", result.Text)
	assert.Equal(t, "spanish", result.Language)
	assert.Equal(t, 42.5, result.Duration)
}

func TestClassifyEngineError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "deadline exceeded maps to timeout",
			err:  context.DeadlineExceeded,
			want: ErrEngineTimeout,
		},
		{
			name: "rate limit is transient",
			err:  &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			want: ErrEngineUnavailable,
		},
		{
			name: "server error is transient",
			err:  &openai.APIError{HTTPStatusCode: http.StatusBadGateway},
			want: ErrEngineUnavailable,
		},
		{
			name: "network failure is transient",
			err:  errors.New("connection refused"),
			want: ErrEngineUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyEngineError(tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

// TestClassifyEngineErrorPermanent checks that a plain 4xx comes back
// unchanged so the retry loop aborts instead of hammering the API.
func TestClassifyEngineErrorPermanent(t *testing.T) {
	badRequest := &openai.APIError{HTTPStatusCode: http.StatusBadRequest}

	got := classifyEngineError(badRequest)
	assert.False(t, isTransient(got))

	var apiErr *openai.APIError
	assert.ErrorAs(t, got, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatusCode)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(ErrEngineUnavailable))
	assert.True(t, isTransient(ErrEngineTimeout))
	assert.False(t, isTransient(errors.New("bad audio")))
}
