package transcriber

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/avaldes/scribeflow/pkg/media"
	"github.com/avaldes/scribeflow/pkg/models"
)

// Result is the merged output of one engine run.
type Result struct {
	Text     string
	Language string
	Duration float64
}

// Engine is the transcription engine adapter: it chunks long audio,
// fans the chunks out to a bounded goroutine pool, and concatenates
// the chunk transcripts in chronological order.
type Engine struct {
	whisper          *WhisperClient
	splitter         *media.Splitter
	chunkConcurrency int
	maxRetries       int
}

// NewEngine creates the adapter.
func NewEngine(whisper *WhisperClient, splitter *media.Splitter, chunkConcurrency, maxRetries int) *Engine {
	if chunkConcurrency <= 0 {
		chunkConcurrency = 3
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Engine{
		whisper:          whisper,
		splitter:         splitter,
		chunkConcurrency: chunkConcurrency,
		maxRetries:       maxRetries,
	}
}

type chunkResult struct {
	index    int
	response openai.AudioResponse
	err      error
}

// Transcribe runs the whole file through the engine. onProgress, if
// set, receives the percentage of chunks completed (0-100).
func (e *Engine) Transcribe(ctx context.Context, audioPath, language string, onProgress func(int)) (*Result, error) {
	chunks, err := e.splitter.Split(ctx, audioPath, 0)
	if err != nil {
		return nil, fmt.Errorf("split audio: %w", err)
	}
	defer e.splitter.Cleanup(chunks)

	total := len(chunks)
	log.Printf("transcribing %s in %d chunk(s)", audioPath, total)

	taskChan := make(chan models.Chunk, total)
	resultChan := make(chan chunkResult, total)

	var wg sync.WaitGroup
	workers := e.chunkConcurrency
	if workers > total {
		workers = total
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.chunkWorker(ctx, taskChan, resultChan, language, &wg)
	}

	for _, chunk := range chunks {
		taskChan <- chunk
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	responses := make(map[int]openai.AudioResponse, total)
	var firstErr error
	completed := 0

	for result := range resultChan {
		completed++
		if result.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("chunk %d: %w", result.index, result.err)
			}
			continue
		}
		responses[result.index] = result.response

		if onProgress != nil {
			onProgress(completed * 100 / total)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	return e.merge(responses, chunks), nil
}

func (e *Engine) chunkWorker(
	ctx context.Context,
	taskChan <-chan models.Chunk,
	resultChan chan<- chunkResult,
	language string,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for chunk := range taskChan {
		select {
		case <-ctx.Done():
			resultChan <- chunkResult{index: chunk.Index, err: fmt.Errorf("%w: %v", ErrEngineTimeout, ctx.Err())}
			continue
		default:
		}

		response, err := e.whisper.TranscribeWithRetry(ctx, chunk.FilePath, language, e.maxRetries)
		resultChan <- chunkResult{index: chunk.Index, response: response, err: err}
	}
}

// merge concatenates chunk transcripts in index order and carries the
// detected language of the first chunk.
func (e *Engine) merge(responses map[int]openai.AudioResponse, chunks []models.Chunk) *Result {
	indices := make([]int, 0, len(responses))
	for idx := range responses {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var builder strings.Builder
	result := &Result{}
	for n, idx := range indices {
		resp := responses[idx]
		if n == 0 {
			result.Language = resp.Language
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}

	if len(chunks) > 0 {
		result.Duration = chunks[len(chunks)-1].End
	}
	result.Text = builder.String()
	return result
}
