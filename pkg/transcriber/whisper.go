package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEngineTimeout is returned when an engine call exceeded its
// deadline after all retries.
var ErrEngineTimeout = errors.New("engine timeout")

// ErrEngineUnavailable is returned when the engine keeps failing with
// transient errors after all retries.
var ErrEngineUnavailable = errors.New("engine unavailable")

// WhisperClient calls the OpenAI Whisper transcription API.
type WhisperClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewWhisperClient creates a client with a per-call timeout.
func NewWhisperClient(apiKey string, timeout time.Duration) *WhisperClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &WhisperClient{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
	}
}

// Transcribe sends one audio file to the engine. An empty language
// means auto-detect.
func (wc *WhisperClient) Transcribe(ctx context.Context, audioPath, language string) (openai.AudioResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, wc.timeout)
	defer cancel()

	resp, err := wc.client.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return openai.AudioResponse{}, classifyEngineError(err)
	}

	return resp, nil
}

// TranscribeWithRetry retries transient engine failures with
// exponential backoff (1s, 2s, 4s, ...). Permanent errors and context
// cancellation abort immediately.
func (wc *WhisperClient) TranscribeWithRetry(ctx context.Context, audioPath, language string, maxRetries int) (openai.AudioResponse, error) {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		resp, err := wc.Transcribe(ctx, audioPath, language)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return openai.AudioResponse{}, fmt.Errorf("%w: %v", ErrEngineTimeout, ctx.Err())
		}
		if !isTransient(err) {
			return openai.AudioResponse{}, err
		}

		if i < maxRetries-1 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return openai.AudioResponse{}, fmt.Errorf("%w: %v", ErrEngineTimeout, ctx.Err())
			}
		}
	}

	return openai.AudioResponse{}, fmt.Errorf("%w: %d attempts failed: %v", ErrEngineUnavailable, maxRetries, lastErr)
}

// classifyEngineError maps transport and API errors onto the engine
// error taxonomy.
func classifyEngineError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrEngineTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		// 4xx other than rate limiting is a permanent request problem.
		return err
	}

	// Network-level failures are transient.
	return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrEngineTimeout)
}
