package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/avaldes/scribeflow/pkg/models"
)

// Splitter cuts audio into fixed-duration chunks so each engine call
// stays inside the engine's input limits. Boundary words at chunk
// seams may be imperfect; that is accepted here.
type Splitter struct {
	chunkSeconds int
}

// NewSplitter creates a splitter; chunkSeconds defaults to 600.
func NewSplitter(chunkSeconds int) *Splitter {
	if chunkSeconds <= 0 {
		chunkSeconds = 600
	}
	return &Splitter{chunkSeconds: chunkSeconds}
}

// Split cuts the audio file into chunks. Audio at or under the window
// size is returned as a single chunk pointing at the original file,
// so Cleanup never deletes it.
func (s *Splitter) Split(ctx context.Context, audioPath string, duration float64) ([]models.Chunk, error) {
	if duration <= 0 {
		info, err := FFProbe{}.Probe(audioPath)
		if err != nil {
			return nil, err
		}
		duration = info.Duration
	}

	if duration <= float64(s.chunkSeconds) {
		return []models.Chunk{{
			Index:    0,
			FilePath: audioPath,
			Start:    0,
			End:      duration,
		}}, nil
	}

	chunkCount := int(duration)/s.chunkSeconds + 1
	chunksDir, err := os.MkdirTemp(filepath.Dir(audioPath), "chunks-")
	if err != nil {
		return nil, fmt.Errorf("create chunks directory: %w", err)
	}

	chunks := make([]models.Chunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		start := float64(i * s.chunkSeconds)
		end := start + float64(s.chunkSeconds)
		if end > duration {
			end = duration
		}
		if end <= start {
			break
		}

		chunkPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d.mp3", i))
		if err := s.cutChunk(ctx, audioPath, chunkPath, start, float64(s.chunkSeconds)); err != nil {
			os.RemoveAll(chunksDir)
			return nil, fmt.Errorf("cut chunk %d: %w", i, err)
		}

		chunks = append(chunks, models.Chunk{
			Index:    i,
			FilePath: chunkPath,
			Start:    start,
			End:      end,
		})
	}

	return chunks, nil
}

// cutChunk extracts one window. Audio-only inputs are stream-copied;
// anything else is transcoded to mp3.
func (s *Splitter) cutChunk(ctx context.Context, inputPath, outputPath string, startTime, duration float64) error {
	var cmd *exec.Cmd
	if IsVideoFile(inputPath) {
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-i", inputPath,
			"-ss", fmt.Sprintf("%.2f", startTime),
			"-t", fmt.Sprintf("%.2f", duration),
			"-vn",
			"-acodec", "libmp3lame",
			"-ab", "128k",
			"-y",
			outputPath,
		)
	} else {
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-i", inputPath,
			"-ss", fmt.Sprintf("%.2f", startTime),
			"-t", fmt.Sprintf("%.2f", duration),
			"-acodec", "libmp3lame",
			"-ab", "64k",
			"-y",
			outputPath,
		)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %v (stderr: %s)", err, lastLine(stderr.String()))
	}

	return nil
}

// Cleanup removes the temporary chunk directory. A single-chunk split
// points at the original audio and is left alone.
func (s *Splitter) Cleanup(chunks []models.Chunk) {
	if len(chunks) < 2 {
		return
	}
	chunksDir := filepath.Dir(chunks[0].FilePath)
	if err := os.RemoveAll(chunksDir); err != nil {
		log.Printf("cleanup of chunk directory %s failed: %v", chunksDir, err)
	}
}
