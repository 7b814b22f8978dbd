package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

var videoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

// IsVideoFile reports whether the filename looks like a video
// container. Used only to decide whether an audio-extraction pass is
// worth running; validation itself goes through ffprobe.
func IsVideoFile(filename string) bool {
	return videoExts[strings.ToLower(filepath.Ext(filename))]
}

// ExtractAudio derives an mp3 audio stream from a video file.
// Returns the output path.
func ExtractAudio(ctx context.Context, inputPath, outputDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+"_audio.mp3")

	// ffmpeg -i input -vn -acodec libmp3lame -ab 128k -y output.mp3
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ab", "128k",
		"-y",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg audio extraction: %v (stderr: %s)", err, lastLine(stderr.String()))
	}

	return outputPath, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
