package media

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrUnsupportedMedia is returned when a file is not a decodable
// audio/video container with at least one audio stream.
var ErrUnsupportedMedia = errors.New("unsupported media")

// Info describes a probed media file.
type Info struct {
	Duration float64 // seconds
	Format   string  // container format name(s) reported by ffprobe
	HasAudio bool
}

// Prober validates media server-side. The client's extension
// allow-list is advisory only; the actual container is what counts.
type Prober interface {
	Probe(path string) (Info, error)
}

// FFProbe inspects media files with the ffprobe binary.
type FFProbe struct{}

// Probe runs ffprobe against the file and extracts the container
// format, duration and whether an audio stream is present. A file
// ffprobe cannot parse, or one with no audio stream, is rejected with
// ErrUnsupportedMedia.
func (FFProbe) Probe(path string) (Info, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=format_name,duration",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe: %s", ErrUnsupportedMedia, strings.TrimSpace(stderr.String()))
	}

	info := Info{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "format_name":
			info.Format = value
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = d
			}
		case "codec_type":
			if value == "audio" {
				info.HasAudio = true
			}
		}
	}

	if !info.HasAudio {
		return Info{}, fmt.Errorf("%w: no audio stream", ErrUnsupportedMedia)
	}
	if info.Duration <= 0 {
		return Info{}, fmt.Errorf("%w: could not determine duration", ErrUnsupportedMedia)
	}

	return info, nil
}
