package models

import "time"

type JobState string

const (
	StateReceived     JobState = "received"
	StateExtracting   JobState = "extracting"
	StateTranscribing JobState = "transcribing"
	StateReady        JobState = "ready"
	StateFailed       JobState = "failed"
)

// Terminal reports whether the state accepts no further transitions.
func (s JobState) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// ValidTransition enforces the allowed state machine edges:
// received -> extracting -> transcribing -> ready | failed.
// Any non-terminal stage may fail; stages are never skipped.
func ValidTransition(from, to JobState) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	switch from {
	case StateReceived:
		return to == StateExtracting
	case StateExtracting:
		return to == StateTranscribing
	case StateTranscribing:
		return to == StateReady
	default:
		return false
	}
}

// Job is the lifecycle record of one transcription request. ID is the
// public file_id handle shared across all API calls.
type Job struct {
	ID               string    `json:"file_id"`
	Filename         string    `json:"filename"`
	MediaRef         string    `json:"media_ref"`
	State            JobState  `json:"state"`
	Progress         int       `json:"progress"`
	LanguageHint     string    `json:"language_hint,omitempty"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Transcript       string    `json:"transcript,omitempty"`
	TranscriptRev    int       `json:"transcript_rev"`
	Duration         float64   `json:"duration,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`

	// RabbitMQ bookkeeping, never serialized.
	DeliveryTag uint64 `json:"-"`
	Delivery    any    `json:"-"`
}

// SetProgress raises the progress value, clamped to 100. Progress is
// monotonic: a value lower than the current one is ignored.
func (j *Job) SetProgress(p int) {
	if p > 100 {
		p = 100
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// Transition moves the job to the given state if the edge is valid and
// reports whether it was applied.
func (j *Job) Transition(to JobState) bool {
	if !ValidTransition(j.State, to) {
		return false
	}
	j.State = to
	return true
}

// Chunk is one window of audio cut out of the source media for
// transcription.
type Chunk struct {
	Index    int     `json:"index"`
	FilePath string  `json:"file_path"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}
