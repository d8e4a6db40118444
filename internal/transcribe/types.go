package transcribe

import (
	"context"

	"github.com/lmeyer/audioscribe/internal/media"
)

// Result is the speech-to-text service's answer for one audio chunk.
// Timestamps are relative to the chunk's own start (0-based); the
// orchestrator shifts them onto the chapter timeline when merging.
type Result struct {
	Text     string          `json:"text"`
	Segments []ResultSegment `json:"segments"`
	Words    []ResultWord    `json:"words"`
}

type ResultSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type ResultWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Slicer extracts a bounded window of the source audio into outPath.
// Failure is a hard error with no partial output.
type Slicer interface {
	Slice(ctx context.Context, srcPath string, startSec, durationSec float64, outPath string) error
}

// Recognizer transcribes one sliced audio chunk.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
	// Source tags produced artifacts with the backend that made them.
	Source() string
}

// Prober supplies chapter boundaries and total duration for a media
// file.
type Prober interface {
	Probe(ctx context.Context, mediaPath string) (*media.Info, error)
}
