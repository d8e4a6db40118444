package library

import "time"

type SourceConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

type Source struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	BookCount int    `json:"book_count"`
}

// ArtifactStatus summarizes which derived documents already exist
// beside the media file, so clients can show progress without probing
// each chapter individually.
type ArtifactStatus struct {
	HasTranscript        bool     `json:"has_transcript"`
	TranscribedChapters  []int    `json:"transcribed_chapters"`
	TranslationLanguages []string `json:"translation_languages"`
	HasTargetTranslation bool     `json:"has_target_translation"`
}

type Book struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"`
	Author       string         `json:"author"`
	Title        string         `json:"title"`
	RelPath      string         `json:"rel_path"`
	MediaPath    string         `json:"media_path"`
	SizeBytes    int64          `json:"size_bytes"`
	ModifiedAt   time.Time      `json:"modified_at"`
	Duration     float64        `json:"duration,omitempty"`
	ChapterCount int            `json:"chapter_count,omitempty"`
	Artifacts    ArtifactStatus `json:"artifacts"`
}

type Library struct {
	Sources []Source `json:"sources"`
	Books   []Book   `json:"books"`
}
