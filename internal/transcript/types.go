package transcript

import "time"

// Chapter is one chapter's speech-to-text result, chapter-relative
// timestamps in seconds. Created once per (book, chapter) and immutable
// afterward except for full replacement on a forced recompute.
type Chapter struct {
	Source       string    `json:"source"`
	ChapterIndex int       `json:"chapterIndex"`
	Start        float64   `json:"start"`
	End          float64   `json:"end"`
	Duration     float64   `json:"duration"`
	Text         string    `json:"text"`
	Words        []Word    `json:"words"`
	Segments     []Segment `json:"segments"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Segment is a labeled time interval. Gaps between segments are
// allowed; start must never exceed end.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Translation is one chapter's translation for a single target
// language. Timing is copied from the transcript segments; translation
// never re-times speech.
type Translation struct {
	Source                 string               `json:"source"`
	ChapterIndex           int                  `json:"chapterIndex"`
	TargetLanguage         string               `json:"targetLanguage"`
	CreatedAt              time.Time            `json:"createdAt"`
	DetectedSourceLanguage string               `json:"detectedSourceLanguage,omitempty"`
	Segments               []TranslationSegment `json:"segments"`
}

type TranslationSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	OriginalText string  `json:"originalText"`
}
