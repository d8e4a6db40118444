package persistence

import "time"

// PlaybackPosition is the last reported listening position for a
// chapter, keyed by (book, chapter).
type PlaybackPosition struct {
	BookID    string    `json:"book_id"`
	Chapter   int       `json:"chapter"`
	Position  float64   `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}
