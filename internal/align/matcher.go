package align

import (
	"math"
	"strings"

	"github.com/lmeyer/audioscribe/internal/transcript"
)

// Alignment maps transcript segments onto translation segments. It is
// derived on every read and never persisted; recomputing is cheap next
// to the network calls that produced its inputs.
type Alignment struct {
	TranslationLanguage string    `json:"translationLanguage,omitempty"`
	TranslationTexts    []*string `json:"translationTexts"`
	TranslationMapping  []int     `json:"translationMapping"`
}

// Align pairs each transcript segment with its best-overlapping
// translation segment. The match is greedy per transcript segment: a
// translation segment may serve several transcript segments and some
// translation segments may go unused when the two timelines disagree
// on boundaries. Unmatched entries carry -1 and a nil text.
func Align(segments []transcript.Segment, translation *transcript.Translation) Alignment {
	language := ""
	if translation != nil {
		language = translation.TargetLanguage
	}

	if len(segments) == 0 {
		return Alignment{
			TranslationLanguage: language,
			TranslationTexts:    []*string{},
			TranslationMapping:  []int{},
		}
	}

	mapping := make([]int, len(segments))
	texts := make([]*string, len(segments))
	for i := range mapping {
		mapping[i] = -1
	}

	if translation == nil || len(translation.Segments) == 0 {
		return Alignment{
			TranslationLanguage: language,
			TranslationTexts:    texts,
			TranslationMapping:  mapping,
		}
	}

	for i, seg := range segments {
		bestIndex := -1
		bestScore := 0.0
		for j, candidate := range translation.Segments {
			score := overlapScore(seg.Start, seg.End, candidate.Start, candidate.End)
			if score > bestScore {
				bestScore = score
				bestIndex = j
			}
		}
		if bestIndex >= 0 {
			mapping[i] = bestIndex
			if text := strings.TrimSpace(translation.Segments[bestIndex].Text); text != "" {
				texts[i] = &text
			}
		}
	}

	return Alignment{
		TranslationLanguage: language,
		TranslationTexts:    texts,
		TranslationMapping:  mapping,
	}
}

// overlapScore is intersection-over-union of the two intervals scaled
// by a proximity factor that breaks ties toward segments starting near
// the same time. Zero means no overlap at all.
func overlapScore(startA, endA, startB, endB float64) float64 {
	intersection := math.Min(endA, endB) - math.Max(startA, startB)
	if intersection <= 0 {
		return 0
	}
	union := (endA - startA) + (endB - startB) - intersection
	if union <= 0 {
		return 0
	}
	proximity := 1.0 / (1.0 + math.Abs(startA-startB))
	return (intersection / union) * proximity
}
