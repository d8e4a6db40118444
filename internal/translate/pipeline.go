package translate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/pkg/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// Result is one translation call's answer.
type Result struct {
	Translation            string
	DetectedSourceLanguage string
}

// Translator is the external machine-translation collaborator.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (*Result, error)
	// Source tags produced artifacts with the backend that made them.
	Source() string
}

// Pipeline turns a cached transcript into a cached per-language
// translation artifact. Translation never triggers transcription and
// never re-times speech: each translated segment copies its transcript
// segment's timing.
type Pipeline struct {
	store      *artifact.Store
	translator Translator

	flights singleflight.Group
}

func NewPipeline(store *artifact.Store, translator Translator) *Pipeline {
	return &Pipeline{
		store:      store,
		translator: translator,
	}
}

var languagePattern = regexp.MustCompile(`[^a-z0-9-]`)

// NormalizeLanguage lowercases a language code and strips everything
// outside [a-z0-9-]. An empty result means the code is unusable.
func NormalizeLanguage(code string) string {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	return languagePattern.ReplaceAllString(trimmed, "")
}

// Translate returns the cached translation for (mediaPath, chapterIdx,
// targetLang) or computes and caches it. sourceLang defaults to "auto".
// Concurrent requests for the same key share one in-flight computation.
func (p *Pipeline) Translate(ctx context.Context, mediaPath string, chapterIdx int, targetLang, sourceLang string, force bool) (*transcript.Translation, error) {
	lang := NormalizeLanguage(targetLang)
	if lang == "" {
		return nil, apperr.Newf(apperr.KindInput, "invalid target language %q", targetLang)
	}
	if _, err := language.Parse(lang); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, "malformed target language").
			WithContext("lang", lang)
	}
	if strings.TrimSpace(sourceLang) == "" {
		sourceLang = "auto"
	}

	key := fmt.Sprintf("%s|%d|%s", mediaPath, chapterIdx, lang)
	ret, err, _ := p.flights.Do(key, func() (any, error) {
		return p.translate(ctx, mediaPath, chapterIdx, lang, sourceLang, force)
	})
	if err != nil {
		return nil, err
	}
	return ret.(*transcript.Translation), nil
}

func (p *Pipeline) translate(ctx context.Context, mediaPath string, chapterIdx int, lang, sourceLang string, force bool) (*transcript.Translation, error) {
	if !force {
		cached, err := p.store.LoadTranslation(mediaPath, chapterIdx, lang)
		if err == nil {
			return cached, nil
		}
		if !artifact.IsMiss(err) {
			return nil, err
		}
	}

	source, err := p.store.LoadTranscript(mediaPath, chapterIdx)
	if err != nil {
		if artifact.IsMiss(err) {
			return nil, apperr.Wrap(err, apperr.KindNotFound, "transcript not found").
				WithContext("chapter", chapterIdx)
		}
		return nil, err
	}

	segments := buildSegments(source)
	translated := make([]transcript.TranslationSegment, 0, len(segments))
	detected := ""
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			// Blank segments translate to an empty string without a
			// network call.
			translated = append(translated, transcript.TranslationSegment{
				Start:        seg.Start,
				End:          seg.End,
				Text:         "",
				OriginalText: seg.Text,
			})
			continue
		}

		res, err := p.translator.Translate(ctx, text, sourceLang, lang)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindUpstream, "translation failed").
				WithContext("chapter", chapterIdx).
				WithContext("lang", lang)
		}
		if detected == "" && res.DetectedSourceLanguage != "" {
			detected = res.DetectedSourceLanguage
		}
		translated = append(translated, transcript.TranslationSegment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         res.Translation,
			OriginalText: seg.Text,
		})
	}

	if detected == "" {
		detected = detectLocally(source.Text)
	}

	translation := &transcript.Translation{
		Source:                 p.translator.Source(),
		ChapterIndex:           chapterIdx,
		TargetLanguage:         lang,
		CreatedAt:              time.Now().UTC(),
		DetectedSourceLanguage: detected,
		Segments:               translated,
	}
	if err := p.store.SaveTranslation(mediaPath, translation); err != nil {
		return nil, err
	}
	log.Info("Translated chapter %d of %s into %s: %d segments",
		chapterIdx, mediaPath, lang, len(translated))
	return translation, nil
}

// buildSegments uses the transcript's segments verbatim, or a single
// pseudo-segment spanning the whole chapter when the backend returned
// no segment timestamps.
func buildSegments(source *transcript.Chapter) []transcript.Segment {
	if len(source.Segments) > 0 {
		return source.Segments
	}
	return []transcript.Segment{
		{
			ID:    0,
			Start: source.Start,
			End:   source.End,
			Text:  source.Text,
		},
	}
}

// detectLocally guesses the transcript's language when the translation
// service did not report one.
func detectLocally(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return whatlanggo.DetectLang(text).Iso6391()
}
