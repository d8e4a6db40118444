package translate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/stretchr/testify/require"
)

type fakeTranslator struct {
	calls    []string
	detected string
	failAt   int // 1-based call number that fails; 0 = never
}

func (f *fakeTranslator) Translate(_ context.Context, text, _, targetLang string) (*Result, error) {
	f.calls = append(f.calls, text)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, fmt.Errorf("service unavailable")
	}
	return &Result{
		Translation:            fmt.Sprintf("[%s] %s", targetLang, text),
		DetectedSourceLanguage: f.detected,
	}, nil
}

func (f *fakeTranslator) Source() string { return "mt-test" }

func translateFixture(t *testing.T, store *artifact.Store, segments []transcript.Segment, text string) string {
	t.Helper()
	mediaPath := filepath.Join(t.TempDir(), "book.m4b")
	require.NoError(t, os.WriteFile(mediaPath, []byte("audio"), 0o644))
	require.NoError(t, store.SaveTranscript(mediaPath, &transcript.Chapter{
		Source:       "whisper-1",
		ChapterIndex: 0,
		Start:        10,
		End:          20,
		Duration:     10,
		Text:         text,
		Segments:     segments,
		CreatedAt:    time.Now().UTC(),
	}))
	return mediaPath
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "ES", want: "es"},
		{input: "  zh-CN ", want: "zh-cn"},
		{input: "pt_BR", want: "ptbr"},
		{input: "es!", want: "es"},
		{input: "", want: ""},
		{input: "!!", want: ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeLanguage(tt.input), "input %q", tt.input)
	}
}

func TestPipeline_TranslatesSegmentsKeepingTiming(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 14, Text: "One"},
		{ID: 1, Start: 14, End: 20, Text: "Two"},
	}, "One Two")
	translator := &fakeTranslator{detected: "en"}
	p := NewPipeline(store, translator)

	got, err := p.Translate(context.Background(), mediaPath, 0, "ES", "", false)
	require.NoError(t, err)

	require.Equal(t, "mt-test", got.Source)
	require.Equal(t, "es", got.TargetLanguage)
	require.Equal(t, "en", got.DetectedSourceLanguage)
	require.Len(t, got.Segments, 2)
	require.Equal(t, transcript.TranslationSegment{
		Start: 10, End: 14, Text: "[es] One", OriginalText: "One",
	}, got.Segments[0])
	require.Equal(t, transcript.TranslationSegment{
		Start: 14, End: 20, Text: "[es] Two", OriginalText: "Two",
	}, got.Segments[1])
}

func TestPipeline_BlankSegmentsSkipNetworkCalls(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 12, Text: "One"},
		{ID: 1, Start: 12, End: 14, Text: "   "},
		{ID: 2, Start: 14, End: 20, Text: "Three"},
	}, "One Three")
	translator := &fakeTranslator{}
	p := NewPipeline(store, translator)

	got, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)

	require.Equal(t, []string{"One", "Three"}, translator.calls)
	require.Len(t, got.Segments, 3)
	require.Empty(t, got.Segments[1].Text)
	require.Equal(t, "   ", got.Segments[1].OriginalText)
}

func TestPipeline_PseudoSegmentWhenTranscriptHasNone(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, nil, "whole chapter text")
	translator := &fakeTranslator{}
	p := NewPipeline(store, translator)

	got, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)

	require.Len(t, got.Segments, 1)
	require.Equal(t, 10.0, got.Segments[0].Start)
	require.Equal(t, 20.0, got.Segments[0].End)
	require.Equal(t, "[es] whole chapter text", got.Segments[0].Text)
	require.Equal(t, "whole chapter text", got.Segments[0].OriginalText)
}

func TestPipeline_MissingTranscriptIsNotFound(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := filepath.Join(t.TempDir(), "book.m4b")
	require.NoError(t, os.WriteFile(mediaPath, []byte("audio"), 0o644))
	translator := &fakeTranslator{}
	p := NewPipeline(store, translator)

	_, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
	require.Empty(t, translator.calls, "translation must never trigger transcription or other calls")
}

func TestPipeline_InvalidLanguage(t *testing.T) {
	store := artifact.NewStore()
	translator := &fakeTranslator{}
	p := NewPipeline(store, translator)

	_, err := p.Translate(context.Background(), "/tmp/book.m4b", 0, "!!", "", false)
	require.True(t, apperr.IsKind(err, apperr.KindInput))
	require.Empty(t, translator.calls)
}

func TestPipeline_CacheHitSkipsCalls(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 20, Text: "One"},
	}, "One")
	translator := &fakeTranslator{}
	p := NewPipeline(store, translator)

	first, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)
	callsAfterFirst := len(translator.calls)

	second, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)
	require.Len(t, translator.calls, callsAfterFirst)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, first, second)
}

func TestPipeline_LanguagesAreKeyedIndependently(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 20, Text: "One"},
	}, "One")
	p := NewPipeline(store, &fakeTranslator{})

	es, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)
	fr, err := p.Translate(context.Background(), mediaPath, 0, "fr", "", false)
	require.NoError(t, err)

	require.Equal(t, "[es] One", es.Segments[0].Text)
	require.Equal(t, "[fr] One", fr.Segments[0].Text)

	// Both artifacts coexist on disk.
	_, err = store.LoadTranslation(mediaPath, 0, "es")
	require.NoError(t, err)
	_, err = store.LoadTranslation(mediaPath, 0, "fr")
	require.NoError(t, err)
}

func TestPipeline_FailureAbortsWholeBatch(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 14, Text: "One"},
		{ID: 1, Start: 14, End: 20, Text: "Two"},
	}, "One Two")
	translator := &fakeTranslator{failAt: 2}
	p := NewPipeline(store, translator)

	_, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.True(t, apperr.IsKind(err, apperr.KindUpstream))

	// No partial artifact was persisted; the transcript is untouched.
	_, err = store.LoadTranslation(mediaPath, 0, "es")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = store.LoadTranscript(mediaPath, 0)
	require.NoError(t, err)
}

func TestPipeline_DetectsLanguageLocallyWhenServiceSilent(t *testing.T) {
	store := artifact.NewStore()
	mediaPath := translateFixture(t, store, []transcript.Segment{
		{ID: 0, Start: 10, End: 20, Text: "The quick brown fox jumps over the lazy dog"},
	}, "The quick brown fox jumps over the lazy dog")
	translator := &fakeTranslator{} // reports no detected language
	p := NewPipeline(store, translator)

	got, err := p.Translate(context.Background(), mediaPath, 0, "es", "", false)
	require.NoError(t, err)
	require.Equal(t, "en", got.DetectedSourceLanguage)
}
