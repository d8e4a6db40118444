package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/pkg/log"
	"golang.org/x/sync/singleflight"
)

// Orchestrator produces one chapter-relative transcript per (media
// file, chapter) key: slice the chapter into bounded windows, run each
// window through the speech-to-text service in order, shift the
// returned timestamps onto the chapter timeline and persist a single
// artifact. Any window failure aborts the whole run and leaves no
// artifact behind.
type Orchestrator struct {
	store      *artifact.Store
	prober     Prober
	slicer     Slicer
	recognizer Recognizer
	maxWindow  float64

	flights singleflight.Group
}

type Option func(*Orchestrator)

// WithMaxWindow overrides the slicing window bound, in seconds.
func WithMaxWindow(seconds float64) Option {
	return func(o *Orchestrator) {
		o.maxWindow = seconds
	}
}

func NewOrchestrator(store *artifact.Store, prober Prober, slicer Slicer, recognizer Recognizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		prober:     prober,
		slicer:     slicer,
		recognizer: recognizer,
		maxWindow:  DefaultMaxWindowSeconds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Transcribe returns the cached transcript for (mediaPath, chapterIdx)
// or computes and caches it. Concurrent requests for the same key
// share one in-flight computation.
func (o *Orchestrator) Transcribe(ctx context.Context, mediaPath string, chapterIdx int, force bool) (*transcript.Chapter, error) {
	key := fmt.Sprintf("%s|%d", mediaPath, chapterIdx)
	ret, err, _ := o.flights.Do(key, func() (any, error) {
		return o.transcribe(ctx, mediaPath, chapterIdx, force)
	})
	if err != nil {
		return nil, err
	}
	return ret.(*transcript.Chapter), nil
}

func (o *Orchestrator) transcribe(ctx context.Context, mediaPath string, chapterIdx int, force bool) (*transcript.Chapter, error) {
	if !force {
		cached, err := o.store.LoadTranscript(mediaPath, chapterIdx)
		if err == nil {
			return cached, nil
		}
		if !artifact.IsMiss(err) {
			return nil, err
		}
	}

	info, err := o.prober.Probe(ctx, mediaPath)
	if err != nil {
		return nil, err
	}
	start, end, err := info.Bounds(chapterIdx)
	if err != nil {
		return nil, err
	}
	duration := end - start
	windows := PlanChunks(duration, o.maxWindow)
	if len(windows) == 0 {
		return nil, apperr.Newf(apperr.KindInput, "invalid chapter duration %.3f", duration).
			WithContext("chapter", chapterIdx)
	}

	tmpDir, err := os.MkdirTemp("", "stt-")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindResource, "create work directory")
	}
	defer func() {
		// Cleanup is best effort; a leftover temp dir cannot affect
		// the returned result.
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn("Failed to remove work directory %s: %v", tmpDir, err)
		}
	}()

	var (
		text     string
		segments []transcript.Segment
		words    []transcript.Word
	)
	for i, w := range windows {
		chunkPath := filepath.Join(tmpDir, fmt.Sprintf("chunk-%d.mp3", i))
		if err := o.slicer.Slice(ctx, mediaPath, start+w.Offset, w.Duration, chunkPath); err != nil {
			return nil, apperr.Wrap(err, apperr.KindUpstream, "slice chunk").
				WithContext("chunk", i)
		}

		part, err := o.recognizer.Transcribe(ctx, chunkPath)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindUpstream, "transcribe chunk").
				WithContext("chunk", i)
		}

		offset := start + w.Offset
		text = joinText(text, part.Text)
		for _, seg := range part.Segments {
			segments = append(segments, transcript.Segment{
				ID:    seg.ID,
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}
		for _, word := range part.Words {
			words = append(words, transcript.Word{
				Word:  word.Word,
				Start: word.Start + offset,
				End:   word.End + offset,
			})
		}
	}

	chapter := &transcript.Chapter{
		Source:       o.recognizer.Source(),
		ChapterIndex: chapterIdx,
		Start:        start,
		End:          end,
		Duration:     duration,
		Text:         text,
		Words:        words,
		Segments:     segments,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.SaveTranscript(mediaPath, chapter); err != nil {
		return nil, err
	}
	log.Info("Transcribed chapter %d of %s: %d segments over %.1fs",
		chapterIdx, mediaPath, len(segments), duration)
	return chapter, nil
}

// joinText concatenates chunk texts with a single separating space.
func joinText(acc, part string) string {
	part = strings.TrimSpace(part)
	if acc == "" {
		return part
	}
	if part == "" {
		return acc
	}
	return acc + " " + part
}
