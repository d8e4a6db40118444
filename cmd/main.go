package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/config"
	"github.com/lmeyer/audioscribe/internal/httpapi"
	"github.com/lmeyer/audioscribe/internal/jobs"
	"github.com/lmeyer/audioscribe/internal/library"
	"github.com/lmeyer/audioscribe/internal/media"
	"github.com/lmeyer/audioscribe/internal/persistence"
	"github.com/lmeyer/audioscribe/internal/transcribe"
	"github.com/lmeyer/audioscribe/internal/translate"
	"github.com/lmeyer/audioscribe/pkg/log"
	"github.com/robfig/cron/v3"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	var opts []config.Option
	settingsPath := config.RuntimeSettingsFilePath()
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !os.IsNotExist(err) {
		log.Warn("Ignoring unreadable settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Error("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	sources, err := library.LoadSources(cfg.Media.SourcesFile)
	if err != nil {
		log.Error("Failed to load sources config: %v", err)
		os.Exit(1)
	}

	ffmpeg := media.NewFFmpeg(media.WithBinaries(cfg.Media.FFmpegPath, cfg.Media.FFprobePath))
	scanner := library.NewScanner(
		sources,
		cfg.Translate.TargetLanguage,
		library.WithMetadataProber(func(ctx context.Context, mediaPath string) (library.Metadata, error) {
			info, err := ffmpeg.Probe(ctx, mediaPath)
			if err != nil {
				return library.Metadata{}, err
			}
			return library.Metadata{
				Duration:     info.Duration,
				ChapterCount: len(info.Chapters),
			}, nil
		}),
	)

	artifacts := artifact.NewStore()
	recognizer := transcribe.NewWhisperClient(
		cfg.STT.APIKey,
		cfg.STT.Model,
		transcribe.WithWhisperURL(cfg.STT.APIURL),
		transcribe.WithWordTimestamps(cfg.STT.WordTimestamps),
	)
	orchestrator := transcribe.NewOrchestrator(
		artifacts, ffmpeg, ffmpeg, recognizer,
		transcribe.WithMaxWindow(float64(cfg.STT.MaxWindowSeconds)),
	)

	var googleOpts []translate.GoogleOption
	if cfg.Translate.APIURL != "" {
		googleOpts = append(googleOpts, translate.WithGoogleEndpoint(cfg.Translate.APIURL))
	}
	pipeline := translate.NewPipeline(artifacts, translate.NewGoogleClient(googleOpts...))

	queue := jobs.NewQueue(cfg.Jobs.Workers, store)
	queue.Start(newJobExecutor(scanner, orchestrator, pipeline))
	defer queue.Stop()

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Error("Failed to initialize runtime settings: %v", err)
		os.Exit(1)
	}

	server := httpapi.NewServer(scanner, queue,
		httpapi.WithTranscriber(orchestrator),
		httpapi.WithTranslator(pipeline),
		httpapi.WithProber(ffmpeg),
		httpapi.WithPositionStore(store),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return scanner.UpdateTargetLanguage(next.TargetLanguage)
		}),
		httpapi.WithUI(cfg.HTTP.StaticDir, cfg.HTTP.UIEnabled),
	)

	cronRunner := cron.New()
	rescan := &rescanScheduler{
		cron:    cronRunner,
		expr:    cfg.Translate.CronExpr,
		scanner: scanner,
		queue:   queue,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, rescan, cronRunner, server); err != nil {
		log.Error("Server exited: %v", err)
		os.Exit(1)
	}
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronRunner cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("Listening on %s", cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

/// newJobExecutor runs one queued job: transcribe the chapter, then
// translate it when the job names a target language.
func newJobExecutor(scanner *library.Scanner, orchestrator *transcribe.Orchestrator, pipeline *translate.Pipeline) jobs.Executor {
	return func(ctx context.Context, job *jobs.TranscriptionJob) error {
		payload := job.Payload
		if _, err := orchestrator.Transcribe(ctx, payload.MediaPath, payload.Chapter, payload.Force); err != nil {
			return err
		}
		if payload.Language != "" {
			if _, err := pipeline.Translate(ctx, payload.MediaPath, payload.Chapter, payload.Language, "", payload.Force); err != nil {
				return err
			}
		}
		scanner.Invalidate()
		return nil
	}
}

// rescanScheduler re-walks the library on the configured cron schedule
// and queues transcription for books that have none yet.
type rescanScheduler struct {
	cron    *cron.Cron
	expr    string
	scanner *library.Scanner
	queue   *jobs.Queue
}

func (s *rescanScheduler) Schedule(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.expr, func() {
		s.rescan(ctx)
	})
	return err
}

func (s *rescanScheduler) rescan(ctx context.Context) {
	s.scanner.Invalidate()
	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		log.Error("Scheduled scan failed: %v", err)
		return
	}

	queued := 0
	for _, book := range lib.Books {
		if book.Artifacts.HasTranscript {
			continue
		}
		_, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    "cron",
			DedupeKey: jobs.DedupeKey(book.ID, 0, ""),
			Payload: jobs.JobPayload{
				BookID:    book.ID,
				MediaPath: book.MediaPath,
				Chapter:   0,
			},
		})
		if created {
			queued++
		}
	}
	log.Info("Scheduled scan finished: %d books, %d jobs queued", len(lib.Books), queued)
}
