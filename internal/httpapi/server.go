package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/config"
	"github.com/lmeyer/audioscribe/internal/jobs"
	"github.com/lmeyer/audioscribe/internal/library"
	"github.com/lmeyer/audioscribe/internal/media"
	"github.com/lmeyer/audioscribe/internal/persistence"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/pkg/file"
)

// Transcriber produces a chapter transcript, from cache or by running
// the speech-to-text pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string, chapterIdx int, force bool) (*transcript.Chapter, error)
}

// Translator produces a chapter translation, from cache or by running
// the translation pipeline.
type Translator interface {
	Translate(ctx context.Context, mediaPath string, chapterIdx int, targetLang, sourceLang string, force bool) (*transcript.Translation, error)
}

// Prober reads container metadata: duration and chapter boundaries.
type Prober interface {
	Probe(ctx context.Context, mediaPath string) (*media.Info, error)
}

// PositionStore persists last-known playback positions.
type PositionStore interface {
	SavePlaybackPosition(ctx context.Context, pos persistence.PlaybackPosition) error
	GetPlaybackPosition(ctx context.Context, bookID string, chapter int) (persistence.PlaybackPosition, bool, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	scanner     *library.Scanner
	queue       *jobs.Queue
	store       *artifact.Store
	transcriber Transcriber
	translator  Translator
	prober      Prober
	positions   PositionStore
	settings    runtimeSettingsStore
	apply       runtimeSettingsApplier

	uiEnabled   bool
	uiStaticDir string

	router *mux.Router
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithTranscriber(t Transcriber) Option {
	return func(s *Server) {
		s.transcriber = t
	}
}

func WithTranslator(t Translator) Option {
	return func(s *Server) {
		s.translator = t
	}
}

func WithProber(p Prober) Option {
	return func(s *Server) {
		s.prober = p
	}
}

func WithPositionStore(store PositionStore) Option {
	return func(s *Server) {
		s.positions = store
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func NewServer(scanner *library.Scanner, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		scanner:   scanner,
		queue:     queue,
		store:     artifact.NewStore(),
		uiEnabled: false,
		router:    mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/library/sources", s.handleListSources).Methods(http.MethodGet)
	api.HandleFunc("/library/books", s.handleListBooks).Methods(http.MethodGet)
	api.HandleFunc("/library/books/{id}/chapters", s.handleListChapters).Methods(http.MethodGet)

	api.HandleFunc("/books/{id}/chapters/{n:[0-9]+}/transcript", s.handleGetTranscript).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}/chapters/{n:[0-9]+}/transcript", s.handleCreateTranscript).Methods(http.MethodPost)
	api.HandleFunc("/books/{id}/chapters/{n:[0-9]+}/translation", s.handleGetTranslation).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}/chapters/{n:[0-9]+}/translation", s.handleCreateTranslation).Methods(http.MethodPost)
	api.HandleFunc("/books/{id}/chapters/{n:[0-9]+}/alignment", s.handleGetAlignment).Methods(http.MethodGet)

	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/playback", s.handlePlayback).Methods(http.MethodGet)

	api.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/jobs/stream", s.handleJobStream).Methods(http.MethodGet)

	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet, http.MethodPut)

	s.router.PathPrefix("/").HandlerFunc(s.handleStatic)
}

// resolveBook maps a book ID to a media path inside one of the
// configured source roots. The decoded relative path must not escape
// its root.
func (s *Server) resolveBook(bookID string) (string, error) {
	sourceID, relPath, err := library.DecodeBookID(bookID)
	if err != nil {
		return "", err
	}
	for _, src := range s.scanner.Sources() {
		if src.ID != sourceID {
			continue
		}
		mediaPath, err := file.SafeJoin(src.Path, relPath)
		if err != nil {
			return "", apperr.Wrap(err, apperr.KindInput, "invalid book path")
		}
		if _, err := os.Stat(mediaPath); err != nil {
			return "", apperr.New(apperr.KindNotFound, "book not found").
				WithContext("book", bookID)
		}
		return mediaPath, nil
	}
	return "", apperr.New(apperr.KindNotFound, "unknown source").
		WithContext("source", sourceID)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
