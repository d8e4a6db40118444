package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lmeyer/audioscribe/internal/align"
	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/config"
	"github.com/lmeyer/audioscribe/internal/jobs"
	"github.com/lmeyer/audioscribe/internal/library"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/internal/translate"
	"github.com/lmeyer/audioscribe/pkg/icron"
)

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	lib, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lib.Sources)
}

type booksListResponse struct {
	TargetLanguage string         `json:"target_language"`
	Books          []bookResponse `json:"books"`
}

type bookResponse struct {
	library.Book
	InProgress bool        `json:"in_progress"`
	JobStatus  jobs.Status `json:"job_status,omitempty"`
	JobSource  string      `json:"job_source,omitempty"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	lib, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	activeJobsByBook := inProgressJobsByBook(s.queue.List())
	ret := make([]bookResponse, 0, len(lib.Books))
	for _, book := range lib.Books {
		item := bookResponse{
			Book: book,
		}
		if job, ok := activeJobsByBook[book.ID]; ok {
			item.InProgress = true
			item.JobStatus = job.Status
			item.JobSource = job.Source
		}
		ret = append(ret, item)
	}
	writeJSON(w, http.StatusOK, booksListResponse{
		TargetLanguage: s.scanner.TargetLanguage(),
		Books:          ret,
	})
}

func inProgressJobsByBook(jobList []*jobs.TranscriptionJob) map[string]*jobs.TranscriptionJob {
	ret := make(map[string]*jobs.TranscriptionJob)
	for _, job := range jobList {
		if job == nil || job.Payload.BookID == "" {
			continue
		}
		if job.Status != jobs.StatusPending && job.Status != jobs.StatusRunning {
			continue
		}
		existing, ok := ret[job.Payload.BookID]
		if !ok || preferInProgressJob(job, existing) {
			ret[job.Payload.BookID] = job
		}
	}
	return ret
}

func preferInProgressJob(next, current *jobs.TranscriptionJob) bool {
	nextRank := inProgressRank(next.Status)
	currentRank := inProgressRank(current.Status)
	if nextRank != currentRank {
		return nextRank > currentRank
	}
	return next.UpdatedAt.After(current.UpdatedAt)
}

func inProgressRank(status jobs.Status) int {
	switch status {
	case jobs.StatusRunning:
		return 2
	case jobs.StatusPending:
		return 1
	default:
		return 0
	}
}

type chapterResponse struct {
	Index         int     `json:"index"`
	Title         string  `json:"title"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	HasTranscript bool    `json:"has_transcript"`
}

type chaptersListResponse struct {
	BookID   string            `json:"book_id"`
	Duration float64           `json:"duration"`
	Chapters []chapterResponse `json:"chapters"`
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeError(w, http.StatusNotImplemented, "media prober is not configured")
		return
	}

	bookID := mux.Vars(r)["id"]
	mediaPath, err := s.resolveBook(bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	info, err := s.prober.Probe(r.Context(), mediaPath)
	if err != nil {
		writeAppError(w, err)
		return
	}

	chapters := make([]chapterResponse, 0, len(info.Chapters))
	for i, ch := range info.Chapters {
		start, end, err := info.Bounds(i)
		if err != nil {
			writeAppError(w, err)
			return
		}
		chapters = append(chapters, chapterResponse{
			Index:         i,
			Title:         ch.Title,
			Start:         start,
			End:           end,
			HasTranscript: s.store.HasTranscript(mediaPath, i),
		})
	}
	writeJSON(w, http.StatusOK, chaptersListResponse{
		BookID:   bookID,
		Duration: info.Duration,
		Chapters: chapters,
	})
}

// chapterRequest resolves the {id}/{n} route pair to a media path and
// chapter index.
func (s *Server) chapterRequest(r *http.Request) (mediaPath string, chapter int, err error) {
	vars := mux.Vars(r)
	chapter, convErr := strconv.Atoi(vars["n"])
	if convErr != nil || chapter < 0 {
		return "", 0, apperr.New(apperr.KindInput, "invalid chapter index")
	}
	mediaPath, err = s.resolveBook(vars["id"])
	if err != nil {
		return "", 0, err
	}
	return mediaPath, chapter, nil
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	mediaPath, chapter, err := s.chapterRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	ch, err := s.store.LoadTranscript(mediaPath, chapter)
	if err != nil {
		if artifact.IsMiss(err) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type createTranscriptRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleCreateTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusNotImplemented, "transcriber is not configured")
		return
	}

	mediaPath, chapter, err := s.chapterRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req createTranscriptRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}

	ch, err := s.transcriber.Transcribe(r.Context(), mediaPath, chapter, req.Force)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleGetTranslation(w http.ResponseWriter, r *http.Request) {
	mediaPath, chapter, err := s.chapterRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	lang := translate.NormalizeLanguage(r.URL.Query().Get("lang"))
	if lang == "" {
		writeError(w, http.StatusBadRequest, "lang query parameter is required")
		return
	}

	tr, err := s.store.LoadTranslation(mediaPath, chapter, lang)
	if err != nil {
		if artifact.IsMiss(err) {
			writeError(w, http.StatusNotFound, "translation not found")
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

type createTranslationRequest struct {
	Language       string `json:"language"`
	SourceLanguage string `json:"source_language"`
	Force          bool   `json:"force"`
}

func (s *Server) handleCreateTranslation(w http.ResponseWriter, r *http.Request) {
	if s.translator == nil {
		writeError(w, http.StatusNotImplemented, "translator is not configured")
		return
	}

	mediaPath, chapter, err := s.chapterRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var req createTranslationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = s.scanner.TargetLanguage()
	}

	tr, err := s.translator.Translate(r.Context(), mediaPath, chapter, req.Language, req.SourceLanguage, req.Force)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

type alignmentResponse struct {
	ChapterIndex int  `json:"chapter_index"`
	SegmentCount int  `json:"segment_count"`
	ActiveIndex  *int `json:"active_index,omitempty"`
	align.Alignment
}

func (s *Server) handleGetAlignment(w http.ResponseWriter, r *http.Request) {
	mediaPath, chapter, err := s.chapterRequest(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	ch, err := s.store.LoadTranscript(mediaPath, chapter)
	if err != nil {
		if artifact.IsMiss(err) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return
		}
		writeAppError(w, err)
		return
	}

	var translation *transcript.Translation
	if rawLang := r.URL.Query().Get("lang"); rawLang != "" {
		lang := translate.NormalizeLanguage(rawLang)
		if lang == "" {
			writeError(w, http.StatusBadRequest, "invalid lang query parameter")
			return
		}
		translation, err = s.store.LoadTranslation(mediaPath, chapter, lang)
		if err != nil {
			if artifact.IsMiss(err) {
				writeError(w, http.StatusNotFound, "translation not found")
				return
			}
			writeAppError(w, err)
			return
		}
	}

	ret := alignmentResponse{
		ChapterIndex: chapter,
		SegmentCount: len(ch.Segments),
		Alignment:    align.Align(ch.Segments, translation),
	}
	if rawPos := r.URL.Query().Get("position"); rawPos != "" {
		position, err := strconv.ParseFloat(rawPos, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid position query parameter")
			return
		}
		idx := align.FindActiveIndex(ch.Segments, position)
		ret.ActiveIndex = &idx
	}
	writeJSON(w, http.StatusOK, ret)
}

type enqueueJobRequest struct {
	Source   string `json:"source"`
	BookID   string `json:"book_id"`
	Chapter  int    `json:"chapter"`
	Language string `json:"language"`
	Force    bool   `json:"force"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}
		if req.BookID == "" {
			writeError(w, http.StatusBadRequest, "book_id is required")
			return
		}
		if req.Chapter < 0 {
			writeError(w, http.StatusBadRequest, "chapter must not be negative")
			return
		}
		mediaPath, err := s.resolveBook(req.BookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		lang := translate.NormalizeLanguage(req.Language)
		if req.Language != "" && lang == "" {
			writeError(w, http.StatusBadRequest, "invalid language")
			return
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: jobs.DedupeKey(req.BookID, req.Chapter, lang),
			Payload: jobs.JobPayload{
				BookID:    req.BookID,
				MediaPath: mediaPath,
				Chapter:   req.Chapter,
				Language:  lang,
				Force:     req.Force,
			},
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type statusResponse struct {
	Jobs     map[jobs.Status]int `json:"jobs"`
	Schedule *icron.TriggerInfo  `json:"schedule,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Jobs: make(map[jobs.Status]int),
	}
	for _, job := range s.queue.List() {
		resp.Jobs[job.Status]++
	}

	if s.settings != nil {
		settings, err := s.settings.GetRuntimeSettings()
		if err == nil {
			if info, err := icron.GetTriggerInfo(settings.CronExpr, time.Now()); err == nil {
				resp.Schedule = info
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.scanner.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok": true,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeAppError maps error kinds onto HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindInput:
			status = http.StatusBadRequest
		case apperr.KindNotFound:
			status = http.StatusNotFound
		case apperr.KindUpstream:
			status = http.StatusBadGateway
		}
	}
	writeError(w, status, err.Error())
}
