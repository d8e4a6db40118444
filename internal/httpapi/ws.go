package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lmeyer/audioscribe/internal/align"
	"github.com/lmeyer/audioscribe/internal/artifact"
	"github.com/lmeyer/audioscribe/internal/persistence"
	"github.com/lmeyer/audioscribe/internal/player"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/internal/translate"
	"github.com/lmeyer/audioscribe/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// segmentThrottle limits how often a new active segment is pushed to
// the client, so rapid seeking does not flood the connection.
const segmentThrottle = 500 * time.Millisecond

// playbackReport is what the client sends: its current player state.
type playbackReport struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
}

type playbackMessage struct {
	Type        string  `json:"type"`
	Position    float64 `json:"position,omitempty"`
	ActiveIndex int     `json:"active_index"`
	Text        string  `json:"text,omitempty"`
	Translation string  `json:"translation,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// handlePlayback drives a live reading session over a websocket. The
// client reports raw player positions; the server extrapolates between
// reports, locates the active transcript segment and pushes segment
// changes, with the matched translation line when one is cached.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	bookID := r.URL.Query().Get("book")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book query parameter is required")
		return
	}
	chapter, err := strconv.Atoi(r.URL.Query().Get("chapter"))
	if err != nil || chapter < 0 {
		writeError(w, http.StatusBadRequest, "invalid chapter query parameter")
		return
	}

	mediaPath, err := s.resolveBook(bookID)
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
	if lang := translate.NormalizeLanguage(r.URL.Query().Get("lang")); lang != "" {
		translation, err = s.store.LoadTranslation(mediaPath, chapter, lang)
		if err != nil && !artifact.IsMiss(err) {
			writeAppError(w, err)
			return
		}
		// A translation cache miss degrades to transcript-only playback.
	}
	alignment := align.Align(ch.Segments, translation)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := player.NewSession()
	if s.positions != nil {
		if pos, ok, err := s.positions.GetPlaybackPosition(ctx, bookID, chapter); err == nil && ok {
			session.Report(pos.Position, false)
			_ = conn.WriteJSON(playbackMessage{
				Type:        "resume",
				Position:    pos.Position,
				ActiveIndex: align.FindActiveIndex(ch.Segments, pos.Position),
			})
		}
	}

	go s.readPlaybackReports(ctx, cancel, conn, session, bookID, chapter)

	updates := make(chan int, 1)
	gate := player.NewThrottleGate(segmentThrottle, func(index int) {
		pushLatest(updates, index)
	})
	defer gate.Stop()

	ticker := time.NewTicker(player.DefaultTickInterval)
	defer ticker.Stop()

	lastIndex := -2
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !session.Playing() {
				continue
			}
			idx := align.FindActiveIndex(ch.Segments, session.Position())
			if idx != lastIndex {
				lastIndex = idx
				gate.Trigger(idx)
			}
		case idx := <-updates:
			msg := playbackMessage{
				Type:        "segment",
				Position:    session.Position(),
				ActiveIndex: idx,
			}
			if idx >= 0 && idx < len(ch.Segments) {
				msg.Text = ch.Segments[idx].Text
				if text := alignment.TranslationTexts[idx]; text != nil {
					msg.Translation = *text
				}
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// pushLatest delivers index on a buffered channel, evicting a stale
// undelivered value first so the receiver always sees the newest index.
func pushLatest(ch chan int, index int) {
	for {
		select {
		case ch <- index:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func (s *Server) readPlaybackReports(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	session *player.Session,
	bookID string,
	chapter int,
) {
	defer cancel()
	for {
		var report playbackReport
		if err := conn.ReadJSON(&report); err != nil {
			return
		}
		session.Report(report.Position, report.Playing)

		if s.positions != nil {
			err := s.positions.SavePlaybackPosition(ctx, persistence.PlaybackPosition{
				BookID:   bookID,
				Chapter:  chapter,
				Position: session.Position(),
			})
			if err != nil {
				log.Warn("Persist playback position: %v", err)
			}
		}
	}
}
