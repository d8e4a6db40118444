package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/lmeyer/audioscribe/internal/jobs"
)

// jobStreamInterval paces the job snapshots pushed to SSE clients.
const jobStreamInterval = time.Second

// jobStreamEvent is one server-sent snapshot of the transcription
// queue: every known job plus a per-status tally for the UI header.
type jobStreamEvent struct {
	Jobs   []*jobs.TranscriptionJob `json:"jobs"`
	Counts map[jobs.Status]int      `json:"counts"`
}

// handleJobStream pushes queue snapshots as server-sent events. A
// snapshot goes out immediately on connect and then whenever the queue
// changed since the last push, checked once per second. Unchanged
// snapshots are suppressed so an idle queue costs no bandwidth.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSent []byte
	push := func() bool {
		payload, err := json.Marshal(s.jobStreamSnapshot())
		if err != nil {
			return false
		}
		if bytes.Equal(payload, lastSent) {
			return true
		}
		if _, err := fmt.Fprintf(w, "event: jobs\ndata: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		lastSent = payload
		return true
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(jobStreamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

func (s *Server) jobStreamSnapshot() jobStreamEvent {
	list := s.queue.List()
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})

	counts := make(map[jobs.Status]int)
	for _, job := range list {
		counts[job.Status]++
	}
	return jobStreamEvent{Jobs: list, Counts: counts}
}
