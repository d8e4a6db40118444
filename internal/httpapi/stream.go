package httpapi

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lmeyer/audioscribe/internal/stream"
)

var audioContentTypes = map[string]string{
	".m4b":  "audio/mp4",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".wma":  "audio/x-ms-wma",
}

func contentTypeFor(mediaPath string) string {
	if ct, ok := audioContentTypes[strings.ToLower(filepath.Ext(mediaPath))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// handleStream serves the raw media file with byte-range support so
// players can seek without downloading the whole book.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	bookID := r.URL.Query().Get("book")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book query parameter is required")
		return
	}

	mediaPath, err := s.resolveBook(bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	f, err := os.Open(mediaPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "media file not readable")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stat media file")
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(mediaPath))

	rng, err := stream.ParseRange(r.Header.Get("Range"), size)
	if err != nil {
		w.Header().Set("Content-Range", stream.UnsatisfiableContentRange(size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = io.Copy(w, f)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.Header().Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, io.NewSectionReader(f, rng.Start, rng.Length()))
}
