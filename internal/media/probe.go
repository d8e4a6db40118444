package media

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/lmeyer/audioscribe/internal/apperr"
)

// Chapter is one chapter boundary reported by the container metadata.
// Only start offsets are stored; a chapter ends where the next one
// starts, or at the file's duration for the last chapter.
type Chapter struct {
	Title string  `json:"title"`
	Start float64 `json:"start"`
}

// Info is the probed shape of a media file.
type Info struct {
	Duration float64   `json:"duration"`
	Chapters []Chapter `json:"chapters"`
}

// Bounds resolves chapter idx into its [start, end) window in seconds.
func (info *Info) Bounds(idx int) (start, end float64, err error) {
	if idx < 0 || idx >= len(info.Chapters) {
		return 0, 0, apperr.Newf(apperr.KindInput, "chapter %d out of range", idx).
			WithContext("chapters", len(info.Chapters))
	}
	start = info.Chapters[idx].Start
	if idx+1 < len(info.Chapters) {
		end = info.Chapters[idx+1].Start
	} else {
		end = info.Duration
	}
	return start, end, nil
}

// ffprobe emits numeric fields as strings in its JSON output.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Chapters []struct {
		StartTime string `json:"start_time"`
		Tags      struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"chapters"`
}

func parseProbeOutput(output []byte) (*Info, error) {
	var probed probeResult
	if err := json.Unmarshal(output, &probed); err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "parse ffprobe output")
	}

	info := &Info{}
	if probed.Format.Duration != "" {
		d, err := strconv.ParseFloat(probed.Format.Duration, 64)
		if err == nil {
			info.Duration = d
		}
	}

	for i, ch := range probed.Chapters {
		start := 0.0
		if ch.StartTime != "" {
			if v, err := strconv.ParseFloat(ch.StartTime, 64); err == nil {
				start = v
			}
		}
		title := ch.Tags.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		info.Chapters = append(info.Chapters, Chapter{Title: title, Start: start})
	}

	sort.Slice(info.Chapters, func(i, j int) bool {
		return info.Chapters[i].Start < info.Chapters[j].Start
	})

	// A file without chapter markers is treated as one chapter
	// spanning the whole duration.
	if len(info.Chapters) == 0 {
		info.Chapters = []Chapter{{Title: "Chapter 1", Start: 0}}
	}

	return info, nil
}
