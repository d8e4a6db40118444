package transcribe

// DefaultMaxWindowSeconds bounds each slicing window to what the
// speech-to-text service accepts in one request.
const DefaultMaxWindowSeconds = 600

// Window is one bounded slice of a chapter, chapter-relative.
type Window struct {
	Offset   float64
	Duration float64
}

// PlanChunks divides a chapter duration into ordered, contiguous,
// non-overlapping windows of at most maxWindow seconds. The last
// window absorbs the remainder. A non-positive duration yields an
// empty plan, which the orchestrator rejects as an input error.
func PlanChunks(totalDuration, maxWindow float64) []Window {
	if totalDuration <= 0 || maxWindow <= 0 {
		return nil
	}

	windows := make([]Window, 0, int(totalDuration/maxWindow)+1)
	// The epsilon avoids a trailing sliver window when float arithmetic
	// leaves a sub-millisecond remainder.
	for offset := 0.0; offset < totalDuration-0.001; offset += maxWindow {
		remaining := totalDuration - offset
		duration := maxWindow
		if remaining < duration {
			duration = remaining
		}
		windows = append(windows, Window{Offset: offset, Duration: duration})
	}
	return windows
}
