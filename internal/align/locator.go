package align

import "github.com/lmeyer/audioscribe/internal/transcript"

// FindActiveIndex locates the segment whose [start, end) interval
// contains position, in seconds. Segments must be sorted ascending by
// start. Positions outside the covered range clamp to the first or
// last index so playback UI always has something to highlight. Returns
// -1 only for an empty segment list.
//
// Called on every playback tick, so it must stay allocation-free.
func FindActiveIndex(segments []transcript.Segment, position float64) int {
	if len(segments) == 0 {
		return -1
	}

	low, high := 0, len(segments)-1
	for low <= high {
		mid := (low + high) / 2
		seg := segments[mid]
		switch {
		case position < seg.Start:
			high = mid - 1
		case position >= seg.End:
			low = mid + 1
		default:
			return mid
		}
	}

	// No segment contains the position: clamp, or pick the nearest
	// following segment when the position falls into a gap.
	last := len(segments) - 1
	switch {
	case low > last:
		return last
	case high < 0:
		return 0
	default:
		return min(low, last)
	}
}
