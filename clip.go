package haven

import (
	"math"

	"github.com/google/uuid"
)

// mergeTolerance is the slack allowed when checking that two clips are
// adjacent on the timeline and contiguous in their source, in seconds.
const mergeTolerance = 1e-3

// SplitClip splits c at timeline time t into two clips that together cover
// the original extent exactly. The split position must fall strictly inside
// the clip and both halves must be longer than one sample at the given
// sample rate.
func SplitClip(c Clip, t float64, sampleRate int) (left, right Clip, err error) {
	minDur := 1.0 / float64(sampleRate)
	if t <= c.StartTime+minDur || t >= c.End()-minDur {
		return Clip{}, Clip{}, Errorf(ErrInvalidArgument, "split position %.3fs outside clip [%.3fs, %.3fs]", t, c.StartTime, c.End())
	}
	cut := t - c.StartTime
	left = c
	left.Duration = cut
	right = c
	right.ID = uuid.NewString()
	right.StartTime = t
	right.Offset = c.Offset + cut
	right.Duration = c.Duration - cut
	return left, right, nil
}

// CanMerge reports whether left and right can be merged back into one clip:
// they must refer to the same source, be adjacent on the timeline and be
// contiguous in the source, all within one millisecond.
func CanMerge(left, right Clip) error {
	if left.SourcePath != right.SourcePath {
		return Errorf(ErrInvalidArgument, "clips refer to different sources")
	}
	if math.Abs(right.StartTime-left.End()) > mergeTolerance {
		return Errorf(ErrInvalidArgument, "clips are not adjacent on the timeline")
	}
	if math.Abs(right.Offset-(left.Offset+left.Duration)) > mergeTolerance {
		return Errorf(ErrInvalidArgument, "clips are not contiguous in the source")
	}
	return nil
}

// MergeClips merges two mergeable clips into one clip covering both extents.
// The left clip's identity survives.
func MergeClips(left, right Clip) Clip {
	merged := left
	merged.Duration = left.Duration + right.Duration
	return merged
}
