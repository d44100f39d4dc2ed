// Package align decides how a narration clip and its silent video clip are
// reconciled: pairing by filename identifier, then choosing a time-alignment
// transform from the measured durations.
package align

import "fmt"

// DefaultStretchLimit is the largest audio-over-video gap, in seconds,
// absorbed by uniform time-scaling. Beyond it, slow motion becomes visually
// distracting and the gap is absorbed by freezing the final frame instead.
const DefaultStretchLimit = 4.0

// Transform is the alignment applied to the video track of one pairing.
type Transform string

const (
	// TransformNone leaves the video untouched. When the audio is shorter,
	// the excess video tail stays silent; shortening video to match
	// shorter audio is deliberately not performed.
	TransformNone Transform = "NONE"
	// TransformStretch linearly time-scales the whole video so its
	// duration matches the audio.
	TransformStretch Transform = "STRETCH"
	// TransformFreezePad holds the final video frame for the duration gap.
	TransformFreezePad Transform = "FREEZE_PAD"
)

// Decision is the chosen transform for one pairing, with its parameter and
// the two measured durations. Decisions are computed fresh per pairing and
// never cached across runs.
type Decision struct {
	// Transform is the chosen alignment.
	Transform Transform
	// Factor is the time-scale factor, set only for TransformStretch (> 1).
	Factor float64
	// PadSeconds is the freeze duration, set only for TransformFreezePad.
	PadSeconds float64
	// AudioDuration is the measured narration duration in seconds.
	AudioDuration float64
	// VideoDuration is the measured video duration in seconds.
	VideoDuration float64
}

// String describes the decision for logging.
func (d Decision) String() string {
	switch d.Transform {
	case TransformStretch:
		return fmt.Sprintf("STRETCH(%.4f)", d.Factor)
	case TransformFreezePad:
		return fmt.Sprintf("FREEZE_PAD(%.2fs)", d.PadSeconds)
	default:
		return "NONE"
	}
}

// Plan chooses the alignment transform for one pairing. Let
// diff = audioDuration - videoDuration:
//
//	diff <= 0            -> NONE
//	0 < diff <= limit    -> STRETCH(audio/video)
//	diff > limit         -> FREEZE_PAD(diff)
//
// A non-positive stretchLimit falls back to DefaultStretchLimit.
func Plan(audioDuration, videoDuration, stretchLimit float64) Decision {
	if stretchLimit <= 0 {
		stretchLimit = DefaultStretchLimit
	}

	d := Decision{
		Transform:     TransformNone,
		AudioDuration: audioDuration,
		VideoDuration: videoDuration,
	}

	diff := audioDuration - videoDuration
	switch {
	case diff <= 0:
		// Audio fits or is shorter; the silent video tail is left as-is.
	case diff <= stretchLimit:
		d.Transform = TransformStretch
		d.Factor = audioDuration / videoDuration
	default:
		d.Transform = TransformFreezePad
		d.PadSeconds = diff
	}

	return d
}
