package ffmpeg

import (
	"fmt"
	"math"
)

// Ken-Burns modes
const (
	KenBurnsNone = "none"
	KenBurnsIn   = "in"
	KenBurnsOut  = "out"
)

// ValidKenBurns reports whether a mode name is known.
func ValidKenBurns(mode string) bool {
	switch mode {
	case KenBurnsNone, KenBurnsIn, KenBurnsOut:
		return true
	}
	return false
}

// zoomPanFilter builds a zoompan stage for one still panel. Zoom is
// interpolated linearly from 1.0 to zoomTo (or the reverse) over the
// panel's frame count, with x/y recentering so the zoom stays optically
// centered. The input is expected to already be scaled up, which
// suppresses zoompan's integer-rounding jitter.
func zoomPanFilter(mode string, zoomTo, durationSec float64, fps, width, height int) string {
	frames := int(math.Round(durationSec * float64(fps)))
	if frames < 1 {
		frames = 1
	}
	inc := (zoomTo - 1.0) / float64(frames)

	center := "x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'"

	switch mode {
	case KenBurnsIn:
		return fmt.Sprintf("zoompan=z='min(1+%.6f*on,%.3f)':%s:d=1:s=%dx%d",
			inc, zoomTo, center, width, height)
	case KenBurnsOut:
		return fmt.Sprintf("zoompan=z='max(%.3f-%.6f*on,1.0)':%s:d=1:s=%dx%d",
			zoomTo, inc, center, width, height)
	}
	return ""
}
