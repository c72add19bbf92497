package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/pkg/util"
)

// StillSpec describes one single-image-to-video encode.
type StillSpec struct {
	ImagePath   string
	Output      string
	DurationSec float64

	Width  int
	Height int
	FPS    int

	KenBurns string
	ZoomTo   float64
	FadeSec  float64

	CRF    int
	Preset string
}

// CompileStill builds the encoder invocation for one still clip: the
// Ken-Burns chain plus fade in/out and a silent stereo track trimmed to
// the exact video duration.
func CompileStill(logger zerolog.Logger, spec StillSpec) (*Compiled, error) {
	if spec.ImagePath == "" {
		return nil, fmt.Errorf("image path is required")
	}
	if spec.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if spec.DurationSec <= 0 {
		return nil, fmt.Errorf("clip duration must be positive, got %g", spec.DurationSec)
	}
	if spec.FPS <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %d", spec.FPS)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", spec.Width, spec.Height)
	}
	mode := spec.KenBurns
	if mode == "" {
		mode = KenBurnsIn
	}
	if !ValidKenBurns(mode) {
		logger.Warn().Str("mode", mode).Msg("unknown Ken-Burns mode, disabling zoom")
		mode = KenBurnsNone
	}
	zoomTo := spec.ZoomTo
	if zoomTo <= 1.0 {
		zoomTo = 1.12
	}

	width, height := spec.Width, spec.Height
	if width%2 != 0 {
		width--
	}
	if height%2 != 0 {
		height--
	}

	// fades never cover more than half the clip
	fade := spec.FadeSec
	if fade > spec.DurationSec/2 {
		fade = spec.DurationSec / 2
	}

	var stages []string
	if mode == KenBurnsNone {
		stages = append(stages,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height),
		)
	} else {
		stages = append(stages,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width*2, height*2),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width*2, height*2),
		)
	}
	stages = append(stages, "setsar=1", fmt.Sprintf("fps=%d", spec.FPS))
	if mode != KenBurnsNone {
		stages = append(stages, zoomPanFilter(mode, zoomTo, spec.DurationSec, spec.FPS, width, height))
	}
	stages = append(stages,
		fmt.Sprintf("trim=duration=%s", util.FormatSeconds(spec.DurationSec)),
		"setpts=PTS-STARTPTS",
	)
	if fade > 0 {
		stages = append(stages,
			fmt.Sprintf("fade=t=in:st=0:d=%s", util.FormatSeconds(fade)),
			fmt.Sprintf("fade=t=out:st=%s:d=%s",
				util.FormatSeconds(spec.DurationSec-fade), util.FormatSeconds(fade)),
		)
	}

	graph := fmt.Sprintf("[0:v]%s[v]", strings.Join(stages, ","))

	crf := spec.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	preset := spec.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	args := []string{
		"-loop", "1", "-t", util.FormatSeconds(spec.DurationSec), "-i", spec.ImagePath,
		"-f", "lavfi", "-t", util.FormatSeconds(spec.DurationSec),
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-filter_complex", graph,
		"-map", "[v]", "-map", "1:a",
		"-r", fmt.Sprintf("%d", spec.FPS),
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", crf),
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-c:a", DefaultAudioCodec,
		"-b:a", DefaultAudioRate,
		"-shortest",
		spec.Output,
	}

	return &Compiled{
		Args:             args,
		FilterGraph:      graph,
		TotalDurationSec: spec.DurationSec,
	}, nil
}
