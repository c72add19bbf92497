package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/pkg/util"
)

// TransitionNone selects a hard concatenation instead of a cross-fade.
const TransitionNone = "none"

// DefaultTransition is substituted for unknown transition names.
const DefaultTransition = "fade"

// allowedTransitions is the xfade transition allow-list.
var allowedTransitions = map[string]bool{
	"fade":        true,
	"fadeblack":   true,
	"fadewhite":   true,
	"dissolve":    true,
	"wipeleft":    true,
	"wiperight":   true,
	"wipeup":      true,
	"wipedown":    true,
	"slideleft":   true,
	"slideright":  true,
	"smoothleft":  true,
	"smoothright": true,
	"circleopen":  true,
	"circleclose": true,
	"radial":      true,
	"pixelize":    true,
	"distance":    true,
}

// ValidTransition reports whether name is "none" or an allowed xfade.
func ValidTransition(name string) bool {
	return name == TransitionNone || allowedTransitions[name]
}

// PanelInput is one still image slot in the graph.
type PanelInput struct {
	File        string
	DurationSec float64
	Prompt      string // free-text cues for hint inference
}

// GraphSpec is the full input to the filter-graph compiler. Explicit
// per-gap/per-panel values win over prompt-derived hints, which win over
// the defaults.
type GraphSpec struct {
	Panels []PanelInput

	Width  int
	Height int
	FPS    int

	DefaultTransition string
	Transitions       []string // per-gap overrides; "" falls through
	TransitionSec     float64

	DefaultKenBurns string
	KenBurnsModes   []string // per-panel overrides; "" falls through
	ZoomTo          float64

	CRF       int
	Preset    string
	AudioPath string
	Output    string

	// Strict turns unknown transition/Ken-Burns names into errors
	// instead of warn-and-substitute.
	Strict bool
}

// Compiled is one ready-to-run encoder invocation.
type Compiled struct {
	Args             []string
	FilterGraph      string
	TotalDurationSec float64
}

// Compile deterministically turns a GraphSpec into a single encoder
// invocation: per-panel scale/pad/zoom chains, pairwise xfade or concat
// joins, and the output mapping.
func Compile(logger zerolog.Logger, spec GraphSpec) (*Compiled, error) {
	log := logger.With().Str("component", "graph").Logger()

	if len(spec.Panels) == 0 {
		return nil, fmt.Errorf("no panels to compile")
	}
	if spec.FPS <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %d", spec.FPS)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", spec.Width, spec.Height)
	}
	if spec.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if len(spec.Transitions) > 0 && len(spec.Transitions) != len(spec.Panels)-1 {
		return nil, fmt.Errorf("got %d per-gap transitions for %d gaps", len(spec.Transitions), len(spec.Panels)-1)
	}
	if len(spec.KenBurnsModes) > 0 && len(spec.KenBurnsModes) != len(spec.Panels) {
		return nil, fmt.Errorf("got %d Ken-Burns modes for %d panels", len(spec.KenBurnsModes), len(spec.Panels))
	}
	for i, p := range spec.Panels {
		if p.DurationSec <= 0 {
			return nil, fmt.Errorf("panel %d has non-positive duration %g", i, p.DurationSec)
		}
	}
	zoomTo := spec.ZoomTo
	if zoomTo <= 1.0 {
		zoomTo = 1.12
	}

	// yuv420p chroma subsampling needs even dimensions
	width, height := spec.Width, spec.Height
	if width%2 != 0 {
		width--
		log.Warn().Int("width", spec.Width).Msg("odd width, rounding down to even")
	}
	if height%2 != 0 {
		height--
		log.Warn().Int("height", spec.Height).Msg("odd height, rounding down to even")
	}

	transitions, err := resolveTransitions(log, spec)
	if err != nil {
		return nil, err
	}
	kenburns, err := resolveKenBurns(log, spec)
	if err != nil {
		return nil, err
	}

	// transition length must fit inside both adjacent panels
	for i, t := range transitions {
		if t == TransitionNone {
			continue
		}
		if spec.TransitionSec <= 0 {
			return nil, fmt.Errorf("transition duration must be positive for %q", t)
		}
		if spec.TransitionSec >= spec.Panels[i].DurationSec || spec.TransitionSec >= spec.Panels[i+1].DurationSec {
			return nil, fmt.Errorf("transition duration %gs does not fit between panels %d and %d",
				spec.TransitionSec, i, i+1)
		}
	}

	var chains []string
	for i, p := range spec.Panels {
		chains = append(chains, panelChain(i, p, kenburns[i], zoomTo, width, height, spec.FPS))
	}

	// chain panels pairwise, tracking the cumulative output duration
	final := "[p0]"
	cumulative := spec.Panels[0].DurationSec
	for i := 1; i < len(spec.Panels); i++ {
		next := fmt.Sprintf("[p%d]", i)
		out := fmt.Sprintf("[m%d]", i)
		d := spec.Panels[i].DurationSec

		if t := transitions[i-1]; t == TransitionNone {
			chains = append(chains, fmt.Sprintf("%s%sconcat=n=2:v=1:a=0%s", final, next, out))
			cumulative += d
		} else {
			offset := cumulative - spec.TransitionSec
			chains = append(chains, fmt.Sprintf("%s%sxfade=transition=%s:duration=%s:offset=%s%s",
				final, next, t,
				util.FormatSeconds(spec.TransitionSec),
				util.FormatSeconds(offset), out))
			cumulative += d - spec.TransitionSec
		}
		final = out
	}

	graph := strings.Join(chains, ";")

	var args []string
	for _, p := range spec.Panels {
		args = append(args, "-loop", "1", "-t", util.FormatSeconds(p.DurationSec), "-i", p.File)
	}
	audioIndex := len(spec.Panels)
	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath)
	}

	args = append(args, "-filter_complex", graph, "-map", final)
	if spec.AudioPath != "" {
		args = append(args,
			"-map", fmt.Sprintf("%d:a", audioIndex),
			"-c:a", DefaultAudioCodec,
			"-b:a", DefaultAudioRate,
			"-shortest",
		)
	}

	crf := spec.CRF
	if crf == 0 {
		crf = DefaultCRF
	}
	preset := spec.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	args = append(args,
		"-r", fmt.Sprintf("%d", spec.FPS),
		"-c:v", DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", crf),
		"-preset", preset,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		spec.Output,
	)

	log.Debug().
		Int("panels", len(spec.Panels)).
		Float64("total_sec", cumulative).
		Msg("filter graph compiled")

	return &Compiled{
		Args:             args,
		FilterGraph:      graph,
		TotalDurationSec: cumulative,
	}, nil
}

// panelChain builds the independent filter chain for one panel: scale to
// fit, letterbox pad, Ken-Burns (or a plain downscale), exact trim, and
// timestamp renormalization.
func panelChain(index int, p PanelInput, mode string, zoomTo float64, width, height, fps int) string {
	var stages []string

	if mode == KenBurnsNone {
		stages = append(stages,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width, height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width, height),
		)
	} else {
		// upscale before zoompan to suppress subpixel jitter
		stages = append(stages,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", width*2, height*2),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", width*2, height*2),
		)
	}
	stages = append(stages, "setsar=1", fmt.Sprintf("fps=%d", fps))
	if mode != KenBurnsNone {
		stages = append(stages, zoomPanFilter(mode, zoomTo, p.DurationSec, fps, width, height))
	}
	stages = append(stages,
		fmt.Sprintf("trim=duration=%s", util.FormatSeconds(p.DurationSec)),
		"setpts=PTS-STARTPTS",
	)

	return fmt.Sprintf("[%d:v]%s[p%d]", index, strings.Join(stages, ","), index)
}

// resolveTransitions picks the transition for every gap: explicit per-gap
// value, else a prompt hint from the incoming panel, else the default.
// Unknown names are substituted with a warning, or rejected under Strict.
func resolveTransitions(log zerolog.Logger, spec GraphSpec) ([]string, error) {
	def := spec.DefaultTransition
	if def == "" {
		def = DefaultTransition
	}

	out := make([]string, len(spec.Panels)-1)
	for i := range out {
		name := ""
		if len(spec.Transitions) > 0 {
			name = spec.Transitions[i]
		}
		if name == "" {
			name = inferTransition(spec.Panels[i+1].Prompt)
		}
		if name == "" {
			name = def
		}
		if !ValidTransition(name) {
			if spec.Strict {
				return nil, fmt.Errorf("unknown transition %q for gap %d", name, i)
			}
			log.Warn().
				Str("transition", name).
				Int("gap", i).
				Str("fallback", DefaultTransition).
				Msg("unknown transition, substituting")
			name = DefaultTransition
		}
		out[i] = name
	}
	return out, nil
}

// resolveKenBurns picks the zoom mode for every panel with the same
// precedence rules as transitions.
func resolveKenBurns(log zerolog.Logger, spec GraphSpec) ([]string, error) {
	def := spec.DefaultKenBurns
	if def == "" {
		def = KenBurnsNone
	}

	out := make([]string, len(spec.Panels))
	for i := range out {
		mode := ""
		if len(spec.KenBurnsModes) > 0 {
			mode = spec.KenBurnsModes[i]
		}
		if mode == "" {
			mode = inferKenBurns(spec.Panels[i].Prompt)
		}
		if mode == "" {
			mode = def
		}
		if !ValidKenBurns(mode) {
			if spec.Strict {
				return nil, fmt.Errorf("unknown Ken-Burns mode %q for panel %d", mode, i)
			}
			log.Warn().
				Str("mode", mode).
				Int("panel", i).
				Msg("unknown Ken-Burns mode, disabling zoom for panel")
			mode = KenBurnsNone
		}
		out[i] = mode
	}
	return out, nil
}

// RenderGraph runs a compiled invocation through the executor.
func (e *Executor) RenderGraph(ctx context.Context, c *Compiled) error {
	return e.Run(ctx, RunOptions{
		Args: c.Args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("rendering")
		},
	})
}
