package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/internal/ffmpeg"
)

// LocalID is the deterministic zoom/pan provider name.
const LocalID = "local"

// LocalOptions configure the local still-to-video renderer.
type LocalOptions struct {
	Width    int
	Height   int
	FPS      int
	KenBurns string
	ZoomTo   float64
	FadeSec  float64
	CRF      int
	Preset   string
}

// Local renders a clip from a single panel image in one synchronous
// encoder invocation.
type Local struct {
	logger zerolog.Logger
	exec   *ffmpeg.Executor
	opts   LocalOptions
}

// NewLocal creates the local provider.
func NewLocal(logger zerolog.Logger, exec *ffmpeg.Executor, opts LocalOptions) *Local {
	return &Local{
		logger: logger.With().Str("component", "render.local").Logger(),
		exec:   exec,
		opts:   opts,
	}
}

// ID implements Provider.
func (l *Local) ID() string { return LocalID }

// Render implements Provider.
func (l *Local) Render(ctx context.Context, unit Unit, targetDir string) (*Result, error) {
	if unit.ImagePath == "" {
		return nil, fmt.Errorf("unit %s has no source image", unit.ID)
	}

	out := filepath.Join(targetDir, unit.ID+".mp4")

	compiled, err := ffmpeg.CompileStill(l.logger, ffmpeg.StillSpec{
		ImagePath:   unit.ImagePath,
		Output:      out,
		DurationSec: unit.DurationSec,
		Width:       l.opts.Width,
		Height:      l.opts.Height,
		FPS:         l.opts.FPS,
		KenBurns:    l.opts.KenBurns,
		ZoomTo:      l.opts.ZoomTo,
		FadeSec:     l.opts.FadeSec,
		CRF:         l.opts.CRF,
		Preset:      l.opts.Preset,
	})
	if err != nil {
		return nil, fmt.Errorf("compile still clip for %s: %w", unit.ID, err)
	}

	if l.exec.DryRun() {
		l.logger.Info().
			Str("unit", unit.ID).
			Str("filter", compiled.FilterGraph).
			Msg("dry run, skipping encode")
		return &Result{VideoPath: out, DurationSec: unit.DurationSec, Placeholder: true}, nil
	}

	l.logger.Info().
		Str("unit", unit.ID).
		Float64("duration_sec", unit.DurationSec).
		Str("output", out).
		Msg("rendering zoom/pan clip")

	if err := l.exec.RenderGraph(ctx, compiled); err != nil {
		return nil, fmt.Errorf("render %s: %w", unit.ID, err)
	}

	return &Result{
		VideoPath:   out,
		DurationSec: unit.DurationSec,
	}, nil
}
