package orchestrate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/internal/manifest"
	"github.com/kellan/panelmotion/internal/project"
	"github.com/kellan/panelmotion/internal/render"
	"github.com/kellan/panelmotion/pkg/util"
)

// Options control one orchestrator run.
type Options struct {
	// Force re-renders units whose record is already ready.
	Force bool
	// StopOnError aborts remaining units after the first failure; the
	// default is to continue and report.
	StopOnError bool
	// DryRun asks the provider for placeholders and leaves the
	// manifest untouched.
	DryRun bool
}

// Summary counts the outcome of a run.
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
}

// Orchestrator drives one provider across panels or chunks, one unit at a
// time. Rendering is strictly sequential: providers share rate-limited
// external capacity, and manifest writes must stay linearizable.
type Orchestrator struct {
	logger   zerolog.Logger
	provider render.Provider
	store    *manifest.Store
}

// New creates an orchestrator for one provider.
func New(logger zerolog.Logger, provider render.Provider, store *manifest.Store) *Orchestrator {
	return &Orchestrator{
		logger:   logger.With().Str("component", "orchestrate").Str("provider", provider.ID()).Logger(),
		provider: provider,
		store:    store,
	}
}

// RenderPanels drives the provider across every panel.
func (o *Orchestrator) RenderPanels(ctx context.Context, pctx *project.Context, m *manifest.Manifest, opts Options) (Summary, error) {
	units := make([]render.Unit, len(pctx.Panels))
	for i, p := range pctx.Panels {
		units[i] = render.Unit{
			ID:          p.ID,
			Index:       p.Index,
			ImagePath:   p.File,
			Prompt:      p.Prompt,
			DurationSec: p.DurationSec,
		}
	}
	return o.run(ctx, m, units, o.clipsDir(pctx), opts, nil)
}

// RenderChunks drives the provider across the chunk plan, keeping chunk
// status and history in step with the clip records.
func (o *Orchestrator) RenderChunks(ctx context.Context, pctx *project.Context, m *manifest.Manifest, opts Options) (Summary, error) {
	plan := m.PlanFor(o.provider.ID())
	if plan == nil || len(plan.Chunks) == 0 {
		return Summary{}, fmt.Errorf("no chunk plan for provider %s, run plan first", o.provider.ID())
	}

	byID := make(map[string]*manifest.Chunk, len(plan.Chunks))
	units := make([]render.Unit, len(plan.Chunks))
	for i, c := range plan.Chunks {
		byID[c.ID] = c
		units[i] = render.Unit{
			ID:          c.ID,
			Index:       c.Index,
			ImagePath:   seedImage(pctx, c.Index),
			Prompt:      c.Prompt,
			DurationSec: c.DurationSec,
		}
	}

	after := func(u render.Unit, res *render.Result, renderErr error) {
		c := byID[u.ID]
		if c == nil {
			return
		}
		if renderErr != nil {
			c.MarkFailed(o.provider.ID(), renderErr)
			return
		}
		c.MarkRendered(o.provider.ID(), res.VideoPath)
	}

	return o.run(ctx, m, units, o.clipsDir(pctx), opts, after)
}

func (o *Orchestrator) clipsDir(pctx *project.Context) string {
	return filepath.Join(pctx.OutputDir, "clips", o.provider.ID())
}

// seedImage pairs a chunk with the panel at the same position, when one
// exists, so image-capable providers get a visual anchor.
func seedImage(pctx *project.Context, index int) string {
	if index >= 0 && index < len(pctx.Panels) {
		return pctx.Panels[index].File
	}
	return ""
}

// run walks the units in order: skip ready records unless forced,
// otherwise render and durably record the outcome before moving on.
func (o *Orchestrator) run(ctx context.Context, m *manifest.Manifest, units []render.Unit, targetDir string, opts Options, after func(render.Unit, *render.Result, error)) (Summary, error) {
	var s Summary

	if !opts.DryRun {
		if err := util.EnsureDir(targetDir); err != nil {
			return s, fmt.Errorf("create clip dir %s: %w", targetDir, err)
		}
	}

	for _, u := range units {
		if rec := m.Record(u.ID, o.provider.ID()); rec != nil && rec.Status == manifest.ClipReady && !opts.Force {
			o.logger.Debug().Str("unit", u.ID).Msg("clip already ready, skipping")
			s.Skipped++
			continue
		}

		res, err := o.provider.Render(ctx, u, targetDir)

		if opts.DryRun {
			if err != nil {
				o.logger.Warn().Err(err).Str("unit", u.ID).Msg("dry run unit failed")
				s.Failed++
				continue
			}
			s.Completed++
			continue
		}

		if err != nil {
			s.Failed++
			o.logger.Error().
				Err(err).
				Str("unit", u.ID).
				Float64("duration_sec", u.DurationSec).
				Msg("render failed")

			m.SetRecord(u.ID, &manifest.ClipRecord{
				Status:      manifest.ClipFailed,
				ProviderID:  o.provider.ID(),
				Prompt:      u.Prompt,
				DurationSec: u.DurationSec,
				Error:       err.Error(),
			})
			if after != nil {
				after(u, nil, err)
			}
			if saveErr := o.store.Save(m); saveErr != nil {
				return s, fmt.Errorf("persist manifest after failure of %s: %w", u.ID, saveErr)
			}

			if opts.StopOnError {
				return s, fmt.Errorf("render %s: %w", u.ID, err)
			}
			continue
		}

		prompt := res.Prompt
		if prompt == "" {
			prompt = u.Prompt
		}
		m.SetRecord(u.ID, &manifest.ClipRecord{
			Status:        manifest.ClipReady,
			VideoPath:     res.VideoPath,
			AudioPath:     res.AudioPath,
			DurationSec:   res.DurationSec,
			ProviderID:    o.provider.ID(),
			Prompt:        prompt,
			OperationName: res.OperationName,
		})
		if after != nil {
			after(u, res, nil)
		}
		if err := o.store.Save(m); err != nil {
			return s, fmt.Errorf("persist manifest after %s: %w", u.ID, err)
		}
		s.Completed++
	}

	o.logger.Info().
		Int("completed", s.Completed).
		Int("skipped", s.Skipped).
		Int("failed", s.Failed).
		Msg("run finished")

	return s, nil
}
