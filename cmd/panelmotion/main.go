package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kellan/panelmotion/internal/config"
	"github.com/kellan/panelmotion/internal/ffmpeg"
	"github.com/kellan/panelmotion/internal/logging"
	"github.com/kellan/panelmotion/internal/manifest"
	"github.com/kellan/panelmotion/internal/orchestrate"
	"github.com/kellan/panelmotion/internal/plan"
	"github.com/kellan/panelmotion/internal/project"
	"github.com/kellan/panelmotion/internal/render"
	"github.com/kellan/panelmotion/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "panelmotion",
	Short: "panelmotion - comic panels to vertical video",
	Long:  "Assembles a short vertical video from still panel images and a narration script.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./panelmotion.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(clipsCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}

// ---- build -----------------------------------------------------------

var buildFlags struct {
	input         string
	out           string
	size          string
	fps           int
	duration      float64
	durations     string
	transition    string
	transitions   string
	transDuration float64
	kenburns      string
	zoomTo        float64
	crf           int
	preset        string
	audio         string
	dryRun        bool
	strict        bool
	noStrict      bool
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Render the final video from panel stills in one encoder pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		f := buildFlags
		if f.input == "" {
			return fmt.Errorf("--input is required")
		}
		if !cmd.Flags().Changed("size") {
			f.size = cfg.Video.Size
		}
		if !cmd.Flags().Changed("fps") {
			f.fps = cfg.Video.FPS
		}
		if !cmd.Flags().Changed("duration") {
			f.duration = cfg.Video.PanelDurationSec
		}
		if !cmd.Flags().Changed("transition") {
			f.transition = cfg.Video.Transition
		}
		if !cmd.Flags().Changed("trans-duration") {
			f.transDuration = cfg.Video.TransitionSec
		}
		if !cmd.Flags().Changed("kenburns") {
			f.kenburns = cfg.Video.KenBurns
		}
		if !cmd.Flags().Changed("zoom-to") {
			f.zoomTo = cfg.Video.ZoomTo
		}
		if !cmd.Flags().Changed("crf") {
			f.crf = cfg.Video.CRF
		}
		if !cmd.Flags().Changed("preset") {
			f.preset = cfg.Video.Preset
		}

		// config sets the baseline; either flag overrides it
		strict := cfg.Video.Strict
		if f.strict {
			strict = true
		}
		if f.noStrict {
			strict = false
		}

		pctx, err := project.Load(f.input, f.duration)
		if err != nil {
			return err
		}

		size := f.size
		if !cmd.Flags().Changed("size") && pctx.Metadata.Size != "" {
			size = pctx.Metadata.Size
		}
		width, height, err := util.ParseSize(size)
		if err != nil {
			return err
		}

		panels := make([]ffmpeg.PanelInput, len(pctx.Panels))
		for i, p := range pctx.Panels {
			panels[i] = ffmpeg.PanelInput{
				File:        p.File,
				DurationSec: p.DurationSec,
				Prompt:      p.Prompt,
			}
		}

		if f.durations != "" {
			values, err := util.ParseSecondsCSV(f.durations)
			if err != nil {
				return err
			}
			if len(values) != len(panels) {
				return fmt.Errorf("got %d durations for %d panels", len(values), len(panels))
			}
			for i, v := range values {
				panels[i].DurationSec = v
			}
		}

		var perGap []string
		if f.transitions != "" {
			perGap = splitCSV(f.transitions)
			if len(perGap) != len(panels)-1 {
				return fmt.Errorf("got %d transitions for %d gaps", len(perGap), len(panels)-1)
			}
		}

		defaultKB := f.kenburns
		var perPanelKB []string
		if strings.Contains(f.kenburns, ",") {
			defaultKB = ""
			perPanelKB = splitCSV(f.kenburns)
			if len(perPanelKB) != len(panels) {
				return fmt.Errorf("got %d Ken-Burns modes for %d panels", len(perPanelKB), len(panels))
			}
		}

		audio := f.audio
		if audio == "" {
			audio = pctx.Narration.AudioFile
		}

		out := f.out
		if out == "" {
			out = filepath.Join(pctx.OutputDir, "video.mp4")
		}
		if !f.dryRun {
			if err := util.EnsureDir(filepath.Dir(out)); err != nil {
				return err
			}
		}

		compiled, err := ffmpeg.Compile(log.Logger, ffmpeg.GraphSpec{
			Panels:            panels,
			Width:             width,
			Height:            height,
			FPS:               f.fps,
			DefaultTransition: f.transition,
			Transitions:       perGap,
			TransitionSec:     f.transDuration,
			DefaultKenBurns:   defaultKB,
			KenBurnsModes:     perPanelKB,
			ZoomTo:            f.zoomTo,
			CRF:               f.crf,
			Preset:            f.preset,
			AudioPath:         audio,
			Output:            out,
			Strict:            strict,
		})
		if err != nil {
			return err
		}

		if f.dryRun {
			fmt.Println("ffmpeg " + strings.Join(compiled.Args, " "))
			fmt.Println()
			fmt.Println("filter graph:")
			fmt.Println(strings.ReplaceAll(compiled.FilterGraph, ";", ";\n"))
			return nil
		}

		cfgApp := config.FromContext(cmd.Context())
		exec, err := ffmpeg.New(log.Logger, cfgApp.FFmpeg.Threads)
		if err != nil {
			return err
		}
		if err := exec.RenderGraph(cmd.Context(), compiled); err != nil {
			return err
		}

		cliLog := logging.WithComponent("cli")
		cliLog.Info().
			Str("output", out).
			Float64("duration_sec", compiled.TotalDurationSec).
			Msg("video rendered")
		return nil
	},
}

func init() {
	fl := buildCmd.Flags()
	fl.StringVarP(&buildFlags.input, "input", "i", "", "project directory")
	fl.StringVarP(&buildFlags.out, "out", "o", "", "output file (default: <project>/output/video.mp4)")
	fl.StringVar(&buildFlags.size, "size", "1080x1920", "target size WxH")
	fl.IntVar(&buildFlags.fps, "fps", 30, "frame rate")
	fl.Float64Var(&buildFlags.duration, "duration", 4.0, "default per-panel duration in seconds")
	fl.StringVar(&buildFlags.durations, "durations", "", "per-panel durations, CSV")
	fl.StringVar(&buildFlags.transition, "transition", "fade", "default transition name")
	fl.StringVar(&buildFlags.transitions, "transitions", "", "per-gap transitions, CSV")
	fl.Float64Var(&buildFlags.transDuration, "trans-duration", 0.5, "transition length in seconds")
	fl.StringVar(&buildFlags.kenburns, "kenburns", "in", "Ken-Burns mode (none|in|out), global or per-panel CSV")
	fl.Float64Var(&buildFlags.zoomTo, "zoom-to", 1.12, "Ken-Burns zoom target factor")
	fl.IntVar(&buildFlags.crf, "crf", 21, "H.264 quality (lower is better)")
	fl.StringVar(&buildFlags.preset, "preset", "medium", "x264 preset")
	fl.StringVar(&buildFlags.audio, "audio", "", "narration audio to mux (default: <project>/narration.wav)")
	fl.BoolVar(&buildFlags.dryRun, "dry-run", false, "print the encoder invocation without running it")
	fl.BoolVar(&buildFlags.strict, "strict", false, "treat unknown transition/Ken-Burns names as errors")
	fl.BoolVar(&buildFlags.noStrict, "no-strict", false, "substitute unknown names with a warning even when config enables strict")
}

// ---- plan ------------------------------------------------------------

var planFlags struct {
	input       string
	provider    string
	maxDuration float64
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Create or refresh the narration chunk plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pctx, err := project.Load(planFlags.input, cfg.Video.PanelDurationSec)
		if err != nil {
			return err
		}

		maxSec := planFlags.maxDuration
		if !cmd.Flags().Changed("max-duration") {
			maxSec = cfg.Plan.MaxClipSec
		}

		planner, err := plan.New(log.Logger, plan.Options{
			MaxClipSec:     maxSec,
			MinClipSec:     cfg.Plan.MinClipSec,
			WordsPerSecond: cfg.Plan.WordsPerSecond,
			AspectRatio:    cfg.Plan.AspectRatio,
		})
		if err != nil {
			return err
		}

		store := manifest.NewStore(pctx.OutputDir)
		m, err := store.Load()
		if err != nil {
			return err
		}

		p, err := planner.Plan(pctx, m.PlanFor(planFlags.provider))
		if err != nil {
			return err
		}
		m.SetPlan(planFlags.provider, p)
		if err := store.Save(m); err != nil {
			return err
		}

		for _, c := range p.Chunks {
			speaker := c.Speaker
			if speaker == "" {
				speaker = "-"
			}
			fmt.Printf("%s  %6.2fs  [%s]  %-10s  %s\n",
				c.ID, c.DurationSec, c.Status, speaker, c.NarrationText)
		}
		return nil
	},
}

var planEditFlags struct {
	input    string
	provider string
	chunk    string
	prompt   string
	duration float64
}

var planEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit one chunk's prompt or target duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withChunk(cmd, planEditFlags.input, planEditFlags.provider, planEditFlags.chunk,
			func(p *manifest.ChunkPlan, c *manifest.Chunk) error {
				if cmd.Flags().Changed("prompt") {
					c.SetPrompt(planEditFlags.prompt)
				}
				if cmd.Flags().Changed("duration") {
					if err := c.SetDuration(planEditFlags.duration); err != nil {
						return err
					}
				}
				p.Recompute()
				return nil
			})
	},
}

var planApproveFlags struct {
	input    string
	provider string
	chunk    string
	undo     bool
}

var planApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve (or un-approve) a rendered chunk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withChunk(cmd, planApproveFlags.input, planApproveFlags.provider, planApproveFlags.chunk,
			func(p *manifest.ChunkPlan, c *manifest.Chunk) error {
				if planApproveFlags.undo {
					c.Unapprove()
					return nil
				}
				return c.Approve()
			})
	},
}

// withChunk loads the manifest, applies fn to one chunk, and persists.
func withChunk(cmd *cobra.Command, input, provider, chunkID string, fn func(*manifest.ChunkPlan, *manifest.Chunk) error) error {
	cfg := config.FromContext(cmd.Context())

	pctx, err := project.Load(input, cfg.Video.PanelDurationSec)
	if err != nil {
		return err
	}
	store := manifest.NewStore(pctx.OutputDir)
	m, err := store.Load()
	if err != nil {
		return err
	}
	p := m.PlanFor(provider)
	if p == nil {
		return fmt.Errorf("no chunk plan for provider %s", provider)
	}
	for _, c := range p.Chunks {
		if c.ID == chunkID {
			if err := fn(p, c); err != nil {
				return err
			}
			return store.Save(m)
		}
	}
	return fmt.Errorf("chunk %s not found in plan for %s", chunkID, provider)
}

func init() {
	fl := planCmd.Flags()
	fl.StringVarP(&planFlags.input, "input", "i", "", "project directory")
	fl.StringVar(&planFlags.provider, "provider", render.VeoID, "render provider the plan targets")
	fl.Float64Var(&planFlags.maxDuration, "max-duration", 8.0, "maximum clip duration in seconds")
	_ = planCmd.MarkFlagRequired("input")

	fe := planEditCmd.Flags()
	fe.StringVarP(&planEditFlags.input, "input", "i", "", "project directory")
	fe.StringVar(&planEditFlags.provider, "provider", render.VeoID, "render provider")
	fe.StringVar(&planEditFlags.chunk, "chunk", "", "chunk id (e.g. chunk-02)")
	fe.StringVar(&planEditFlags.prompt, "prompt", "", "replacement prompt")
	fe.Float64Var(&planEditFlags.duration, "duration", 0, "replacement target duration in seconds")
	_ = planEditCmd.MarkFlagRequired("input")
	_ = planEditCmd.MarkFlagRequired("chunk")

	fa := planApproveCmd.Flags()
	fa.StringVarP(&planApproveFlags.input, "input", "i", "", "project directory")
	fa.StringVar(&planApproveFlags.provider, "provider", render.VeoID, "render provider")
	fa.StringVar(&planApproveFlags.chunk, "chunk", "", "chunk id")
	fa.BoolVar(&planApproveFlags.undo, "undo", false, "drop approval instead")
	_ = planApproveCmd.MarkFlagRequired("input")
	_ = planApproveCmd.MarkFlagRequired("chunk")

	planCmd.AddCommand(planEditCmd)
	planCmd.AddCommand(planApproveCmd)
}

// ---- clips -----------------------------------------------------------

var clipsFlags struct {
	input       string
	provider    string
	chunks      bool
	force       bool
	stopOnError bool
	dryRun      bool
}

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Generate per-panel or per-chunk clips with a render provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pctx, err := project.Load(clipsFlags.input, cfg.Video.PanelDurationSec)
		if err != nil {
			return err
		}

		provider, err := buildProvider(clipsFlags.provider, cfg, pctx, clipsFlags.dryRun)
		if err != nil {
			return err
		}

		store := manifest.NewStore(pctx.OutputDir)
		m, err := store.Load()
		if err != nil {
			return err
		}

		orch := orchestrate.New(log.Logger, provider, store)
		opts := orchestrate.Options{
			Force:       clipsFlags.force,
			StopOnError: clipsFlags.stopOnError,
			DryRun:      clipsFlags.dryRun,
		}

		var summary orchestrate.Summary
		if clipsFlags.chunks {
			summary, err = orch.RenderChunks(cmd.Context(), pctx, m, opts)
		} else {
			summary, err = orch.RenderPanels(cmd.Context(), pctx, m, opts)
		}
		if err != nil {
			return err
		}

		fmt.Printf("completed %d, skipped %d, failed %d\n",
			summary.Completed, summary.Skipped, summary.Failed)
		if summary.Failed > 0 {
			return fmt.Errorf("%d unit(s) failed", summary.Failed)
		}
		return nil
	},
}

func buildProvider(name string, cfg *config.Config, pctx *project.Context, dryRun bool) (render.Provider, error) {
	switch name {
	case render.LocalID:
		size := cfg.Video.Size
		if pctx.Metadata.Size != "" {
			size = pctx.Metadata.Size
		}
		width, height, err := util.ParseSize(size)
		if err != nil {
			return nil, err
		}
		exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
		if err != nil {
			return nil, err
		}
		exec.SetDryRun(dryRun)
		return render.NewLocal(log.Logger, exec, render.LocalOptions{
			Width:    width,
			Height:   height,
			FPS:      cfg.Video.FPS,
			KenBurns: cfg.Video.KenBurns,
			ZoomTo:   cfg.Video.ZoomTo,
			FadeSec:  cfg.Video.TransitionSec,
			CRF:      cfg.Video.CRF,
			Preset:   cfg.Video.Preset,
		}), nil
	case render.VeoID:
		return render.NewVeo(log.Logger, render.VeoOptions{
			BaseURL:        cfg.Remote.BaseURL,
			APIKey:         cfg.Remote.APIKey,
			Model:          cfg.Remote.Model,
			AspectRatio:    cfg.Plan.AspectRatio,
			Resolution:     cfg.Remote.Resolution,
			PollInterval:   cfg.Remote.PollInterval(),
			Timeout:        cfg.Remote.Timeout(),
			DiagnosticsDir: filepath.Join(pctx.OutputDir, "diagnostics"),
			DryRun:         dryRun,
		}), nil
	default:
		return nil, render.UnknownProviderError(name)
	}
}

func init() {
	fl := clipsCmd.Flags()
	fl.StringVarP(&clipsFlags.input, "input", "i", "", "project directory")
	fl.StringVar(&clipsFlags.provider, "provider", render.LocalID, "render provider (local|veo)")
	fl.BoolVar(&clipsFlags.chunks, "chunks", false, "render narration chunks instead of panels")
	fl.BoolVar(&clipsFlags.force, "force", false, "re-render units whose clip is already ready")
	fl.BoolVar(&clipsFlags.stopOnError, "stop-on-error", false, "abort remaining units after the first failure")
	fl.BoolVar(&clipsFlags.dryRun, "dry-run", false, "no external calls, no manifest writes")
	_ = clipsCmd.MarkFlagRequired("input")
}

// ---- assemble --------------------------------------------------------

var assembleFlags struct {
	input    string
	provider string
	out      string
	reencode bool
}

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Concatenate already-rendered clips into the final video",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pctx, err := project.Load(assembleFlags.input, cfg.Video.PanelDurationSec)
		if err != nil {
			return err
		}
		store := manifest.NewStore(pctx.OutputDir)
		m, err := store.Load()
		if err != nil {
			return err
		}

		inputs, err := readyClipPaths(pctx, m, assembleFlags.provider)
		if err != nil {
			return err
		}

		out := assembleFlags.out
		if out == "" {
			out = filepath.Join(pctx.OutputDir, "video.mp4")
		}
		if err := util.EnsureDir(filepath.Dir(out)); err != nil {
			return err
		}

		exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
		if err != nil {
			return err
		}
		if err := exec.Concat(cmd.Context(), ffmpeg.ConcatOptions{
			Inputs:   inputs,
			Output:   out,
			ReEncode: assembleFlags.reencode,
			CRF:      cfg.Video.CRF,
		}); err != nil {
			return err
		}

		cliLog := logging.WithComponent("cli")
		cliLog.Info().Str("output", out).Int("clips", len(inputs)).Msg("assembled")
		return nil
	},
}

// readyClipPaths collects clip files in plan order when a chunk plan
// exists, panel order otherwise. Units without a ready clip are an error:
// assembling a partial video silently would hide missing renders.
func readyClipPaths(pctx *project.Context, m *manifest.Manifest, providerID string) ([]string, error) {
	var unitIDs []string
	if p := m.PlanFor(providerID); p != nil && len(p.Chunks) > 0 {
		for _, c := range p.Chunks {
			unitIDs = append(unitIDs, c.ID)
		}
	} else {
		for _, p := range pctx.Panels {
			unitIDs = append(unitIDs, p.ID)
		}
	}

	var inputs []string
	var missing []string
	for _, id := range unitIDs {
		rec := m.Record(id, providerID)
		if rec == nil || rec.Status != manifest.ClipReady || rec.VideoPath == "" {
			missing = append(missing, id)
			continue
		}
		inputs = append(inputs, rec.VideoPath)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("no ready clip for %s under provider %s, run clips first",
			strings.Join(missing, ", "), providerID)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("nothing to assemble for provider %s", providerID)
	}
	return inputs, nil
}

func init() {
	fl := assembleCmd.Flags()
	fl.StringVarP(&assembleFlags.input, "input", "i", "", "project directory")
	fl.StringVar(&assembleFlags.provider, "provider", render.LocalID, "render provider whose clips to assemble")
	fl.StringVarP(&assembleFlags.out, "out", "o", "", "output file (default: <project>/output/video.mp4)")
	fl.BoolVar(&assembleFlags.reencode, "reencode", true, "re-encode instead of stream copy")
	_ = assembleCmd.MarkFlagRequired("input")
}

// ---- probe -----------------------------------------------------------

var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "Print media info for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
		if err != nil {
			return err
		}
		info, err := exec.ProbeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("file:     %s\n", info.FilePath)
		fmt.Printf("duration: %s\n", util.FormatDuration(info.Duration))
		fmt.Printf("size:     %dx%d @ %.3g fps\n", info.Width, info.Height, info.FPS)
		fmt.Printf("video:    %s\n", info.VideoCodec)
		if info.HasAudio {
			fmt.Printf("audio:    %s\n", info.AudioCodec)
		}
		return nil
	},
}

// ---- config ----------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to ./panelmotion.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "panelmotion.yaml"
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.FromContext(cmd.Context()).Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
