package plan

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/internal/manifest"
	"github.com/kellan/panelmotion/internal/project"
)

// Options bound the chunking algorithm. The rate and floor are empirical
// defaults, not hard invariants, so callers can tune them.
type Options struct {
	MaxClipSec     float64
	MinClipSec     float64
	WordsPerSecond float64
	AspectRatio    string
}

// DefaultOptions returns the stock chunking parameters.
func DefaultOptions() Options {
	return Options{
		MaxClipSec:     8.0,
		MinClipSec:     3.0,
		WordsPerSecond: 2.6,
		AspectRatio:    "9:16",
	}
}

// Planner converts narration into a duration-bounded chunk plan.
type Planner struct {
	logger zerolog.Logger
	opts   Options
}

// New creates a planner.
func New(logger zerolog.Logger, opts Options) (*Planner, error) {
	if opts.MaxClipSec <= 0 {
		opts.MaxClipSec = DefaultOptions().MaxClipSec
	}
	if opts.MinClipSec <= 0 {
		opts.MinClipSec = DefaultOptions().MinClipSec
	}
	if opts.WordsPerSecond <= 0 {
		opts.WordsPerSecond = DefaultOptions().WordsPerSecond
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = DefaultOptions().AspectRatio
	}
	if opts.MaxClipSec < opts.MinClipSec {
		return nil, fmt.Errorf("max clip duration %gs is below the %gs floor", opts.MaxClipSec, opts.MinClipSec)
	}
	return &Planner{
		logger: logger.With().Str("component", "planner").Logger(),
		opts:   opts,
	}, nil
}

// Plan builds a chunk plan from the project's narration. When an existing
// plan is supplied, re-planning is idempotent: chunk text, durations,
// manual prompt edits, statuses, and render history are preserved for
// chunks whose narration is unchanged; only derived metadata and
// auto-sourced prompts refresh.
func (p *Planner) Plan(pctx *project.Context, existing *manifest.ChunkPlan) (*manifest.ChunkPlan, error) {
	segments, err := sourceSegments(pctx)
	if err != nil {
		return nil, err
	}

	meta := manifest.PlanMeta{
		MaxDurationSec: p.opts.MaxClipSec,
		AspectRatio:    aspectRatio(pctx.Metadata, p.opts.AspectRatio),
		CharacterNotes: characterNotes(pctx.Metadata),
		StyleNotes:     styleNotes(pctx.Metadata),
	}

	var chunks []*manifest.Chunk
	for _, seg := range segments {
		chunks = append(chunks, p.chunkSegment(seg)...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("narration produced no chunks")
	}

	for i, c := range chunks {
		c.ID = fmt.Sprintf("chunk-%02d", i+1)
		c.Index = i
		c.Status = manifest.ChunkPending
		c.PromptSource = manifest.PromptAuto
	}

	out := &manifest.ChunkPlan{Meta: meta, Chunks: chunks}
	if existing != nil {
		p.merge(out, existing)
	}

	for _, c := range out.Chunks {
		if c.PromptSource == manifest.PromptAuto {
			c.Prompt = buildPrompt(c, out.Meta)
		}
	}
	out.Recompute()

	p.logger.Info().
		Int("chunks", len(out.Chunks)).
		Float64("total_sec", out.Meta.TotalDurationSec).
		Str("aspect", out.Meta.AspectRatio).
		Msg("chunk plan ready")

	return out, nil
}

// sourceSegments prefers structured narration, then raw text split on
// blank lines, then the project summary or topic as a single segment.
func sourceSegments(pctx *project.Context) ([]project.Segment, error) {
	if len(pctx.Narration.Segments) > 0 {
		segs := make([]project.Segment, len(pctx.Narration.Segments))
		copy(segs, pctx.Narration.Segments)
		for i := range segs {
			if segs[i].ID == "" {
				segs[i].ID = fmt.Sprintf("seg-%02d", i+1)
			}
		}
		return segs, nil
	}

	if strings.TrimSpace(pctx.Narration.Raw) != "" {
		var segs []project.Segment
		for _, block := range splitBlocks(pctx.Narration.Raw) {
			segs = append(segs, project.Segment{
				ID:   fmt.Sprintf("seg-%02d", len(segs)+1),
				Text: block,
			})
		}
		return segs, nil
	}

	// single-chunk fallback rather than a planning failure
	if text := strings.TrimSpace(pctx.Metadata.Summary); text != "" {
		return []project.Segment{{ID: "seg-01", Text: text}}, nil
	}
	if text := strings.TrimSpace(pctx.Metadata.Topic); text != "" {
		return []project.Segment{{ID: "seg-01", Text: text}}, nil
	}
	return nil, fmt.Errorf("project has no narration, summary, or topic to plan from")
}

func splitBlocks(raw string) []string {
	var blocks []string
	for _, block := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// chunkSegment does the duration-bounded split of one segment, then
// attributes speakers within each piece.
func (p *Planner) chunkSegment(seg project.Segment) []*manifest.Chunk {
	pieces := p.packSentences(seg.Text)

	var spoken []turn
	for _, piece := range pieces {
		turns := detectTurns(piece)
		if len(turns) == 0 {
			speaker := seg.Speaker
			text := rewriteNeutral(piece)
			if speaker != "" {
				text = rewriteUtterance(piece)
			}
			spoken = append(spoken, turn{Speaker: speaker, Text: text})
			continue
		}
		for _, t := range turns {
			spoken = append(spoken, turn{Speaker: t.Speaker, Text: rewriteUtterance(t.Text)})
		}
	}

	// a turn can itself exceed the ceiling once re-estimated
	var bounded []turn
	for _, t := range spoken {
		words := strings.Fields(t.Text)
		if len(words) <= p.maxWords() {
			bounded = append(bounded, t)
			continue
		}
		for _, piece := range wrapWords(words, p.maxWords()) {
			bounded = append(bounded, turn{Speaker: t.Speaker, Text: ensureTerminal(strings.Join(piece, " "))})
		}
	}

	chunks := make([]*manifest.Chunk, 0, len(bounded))
	for i, t := range bounded {
		words := len(strings.Fields(t.Text))
		chunks = append(chunks, &manifest.Chunk{
			NarrationText: t.Text,
			WordCount:     words,
			Speaker:       t.Speaker,
			DurationSec:   p.estimate(words),
			Source: manifest.ChunkSource{
				SegmentID:  seg.ID,
				Part:       i + 1,
				TotalParts: len(bounded),
			},
		})
	}
	return chunks
}

// packSentences greedily fills a sentence buffer up to the duration
// ceiling. A single sentence that alone exceeds the ceiling is word
// wrapped into sub-pieces instead.
func (p *Planner) packSentences(text string) []string {
	maxWords := p.maxWords()

	var out []string
	var buf []string
	bufWords := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, " "))
			buf = nil
			bufWords = 0
		}
	}

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		if len(words) > maxWords {
			flush()
			for _, piece := range wrapWords(words, maxWords) {
				out = append(out, strings.Join(piece, " "))
			}
			continue
		}
		if bufWords+len(words) > maxWords {
			flush()
		}
		buf = append(buf, sentence)
		bufWords += len(words)
	}
	flush()
	return out
}

func (p *Planner) maxWords() int {
	n := int(math.Floor(p.opts.MaxClipSec * p.opts.WordsPerSecond))
	if n < 1 {
		n = 1
	}
	return n
}

// estimate converts a word count into a clip duration, clamped into
// [MinClipSec, MaxClipSec]. Short chunks widen to the floor rather than
// ever exceeding the ceiling.
func (p *Planner) estimate(words int) float64 {
	sec := float64(words) / p.opts.WordsPerSecond
	if sec < p.opts.MinClipSec {
		return p.opts.MinClipSec
	}
	if sec > p.opts.MaxClipSec {
		return p.opts.MaxClipSec
	}
	return sec
}

// merge carries operator state from an existing plan onto freshly planned
// chunks whose narration is unchanged.
func (p *Planner) merge(fresh *manifest.ChunkPlan, existing *manifest.ChunkPlan) {
	for i, c := range fresh.Chunks {
		if i >= len(existing.Chunks) {
			break
		}
		old := existing.Chunks[i]
		if old.NarrationText != c.NarrationText || old.Speaker != c.Speaker {
			continue
		}
		c.Status = old.Status
		c.History = old.History
		c.DurationSec = old.DurationSec
		if old.PromptSource == manifest.PromptManual {
			c.Prompt = old.Prompt
			c.PromptSource = manifest.PromptManual
		}
	}
}
