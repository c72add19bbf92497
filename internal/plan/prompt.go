package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kellan/panelmotion/internal/manifest"
	"github.com/kellan/panelmotion/internal/project"
	"github.com/kellan/panelmotion/pkg/util"
)

// buildPrompt synthesizes the generation prompt for one chunk.
func buildPrompt(c *manifest.Chunk, meta manifest.PlanMeta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cinematic vertical video clip, aspect ratio %s, at most %s seconds long.\n",
		meta.AspectRatio, util.FormatSeconds(meta.MaxDurationSec))

	if c.Speaker != "" {
		fmt.Fprintf(&b, "%s is on screen and delivers this line naturally, in first person: %q\n",
			c.Speaker, c.NarrationText)
	} else {
		fmt.Fprintf(&b, "A neutral off-screen voiceover reads: %q\n", c.NarrationText)
		b.WriteString("No character addresses the camera.\n")
	}

	b.WriteString("Do not render any on-screen text, captions, subtitles, or speech bubbles.\n")

	if meta.CharacterNotes != "" {
		fmt.Fprintf(&b, "Character continuity: %s\n", meta.CharacterNotes)
	}
	if meta.StyleNotes != "" {
		fmt.Fprintf(&b, "Visual style: %s\n", meta.StyleNotes)
	}

	return strings.TrimRight(b.String(), "\n")
}

// characterNotes flattens the declared character descriptions into one
// continuity line, sorted by name so re-planning is stable.
func characterNotes(meta project.Metadata) string {
	if len(meta.Characters) == 0 {
		return ""
	}
	names := make([]string, 0, len(meta.Characters))
	for name := range meta.Characters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s — %s", name, meta.Characters[name]))
	}
	return strings.Join(parts, "; ")
}

// styleNotes derives plan-wide style hints from project metadata.
func styleNotes(meta project.Metadata) string {
	var parts []string
	if meta.Style != "" {
		parts = append(parts, meta.Style)
	}
	if meta.Topic != "" {
		parts = append(parts, fmt.Sprintf("subject: %s", meta.Topic))
	}
	return strings.Join(parts, "; ")
}

// aspectRatio derives the plan aspect ratio from the declared frame size,
// falling back to the configured default.
func aspectRatio(meta project.Metadata, fallback string) string {
	if meta.Size == "" {
		return fallback
	}
	w, h, err := util.ParseSize(meta.Size)
	if err != nil {
		return fallback
	}
	switch {
	case h > w:
		return "9:16"
	case w > h:
		return "16:9"
	default:
		return "1:1"
	}
}
