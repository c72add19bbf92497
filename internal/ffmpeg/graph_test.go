package ffmpeg

import (
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func baseSpec(durations ...float64) GraphSpec {
	panels := make([]PanelInput, len(durations))
	for i, d := range durations {
		panels[i] = PanelInput{File: "panel.png", DurationSec: d}
	}
	return GraphSpec{
		Panels:        panels,
		Width:         1080,
		Height:        1920,
		FPS:           30,
		TransitionSec: 0.5,
		Output:        "out.mp4",
	}
}

func TestCompileCrossFadeDurations(t *testing.T) {
	spec := baseSpec(2.0, 1.5, 2.5)
	spec.DefaultTransition = "fade"

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	// each cross-fade overlaps the panels by its duration
	if c.TotalDurationSec != 5.0 {
		t.Errorf("total duration = %g, want 5.0", c.TotalDurationSec)
	}
	if !strings.Contains(c.FilterGraph, "xfade=transition=fade:duration=0.5:offset=1.5[m1]") {
		t.Errorf("first join missing or wrong offset:\n%s", c.FilterGraph)
	}
	if !strings.Contains(c.FilterGraph, "xfade=transition=fade:duration=0.5:offset=2.5[m2]") {
		t.Errorf("second join missing or wrong offset:\n%s", c.FilterGraph)
	}
}

func TestCompileHardCuts(t *testing.T) {
	spec := baseSpec(2.0, 1.0)
	spec.DefaultTransition = TransitionNone

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if c.TotalDurationSec != 3.0 {
		t.Errorf("total duration = %g, want 3.0", c.TotalDurationSec)
	}
	if !strings.Contains(c.FilterGraph, "concat=n=2:v=1:a=0") {
		t.Errorf("hard cut should use concat:\n%s", c.FilterGraph)
	}
	if strings.Contains(c.FilterGraph, "xfade") {
		t.Errorf("hard cut should not use xfade:\n%s", c.FilterGraph)
	}
}

func TestCompileUnknownTransitionFallsBack(t *testing.T) {
	spec := baseSpec(2.0, 2.0)
	spec.DefaultTransition = "spiral"

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("unknown transition should substitute, got error: %v", err)
	}
	if !strings.Contains(c.FilterGraph, "xfade=transition=fade") {
		t.Errorf("expected fallback to fade:\n%s", c.FilterGraph)
	}
}

func TestCompileUnknownTransitionStrict(t *testing.T) {
	spec := baseSpec(2.0, 2.0)
	spec.DefaultTransition = "spiral"
	spec.Strict = true

	if _, err := Compile(testLogger(), spec); err == nil {
		t.Fatal("strict mode should reject unknown transition names")
	}
}

func TestCompileTransitionMustFitPanels(t *testing.T) {
	spec := baseSpec(2.0, 1.0)
	spec.DefaultTransition = "fade"
	spec.TransitionSec = 1.0

	if _, err := Compile(testLogger(), spec); err == nil {
		t.Fatal("transition as long as a panel should be rejected")
	}
}

func TestCompilePerGapTransitions(t *testing.T) {
	spec := baseSpec(3.0, 3.0, 3.0)
	spec.Transitions = []string{"wipeleft", TransitionNone}

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !strings.Contains(c.FilterGraph, "xfade=transition=wipeleft") {
		t.Errorf("first gap should wipe:\n%s", c.FilterGraph)
	}
	if !strings.Contains(c.FilterGraph, "concat=n=2") {
		t.Errorf("second gap should hard cut:\n%s", c.FilterGraph)
	}
	// 3.0 + (3.0 - 0.5) + 3.0
	if c.TotalDurationSec != 8.5 {
		t.Errorf("total duration = %g, want 8.5", c.TotalDurationSec)
	}
}

func TestCompilePerGapCountMismatch(t *testing.T) {
	spec := baseSpec(2.0, 2.0, 2.0)
	spec.Transitions = []string{"fade"}

	if _, err := Compile(testLogger(), spec); err == nil {
		t.Fatal("wrong per-gap transition count should be rejected")
	}
}

func TestCompileOddSizeNormalized(t *testing.T) {
	spec := baseSpec(2.0)
	spec.Width = 1081
	spec.Height = 1919

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !strings.Contains(c.FilterGraph, "scale=1080:1918:") {
		t.Errorf("odd dimensions should round down to even:\n%s", c.FilterGraph)
	}
}

func TestCompileKenBurnsUpscales(t *testing.T) {
	spec := baseSpec(2.0)
	spec.DefaultKenBurns = KenBurnsIn
	spec.ZoomTo = 1.1

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !strings.Contains(c.FilterGraph, "scale=2160:3840:") {
		t.Errorf("zoompan panel should pre-upscale 2x:\n%s", c.FilterGraph)
	}
	if !strings.Contains(c.FilterGraph, "zoompan=z=") {
		t.Errorf("missing zoompan stage:\n%s", c.FilterGraph)
	}
}

func TestCompileAudioMapping(t *testing.T) {
	spec := baseSpec(2.0, 2.0)
	spec.AudioPath = "narration.wav"

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	argv := strings.Join(c.Args, " ")
	if !strings.Contains(argv, "-i narration.wav") {
		t.Errorf("audio input missing: %s", argv)
	}
	if !strings.Contains(argv, "-map 2:a") {
		t.Errorf("audio should map after the two panel inputs: %s", argv)
	}
	if !strings.Contains(argv, "-shortest") {
		t.Errorf("audio mux should clamp with -shortest: %s", argv)
	}
	if !strings.Contains(argv, "-c:a aac -b:a 192k") {
		t.Errorf("audio codec args missing: %s", argv)
	}
}

func TestCompileNoAudioNoShortest(t *testing.T) {
	c, err := Compile(testLogger(), baseSpec(2.0, 2.0))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	for _, a := range c.Args {
		if a == "-shortest" {
			t.Fatal("-shortest without an audio input")
		}
	}
}

func TestCompilePromptHints(t *testing.T) {
	spec := baseSpec(3.0, 3.0)
	spec.Panels[0].Prompt = "A locked off establishing shot of the harbor"
	spec.Panels[1].Prompt = "Hard cut to the captain, slow push-in on her face"

	c, err := Compile(testLogger(), spec)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	// "hard cut" cue on the incoming panel selects a concat join
	if !strings.Contains(c.FilterGraph, "concat=n=2") {
		t.Errorf("hard cut cue should select concat:\n%s", c.FilterGraph)
	}
	// "locked off" disables zoom for panel 0, "push-in" enables it for panel 1
	if !strings.Contains(c.FilterGraph, "[0:v]scale=1080:1920:") {
		t.Errorf("locked off panel should skip the 2x upscale:\n%s", c.FilterGraph)
	}
	if !strings.Contains(c.FilterGraph, "[1:v]scale=2160:3840:") {
		t.Errorf("push-in panel should zoom:\n%s", c.FilterGraph)
	}
}

func TestCompileRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*GraphSpec)
	}{
		{"no panels", func(s *GraphSpec) { s.Panels = nil }},
		{"zero fps", func(s *GraphSpec) { s.FPS = 0 }},
		{"zero width", func(s *GraphSpec) { s.Width = 0 }},
		{"no output", func(s *GraphSpec) { s.Output = "" }},
		{"negative duration", func(s *GraphSpec) { s.Panels[0].DurationSec = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := baseSpec(2.0, 2.0)
			tc.mutate(&spec)
			if _, err := Compile(testLogger(), spec); err == nil {
				t.Errorf("%s should be rejected", tc.name)
			}
		})
	}
}
