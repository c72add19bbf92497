package ffmpeg

import "strings"

// Heuristic cue matching against free-text panel prompts. Best effort
// only: inferred values fill gaps and never override explicit input.

var transitionCues = []struct {
	cue  string
	name string
}{
	{"hard cut", TransitionNone},
	{"smash cut", TransitionNone},
	{"wipe left", "wipeleft"},
	{"wipe right", "wiperight"},
	{"wipe up", "wipeup"},
	{"wipe down", "wipedown"},
	{"dissolve", "dissolve"},
	{"fade to black", "fadeblack"},
	{"fade to white", "fadewhite"},
	{"cross-fade", "fade"},
	{"crossfade", "fade"},
	{"fade", "fade"},
}

var kenBurnsCues = []struct {
	cue  string
	mode string
}{
	{"push-in", KenBurnsIn},
	{"push in", KenBurnsIn},
	{"zoom in", KenBurnsIn},
	{"zooms in", KenBurnsIn},
	{"slow zoom", KenBurnsIn},
	{"pull-back", KenBurnsOut},
	{"pull back", KenBurnsOut},
	{"zoom out", KenBurnsOut},
	{"zooms out", KenBurnsOut},
	{"locked off", KenBurnsNone},
	{"static shot", KenBurnsNone},
}

// inferTransition scans a panel prompt for transition language. Returns
// "" when nothing matches.
func inferTransition(prompt string) string {
	p := strings.ToLower(prompt)
	for _, c := range transitionCues {
		if strings.Contains(p, c.cue) {
			return c.name
		}
	}
	return ""
}

// inferKenBurns scans a panel prompt for camera-motion language. Returns
// "" when nothing matches.
func inferKenBurns(prompt string) string {
	p := strings.ToLower(prompt)
	for _, c := range kenBurnsCues {
		if strings.Contains(p, c.cue) {
			return c.mode
		}
	}
	return ""
}
