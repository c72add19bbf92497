package plan

import (
	"regexp"
	"strings"
)

// turn is one speaker-attributed stretch of dialogue.
type turn struct {
	Speaker string
	Text    string
}

// speakerLabel matches a leading capitalized token followed by a colon,
// the conventional "Name: utterance" dialogue form.
var speakerLabel = regexp.MustCompile(`(?:^|\s)([A-Z][A-Za-z'’-]{0,24}):\s*`)

// stageDirections are label-like prefixes that mark narration framing,
// not a speaking character. They are stripped, never attributed.
var stageDirections = map[string]bool{
	"Lesson":   true,
	"Aside":    true,
	"Narrator": true,
	"Note":     true,
	"Caption":  true,
	"Moral":    true,
	"Tip":      true,
}

// detectTurns splits text into speaker-attributed turns. It returns nil
// when no real speaker labels are present (stage directions alone do not
// count), meaning the caller should treat the whole text as neutral
// narration. No text is dropped: narration before the first label and the
// content of stage-direction labels both come back as unattributed turns.
func detectTurns(text string) []turn {
	matches := speakerLabel.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	hasSpeaker := false
	for _, m := range matches {
		if !stageDirections[text[m[2]:m[3]]] {
			hasSpeaker = true
			break
		}
	}
	if !hasSpeaker {
		return nil
	}

	var turns []turn
	add := func(speaker, utterance string) {
		utterance = strings.TrimSpace(utterance)
		if utterance != "" {
			turns = append(turns, turn{Speaker: speaker, Text: utterance})
		}
	}

	add("", text[:matches[0][0]])

	for i, m := range matches {
		name := text[m[2]:m[3]]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		speaker := name
		if stageDirections[name] {
			speaker = ""
		}
		add(speaker, text[m[1]:end])
	}
	return turns
}

// rewriteUtterance turns a raw dialogue line into first-person declarative
// voiceover phrasing: stage-direction prefixes stripped, terminal
// punctuation guaranteed.
func rewriteUtterance(text string) string {
	return ensureTerminal(stripStageDirections(text))
}

// rewriteNeutral normalizes undirected text into third-person narration.
func rewriteNeutral(text string) string {
	return ensureTerminal(stripStageDirections(collapseWhitespace(text)))
}

func stripStageDirections(text string) string {
	s := strings.TrimSpace(text)
	for {
		idx := strings.Index(s, ":")
		if idx <= 0 {
			return s
		}
		label := strings.TrimSpace(s[:idx])
		if !stageDirections[label] {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
}

func ensureTerminal(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}
	runes := []rune(s)
	last := runes[len(runes)-1]
	if isTerminal(last) || isTrailing(last) {
		return s
	}
	return s + "."
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
