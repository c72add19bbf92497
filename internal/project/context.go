package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kellan/panelmotion/pkg/util"
)

// Metadata mirrors the project's metadata.json.
type Metadata struct {
	Topic      string            `json:"topic"`
	Summary    string            `json:"summary"`
	Size       string            `json:"size,omitempty"`
	Style      string            `json:"style,omitempty"`
	Characters map[string]string `json:"characters,omitempty"`
	Panels     []PanelMeta       `json:"panels,omitempty"`
}

// PanelMeta is the declared description of one panel.
type PanelMeta struct {
	File   string `json:"file"`
	Prompt string `json:"prompt,omitempty"`
}

// Panel is one resolved still image, in display order.
type Panel struct {
	ID          string
	Index       int
	File        string
	Prompt      string
	DurationSec float64
}

// DurationSource records where per-panel durations came from.
type DurationSource string

const (
	DurationsFromList    DurationSource = "list"
	DurationsFromDefault DurationSource = "default"
)

// Durations holds the per-panel duration list, aligned to Panels.
type Durations struct {
	Source DurationSource
	Values []float64
}

// Segment is one structured narration segment from narration.json.
type Segment struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Narration holds whatever narration material the project provides.
type Narration struct {
	Raw       string
	Segments  []Segment
	AudioFile string
}

// Context is the immutable view of one project directory. Built once per
// run and passed by reference; loaders never mutate it afterwards.
type Context struct {
	Dir       string
	OutputDir string
	Metadata  Metadata
	Panels    []Panel
	Durations Durations
	Narration Narration
}

// Load reads a project directory into a Context. defaultDuration is used
// for any panel without a list.txt override.
func Load(dir string, defaultDuration float64) (*Context, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project directory not found: %s", dir)
	}
	if defaultDuration <= 0 {
		return nil, fmt.Errorf("default panel duration must be positive, got %g", defaultDuration)
	}

	meta, err := loadMetadata(abs)
	if err != nil {
		return nil, err
	}

	panels, err := resolvePanels(abs, meta)
	if err != nil {
		return nil, err
	}

	durations, err := resolveDurations(abs, panels, defaultDuration)
	if err != nil {
		return nil, err
	}
	if len(panels) != len(durations.Values) {
		return nil, fmt.Errorf("panel/duration count mismatch: %d panels, %d durations",
			len(panels), len(durations.Values))
	}
	for i := range panels {
		panels[i].DurationSec = durations.Values[i]
	}

	narration, err := loadNarration(abs)
	if err != nil {
		return nil, err
	}

	return &Context{
		Dir:       abs,
		OutputDir: filepath.Join(abs, "output"),
		Metadata:  meta,
		Panels:    panels,
		Durations: durations,
		Narration: narration,
	}, nil
}

func loadMetadata(dir string) (Metadata, error) {
	path := filepath.Join(dir, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata.json: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata.json: %w", err)
	}
	return meta, nil
}

// resolvePanels prefers the declared file list; otherwise it is derived
// from the panels/ directory listing, sorted lexicographically.
func resolvePanels(dir string, meta Metadata) ([]Panel, error) {
	panelsDir := filepath.Join(dir, "panels")

	var files []string
	prompts := make(map[string]string)

	if len(meta.Panels) > 0 {
		for _, pm := range meta.Panels {
			path := pm.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(panelsDir, pm.File)
			}
			if !util.FileExists(path) {
				return nil, fmt.Errorf("declared panel missing: %s", pm.File)
			}
			files = append(files, path)
			prompts[path] = pm.Prompt
		}
	} else {
		entries, err := os.ReadDir(panelsDir)
		if err != nil {
			return nil, fmt.Errorf("read panels directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !util.IsImageFile(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(panelsDir, e.Name()))
		}
		sort.Strings(files)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no panel images found in %s", panelsDir)
	}

	panels := make([]Panel, len(files))
	for i, f := range files {
		panels[i] = Panel{
			ID:     fmt.Sprintf("panel-%02d", i+1),
			Index:  i,
			File:   f,
			Prompt: prompts[f],
		}
	}
	return panels, nil
}

// resolveDurations reads panels/list.txt (ffmpeg concat syntax: alternating
// "file" and "duration" lines) when present, falling back to the default.
func resolveDurations(dir string, panels []Panel, defaultDuration float64) (Durations, error) {
	listPath := filepath.Join(dir, "panels", "list.txt")
	data, err := os.ReadFile(listPath)
	if err != nil {
		if os.IsNotExist(err) {
			values := make([]float64, len(panels))
			for i := range values {
				values[i] = defaultDuration
			}
			return Durations{Source: DurationsFromDefault, Values: values}, nil
		}
		return Durations{}, fmt.Errorf("read list.txt: %w", err)
	}

	byFile := make(map[string]float64)
	var lastFile string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "file "):
			lastFile = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "file ")), "'\"")
		case strings.HasPrefix(line, "duration "):
			if lastFile == "" {
				return Durations{}, fmt.Errorf("list.txt: duration line before any file line")
			}
			sec, err := util.ParseSeconds(strings.TrimPrefix(line, "duration "))
			if err != nil {
				return Durations{}, fmt.Errorf("list.txt: %w", err)
			}
			if sec <= 0 {
				return Durations{}, fmt.Errorf("list.txt: non-positive duration for %s", lastFile)
			}
			byFile[lastFile] = sec
		}
	}

	values := make([]float64, len(panels))
	for i, p := range panels {
		if sec, ok := byFile[filepath.Base(p.File)]; ok {
			values[i] = sec
		} else {
			values[i] = defaultDuration
		}
	}
	return Durations{Source: DurationsFromList, Values: values}, nil
}

func loadNarration(dir string) (Narration, error) {
	var n Narration

	if data, err := os.ReadFile(filepath.Join(dir, "narration.txt")); err == nil {
		n.Raw = string(data)
	}

	jsonPath := filepath.Join(dir, "narration.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var doc struct {
			Segments []Segment `json:"segments"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return Narration{}, fmt.Errorf("parse narration.json: %w", err)
		}
		n.Segments = doc.Segments
	}

	wavPath := filepath.Join(dir, "narration.wav")
	if util.FileExists(wavPath) {
		n.AudioFile = wavPath
	}

	return n, nil
}
