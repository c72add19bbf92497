package ffmpeg

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

func TestExecutorCreation(t *testing.T) {
	skipIfNoFFmpeg(t)

	e, err := New(testLogger(), 4)
	if err != nil {
		t.Fatalf("create executor: %v", err)
	}
	if e.ffmpegPath == "" || e.ffprobePath == "" {
		t.Error("binary paths not resolved")
	}
	if e.DryRun() {
		t.Error("dry run should default off")
	}
}

func TestStreamOutputParsesProgressBlocks(t *testing.T) {
	e := &Executor{logger: testLogger()}

	// two -progress pipe:2 blocks, each closed by a progress= line
	input := strings.Join([]string{
		"frame=30",
		"fps=29.5",
		"time=00:00:01.00",
		"speed=1.2x",
		"progress=continue",
		"frame=60",
		"fps=30.1",
		"time=00:00:02.00",
		"speed=1.1x",
		"progress=end",
	}, "\n")

	var got []Progress
	e.streamOutput(strings.NewReader(input), func(p *Progress) {
		got = append(got, *p)
	}, nil)

	if len(got) != 2 {
		t.Fatalf("got %d progress reports, want 2", len(got))
	}
	if got[0].Frame != 30 || got[0].Time != "00:00:01.00" || got[0].Speed != "1.2x" {
		t.Errorf("first report = %+v", got[0])
	}
	if got[1].Frame != 60 || got[1].FPS != 30.1 {
		t.Errorf("second report = %+v", got[1])
	}
}

func TestExecutorDryRunSkipsEncode(t *testing.T) {
	skipIfNoFFmpeg(t)

	e, err := New(testLogger(), 1)
	if err != nil {
		t.Fatalf("create executor: %v", err)
	}
	e.SetDryRun(true)

	out := filepath.Join(t.TempDir(), "out.mp4")
	c, err := Compile(testLogger(), GraphSpec{
		Panels: []PanelInput{{File: "missing.png", DurationSec: 2}},
		Width:  1080, Height: 1920, FPS: 30,
		Output: out,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	// missing input would fail a real encode; dry run never gets there
	if err := e.RenderGraph(context.Background(), c); err != nil {
		t.Fatalf("dry run render: %v", err)
	}
}
