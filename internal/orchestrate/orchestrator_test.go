package orchestrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/internal/manifest"
	"github.com/kellan/panelmotion/internal/project"
	"github.com/kellan/panelmotion/internal/render"
)

// fakeProvider records which units it was asked to render and fails the
// ids listed in failIDs.
type fakeProvider struct {
	rendered []string
	failIDs  map[string]bool
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Render(_ context.Context, unit render.Unit, targetDir string) (*render.Result, error) {
	f.rendered = append(f.rendered, unit.ID)
	if f.failIDs[unit.ID] {
		return nil, fmt.Errorf("simulated failure for %s", unit.ID)
	}
	return &render.Result{
		VideoPath:   filepath.Join(targetDir, unit.ID+".mp4"),
		DurationSec: unit.DurationSec,
		Prompt:      unit.Prompt,
	}, nil
}

func testProject(t *testing.T, panelCount int) *project.Context {
	t.Helper()
	dir := t.TempDir()
	panels := make([]project.Panel, panelCount)
	for i := range panels {
		panels[i] = project.Panel{
			ID:          fmt.Sprintf("panel-%02d", i+1),
			Index:       i,
			File:        filepath.Join(dir, fmt.Sprintf("p%d.png", i)),
			DurationSec: 4.0,
		}
	}
	return &project.Context{
		Dir:       dir,
		OutputDir: filepath.Join(dir, "output"),
		Panels:    panels,
	}
}

func newOrchestrator(t *testing.T, pctx *project.Context, fake *fakeProvider) (*Orchestrator, *manifest.Store) {
	t.Helper()
	store := manifest.NewStore(pctx.OutputDir)
	return New(zerolog.New(io.Discard), fake, store), store
}

func TestRenderPanelsAll(t *testing.T) {
	pctx := testProject(t, 3)
	fake := &fakeProvider{}
	orch, store := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if s.Completed != 3 || s.Skipped != 0 || s.Failed != 0 {
		t.Errorf("summary = %+v", s)
	}

	// outcome is durable
	got, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec := got.Record("panel-02", "fake")
	if rec == nil || rec.Status != manifest.ClipReady {
		t.Errorf("panel-02 record = %+v", rec)
	}
}

func TestRenderPanelsSkipsReady(t *testing.T) {
	pctx := testProject(t, 2)
	fake := &fakeProvider{}
	orch, _ := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	m.SetRecord("panel-01", &manifest.ClipRecord{Status: manifest.ClipReady, ProviderID: "fake"})
	stamped := m.Record("panel-01", "fake").UpdatedAt

	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if s.Skipped != 1 || s.Completed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if len(fake.rendered) != 1 || fake.rendered[0] != "panel-02" {
		t.Errorf("rendered = %v, want only panel-02", fake.rendered)
	}
	if !m.Record("panel-01", "fake").UpdatedAt.Equal(stamped) {
		t.Error("skipping must not touch the existing record")
	}
}

func TestRenderPanelsForceReRenders(t *testing.T) {
	pctx := testProject(t, 2)
	fake := &fakeProvider{}
	orch, _ := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	m.SetRecord("panel-01", &manifest.ClipRecord{Status: manifest.ClipReady, ProviderID: "fake"})

	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{Force: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if s.Completed != 2 || s.Skipped != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRenderPanelsFailedRetries(t *testing.T) {
	pctx := testProject(t, 1)
	fake := &fakeProvider{}
	orch, _ := newOrchestrator(t, pctx, fake)

	// a prior failure is not a skip
	m := manifest.New()
	m.SetRecord("panel-01", &manifest.ClipRecord{Status: manifest.ClipFailed, ProviderID: "fake", Error: "old"})

	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if s.Completed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if rec := m.Record("panel-01", "fake"); rec.Status != manifest.ClipReady || rec.Error != "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestRenderPanelsContinuesPastFailure(t *testing.T) {
	pctx := testProject(t, 3)
	fake := &fakeProvider{failIDs: map[string]bool{"panel-02": true}}
	orch, _ := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{})
	if err != nil {
		t.Fatalf("a unit failure should not abort the run: %v", err)
	}
	if s.Completed != 2 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}
	rec := m.Record("panel-02", "fake")
	if rec == nil || rec.Status != manifest.ClipFailed || rec.Error == "" {
		t.Errorf("failed record = %+v", rec)
	}
}

func TestRenderPanelsStopOnError(t *testing.T) {
	pctx := testProject(t, 3)
	fake := &fakeProvider{failIDs: map[string]bool{"panel-01": true}}
	orch, _ := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	_, err := orch.RenderPanels(context.Background(), pctx, m, Options{StopOnError: true})
	if err == nil {
		t.Fatal("stop-on-error should surface the failure")
	}
	if len(fake.rendered) != 1 {
		t.Errorf("rendered %v, want to stop after the first unit", fake.rendered)
	}
	// the failure itself is still durably recorded
	if rec := m.Record("panel-01", "fake"); rec == nil || rec.Status != manifest.ClipFailed {
		t.Errorf("failed record = %+v", rec)
	}
}

func TestRenderPanelsDryRunTouchesNothing(t *testing.T) {
	pctx := testProject(t, 2)
	fake := &fakeProvider{}
	orch, store := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	s, err := orch.RenderPanels(context.Background(), pctx, m, Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if s.Completed != 2 {
		t.Errorf("summary = %+v", s)
	}
	if len(m.Clips) != 0 {
		t.Error("dry run must not record clips")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("dry run must not write the manifest")
	}
	if _, err := os.Stat(pctx.OutputDir); !os.IsNotExist(err) {
		t.Error("dry run must not create the output directory")
	}
}

func TestRenderChunksRequiresPlan(t *testing.T) {
	pctx := testProject(t, 1)
	fake := &fakeProvider{}
	orch, _ := newOrchestrator(t, pctx, fake)

	_, err := orch.RenderChunks(context.Background(), pctx, manifest.New(), Options{})
	if err == nil {
		t.Fatal("chunk run without a plan should fail")
	}
}

func TestRenderChunksUpdatesPlanState(t *testing.T) {
	pctx := testProject(t, 2)
	fake := &fakeProvider{failIDs: map[string]bool{"chunk-02": true}}
	orch, store := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	m.SetPlan("fake", &manifest.ChunkPlan{Chunks: []*manifest.Chunk{
		{ID: "chunk-01", Index: 0, Prompt: "p1", DurationSec: 4, Status: manifest.ChunkPending},
		{ID: "chunk-02", Index: 1, Prompt: "p2", DurationSec: 4, Status: manifest.ChunkPending},
	}})

	s, err := orch.RenderChunks(context.Background(), pctx, m, Options{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if s.Completed != 1 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	plan := got.PlanFor("fake")
	if plan.Chunks[0].Status != manifest.ChunkRendered {
		t.Errorf("chunk-01 = %s, want rendered", plan.Chunks[0].Status)
	}
	if plan.Chunks[1].Status != manifest.ChunkPending {
		t.Errorf("chunk-02 = %s, want still pending", plan.Chunks[1].Status)
	}
	if len(plan.Chunks[1].History) != 1 || plan.Chunks[1].History[0].Error == "" {
		t.Errorf("chunk-02 history = %+v", plan.Chunks[1].History)
	}
}

func TestRenderChunksSeedImages(t *testing.T) {
	pctx := testProject(t, 1)
	fake := &fakeProvider{}
	orch, _ := newOrchestrator(t, pctx, fake)

	m := manifest.New()
	m.SetPlan("fake", &manifest.ChunkPlan{Chunks: []*manifest.Chunk{
		{ID: "chunk-01", Index: 0, Prompt: "p1", DurationSec: 4},
		{ID: "chunk-02", Index: 1, Prompt: "p2", DurationSec: 4},
	}})

	var seeds []string
	fake.failIDs = nil
	seedSpy := &seedProvider{inner: fake, seeds: &seeds}
	orch = New(zerolog.New(io.Discard), seedSpy, manifest.NewStore(pctx.OutputDir))

	if _, err := orch.RenderChunks(context.Background(), pctx, m, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("seeds = %v", seeds)
	}
	if seeds[0] != pctx.Panels[0].File {
		t.Errorf("chunk-01 seed = %q, want panel image", seeds[0])
	}
	// more chunks than panels: no seed for the overflow
	if seeds[1] != "" {
		t.Errorf("chunk-02 seed = %q, want empty", seeds[1])
	}
}

type seedProvider struct {
	inner *fakeProvider
	seeds *[]string
}

func (s *seedProvider) ID() string { return "fake" }

func (s *seedProvider) Render(ctx context.Context, unit render.Unit, targetDir string) (*render.Result, error) {
	*s.seeds = append(*s.seeds, unit.ImagePath)
	return s.inner.Render(ctx, unit, targetDir)
}
