package manifest

import (
	"fmt"
	"time"
)

const Version = 1

// ClipStatus is the terminal state of one render attempt's record.
type ClipStatus string

const (
	ClipReady  ClipStatus = "ready"
	ClipFailed ClipStatus = "failed"
)

// ClipRecord captures the outcome of the most recent render attempt for
// one panel/chunk under one provider. Records are only ever superseded,
// never deleted, so a force re-render simply overwrites.
type ClipRecord struct {
	Status        ClipStatus `json:"status"`
	VideoPath     string     `json:"videoPath,omitempty"`
	AudioPath     string     `json:"audioPath,omitempty"`
	DurationSec   float64    `json:"durationSec,omitempty"`
	ProviderID    string     `json:"providerId"`
	Prompt        string     `json:"prompt,omitempty"`
	OperationName string     `json:"operationName,omitempty"`
	Error         string     `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ChunkStatus is the editing lifecycle of one narration chunk.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkRendered ChunkStatus = "rendered"
	ChunkApproved ChunkStatus = "approved"
)

// PromptSource distinguishes generated prompts from operator edits.
type PromptSource string

const (
	PromptAuto   PromptSource = "auto"
	PromptManual PromptSource = "manual"
)

// RenderAttempt is one history entry for a chunk.
type RenderAttempt struct {
	At         time.Time `json:"at"`
	ProviderID string    `json:"providerId"`
	VideoPath  string    `json:"videoPath,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ChunkSource ties a chunk back to the narration segment it came from.
type ChunkSource struct {
	SegmentID  string `json:"segmentId,omitempty"`
	Part       int    `json:"part"`
	TotalParts int    `json:"totalParts"`
}

// Chunk is one duration-bounded slice of narration with its prompt.
type Chunk struct {
	ID            string          `json:"id"`
	Index         int             `json:"index"`
	NarrationText string          `json:"narrationText"`
	DurationSec   float64         `json:"durationSec"`
	WordCount     int             `json:"wordCount"`
	Speaker       string          `json:"speaker,omitempty"`
	StartSec      float64         `json:"startSec"`
	EndSec        float64         `json:"endSec"`
	Prompt        string          `json:"prompt"`
	PromptSource  PromptSource    `json:"promptSource"`
	Status        ChunkStatus     `json:"status"`
	History       []RenderAttempt `json:"history,omitempty"`
	Source        ChunkSource     `json:"source"`
}

// PlanMeta carries plan-wide derived settings, computed once.
type PlanMeta struct {
	MaxDurationSec   float64 `json:"maxDurationSec"`
	CharacterNotes   string  `json:"characterNotes,omitempty"`
	StyleNotes       string  `json:"styleNotes,omitempty"`
	AspectRatio      string  `json:"aspectRatio,omitempty"`
	TotalDurationSec float64 `json:"totalDurationSec"`
}

// ChunkPlan is the narration chunk plan for one provider.
type ChunkPlan struct {
	Meta   PlanMeta `json:"meta"`
	Chunks []*Chunk `json:"chunks"`
}

// Manifest is the persisted record of clip statuses and chunk plans for
// one project.
type Manifest struct {
	Version   int                               `json:"version"`
	UpdatedAt time.Time                         `json:"updatedAt"`
	Clips     map[string]map[string]*ClipRecord `json:"clips"`
	Plan      map[string]*ChunkPlan             `json:"plan"`
}

// New returns an empty manifest at the current schema version.
func New() *Manifest {
	return &Manifest{
		Version: Version,
		Clips:   make(map[string]map[string]*ClipRecord),
		Plan:    make(map[string]*ChunkPlan),
	}
}

// Record returns the clip record for a unit under a provider, or nil.
func (m *Manifest) Record(unitID, providerID string) *ClipRecord {
	byProvider, ok := m.Clips[unitID]
	if !ok {
		return nil
	}
	return byProvider[providerID]
}

// SetRecord overwrites the clip record for a unit under a provider.
func (m *Manifest) SetRecord(unitID string, rec *ClipRecord) {
	if m.Clips == nil {
		m.Clips = make(map[string]map[string]*ClipRecord)
	}
	byProvider, ok := m.Clips[unitID]
	if !ok {
		byProvider = make(map[string]*ClipRecord)
		m.Clips[unitID] = byProvider
	}
	rec.UpdatedAt = time.Now().UTC()
	byProvider[rec.ProviderID] = rec
	m.UpdatedAt = rec.UpdatedAt
}

// PlanFor returns the chunk plan for a provider, or nil.
func (m *Manifest) PlanFor(providerID string) *ChunkPlan {
	if m.Plan == nil {
		return nil
	}
	return m.Plan[providerID]
}

// SetPlan stores a provider's chunk plan.
func (m *Manifest) SetPlan(providerID string, plan *ChunkPlan) {
	if m.Plan == nil {
		m.Plan = make(map[string]*ChunkPlan)
	}
	m.Plan[providerID] = plan
	m.UpdatedAt = time.Now().UTC()
}

// Recompute rebuilds the contiguous chunk timeline: start/end offsets are
// the running cumulative sum of chunk durations, in order. Must be called
// after any edit that changes a chunk duration.
func (p *ChunkPlan) Recompute() {
	var cursor float64
	for _, c := range p.Chunks {
		c.StartSec = cursor
		c.EndSec = cursor + c.DurationSec
		cursor = c.EndSec
	}
	p.Meta.TotalDurationSec = cursor
}

// lastRenderStatus is what an un-approved chunk falls back to.
func (c *Chunk) lastRenderStatus() ChunkStatus {
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].Error == "" {
			return ChunkRendered
		}
	}
	return ChunkPending
}

// MarkRendered records a successful render attempt.
func (c *Chunk) MarkRendered(providerID, videoPath string) {
	c.History = append(c.History, RenderAttempt{
		At:         time.Now().UTC(),
		ProviderID: providerID,
		VideoPath:  videoPath,
	})
	if c.Status != ChunkApproved {
		c.Status = ChunkRendered
	}
}

// MarkFailed records a failed render attempt; the chunk keeps its current
// status and stays retryable.
func (c *Chunk) MarkFailed(providerID string, renderErr error) {
	c.History = append(c.History, RenderAttempt{
		At:         time.Now().UTC(),
		ProviderID: providerID,
		Error:      renderErr.Error(),
	})
}

// Approve marks a rendered chunk as operator-approved.
func (c *Chunk) Approve() error {
	if c.Status != ChunkRendered {
		return fmt.Errorf("chunk %s is %s, only rendered chunks can be approved", c.ID, c.Status)
	}
	c.Status = ChunkApproved
	return nil
}

// Unapprove drops approval, falling back to the last known render state.
func (c *Chunk) Unapprove() {
	if c.Status != ChunkApproved {
		return
	}
	c.Status = c.lastRenderStatus()
}

// SetPrompt records an operator prompt edit. Any edit invalidates
// history-dependent state, so the chunk returns to pending.
func (c *Chunk) SetPrompt(prompt string) {
	c.Prompt = prompt
	c.PromptSource = PromptManual
	c.Status = ChunkPending
}

// SetDuration changes the chunk's target duration and resets its state.
// The owning plan must be recomputed afterwards.
func (c *Chunk) SetDuration(sec float64) error {
	if sec <= 0 {
		return fmt.Errorf("chunk duration must be positive, got %g", sec)
	}
	c.DurationSec = sec
	c.Status = ChunkPending
	return nil
}
