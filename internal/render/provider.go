package render

import (
	"context"
	"fmt"
)

// Unit is one thing to render: a panel or a narration chunk.
type Unit struct {
	ID          string
	Index       int
	ImagePath   string // optional seed image
	Prompt      string
	DurationSec float64
}

// Result is a successful render outcome.
type Result struct {
	VideoPath     string
	AudioPath     string
	DurationSec   float64
	Prompt        string
	OperationName string

	// Placeholder marks a dry-run result that produced no file.
	Placeholder bool
}

// Provider turns a unit plus a target duration into a video clip.
type Provider interface {
	ID() string
	Render(ctx context.Context, unit Unit, targetDir string) (*Result, error)
}

// ProviderIDs lists the closed set of provider names.
func ProviderIDs() []string {
	return []string{LocalID, VeoID}
}

// UnknownProviderError names an unregistered provider.
func UnknownProviderError(name string) error {
	return fmt.Errorf("unknown render provider %q (available: %s, %s)", name, LocalID, VeoID)
}
