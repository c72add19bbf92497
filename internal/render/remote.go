package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kellan/panelmotion/pkg/util"
)

// VeoID is the remote image-to-video / text-to-video provider name.
const VeoID = "veo"

// VeoOptions configure the remote provider. PollInterval and Timeout are
// explicit so tests can simulate fast deadlines.
type VeoOptions struct {
	BaseURL     string
	APIKey      string
	Model       string
	AspectRatio string
	Resolution  string

	PollInterval time.Duration
	Timeout      time.Duration

	// ProgressEvery bounds how often poll progress is logged.
	ProgressEvery time.Duration

	// DiagnosticsDir receives postmortem dumps for jobs that complete
	// without usable output.
	DiagnosticsDir string

	DryRun bool
}

// Veo submits a generation job to an asynchronous operations API and
// polls it to completion.
type Veo struct {
	logger zerolog.Logger
	client *http.Client
	opts   VeoOptions
}

// NewVeo creates the remote provider.
func NewVeo(logger zerolog.Logger, opts VeoOptions) *Veo {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 30 * time.Second
	}
	return &Veo{
		logger: logger.With().Str("component", "render.veo").Logger(),
		client: &http.Client{Timeout: 2 * time.Minute},
		opts:   opts,
	}
}

// ID implements Provider.
func (v *Veo) ID() string { return VeoID }

type generateRequest struct {
	Instances  []generateInstance `json:"instances"`
	Parameters generateParams     `json:"parameters"`
}

type generateInstance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type inlineData struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type generateParams struct {
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	Resolution      string `json:"resolution,omitempty"`
}

type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *operationError `json:"error,omitempty"`
	Metadata struct {
		ProgressPercent *int `json:"progressPercent,omitempty"`
		CompletedSteps  *int `json:"completedSteps,omitempty"`
		TotalSteps      *int `json:"totalSteps,omitempty"`
	} `json:"metadata"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Render implements Provider: submit, poll until done or deadline,
// download the result.
func (v *Veo) Render(ctx context.Context, unit Unit, targetDir string) (*Result, error) {
	out := filepath.Join(targetDir, unit.ID+".mp4")

	if v.opts.DryRun {
		v.logger.Info().
			Str("unit", unit.ID).
			Str("model", v.opts.Model).
			Msg("dry run, skipping remote job")
		return &Result{VideoPath: out, DurationSec: unit.DurationSec, Prompt: unit.Prompt, Placeholder: true}, nil
	}

	if v.opts.APIKey == "" {
		return nil, fmt.Errorf("remote provider needs an API key (set PANELMOTION_API_KEY)")
	}
	if unit.Prompt == "" {
		return nil, fmt.Errorf("unit %s has no prompt", unit.ID)
	}

	req, err := v.buildRequest(unit)
	if err != nil {
		return nil, err
	}

	opName, err := v.submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit job for %s: %w", unit.ID, err)
	}

	v.logger.Info().
		Str("unit", unit.ID).
		Str("operation", opName).
		Msg("remote job submitted")

	op, err := v.poll(ctx, unit.ID, opName)
	if err != nil {
		return nil, err
	}

	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		diagPath := v.writeDiagnostic(unit, opName, req, op)
		return nil, fmt.Errorf("remote job %s for %s completed without usable output (diagnostic: %s)",
			opName, unit.ID, diagPath)
	}

	if err := v.download(ctx, samples[0].Video.URI, out); err != nil {
		return nil, fmt.Errorf("download result for %s: %w", unit.ID, err)
	}

	v.logger.Info().
		Str("unit", unit.ID).
		Str("output", out).
		Msg("remote clip downloaded")

	return &Result{
		VideoPath:     out,
		DurationSec:   unit.DurationSec,
		Prompt:        unit.Prompt,
		OperationName: opName,
	}, nil
}

func (v *Veo) buildRequest(unit Unit) (*generateRequest, error) {
	inst := generateInstance{Prompt: unit.Prompt}

	if unit.ImagePath != "" {
		data, err := os.ReadFile(unit.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read seed image for %s: %w", unit.ID, err)
		}
		inst.Image = &inlineData{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(data),
			MimeType:           mimeForImage(unit.ImagePath),
		}
	}

	// the API wants whole seconds; round up so narration always fits
	durSec := int(unit.DurationSec)
	if unit.DurationSec > float64(durSec) {
		durSec++
	}

	return &generateRequest{
		Instances: []generateInstance{inst},
		Parameters: generateParams{
			DurationSeconds: durSec,
			AspectRatio:     v.opts.AspectRatio,
			Resolution:      v.opts.Resolution,
		},
	}, nil
}

func (v *Veo) submit(ctx context.Context, body *generateRequest) (string, error) {
	url := fmt.Sprintf("%s/models/%s:predictLongRunning",
		strings.TrimRight(v.opts.BaseURL, "/"), v.opts.Model)

	var resp struct {
		Name string `json:"name"`
	}
	if err := v.doJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("submit response carried no operation name")
	}
	return resp.Name, nil
}

// poll blocks until the operation finishes, the deadline passes, or the
// context is cancelled. The interval is fixed; there is no backoff, and a
// timeout does not attempt to cancel the remote job.
func (v *Veo) poll(ctx context.Context, unitID, opName string) (*operation, error) {
	deadline := time.Now().Add(v.opts.Timeout)
	var lastLog time.Time

	for {
		op, err := v.getOperation(ctx, opName)
		if err != nil {
			return nil, fmt.Errorf("poll job %s for %s: %w", opName, unitID, err)
		}
		if op.Error != nil {
			return nil, fmt.Errorf("remote job %s for %s failed: %s (code %d)",
				opName, unitID, op.Error.Message, op.Error.Code)
		}
		if op.Done {
			return op, nil
		}

		if time.Since(lastLog) >= v.opts.ProgressEvery {
			ev := v.logger.Info().Str("unit", unitID).Str("operation", opName)
			if op.Metadata.ProgressPercent != nil {
				ev = ev.Int("percent", *op.Metadata.ProgressPercent)
			} else if op.Metadata.CompletedSteps != nil && op.Metadata.TotalSteps != nil {
				ev = ev.Str("steps", fmt.Sprintf("%d/%d", *op.Metadata.CompletedSteps, *op.Metadata.TotalSteps))
			}
			ev.Msg("waiting for remote job")
			lastLog = time.Now()
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("remote job %s for %s timed out after %s",
				opName, unitID, v.opts.Timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(v.opts.PollInterval):
		}
	}
}

func (v *Veo) getOperation(ctx context.Context, opName string) (*operation, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(v.opts.BaseURL, "/"), opName)
	var op operation
	if err := v.doJSON(ctx, http.MethodGet, url, nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (v *Veo) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", v.opts.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return json.Unmarshal(data, out)
}

func (v *Veo) download(ctx context.Context, uri, out string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", v.opts.APIKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d fetching video", resp.StatusCode)
	}

	if err := util.EnsureDir(filepath.Dir(out)); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	return nil
}

// writeDiagnostic persists the request and raw operation for postmortem
// when a job finishes with nothing usable. Failure to write only logs;
// the render error is the one that matters.
func (v *Veo) writeDiagnostic(unit Unit, opName string, req *generateRequest, op *operation) string {
	dir := v.opts.DiagnosticsDir
	if dir == "" {
		dir = "diagnostics"
	}
	if err := util.EnsureDir(dir); err != nil {
		v.logger.Warn().Err(err).Msg("cannot create diagnostics dir")
		return ""
	}

	// the seed image blob would dwarf the rest of the dump; copy the
	// instances so redaction cannot leak back into the caller's request
	reqCopy := *req
	reqCopy.Instances = append([]generateInstance(nil), req.Instances...)
	if len(reqCopy.Instances) > 0 && reqCopy.Instances[0].Image != nil {
		img := *reqCopy.Instances[0].Image
		img.BytesBase64Encoded = fmt.Sprintf("<%d bytes omitted>", len(img.BytesBase64Encoded))
		reqCopy.Instances[0].Image = &img
	}

	record := map[string]any{
		"at":         time.Now().UTC().Format(time.RFC3339),
		"unitId":     unit.ID,
		"providerId": VeoID,
		"operation":  opName,
		"request":    reqCopy,
		"raw":        op,
	}

	path := filepath.Join(dir, fmt.Sprintf("no-output-%s.json", uuid.NewString()))
	data, err := json.MarshalIndent(record, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		v.logger.Warn().Err(err).Msg("cannot write diagnostic record")
		return ""
	}
	return path
}

func mimeForImage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
