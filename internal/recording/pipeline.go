package recording

import (
	"context"
	"fmt"
	"time"

	"github.com/wakti/backend/internal/models"
)

// Pipeline stage names, used to tag terminal failures.
const (
	StageUpload     = "upload"
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
)

// StageError reports which pipeline stage failed. Stages are sequential and
// non-retrying at this layer; artifacts produced before the failing stage are
// kept so the caller can retry manually.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UploadResult locates a stored asset.
type UploadResult struct {
	Path      string
	PublicURL string
}

// Uploader persists the merged asset to object storage.
type Uploader interface {
	Upload(ctx context.Context, recordingID string, blob []byte, mimeType string) (UploadResult, error)
}

// Transcriber produces a transcript for an uploaded recording.
type Transcriber interface {
	Transcribe(ctx context.Context, recordingID string) (string, error)
}

// Summarizer produces a summary for a transcribed recording.
type Summarizer interface {
	Summarize(ctx context.Context, recordingID string) (string, error)
}

// Pipeline runs upload, transcription, and summarization in sequence.
type Pipeline struct {
	Uploader    Uploader
	Transcriber Transcriber
	Summarizer  Summarizer
}

// Run executes the stages against the recording, filling in fields as each
// stage succeeds. On failure the recording keeps everything produced so far
// and the returned error names the failing stage.
func (p Pipeline) Run(ctx context.Context, rec *models.Recording, blob []byte, mimeType string) error {
	if p.Uploader == nil {
		return &StageError{Stage: StageUpload, Err: fmt.Errorf("uploader not configured")}
	}

	uploaded, err := p.Uploader.Upload(ctx, rec.ID, blob, mimeType)
	if err != nil {
		return &StageError{Stage: StageUpload, Err: err}
	}
	rec.AssetPath = uploaded.Path
	rec.AssetURL = uploaded.PublicURL

	if p.Transcriber != nil {
		text, err := p.Transcriber.Transcribe(ctx, rec.ID)
		if err != nil {
			return &StageError{Stage: StageTranscribe, Err: err}
		}
		rec.Transcript = text
	}

	if p.Summarizer != nil {
		summary, err := p.Summarizer.Summarize(ctx, rec.ID)
		if err != nil {
			return &StageError{Stage: StageSummarize, Err: err}
		}
		rec.Summary = summary
	}

	now := time.Now().UTC()
	rec.Status = models.RecordingStatusReady
	rec.CompletedAt = &now
	return nil
}
