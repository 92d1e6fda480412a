package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wakti/backend/internal/logging"
	"github.com/wakti/backend/internal/models"
	"github.com/wakti/backend/internal/recording"
	"github.com/wakti/backend/internal/repositories"
)

// RecordingHandler finalizes captured recordings and serves stored ones.
type RecordingHandler struct {
	Recordings RecordingStore
	Pipeline   recording.Pipeline
	// MaxSeconds caps the summed segment duration accepted per recording.
	// Zero disables the check.
	MaxSeconds int
	NowFunc    func() time.Time
}

// Finalize handles POST /api/v1/recordings requests. The uploaded segments are
// merged into one asset, pushed through the processing pipeline, and persisted.
// A pipeline failure still persists the row so the asset survives for retry.
func (h RecordingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil {
		logger.Error("recording store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording service unavailable"})
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid finalize payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" {
		logger.Warn("finalize missing owner")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "ownerId is required"})
		return
	}
	if len(req.Segments) == 0 {
		logger.Warn("finalize without segments", "ownerId", req.OwnerID)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "at least one segment is required"})
		return
	}

	segments := make([]models.RecordingSegment, 0, len(req.Segments))
	totalSeconds := 0
	for _, seg := range req.Segments {
		if len(seg.Blob) == 0 {
			logger.Warn("finalize with empty segment", "ownerId", req.OwnerID, "part", seg.PartNumber)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "segments must carry audio data"})
			return
		}
		segments = append(segments, models.RecordingSegment{
			Blob:         seg.Blob,
			DurationSecs: seg.DurationSecs,
			PartNumber:   seg.PartNumber,
			MIMEType:     seg.MIMEType,
		})
		totalSeconds += seg.DurationSecs
	}

	if h.MaxSeconds > 0 && totalSeconds > h.MaxSeconds {
		logger.Warn("finalize over duration ceiling", "ownerId", req.OwnerID, "seconds", totalSeconds, "maxSeconds", h.MaxSeconds)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "recording exceeds the maximum duration"})
		return
	}

	ctx, span := logging.StartSpan(ctx, "recording.finalize")
	defer span.End()

	merged, mimeType, err := recording.Merge(segments)
	if err != nil {
		if errors.Is(err, recording.ErrEncodingMismatch) {
			logger.Warn("finalize with mixed encodings", "ownerId", req.OwnerID)
			respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]string{"error": "segments use mixed audio encodings"})
			return
		}
		logger.Error("segment merge failed", "ownerId", req.OwnerID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to merge segments"})
		return
	}

	rec := models.Recording{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		Kind:         strings.TrimSpace(req.Kind),
		DurationSecs: totalSeconds,
		SegmentCount: len(segments),
		Status:       models.RecordingStatusProcessing,
		CreatedAt:    h.now(),
	}

	pipelineErr := h.Pipeline.Run(ctx, &rec, merged, mimeType)
	if pipelineErr != nil {
		rec.Status = models.RecordingStatusFailed
		var stageErr *recording.StageError
		if errors.As(pipelineErr, &stageErr) {
			rec.FailedStage = stageErr.Stage
		}
		logger.Error("recording pipeline failed", "recordingId", rec.ID, "stage", rec.FailedStage, "error", pipelineErr)
	}

	if err := h.Recordings.Create(ctx, rec); err != nil {
		logger.Error("failed to persist recording", "recordingId", rec.ID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to save recording"})
		return
	}

	status := http.StatusCreated
	if pipelineErr != nil {
		status = http.StatusAccepted
	}
	respondJSON(ctx, w, status, recordingResponse{Recording: toRecordingPayload(rec)})
}

// Feed handles GET /api/v1/recordings requests, listing the owner's
// recordings newest first.
func (h RecordingHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil {
		logger.Error("recording store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording service unavailable"})
		return
	}

	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if ownerID == "" {
		logger.Warn("feed missing owner")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "ownerId is required"})
		return
	}

	recs, err := h.Recordings.ListForOwner(ctx, ownerID)
	if err != nil {
		logger.Error("failed to list recordings", "ownerId", ownerID, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list recordings"})
		return
	}

	payload := make([]recordingPayload, 0, len(recs))
	for _, rec := range recs {
		payload = append(payload, toRecordingPayload(rec))
	}
	respondJSON(ctx, w, http.StatusOK, feedResponse{Recordings: payload})
}

// Get handles GET /api/v1/recordings/get requests.
func (h RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Recordings == nil {
		logger.Error("recording store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "recording service unavailable"})
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		logger.Warn("get missing recording id")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	rec, err := h.Recordings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "recording not found"})
			return
		}
		logger.Error("failed to load recording", "recordingId", id, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load recording"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, recordingResponse{Recording: toRecordingPayload(rec)})
}

type finalizeRequest struct {
	OwnerID  string           `json:"ownerId"`
	Kind     string           `json:"kind"`
	Segments []segmentPayload `json:"segments"`
}

type segmentPayload struct {
	Blob         []byte `json:"blob"`
	DurationSecs int    `json:"durationSeconds"`
	PartNumber   int    `json:"partNumber"`
	MIMEType     string `json:"mimeType"`
}

type recordingPayload struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Kind         string     `json:"kind"`
	DurationSecs int        `json:"durationSeconds"`
	SegmentCount int        `json:"segmentCount"`
	AssetPath    string     `json:"assetPath,omitempty"`
	AssetURL     string     `json:"assetUrl,omitempty"`
	Transcript   string     `json:"transcript,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Status       string     `json:"status"`
	FailedStage  string     `json:"failedStage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

type recordingResponse struct {
	Recording recordingPayload `json:"recording"`
}

type feedResponse struct {
	Recordings []recordingPayload `json:"recordings"`
}

func toRecordingPayload(rec models.Recording) recordingPayload {
	return recordingPayload{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		Kind:         rec.Kind,
		DurationSecs: rec.DurationSecs,
		SegmentCount: rec.SegmentCount,
		AssetPath:    rec.AssetPath,
		AssetURL:     rec.AssetURL,
		Transcript:   rec.Transcript,
		Summary:      rec.Summary,
		Status:       rec.Status,
		FailedStage:  rec.FailedStage,
		CreatedAt:    rec.CreatedAt,
		CompletedAt:  rec.CompletedAt,
	}
}

func (h RecordingHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
