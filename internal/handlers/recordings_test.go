package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wakti/backend/internal/models"
	"github.com/wakti/backend/internal/recording"
	"github.com/wakti/backend/internal/repositories"
)

type inMemoryRecordingStore struct {
	recordings map[string]models.Recording
	order      []string
}

func newInMemoryRecordingStore() *inMemoryRecordingStore {
	return &inMemoryRecordingStore{recordings: make(map[string]models.Recording)}
}

func (s *inMemoryRecordingStore) Create(_ context.Context, rec models.Recording) error {
	if _, exists := s.recordings[rec.ID]; exists {
		return repositories.ErrConflict
	}
	s.recordings[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *inMemoryRecordingStore) FindByID(_ context.Context, id string) (models.Recording, error) {
	rec, ok := s.recordings[id]
	if !ok {
		return models.Recording{}, repositories.ErrNotFound
	}
	return rec, nil
}

func (s *inMemoryRecordingStore) ListForOwner(_ context.Context, ownerID string) ([]models.Recording, error) {
	var recs []models.Recording
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec := s.recordings[s.order[i]]; rec.OwnerID == ownerID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

type uploaderStub struct {
	blobs map[string][]byte
	mime  string
}

func (u *uploaderStub) Upload(_ context.Context, recordingID string, blob []byte, mimeType string) (recording.UploadResult, error) {
	if u.blobs == nil {
		u.blobs = make(map[string][]byte)
	}
	u.blobs[recordingID] = blob
	u.mime = mimeType
	return recording.UploadResult{
		Path:      "recordings/" + recordingID,
		PublicURL: "https://cdn.wakti.app/recordings/" + recordingID,
	}, nil
}

type transcriberStub struct {
	text string
	err  error
}

func (t transcriberStub) Transcribe(_ context.Context, _ string) (string, error) {
	return t.text, t.err
}

type summarizerStub struct {
	summary string
}

func (s summarizerStub) Summarize(_ context.Context, _ string) (string, error) {
	return s.summary, nil
}

func finalizeBody(t *testing.T, ownerID string, segments []segmentPayload) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(finalizeRequest{OwnerID: ownerID, Kind: "voice-note", Segments: segments})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func TestRecordingHandlerFinalize(t *testing.T) {
	store := newInMemoryRecordingStore()
	uploader := &uploaderStub{}
	handler := RecordingHandler{
		Recordings: store,
		Pipeline: recording.Pipeline{
			Uploader:    uploader,
			Transcriber: transcriberStub{text: "hello world"},
			Summarizer:  summarizerStub{summary: "a greeting"},
		},
	}

	// Segments arrive out of order; the merge puts them back.
	segments := []segmentPayload{
		{Blob: []byte("two."), DurationSecs: 7, PartNumber: 2, MIMEType: "audio/webm"},
		{Blob: []byte("one."), DurationSecs: 12, PartNumber: 1, MIMEType: "audio/webm"},
		{Blob: []byte("three."), DurationSecs: 3, PartNumber: 3, MIMEType: "audio/webm"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", finalizeBody(t, "owner-1", segments))
	rec := httptest.NewRecorder()

	handler.Finalize(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp recordingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Recording.Status != models.RecordingStatusReady {
		t.Fatalf("expected ready recording, got %+v", resp.Recording)
	}
	if resp.Recording.DurationSecs != 22 || resp.Recording.SegmentCount != 3 {
		t.Fatalf("unexpected totals: %+v", resp.Recording)
	}
	if resp.Recording.Transcript != "hello world" || resp.Recording.Summary != "a greeting" {
		t.Fatalf("unexpected pipeline output: %+v", resp.Recording)
	}

	if got := string(uploader.blobs[resp.Recording.ID]); got != "one.two.three." {
		t.Fatalf("unexpected merged blob %q", got)
	}
	if uploader.mime != "audio/webm" {
		t.Fatalf("unexpected mime type %q", uploader.mime)
	}

	if _, err := store.FindByID(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("expected recording persisted: %v", err)
	}
}

func TestRecordingHandlerFinalizeDurationCap(t *testing.T) {
	store := newInMemoryRecordingStore()
	handler := RecordingHandler{Recordings: store, MaxSeconds: 7200}

	segments := []segmentPayload{
		{Blob: []byte("a"), DurationSecs: 7000, PartNumber: 1, MIMEType: "audio/webm"},
		{Blob: []byte("b"), DurationSecs: 201, PartNumber: 2, MIMEType: "audio/webm"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", finalizeBody(t, "owner-1", segments))
	rec := httptest.NewRecorder()

	handler.Finalize(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	if len(store.order) != 0 {
		t.Fatalf("over-cap recording must not be persisted, got %v", store.order)
	}

	// Exactly at the cap is still accepted.
	segments[1].DurationSecs = 200
	handler.Pipeline = recording.Pipeline{Uploader: &uploaderStub{}}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/recordings", finalizeBody(t, "owner-1", segments))
	rec = httptest.NewRecorder()

	handler.Finalize(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestRecordingHandlerFinalizeMixedEncodings(t *testing.T) {
	handler := RecordingHandler{Recordings: newInMemoryRecordingStore()}

	segments := []segmentPayload{
		{Blob: []byte("a"), PartNumber: 1, MIMEType: "audio/webm"},
		{Blob: []byte("b"), PartNumber: 2, MIMEType: "audio/mp4"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", finalizeBody(t, "owner-1", segments))
	rec := httptest.NewRecorder()

	handler.Finalize(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestRecordingHandlerFinalizePipelineFailure(t *testing.T) {
	store := newInMemoryRecordingStore()
	handler := RecordingHandler{
		Recordings: store,
		Pipeline: recording.Pipeline{
			Uploader:    &uploaderStub{},
			Transcriber: transcriberStub{err: errors.New("edge function 500")},
		},
	}

	segments := []segmentPayload{{Blob: []byte("a"), DurationSecs: 5, PartNumber: 1, MIMEType: "audio/webm"}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/recordings", finalizeBody(t, "owner-1", segments))
	rec := httptest.NewRecorder()

	handler.Finalize(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d got %d", http.StatusAccepted, rec.Code)
	}

	var resp recordingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Recording.Status != models.RecordingStatusFailed || resp.Recording.FailedStage != "transcribe" {
		t.Fatalf("expected failed transcribe stage, got %+v", resp.Recording)
	}
	// The uploaded asset survives the failure for manual retry.
	if resp.Recording.AssetPath == "" {
		t.Fatalf("expected asset path kept, got %+v", resp.Recording)
	}

	stored, err := store.FindByID(context.Background(), resp.Recording.ID)
	if err != nil {
		t.Fatalf("expected failed recording persisted: %v", err)
	}
	if stored.Status != models.RecordingStatusFailed {
		t.Fatalf("unexpected stored status %q", stored.Status)
	}
}

func TestRecordingHandlerFeedAndGet(t *testing.T) {
	store := newInMemoryRecordingStore()
	for i := 1; i <= 3; i++ {
		rec := models.Recording{
			ID:      fmt.Sprintf("rec-%d", i),
			OwnerID: "owner-1",
			Status:  models.RecordingStatusReady,
		}
		if err := store.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed recording: %v", err)
		}
	}
	handler := RecordingHandler{Recordings: store}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/recordings/feed?ownerId=owner-1", nil)
	rec := httptest.NewRecorder()
	handler.Feed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	var feed feedResponse
	if err := json.NewDecoder(rec.Body).Decode(&feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed.Recordings) != 3 || feed.Recordings[0].ID != "rec-3" {
		t.Fatalf("unexpected feed: %+v", feed.Recordings)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/recordings/get?id=rec-2", nil)
	rec = httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/recordings/get?id=missing", nil)
	rec = httptest.NewRecorder()
	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}
