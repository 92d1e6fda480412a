package recording

import (
	"bytes"
	"testing"

	"github.com/wakti/backend/internal/models"
)

func TestMergeOrdersByPartNumber(t *testing.T) {
	// Internal order deliberately shuffled; merge must follow part numbers.
	segments := []models.RecordingSegment{
		{Blob: []byte("cc"), PartNumber: 3, MIMEType: "audio/webm"},
		{Blob: []byte("aa"), PartNumber: 1, MIMEType: "audio/webm"},
		{Blob: []byte("bb"), PartNumber: 2, MIMEType: "audio/webm"},
	}

	merged, mime, err := Merge(segments)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !bytes.Equal(merged, []byte("aabbcc")) {
		t.Fatalf("expected ascending part order got %q", merged)
	}
	if mime != "audio/webm" {
		t.Fatalf("unexpected mime %q", mime)
	}

	// Input slice must not be reordered.
	if segments[0].PartNumber != 3 {
		t.Fatal("merge must not mutate its input")
	}
}

func TestMergeEmpty(t *testing.T) {
	if _, _, err := Merge(nil); err == nil {
		t.Fatal("expected error for empty segment list")
	}
}

func TestMergeEncodingMismatch(t *testing.T) {
	segments := []models.RecordingSegment{
		{Blob: []byte("aa"), PartNumber: 1, MIMEType: "audio/webm"},
		{Blob: []byte("bb"), PartNumber: 2, MIMEType: "audio/mp4"},
	}
	if _, _, err := Merge(segments); err != ErrEncodingMismatch {
		t.Fatalf("expected encoding mismatch got %v", err)
	}
}
