package recording

import (
	"sort"

	"github.com/wakti/backend/internal/models"
)

// Merge concatenates segment blobs in ascending part-number order into one
// deliverable asset. All segments must share an encoding; merging is a pure
// byte-level concatenation with no re-encoding.
func Merge(segments []models.RecordingSegment) ([]byte, string, error) {
	if len(segments) == 0 {
		return nil, "", ErrInvalidState
	}

	ordered := make([]models.RecordingSegment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].PartNumber < ordered[j].PartNumber
	})

	mime := ordered[0].MIMEType
	total := 0
	for _, seg := range ordered {
		if seg.MIMEType != mime {
			return nil, "", ErrEncodingMismatch
		}
		total += len(seg.Blob)
	}

	merged := make([]byte, 0, total)
	for _, seg := range ordered {
		merged = append(merged, seg.Blob...)
	}
	return merged, mime, nil
}
