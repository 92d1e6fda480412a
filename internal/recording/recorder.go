package recording

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wakti/backend/internal/models"
)

// State models the recorder lifecycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateProcessing
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "error"
	default:
		return "idle"
	}
}

// Options tunes a Recorder.
type Options struct {
	// MaxSeconds caps total recorded duration across all segments. Defaults
	// to 7200 (two hours).
	MaxSeconds int
	// TickInterval drives the duration counter. Zero disables the internal
	// ticker; tests then advance time through tickOnce.
	TickInterval time.Duration
	// OwnerID is stamped on the finalized recording.
	OwnerID string
}

// Recorder coordinates one logical recording composed of one or more
// segments. Pausing commits the in-progress interval as an immutable segment;
// resuming arms the device again within the same session. Stop merges the
// committed segments in part order and hands the result to the pipeline.
//
// The capture device is exclusively owned by the recorder; transition guards
// ensure only one segment captures at a time.
type Recorder struct {
	device   CaptureDevice
	pipeline Pipeline
	logger   *slog.Logger

	maxSeconds   int
	tickInterval time.Duration
	ownerID      string

	mu          sync.Mutex
	state       State
	kind        string
	segments    []models.RecordingSegment
	nextPart    int
	buf         []byte
	liveSeconds int
	committed   int
	ceilingHit  bool
	stopTick    chan struct{}
}

// NewRecorder constructs an idle recorder over the device and pipeline.
func NewRecorder(device CaptureDevice, pipeline Pipeline, logger *slog.Logger, opts Options) *Recorder {
	if device == nil {
		panic("recording: capture device must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSeconds <= 0 {
		opts.MaxSeconds = 7200
	}

	return &Recorder{
		device:   device,
		pipeline: pipeline,
		logger:   logger,

		maxSeconds:   opts.MaxSeconds,
		tickInterval: opts.TickInterval,
		ownerID:      opts.OwnerID,

		state:    StateIdle,
		nextPart: 1,
	}
}

// State reports the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// TotalDurationSeconds is the sum of committed segment durations plus the
// in-progress segment's elapsed time.
func (r *Recorder) TotalDurationSeconds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed + r.liveSeconds
}

// Segments returns a copy of the committed segments.
func (r *Recorder) Segments() []models.RecordingSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RecordingSegment, len(r.segments))
	copy(out, r.segments)
	return out
}

// CeilingReached reports whether the duration cap halted capture.
func (r *Recorder) CeilingReached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ceilingHit
}

// Start begins capture. From idle or a finished state it clears prior
// segments and counters; from paused it resumes the same session without
// resetting. Starting while recording or processing is invalid.
func (r *Recorder) Start(kind string) error {
	r.mu.Lock()

	switch r.state {
	case StateIdle, StateStopped, StateErrored:
		r.segments = nil
		r.nextPart = 1
		r.buf = nil
		r.liveSeconds = 0
		r.committed = 0
		r.ceilingHit = false
		r.kind = kind
	case StatePaused:
		if r.ceilingHit {
			r.mu.Unlock()
			return ErrInvalidState
		}
	default:
		r.mu.Unlock()
		return ErrInvalidState
	}

	if err := r.device.Start(r.onChunk); err != nil {
		r.state = StateErrored
		r.mu.Unlock()
		return err
	}

	r.state = StateRecording
	r.startTickerLocked()
	r.mu.Unlock()
	return nil
}

// Pause commits the in-progress interval as a new segment and disarms the
// device. A no-op outside the recording state.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return
	}

	r.commitSegmentLocked()
	_ = r.device.Stop()
	r.stopTickerLocked()
	r.state = StatePaused
}

// Resume re-arms capture from the paused state. Equivalent to Start with the
// session's original kind.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	kind := r.kind
	if r.state != StatePaused {
		r.mu.Unlock()
		return ErrInvalidState
	}
	r.mu.Unlock()
	return r.Start(kind)
}

// Cancel discards all buffered segments and halts the device. Only valid
// before Stop begins the pipeline.
func (r *Recorder) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRecording, StatePaused:
	default:
		return ErrInvalidState
	}

	_ = r.device.Stop()
	r.stopTickerLocked()
	r.segments = nil
	r.nextPart = 1
	r.buf = nil
	r.liveSeconds = 0
	r.committed = 0
	r.ceilingHit = false
	r.state = StateIdle
	return nil
}

// Stop finalizes the recording: any trailing in-progress interval is
// committed, segments are merged in part order, and the merged asset runs
// through the upload/transcribe/summarize pipeline. The returned recording
// keeps whatever the pipeline produced before a failing stage.
func (r *Recorder) Stop(ctx context.Context) (models.Recording, error) {
	r.mu.Lock()

	switch r.state {
	case StateRecording:
		r.commitSegmentLocked()
		_ = r.device.Stop()
		r.stopTickerLocked()
	case StatePaused:
	default:
		r.mu.Unlock()
		return models.Recording{}, ErrInvalidState
	}

	r.state = StateProcessing
	segments := make([]models.RecordingSegment, len(r.segments))
	copy(segments, r.segments)
	total := r.committed
	kind := r.kind
	r.mu.Unlock()

	rec := models.Recording{
		ID:           uuid.NewString(),
		OwnerID:      r.ownerID,
		Kind:         kind,
		DurationSecs: total,
		SegmentCount: len(segments),
		Status:       models.RecordingStatusProcessing,
		CreatedAt:    time.Now().UTC(),
	}

	var (
		blob []byte
		mime string
	)
	if len(segments) == 1 {
		blob, mime = segments[0].Blob, segments[0].MIMEType
	} else {
		var err error
		blob, mime, err = Merge(segments)
		if err != nil {
			r.fail()
			rec.Status = models.RecordingStatusFailed
			return rec, err
		}
	}

	if err := r.pipeline.Run(ctx, &rec, blob, mime); err != nil {
		r.fail()
		rec.Status = models.RecordingStatusFailed
		if stageErr, ok := err.(*StageError); ok {
			rec.FailedStage = stageErr.Stage
		}
		r.logger.Error("recording pipeline failed", "recordingId", rec.ID, "stage", rec.FailedStage, "error", err)
		return rec, err
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	return rec, nil
}

func (r *Recorder) fail() {
	r.mu.Lock()
	r.state = StateErrored
	r.mu.Unlock()
}

// commitSegmentLocked freezes the in-progress interval as an immutable
// segment with the next part number.
func (r *Recorder) commitSegmentLocked() {
	segment := models.RecordingSegment{
		Blob:         r.buf,
		DurationSecs: r.liveSeconds,
		PartNumber:   r.nextPart,
		MIMEType:     r.device.MIMEType(),
	}
	r.segments = append(r.segments, segment)
	r.committed += r.liveSeconds
	r.nextPart++
	r.buf = nil
	r.liveSeconds = 0
}

func (r *Recorder) onChunk(chunk []byte) {
	r.mu.Lock()
	if r.state == StateRecording && !r.ceilingHit {
		r.buf = append(r.buf, chunk...)
	}
	r.mu.Unlock()
}

func (r *Recorder) startTickerLocked() {
	if r.tickInterval <= 0 || r.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	r.stopTick = stop

	go func() {
		ticker := time.NewTicker(r.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.tickOnce()
			}
		}
	}()
}

func (r *Recorder) stopTickerLocked() {
	if r.stopTick != nil {
		close(r.stopTick)
		r.stopTick = nil
	}
}

// tickOnce advances the live counter by one second and enforces the duration
// ceiling: at the cap the device halts and the counter freezes, but the
// session is not auto-finalized; the user must still invoke Stop.
func (r *Recorder) tickOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording || r.ceilingHit {
		return
	}

	r.liveSeconds++
	if r.committed+r.liveSeconds >= r.maxSeconds {
		r.liveSeconds = r.maxSeconds - r.committed
		r.ceilingHit = true
		_ = r.device.Stop()
		r.stopTickerLocked()
		r.logger.Warn("recording ceiling reached, capture halted", "maxSeconds", r.maxSeconds)
	}
}
