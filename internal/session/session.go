// Package session owns the client workflow state: readiness flags, the
// region-of-interest drawing mode and the tracking on/off switch. All
// mutations go through the transition methods under one mutex, so
// UI-triggered actions can never race each other into inconsistent flags.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"posetrack-client-go/internal/types"
)

// ErrNotReady rejects start-tracking before model, appearance and region
// of interest are all configured. It never reaches the network layer.
var ErrNotReady = errors.New("tracking prerequisites not met")

// Commander is the slice of the control channel the state machine drives.
type Commander interface {
	UploadCAD(data []byte, filename string) error
	SetMask(p1, p2 types.Point, k types.Intrinsics) error
	SetTexture(name string) error
	Stop() error
}

// ResultSink is the slice of the result consumer the state machine resets.
type ResultSink interface {
	Reset(runID string)
	ClearLatest()
}

// State is a copy of the observable session state.
type State struct {
	CadReady        bool          `json:"cad_ready"`
	AppearanceReady bool          `json:"appearance_ready"`
	MaskReady       bool          `json:"mask_ready"`
	TrackingActive  bool          `json:"tracking_active"`
	DrawingMode     bool          `json:"drawing_mode"`
	MaskPoints      []types.Point `json:"mask_points"`
	RunID           string        `json:"run_id,omitempty"`
}

// Session is the workflow state machine.
type Session struct {
	mu sync.Mutex

	cmd  Commander
	sink ResultSink

	cadReady        bool
	appearanceReady bool
	maskReady       bool
	drawingMode     bool
	maskPoints      []types.Point
	intrinsics      types.Intrinsics
	haveIntrinsics  bool
	runID           string

	// tracking is read on the sender hot path once per frame.
	tracking atomic.Bool
}

func New(cmd Commander, sink ResultSink) *Session {
	return &Session{cmd: cmd, sink: sink}
}

// TrackingActive reports whether frames should currently be forwarded.
func (s *Session) TrackingActive() bool {
	return s.tracking.Load()
}

// State returns a snapshot for the UI.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		CadReady:        s.cadReady,
		AppearanceReady: s.appearanceReady,
		MaskReady:       s.maskReady,
		TrackingActive:  s.tracking.Load(),
		DrawingMode:     s.drawingMode,
		MaskPoints:      append([]types.Point(nil), s.maskPoints...),
		RunID:           s.runID,
	}
}

// UpdateIntrinsics records the camera parameters of the most recent frame.
// SET_MASK submits the intrinsics the mask points were clicked under.
func (s *Session) UpdateIntrinsics(k types.Intrinsics) {
	s.mu.Lock()
	s.intrinsics = k
	s.haveIntrinsics = true
	s.mu.Unlock()
}

// UploadModel transfers the model and flips cad_ready on success.
func (s *Session) UploadModel(data []byte, filename string) error {
	if err := s.cmd.UploadCAD(data, filename); err != nil {
		return err
	}
	s.mu.Lock()
	s.cadReady = true
	s.mu.Unlock()
	return nil
}

// SetAppearance selects a texture (or color preset) by name and flips
// appearance_ready on success.
func (s *Session) SetAppearance(name string) error {
	if err := s.cmd.SetTexture(name); err != nil {
		return err
	}
	s.mu.Lock()
	s.appearanceReady = true
	s.mu.Unlock()
	return nil
}

// BeginMask enters drawing mode. An active tracking run is stopped first;
// the previous region of interest is invalidated either way.
func (s *Session) BeginMask() {
	if s.tracking.Load() {
		s.StopTracking()
	}
	s.mu.Lock()
	s.maskReady = false
	s.maskPoints = s.maskPoints[:0]
	s.drawingMode = true
	s.mu.Unlock()
}

// AddMaskPoint records one clicked corner while drawing. The second corner
// leaves drawing mode and submits SET_MASK; done reports whether the region
// is now complete. Clicks outside drawing mode are ignored.
func (s *Session) AddMaskPoint(p types.Point) (done bool, err error) {
	s.mu.Lock()
	if !s.drawingMode {
		s.mu.Unlock()
		return false, nil
	}
	s.maskPoints = append(s.maskPoints, p)
	if len(s.maskPoints) < 2 {
		s.mu.Unlock()
		return false, nil
	}
	s.drawingMode = false
	p1, p2 := s.maskPoints[0], s.maskPoints[1]
	k := s.intrinsics
	if !s.haveIntrinsics {
		s.mu.Unlock()
		return true, errors.New("no camera intrinsics observed yet")
	}
	s.mu.Unlock()

	if err := s.cmd.SetMask(p1, p2, k); err != nil {
		return true, fmt.Errorf("set mask: %w", err)
	}
	s.mu.Lock()
	s.maskReady = true
	s.mu.Unlock()
	return true, nil
}

// StartTracking transitions to the tracking state. It is permitted only
// when all readiness flags hold; the session log and rate metering restart
// from empty for the new run.
func (s *Session) StartTracking() error {
	s.mu.Lock()
	if !s.cadReady || !s.appearanceReady || !s.maskReady {
		s.mu.Unlock()
		return fmt.Errorf("%w: cad=%t appearance=%t mask=%t",
			ErrNotReady, s.cadReady, s.appearanceReady, s.maskReady)
	}
	s.runID = uuid.NewString()
	runID := s.runID
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.Reset(runID)
	}
	s.tracking.Store(true)
	return nil
}

// StopTracking transitions back to idle. Local state resets first: the
// stale overlay is cleared and the region of interest is invalidated, since
// the service's spatial reference is tied to one run. A best-effort STOP
// then goes to the service; a STOP failure is logged, never fatal.
func (s *Session) StopTracking() {
	if !s.tracking.Swap(false) {
		return
	}
	s.mu.Lock()
	s.maskReady = false
	s.maskPoints = s.maskPoints[:0]
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.ClearLatest()
	}
	if err := s.cmd.Stop(); err != nil {
		log.Printf("stop tracking: best-effort STOP failed: %v", err)
	}
}
