package session

import (
	"errors"
	"testing"

	"posetrack-client-go/internal/types"
)

// fakeCommander records issued commands and can fail selectively.
type fakeCommander struct {
	uploads  int
	masks    int
	textures int
	stops    int
	maskP1   types.Point
	maskP2   types.Point
	maskK    types.Intrinsics
	stopErr  error
	maskErr  error
}

func (f *fakeCommander) UploadCAD(data []byte, filename string) error {
	f.uploads++
	return nil
}

func (f *fakeCommander) SetMask(p1, p2 types.Point, k types.Intrinsics) error {
	f.masks++
	f.maskP1, f.maskP2, f.maskK = p1, p2, k
	return f.maskErr
}

func (f *fakeCommander) SetTexture(name string) error {
	f.textures++
	return nil
}

func (f *fakeCommander) Stop() error {
	f.stops++
	return f.stopErr
}

type fakeSink struct {
	resets  int
	clears  int
	lastRun string
}

func (f *fakeSink) Reset(runID string) {
	f.resets++
	f.lastRun = runID
}

func (f *fakeSink) ClearLatest() {
	f.clears++
}

func readySession(t *testing.T) (*Session, *fakeCommander, *fakeSink) {
	t.Helper()
	cmd := &fakeCommander{}
	sink := &fakeSink{}
	s := New(cmd, sink)
	s.UpdateIntrinsics(types.Intrinsics{Fx: 600, Fy: 600, Ppx: 320, Ppy: 240})
	if err := s.UploadModel([]byte{1}, "part.obj"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.SetAppearance("steel"); err != nil {
		t.Fatalf("appearance: %v", err)
	}
	s.BeginMask()
	if done, err := s.AddMaskPoint(types.Point{X: 10, Y: 10}); done || err != nil {
		t.Fatalf("first click: done=%t err=%v", done, err)
	}
	if done, err := s.AddMaskPoint(types.Point{X: 50, Y: 60}); !done || err != nil {
		t.Fatalf("second click: done=%t err=%v", done, err)
	}
	return s, cmd, sink
}

func TestStartRequiresAllFlags(t *testing.T) {
	cmd := &fakeCommander{}
	s := New(cmd, &fakeSink{})
	s.UpdateIntrinsics(types.Intrinsics{})

	if err := s.UploadModel(nil, "part.obj"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.SetAppearance("steel"); err != nil {
		t.Fatalf("appearance: %v", err)
	}
	// cad and appearance ready, mask missing.
	if err := s.StartTracking(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	s.BeginMask()
	s.AddMaskPoint(types.Point{X: 1, Y: 2})
	s.AddMaskPoint(types.Point{X: 3, Y: 4})
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start with all flags: %v", err)
	}
	if !s.TrackingActive() {
		t.Fatal("tracking not active after start")
	}
}

func TestStartResetsRun(t *testing.T) {
	s, _, sink := readySession(t)
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sink.resets != 1 {
		t.Fatalf("sink resets = %d, want 1", sink.resets)
	}
	if sink.lastRun == "" {
		t.Fatal("no run id assigned")
	}
}

func TestStopResetsMaskAndSendsStop(t *testing.T) {
	s, cmd, sink := readySession(t)
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.StopTracking()

	if s.TrackingActive() {
		t.Fatal("still tracking after stop")
	}
	st := s.State()
	if st.MaskReady || len(st.MaskPoints) != 0 {
		t.Fatalf("mask not invalidated on stop: %+v", st)
	}
	if cmd.stops != 1 {
		t.Fatalf("STOP sent %d times, want 1", cmd.stops)
	}
	if sink.clears != 1 {
		t.Fatalf("latest overlay cleared %d times, want 1", sink.clears)
	}
	// Stop is idempotent, no second STOP.
	s.StopTracking()
	if cmd.stops != 1 {
		t.Fatalf("idle stop issued STOP again: %d", cmd.stops)
	}
}

func TestStopFailureIsNotFatal(t *testing.T) {
	s, cmd, _ := readySession(t)
	cmd.stopErr = errors.New("timeout")
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.StopTracking()
	if s.TrackingActive() {
		t.Fatal("local state must reset even when STOP fails")
	}
}

func TestBeginMaskStopsTrackingFirst(t *testing.T) {
	s, cmd, _ := readySession(t)
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.BeginMask()

	if s.TrackingActive() {
		t.Fatal("tracking still active in drawing mode")
	}
	if cmd.stops != 1 {
		t.Fatalf("STOP sent %d times, want 1", cmd.stops)
	}
	st := s.State()
	if !st.DrawingMode {
		t.Fatal("drawing mode not entered")
	}
	if len(st.MaskPoints) != 0 {
		t.Fatalf("mask points not cleared: %v", st.MaskPoints)
	}
}

func TestStopThenBeginMaskLeavesCleanDrawingState(t *testing.T) {
	s, _, _ := readySession(t)
	if err := s.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.StopTracking()
	s.BeginMask()

	st := s.State()
	if !st.DrawingMode || len(st.MaskPoints) != 0 || st.MaskReady {
		t.Fatalf("unexpected state after stop+begin: %+v", st)
	}
}

func TestMaskSubmitCarriesClickIntrinsics(t *testing.T) {
	_, cmd, _ := readySession(t)
	if cmd.masks != 1 {
		t.Fatalf("SET_MASK sent %d times, want 1", cmd.masks)
	}
	if cmd.maskP1 != (types.Point{X: 10, Y: 10}) || cmd.maskP2 != (types.Point{X: 50, Y: 60}) {
		t.Fatalf("unexpected mask points: %v %v", cmd.maskP1, cmd.maskP2)
	}
	if cmd.maskK.Fx != 600 || cmd.maskK.Ppx != 320 {
		t.Fatalf("unexpected intrinsics: %+v", cmd.maskK)
	}
}

func TestClicksIgnoredOutsideDrawingMode(t *testing.T) {
	cmd := &fakeCommander{}
	s := New(cmd, &fakeSink{})
	if done, err := s.AddMaskPoint(types.Point{X: 5, Y: 5}); done || err != nil {
		t.Fatalf("click outside drawing mode: done=%t err=%v", done, err)
	}
	if len(s.State().MaskPoints) != 0 {
		t.Fatal("click recorded outside drawing mode")
	}
}

func TestMaskSubmitFailureLeavesMaskNotReady(t *testing.T) {
	cmd := &fakeCommander{maskErr: errors.New("unreachable")}
	s := New(cmd, &fakeSink{})
	s.UpdateIntrinsics(types.Intrinsics{Fx: 1})
	s.BeginMask()
	s.AddMaskPoint(types.Point{X: 1, Y: 1})
	done, err := s.AddMaskPoint(types.Point{X: 2, Y: 2})
	if !done || err == nil {
		t.Fatalf("expected completed-with-error, got done=%t err=%v", done, err)
	}
	if s.State().MaskReady {
		t.Fatal("mask marked ready despite submit failure")
	}
}
