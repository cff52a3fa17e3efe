package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"posetrack-client-go/internal/config"
	"posetrack-client-go/internal/results"
	"posetrack-client-go/internal/session"
	"posetrack-client-go/internal/types"
)

type stubCommander struct{}

func (stubCommander) UploadCAD([]byte, string) error { return nil }
func (stubCommander) SetTexture(string) error        { return nil }
func (stubCommander) Stop() error                    { return nil }

func (stubCommander) SetMask(types.Point, types.Point, types.Intrinsics) error {
	return nil
}

func testServer() (*Server, *session.Session, *results.Consumer) {
	sess := session.New(stubCommander{}, nil)
	consumer := results.New(sess.TrackingActive)
	cfg := config.Default()
	cfg.Debug = true
	srv := New(cfg, sess, consumer, nil, func() map[string]any {
		return map[string]any{"frames_captured_total": uint64(7)}
	})
	return srv, sess, consumer
}

func TestHandleStatus(t *testing.T) {
	srv, _, _ := testServer()

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["frames_captured_total"].(float64) != 7 {
		t.Fatalf("missing pipeline counters: %v", payload)
	}
	state, ok := payload["session"].(map[string]any)
	if !ok {
		t.Fatalf("missing session state: %v", payload)
	}
	if state["tracking_active"].(bool) {
		t.Fatal("fresh session reports tracking")
	}
}

func TestHandleConfig(t *testing.T) {
	srv, _, _ := testServer()

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["frame_width"].(float64) != 640 {
		t.Fatalf("unexpected frame_width: %v", payload["frame_width"])
	}
	if payload["debug"].(bool) != true {
		t.Fatalf("unexpected debug flag: %v", payload["debug"])
	}
}

func TestHandleExport(t *testing.T) {
	srv, sess, consumer := testServer()

	// Put one tracked result into the log by hand.
	consumer.Reset("run-7")
	sess.UpdateIntrinsics(types.Intrinsics{Fx: 1, Fy: 1})
	var res types.Result
	res.Timestamp = 0.25
	for i := 0; i < 4; i++ {
		res.Pose[i][i] = 1
	}
	forceTracking(t, sess)
	consumer.Consume(res)

	req := httptest.NewRequest("GET", "/export", nil)
	rec := httptest.NewRecorder()
	srv.handleExport(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Image: 1\n") || !strings.Contains(body, "Timestamp: 0.250000\n") {
		t.Fatalf("unexpected export body:\n%s", body)
	}
}

// forceTracking walks the session through the full readiness workflow.
func forceTracking(t *testing.T, sess *session.Session) {
	t.Helper()
	if err := sess.UploadModel(nil, "part.obj"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := sess.SetAppearance("steel"); err != nil {
		t.Fatalf("appearance: %v", err)
	}
	sess.BeginMask()
	sess.AddMaskPoint(types.Point{X: 1, Y: 1})
	sess.AddMaskPoint(types.Point{X: 2, Y: 2})
	if err := sess.StartTracking(); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestDispatchStartBeforeReady(t *testing.T) {
	srv, _, _ := testServer()
	if err := srv.dispatch(uiAction{Type: "start_tracking"}); err == nil {
		t.Fatal("start before readiness succeeded")
	}
}

func TestOverlayOmitsMaskWhileTracking(t *testing.T) {
	srv, sess, _ := testServer()
	sess.UpdateIntrinsics(types.Intrinsics{Fx: 600, Fy: 600, Ppx: 320, Ppy: 240})
	forceTracking(t, sess)

	st := srv.overlayMessage()["state"].(session.State)
	if len(st.MaskPoints) != 0 {
		t.Fatalf("mask points shown during a live run: %v", st.MaskPoints)
	}

	// Drawing a new region brings the points back.
	sess.BeginMask()
	sess.AddMaskPoint(types.Point{X: 3, Y: 4})
	st = srv.overlayMessage()["state"].(session.State)
	if len(st.MaskPoints) != 1 {
		t.Fatalf("mask points hidden in drawing mode: %v", st.MaskPoints)
	}
}

func TestOverlayMessageIncludesGizmo(t *testing.T) {
	srv, sess, consumer := testServer()
	sess.UpdateIntrinsics(types.Intrinsics{Fx: 100, Fy: 100, Ppx: 320, Ppy: 240})
	srv.PublishFrame(&types.Frame{
		Width: 2, Height: 2,
		Color:      make([]byte, 12),
		Depth:      make([]uint16, 4),
		Intrinsics: types.Intrinsics{Fx: 100, Fy: 100, Ppx: 320, Ppy: 240},
	})

	var res types.Result
	for i := 0; i < 4; i++ {
		res.Pose[i][i] = 1
	}
	res.Pose[2][3] = 2 // in front of the camera
	res.BoxIs2D = true
	consumer.Consume(res)

	msg := srv.overlayMessage()
	if msg["type"] != "overlay" {
		t.Fatalf("unexpected message type: %v", msg["type"])
	}
	if _, ok := msg["box"]; !ok {
		t.Fatal("overlay missing box")
	}
	if _, ok := msg["gizmo"]; !ok {
		t.Fatal("overlay missing gizmo")
	}
}
