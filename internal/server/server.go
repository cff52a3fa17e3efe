// Package server is the local preview/overlay surface: it streams preview
// frames and overlay geometry to websocket clients and routes their actions
// (clicks, start/stop, appearance selection) into the session state machine.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"posetrack-client-go/internal/codec"
	"posetrack-client-go/internal/config"
	"posetrack-client-go/internal/project"
	"posetrack-client-go/internal/results"
	"posetrack-client-go/internal/session"
	"posetrack-client-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	gizmoLength = 0.1 // meters
)

// TextureStore is the slice of the control channel the UI needs for asset
// browsing.
type TextureStore interface {
	Textures() ([]types.Texture, error)
	TextureFull(name string) ([]byte, error)
}

// Server broadcasts preview/overlay data and serves the status endpoints.
type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex

	cfg      config.AppConfig
	sess     *session.Session
	consumer *results.Consumer
	store    TextureStore
	statusFn func() map[string]any

	frames chan *types.Frame

	intrMu sync.Mutex
	intr   types.Intrinsics
}

// New wires the UI server. statusFn supplies pipeline counters for /status.
func New(cfg config.AppConfig, sess *session.Session, consumer *results.Consumer, store TextureStore, statusFn func() map[string]any) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		cfg:      cfg,
		sess:     sess,
		consumer: consumer,
		store:    store,
		statusFn: statusFn,
		frames:   make(chan *types.Frame, 8),
	}
}

// PublishFrame hands a captured frame to the broadcast loop. It never
// blocks: when the UI cannot keep up, older preview frames are skipped
// (the sensor loop must not stall on a slow browser).
func (s *Server) PublishFrame(frame *types.Frame) {
	s.intrMu.Lock()
	s.intr = frame.Intrinsics
	s.intrMu.Unlock()
	select {
	case s.frames <- frame:
	default:
	}
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/textures", s.handleTextures)
	mux.HandleFunc("/textures/", s.handleTextureFull)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.UIPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcast(ctx)

	err = httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// broadcast forwards preview frames and the overlay derived from the latest
// result to every connected client.
func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.frames:
			jpg, err := codec.EncodeColor(frame)
			if err != nil {
				log.Printf("preview encode failed: %v", err)
				continue
			}
			overlay, err := json.Marshal(s.overlayMessage())
			if err != nil {
				continue
			}
			s.broadcastMessage(websocket.TextMessage, overlay)
			s.broadcastMessage(websocket.BinaryMessage, jpg)
		}
	}
}

// overlayMessage assembles the drawable state for one preview frame: the
// session flags, the current mask points, the result rate, and, while a
// detection is live, the box corners and axis gizmo in pixel space.
func (s *Server) overlayMessage() map[string]any {
	s.intrMu.Lock()
	intr := s.intr
	s.intrMu.Unlock()

	st := s.sess.State()
	// The mask rectangle belongs to setup, not to a live run: once tracking
	// is on and the user is not drawing, the stale rectangle is withheld so
	// it cannot shadow the box and gizmo.
	if st.TrackingActive && !st.DrawingMode {
		st.MaskPoints = nil
	}
	msg := map[string]any{
		"type":  "overlay",
		"state": st,
		"rate":  s.consumer.Rate(),
	}
	res, ok := s.consumer.Latest()
	if !ok {
		return msg
	}
	points, visible := project.BoxCorners(res, intr)
	msg["box"] = points
	msg["box_visible"] = visible
	msg["gizmo"] = project.AxisGizmo(project.PoseMatrix(res.Pose), intr, gizmoLength)
	msg["result_timestamp"] = res.Timestamp
	return msg
}

type uiAction struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Name string `json:"name"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSON(conn, writeMu, s.configPayload())

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var action uiAction
			if err := json.Unmarshal(payload, &action); err != nil {
				continue
			}
			if err := s.dispatch(action); err != nil {
				_ = s.writeJSON(conn, writeMu, map[string]any{
					"type":   "error",
					"action": action.Type,
					"error":  err.Error(),
				})
			}
		}
	}()
}

// dispatch routes one UI action into the session state machine. These run
// on websocket reader goroutines; the session serializes them internally.
func (s *Server) dispatch(action uiAction) error {
	switch action.Type {
	case "click":
		done, err := s.sess.AddMaskPoint(types.Point{X: action.X, Y: action.Y})
		if done {
			log.Printf("ui: region of interest complete")
		}
		return err
	case "begin_mask":
		s.sess.BeginMask()
		return nil
	case "start_tracking":
		return s.sess.StartTracking()
	case "stop_tracking":
		s.sess.StopTracking()
		return nil
	case "set_texture":
		return s.sess.SetAppearance(action.Name)
	default:
		log.Printf("ui: ignoring action %q", action.Type)
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) configPayload() map[string]any {
	return map[string]any{
		"type":         "config",
		"frame_width":  s.cfg.FrameWidth,
		"frame_height": s.cfg.FrameHeight,
		"server_ip":    s.cfg.ServerIP,
		"debug":        s.cfg.Debug,
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	payload["session"] = s.sess.State()
	payload["result_rate"] = s.consumer.Rate()
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

// handleUpload receives a model file (raw body, filename query parameter)
// and forwards it over the control channel.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "filename required", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.sess.UploadModel(data, filename); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleExport streams the current session log in the pose text format.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	runID, entries := s.consumer.Log()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+runID+`_poses.txt"`)
	if err := results.WriteLog(w, entries); err != nil {
		log.Printf("export write failed: %v", err)
	}
}

func (s *Server) handleTextures(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		http.Error(w, "no control channel", http.StatusServiceUnavailable)
		return
	}
	list, err := s.store.Textures()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (s *Server) handleTextureFull(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no control channel", http.StatusServiceUnavailable)
		return
	}
	name := r.URL.Path[len("/textures/"):]
	if name == "" {
		http.Error(w, "texture name required", http.StatusBadRequest)
		return
	}
	data, err := s.store.TextureFull(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) broadcastMessage(messageType int, payload []byte) {
	var stale []*websocket.Conn
	s.mu.Lock()
	for conn, writeMu := range s.clients {
		if err := s.writeMessage(conn, writeMu, messageType, payload); err != nil {
			stale = append(stale, conn)
		}
	}
	s.mu.Unlock()
	for _, conn := range stale {
		s.removeClient(conn)
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
