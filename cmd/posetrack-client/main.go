package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"posetrack-client-go/internal/config"
	"posetrack-client-go/internal/control"
	"posetrack-client-go/internal/output"
	"posetrack-client-go/internal/results"
	"posetrack-client-go/internal/server"
	"posetrack-client-go/internal/session"
	"posetrack-client-go/internal/simulator"
	"posetrack-client-go/internal/telemetry"
	"posetrack-client-go/internal/types"
)

// offlineCommander satisfies the session without a remote service, for
// driving the UI and pipeline with the simulated sensor only.
type offlineCommander struct{}

func (offlineCommander) UploadCAD(data []byte, filename string) error {
	log.Printf("offline: accepted model %s (%d bytes)", filename, len(data))
	return nil
}

func (offlineCommander) SetMask(p1, p2 types.Point, _ types.Intrinsics) error {
	log.Printf("offline: accepted mask (%d,%d)-(%d,%d)", p1.X, p1.Y, p2.X, p2.Y)
	return nil
}

func (offlineCommander) SetTexture(name string) error {
	log.Printf("offline: accepted texture %q", name)
	return nil
}

func (offlineCommander) Stop() error { return nil }

// nullOutbound accepts and discards every packet in offline mode.
type nullOutbound struct{}

func (nullOutbound) TrySend([]byte) (bool, error) { return true, nil }
func (nullOutbound) Close() error                 { return nil }

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		serverIP      = flag.String("server-ip", "", "Tracking service IP")
		controlPort   = flag.Int("control-port", 5555, "Control channel port (REQ)")
		telemetryPort = flag.Int("telemetry-port", 5556, "Telemetry channel port (PUSH)")
		resultPort    = flag.Int("result-port", 5557, "Result channel port (PULL)")
		uiPort        = flag.Int("ui-port", 8889, "HTTP port for the preview UI")
		offline       = flag.Bool("offline", false, "Run without the remote service")
		width         = flag.Int("width", 640, "Frame width in pixels")
		height        = flag.Int("height", 480, "Frame height in pixels")
		acqRate       = flag.Float64("acq-rate", 30.0, "Sensor acquisition rate (frames/sec)")
		rawLogEnabled = flag.Bool("raw-log", false, "Record raw inbound result packets")
		rawLogDir     = flag.String("raw-log-dir", "rawlog", "Directory for raw result logs")
		exportDir     = flag.String("export-dir", "export", "Directory for session log exports")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	// Explicitly set flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server-ip":
			cfg.ServerIP = *serverIP
		case "control-port":
			cfg.ControlPort = *controlPort
		case "telemetry-port":
			cfg.TelemetryPort = *telemetryPort
		case "result-port":
			cfg.ResultPort = *resultPort
		case "ui-port":
			cfg.UIPort = *uiPort
		case "offline":
			cfg.Debug = *offline
		case "width":
			cfg.FrameWidth = *width
		case "height":
			cfg.FrameHeight = *height
		case "acq-rate":
			cfg.DebugAcqRate = *acqRate
		case "raw-log":
			cfg.RawLogEnabled = *rawLogEnabled
		case "raw-log-dir":
			cfg.RawLogDir = *rawLogDir
		case "export-dir":
			cfg.ExportDir = *exportDir
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Control channel. The liveness probe gates session establishment:
	// a service that does not answer promptly is a fatal setup error.
	var commander session.Commander
	var store server.TextureStore
	var controlClient *control.Client
	if cfg.Debug {
		commander = offlineCommander{}
		log.Printf("offline mode: no remote service")
	} else {
		client, err := control.Dial(cfg.ControlEndpoint())
		if err != nil {
			log.Fatalf("control dial: %v", err)
		}
		if err := client.Ping(); err != nil {
			log.Fatalf("service probe failed: %v", err)
		}
		log.Printf("service alive at %s", cfg.ControlEndpoint())
		commander = client
		store = client
		controlClient = client
	}

	var sess *session.Session
	consumer := results.New(func() bool { return sess.TrackingActive() })
	sess = session.New(commander, consumer)

	// Telemetry channels.
	var out telemetry.Outbound
	var in telemetry.Inbound
	if cfg.Debug {
		out = nullOutbound{}
	} else {
		o, err := telemetry.DialOutbound(cfg.TelemetryEndpoint())
		if err != nil {
			log.Fatalf("telemetry dial: %v", err)
		}
		out = o
		i, err := telemetry.DialInbound(cfg.ResultEndpoint(), time.Duration(cfg.RecvTimeout))
		if err != nil {
			log.Fatalf("result dial: %v", err)
		}
		in = i
	}

	var recorder *output.RawLogWriter
	if cfg.RawLogEnabled && in != nil {
		w, err := output.NewRawLogWriter(cfg.RawLogDir, "results")
		if err != nil {
			log.Fatalf("raw log: %v", err)
		}
		recorder = w
	}

	// The simulator stands in for the sensor driver; a hardware source
	// only needs to implement telemetry.Source.
	source := simulator.New(cfg.FrameWidth, cfg.FrameHeight, cfg.DebugAcqRate)
	defer source.Close()

	var sender *telemetry.Sender
	var receiver *telemetry.Receiver

	srv := server.New(cfg, sess, consumer, store, func() map[string]any {
		status := map[string]any{}
		if sender != nil {
			s := sender.Stats()
			status["frames_captured_total"] = s.Captured
			status["packets_sent_total"] = s.Sent
			status["packets_dropped_total"] = s.Dropped
			status["encode_errors_total"] = s.Encode
		}
		if receiver != nil {
			r := receiver.Stats()
			status["results_received_total"] = r.Received
			status["results_malformed_total"] = r.Malformed
		}
		return status
	})

	preview := func(f *types.Frame) {
		sess.UpdateIntrinsics(f.Intrinsics)
		srv.PublishFrame(f)
	}
	sender = telemetry.NewSender(source, out, sess.TrackingActive, preview)

	var wg sync.WaitGroup
	fatal := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sender.Run(ctx); err != nil {
			select {
			case fatal <- err:
			default:
			}
			stop()
		}
	}()

	if in != nil {
		var rec telemetry.Recorder
		if recorder != nil {
			rec = recorder
		}
		receiver = telemetry.NewReceiver(in, consumer, rec)
		wg.Add(1)
		go func() {
			defer wg.Done()
			receiver.Run(ctx)
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := sender.Stats()
				log.Printf("pipeline stats: captured=%d sent=%d dropped=%d rate=%d/s",
					s.Captured, s.Sent, s.Dropped, consumer.Rate())
			}
		}
	}()

	log.Printf("preview UI at http://localhost:%d", cfg.UIPort)
	if err := srv.Run(ctx); err != nil {
		log.Printf("ui server stopped: %v", err)
		stop()
	}

	// Teardown: join the loops before releasing transports, then stop the
	// run best-effort. A STOP failure must not block shutdown.
	wg.Wait()
	sess.StopTracking()

	if runID, entries := consumer.Log(); len(entries) > 0 {
		if path, err := output.WriteSessionLog(cfg.ExportDir, runID, entries); err != nil {
			log.Printf("session log export failed: %v", err)
		} else {
			log.Printf("session log exported to %s", path)
		}
	}

	if recorder != nil {
		log.Printf("raw log: %d result packets recorded", recorder.Records())
		if err := recorder.Close(); err != nil {
			log.Printf("raw log close failed: %v", err)
		}
	}
	_ = out.Close()
	if in != nil {
		_ = in.Close()
	}
	if controlClient != nil {
		_ = controlClient.Close()
	}

	select {
	case err := <-fatal:
		log.Fatalf("session failed: %v", err)
	default:
	}
}
