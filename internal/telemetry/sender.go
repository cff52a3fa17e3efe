package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"posetrack-client-go/internal/codec"
	"posetrack-client-go/internal/types"
)

// Source is the contract the pipeline expects from a frame producer: a
// blocking next-frame call that honors context cancellation. Hardware
// liveness is the source's own concern.
type Source interface {
	Next(ctx context.Context) (*types.Frame, error)
}

// SenderStats is a point-in-time snapshot of sender counters.
type SenderStats struct {
	Captured uint64 `json:"frames_captured_total"`
	Sent     uint64 `json:"packets_sent_total"`
	Dropped  uint64 `json:"packets_dropped_total"`
	Encode   uint64 `json:"encode_errors_total"`
}

// Sender drains the frame source at sensor rate for the lifetime of the
// session. Every frame goes to the preview sink; frames are additionally
// encoded and try-sent to the service only while tracking is active. The
// sender never blocks on network backpressure: a full queue drops the packet.
type Sender struct {
	source  Source
	out     Outbound
	active  func() bool
	preview func(*types.Frame)

	captured   atomic.Uint64
	sent       atomic.Uint64
	dropped    atomic.Uint64
	encodeErrs atomic.Uint64
}

// NewSender wires a sender. active gates encoding/sending per frame;
// preview receives every captured frame and may be nil.
func NewSender(source Source, out Outbound, active func() bool, preview func(*types.Frame)) *Sender {
	return &Sender{source: source, out: out, active: active, preview: preview}
}

// Run loops until the context is cancelled (returns nil) or the frame
// source fails (returns the wrapped error; the session cannot continue
// without sensor frames).
func (s *Sender) Run(ctx context.Context) error {
	for {
		frame, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("frame source failed: %w", err)
		}
		s.captured.Add(1)

		if s.preview != nil {
			s.preview(frame)
		}
		if !s.active() {
			continue
		}

		payload, err := codec.EncodeTelemetry(frame)
		if err != nil {
			s.encodeErrs.Add(1)
			log.Printf("telemetry encode failed: %v", err)
			continue
		}
		ok, err := s.out.TrySend(payload)
		if err != nil {
			s.dropped.Add(1)
			log.Printf("telemetry send failed: %v", err)
			continue
		}
		if !ok {
			s.dropped.Add(1)
			continue
		}
		s.sent.Add(1)
	}
}

// Stats returns the current counter snapshot.
func (s *Sender) Stats() SenderStats {
	return SenderStats{
		Captured: s.captured.Load(),
		Sent:     s.sent.Load(),
		Dropped:  s.dropped.Load(),
		Encode:   s.encodeErrs.Load(),
	}
}
