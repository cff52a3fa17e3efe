package telemetry

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"posetrack-client-go/internal/codec"
	"posetrack-client-go/internal/types"
)

// Sink consumes decoded results. Consume must not block for long; the
// receiver publishes at most one result per inbound packet.
type Sink interface {
	Consume(types.Result)
}

// Recorder taps the raw inbound byte stream (optional, for offline replay).
type Recorder interface {
	Record(payload []byte) error
}

// ReceiverStats is a point-in-time snapshot of receiver counters.
type ReceiverStats struct {
	Received  uint64 `json:"results_received_total"`
	Malformed uint64 `json:"results_malformed_total"`
}

// Receiver pulls result packets for the lifetime of the session. Receive
// timeouts are expected and simply re-check the context; malformed packets
// are logged and discarded, never surfaced.
type Receiver struct {
	in   Inbound
	sink Sink
	rec  Recorder

	received  atomic.Uint64
	malformed atomic.Uint64
}

func NewReceiver(in Inbound, sink Sink, rec Recorder) *Receiver {
	return &Receiver{in: in, sink: sink, rec: rec}
}

// Run loops until the context is cancelled. It returns within one receive
// timeout of cancellation.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := r.in.Recv()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("result recv error: %v", err)
			continue
		}

		if r.rec != nil {
			if err := r.rec.Record(msg); err != nil {
				log.Printf("result record failed: %v", err)
			}
		}

		res, err := codec.DecodeResult(msg)
		if err != nil {
			r.malformed.Add(1)
			log.Printf("result discarded: %v", err)
			continue
		}
		r.received.Add(1)
		r.sink.Consume(res)
	}
}

// Stats returns the current counter snapshot.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Received:  r.received.Load(),
		Malformed: r.malformed.Load(),
	}
}
