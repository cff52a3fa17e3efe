// Package telemetry owns the two asynchronous channels of a session: the
// lossy outbound frame stream (PUSH, depth-1 queue, drop on full) and the
// inbound result stream (PULL, short receive timeout).
package telemetry

import (
	"errors"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

// ErrTimeout reports that a receive deadline expired with no message.
// It is a normal condition for the receiver loop, not a failure.
var ErrTimeout = errors.New("telemetry receive timeout")

// Outbound is a fire-and-forget send channel with an explicit try-send.
// Implementations must never block: a full queue returns (false, nil).
type Outbound interface {
	TrySend(payload []byte) (bool, error)
	Close() error
}

// Inbound is a pull channel for result packets with a bounded receive.
type Inbound interface {
	Recv() ([]byte, error)
	Close() error
}

type pushOutbound struct {
	sock *zmq4.Socket
}

// DialOutbound connects the telemetry PUSH socket. The send high-water mark
// of 1 plus non-blocking sends implement the drop-on-full policy: at most
// one packet is ever queued toward the service.
func DialOutbound(endpoint string) (Outbound, error) {
	sock, err := zmq4.NewSocket(zmq4.PUSH)
	if err != nil {
		return nil, err
	}
	if err := sock.SetSndhwm(1); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &pushOutbound{sock: sock}, nil
}

func (p *pushOutbound) TrySend(payload []byte) (bool, error) {
	_, err := p.sock.SendBytes(payload, zmq4.DONTWAIT)
	if err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *pushOutbound) Close() error {
	return p.sock.Close()
}

type pullInbound struct {
	sock *zmq4.Socket
}

// DialInbound connects the result PULL socket. The receive timeout keeps the
// receiver loop responsive to shutdown.
func DialInbound(endpoint string, timeout time.Duration) (Inbound, error) {
	sock, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := sock.SetRcvtimeo(timeout); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, err
	}
	return &pullInbound{sock: sock}, nil
}

func (p *pullInbound) Recv() ([]byte, error) {
	msg, err := p.sock.RecvBytes(0)
	if err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return msg, nil
}

func (p *pullInbound) Close() error {
	return p.sock.Close()
}
