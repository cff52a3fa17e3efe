// Package control implements the synchronous request/reply command channel
// to the tracking service. Exactly one request is in flight at a time; the
// exchange mutex enforces that structurally rather than by convention.
package control

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"posetrack-client-go/internal/types"
)

const (
	// DefaultTimeout bounds every normal command exchange.
	DefaultTimeout = 15 * time.Second
	// ProbeTimeout bounds the initial liveness check.
	ProbeTimeout = 2 * time.Second

	// errorPrefix marks a reply that explicitly encodes a remote failure.
	// Everything else arriving in time counts as success.
	errorPrefix = "ERROR"
)

var (
	// ErrUnresponsive reports a request that timed out waiting for a reply.
	ErrUnresponsive = errors.New("control channel unresponsive")
	// ErrConnectionLost reports a transport failure on the channel.
	ErrConnectionLost = errors.New("control connection lost")
)

// Client is the REQ side of the control channel.
type Client struct {
	mu      sync.Mutex
	sock    *zmq4.Socket
	timeout time.Duration
}

// Dial connects the control socket. REQ_RELAXED and REQ_CORRELATE keep the
// socket usable after an unanswered request (a plain REQ socket would wedge),
// which the best-effort STOP path relies on.
func Dial(endpoint string) (*Client, error) {
	sock, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := sock.SetReqRelaxed(1); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := sock.SetReqCorrelate(1); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return &Client{sock: sock, timeout: DefaultTimeout}, nil
}

// Close releases the socket. Pending exchanges finish first.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	return err
}

// exchange performs one request/reply round trip under the channel mutex.
func (c *Client) exchange(req map[string]any, timeout time.Duration) ([]byte, error) {
	payload, err := cbor.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil, ErrConnectionLost
	}
	if err := c.sock.SetRcvtimeo(timeout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if _, err := c.sock.SendBytes(payload, 0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	reply, err := c.sock.RecvBytes(0)
	if err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			return nil, ErrUnresponsive
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return reply, nil
}

// statusExchange runs a command whose reply is a short status string. Any
// reply within the timeout that does not carry the error prefix is success;
// unexpected status text is a warning, not a protocol failure.
func (c *Client) statusExchange(req map[string]any, timeout time.Duration, accept ...string) error {
	reply, err := c.exchange(req, timeout)
	if err != nil {
		return err
	}
	status := strings.TrimSpace(string(reply))
	if strings.HasPrefix(status, errorPrefix) {
		return fmt.Errorf("%s rejected: %s", req["cmd"], status)
	}
	for _, want := range accept {
		if status == want {
			return nil
		}
	}
	log.Printf("control: %s replied %q", req["cmd"], status)
	return nil
}

// Ping probes service liveness with the short timeout. Any in-time reply
// means alive; the reply text is not significant.
func (c *Client) Ping() error {
	_, err := c.exchange(map[string]any{"cmd": "PING"}, ProbeTimeout)
	return err
}

// UploadCAD transfers a 3-D model file to the service.
func (c *Client) UploadCAD(data []byte, filename string) error {
	return c.statusExchange(map[string]any{
		"cmd":      "UPLOAD_CAD",
		"data":     data,
		"filename": filename,
	}, c.timeout, "OK")
}

// SetMask submits the two region-of-interest corners with the camera
// intrinsics the points were clicked under.
func (c *Client) SetMask(p1, p2 types.Point, k types.Intrinsics) error {
	return c.statusExchange(map[string]any{
		"cmd":    "SET_MASK",
		"points": [][2]int{{p1.X, p1.Y}, {p2.X, p2.Y}},
		"K":      k.Matrix(),
	}, c.timeout, "OK")
}

// SetTexture selects a remote appearance by name. The service answers
// "NO MESH" when no model is loaded yet; that is not a failure here, the
// selection is applied once a model arrives.
func (c *Client) SetTexture(name string) error {
	return c.statusExchange(map[string]any{
		"cmd":  "SET_TEXTURE",
		"name": name,
	}, c.timeout, "OK", "NO MESH")
}

// Textures lists the remote appearance assets with thumbnails.
func (c *Client) Textures() ([]types.Texture, error) {
	reply, err := c.exchange(map[string]any{"cmd": "GET_TEXTURES"}, c.timeout)
	if err != nil {
		return nil, err
	}
	var list []types.Texture
	if err := cbor.Unmarshal(reply, &list); err != nil {
		return nil, fmt.Errorf("texture list decode: %w", err)
	}
	return list, nil
}

// TextureFull fetches the full-resolution bytes of one texture.
func (c *Client) TextureFull(name string) ([]byte, error) {
	return c.exchange(map[string]any{
		"cmd":  "GET_TEXTURE_FULL",
		"name": name,
	}, c.timeout)
}

// Stop asks the service to reset its tracking run.
func (c *Client) Stop() error {
	return c.statusExchange(map[string]any{"cmd": "STOP"}, c.timeout, "OK")
}
