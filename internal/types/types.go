package types

// Intrinsics holds the pinhole camera parameters reported by the frame
// source alongside every frame.
type Intrinsics struct {
	Fx  float64 `json:"fx" yaml:"fx"`
	Fy  float64 `json:"fy" yaml:"fy"`
	Ppx float64 `json:"ppx" yaml:"ppx"`
	Ppy float64 `json:"ppy" yaml:"ppy"`
}

// Matrix returns the row-major 3x3 intrinsic matrix K.
func (k Intrinsics) Matrix() [3][3]float64 {
	return [3][3]float64{
		{k.Fx, 0, k.Ppx},
		{0, k.Fy, k.Ppy},
		{0, 0, 1},
	}
}

// Frame is one aligned color+depth capture. Color is RGB24 (height*width*3
// bytes), Depth is a little-endian uint16 plane (height*width values).
// Frames are immutable after creation; ownership moves with the value.
type Frame struct {
	Width      int
	Height     int
	Color      []byte
	Depth      []uint16
	Intrinsics Intrinsics
	CapturedAt float64 // seconds since epoch
}

// TelemetryPacket is the outbound wire message carrying one encoded frame.
type TelemetryPacket struct {
	RGB   []byte `cbor:"rgb"`
	Depth []byte `cbor:"depth"`
	Shape [2]int `cbor:"shape"` // rows, cols
	DType string `cbor:"dtype"`
}

// Point is a pixel coordinate in image space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Result is one remote detection: the 8 cuboid corners, the 4x4 pose and
// the remote timestamp. Corners carry 2 or 3 components depending on
// whether the service projected them already; BoxIs2D reports which.
type Result struct {
	Box       [8][3]float64
	BoxIs2D   bool
	Pose      [4][4]float64
	Timestamp float64
}

// LogEntry is one appended session-log record.
type LogEntry struct {
	Seq       int
	Timestamp float64
	Pose      [4][4]float64
}

// Texture describes one remote appearance asset.
type Texture struct {
	Name      string `cbor:"name" json:"name"`
	Thumbnail []byte `cbor:"thumbnail" json:"thumbnail,omitempty"`
}
