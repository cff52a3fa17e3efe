// Package codec encodes captured frames for the telemetry channel and
// decodes inbound result packets. It is pure and stateless: no sockets,
// no clocks, no shared mutable state.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"posetrack-client-go/internal/types"
)

// jpegQuality is the fixed lossy target for the color plane. The remote
// service re-decodes before inference, so visually-lossless is enough.
const jpegQuality = 80

// depthDType tags the depth element type on the wire.
const depthDType = "uint16"

var (
	depthEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	depthDec, _ = zstd.NewReader(nil)
)

// EncodeColor compresses the RGB24 color plane of a frame to JPEG.
func EncodeColor(f *types.Frame) ([]byte, error) {
	if len(f.Color) != f.Width*f.Height*3 {
		return nil, fmt.Errorf("color plane is %d bytes, want %d", len(f.Color), f.Width*f.Height*3)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := y * f.Width * 3
		dst := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[dst+0] = f.Color[src+0]
			img.Pix[dst+1] = f.Color[src+1]
			img.Pix[dst+2] = f.Color[src+2]
			img.Pix[dst+3] = 0xff
			src += 3
			dst += 4
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeDepth compresses the uint16 depth plane losslessly (zstd, fastest
// level). The plane travels as little-endian bytes.
func EncodeDepth(f *types.Frame) ([]byte, error) {
	if len(f.Depth) != f.Width*f.Height {
		return nil, fmt.Errorf("depth plane is %d values, want %d", len(f.Depth), f.Width*f.Height)
	}
	raw := make([]byte, len(f.Depth)*2)
	for i, v := range f.Depth {
		binary.LittleEndian.PutUint16(raw[i*2:], v)
	}
	return depthEnc.EncodeAll(raw, nil), nil
}

// DecodeDepth reverses EncodeDepth given the plane shape.
func DecodeDepth(data []byte, rows, cols int) ([]uint16, error) {
	raw, err := depthDec.DecodeAll(data, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != rows*cols*2 {
		return nil, fmt.Errorf("depth payload is %d bytes, want %d", len(raw), rows*cols*2)
	}
	plane := make([]uint16, rows*cols)
	for i := range plane {
		plane[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return plane, nil
}

// EncodeTelemetry builds the CBOR wire message for one frame.
func EncodeTelemetry(f *types.Frame) ([]byte, error) {
	rgb, err := EncodeColor(f)
	if err != nil {
		return nil, err
	}
	depth, err := EncodeDepth(f)
	if err != nil {
		return nil, err
	}
	pkt := types.TelemetryPacket{
		RGB:   rgb,
		Depth: depth,
		Shape: [2]int{f.Height, f.Width},
		DType: depthDType,
	}
	return cbor.Marshal(pkt)
}
