package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"posetrack-client-go/internal/types"
)

// Result packets arrive as CBOR maps shaped like
// { "box": [8 x [2|3 floats]], "pose": [16 floats] | [4 x [4 floats]], "timestamp": <float> }.
// Decoding is deliberately tolerant about numeric widths; anything
// structurally wrong is an error and the packet is discarded upstream.

// DecodeResult parses one inbound result packet.
func DecodeResult(msg []byte) (types.Result, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return types.Result{}, fmt.Errorf("result CBOR decode: %w", err)
	}

	boxRaw, ok := payload["box"]
	if !ok {
		return types.Result{}, errors.New("result missing box")
	}
	poseRaw, ok := payload["pose"]
	if !ok {
		return types.Result{}, errors.New("result missing pose")
	}

	var res types.Result
	if err := decodeBox(boxRaw, &res); err != nil {
		return types.Result{}, err
	}
	if err := decodePose(poseRaw, &res.Pose); err != nil {
		return types.Result{}, err
	}
	if ts, ok := payload["timestamp"]; ok {
		v, err := toFloat(ts)
		if err != nil {
			return types.Result{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		res.Timestamp = v
	}
	return res, nil
}

func decodeBox(raw any, res *types.Result) error {
	points, ok := raw.([]any)
	if !ok {
		return errors.New("box is not a sequence")
	}
	if len(points) != 8 {
		return fmt.Errorf("box has %d points, want 8", len(points))
	}
	dims := 0
	for i, item := range points {
		coords, ok := item.([]any)
		if !ok {
			return fmt.Errorf("box point %d is not a sequence", i)
		}
		if len(coords) != 2 && len(coords) != 3 {
			return fmt.Errorf("box point %d has %d components", i, len(coords))
		}
		if dims == 0 {
			dims = len(coords)
		} else if dims != len(coords) {
			return errors.New("box mixes 2-D and 3-D points")
		}
		for j, c := range coords {
			v, err := toFloat(c)
			if err != nil {
				return fmt.Errorf("box point %d: %w", i, err)
			}
			res.Box[i][j] = v
		}
	}
	res.BoxIs2D = dims == 2
	return nil
}

func decodePose(raw any, pose *[4][4]float64) error {
	rows, ok := raw.([]any)
	if !ok {
		return errors.New("pose is not a sequence")
	}
	switch len(rows) {
	case 16:
		for i, item := range rows {
			v, err := toFloat(item)
			if err != nil {
				return fmt.Errorf("pose element %d: %w", i, err)
			}
			pose[i/4][i%4] = v
		}
	case 4:
		for i, item := range rows {
			cols, ok := item.([]any)
			if !ok || len(cols) != 4 {
				return fmt.Errorf("pose row %d is not 4 wide", i)
			}
			for j, c := range cols {
				v, err := toFloat(c)
				if err != nil {
					return fmt.Errorf("pose element %d,%d: %w", i, j, err)
				}
				pose[i][j] = v
			}
		}
	default:
		return fmt.Errorf("pose has %d rows, want 4 or 16 flat", len(rows))
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
