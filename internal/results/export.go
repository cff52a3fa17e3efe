package results

import (
	"fmt"
	"io"

	"posetrack-client-go/internal/types"
)

// WriteLog renders session-log entries in the pose export format: one block
// per detection, pose rows as fixed-width signed fixed-point cells.
//
//	Image: 1
//	Timestamp: 0.123456
//	[ 1.000000000000000] [ 0.000000000000000] ...
func WriteLog(w io.Writer, entries []types.LogEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "Image: %d\n", e.Seq); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "Timestamp: %.6f\n", e.Timestamp); err != nil {
			return err
		}
		for _, row := range e.Pose {
			for j, v := range row {
				sep := " "
				if j == len(row)-1 {
					sep = "\n"
				}
				if _, err := fmt.Fprintf(w, "[%18.15f]%s", v, sep); err != nil {
					return err
				}
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
