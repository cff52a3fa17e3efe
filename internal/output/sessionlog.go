package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"posetrack-client-go/internal/results"
	"posetrack-client-go/internal/types"
)

// WriteSessionLog exports a finished (or running) tracking run's pose log
// to a timestamped text file named after the run. Returns the file path.
func WriteSessionLog(dir string, runID string, entries []types.LogEntry) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if runID == "" {
		runID = "no-run"
	}
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_poses.txt", timestamp, runID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := results.WriteLog(f, entries); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
