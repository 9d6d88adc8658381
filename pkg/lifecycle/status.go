package lifecycle

import (
	"fmt"
	"time"
)

// Status texts without a countdown.
const (
	StatusTraining   = "TRAINING AI MODEL..."
	StatusMonitoring = "LIVE MONITORING ACTIVE"
)

// StatusText renders the human readable status for s at now. Countdowns
// are whole seconds, truncated.
func StatusText(s Snapshot, now time.Time) string {
	secs := int(s.Remaining(now) / time.Second)

	switch s.Phase {
	case Waiting:
		if s.LastFailure != nil {
			return fmt.Sprintf("ERROR: insufficient data (%d samples), restarting in %ds", s.FailedSamples, secs)
		}
		return fmt.Sprintf("WAITING (starting in %ds)", secs)
	case Recording:
		if s.Training {
			return StatusTraining
		}
		return fmt.Sprintf("RECORDING NORMAL DATA (%ds left)", secs)
	case Monitoring:
		return StatusMonitoring
	case Error:
		if s.Err != nil {
			return fmt.Sprintf("ERROR: %v", s.Err)
		}
		return "ERROR"
	default:
		return s.Phase.String()
	}
}
