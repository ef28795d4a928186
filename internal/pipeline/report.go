package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// maxReportErrors caps the error strings a report keeps.
const maxReportErrors = 50

// StageReport summarizes one stage invocation.
type StageReport struct {
	Stage      string   `json:"stage"`
	Selected   int      `json:"selected"`
	Processed  int      `json:"processed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

func newReport(stage string) *StageReport {
	return &StageReport{Stage: stage}
}

func (r *StageReport) fail(log *zap.Logger, leadID int64, err error) {
	log.Warn("pipeline: lead failed", zap.Error(err))
	r.Failed++
	r.addError(leadID, err)
}

func (r *StageReport) addError(leadID int64, err error) {
	if len(r.Errors) >= maxReportErrors {
		return
	}
	if leadID > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("lead %d: %v", leadID, err))
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Merge adds other's counters into r. Used when one invocation covers
// several discovery targets.
func (r *StageReport) Merge(other *StageReport) {
	if other == nil {
		return
	}
	r.Selected += other.Selected
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	for _, e := range other.Errors {
		if len(r.Errors) >= maxReportErrors {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

// Format renders the report for the CLI.
func (r *StageReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s: selected=%d processed=%d skipped=%d failed=%d (%dms)\n",
		r.Stage, r.Selected, r.Processed, r.Skipped, r.Failed, r.DurationMs)
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	return b.String()
}
